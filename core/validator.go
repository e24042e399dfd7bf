package core

import (
	"bytes"
	"fmt"
)

// Validator checks the internal consistency of a sealed block body
// against its header. Header-to-parent checks belong to the engine.
type Validator struct {
	maxBlockTxs int
}

// NewValidator creates a body validator. maxBlockTxs <= 0 disables the
// transaction-count cap.
func NewValidator(maxBlockTxs int) *Validator {
	return &Validator{maxBlockTxs: maxBlockTxs}
}

func (v *Validator) ValidateBody(block *Block) error {
	header := block.Header

	if v.maxBlockTxs > 0 && len(block.Transactions) > v.maxBlockTxs {
		return fmt.Errorf("block %d carries %d transactions, cap is %d",
			header.Number, len(block.Transactions), v.maxBlockTxs)
	}
	if len(block.Receipts) != len(block.Transactions) {
		return fmt.Errorf("block %d has %d receipts for %d transactions",
			header.Number, len(block.Receipts), len(block.Transactions))
	}

	if txRoot := TransactionsRoot(block.Transactions); txRoot != header.TxHash {
		return fmt.Errorf("block %d transactions root mismatch: computed %s, header has %s",
			header.Number, txRoot.Hex(), header.TxHash.Hex())
	}
	if receiptRoot := ReceiptsRoot(block.Receipts); receiptRoot != header.ReceiptHash {
		return fmt.Errorf("block %d receipts root mismatch: computed %s, header has %s",
			header.Number, receiptRoot.Hex(), header.ReceiptHash.Hex())
	}
	if bloom := CreateBloom(block.Receipts); !bytes.Equal(bloom, header.LogsBloom) {
		return fmt.Errorf("block %d logs bloom mismatch", header.Number)
	}

	var cumulative uint64
	for i, receipt := range block.Receipts {
		if receipt.TxHash != block.Transactions[i].Hash {
			return fmt.Errorf("block %d receipt %d is for %s, transaction is %s",
				header.Number, i, receipt.TxHash.Hex(), block.Transactions[i].Hash.Hex())
		}
		cumulative += receipt.GasUsed
		if receipt.CumulativeGasUsed != cumulative {
			return fmt.Errorf("block %d receipt %d cumulative gas %d, expected %d",
				header.Number, i, receipt.CumulativeGasUsed, cumulative)
		}
	}
	if cumulative != header.GasUsed {
		return fmt.Errorf("block %d header gas used %d, receipts sum to %d",
			header.Number, header.GasUsed, cumulative)
	}
	return nil
}

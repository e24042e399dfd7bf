package core

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"autoseal-node/crypto"
	"autoseal-node/interfaces"
)

const (
	ReceiptStatusFailed     = uint64(0)
	ReceiptStatusSuccessful = uint64(1)

	// BloomByteLength is the size of the per-block logs bloom filter.
	BloomByteLength = 256
)

// TransactionReceipt records the outcome of an included transaction.
type TransactionReceipt struct {
	TxHash            common.Hash       `json:"transactionHash"`
	TxIndex           uint64            `json:"transactionIndex"`
	BlockHash         common.Hash       `json:"blockHash"`
	BlockNumber       uint64            `json:"blockNumber"`
	From              common.Address    `json:"from"`
	To                *common.Address   `json:"to,omitempty"`
	GasUsed           uint64            `json:"gasUsed"`
	CumulativeGasUsed uint64            `json:"cumulativeGasUsed"`
	EffectiveGasPrice *uint256.Int      `json:"effectiveGasPrice"`
	Status            uint64            `json:"status"`
	Logs              []*interfaces.Log `json:"logs"`
}

// hashContent excludes BlockHash, which is only known after sealing.
func (r *TransactionReceipt) hashContent() []byte {
	toHash := *r
	toHash.BlockHash = common.Hash{}
	data, _ := json.Marshal(toHash)
	return crypto.Keccak256(data)
}

// CreateBloom folds the log addresses and topics of all receipts into a
// 256-byte bloom filter, three bits per item.
func CreateBloom(receipts []*TransactionReceipt) []byte {
	bloom := make([]byte, BloomByteLength)
	for _, receipt := range receipts {
		for _, log := range receipt.Logs {
			bloomAdd(bloom, log.Address.Bytes())
			for _, topic := range log.Topics {
				bloomAdd(bloom, topic.Bytes())
			}
		}
	}
	return bloom
}

func bloomAdd(bloom []byte, item []byte) {
	h := crypto.Keccak256(item)
	for i := 0; i < 6; i += 2 {
		bit := (uint(h[i+1]) + (uint(h[i]) << 8)) & 0x7ff
		bloom[BloomByteLength-1-bit/8] |= byte(1 << (bit % 8))
	}
}

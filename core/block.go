package core

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"autoseal-node/crypto"
	"autoseal-node/interfaces"
)

// BlockHeader is the header of a sealed or in-progress block. The Hash
// field is excluded from its own computation.
type BlockHeader struct {
	Number      uint64         `json:"number"`
	ParentHash  common.Hash    `json:"parentHash"`
	Timestamp   uint64         `json:"timestamp"`
	Coinbase    common.Address `json:"miner"`
	StateRoot   common.Hash    `json:"stateRoot"`
	TxHash      common.Hash    `json:"transactionsRoot"`
	ReceiptHash common.Hash    `json:"receiptsRoot"`
	LogsBloom   []byte         `json:"logsBloom,omitempty"`
	GasLimit    uint64         `json:"gasLimit"`
	GasUsed     uint64         `json:"gasUsed"`
	BaseFee     *uint256.Int   `json:"baseFeePerGas"`
	Extra       []byte         `json:"extraData,omitempty"`
	Hash        common.Hash    `json:"hash"`
}

func (bh *BlockHeader) GetNumber() uint64           { return bh.Number }
func (bh *BlockHeader) GetParentHash() common.Hash  { return bh.ParentHash }
func (bh *BlockHeader) GetTimestamp() uint64        { return bh.Timestamp }
func (bh *BlockHeader) GetGasLimit() uint64         { return bh.GasLimit }
func (bh *BlockHeader) GetGasUsed() uint64          { return bh.GasUsed }
func (bh *BlockHeader) GetBaseFee() *uint256.Int    { return bh.BaseFee }
func (bh *BlockHeader) GetHash() common.Hash        { return bh.Hash }
func (bh *BlockHeader) SetStateRoot(h common.Hash)  { bh.StateRoot = h }
func (bh *BlockHeader) SetTxHash(h common.Hash)     { bh.TxHash = h }
func (bh *BlockHeader) SetReceiptHash(h common.Hash) {
	bh.ReceiptHash = h
}
func (bh *BlockHeader) SetLogsBloom(bloom []byte) { bh.LogsBloom = bloom }
func (bh *BlockHeader) SetGasUsed(gas uint64)     { bh.GasUsed = gas }
func (bh *BlockHeader) SetExtra(extra []byte)     { bh.Extra = extra }
func (bh *BlockHeader) SetHash(h common.Hash)     { bh.Hash = h }

// Block bundles a header with its transactions and receipts.
type Block struct {
	Header       *BlockHeader          `json:"header"`
	Transactions []*Transaction        `json:"transactions"`
	Receipts     []*TransactionReceipt `json:"receipts,omitempty"`
}

func (b *Block) GetHeader() interfaces.SealableHeaderItf { return b.Header }

// CalculateHash hashes the header with the Hash field zeroed.
func (b *Block) CalculateHash() (common.Hash, error) {
	headerToHash := *b.Header
	headerToHash.Hash = common.Hash{}
	jsonData, err := json.Marshal(headerToHash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to marshal header: %w", err)
	}
	return crypto.Keccak256Hash(jsonData), nil
}

// NewBlock creates a block whose roll-up fields (roots, gas used, hash)
// are filled in later by sealing.
func NewBlock(parentHash common.Hash, number uint64, timestamp uint64, gasLimit uint64, baseFee *uint256.Int, coinbase common.Address) *Block {
	return &Block{
		Header: &BlockHeader{
			Number:     number,
			ParentHash: parentHash,
			Timestamp:  timestamp,
			Coinbase:   coinbase,
			GasLimit:   gasLimit,
			BaseFee:    new(uint256.Int).Set(baseFee),
		},
		Transactions: []*Transaction{},
		Receipts:     []*TransactionReceipt{},
	}
}

// TransactionsRoot hashes the ordered list of transaction hashes.
func TransactionsRoot(txs []*Transaction) common.Hash {
	data := make([]byte, 0, len(txs)*common.HashLength)
	for _, tx := range txs {
		data = append(data, tx.Hash.Bytes()...)
	}
	return crypto.Keccak256Hash(data)
}

// ReceiptsRoot hashes the ordered list of receipts.
func ReceiptsRoot(receipts []*TransactionReceipt) common.Hash {
	data := make([]byte, 0, len(receipts)*common.HashLength)
	for _, r := range receipts {
		data = append(data, r.hashContent()...)
	}
	return crypto.Keccak256Hash(data)
}

func (b *Block) ToJSON() ([]byte, error) {
	return json.Marshal(b)
}

func BlockFromJSON(data []byte) (*Block, error) {
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

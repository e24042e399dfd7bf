package interfaces

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BlockHeaderItf is the read-only view of a block header that consensus
// code needs. The canonical head snapshot and full headers both satisfy it.
type BlockHeaderItf interface {
	GetNumber() uint64
	GetParentHash() common.Hash
	GetTimestamp() uint64
	GetGasLimit() uint64
	GetGasUsed() uint64
	GetBaseFee() *uint256.Int
	GetHash() common.Hash
}

// SealableHeaderItf extends the read-only header with the setters the
// engine uses while finishing a built block.
type SealableHeaderItf interface {
	BlockHeaderItf
	SetStateRoot(root common.Hash)
	SetTxHash(hash common.Hash)
	SetReceiptHash(hash common.Hash)
	SetLogsBloom(bloom []byte)
	SetGasUsed(gas uint64)
	SetExtra(extra []byte)
	SetHash(hash common.Hash)
}

// SealableBlockItf is a block under construction, handed to Engine.Seal.
type SealableBlockItf interface {
	GetHeader() SealableHeaderItf
	CalculateHash() (common.Hash, error)
}

// ExecutionSummary carries the roll-up of executing a block's transactions,
// produced by the builder and stamped into the header by Engine.Seal.
type ExecutionSummary struct {
	StateRoot   common.Hash
	TxHash      common.Hash
	ReceiptHash common.Hash
	LogsBloom   []byte
	GasUsed     uint64
}

// Engine finishes blocks and validates headers. Header-derived values
// (gas limit, base fee) are produced here so that building and
// validation cannot disagree.
type Engine interface {
	// Seal stamps the execution summary into the block header and
	// computes the final block hash.
	Seal(block SealableBlockItf, summary ExecutionSummary) error

	// ValidateHeader checks a header against its parent.
	ValidateHeader(header BlockHeaderItf, parent BlockHeaderItf) error

	// NextGasLimit derives the gas limit for a child of parent.
	NextGasLimit(parent BlockHeaderItf) uint64

	// NextBaseFee derives the base fee for a child of parent.
	NextBaseFee(parent BlockHeaderItf) *uint256.Int
}

// ChainConfigItf exposes the chain parameters execution needs.
type ChainConfigItf interface {
	GetChainID() uint64
}

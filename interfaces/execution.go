package interfaces

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TransactionItf is the read-only transaction view the executor works with.
type TransactionItf interface {
	GetHash() common.Hash
	GetNonce() uint64
	GetFrom() common.Address
	GetTo() *common.Address
	GetValue() *uint256.Int
	GetGas() uint64
	GetGasFeeCap() *uint256.Int
	GetGasTipCap() *uint256.Int
	GetData() []byte
}

// RejectReason classifies why a transaction was rejected against the
// current state. Rejections are data, not failures of the engine.
type RejectReason int

const (
	NotRejected RejectReason = iota
	NonceTooLow
	NonceTooHigh
	InsufficientFunds
	IntrinsicGasTooLow
	FeeCapTooLow
	GasLimitExceeded
)

func (r RejectReason) String() string {
	switch r {
	case NotRejected:
		return "not rejected"
	case NonceTooLow:
		return "nonce too low"
	case NonceTooHigh:
		return "nonce too high"
	case InsufficientFunds:
		return "insufficient funds"
	case IntrinsicGasTooLow:
		return "intrinsic gas too low"
	case FeeCapTooLow:
		return "fee cap below base fee"
	case GasLimitExceeded:
		return "exceeds block gas limit"
	default:
		return "unknown"
	}
}

// Transient reports whether the rejection may clear on a later block
// without the transaction changing. Such transactions stay in the pool.
func (r RejectReason) Transient() bool {
	return r == NonceTooHigh || r == GasLimitExceeded
}

// Log is an event emitted during transaction execution.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
}

// StateAccessor is the mutable account state the executor runs against.
type StateAccessor interface {
	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int)
	SubBalance(addr common.Address, amount *uint256.Int) bool
	GetNonce(addr common.Address) uint64
	SetNonce(addr common.Address, nonce uint64)
	Snapshot() int
	RevertToSnapshot(id int)
}

// ExecutionContext bundles everything needed to execute one transaction.
type ExecutionContext struct {
	Transaction TransactionItf
	Header      BlockHeaderItf
	State       StateAccessor
	Coinbase    common.Address
	GasPool     uint64
}

// ExecutionResult reports the outcome of executing one transaction.
// Reject is NotRejected for transactions that made it into the block.
type ExecutionResult struct {
	GasUsed           uint64
	Status            uint64
	Reject            RejectReason
	EffectiveGasPrice *uint256.Int
	Logs              []*Log
	ReturnData        []byte
}

// VirtualMachine executes transactions. A non-nil error means the
// execution backend itself failed; transaction-level rejections are
// reported through ExecutionResult.Reject.
type VirtualMachine interface {
	ExecuteTransaction(ctx *ExecutionContext) (*ExecutionResult, error)
}

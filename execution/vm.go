package execution

import (
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"autoseal-node/interfaces"
	"autoseal-node/logger"
)

// VM is the transfer-only execution backend. It applies nonce, fee and
// balance rules and moves value; there is no bytecode interpreter. All
// transaction-level failures come back as rejections in the result, never
// as errors.
type VM struct {
	config interfaces.ChainConfigItf
}

func NewVM(config interfaces.ChainConfigItf) *VM {
	return &VM{config: config}
}

// IntrinsicGas is the gas charged before any execution: the flat cost
// plus per-byte calldata cost.
func IntrinsicGas(data []byte, contractCreation bool) uint64 {
	gas := params.TxGas
	if contractCreation {
		gas = params.TxGasContractCreation
	}
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

func reject(reason interfaces.RejectReason) (*interfaces.ExecutionResult, error) {
	return &interfaces.ExecutionResult{Reject: reason}, nil
}

// ExecuteTransaction applies one transaction to the context state.
func (vm *VM) ExecuteTransaction(ctx *interfaces.ExecutionContext) (*interfaces.ExecutionResult, error) {
	tx := ctx.Transaction
	st := ctx.State
	baseFee := ctx.Header.GetBaseFee()
	from := tx.GetFrom()

	if tx.GetGasFeeCap().Lt(baseFee) {
		return reject(interfaces.FeeCapTooLow)
	}

	nonce := st.GetNonce(from)
	if tx.GetNonce() < nonce {
		return reject(interfaces.NonceTooLow)
	}
	if tx.GetNonce() > nonce {
		return reject(interfaces.NonceTooHigh)
	}

	intrinsic := IntrinsicGas(tx.GetData(), tx.GetTo() == nil)
	if tx.GetGas() < intrinsic {
		return reject(interfaces.IntrinsicGasTooLow)
	}
	if tx.GetGas() > ctx.GasPool {
		return reject(interfaces.GasLimitExceeded)
	}

	maxCost := new(uint256.Int).Mul(tx.GetGasFeeCap(), uint256.NewInt(tx.GetGas()))
	maxCost.Add(maxCost, tx.GetValue())
	if st.GetBalance(from).Lt(maxCost) {
		return reject(interfaces.InsufficientFunds)
	}

	// Priority fee is capped by the headroom above the base fee.
	tip := new(uint256.Int).Sub(tx.GetGasFeeCap(), baseFee)
	if tip.Gt(tx.GetGasTipCap()) {
		tip.Set(tx.GetGasTipCap())
	}
	price := new(uint256.Int).Add(baseFee, tip)

	gasUsed := intrinsic
	fee := new(uint256.Int).Mul(price, uint256.NewInt(gasUsed))

	spend := new(uint256.Int).Add(fee, tx.GetValue())
	if !st.SubBalance(from, spend) {
		return reject(interfaces.InsufficientFunds)
	}
	if to := tx.GetTo(); to != nil {
		st.AddBalance(*to, tx.GetValue())
	}
	// The base fee portion is burned; only the tip goes to the coinbase.
	tipFee := new(uint256.Int).Mul(tip, uint256.NewInt(gasUsed))
	if !tipFee.IsZero() {
		st.AddBalance(ctx.Coinbase, tipFee)
	}
	st.SetNonce(from, nonce+1)

	logger.Debugf("Executed transaction %s: gasUsed=%d price=%v", tx.GetHash().Hex(), gasUsed, price)
	return &interfaces.ExecutionResult{
		GasUsed:           gasUsed,
		Status:            1,
		EffectiveGasPrice: price,
	}, nil
}

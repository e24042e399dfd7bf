package core

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"autoseal-node/crypto"
)

// Transaction is a dynamic-fee transaction. The sender address is carried
// directly; a local development chain has no reason to recover it from a
// signature, and the RPC surface accepts unsigned submissions.
type Transaction struct {
	Nonce     uint64          `json:"nonce"`
	GasTipCap *uint256.Int    `json:"maxPriorityFeePerGas"`
	GasFeeCap *uint256.Int    `json:"maxFeePerGas"`
	Gas       uint64          `json:"gas"`
	To        *common.Address `json:"to,omitempty"`
	Value     *uint256.Int    `json:"value"`
	Data      []byte          `json:"input,omitempty"`
	From      common.Address  `json:"from"`
	Hash      common.Hash     `json:"hash"`
}

func (tx *Transaction) GetHash() common.Hash        { return tx.Hash }
func (tx *Transaction) GetNonce() uint64            { return tx.Nonce }
func (tx *Transaction) GetFrom() common.Address     { return tx.From }
func (tx *Transaction) GetTo() *common.Address      { return tx.To }
func (tx *Transaction) GetValue() *uint256.Int      { return tx.Value }
func (tx *Transaction) GetGas() uint64              { return tx.Gas }
func (tx *Transaction) GetGasFeeCap() *uint256.Int  { return tx.GasFeeCap }
func (tx *Transaction) GetGasTipCap() *uint256.Int  { return tx.GasTipCap }
func (tx *Transaction) GetData() []byte             { return tx.Data }

// NewTransaction builds a transaction and computes its hash.
func NewTransaction(from common.Address, to *common.Address, nonce uint64, value *uint256.Int, gas uint64, gasFeeCap, gasTipCap *uint256.Int, data []byte) *Transaction {
	tx := &Transaction{
		Nonce:     nonce,
		GasTipCap: new(uint256.Int).Set(gasTipCap),
		GasFeeCap: new(uint256.Int).Set(gasFeeCap),
		Gas:       gas,
		To:        to,
		Value:     new(uint256.Int).Set(value),
		Data:      data,
		From:      from,
	}
	tx.Hash = tx.CalculateHash()
	return tx
}

// CalculateHash hashes the transaction content with the Hash field zeroed.
func (tx *Transaction) CalculateHash() common.Hash {
	txToHash := *tx
	txToHash.Hash = common.Hash{}
	jsonData, err := json.Marshal(txToHash)
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(jsonData)
}

// EffectiveTip is the priority fee per gas the sender actually pays on
// top of baseFee, capped by the tip cap.
func (tx *Transaction) EffectiveTip(baseFee *uint256.Int) *uint256.Int {
	if tx.GasFeeCap.Lt(baseFee) {
		return uint256.NewInt(0)
	}
	headroom := new(uint256.Int).Sub(tx.GasFeeCap, baseFee)
	if headroom.Lt(tx.GasTipCap) {
		return headroom
	}
	return new(uint256.Int).Set(tx.GasTipCap)
}

// Cost is the maximum spend of the transaction: gas * feeCap + value.
func (tx *Transaction) Cost() *uint256.Int {
	cost := new(uint256.Int).Mul(tx.GasFeeCap, uint256.NewInt(tx.Gas))
	return cost.Add(cost, tx.Value)
}

// SanityCheck rejects transactions that are malformed regardless of state.
func (tx *Transaction) SanityCheck() error {
	if tx.GasFeeCap == nil || tx.GasTipCap == nil || tx.Value == nil {
		return fmt.Errorf("transaction %s has nil fee or value fields", tx.Hash.Hex())
	}
	if tx.GasFeeCap.Lt(tx.GasTipCap) {
		return fmt.Errorf("transaction %s: fee cap %v below tip cap %v", tx.Hash.Hex(), tx.GasFeeCap, tx.GasTipCap)
	}
	if tx.Gas == 0 {
		return fmt.Errorf("transaction %s has zero gas limit", tx.Hash.Hex())
	}
	return nil
}

func (tx *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(tx)
}

func TransactionFromJSON(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

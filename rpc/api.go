package rpc

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"autoseal-node/core"
)

func parseAddress(v interface{}) (common.Address, error) {
	s, ok := v.(string)
	if !ok {
		return common.Address{}, fmt.Errorf("address parameter must be a string")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(v interface{}) (common.Hash, error) {
	s, ok := v.(string)
	if !ok {
		return common.Hash{}, fmt.Errorf("hash parameter must be a string")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q", s)
	}
	return common.BytesToHash(raw), nil
}

func parseQuantity(v interface{}) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("quantity parameter must be a string")
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

func parseBig(s string) (*uint256.Int, error) {
	val, err := uint256.FromHex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return val, nil
}

func (s *Server) ethBlockNumber() (interface{}, error) {
	return fmt.Sprintf("0x%x", s.blockchain.CurrentHead().Number), nil
}

func (s *Server) ethGasPrice() (interface{}, error) {
	return s.blockchain.CurrentHead().BaseFee.Hex(), nil
}

func (s *Server) headState() (stateReader, error) {
	head := s.blockchain.CurrentHead()
	return s.blockchain.StateAt(head.StateRoot)
}

type stateReader interface {
	GetBalance(addr common.Address) *uint256.Int
	GetNonce(addr common.Address) uint64
}

func (s *Server) ethGetBalance(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing address parameter")
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	st, err := s.headState()
	if err != nil {
		return nil, err
	}
	return st.GetBalance(addr).Hex(), nil
}

func (s *Server) ethGetTransactionCount(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing address parameter")
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	st, err := s.headState()
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("0x%x", st.GetNonce(addr)), nil
}

func (s *Server) ethGetBlockByNumber(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing block number parameter")
	}
	numStr, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("block number parameter must be a string")
	}
	var number uint64
	switch numStr {
	case "latest", "pending", "safe", "finalized":
		number = s.blockchain.CurrentHead().Number
	case "earliest":
		number = 0
	default:
		var err error
		number, err = strconv.ParseUint(strings.TrimPrefix(numStr, "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid block number %q", numStr)
		}
	}
	block, err := s.blockchain.GetBlockByNumber(number)
	if err != nil {
		return nil, nil
	}
	return s.formatBlock(block, fullTxParam(params)), nil
}

func (s *Server) ethGetBlockByHash(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing block hash parameter")
	}
	hash, err := parseHash(params[0])
	if err != nil {
		return nil, err
	}
	block, err := s.blockchain.GetBlockByHash(hash)
	if err != nil {
		return nil, nil
	}
	return s.formatBlock(block, fullTxParam(params)), nil
}

func fullTxParam(params []interface{}) bool {
	if len(params) > 1 {
		if v, ok := params[1].(bool); ok {
			return v
		}
	}
	return false
}

func (s *Server) ethGetTransactionByHash(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing transaction hash parameter")
	}
	hash, err := parseHash(params[0])
	if err != nil {
		return nil, err
	}
	if tx := s.mempool.Get(hash); tx != nil {
		return s.formatTransaction(tx, nil, 0, 0), nil
	}
	tx, block, index, err := s.blockchain.GetTransaction(hash)
	if err != nil {
		return nil, nil
	}
	return s.formatTransaction(tx, &block.Header.Hash, block.Header.Number, index), nil
}

func (s *Server) ethGetTransactionReceipt(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing transaction hash parameter")
	}
	hash, err := parseHash(params[0])
	if err != nil {
		return nil, err
	}
	receipt, err := s.blockchain.GetReceipt(hash)
	if err != nil {
		return nil, nil
	}
	return s.formatReceipt(receipt), nil
}

// ethSendTransaction accepts an unsigned transaction object. The sender
// is taken at face value; this is a development chain.
func (s *Server) ethSendTransaction(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing transaction parameter")
	}
	obj, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("transaction parameter must be an object")
	}

	from, err := parseAddress(obj["from"])
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}

	var to *common.Address
	if rawTo, ok := obj["to"]; ok && rawTo != nil {
		addr, err := parseAddress(rawTo)
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		to = &addr
	}

	value := uint256.NewInt(0)
	if raw, ok := obj["value"].(string); ok {
		if value, err = parseBig(raw); err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
	}

	gas := uint64(21000)
	if raw, ok := obj["gas"]; ok {
		if gas, err = parseQuantity(raw); err != nil {
			return nil, fmt.Errorf("gas: %w", err)
		}
	}

	head := s.blockchain.CurrentHead()
	feeCap := new(uint256.Int).Mul(head.BaseFee, uint256.NewInt(2))
	if raw, ok := obj["maxFeePerGas"].(string); ok {
		if feeCap, err = parseBig(raw); err != nil {
			return nil, fmt.Errorf("maxFeePerGas: %w", err)
		}
	}
	tipCap := uint256.NewInt(1)
	if raw, ok := obj["maxPriorityFeePerGas"].(string); ok {
		if tipCap, err = parseBig(raw); err != nil {
			return nil, fmt.Errorf("maxPriorityFeePerGas: %w", err)
		}
	}

	var nonce uint64
	if raw, ok := obj["nonce"]; ok {
		if nonce, err = parseQuantity(raw); err != nil {
			return nil, fmt.Errorf("nonce: %w", err)
		}
	} else {
		st, err := s.headState()
		if err != nil {
			return nil, err
		}
		nonce = st.GetNonce(from)
	}

	var data []byte
	if raw, ok := obj["data"].(string); ok {
		data, err = hex.DecodeString(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
	} else if raw, ok := obj["input"].(string); ok {
		data, err = hex.DecodeString(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("input: %w", err)
		}
	}

	tx := core.NewTransaction(from, to, nonce, value, gas, feeCap, tipCap, data)
	if err := s.mempool.AddTransaction(tx); err != nil {
		return nil, err
	}
	return tx.Hash.Hex(), nil
}

func (s *Server) formatBlock(block *core.Block, fullTx bool) map[string]interface{} {
	header := block.Header
	result := map[string]interface{}{
		"number":           fmt.Sprintf("0x%x", header.Number),
		"hash":             header.Hash.Hex(),
		"parentHash":       header.ParentHash.Hex(),
		"timestamp":        fmt.Sprintf("0x%x", header.Timestamp),
		"miner":            header.Coinbase.Hex(),
		"stateRoot":        header.StateRoot.Hex(),
		"transactionsRoot": header.TxHash.Hex(),
		"receiptsRoot":     header.ReceiptHash.Hex(),
		"logsBloom":        "0x" + hex.EncodeToString(header.LogsBloom),
		"gasLimit":         fmt.Sprintf("0x%x", header.GasLimit),
		"gasUsed":          fmt.Sprintf("0x%x", header.GasUsed),
		"baseFeePerGas":    header.BaseFee.Hex(),
		"extraData":        "0x" + hex.EncodeToString(header.Extra),
		"difficulty":       "0x1",
	}
	if td, err := s.blockchain.GetTotalDifficulty(header.Hash); err == nil {
		result["totalDifficulty"] = fmt.Sprintf("0x%x", td)
	}

	if fullTx {
		txs := make([]interface{}, 0, len(block.Transactions))
		for i, tx := range block.Transactions {
			txs = append(txs, s.formatTransaction(tx, &header.Hash, header.Number, uint64(i)))
		}
		result["transactions"] = txs
	} else {
		hashes := make([]string, 0, len(block.Transactions))
		for _, tx := range block.Transactions {
			hashes = append(hashes, tx.Hash.Hex())
		}
		result["transactions"] = hashes
	}
	return result
}

func (s *Server) formatTransaction(tx *core.Transaction, blockHash *common.Hash, blockNumber uint64, txIndex uint64) map[string]interface{} {
	result := map[string]interface{}{
		"hash":                 tx.Hash.Hex(),
		"nonce":                fmt.Sprintf("0x%x", tx.Nonce),
		"from":                 tx.From.Hex(),
		"value":                tx.Value.Hex(),
		"gas":                  fmt.Sprintf("0x%x", tx.Gas),
		"maxFeePerGas":         tx.GasFeeCap.Hex(),
		"maxPriorityFeePerGas": tx.GasTipCap.Hex(),
		"input":                "0x" + hex.EncodeToString(tx.Data),
		"type":                 "0x2",
	}
	if tx.To != nil {
		result["to"] = tx.To.Hex()
	} else {
		result["to"] = nil
	}
	if blockHash != nil {
		result["blockHash"] = blockHash.Hex()
		result["blockNumber"] = fmt.Sprintf("0x%x", blockNumber)
		result["transactionIndex"] = fmt.Sprintf("0x%x", txIndex)
	} else {
		result["blockHash"] = nil
		result["blockNumber"] = nil
		result["transactionIndex"] = nil
	}
	return result
}

func (s *Server) formatReceipt(receipt *core.TransactionReceipt) map[string]interface{} {
	logs := make([]map[string]interface{}, len(receipt.Logs))
	for i, log := range receipt.Logs {
		topics := make([]string, len(log.Topics))
		for j, t := range log.Topics {
			topics[j] = t.Hex()
		}
		logs[i] = map[string]interface{}{
			"address": log.Address.Hex(),
			"topics":  topics,
			"data":    "0x" + hex.EncodeToString(log.Data),
		}
	}

	result := map[string]interface{}{
		"transactionHash":   receipt.TxHash.Hex(),
		"transactionIndex":  fmt.Sprintf("0x%x", receipt.TxIndex),
		"blockHash":         receipt.BlockHash.Hex(),
		"blockNumber":       fmt.Sprintf("0x%x", receipt.BlockNumber),
		"from":              receipt.From.Hex(),
		"gasUsed":           fmt.Sprintf("0x%x", receipt.GasUsed),
		"cumulativeGasUsed": fmt.Sprintf("0x%x", receipt.CumulativeGasUsed),
		"effectiveGasPrice": receipt.EffectiveGasPrice.Hex(),
		"status":            fmt.Sprintf("0x%x", receipt.Status),
		"logs":              logs,
	}
	if receipt.To != nil {
		result["to"] = receipt.To.Hex()
	} else {
		result["to"] = nil
	}
	return result
}

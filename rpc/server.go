package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"autoseal-node/core"
	"autoseal-node/logger"
	"autoseal-node/metrics"
)

type Config struct {
	Host          string
	Port          int
	EnableMetrics bool
}

// Server exposes a JSON-RPC endpoint at / and a REST API under /api.
type Server struct {
	config     *Config
	blockchain *core.Blockchain
	mempool    *core.Mempool
	miner      *core.Miner
	server     *http.Server
	sealingAPI *SealingAPI
}

type JSONRPCRequest struct {
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Version string        `json:"jsonrpc"`
}

type JSONRPCResponse struct {
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	Version string        `json:"jsonrpc"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewServer(config *Config, blockchain *core.Blockchain, mempool *core.Mempool, miner *core.Miner) *Server {
	return &Server{
		config:     config,
		blockchain: blockchain,
		mempool:    mempool,
		miner:      miner,
		sealingAPI: NewSealingAPI(blockchain, mempool, miner),
	}
}

func (s *Server) Start() error {
	router := mux.NewRouter()

	router.HandleFunc("/", s.handleRPC).Methods("POST", "OPTIONS")
	router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api").Subrouter()

	sealing := api.PathPrefix("/sealing").Subrouter()
	sealing.HandleFunc("/status", s.sealingAPI.StatusHandler).Methods("GET", "OPTIONS")
	sealing.HandleFunc("/seal-block", s.sealingAPI.SealBlockHandler).Methods("POST", "OPTIONS")
	sealing.HandleFunc("/stats", s.sealingAPI.StatsHandler).Methods("GET", "OPTIONS")

	if s.config.EnableMetrics {
		api.HandleFunc("/metrics", s.handleMetrics).Methods("GET", "OPTIONS")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("RPC server error: %v", err)
		}
	}()

	logger.Infof("JSON-RPC server started on %s", addr)
	return nil
}

func (s *Server) Stop() {
	if s.server != nil {
		s.server.Close()
		logger.Info("JSON-RPC server stopped")
	}
}

func corsPreamble(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if corsPreamble(w, r, "GET") {
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"blockNumber": s.blockchain.CurrentHead().Number,
		"sealing":     s.miner.Status().String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if corsPreamble(w, r, "GET") {
		return
	}
	json.NewEncoder(w).Encode(metrics.GetMetrics().ToMap())
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if corsPreamble(w, r, "POST, OPTIONS") {
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, -32700, "Parse error")
		return
	}

	result, err := s.handleMethod(req.Method, req.Params)
	if err != nil {
		s.sendError(w, req.ID, -32603, err.Error())
		return
	}

	json.NewEncoder(w).Encode(JSONRPCResponse{
		ID:      req.ID,
		Result:  result,
		Version: "2.0",
	})
}

func (s *Server) handleMethod(method string, params []interface{}) (interface{}, error) {
	switch method {
	case "eth_blockNumber":
		return s.ethBlockNumber()
	case "eth_chainId":
		return fmt.Sprintf("0x%x", s.blockchain.Config().GetChainID()), nil
	case "eth_getBalance":
		return s.ethGetBalance(params)
	case "eth_getTransactionCount":
		return s.ethGetTransactionCount(params)
	case "eth_getBlockByNumber":
		return s.ethGetBlockByNumber(params)
	case "eth_getBlockByHash":
		return s.ethGetBlockByHash(params)
	case "eth_getTransactionByHash":
		return s.ethGetTransactionByHash(params)
	case "eth_getTransactionReceipt":
		return s.ethGetTransactionReceipt(params)
	case "eth_sendTransaction":
		return s.ethSendTransaction(params)
	case "eth_gasPrice":
		return s.ethGasPrice()
	case "eth_maxPriorityFeePerGas":
		return "0x1", nil
	case "net_version":
		return fmt.Sprintf("%d", s.blockchain.Config().GetChainID()), nil
	case "web3_clientVersion":
		return "autoseal-node/1.0.0", nil
	case "txpool_status":
		return map[string]interface{}{
			"pending": fmt.Sprintf("0x%x", s.mempool.Size()),
			"queued":  "0x0",
		}, nil
	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

func (s *Server) sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	json.NewEncoder(w).Encode(JSONRPCResponse{
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
		Version: "2.0",
	})
}

package rpc

import (
	"encoding/json"
	"net/http"

	"autoseal-node/core"
	"autoseal-node/metrics"
)

// SealingAPI is the REST surface for inspecting and driving the sealing
// engine.
type SealingAPI struct {
	blockchain *core.Blockchain
	mempool    *core.Mempool
	miner      *core.Miner
}

func NewSealingAPI(blockchain *core.Blockchain, mempool *core.Mempool, miner *core.Miner) *SealingAPI {
	return &SealingAPI{blockchain: blockchain, mempool: mempool, miner: miner}
}

func (api *SealingAPI) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if corsPreamble(w, r, "GET") {
		return
	}
	head := api.blockchain.CurrentHead()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      api.miner.Status().String(),
		"headNumber":  head.Number,
		"headHash":    head.Hash.Hex(),
		"baseFee":     head.BaseFee.Hex(),
		"poolPending": api.mempool.Size(),
	})
}

// SealBlockHandler requests one block on demand, regardless of seal mode.
func (api *SealingAPI) SealBlockHandler(w http.ResponseWriter, r *http.Request) {
	if corsPreamble(w, r, "POST, OPTIONS") {
		return
	}
	if err := api.miner.SealBlock(); err != nil {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"result": "seal requested"})
}

func (api *SealingAPI) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if corsPreamble(w, r, "GET") {
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sealing": api.miner.Status().String(),
		"metrics": metrics.GetMetrics().ToMap(),
	})
}

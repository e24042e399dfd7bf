package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"autoseal-node/logger"
)

// Check reports nil when its subsystem is healthy.
type Check func() error

// Server serves liveness and readiness probes on a dedicated port, kept
// separate from the RPC endpoint so probes survive RPC overload.
type Server struct {
	mu     sync.RWMutex
	checks map[string]Check
	server *http.Server
}

func NewServer() *Server {
	return &Server{checks: make(map[string]Check)}
}

// Register adds a named readiness check.
func (s *Server) Register(name string, check Check) {
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

func (s *Server) Start(host string, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Health server error: %v", err)
		}
	}()
	logger.Infof("Health server started on %s", addr)
	return nil
}

func (s *Server) Stop() {
	if s.server != nil {
		s.server.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s.mu.RLock()
	results := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}
	s.mu.RUnlock()

	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":  healthy,
		"checks": results,
	})
}

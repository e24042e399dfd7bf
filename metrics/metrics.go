package metrics

import (
	"sync"
	"sync/atomic"
)

// Metrics aggregates process-wide counters for the sealing engine. All
// methods are safe for concurrent use.
type Metrics struct {
	blocksSealed uint64
	txsIncluded  uint64
	txsRejected  uint64
	engineFaults uint64
	poolSize     int64
}

var (
	instance *Metrics
	once     sync.Once
)

// GetMetrics returns the process-wide metrics singleton.
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = &Metrics{}
	})
	return instance
}

func (m *Metrics) IncrementBlockCount() {
	atomic.AddUint64(&m.blocksSealed, 1)
}

func (m *Metrics) AddTransactionsIncluded(n int) {
	atomic.AddUint64(&m.txsIncluded, uint64(n))
}

func (m *Metrics) AddTransactionsRejected(n int) {
	atomic.AddUint64(&m.txsRejected, uint64(n))
}

func (m *Metrics) IncrementEngineFaults() {
	atomic.AddUint64(&m.engineFaults, 1)
}

func (m *Metrics) SetTransactionPoolSize(n int) {
	atomic.StoreInt64(&m.poolSize, int64(n))
}

func (m *Metrics) BlocksSealed() uint64 {
	return atomic.LoadUint64(&m.blocksSealed)
}

// ToMap renders the counters for the metrics HTTP endpoint.
func (m *Metrics) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"blocksSealed": atomic.LoadUint64(&m.blocksSealed),
		"txsIncluded":  atomic.LoadUint64(&m.txsIncluded),
		"txsRejected":  atomic.LoadUint64(&m.txsRejected),
		"engineFaults": atomic.LoadUint64(&m.engineFaults),
		"poolSize":     atomic.LoadInt64(&m.poolSize),
	}
}

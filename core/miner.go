package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/holiman/uint256"

	"autoseal-node/interfaces"
	"autoseal-node/logger"
	"autoseal-node/metrics"
	"autoseal-node/state"
)

// SealMode selects when the miner builds blocks.
type SealMode int

const (
	// InstantMode builds a block as soon as executable transactions arrive.
	InstantMode SealMode = iota
	// IntervalMode builds a block on a fixed timer, empty or not.
	IntervalMode
)

func (m SealMode) String() string {
	if m == IntervalMode {
		return "interval"
	}
	return "instant"
}

// MinerStatus is the externally visible state of the sealing loop.
type MinerStatus int32

const (
	StatusIdle MinerStatus = iota
	StatusBuilding
	StatusSubmitting
	StatusStopped
	StatusFaulted
)

func (s MinerStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBuilding:
		return "building"
	case StatusSubmitting:
		return "submitting"
	case StatusStopped:
		return "stopped"
	case StatusFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Event is published for every sealed block, and once with a non-nil Err
// when the miner halts on a fault.
type Event struct {
	Block *Block
	Err   error
}

// ChainBackend is the chain surface the miner builds against.
type ChainBackend interface {
	CurrentHead() *HeadSnapshot
	StateAt(root common.Hash) (*state.StateDB, error)
	InsertCanonical(block *Block, st *state.StateDB) error
}

// TxPool is the transaction source the miner drains.
type TxPool interface {
	Cursor(baseFee *uint256.Int, max int) *TxCursor
	ExecutableCount(baseFee *uint256.Int) int
	Notifications() <-chan struct{}
	Remove(hash common.Hash)
}

// MinerConfig configures the sealing loop.
type MinerConfig struct {
	Mode              SealMode
	Interval          time.Duration
	Coinbase          common.Address
	MaxBlockTxs       int
	AllowEmptyInstant bool
}

// Miner runs the sealing loop: one block in flight at a time, triggers
// between cycles coalesce, and any fault halts the loop permanently.
type Miner struct {
	cfg    MinerConfig
	chain  ChainBackend
	pool   TxPool
	engine interfaces.Engine
	vm     interfaces.VirtualMachine

	status  int32
	trigger chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex

	feed   event.Feed
	events chan Event

	// now is stubbed in tests.
	now func() uint64
}

func NewMiner(cfg MinerConfig, chain ChainBackend, pool TxPool, engine interfaces.Engine, vm interfaces.VirtualMachine) *Miner {
	if cfg.Mode == IntervalMode && cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Miner{
		cfg:     cfg,
		chain:   chain,
		pool:    pool,
		engine:  engine,
		vm:      vm,
		status:  int32(StatusStopped),
		trigger: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		events:  make(chan Event, 32),
		now:     func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SubscribeEvents delivers sealed-block and fault events to ch. Delivery
// happens on a dispatcher goroutine; a subscriber that stops draining
// never blocks the sealing loop, it only backs up the dispatcher.
func (m *Miner) SubscribeEvents(ch chan<- Event) event.Subscription {
	return m.feed.Subscribe(ch)
}

func (m *Miner) Status() MinerStatus {
	return MinerStatus(atomic.LoadInt32(&m.status))
}

func (m *Miner) setStatus(s MinerStatus) {
	atomic.StoreInt32(&m.status, int32(s))
}

// Start launches the sealing loop. Restarting a stopped or faulted miner
// is not supported.
func (m *Miner) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("sealing engine already started")
	}
	m.started = true
	m.setStatus(StatusIdle)
	m.wg.Add(1)
	go m.loop()
	go m.dispatch()
	logger.Infof("Sealing engine started in %s mode", m.cfg.Mode)
	return nil
}

// Stop asks the loop to exit at the next cycle boundary and waits for it.
// A cycle that already reached submission completes before the loop exits.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	select {
	case <-m.quit:
	default:
		close(m.quit)
	}
	m.mu.Unlock()
	m.wg.Wait()
	if m.Status() != StatusFaulted {
		m.setStatus(StatusStopped)
	}
	logger.Info("Sealing engine stopped")
}

// SealBlock requests one block immediately, regardless of mode. Requests
// arriving while a block is in flight coalesce into a single extra cycle.
func (m *Miner) SealBlock() error {
	if s := m.Status(); s == StatusStopped || s == StatusFaulted {
		return ErrMinerStopped
	}
	select {
	case m.trigger <- struct{}{}:
	default:
	}
	return nil
}

// dispatch forwards published events to subscribers. It runs outside the
// sealing loop so a stuck feed.Send cannot stall block production or
// deadlock Stop; it is not waited on at shutdown.
func (m *Miner) dispatch() {
	for {
		select {
		case ev := <-m.events:
			m.feed.Send(ev)
		case <-m.quit:
			return
		}
	}
}

// publish hands an event to the dispatcher without blocking the loop.
func (m *Miner) publish(ev Event) {
	select {
	case m.events <- ev:
	default:
		logger.Warningf("Dropping sealing event: subscriber backlog full")
	}
}

func (m *Miner) loop() {
	defer m.wg.Done()

	var tick <-chan time.Time
	if m.cfg.Mode == IntervalMode {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-m.quit:
			return
		default:
		}

		select {
		case <-m.quit:
			return
		case <-m.pool.Notifications():
			if m.cfg.Mode != InstantMode {
				continue
			}
			if !m.runCycle(m.cfg.AllowEmptyInstant) {
				return
			}
		case <-tick:
			if !m.runCycle(true) {
				return
			}
		case <-m.trigger:
			if !m.runCycle(true) {
				return
			}
		}
	}
}

// runCycle builds, seals and submits one block. It returns false when the
// loop must halt because of a fault.
func (m *Miner) runCycle(allowEmpty bool) bool {
	m.setStatus(StatusBuilding)
	defer func() {
		if m.Status() != StatusFaulted {
			m.setStatus(StatusIdle)
		}
	}()

	block, st, evict, err := m.buildBlock(allowEmpty)
	if err != nil {
		m.fault(err)
		return false
	}
	if block == nil {
		// Nothing executable and empty blocks not wanted this cycle.
		return true
	}

	m.setStatus(StatusSubmitting)
	if err := m.chain.InsertCanonical(block, st); err != nil {
		m.fault(fmt.Errorf("failed to submit self-built block %d: %w", block.Header.Number, err))
		return false
	}

	for _, hash := range evict {
		m.pool.Remove(hash)
	}
	if len(evict) > 0 {
		metrics.GetMetrics().AddTransactionsRejected(len(evict))
	}

	m.publish(Event{Block: block})

	// Leftover executable transactions (e.g. past a per-block cap) get
	// another cycle immediately instead of waiting for the next arrival.
	if m.cfg.Mode == InstantMode {
		head := m.chain.CurrentHead()
		if m.pool.ExecutableCount(m.engine.NextBaseFee(head)) > 0 {
			select {
			case m.trigger <- struct{}{}:
			default:
			}
		}
	}
	return true
}

func (m *Miner) fault(err error) {
	m.setStatus(StatusFaulted)
	metrics.GetMetrics().IncrementEngineFaults()
	logger.Errorf("Sealing engine halted: %v", err)
	m.publish(Event{Err: err})
}

// buildBlock executes pool transactions against the head state and
// returns the sealed block, the state to commit alongside it, and the
// hashes of permanently rejected transactions to evict. A nil block with
// nil error means the cycle produced nothing.
func (m *Miner) buildBlock(allowEmpty bool) (*Block, *state.StateDB, []common.Hash, error) {
	head := m.chain.CurrentHead()

	gasLimit := m.engine.NextGasLimit(head)
	baseFee := m.engine.NextBaseFee(head)

	if !allowEmpty && m.pool.ExecutableCount(baseFee) == 0 {
		return nil, nil, nil, nil
	}

	st, err := m.chain.StateAt(head.StateRoot)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: state for head %d unavailable: %v", ErrStorage, head.Number, err)
	}

	timestamp := m.now()
	if timestamp <= head.Timestamp {
		timestamp = head.Timestamp + 1
	}

	block := NewBlock(head.Hash, head.Number+1, timestamp, gasLimit, baseFee, m.cfg.Coinbase)

	var (
		cursor  = m.pool.Cursor(baseFee, m.cfg.MaxBlockTxs)
		gasPool = gasLimit
		gasUsed uint64
		evict   []common.Hash
		txIndex uint64
	)
	for {
		tx := cursor.Next()
		if tx == nil {
			break
		}
		if tx.Gas > gasPool {
			// Not enough room left; the transaction may fit next block.
			cursor.SkipSender(tx.From)
			continue
		}

		snap := st.Snapshot()
		result, execErr := m.vm.ExecuteTransaction(&interfaces.ExecutionContext{
			Transaction: tx,
			Header:      block.Header,
			State:       st,
			Coinbase:    m.cfg.Coinbase,
			GasPool:     gasPool,
		})
		if execErr != nil {
			return nil, nil, nil, fmt.Errorf("%w: transaction %s: %v", ErrExecution, tx.Hash.Hex(), execErr)
		}
		if result.Reject != interfaces.NotRejected {
			st.RevertToSnapshot(snap)
			logger.LogTransactionEvent(tx.Hash.Hex(), tx.From.Hex(), "reject", result.Reject.String())
			// Later nonces of this sender cannot execute either.
			cursor.SkipSender(tx.From)
			if !result.Reject.Transient() {
				evict = append(evict, tx.Hash)
			}
			continue
		}

		gasPool -= result.GasUsed
		gasUsed += result.GasUsed
		block.Transactions = append(block.Transactions, tx)
		block.Receipts = append(block.Receipts, &TransactionReceipt{
			TxHash:            tx.Hash,
			TxIndex:           txIndex,
			BlockNumber:       block.Header.Number,
			From:              tx.From,
			To:                tx.To,
			GasUsed:           result.GasUsed,
			CumulativeGasUsed: gasUsed,
			EffectiveGasPrice: result.EffectiveGasPrice,
			Status:            result.Status,
			Logs:              result.Logs,
		})
		txIndex++
	}

	if len(block.Transactions) == 0 && !allowEmpty {
		return nil, nil, evictOnly(evict, m.pool), nil
	}

	summary := interfaces.ExecutionSummary{
		StateRoot:   st.Root(),
		TxHash:      TransactionsRoot(block.Transactions),
		ReceiptHash: ReceiptsRoot(block.Receipts),
		LogsBloom:   CreateBloom(block.Receipts),
		GasUsed:     gasUsed,
	}
	if err := m.engine.Seal(block, summary); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	// A self-built block failing validation is a builder bug, not bad input.
	if err := m.engine.ValidateHeader(block.Header, head); err != nil {
		return nil, nil, nil, fmt.Errorf("self-built block %d fails validation: %w", block.Header.Number, err)
	}

	for _, receipt := range block.Receipts {
		receipt.BlockHash = block.Header.Hash
	}
	return block, st, evict, nil
}

// evictOnly removes permanently rejected transactions even when the cycle
// produced no block, so they do not re-trigger instant mode forever.
func evictOnly(evict []common.Hash, pool TxPool) []common.Hash {
	for _, hash := range evict {
		pool.Remove(hash)
	}
	if len(evict) > 0 {
		metrics.GetMetrics().AddTransactionsRejected(len(evict))
	}
	return nil
}

package core

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"autoseal-node/logger"
	"autoseal-node/metrics"
)

// Mempool holds pending transactions, indexed by hash and grouped per
// sender in nonce order. Additions wake the sealing engine through the
// notification channel.
type Mempool struct {
	mu       sync.RWMutex
	all      map[common.Hash]*Transaction
	bySender map[common.Address][]*Transaction
	maxSize  int
	notify   chan struct{}
}

func NewMempool(maxSize int) *Mempool {
	return &Mempool{
		all:      make(map[common.Hash]*Transaction),
		bySender: make(map[common.Address][]*Transaction),
		maxSize:  maxSize,
		notify:   make(chan struct{}, 1),
	}
}

// Notifications signals after each successful addition. The channel has a
// buffer of one; multiple additions between reads coalesce into one wakeup.
func (mp *Mempool) Notifications() <-chan struct{} {
	return mp.notify
}

// AddTransaction validates and inserts a transaction. A transaction with
// the same sender and nonce as a pending one replaces it only when it
// pays a strictly higher fee cap.
func (mp *Mempool) AddTransaction(tx *Transaction) error {
	if err := tx.SanityCheck(); err != nil {
		return err
	}

	mp.mu.Lock()
	if _, ok := mp.all[tx.Hash]; ok {
		mp.mu.Unlock()
		return ErrKnownTransaction
	}
	if len(mp.all) >= mp.maxSize {
		mp.mu.Unlock()
		return ErrPoolFull
	}

	queue := mp.bySender[tx.From]
	replaced := false
	for i, pending := range queue {
		if pending.Nonce == tx.Nonce {
			if !tx.GasFeeCap.Gt(pending.GasFeeCap) {
				mp.mu.Unlock()
				return ErrKnownTransaction
			}
			delete(mp.all, pending.Hash)
			queue[i] = tx
			replaced = true
			break
		}
	}
	if !replaced {
		queue = append(queue, tx)
		sort.Slice(queue, func(i, j int) bool { return queue[i].Nonce < queue[j].Nonce })
	}
	mp.bySender[tx.From] = queue
	mp.all[tx.Hash] = tx
	size := len(mp.all)
	mp.mu.Unlock()

	metrics.GetMetrics().SetTransactionPoolSize(size)
	logger.LogTransactionEvent(tx.Hash.Hex(), tx.From.Hex(), "add", "pending")

	select {
	case mp.notify <- struct{}{}:
	default:
	}
	return nil
}

// Remove drops a transaction from the pool, if present.
func (mp *Mempool) Remove(hash common.Hash) {
	mp.mu.Lock()
	tx, ok := mp.all[hash]
	if ok {
		delete(mp.all, hash)
		queue := mp.bySender[tx.From]
		for i, pending := range queue {
			if pending.Hash == hash {
				mp.bySender[tx.From] = append(queue[:i], queue[i+1:]...)
				break
			}
		}
		if len(mp.bySender[tx.From]) == 0 {
			delete(mp.bySender, tx.From)
		}
	}
	size := len(mp.all)
	mp.mu.Unlock()
	metrics.GetMetrics().SetTransactionPoolSize(size)
}

func (mp *Mempool) Get(hash common.Hash) *Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.all[hash]
}

func (mp *Mempool) Size() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return len(mp.all)
}

// Pending returns all pooled transactions in no particular order.
func (mp *Mempool) Pending() []*Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	txs := make([]*Transaction, 0, len(mp.all))
	for _, tx := range mp.all {
		txs = append(txs, tx)
	}
	return txs
}

// ExecutableCount reports how many pooled transactions could pay the
// given base fee. Senders are cut off at their first unaffordable nonce.
func (mp *Mempool) ExecutableCount(baseFee *uint256.Int) int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	count := 0
	for _, queue := range mp.bySender {
		for _, tx := range queue {
			if tx.GasFeeCap.Lt(baseFee) {
				break
			}
			count++
		}
	}
	return count
}

// senderQueue is one sender's fee-eligible transactions in nonce order.
type senderQueue struct {
	txs []*Transaction
	tip *uint256.Int
}

type cursorHeap []*senderQueue

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].tip.Gt(h[j].tip) }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*senderQueue)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TxCursor yields transactions ordered by effective tip, respecting
// per-sender nonce order. It works on a snapshot; concurrent pool
// mutations do not affect an open cursor.
type TxCursor struct {
	heap    cursorHeap
	baseFee *uint256.Int
	max     int
	yielded int
}

// Cursor snapshots the pool into a priced, nonce-ordered stream of at
// most max transactions that can pay baseFee. max <= 0 means unbounded.
func (mp *Mempool) Cursor(baseFee *uint256.Int, max int) *TxCursor {
	mp.mu.RLock()
	h := make(cursorHeap, 0, len(mp.bySender))
	for _, queue := range mp.bySender {
		eligible := make([]*Transaction, 0, len(queue))
		for _, tx := range queue {
			if tx.GasFeeCap.Lt(baseFee) {
				break
			}
			eligible = append(eligible, tx)
		}
		if len(eligible) > 0 {
			h = append(h, &senderQueue{
				txs: eligible,
				tip: eligible[0].EffectiveTip(baseFee),
			})
		}
	}
	mp.mu.RUnlock()

	heap.Init(&h)
	return &TxCursor{heap: h, baseFee: baseFee, max: max}
}

// Next returns the best remaining transaction, or nil when exhausted.
func (c *TxCursor) Next() *Transaction {
	if c.max > 0 && c.yielded >= c.max {
		return nil
	}
	if c.heap.Len() == 0 {
		return nil
	}
	best := c.heap[0]
	tx := best.txs[0]
	best.txs = best.txs[1:]
	if len(best.txs) == 0 {
		heap.Pop(&c.heap)
	} else {
		best.tip = best.txs[0].EffectiveTip(c.baseFee)
		heap.Fix(&c.heap, 0)
	}
	c.yielded++
	return tx
}

// SkipSender drops the remaining queued transactions of tx's sender from
// the cursor. Used when a nonce gap makes the rest unexecutable this block.
func (c *TxCursor) SkipSender(from common.Address) {
	for i, q := range c.heap {
		if len(q.txs) > 0 && q.txs[0].From == from {
			heap.Remove(&c.heap, i)
			return
		}
	}
}

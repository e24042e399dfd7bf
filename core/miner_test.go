package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoseal-node/execution"
	"autoseal-node/state"
)

func newTestMiner(t *testing.T, cfg MinerConfig) (*Miner, *Blockchain, *Mempool, chan Event) {
	t.Helper()
	bc, engine := newTestChain(t, nil)
	mp := NewMempool(64)
	bc.SetMempool(mp)
	vm := execution.NewVM(bc.Config())

	miner := NewMiner(cfg, bc, mp, engine, vm)
	events := make(chan Event, 16)
	sub := miner.SubscribeEvents(events)
	t.Cleanup(sub.Unsubscribe)
	t.Cleanup(miner.Stop)
	return miner, bc, mp, events
}

func waitEvent(t *testing.T, events chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sealing event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, events chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected sealing event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// A funded transfer paying twice the base fee.
func fundedTx(nonce uint64) *Transaction {
	return NewTransaction(sender1, &dest, nonce, uint256.NewInt(1000), 21000,
		uint256.NewInt(2_000_000_000), uint256.NewInt(1), nil)
}

func TestInstantModeSealsOnArrival(t *testing.T) {
	miner, bc, mp, events := newTestMiner(t, MinerConfig{Mode: InstantMode})
	require.NoError(t, miner.Start())

	tx := fundedTx(0)
	require.NoError(t, mp.AddTransaction(tx))

	ev := waitEvent(t, events)
	require.NoError(t, ev.Err)
	require.Len(t, ev.Block.Transactions, 1)
	assert.Equal(t, tx.Hash, ev.Block.Transactions[0].Hash)
	assert.Equal(t, uint64(21000), ev.Block.Header.GasUsed)

	head := bc.CurrentHead()
	assert.Equal(t, uint64(1), head.Number)
	assert.Equal(t, ev.Block.Header.Hash, head.Hash)
	assert.Equal(t, 0, mp.Size(), "included transaction pruned from pool")

	st, err := bc.StateAt(head.StateRoot)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), st.GetBalance(dest).Uint64())
	assert.Equal(t, uint64(1), st.GetNonce(sender1))
}

func TestInstantModeSkipsUnexecutable(t *testing.T) {
	miner, bc, mp, events := newTestMiner(t, MinerConfig{Mode: InstantMode})
	require.NoError(t, miner.Start())

	// Fee cap below the base fee: wakes the loop but yields no block.
	cheap := NewTransaction(sender1, &dest, 0, uint256.NewInt(0), 21000,
		uint256.NewInt(1), uint256.NewInt(1), nil)
	require.NoError(t, mp.AddTransaction(cheap))

	assertNoEvent(t, events)
	assert.Equal(t, uint64(0), bc.CurrentHead().Number)
}

func TestIntervalModeSealsEmptyBlocks(t *testing.T) {
	miner, bc, _, events := newTestMiner(t, MinerConfig{
		Mode:     IntervalMode,
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, miner.Start())

	ev := waitEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Empty(t, ev.Block.Transactions)
	assert.Equal(t, uint64(0), ev.Block.Header.GasUsed)

	// Base fee drifts down after an empty block.
	second := waitEvent(t, events)
	require.NoError(t, second.Err)
	assert.True(t, second.Block.Header.BaseFee.Lt(ev.Block.Header.BaseFee))
	assert.True(t, bc.CurrentHead().Number >= 2)
}

func TestSealBlockOnDemand(t *testing.T) {
	miner, bc, _, events := newTestMiner(t, MinerConfig{Mode: InstantMode})
	require.NoError(t, miner.Start())

	// Manual trigger seals even with an empty pool.
	require.NoError(t, miner.SealBlock())
	ev := waitEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Empty(t, ev.Block.Transactions)
	assert.Equal(t, uint64(1), bc.CurrentHead().Number)
}

func TestRejectionHandling(t *testing.T) {
	miner, _, mp, events := newTestMiner(t, MinerConfig{Mode: InstantMode})

	valid := fundedTx(0)
	gapped := fundedTx(2) // nonce gap after valid executes
	broke := NewTransaction(sender2, &dest, 0, uint256.NewInt(1000), 21000,
		uint256.NewInt(2_000_000_000), uint256.NewInt(1), nil)

	require.NoError(t, mp.AddTransaction(valid))
	require.NoError(t, mp.AddTransaction(gapped))
	require.NoError(t, mp.AddTransaction(broke))

	require.NoError(t, miner.Start())
	ev := waitEvent(t, events)
	require.NoError(t, ev.Err)

	require.Len(t, ev.Block.Transactions, 1)
	assert.Equal(t, valid.Hash, ev.Block.Transactions[0].Hash)

	// The nonce-gapped transaction may clear later and stays pooled; the
	// unfunded one is evicted for good.
	assert.NotNil(t, mp.Get(gapped.Hash))
	assert.Nil(t, mp.Get(broke.Hash))
	assert.Equal(t, 1, mp.Size())
}

func TestMaxBlockTxsCap(t *testing.T) {
	miner, _, mp, events := newTestMiner(t, MinerConfig{Mode: InstantMode, MaxBlockTxs: 2})

	for i := uint64(0); i < 4; i++ {
		require.NoError(t, mp.AddTransaction(fundedTx(i)))
	}
	require.NoError(t, miner.Start())

	ev := waitEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Len(t, ev.Block.Transactions, 2)

	// The remaining two arrive in the next cycle.
	second := waitEvent(t, events)
	require.NoError(t, second.Err)
	assert.Len(t, second.Block.Transactions, 2)
	assert.Equal(t, 0, mp.Size())
}

func TestTimestampClampedToParent(t *testing.T) {
	miner, bc, _, events := newTestMiner(t, MinerConfig{Mode: InstantMode})
	miner.now = func() uint64 { return 0 } // wall clock behind the chain

	require.NoError(t, miner.Start())
	require.NoError(t, miner.SealBlock())

	ev := waitEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, bc.CurrentHead().Timestamp, ev.Block.Header.Timestamp)
	assert.Equal(t, uint64(1001), ev.Block.Header.Timestamp, "genesis timestamp + 1")
}

func TestStopWithStalledSubscriber(t *testing.T) {
	miner, _, _, _ := newTestMiner(t, MinerConfig{
		Mode:     IntervalMode,
		Interval: 5 * time.Millisecond,
	})

	// A subscriber that never drains must not stall the loop or Stop.
	stalled := make(chan Event)
	sub := miner.SubscribeEvents(stalled)
	defer sub.Unsubscribe()

	require.NoError(t, miner.Start())
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		miner.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return with a stalled subscriber")
	}
}

// slowChain parks canonical insertion until released so a shutdown can be
// requested while a block is mid-submit.
type slowChain struct {
	*Blockchain
	entered chan struct{}
	release chan struct{}
}

func (s *slowChain) InsertCanonical(block *Block, st *state.StateDB) error {
	close(s.entered)
	<-s.release
	return s.Blockchain.InsertCanonical(block, st)
}

func TestStopDuringSubmitCompletesInsert(t *testing.T) {
	bc, engine := newTestChain(t, nil)
	mp := NewMempool(64)
	bc.SetMempool(mp)
	vm := execution.NewVM(bc.Config())

	chain := &slowChain{Blockchain: bc, entered: make(chan struct{}), release: make(chan struct{})}
	miner := NewMiner(MinerConfig{Mode: InstantMode}, chain, mp, engine, vm)
	defer miner.Stop()

	require.NoError(t, miner.Start())
	require.NoError(t, miner.SealBlock())
	select {
	case <-chain.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never started")
	}

	stopped := make(chan struct{})
	go func() {
		miner.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a block was mid-submit")
	case <-time.After(50 * time.Millisecond):
	}

	// Releasing the insert lets the cycle finish; the head reflects the
	// full insertion, never a partial one.
	close(chain.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after submission completed")
	}
	assert.Equal(t, uint64(1), bc.CurrentHead().Number)
	assert.Equal(t, StatusStopped, miner.Status())
}

type faultyChain struct {
	ChainBackend
}

func (f *faultyChain) InsertCanonical(block *Block, st *state.StateDB) error {
	return fmt.Errorf("%w: write failed", ErrStorage)
}

func TestStorageFaultHaltsMiner(t *testing.T) {
	bc, engine := newTestChain(t, nil)
	mp := NewMempool(64)
	vm := execution.NewVM(bc.Config())

	miner := NewMiner(MinerConfig{Mode: InstantMode}, &faultyChain{bc}, mp, engine, vm)
	events := make(chan Event, 16)
	sub := miner.SubscribeEvents(events)
	defer sub.Unsubscribe()
	defer miner.Stop()

	require.NoError(t, miner.Start())
	require.NoError(t, miner.SealBlock())

	ev := waitEvent(t, events)
	require.ErrorIs(t, ev.Err, ErrStorage)
	assert.Nil(t, ev.Block)

	// The fault is terminal.
	assert.Equal(t, StatusFaulted, miner.Status())
	assert.ErrorIs(t, miner.SealBlock(), ErrMinerStopped)
	assert.Equal(t, uint64(0), bc.CurrentHead().Number)
}

func TestStopIsIdempotent(t *testing.T) {
	miner, _, _, _ := newTestMiner(t, MinerConfig{Mode: InstantMode})
	require.NoError(t, miner.Start())

	miner.Stop()
	miner.Stop()
	assert.Equal(t, StatusStopped, miner.Status())
	assert.ErrorIs(t, miner.SealBlock(), ErrMinerStopped)
	assert.Error(t, miner.Start(), "a stopped miner does not restart")
}

func TestTriggersCoalesce(t *testing.T) {
	miner, _, _, _ := newTestMiner(t, MinerConfig{Mode: InstantMode})

	// Many requests before the loop runs collapse into one pending trigger.
	require.NoError(t, miner.Start())
	for i := 0; i < 5; i++ {
		require.NoError(t, miner.SealBlock())
	}
	select {
	case <-miner.trigger:
	default:
		// The loop may already have consumed it.
	}
	select {
	case <-miner.trigger:
		t.Fatal("more than one trigger was queued")
	default:
	}
}

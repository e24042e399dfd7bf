package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender1 = common.HexToAddress("0x1000000000000000000000000000000000000001")
	sender2 = common.HexToAddress("0x2000000000000000000000000000000000000002")
	dest    = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func poolTx(from common.Address, nonce uint64, feeCap, tipCap uint64) *Transaction {
	return NewTransaction(from, &dest, nonce, uint256.NewInt(0), 21000,
		uint256.NewInt(feeCap), uint256.NewInt(tipCap), nil)
}

func TestAddAndRemove(t *testing.T) {
	mp := NewMempool(10)

	tx := poolTx(sender1, 0, 100, 1)
	require.NoError(t, mp.AddTransaction(tx))
	assert.Equal(t, 1, mp.Size())
	assert.Same(t, tx, mp.Get(tx.Hash))

	assert.ErrorIs(t, mp.AddTransaction(tx), ErrKnownTransaction)

	mp.Remove(tx.Hash)
	assert.Equal(t, 0, mp.Size())
	assert.Nil(t, mp.Get(tx.Hash))
}

func TestAddRejectsMalformed(t *testing.T) {
	mp := NewMempool(10)

	bad := poolTx(sender1, 0, 10, 20) // tip cap above fee cap
	assert.Error(t, mp.AddTransaction(bad))

	zeroGas := NewTransaction(sender1, &dest, 0, uint256.NewInt(0), 0,
		uint256.NewInt(100), uint256.NewInt(1), nil)
	assert.Error(t, mp.AddTransaction(zeroGas))
}

func TestPoolCapacity(t *testing.T) {
	mp := NewMempool(2)
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 0, 100, 1)))
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 1, 100, 1)))
	assert.ErrorIs(t, mp.AddTransaction(poolTx(sender1, 2, 100, 1)), ErrPoolFull)
}

func TestSameNonceReplacement(t *testing.T) {
	mp := NewMempool(10)

	cheap := poolTx(sender1, 0, 100, 1)
	require.NoError(t, mp.AddTransaction(cheap))

	// Equal fee cap does not replace.
	assert.ErrorIs(t, mp.AddTransaction(poolTx(sender1, 0, 100, 2)), ErrKnownTransaction)

	pricier := poolTx(sender1, 0, 150, 1)
	require.NoError(t, mp.AddTransaction(pricier))
	assert.Equal(t, 1, mp.Size())
	assert.Nil(t, mp.Get(cheap.Hash))
	assert.Same(t, pricier, mp.Get(pricier.Hash))
}

func TestNotificationsCoalesce(t *testing.T) {
	mp := NewMempool(10)

	require.NoError(t, mp.AddTransaction(poolTx(sender1, 0, 100, 1)))
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 1, 100, 1)))
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 2, 100, 1)))

	<-mp.Notifications()
	select {
	case <-mp.Notifications():
		t.Fatal("expected a single coalesced notification")
	default:
	}
}

func TestExecutableCount(t *testing.T) {
	mp := NewMempool(10)

	require.NoError(t, mp.AddTransaction(poolTx(sender1, 0, 100, 1)))
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 1, 50, 1)))
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 2, 100, 1)))
	require.NoError(t, mp.AddTransaction(poolTx(sender2, 0, 100, 1)))

	// sender1 is cut off at nonce 1 (fee cap 50 below base fee 80), so
	// its nonce 2 cannot count either.
	assert.Equal(t, 2, mp.ExecutableCount(uint256.NewInt(80)))
	assert.Equal(t, 4, mp.ExecutableCount(uint256.NewInt(10)))
	assert.Equal(t, 0, mp.ExecutableCount(uint256.NewInt(200)))
}

func TestCursorOrdersByTipAndNonce(t *testing.T) {
	mp := NewMempool(10)

	a0 := poolTx(sender1, 0, 200, 50)
	a1 := poolTx(sender1, 1, 200, 90)
	b0 := poolTx(sender2, 0, 200, 70)
	require.NoError(t, mp.AddTransaction(a1))
	require.NoError(t, mp.AddTransaction(b0))
	require.NoError(t, mp.AddTransaction(a0))

	cursor := mp.Cursor(uint256.NewInt(100), 0)

	// b0 pays the best head tip; a0 must still come before a1.
	assert.Same(t, b0, cursor.Next())
	assert.Same(t, a0, cursor.Next())
	assert.Same(t, a1, cursor.Next())
	assert.Nil(t, cursor.Next())
}

func TestCursorRespectsMax(t *testing.T) {
	mp := NewMempool(10)
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 0, 100, 1)))
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 1, 100, 1)))
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 2, 100, 1)))

	cursor := mp.Cursor(uint256.NewInt(10), 2)
	assert.NotNil(t, cursor.Next())
	assert.NotNil(t, cursor.Next())
	assert.Nil(t, cursor.Next())
}

func TestCursorSkipSender(t *testing.T) {
	mp := NewMempool(10)
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 0, 100, 5)))
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 1, 100, 5)))
	b0 := poolTx(sender2, 0, 100, 1)
	require.NoError(t, mp.AddTransaction(b0))

	cursor := mp.Cursor(uint256.NewInt(10), 0)
	cursor.SkipSender(sender1)
	assert.Same(t, b0, cursor.Next())
	assert.Nil(t, cursor.Next())
}

func TestCursorSnapshotIsolation(t *testing.T) {
	mp := NewMempool(10)
	require.NoError(t, mp.AddTransaction(poolTx(sender1, 0, 100, 1)))

	cursor := mp.Cursor(uint256.NewInt(10), 0)
	require.NoError(t, mp.AddTransaction(poolTx(sender2, 0, 100, 9)))

	assert.NotNil(t, cursor.Next())
	assert.Nil(t, cursor.Next(), "additions after cursor creation are not visible")
}

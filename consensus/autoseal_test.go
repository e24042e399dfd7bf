package consensus

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoseal-node/interfaces"
)

type testHeader struct {
	number     uint64
	parentHash common.Hash
	timestamp  uint64
	gasLimit   uint64
	gasUsed    uint64
	baseFee    *uint256.Int
	hash       common.Hash
}

func (h *testHeader) GetNumber() uint64          { return h.number }
func (h *testHeader) GetParentHash() common.Hash { return h.parentHash }
func (h *testHeader) GetTimestamp() uint64       { return h.timestamp }
func (h *testHeader) GetGasLimit() uint64        { return h.gasLimit }
func (h *testHeader) GetGasUsed() uint64         { return h.gasUsed }
func (h *testHeader) GetBaseFee() *uint256.Int   { return h.baseFee }
func (h *testHeader) GetHash() common.Hash       { return h.hash }

func parentHeader() *testHeader {
	return &testHeader{
		number:   10,
		gasLimit: 30_000_000,
		gasUsed:  15_000_000,
		baseFee:  uint256.NewInt(params.InitialBaseFee),
		hash:     common.HexToHash("0xaa"),
	}
}

func childOf(engine *AutoSeal, parent *testHeader) *testHeader {
	return &testHeader{
		number:     parent.number + 1,
		parentHash: parent.hash,
		timestamp:  parent.timestamp + 1,
		gasLimit:   engine.NextGasLimit(parent),
		baseFee:    engine.NextBaseFee(parent),
	}
}

func TestNextGasLimitMovesTowardTarget(t *testing.T) {
	parent := parentHeader()
	parent.gasLimit = 10_000_000

	engine := NewAutoSeal(30_000_000)
	limit := engine.NextGasLimit(parent)

	maxStep := parent.gasLimit/params.GasLimitBoundDivisor - 1
	assert.Equal(t, parent.gasLimit+maxStep, limit)

	// Within one step of the target the limit lands exactly on it.
	parent.gasLimit = 30_000_000 - 100
	assert.Equal(t, uint64(30_000_000), engine.NextGasLimit(parent))

	// At the target it stays put.
	parent.gasLimit = 30_000_000
	assert.Equal(t, uint64(30_000_000), engine.NextGasLimit(parent))

	// Above the target it steps down.
	parent.gasLimit = 60_000_000
	assert.Equal(t, parent.gasLimit-(parent.gasLimit/params.GasLimitBoundDivisor-1), engine.NextGasLimit(parent))
}

func TestNextGasLimitRespectsFloor(t *testing.T) {
	engine := NewAutoSeal(1)
	assert.Equal(t, uint64(params.MinGasLimit), engine.gasLimitTarget)
}

func TestNextGasLimitTinyParent(t *testing.T) {
	engine := NewAutoSeal(30_000_000)
	parent := parentHeader()

	// Parents below the bound divisor must not underflow the step.
	for _, limit := range []uint64{1, 500, 1023} {
		parent.gasLimit = limit
		assert.Equal(t, uint64(params.MinGasLimit), engine.NextGasLimit(parent))
	}
}

// Derived limits stay inside the parent's elasticity bound, including at
// the minimum where the floor and the bound meet.
func TestNextGasLimitValidatesAgainstParent(t *testing.T) {
	engine := NewAutoSeal(30_000_000)
	parent := parentHeader()

	for _, limit := range []uint64{params.MinGasLimit, params.MinGasLimit + 1, 10_000_000, 60_000_000} {
		parent.gasLimit = limit
		require.NoError(t, validateGasLimit(engine.NextGasLimit(parent), limit))
	}

	low := NewAutoSeal(params.MinGasLimit)
	parent.gasLimit = params.MinGasLimit
	require.NoError(t, validateGasLimit(low.NextGasLimit(parent), parent.gasLimit))
}

func TestNextBaseFee(t *testing.T) {
	engine := NewAutoSeal(30_000_000)

	// Exactly at target: unchanged.
	parent := parentHeader()
	assert.True(t, engine.NextBaseFee(parent).Eq(parent.baseFee))

	// Full block: base fee rises.
	parent.gasUsed = parent.gasLimit
	up := engine.NextBaseFee(parent)
	assert.True(t, up.Gt(parent.baseFee))

	// Empty block: base fee falls.
	parent.gasUsed = 0
	down := engine.NextBaseFee(parent)
	assert.True(t, down.Lt(parent.baseFee))

	// Rise is always at least one wei.
	parent.baseFee = uint256.NewInt(1)
	parent.gasUsed = parent.gasLimit/params.DefaultElasticityMultiplier + 1
	assert.True(t, engine.NextBaseFee(parent).Gt(parent.baseFee))
}

func TestNextBaseFeeNilParent(t *testing.T) {
	engine := NewAutoSeal(30_000_000)
	parent := parentHeader()
	parent.baseFee = nil
	assert.Equal(t, uint64(params.InitialBaseFee), engine.NextBaseFee(parent).Uint64())
}

func TestValidateHeaderAcceptsDerivedChild(t *testing.T) {
	engine := NewAutoSeal(30_000_000)
	parent := parentHeader()
	require.NoError(t, engine.ValidateHeader(childOf(engine, parent), parent))
}

func TestValidateHeaderViolations(t *testing.T) {
	engine := NewAutoSeal(30_000_000)
	parent := parentHeader()

	tests := []struct {
		name   string
		mutate func(h *testHeader)
		kind   ViolationKind
	}{
		{"wrong number", func(h *testHeader) { h.number += 1 }, ViolationNumber},
		{"wrong parent", func(h *testHeader) { h.parentHash = common.HexToHash("0xbb") }, ViolationParent},
		{"stale timestamp", func(h *testHeader) { h.timestamp = parent.timestamp }, ViolationTimestamp},
		{"gas used over limit", func(h *testHeader) { h.gasUsed = h.gasLimit + 1 }, ViolationGasUsed},
		{"gas limit jump", func(h *testHeader) { h.gasLimit = parent.gasLimit * 2 }, ViolationGasLimit},
		{"wrong base fee", func(h *testHeader) { h.baseFee = uint256.NewInt(1) }, ViolationBaseFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := childOf(engine, parent)
			tt.mutate(header)
			err := engine.ValidateHeader(header, parent)
			require.Error(t, err)
			var verr *ViolationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.kind, verr.Kind)
		})
	}
}

// A header that is wrong in several ways reports the first check that fails.
func TestValidateHeaderCheckOrder(t *testing.T) {
	engine := NewAutoSeal(30_000_000)
	parent := parentHeader()

	header := childOf(engine, parent)
	header.number = 99
	header.timestamp = 0
	header.baseFee = uint256.NewInt(7)

	var verr *ViolationError
	require.ErrorAs(t, engine.ValidateHeader(header, parent), &verr)
	assert.Equal(t, ViolationNumber, verr.Kind)
}

type testBlock struct {
	header *sealableHeader
}

type sealableHeader struct {
	testHeader
	stateRoot   common.Hash
	txHash      common.Hash
	receiptHash common.Hash
	bloom       []byte
	extra       []byte
}

func (h *sealableHeader) SetStateRoot(r common.Hash)   { h.stateRoot = r }
func (h *sealableHeader) SetTxHash(r common.Hash)      { h.txHash = r }
func (h *sealableHeader) SetReceiptHash(r common.Hash) { h.receiptHash = r }
func (h *sealableHeader) SetLogsBloom(b []byte)        { h.bloom = b }
func (h *sealableHeader) SetGasUsed(g uint64)          { h.gasUsed = g }
func (h *sealableHeader) SetExtra(e []byte)            { h.extra = e }
func (h *sealableHeader) SetHash(hash common.Hash)     { h.hash = hash }

func (b *testBlock) GetHeader() interfaces.SealableHeaderItf { return b.header }
func (b *testBlock) CalculateHash() (common.Hash, error) {
	return common.HexToHash("0xdeadbeef"), nil
}

func TestSealStampsSummary(t *testing.T) {
	engine := NewAutoSeal(30_000_000)
	block := &testBlock{header: &sealableHeader{}}

	summary := interfaces.ExecutionSummary{
		StateRoot:   common.HexToHash("0x01"),
		TxHash:      common.HexToHash("0x02"),
		ReceiptHash: common.HexToHash("0x03"),
		LogsBloom:   make([]byte, 256),
		GasUsed:     21000,
	}
	require.NoError(t, engine.Seal(block, summary))

	assert.Equal(t, summary.StateRoot, block.header.stateRoot)
	assert.Equal(t, summary.TxHash, block.header.txHash)
	assert.Equal(t, summary.ReceiptHash, block.header.receiptHash)
	assert.Equal(t, summary.GasUsed, block.header.gasUsed)
	assert.Equal(t, SealExtra, block.header.extra)
	assert.Equal(t, common.HexToHash("0xdeadbeef"), block.header.hash)
}

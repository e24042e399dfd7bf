package consensus

import (
	"fmt"

	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"autoseal-node/interfaces"
	"autoseal-node/logger"
)

// SealExtra marks headers produced by this engine. There is no proof of
// work or signature; a block is final the moment it is sealed.
var SealExtra = []byte("autoseal")

// ViolationKind names the header field that failed validation.
type ViolationKind string

const (
	ViolationNumber    ViolationKind = "number"
	ViolationParent    ViolationKind = "parent hash"
	ViolationTimestamp ViolationKind = "timestamp"
	ViolationGasUsed   ViolationKind = "gas used"
	ViolationGasLimit  ViolationKind = "gas limit"
	ViolationBaseFee   ViolationKind = "base fee"
)

// ViolationError reports a header that contradicts its parent. For blocks
// this node produced itself it indicates a builder bug and is fatal.
type ViolationError struct {
	Kind   ViolationKind
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("consensus violation (%s): %s", e.Kind, e.Detail)
}

func violationf(kind ViolationKind, format string, args ...interface{}) error {
	return &ViolationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AutoSeal is a development consensus engine. It seals whatever the
// builder hands it, deterministically and without delay, and validates
// only the structural relationship between a header and its parent.
type AutoSeal struct {
	gasLimitTarget uint64
}

// NewAutoSeal creates an engine steering block gas limits toward target.
func NewAutoSeal(gasLimitTarget uint64) *AutoSeal {
	if gasLimitTarget < params.MinGasLimit {
		gasLimitTarget = params.MinGasLimit
	}
	return &AutoSeal{gasLimitTarget: gasLimitTarget}
}

// Seal stamps the execution summary into the header and computes the
// final block hash. It never fails for consensus reasons.
func (a *AutoSeal) Seal(block interfaces.SealableBlockItf, summary interfaces.ExecutionSummary) error {
	header := block.GetHeader()
	header.SetStateRoot(summary.StateRoot)
	header.SetTxHash(summary.TxHash)
	header.SetReceiptHash(summary.ReceiptHash)
	header.SetLogsBloom(summary.LogsBloom)
	header.SetGasUsed(summary.GasUsed)
	header.SetExtra(SealExtra)

	hash, err := block.CalculateHash()
	if err != nil {
		return fmt.Errorf("failed to hash sealed block %d: %w", header.GetNumber(), err)
	}
	header.SetHash(hash)
	logger.Debugf("Sealed block %d hash=%s gasUsed=%d", header.GetNumber(), hash.Hex(), summary.GasUsed)
	return nil
}

// ValidateHeader checks header against parent. Checks run in a fixed
// order so a multiply-invalid header always reports the same violation.
func (a *AutoSeal) ValidateHeader(header interfaces.BlockHeaderItf, parent interfaces.BlockHeaderItf) error {
	if header.GetNumber() != parent.GetNumber()+1 {
		return violationf(ViolationNumber, "have %d, parent is %d", header.GetNumber(), parent.GetNumber())
	}
	if header.GetParentHash() != parent.GetHash() {
		return violationf(ViolationParent, "have %s, want %s", header.GetParentHash().Hex(), parent.GetHash().Hex())
	}
	if header.GetTimestamp() <= parent.GetTimestamp() {
		return violationf(ViolationTimestamp, "have %d, parent has %d", header.GetTimestamp(), parent.GetTimestamp())
	}
	if header.GetGasUsed() > header.GetGasLimit() {
		return violationf(ViolationGasUsed, "used %d exceeds limit %d", header.GetGasUsed(), header.GetGasLimit())
	}
	if err := validateGasLimit(header.GetGasLimit(), parent.GetGasLimit()); err != nil {
		return err
	}
	wantBaseFee := a.NextBaseFee(parent)
	if header.GetBaseFee() == nil || !header.GetBaseFee().Eq(wantBaseFee) {
		return violationf(ViolationBaseFee, "have %v, want %v", header.GetBaseFee(), wantBaseFee)
	}
	return nil
}

func validateGasLimit(limit, parentLimit uint64) error {
	maxDelta := parentLimit / params.GasLimitBoundDivisor
	var diff uint64
	if limit > parentLimit {
		diff = limit - parentLimit
	} else {
		diff = parentLimit - limit
	}
	if diff >= maxDelta {
		return violationf(ViolationGasLimit, "have %d, parent %d, max delta %d", limit, parentLimit, maxDelta)
	}
	if limit < params.MinGasLimit {
		return violationf(ViolationGasLimit, "have %d, minimum is %d", limit, params.MinGasLimit)
	}
	return nil
}

// NextGasLimit moves the parent gas limit toward the configured target,
// at most by the elasticity bound of parent/1024 minus one per block.
func (a *AutoSeal) NextGasLimit(parent interfaces.BlockHeaderItf) uint64 {
	parentLimit := parent.GetGasLimit()
	maxStep := parentLimit / params.GasLimitBoundDivisor
	if maxStep > 0 {
		maxStep--
	}
	limit := parentLimit
	if parentLimit < a.gasLimitTarget {
		limit = parentLimit + maxStep
		if limit > a.gasLimitTarget {
			limit = a.gasLimitTarget
		}
	} else if parentLimit > a.gasLimitTarget {
		limit = parentLimit - maxStep
		if limit < a.gasLimitTarget {
			limit = a.gasLimitTarget
		}
	}
	if limit < params.MinGasLimit {
		limit = params.MinGasLimit
	}
	return limit
}

// NextBaseFee derives the child base fee from the parent's fill ratio.
func (a *AutoSeal) NextBaseFee(parent interfaces.BlockHeaderItf) *uint256.Int {
	parentBaseFee := parent.GetBaseFee()
	if parentBaseFee == nil {
		return uint256.NewInt(params.InitialBaseFee)
	}
	target := parent.GetGasLimit() / params.DefaultElasticityMultiplier
	used := parent.GetGasUsed()

	if used == target || target == 0 {
		return new(uint256.Int).Set(parentBaseFee)
	}

	denom := uint256.NewInt(params.DefaultBaseFeeChangeDenominator)
	if used > target {
		delta := uint256.NewInt(used - target)
		delta.Mul(delta, parentBaseFee)
		delta.Div(delta, uint256.NewInt(target))
		delta.Div(delta, denom)
		if delta.IsZero() {
			delta = uint256.NewInt(1)
		}
		return new(uint256.Int).Add(parentBaseFee, delta)
	}

	delta := uint256.NewInt(target - used)
	delta.Mul(delta, parentBaseFee)
	delta.Div(delta, uint256.NewInt(target))
	delta.Div(delta, denom)
	if delta.Gt(parentBaseFee) {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(parentBaseFee, delta)
}

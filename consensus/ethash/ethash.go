// Package ethash implements the pre-merge PoW consensus engine (spec
// §A.4.1). CalcDifficulty is a plain method over the engine's fork
// schedule and each header is validated on its own, with no concurrent
// verification; reward accumulation is written directly from spec text.
package ethash

import (
	"math/big"

	"github.com/corexec/corexec/consensus"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
)

// Fork-specific difficulty-bomb delay offsets, in block number (spec
// §A.4.1).
const (
	ByzantiumBombDelay        = 3_000_000
	ConstantinopleBombDelay   = 5_000_000
	LondonBombDelay           = 9_700_000
	ArrowGlacierBombDelay     = 10_700_000
	GrayGlacierBombDelay      = 11_400_000
)

const MinimumDifficulty = 131_072

// ForkSchedule names the block numbers at which each fork activates; a
// production chain config supplies real values, tests use small synthetic
// ones (spec scenario S1).
type ForkSchedule struct {
	HomesteadBlock      uint64
	ByzantiumBlock      uint64
	ConstantinopleBlock uint64
	LondonBlock         uint64
	ArrowGlacierBlock   uint64
	GrayGlacierBlock    uint64
}

// Ethash is the PoW engine.
type Ethash struct {
	Fork ForkSchedule
}

func New(fork ForkSchedule) *Ethash { return &Ethash{Fork: fork} }

var _ consensus.Engine = (*Ethash)(nil)

func (e *Ethash) IsPoS(*types.Header) bool { return false }

// ValidateHeader recomputes difficulty from the parent and requires an
// exact match (spec §A.4.1).
func (e *Ethash) ValidateHeader(header, parent *types.Header) error {
	expected := e.CalcDifficulty(header.Time, parent)
	if header.Difficulty.Cmp(expected) != 0 {
		return consensus.ErrInvalidDifficulty
	}
	return nil
}

// VerifySeal is a placeholder per spec §A.4.1: "accepts any non-zero mix
// digest; a production implementation performs full DAG-based Hashimoto
// verification." (Open Question, see DESIGN.md.)
func (e *Ethash) VerifySeal(header *types.Header) error {
	if header.MixDigest.IsZero() {
		return consensus.ErrInvalidMixDigest
	}
	return nil
}

// CalcDifficulty implements the Homestead adjustment with fork-dependent
// difficulty-bomb offsets (spec §A.4.1):
//
//	D = D_parent + D_parent/2048 * max(1 - floor(Δt/10), -99) + bomb
//
// clamped to a minimum of 131072.
func (e *Ethash) CalcDifficulty(time uint64, parent *types.Header) *common.U256 {
	bigTime := new(big.Int).SetUint64(time)
	bigParentTime := new(big.Int).SetUint64(parent.Time)

	parentDiff := u256ToBig(parent.Difficulty)

	x := new(big.Int).Sub(bigTime, bigParentTime)
	x.Div(x, big.NewInt(10))
	x.Sub(big.NewInt(1), x)
	if x.Cmp(big.NewInt(-99)) < 0 {
		x = big.NewInt(-99)
	}

	y := new(big.Int).Div(parentDiff, big.NewInt(2048))
	x.Mul(y, x)
	x.Add(parentDiff, x)

	if x.Cmp(big.NewInt(MinimumDifficulty)) < 0 {
		x = big.NewInt(MinimumDifficulty)
	}

	bomb := e.bombDelayAdjustedFakeBlockNumber(parent.Number)
	if bomb.Sign() > 0 {
		fakeBlockNumber := bomb
		periodCount := new(big.Int).Add(fakeBlockNumber, big.NewInt(1))
		periodCount.Div(periodCount, big.NewInt(100000))
		if periodCount.Cmp(big.NewInt(2)) > 0 {
			exp := new(big.Int).Sub(periodCount, big.NewInt(2))
			bombFactor := new(big.Int).Exp(big.NewInt(2), exp, nil)
			x.Add(x, bombFactor)
		}
	}

	result := new(common.U256)
	result.SetFromBig(x)
	return result
}

// bombDelayAdjustedFakeBlockNumber returns parent.Number shifted back by
// the bomb delay in effect for this height, or a negative sentinel
// (returned as 0) before the bomb is active for a given fork.
func (e *Ethash) bombDelayAdjustedFakeBlockNumber(parentNumber uint64) *big.Int {
	delay := uint64(0)
	switch {
	case e.Fork.GrayGlacierBlock != 0 && parentNumber+1 >= e.Fork.GrayGlacierBlock:
		delay = GrayGlacierBombDelay
	case e.Fork.ArrowGlacierBlock != 0 && parentNumber+1 >= e.Fork.ArrowGlacierBlock:
		delay = ArrowGlacierBombDelay
	case e.Fork.LondonBlock != 0 && parentNumber+1 >= e.Fork.LondonBlock:
		delay = LondonBombDelay
	case e.Fork.ConstantinopleBlock != 0 && parentNumber+1 >= e.Fork.ConstantinopleBlock:
		delay = ConstantinopleBombDelay
	case e.Fork.ByzantiumBlock != 0 && parentNumber+1 >= e.Fork.ByzantiumBlock:
		delay = ByzantiumBombDelay
	default:
		return big.NewInt(int64(parentNumber))
	}
	if parentNumber < delay {
		return big.NewInt(0)
	}
	return new(big.Int).SetUint64(parentNumber - delay)
}

func u256ToBig(v *common.U256) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

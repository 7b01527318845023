// Package consensus defines the consensus engine contract (spec §A.4.1): a
// capability bundle of validate_header/verify_seal/block_reward/is_pos,
// with PoW and PoS implementations selected by block height.
package consensus

import (
	"errors"

	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
)

var (
	ErrInvalidDifficulty = errors.New("consensus: invalid difficulty")
	ErrInvalidSeal       = errors.New("consensus: invalid seal")
	ErrInvalidNonce      = errors.New("consensus: invalid nonce")
	ErrInvalidMixDigest  = errors.New("consensus: invalid mix digest")
	ErrInvalidBeaconRoot = errors.New("consensus: invalid beacon root")
	ErrInvalidUncleHash  = errors.New("consensus: invalid uncle hash")
	ErrUnclesNotAllowed  = errors.New("consensus: uncles not allowed")
	ErrInvalidPoWBlock   = errors.New("consensus: invalid PoW block")
	ErrInvalidPoSBlock   = errors.New("consensus: invalid PoS block")
)

// Engine is the capability bundle every consensus implementation offers
// (spec §A.4.1).
type Engine interface {
	ValidateHeader(header, parent *types.Header) error
	VerifySeal(header *types.Header) error
	BlockReward(header *types.Header, uncles []*types.Header) *common.U256
	IsPoS(header *types.Header) bool
}

// VerifyBlock implements the combined operation from spec §A.4.1:
// validate_header + verify_seal; if is_pos, uncles must be empty, else each
// uncle is validated against the same parent.
func VerifyBlock(e Engine, header, parent *types.Header, uncles []*types.Header) error {
	if err := e.ValidateHeader(header, parent); err != nil {
		return err
	}
	if err := e.VerifySeal(header); err != nil {
		return err
	}
	if e.IsPoS(header) {
		if len(uncles) != 0 {
			return ErrUnclesNotAllowed
		}
		return nil
	}
	for _, u := range uncles {
		if err := e.ValidateHeader(u, parent); err != nil {
			return err
		}
	}
	return nil
}

// Selector picks the engine for a given header height by comparing against
// a fixed merge height (spec §A.4.1: "Selection is by height").
type Selector struct {
	MergeHeight uint64
	PoW         Engine
	PoS         Engine
}

func (s Selector) EngineFor(blockNumber uint64) Engine {
	if blockNumber >= s.MergeHeight {
		return s.PoS
	}
	return s.PoW
}

package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/consensus/misc"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
)

func u64(v uint64) *uint64 { return &v }

func posParentHeader(n uint64) *types.Header {
	return &types.Header{
		Number:     n,
		Difficulty: ProofOfStakeDifficulty,
		Nonce:      ProofOfStakeNonce,
		UncleHash:  types.EmptyUncleHash,
	}
}

func TestValidateHeaderSkipsBlobGasCheckPreCancun(t *testing.T) {
	m := New(nil)
	parent := posParentHeader(10)
	header := posParentHeader(11)
	require.NoError(t, m.ValidateHeader(header, parent))
}

func TestValidateHeaderAcceptsCorrectExcessBlobGas(t *testing.T) {
	m := New(nil)
	root := common.Hash{0x01}
	parent := posParentHeader(10)
	parent.ExcessBlobGas = u64(0)
	parent.BlobGasUsed = u64(misc.MaxBlobGasPerBlock)

	header := posParentHeader(11)
	header.ParentBeaconRoot = &root
	header.BlobGasUsed = u64(0)
	header.ExcessBlobGas = u64(misc.CalcExcessBlobGas(parent))

	require.NoError(t, m.ValidateHeader(header, parent))
}

func TestValidateHeaderRejectsWrongExcessBlobGas(t *testing.T) {
	m := New(nil)
	root := common.Hash{0x01}
	parent := posParentHeader(10)
	parent.ExcessBlobGas = u64(0)
	parent.BlobGasUsed = u64(0)

	header := posParentHeader(11)
	header.ParentBeaconRoot = &root
	header.BlobGasUsed = u64(0)
	header.ExcessBlobGas = u64(999) // wrong: should be 0

	require.Error(t, m.ValidateHeader(header, parent))
}

func TestValidateHeaderRejectsMissingCancunFields(t *testing.T) {
	m := New(nil)
	parent := posParentHeader(10)
	parent.ExcessBlobGas = u64(0)
	parent.BlobGasUsed = u64(0)

	header := posParentHeader(11)
	header.ExcessBlobGas = u64(0) // present, but BlobGasUsed/ParentBeaconRoot missing

	require.Error(t, m.ValidateHeader(header, parent))
}

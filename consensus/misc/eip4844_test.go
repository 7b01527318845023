package misc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
)

func u64(v uint64) *uint64 { return &v }

func TestCalcExcessBlobGasBelowTargetIsZero(t *testing.T) {
	parent := &types.Header{ExcessBlobGas: u64(0), BlobGasUsed: u64(BlobGasPerBlob)}
	require.Equal(t, uint64(0), CalcExcessBlobGas(parent))
}

func TestCalcExcessBlobGasAboveTargetCarriesExcess(t *testing.T) {
	parent := &types.Header{ExcessBlobGas: u64(0), BlobGasUsed: u64(MaxBlobGasPerBlock)}
	require.Equal(t, uint64(MaxBlobGasPerBlock-TargetBlobGasPerBlock), CalcExcessBlobGas(parent))
}

func TestCalcExcessBlobGasNilParentFieldsTreatedAsZero(t *testing.T) {
	require.Equal(t, uint64(0), CalcExcessBlobGas(&types.Header{}))
}

func TestGetBlobGasPriceIncreasesWithExcess(t *testing.T) {
	low, err := GetBlobGasPrice(0)
	require.NoError(t, err)
	high, err := GetBlobGasPrice(10 * TargetBlobGasPerBlock)
	require.NoError(t, err)
	require.True(t, high.Cmp(low) > 0)
}

func TestVerifyPresenceOfCancunHeaderFieldsRejectsMissingField(t *testing.T) {
	root := common.Hash{0x01}
	complete := &types.Header{BlobGasUsed: u64(0), ExcessBlobGas: u64(0), ParentBeaconRoot: &root}
	require.NoError(t, VerifyPresenceOfCancunHeaderFields(complete))

	missingRoot := &types.Header{BlobGasUsed: u64(0), ExcessBlobGas: u64(0)}
	require.Error(t, VerifyPresenceOfCancunHeaderFields(missingRoot))
}

func TestVerifyAbsenceOfCancunHeaderFieldsRejectsPresentField(t *testing.T) {
	require.NoError(t, VerifyAbsenceOfCancunHeaderFields(&types.Header{}))

	root := common.Hash{0x01}
	require.Error(t, VerifyAbsenceOfCancunHeaderFields(&types.Header{ParentBeaconRoot: &root}))
}

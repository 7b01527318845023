package engineapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/erigon-lib/common"
)

func TestPrescanStructureRejectsShortHash(t *testing.T) {
	raw := []byte(`{"parentHash":"0x01","feeRecipient":"0x` + repeat("00", 20) + `","stateRoot":"0x` + repeat("00", 32) + `","receiptsRoot":"0x` + repeat("00", 32) + `","logsBloom":"0x` + repeat("00", 256) + `","prevRandao":"0x` + repeat("00", 32) + `","blockHash":"0x` + repeat("00", 32) + `"}`)
	err := prescanStructure(raw)
	require.Error(t, err)
}

func TestPrescanStructureAcceptsWellFormed(t *testing.T) {
	raw := []byte(`{"parentHash":"0x` + repeat("00", 32) + `","feeRecipient":"0x` + repeat("00", 20) + `","stateRoot":"0x` + repeat("00", 32) + `","receiptsRoot":"0x` + repeat("00", 32) + `","logsBloom":"0x` + repeat("00", 256) + `","prevRandao":"0x` + repeat("00", 32) + `","blockHash":"0x` + repeat("00", 32) + `","extraData":"0x"}`)
	require.NoError(t, prescanStructure(raw))
}

func TestValidateStructureRejectsGasUsedOverLimit(t *testing.T) {
	p := &ExecutionPayload{GasUsed: 100, GasLimit: 50}
	require.Error(t, ValidateStructure(p))
}

func TestValidateStructureRejectsOversizedBlobGas(t *testing.T) {
	over := common.Quantity(6*131072 + 1)
	p := &ExecutionPayload{GasLimit: 100, BlobGasUsed: &over}
	require.Error(t, ValidateStructure(p))
}

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

package main

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/kv/memdb"
	"github.com/corexec/corexec/eth/stagedsync"
)

func newTestConfig() *config {
	return &config{
		fs:            afero.NewMemMapFs(),
		dataDir:       "/data",
		blockGasLimit: 30_000_000,
	}
}

func TestLoadOrCreateJWTSecretPersistsAndReloads(t *testing.T) {
	cfg := newTestConfig()

	first, err := loadOrCreateJWTSecret(cfg)
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := loadOrCreateJWTSecret(cfg)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSeedGenesisSetsZeroProgressForEveryStage(t *testing.T) {
	db := memdb.New(kv.ChaindataTables)
	defer db.Close()

	require.NoError(t, seedGenesis(context.Background(), db, 30_000_000))

	require.NoError(t, db.View(context.Background(), func(tx kv.Tx) error {
		for _, name := range []string{"Headers", "BlockHashes", "Bodies", "Senders", "Execution", "TxLookup", "Finish"} {
			progress, err := stagedsync.Progress(tx, name)
			require.NoError(t, err)
			require.Equal(t, uint64(0), progress)
		}
		header, err := tx.GetOne(kv.Headers, beU64(0))
		require.NoError(t, err)
		require.NotNil(t, header)
		return nil
	}))
}

package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/kv/memdb"
)

const TblAccountFrozenIdxTest = "TestAccountFrozenIdx"

// TestFrozenIndexMatchesLiveInvertedIndex checks that once a key's shard is
// compacted, FrozenIndex.Seek agrees with InvertedIndex.Seek over the same
// live table for every queried tx number, and that GetAsOf through the
// Domain is unaffected by enabling the accelerator (spec §4.3: step files
// are an optional read-path cache, never a source of different answers).
func TestFrozenIndexMatchesLiveInvertedIndex(t *testing.T) {
	tables := []string{
		TblAccountValsTest, TblAccountHistoryKeysTest, TblAccountHistoryValsTest,
		TblAccountIdxTest, TblAccountFrozenIdxTest,
	}
	db := memdb.New(tables)
	defer db.Close()

	d := NewDomain(Config{Name: "test", StepSize: 16, WithHistory: true}, kv.AccountsDomain,
		TblAccountValsTest, TblAccountHistoryKeysTest, TblAccountHistoryValsTest, TblAccountIdxTest)

	ctx := context.Background()
	k := []byte("a")
	writes := []struct {
		val   string
		txNum uint64
	}{{"v1", 100}, {"v2", 200}, {"v3", 300}}

	for _, w := range writes {
		w := w
		require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
			return d.Put(tx, k, []byte(w.val), w.txNum)
		}))
	}

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return NewFrozenIndex(TblAccountFrozenIdxTest).Compact(tx, TblAccountIdxTest, k, 300)
	}))
	d.EnableFrozenIndex(TblAccountFrozenIdxTest)

	for _, at := range []uint64{50, 100, 150, 250, 300, 350} {
		require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
			liveTxNum, liveFound, err := NewInvertedIndex(TblAccountIdxTest).Seek(tx, k, at)
			require.NoError(t, err)
			frozenTxNum, frozenFound, err := NewFrozenIndex(TblAccountFrozenIdxTest).Seek(tx, k, at)
			require.NoError(t, err)
			require.Equal(t, liveFound, frozenFound, "at=%d", at)
			if liveFound {
				require.Equal(t, liveTxNum, frozenTxNum, "at=%d", at)
			}

			val, ok, err := d.GetAsOf(tx, k, at)
			require.NoError(t, err)
			if at < 100 {
				require.False(t, ok)
			} else if at < 200 {
				require.True(t, ok)
				require.Equal(t, "v1", string(val))
			} else if at < 300 {
				require.True(t, ok)
				require.Equal(t, "v2", string(val))
			} else {
				require.True(t, ok)
				require.Equal(t, "v3", string(val))
			}
			return nil
		}))
	}
}

// TestFrozenIndexCompactDropsEmptyShard checks Compact clears a previously
// written shard when the live index no longer has entries at or below
// maxTxNum for the key (e.g. after an unwind truncates the live table).
func TestFrozenIndexCompactDropsEmptyShard(t *testing.T) {
	tables := []string{TblAccountIdxTest, TblAccountFrozenIdxTest}
	db := memdb.New(tables)
	defer db.Close()

	k := []byte("a")
	ctx := context.Background()
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put(TblAccountIdxTest, append(append([]byte{}, k...), 0, 0, 0, 0, 0, 0, 1, 0), nil)
	}))
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return NewFrozenIndex(TblAccountFrozenIdxTest).Compact(tx, TblAccountIdxTest, k, 0)
	}))
	require.NoError(t, db.View(ctx, func(tx kv.Tx) error {
		_, found, err := NewFrozenIndex(TblAccountFrozenIdxTest).Seek(tx, k, 1000)
		require.NoError(t, err)
		require.False(t, found)
		return nil
	}))
}

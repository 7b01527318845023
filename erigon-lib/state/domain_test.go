package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/kv/memdb"
)

func newTestDomain() (*memdb.DB, *Domain) {
	tables := []string{TblAccountValsTest, TblAccountHistoryKeysTest, TblAccountHistoryValsTest, TblAccountIdxTest}
	db := memdb.New(tables)
	d := NewDomain(Config{Name: "test", StepSize: 16, WithHistory: true}, kv.AccountsDomain,
		TblAccountValsTest, TblAccountHistoryKeysTest, TblAccountHistoryValsTest, TblAccountIdxTest)
	return db, d
}

// Table names distinct from the real chaindata ones so this package's tests
// never collide with erigon-lib/kv's table registry.
const (
	TblAccountValsTest        = "TestAccountVals"
	TblAccountHistoryKeysTest = "TestAccountHistoryKeys"
	TblAccountHistoryValsTest = "TestAccountHistoryVals"
	TblAccountIdxTest         = "TestAccountIdx"
)

// write is an (op, key, value, txNum) step applied in increasing txNum order.
type writeOp struct {
	del   bool
	key   byte
	val   byte
	txNum uint64
}

// TestDomainGetAsOfMatchesLastWriteAtOrBefore is Property 4: for any
// sequence of Put/Delete operations applied at increasing tx numbers,
// GetAsOf(k, t) must equal whatever the latest operation on k at or before t
// established (a value, or not-found if that operation was a delete or no
// such operation exists).
func TestDomainGetAsOfMatchesLastWriteAtOrBefore(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		db, d := newTestDomain()
		defer db.Close()

		n := rapid.IntRange(1, 40).Draw(rt, "n")
		keySpace := rapid.IntRange(1, 4).Draw(rt, "keySpace")

		ops := make([]writeOp, 0, n)
		txNum := uint64(0)
		for i := 0; i < n; i++ {
			txNum += uint64(rapid.IntRange(1, 5).Draw(rt, "gap"))
			op := writeOp{
				del:   rapid.Bool().Draw(rt, "del"),
				key:   byte(rapid.IntRange(0, keySpace-1).Draw(rt, "key")),
				val:   byte(rapid.IntRange(1, 255).Draw(rt, "val")),
				txNum: txNum,
			}
			ops = append(ops, op)
		}

		ctx := context.Background()
		for _, op := range ops {
			op := op
			require.NoError(rt, db.Update(ctx, func(tx kv.RwTx) error {
				k := []byte{op.key}
				if op.del {
					return d.Delete(tx, k, op.txNum)
				}
				return d.Put(tx, k, []byte{op.val}, op.txNum)
			}))
		}

		queryAt := rapid.Uint64Range(0, txNum+5).Draw(rt, "queryAt")

		for key := byte(0); key < byte(keySpace); key++ {
			var want []byte
			wantOK := false
			for _, op := range ops {
				if op.key != key || op.txNum > queryAt {
					continue
				}
				if op.del {
					wantOK = false
					want = nil
				} else {
					wantOK = true
					want = []byte{op.val}
				}
			}

			require.NoError(rt, db.View(ctx, func(tx kv.Tx) error {
				got, ok, err := d.GetAsOf(tx, []byte{key}, queryAt)
				require.NoError(rt, err)
				require.Equal(rt, wantOK, ok)
				if wantOK {
					require.Equal(rt, want, got)
				}
				return nil
			}))
		}
	})
}

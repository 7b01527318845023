package state

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
)

// emptyReader backs every address with no stored account; every object is
// therefore created lazily by the overlay itself.
type emptyReader struct{}

func (emptyReader) ReadAccountData(common.Address) (*types.Account, error) { return nil, nil }
func (emptyReader) ReadAccountStorage(common.Address, uint64, common.Hash) (common.Hash, bool, error) {
	return common.Hash{}, false, nil
}
func (emptyReader) ReadAccountCode(common.Address, uint64, common.Hash) ([]byte, error) {
	return nil, nil
}
func (emptyReader) ReadAccountCodeSize(common.Address, uint64, common.Hash) (int, error) {
	return 0, nil
}

func addrN(n int) common.Address {
	var a common.Address
	a[len(a)-1] = byte(n)
	return a
}

type opKind int

const (
	opAddBalance opKind = iota
	opSubBalance
	opSetNonce
	opSetState
)

// applyRandomOp mutates s with one randomly chosen operation against one of
// a small fixed address pool, drawing all parameters from rt.
func applyRandomOp(rt *rapid.T, s *IntraBlockState, addrs []common.Address) {
	addr := addrs[rapid.IntRange(0, len(addrs)-1).Draw(rt, "addr")]
	switch opKind(rapid.IntRange(0, 3).Draw(rt, "op")) {
	case opAddBalance:
		s.AddBalance(addr, common.NewU256(uint64(rapid.IntRange(0, 1000).Draw(rt, "amount"))))
	case opSubBalance:
		s.SubBalance(addr, common.NewU256(uint64(rapid.IntRange(0, 1000).Draw(rt, "amount"))))
	case opSetNonce:
		s.SetNonce(addr, uint64(rapid.IntRange(0, 1000).Draw(rt, "nonce")))
	case opSetState:
		var key common.Hash
		key[len(key)-1] = byte(rapid.IntRange(0, 3).Draw(rt, "slot"))
		var val common.Hash
		val[len(val)-1] = byte(rapid.IntRange(0, 255).Draw(rt, "val"))
		s.SetState(addr, key, val)
	}
}

// TestRevertToSnapshotRestoresPriorState is Property 5: applying any
// sequence of mutations after a snapshot and reverting to it must leave
// every observable field exactly as it was at snapshot time, regardless of
// what happened in between.
func TestRevertToSnapshotRestoresPriorState(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		addrs := []common.Address{addrN(1), addrN(2), addrN(3)}
		s := New(emptyReader{})

		baseline := rapid.IntRange(0, 20).Draw(rt, "baselineOps")
		for i := 0; i < baseline; i++ {
			applyRandomOp(rt, s, addrs)
		}

		type snap struct {
			balance *common.U256
			nonce   uint64
			state   map[common.Hash]common.Hash
		}
		before := make(map[common.Address]snap, len(addrs))
		for _, a := range addrs {
			st := snap{balance: s.GetBalance(a), nonce: s.GetNonce(a), state: map[common.Hash]common.Hash{}}
			for slot := 0; slot < 4; slot++ {
				var key common.Hash
				key[len(key)-1] = byte(slot)
				st.state[key] = s.GetState(a, key)
			}
			before[a] = st
		}

		mark := s.Snapshot()

		extra := rapid.IntRange(0, 20).Draw(rt, "extraOps")
		for i := 0; i < extra; i++ {
			applyRandomOp(rt, s, addrs)
		}

		s.RevertToSnapshot(mark)

		for _, a := range addrs {
			want := before[a]
			got := snap{balance: s.GetBalance(a), nonce: s.GetNonce(a), state: map[common.Hash]common.Hash{}}
			for slot := 0; slot < 4; slot++ {
				var key common.Hash
				key[len(key)-1] = byte(slot)
				got.state[key] = s.GetState(a, key)
			}
			require.True(rt, want.balance.Cmp(got.balance) == 0)
			if diff := deep.Equal(want.state, got.state); diff != nil {
				rt.Fatalf("post-revert storage for %x diverges from snapshot-time state: %v", a, diff)
			}
			require.Equal(rt, want.nonce, got.nonce)
		}
	})
}

// TestRevertToZeroClearsAllDirtyAddresses is Property 6: reverting all the
// way to snapshot 0 must leave no outstanding dirty-address entries, since
// every mutation since the overlay's creation has been undone.
func TestRevertToZeroClearsAllDirtyAddresses(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		addrs := []common.Address{addrN(1), addrN(2), addrN(3)}
		s := New(emptyReader{})

		n := rapid.IntRange(0, 30).Draw(rt, "ops")
		for i := 0; i < n; i++ {
			applyRandomOp(rt, s, addrs)
		}

		s.RevertToSnapshot(0)

		for _, a := range addrs {
			require.Equal(rt, 0, s.DirtyCount(a))
		}
	})
}

// Package state implements the execution-time state overlay: a journaled,
// snapshottable view of accounts, storage, and code used while executing
// one transaction (spec §A.4.4), plus the HistoryReaderV3 that reads
// through to the temporal store.
package state

import (
	"github.com/corexec/corexec/erigon-lib/common"
)

// journalEntry is a tagged variant of every reversible mutation
// (spec §A.3's "Journal entry"). Each variant knows how to undo itself and
// whether it counts toward an account's dirty count.
type journalEntry interface {
	revert(s *IntraBlockState)
	dirtied() *common.Address
}

type (
	createObjectChange struct {
		account *common.Address
	}

	resetObjectChange struct {
		account *common.Address
		prev    *stateObject
	}

	selfDestructChange struct {
		account     *common.Address
		prev        bool // whether account had already self-destructed
		prevBalance *common.U256
	}

	balanceChange struct {
		account *common.Address
		prev    *common.U256
	}

	// balanceIncrease records an increase applied via AddBalance without a
	// full prior snapshot, mirroring the spec's "balance increase" variant
	// distinct from a general "balance change".
	balanceIncrease struct {
		account *common.Address
		amount  *common.U256
	}

	nonceChange struct {
		account *common.Address
		prev    uint64
	}

	storageChange struct {
		account  *common.Address
		key      common.Hash
		prevalue common.Hash
	}

	transientStorageChange struct {
		account  *common.Address
		key      common.Hash
		prevalue common.Hash
	}

	codeChange struct {
		account  *common.Address
		prevcode []byte
		prevhash common.Hash
	}

	refundChange struct {
		prev uint64
	}

	addLogChange struct {
		txHash common.Hash
	}

	touchChange struct {
		account *common.Address
	}

	accessListAddAccountChange struct {
		address *common.Address
	}

	accessListAddSlotChange struct {
		address *common.Address
		slot    *common.Hash
	}
)

func (c createObjectChange) revert(s *IntraBlockState) {
	delete(s.stateObjects, *c.account)
	delete(s.stateObjectsDirty, *c.account)
}
func (c createObjectChange) dirtied() *common.Address { return c.account }

func (c resetObjectChange) revert(s *IntraBlockState) {
	s.setStateObject(*c.account, c.prev)
}
func (c resetObjectChange) dirtied() *common.Address { return nil }

func (c selfDestructChange) revert(s *IntraBlockState) {
	obj := s.getStateObject(*c.account)
	if obj != nil {
		obj.selfDestructed = c.prev
		obj.setBalance(c.prevBalance)
	}
}
func (c selfDestructChange) dirtied() *common.Address { return c.account }

func (c balanceChange) revert(s *IntraBlockState) {
	s.getStateObject(*c.account).setBalance(c.prev)
}
func (c balanceChange) dirtied() *common.Address { return c.account }

func (c balanceIncrease) revert(s *IntraBlockState) {
	obj := s.getStateObject(*c.account)
	newBal := new(common.U256).Sub(obj.data.Balance, c.amount)
	obj.setBalance(newBal)
}
func (c balanceIncrease) dirtied() *common.Address { return c.account }

func (c nonceChange) revert(s *IntraBlockState) {
	s.getStateObject(*c.account).setNonce(c.prev)
}
func (c nonceChange) dirtied() *common.Address { return c.account }

func (c storageChange) revert(s *IntraBlockState) {
	s.getStateObject(*c.account).setState(c.key, c.prevalue)
}
func (c storageChange) dirtied() *common.Address { return c.account }

func (c transientStorageChange) revert(s *IntraBlockState) {
	s.setTransientState(*c.account, c.key, c.prevalue)
}
func (c transientStorageChange) dirtied() *common.Address { return nil }

func (c codeChange) revert(s *IntraBlockState) {
	obj := s.getStateObject(*c.account)
	obj.code = c.prevcode
	obj.data.CodeHash = c.prevhash
}
func (c codeChange) dirtied() *common.Address { return c.account }

func (c refundChange) revert(s *IntraBlockState) { s.refund = c.prev }
func (c refundChange) dirtied() *common.Address  { return nil }

func (c addLogChange) revert(s *IntraBlockState) {
	logs := s.logs[c.txHash]
	s.logs[c.txHash] = logs[:len(logs)-1]
}
func (c addLogChange) dirtied() *common.Address { return nil }

func (c touchChange) revert(s *IntraBlockState)    {}
func (c touchChange) dirtied() *common.Address     { return c.account }

func (c accessListAddAccountChange) revert(s *IntraBlockState) {
	s.accessList.removeAddress(*c.address)
}
func (c accessListAddAccountChange) dirtied() *common.Address { return nil }

func (c accessListAddSlotChange) revert(s *IntraBlockState) {
	s.accessList.removeSlot(*c.address, *c.slot)
}
func (c accessListAddSlotChange) dirtied() *common.Address { return nil }

// journal is the append-only LIFO mutation log for one transaction
// (spec §A.4.4). dirties tracks a per-address reference count, decremented
// on revert and removed at zero (spec: "dirty-address counter").
type journal struct {
	entries []journalEntry
	dirties map[common.Address]int
}

func newJournal() *journal {
	return &journal{dirties: make(map[common.Address]int)}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
	if addr := entry.dirtied(); addr != nil {
		j.dirties[*addr]++
	}
}

// length returns the current snapshot id (spec: "snapshot() returns the
// current journal length L").
func (j *journal) length() int { return len(j.entries) }

// revertTo pops entries LIFO until length = snapshot, undoing each one and
// decrementing its dirty count (spec: "revert(L) pops entries one at a
// time in LIFO order... dirty-address counter is decremented per revert and
// removed at zero").
func (j *journal) revertTo(s *IntraBlockState, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		entry := j.entries[i]
		entry.revert(s)
		if addr := entry.dirtied(); addr != nil {
			if j.dirties[*addr]--; j.dirties[*addr] == 0 {
				delete(j.dirties, *addr)
			}
		}
	}
	j.entries = j.entries[:snapshot]
}

func (j *journal) dirty(addr common.Address) {
	j.dirties[addr]++
}

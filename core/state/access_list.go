package state

import "github.com/corexec/corexec/erigon-lib/common"

// accessList implements the EIP-2929/2930 lifecycle (spec §A.4.4): cleared
// at transaction start, pre-warmed with sender/recipient/precompiles, and
// extended by EIP-2930 tuples during execution.
type accessList struct {
	addresses map[common.Address]int // -> index into slots, or -1 if address-only
	slots     []map[common.Hash]struct{}
}

func newAccessList() *accessList {
	return &accessList{addresses: make(map[common.Address]int)}
}

func (al *accessList) containsAddress(addr common.Address) bool {
	_, ok := al.addresses[addr]
	return ok
}

func (al *accessList) contains(addr common.Address, slot common.Hash) (addressOk, slotOk bool) {
	idx, ok := al.addresses[addr]
	if !ok {
		return false, false
	}
	if idx == -1 {
		return true, false
	}
	_, slotOk = al.slots[idx][slot]
	return true, slotOk
}

// addAddress returns true if addr was newly added (wasn't already warm).
func (al *accessList) addAddress(addr common.Address) bool {
	if _, ok := al.addresses[addr]; ok {
		return false
	}
	al.addresses[addr] = -1
	return true
}

// addSlot returns (addrAdded, slotAdded).
func (al *accessList) addSlot(addr common.Address, slot common.Hash) (bool, bool) {
	idx, ok := al.addresses[addr]
	addrAdded := false
	if !ok {
		idx = len(al.slots)
		al.slots = append(al.slots, map[common.Hash]struct{}{})
		al.addresses[addr] = idx
		addrAdded = true
	} else if idx == -1 {
		idx = len(al.slots)
		al.slots = append(al.slots, map[common.Hash]struct{}{})
		al.addresses[addr] = idx
	}
	if _, ok := al.slots[idx][slot]; ok {
		return addrAdded, false
	}
	al.slots[idx][slot] = struct{}{}
	return addrAdded, true
}

func (al *accessList) removeAddress(addr common.Address) {
	delete(al.addresses, addr)
}

func (al *accessList) removeSlot(addr common.Address, slot common.Hash) {
	idx, ok := al.addresses[addr]
	if !ok || idx == -1 {
		return
	}
	delete(al.slots[idx], slot)
}

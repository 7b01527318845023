package state

import (
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
)

// StateReader is the read-through contract the overlay uses to lazily
// populate stateObjects from the temporal store (spec §A.9: "the state
// overlay... only reads through a cache populated lazily from the store").
// HistoryReaderV3 is the concrete implementation.
type StateReader interface {
	ReadAccountData(address common.Address) (*types.Account, error)
	ReadAccountStorage(address common.Address, incarnation uint64, key common.Hash) (common.Hash, bool, error)
	ReadAccountCode(address common.Address, incarnation uint64, codeHash common.Hash) ([]byte, error)
	ReadAccountCodeSize(address common.Address, incarnation uint64, codeHash common.Hash) (int, error)
}

// StateWriter is the flush-on-commit contract (spec §A.4.4 "Dirty
// tracking": "On commit, dirty addresses are flushed to the temporal store
// with the current transaction number").
type StateWriter interface {
	UpdateAccountData(address common.Address, original, account *types.Account) error
	UpdateAccountCode(address common.Address, incarnation uint64, codeHash common.Hash, code []byte) error
	DeleteAccount(address common.Address, original *types.Account) error
	WriteAccountStorage(address common.Address, incarnation uint64, key, original, value common.Hash) error
}

// IntraBlockState is the journaled, snapshottable overlay the EVM observes
// during one transaction's execution (spec §A.4.4).
type IntraBlockState struct {
	reader StateReader

	stateObjects      map[common.Address]*stateObject
	stateObjectsDirty map[common.Address]struct{}

	journal *journal

	accessList        *accessList
	transientStorage  map[common.Address]map[common.Hash]common.Hash

	logs    map[common.Hash][]types.Log
	refund  uint64

	txHash common.Hash
}

func New(reader StateReader) *IntraBlockState {
	return &IntraBlockState{
		reader:            reader,
		stateObjects:      make(map[common.Address]*stateObject),
		stateObjectsDirty: make(map[common.Address]struct{}),
		journal:           newJournal(),
		accessList:        newAccessList(),
		transientStorage:  make(map[common.Address]map[common.Hash]common.Hash),
		logs:              make(map[common.Hash][]types.Log),
	}
}

// Snapshot returns the current journal length (spec §A.4.4).
func (s *IntraBlockState) Snapshot() int { return s.journal.length() }

// RevertToSnapshot undoes every mutation recorded since snapshot, in LIFO
// order (spec §A.4.4).
func (s *IntraBlockState) RevertToSnapshot(snapshot int) {
	s.journal.revertTo(s, snapshot)
}

// DirtyCount reports how many outstanding journal entries reference addr;
// used by Property 6 (dirty conservation) to assert the set is empty after
// a full revert.
func (s *IntraBlockState) DirtyCount(addr common.Address) int { return s.journal.dirties[addr] }

func (s *IntraBlockState) setStateObject(addr common.Address, obj *stateObject) {
	if obj == nil {
		delete(s.stateObjects, addr)
		return
	}
	s.stateObjects[addr] = obj
}

func (s *IntraBlockState) getStateObject(addr common.Address) *stateObject {
	if obj, ok := s.stateObjects[addr]; ok {
		return obj
	}
	acc, err := s.reader.ReadAccountData(addr)
	if err != nil || acc == nil {
		return nil
	}
	obj := newStateObject(addr)
	obj.data = *acc
	s.stateObjects[addr] = obj
	return obj
}

func (s *IntraBlockState) getOrNewStateObject(addr common.Address) *stateObject {
	obj := s.getStateObject(addr)
	if obj == nil {
		obj = s.createObject(addr)
	}
	return obj
}

// createObject creates a fresh account, journaling both the creation and
// (if one existed) the reset of the prior object (spec: "account create /
// reset" journal variants).
func (s *IntraBlockState) createObject(addr common.Address) *stateObject {
	prev := s.stateObjects[addr]
	newObj := newStateObject(addr)
	if prev == nil {
		s.journal.append(createObjectChange{account: &addr})
	} else {
		s.journal.append(resetObjectChange{account: &addr, prev: prev.copy()})
	}
	s.stateObjects[addr] = newObj
	return newObj
}

// CreateAccount is invoked by CREATE/CREATE2: marks the address freshly
// created, journaling the reset.
func (s *IntraBlockState) CreateAccount(addr common.Address) {
	obj := s.createObject(addr)
	obj.created = true
}

// Exist reports whether addr is known to this overlay or the underlying
// store.
func (s *IntraBlockState) Exist(addr common.Address) bool {
	return s.getStateObject(addr) != nil
}

func (s *IntraBlockState) GetBalance(addr common.Address) *common.U256 {
	obj := s.getStateObject(addr)
	if obj == nil {
		return common.NewU256(0)
	}
	return obj.data.Balance
}

// AddBalance journals a balanceIncrease entry per spec's distinct
// "balance increase" variant.
func (s *IntraBlockState) AddBalance(addr common.Address, amount *common.U256) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceIncrease{account: &addr, amount: amount.Clone()})
	newBal := new(common.U256).Add(obj.data.Balance, amount)
	obj.setBalance(newBal)
}

// SubBalance journals a general balanceChange entry.
func (s *IntraBlockState) SubBalance(addr common.Address, amount *common.U256) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceChange{account: &addr, prev: obj.data.Balance.Clone()})
	newBal := new(common.U256).Sub(obj.data.Balance, amount)
	obj.setBalance(newBal)
}

func (s *IntraBlockState) GetNonce(addr common.Address) uint64 {
	obj := s.getStateObject(addr)
	if obj == nil {
		return 0
	}
	return obj.data.Nonce
}

func (s *IntraBlockState) SetNonce(addr common.Address, nonce uint64) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(nonceChange{account: &addr, prev: obj.data.Nonce})
	obj.setNonce(nonce)
}

func (s *IntraBlockState) GetState(addr common.Address, key common.Hash) common.Hash {
	obj := s.getStateObject(addr)
	if obj == nil {
		return common.Hash{}
	}
	if v, ok := obj.getState(key); ok {
		return v
	}
	v, found, err := s.reader.ReadAccountStorage(addr, obj.data.Nonce, key)
	if err != nil || !found {
		return common.Hash{}
	}
	obj.originStorage[key] = v
	return v
}

func (s *IntraBlockState) SetState(addr common.Address, key, value common.Hash) {
	obj := s.getOrNewStateObject(addr)
	prev := s.GetState(addr, key)
	s.journal.append(storageChange{account: &addr, key: key, prevalue: prev})
	obj.setState(key, value)
}

func (s *IntraBlockState) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.transientStorage[addr][key]
}

func (s *IntraBlockState) setTransientState(addr common.Address, key, value common.Hash) {
	if s.transientStorage[addr] == nil {
		s.transientStorage[addr] = make(map[common.Hash]common.Hash)
	}
	s.transientStorage[addr][key] = value
}

// SetTransientState implements EIP-1153 TSTORE, journaling the prior value.
func (s *IntraBlockState) SetTransientState(addr common.Address, key, value common.Hash) {
	prev := s.GetTransientState(addr, key)
	if prev == value {
		return
	}
	s.journal.append(transientStorageChange{account: &addr, key: key, prevalue: prev})
	s.setTransientState(addr, key, value)
}

func (s *IntraBlockState) GetCode(addr common.Address) []byte {
	obj := s.getStateObject(addr)
	if obj == nil {
		return nil
	}
	if obj.code != nil {
		return obj.code
	}
	code, err := s.reader.ReadAccountCode(addr, obj.data.Nonce, obj.data.CodeHash)
	if err != nil {
		return nil
	}
	obj.code = code
	return code
}

func (s *IntraBlockState) SetCode(addr common.Address, code []byte) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(codeChange{account: &addr, prevcode: obj.code, prevhash: obj.data.CodeHash})
	obj.code = code
	obj.data.CodeHash = common.Keccak256Hash(code)
}

// SelfDestruct marks addr as destroyed as of the current transaction,
// journaling the prior destruction flag and balance.
func (s *IntraBlockState) SelfDestruct(addr common.Address) {
	obj := s.getStateObject(addr)
	if obj == nil {
		return
	}
	s.journal.append(selfDestructChange{
		account:     &addr,
		prev:        obj.selfDestructed,
		prevBalance: obj.data.Balance.Clone(),
	})
	obj.selfDestructed = true
	obj.setBalance(common.NewU256(0))
}

func (s *IntraBlockState) HasSelfDestructed(addr common.Address) bool {
	obj := s.getStateObject(addr)
	return obj != nil && obj.selfDestructed
}

// AddRefund and SubRefund journal the gas-refund counter independently of
// account mutations (spec: "refund delta" does not increment dirty count).
func (s *IntraBlockState) AddRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund += gas
}

func (s *IntraBlockState) SubRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund -= gas
}

func (s *IntraBlockState) GetRefund() uint64 { return s.refund }

// AddLog appends a log entry, journaling it for revert (spec: "log
// append").
func (s *IntraBlockState) AddLog(log types.Log) {
	s.journal.append(addLogChange{txHash: s.txHash})
	s.logs[s.txHash] = append(s.logs[s.txHash], log)
}

func (s *IntraBlockState) Logs() []types.Log { return s.logs[s.txHash] }

// AddAddressToAccessList implements EIP-2930 pre-warming / extension.
func (s *IntraBlockState) AddAddressToAccessList(addr common.Address) {
	if s.accessList.addAddress(addr) {
		s.journal.append(accessListAddAccountChange{address: &addr})
	}
}

func (s *IntraBlockState) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	addrAdded, slotAdded := s.accessList.addSlot(addr, slot)
	if addrAdded {
		s.journal.append(accessListAddAccountChange{address: &addr})
	}
	if slotAdded {
		s.journal.append(accessListAddSlotChange{address: &addr, slot: &slot})
	}
}

func (s *IntraBlockState) AddressInAccessList(addr common.Address) bool {
	return s.accessList.containsAddress(addr)
}

func (s *IntraBlockState) SlotInAccessList(addr common.Address, slot common.Hash) (addressOk, slotOk bool) {
	return s.accessList.contains(addr, slot)
}

// Prepare resets per-transaction state: access list, logs, refund, and
// pre-warms sender/recipient/precompiles (spec §A.4.4 "Access list
// lifecycle").
func (s *IntraBlockState) Prepare(txHash common.Hash, sender common.Address, recipient *common.Address, precompiles []common.Address, accessList []types.AccessTuple) {
	s.txHash = txHash
	s.accessList = newAccessList()
	s.accessList.addAddress(sender)
	if recipient != nil {
		s.accessList.addAddress(*recipient)
	}
	for _, p := range precompiles {
		s.accessList.addAddress(p)
	}
	for _, tuple := range accessList {
		s.accessList.addAddress(tuple.Address)
		for _, key := range tuple.StorageKeys {
			s.accessList.addSlot(tuple.Address, key)
		}
	}
}

// DirtyAddresses returns every address with at least one uncommitted
// mutation; ExecutionStage samples it before each CommitTx (spec §A.4.4
// "Dirty tracking").
func (s *IntraBlockState) DirtyAddresses() []common.Address {
	out := make([]common.Address, 0, len(s.journal.dirties))
	for addr := range s.journal.dirties {
		out = append(out, addr)
	}
	return out
}

// CommitTx flushes every object touched during this transaction to writer
// at the given global tx number, then clears the journal for the next
// transaction within the same block (spec §A.9 "Overlay vs store coupling":
// "On transaction success, overlay mutations are replayed into the store at
// the current tx number; on failure nothing is written").
func (s *IntraBlockState) CommitTx(writer StateWriter) error {
	for addr := range s.journal.dirties {
		obj, ok := s.stateObjects[addr]
		if !ok {
			continue
		}
		if obj.selfDestructed {
			if err := writer.DeleteAccount(addr, nil); err != nil {
				return err
			}
			continue
		}
		if err := writer.UpdateAccountData(addr, nil, &obj.data); err != nil {
			return err
		}
		if obj.code != nil {
			if err := writer.UpdateAccountCode(addr, obj.data.Nonce, obj.data.CodeHash, obj.code); err != nil {
				return err
			}
		}
		for key, val := range obj.dirtyStorage {
			if err := writer.WriteAccountStorage(addr, obj.data.Nonce, key, common.Hash{}, val); err != nil {
				return err
			}
		}
	}
	s.journal = newJournal()
	return nil
}

package state

import (
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/core/types"
)

// stateObject is the in-memory working copy of one account plus its dirty
// storage slots, read lazily from the temporal store (spec §A.4.4 /
// §A.9 "Overlay vs store coupling": "the state overlay... only reads
// through a cache populated lazily from the store").
type stateObject struct {
	address common.Address
	data    types.Account

	code []byte

	originStorage map[common.Hash]common.Hash // cached values read from the store
	dirtyStorage  map[common.Hash]common.Hash // values changed during this transaction

	selfDestructed bool
	created        bool // true if created during the current transaction
}

func newStateObject(addr common.Address) *stateObject {
	return &stateObject{
		address:       addr,
		data:          types.Account{Balance: common.NewU256(0)},
		originStorage: make(map[common.Hash]common.Hash),
		dirtyStorage:  make(map[common.Hash]common.Hash),
	}
}

func (o *stateObject) copy() *stateObject {
	cp := &stateObject{
		address:        o.address,
		data:           o.data,
		code:           append([]byte(nil), o.code...),
		originStorage:  make(map[common.Hash]common.Hash, len(o.originStorage)),
		dirtyStorage:   make(map[common.Hash]common.Hash, len(o.dirtyStorage)),
		selfDestructed: o.selfDestructed,
		created:        o.created,
	}
	if o.data.Balance != nil {
		cp.data.Balance = o.data.Balance.Clone()
	}
	for k, v := range o.originStorage {
		cp.originStorage[k] = v
	}
	for k, v := range o.dirtyStorage {
		cp.dirtyStorage[k] = v
	}
	return cp
}

func (o *stateObject) setBalance(v *common.U256) { o.data.Balance = v }
func (o *stateObject) setNonce(n uint64)          { o.data.Nonce = n }

func (o *stateObject) setState(key, value common.Hash) {
	o.dirtyStorage[key] = value
}

func (o *stateObject) getState(key common.Hash) (common.Hash, bool) {
	if v, ok := o.dirtyStorage[key]; ok {
		return v, true
	}
	v, ok := o.originStorage[key]
	return v, ok
}

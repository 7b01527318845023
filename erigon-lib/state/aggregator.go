package state

import "github.com/corexec/corexec/erigon-lib/kv"

// Aggregator ties the Accounts, Storage, and Code domains together behind
// one handle, the shape the Execution stage and the state overlay consume
// (spec §A.2: "Temporal store... Domain (latest + time-travel)").
type Aggregator struct {
	Accounts *Domain
	Storage  *Domain
	Code     *Domain

	stepSize uint64
}

// NewAggregator wires the three domains onto the table names declared in
// erigon-lib/kv/tables.go.
func NewAggregator(stepSize uint64, withHistory bool) *Aggregator {
	cfg := func(name string) Config { return Config{Name: name, StepSize: stepSize, WithHistory: withHistory} }
	accounts := NewDomain(cfg("accounts"), kv.AccountsDomain,
		kv.TblAccountVals, kv.TblAccountHistoryKeys, kv.TblAccountHistoryVals, kv.TblAccountIdx)
	storage := NewDomain(cfg("storage"), kv.StorageDomain,
		kv.TblStorageVals, kv.TblStorageHistoryKeys, kv.TblStorageHistoryVals, kv.TblStorageIdx)
	code := NewDomain(cfg("code"), kv.CodeDomain,
		kv.TblCodeVals, kv.TblCodeHistoryKeys, kv.TblCodeHistoryVals, kv.TblCodeIdx)
	if withHistory {
		accounts.EnableFrozenIndex(kv.TblAccountFrozenIdx)
		storage.EnableFrozenIndex(kv.TblStorageFrozenIdx)
		code.EnableFrozenIndex(kv.TblCodeFrozenIdx)
	}
	return &Aggregator{stepSize: stepSize, Accounts: accounts, Storage: storage, Code: code}
}

// Domain returns the domain backing one of the kv.Domain enum values.
func (a *Aggregator) Domain(d kv.Domain) *Domain {
	switch d {
	case kv.AccountsDomain:
		return a.Accounts
	case kv.StorageDomain:
		return a.Storage
	case kv.CodeDomain:
		return a.Code
	default:
		panic("state: unknown domain")
	}
}

// TxNumAllocator assigns the global monotonic transaction number consumed
// by every Domain write (spec glossary: "Transaction number").
type TxNumAllocator struct {
	next uint64
}

func (a *TxNumAllocator) Next() uint64 {
	n := a.next
	a.next++
	return n
}

func (a *TxNumAllocator) Peek() uint64 { return a.next }

package state

import (
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
)

// TemporalWriter implements StateWriter by flushing dirty accounts,
// storage, and code onto a kv.TemporalRwTx at a fixed transaction number
// (spec §A.4.4 "On commit, dirty addresses are flushed to the temporal
// store with the current transaction number"). Grounded on this package's
// own HistoryReaderV3, the read-side counterpart over the same contract.
type TemporalWriter struct {
	ttx   kv.TemporalRwTx
	txNum uint64
}

func NewTemporalWriter(ttx kv.TemporalRwTx, txNum uint64) *TemporalWriter {
	return &TemporalWriter{ttx: ttx, txNum: txNum}
}

func (w *TemporalWriter) UpdateAccountData(address common.Address, original, account *types.Account) error {
	return w.ttx.PutLatest(kv.AccountsDomain, address[:], account.EncodeForStorage(), w.txNum)
}

func (w *TemporalWriter) DeleteAccount(address common.Address, original *types.Account) error {
	return w.ttx.DeleteLatest(kv.AccountsDomain, address[:], w.txNum)
}

func (w *TemporalWriter) UpdateAccountCode(address common.Address, incarnation uint64, codeHash common.Hash, code []byte) error {
	return w.ttx.PutLatest(kv.CodeDomain, address[:], code, w.txNum)
}

func (w *TemporalWriter) WriteAccountStorage(address common.Address, incarnation uint64, key, original, value common.Hash) error {
	addrHash := common.Keccak256Hash(address.Bytes())
	slotHash := common.Keccak256Hash(key.Bytes())
	storageKey := types.StorageKey(addrHash, slotHash, incarnation)
	if value.IsZero() {
		return w.ttx.DeleteLatest(kv.StorageDomain, storageKey[:], w.txNum)
	}
	return w.ttx.PutLatest(kv.StorageDomain, storageKey[:], value.Bytes(), w.txNum)
}

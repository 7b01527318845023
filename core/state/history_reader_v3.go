// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package state

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/state"
)

var ErrPruned = errors.New("state: old data not available due to pruning")

// codeCacheSize bounds the in-memory code cache every HistoryReaderV3 keeps;
// bytecode is immutable per hash so the cache is never invalidated, only
// evicted by size (spec §5: "Caches inside the Guillotine adapter are
// flushed to the KV transaction on commit and discarded on rollback" — this
// cache holds only content-addressed, read-only data, so there is nothing to
// flush or roll back, just an eviction policy).
const codeCacheSize = 4096

// HistoryReaderV3 implements StateReader over the temporal store's
// get_as_of queries, as of a fixed global transaction number (spec
// §A.4.3/§A.9). Grounded on the teacher's history_reader_v3.go, adapted to
// this repo's kv.TemporalTx/erigon-lib/state.Aggregator instead of MDBX.
type HistoryReaderV3 struct {
	txNum uint64
	trace bool
	ttx   kv.TemporalTx
	agg   *state.Aggregator

	codeCache *lru.Cache[common.Hash, []byte]
}

func NewHistoryReaderV3(agg *state.Aggregator) *HistoryReaderV3 {
	cache, err := lru.New[common.Hash, []byte](codeCacheSize)
	if err != nil {
		panic(err) // only errors on a non-positive size, which codeCacheSize never is
	}
	return &HistoryReaderV3{agg: agg, codeCache: cache}
}

func (hr *HistoryReaderV3) String() string           { return fmt.Sprintf("txNum:%d", hr.txNum) }
func (hr *HistoryReaderV3) SetTx(tx kv.TemporalTx)    { hr.ttx = tx }
func (hr *HistoryReaderV3) SetTxNum(txNum uint64)     { hr.txNum = txNum }
func (hr *HistoryReaderV3) GetTxNum() uint64          { return hr.txNum }
func (hr *HistoryReaderV3) SetTrace(trace bool)       { hr.trace = trace }

func (hr *HistoryReaderV3) ReadAccountData(address common.Address) (*types.Account, error) {
	enc, ok, err := hr.ttx.GetAsOf(kv.AccountsDomain, address[:], hr.txNum)
	if err != nil {
		return nil, err
	}
	if !ok || len(enc) == 0 {
		if hr.trace {
			fmt.Printf("ReadAccountData [%x] => []\n", address)
		}
		return nil, nil
	}
	acc, err := types.DecodeAccountFromStorage(enc)
	if err != nil {
		return nil, err
	}
	if hr.trace {
		fmt.Printf("ReadAccountData [%x] => balance=%s nonce=%d\n", address, acc.Balance, acc.Nonce)
	}
	return acc, nil
}

func (hr *HistoryReaderV3) ReadAccountStorage(address common.Address, incarnation uint64, key common.Hash) (common.Hash, bool, error) {
	addrHash := common.Keccak256Hash(address.Bytes())
	slotHash := common.Keccak256Hash(key.Bytes())
	storageKey := types.StorageKey(addrHash, slotHash, incarnation)
	enc, ok, err := hr.ttx.GetAsOf(kv.StorageDomain, storageKey[:], hr.txNum)
	if err != nil || !ok || len(enc) == 0 {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(enc), true, nil
}

func (hr *HistoryReaderV3) ReadAccountCode(address common.Address, incarnation uint64, codeHash common.Hash) ([]byte, error) {
	if codeHash == types.EmptyCodeHash {
		return nil, nil
	}
	if code, hit := hr.codeCache.Get(codeHash); hit {
		return code, nil
	}
	enc, ok, err := hr.ttx.GetAsOf(kv.CodeDomain, address[:], hr.txNum)
	if err != nil || !ok {
		return nil, err
	}
	hr.codeCache.Add(codeHash, enc)
	return enc, nil
}

func (hr *HistoryReaderV3) ReadAccountCodeSize(address common.Address, incarnation uint64, codeHash common.Hash) (int, error) {
	code, err := hr.ReadAccountCode(address, incarnation, codeHash)
	if err != nil {
		return 0, err
	}
	return len(code), nil
}

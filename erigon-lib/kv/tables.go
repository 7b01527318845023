// Copyright 2021 The Erigon Authors
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

package kv

// DBSchemaVersion is bumped whenever the table layout below changes shape.
var DBSchemaVersion = struct{ Major, Minor, Patch uint32 }{Major: 1, Minor: 0, Patch: 0}

// Chain data tables (spec §A.6).
const (
	HeaderNumber    = "HeaderNumber"    // header_hash -> header_num_u64
	HeaderCanonical = "CanonicalHeader" // block_num_u64 -> header hash
	Headers         = "Header"          // block_num_u64 + hash -> header (RLP)
	HeaderTD        = "HeadersTotalDifficulty"

	BlockBody     = "BlockBody"     // block_num_u64 + hash -> block body
	BlockReceipts = "BlockReceipts" // block_num_u64 + hash -> rlp(receipts)

	EthTx    = "BlockTransaction"        // tx_id_u64 -> rlp(tx)
	TxLookup = "BlockTransactionLookup" // tx_hash -> block_num_u64

	PlainState   = "PlainState"   // address (or address+incarnation+location) -> account/storage value
	Code         = "Code"         // code hash -> bytecode
	PlainContractCode = "PlainCodeHash" // address+incarnation -> code hash

	ConfigTable = "Config" // misc chain-config blobs

	// SyncStageProgress: key = stage name, value = big-endian u64 block number.
	SyncStageProgress = "SyncStage"
)

// Temporal store tables, one (values, history-keys, history-vals, idx) group
// per Domain, plus a standalone InvertedIndex table per non-domain index
// (spec §A.4.3, §C.2 — Accounts/Storage/Code only; BSC/BOR/Beacon-CL/Verkle
// specific tables from the upstream schema are dropped, those subsystems are
// out of spec scope).
const (
	TblAccountVals        = "AccountVals"
	TblAccountHistoryKeys = "AccountHistoryKeys"
	TblAccountHistoryVals = "AccountHistoryVals"
	TblAccountIdx         = "AccountIdx"

	TblStorageVals        = "StorageVals"
	TblStorageHistoryKeys = "StorageHistoryKeys"
	TblStorageHistoryVals = "StorageHistoryVals"
	TblStorageIdx         = "StorageIdx"

	TblCodeVals        = "CodeVals"
	TblCodeHistoryKeys = "CodeHistoryKeys"
	TblCodeHistoryVals = "CodeHistoryVals"
	TblCodeIdx         = "CodeIdx"
)

// Frozen-shard tables back the optional offline-compaction path from spec
// §4.3 ("Step files"): one roaring-bitmap-encoded shard per key, mirroring
// the teacher's E2AccountsHistory/E2StorageHistory layout ("value - roaring
// bitmap - list of block where it changed") but keyed by transaction number
// instead of block number.
const (
	TblAccountFrozenIdx = "AccountFrozenIdx"
	TblStorageFrozenIdx = "StorageFrozenIdx"
	TblCodeFrozenIdx    = "CodeFrozenIdx"
)

// Domain identifies one of the flat key->latest-value maps kept by the
// temporal store.
type Domain uint8

const (
	AccountsDomain Domain = iota
	StorageDomain
	CodeDomain
	DomainLen
)

func (d Domain) String() string {
	switch d {
	case AccountsDomain:
		return "accounts"
	case StorageDomain:
		return "storage"
	case CodeDomain:
		return "code"
	default:
		return "unknown"
	}
}

// domainTables returns the (values, history-keys, history-vals, inverted-idx)
// table quadruple backing a Domain.
func domainTables(d Domain) (vals, histKeys, histVals, idx string) {
	switch d {
	case AccountsDomain:
		return TblAccountVals, TblAccountHistoryKeys, TblAccountHistoryVals, TblAccountIdx
	case StorageDomain:
		return TblStorageVals, TblStorageHistoryKeys, TblStorageHistoryVals, TblStorageIdx
	case CodeDomain:
		return TblCodeVals, TblCodeHistoryKeys, TblCodeHistoryVals, TblCodeIdx
	default:
		panic("kv: unknown domain")
	}
}

// ChaindataTables lists every table that must exist in a freshly created
// chaindata database.
var ChaindataTables = []string{
	HeaderNumber, HeaderCanonical, Headers, HeaderTD,
	BlockBody, BlockReceipts,
	EthTx, TxLookup,
	PlainState, Code, PlainContractCode,
	ConfigTable, SyncStageProgress,
	TblAccountVals, TblAccountHistoryKeys, TblAccountHistoryVals, TblAccountIdx,
	TblStorageVals, TblStorageHistoryKeys, TblStorageHistoryVals, TblStorageIdx,
	TblCodeVals, TblCodeHistoryKeys, TblCodeHistoryVals, TblCodeIdx,
	TblAccountFrozenIdx, TblStorageFrozenIdx, TblCodeFrozenIdx,
}

// TableFlags mirrors MDBX's table option bits so memdb and a future real
// MDBX backend share one configuration surface.
type TableFlags uint

const (
	Default TableFlags = 0
	DupSort TableFlags = 1 << iota
)

type TableCfgItem struct {
	Flags TableFlags
}

type TableCfg map[string]TableCfgItem

// ChaindataTablesCfg is the default table configuration for a chaindata
// database: every table here uses Default flags (ordered, non-dupsort) —
// the temporal store's multi-value history tables dupsort within the
// application layer (composite keys) rather than via the engine.
func ChaindataTablesCfg() TableCfg {
	cfg := make(TableCfg, len(ChaindataTables))
	for _, t := range ChaindataTables {
		cfg[t] = TableCfgItem{Flags: Default}
	}
	return cfg
}

package state

import (
	"github.com/golang/snappy"

	"github.com/corexec/corexec/erigon-lib/kv"
)

// compressCodeValues reports whether domain stores values worth
// snappy-compressing before they hit the KV engine. Only CodeDomain
// qualifies: account and storage values are small fixed-shape encodings
// where the block-framing overhead of Snappy would cost more than it saves,
// but contract bytecode is large, text-like (Solidity/Vyper output has
// heavy repetition), and read far less often than it's written once per
// deployment, matching Erigon's own use of Snappy over its Code table.
func compressCodeValues(domain kv.Domain) bool { return domain == kv.CodeDomain }

// TemporalTx adapts a plain read-only transaction plus the Accounts/
// Storage/Code domains into the kv.TemporalTx contract (spec §A.4.3): the
// link between the flat KV engine and the Domain-backed temporal store
// that core/state.HistoryReaderV3 and the JSON-RPC façade's current-state
// reads both consume.
type TemporalTx struct {
	kv.Tx
	agg *Aggregator
}

func NewTemporalTx(tx kv.Tx, agg *Aggregator) *TemporalTx {
	return &TemporalTx{Tx: tx, agg: agg}
}

func (t *TemporalTx) GetLatest(domain kv.Domain, k []byte) ([]byte, bool, error) {
	v, ok, err := t.agg.Domain(domain).GetLatest(t.Tx, k)
	return decompressIf(domain, v, ok, err)
}

func (t *TemporalTx) GetAsOf(domain kv.Domain, k []byte, txNum uint64) ([]byte, bool, error) {
	v, ok, err := t.agg.Domain(domain).GetAsOf(t.Tx, k, txNum)
	return decompressIf(domain, v, ok, err)
}

func decompressIf(domain kv.Domain, v []byte, ok bool, err error) ([]byte, bool, error) {
	if err != nil || !ok || !compressCodeValues(domain) || len(v) == 0 {
		return v, ok, err
	}
	out, decErr := snappy.Decode(nil, v)
	if decErr != nil {
		return nil, false, decErr
	}
	return out, true, nil
}

// TemporalRwTx adds the write half: PutLatest/DeleteLatest append to a
// domain's history and bump its latest-value slot in one call (spec
// §A.4.4 "Dirty tracking... flushed to the temporal store").
type TemporalRwTx struct {
	kv.RwTx
	agg *Aggregator
}

func NewTemporalRwTx(tx kv.RwTx, agg *Aggregator) *TemporalRwTx {
	return &TemporalRwTx{RwTx: tx, agg: agg}
}

func (t *TemporalRwTx) GetLatest(domain kv.Domain, k []byte) ([]byte, bool, error) {
	v, ok, err := t.agg.Domain(domain).GetLatest(t.RwTx, k)
	return decompressIf(domain, v, ok, err)
}

func (t *TemporalRwTx) GetAsOf(domain kv.Domain, k []byte, txNum uint64) ([]byte, bool, error) {
	v, ok, err := t.agg.Domain(domain).GetAsOf(t.RwTx, k, txNum)
	return decompressIf(domain, v, ok, err)
}

func (t *TemporalRwTx) PutLatest(domain kv.Domain, k, v []byte, txNum uint64) error {
	if compressCodeValues(domain) && len(v) > 0 {
		v = snappy.Encode(nil, v)
	}
	return t.agg.Domain(domain).Put(t.RwTx, k, v, txNum)
}

func (t *TemporalRwTx) DeleteLatest(domain kv.Domain, k []byte, txNum uint64) error {
	return t.agg.Domain(domain).Delete(t.RwTx, k, txNum)
}

// LatestTxNum is a sentinel passed to GetAsOf to mean "the newest committed
// value, whatever txNum that was written at" — the as-of seek already finds
// the largest recorded txNum <= t, so any value at or above the allocator's
// high-water mark yields the same answer as a dedicated GetLatest call.
const LatestTxNum = ^uint64(0)

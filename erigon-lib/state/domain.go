// Package state implements the temporal store: Domain (flat key->latest
// value with point-in-time queries), History (per-write prior-value log),
// and InvertedIndex (key -> sorted tx-number change list), per spec
// §A.4.3. This is the hardest subsystem in the client.
package state

import (
	"encoding/binary"

	"github.com/corexec/corexec/erigon-lib/kv"
)

// Config describes one Domain: {name, step_size, with_history}.
type Config struct {
	Name        string
	StepSize    uint64 // tx_number / step_size, typically 8192
	WithHistory bool
}

// Domain is a flat key->latest-value map with optional time-travel via its
// paired History/InvertedIndex.
type Domain struct {
	cfg Config
	kv  kv.Domain

	valsTable     string
	histKeysTable string
	histValsTable string
	idxTable      string

	frozen *FrozenIndex // optional step-file accelerator, nil until EnableFrozenIndex (spec §4.3)
}

func NewDomain(cfg Config, kvDomain kv.Domain, valsTable, histKeysTable, histValsTable, idxTable string) *Domain {
	return &Domain{
		cfg: cfg, kv: kvDomain,
		valsTable: valsTable, histKeysTable: histKeysTable,
		histValsTable: histValsTable, idxTable: idxTable,
	}
}

// EnableFrozenIndex attaches the optional compacted-shard accelerator
// backed by table; Compact must be called per key before Seeks against it
// can hit. Without this call GetAsOf reads the live InvertedIndex only.
func (d *Domain) EnableFrozenIndex(table string) { d.frozen = NewFrozenIndex(table) }

// CompactFrozenIndex rebuilds key k's frozen shard up to maxTxNum. No-op if
// EnableFrozenIndex was never called.
func (d *Domain) CompactFrozenIndex(tx kv.RwTx, k []byte, maxTxNum uint64) error {
	if d.frozen == nil {
		return nil
	}
	return d.frozen.Compact(tx, d.idxTable, k, maxTxNum)
}

func (d *Domain) step(txNum uint64) uint64 {
	if d.cfg.StepSize == 0 {
		return 0
	}
	return txNum / d.cfg.StepSize
}

// invertStep bitwise-complements the step so the newest step for a key
// sorts first under lexicographic order (spec §A.4.3, §A.9).
func invertStep(step uint64) uint64 { return ^step }

func encodeStepBE(step uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], step)
	return b[:]
}

// encodeKey builds the hot-table key K ‖ invert(step).
func encodeKey(k []byte, step uint64) []byte {
	out := make([]byte, 0, len(k)+8)
	out = append(out, k...)
	out = append(out, encodeStepBE(invertStep(step))...)
	return out
}

// encodeValue builds the hot-table value invert(step) ‖ raw_value.
func encodeValue(step uint64, raw []byte) []byte {
	out := make([]byte, 0, 8+len(raw))
	out = append(out, encodeStepBE(invertStep(step))...)
	out = append(out, raw...)
	return out
}

func decodeValue(stored []byte) (rawValue []byte, ok bool) {
	if len(stored) < 8 {
		return nil, false
	}
	return stored[8:], true
}

// isTombstone reports whether a decoded value represents a delete.
func isTombstone(raw []byte) bool { return len(raw) == 0 }

// GetLatest seeks the first key >= K with matching prefix and returns its
// value, or not-found (spec §A.4.3).
func (d *Domain) GetLatest(tx kv.Tx, k []byte) (value []byte, ok bool, err error) {
	c, err := tx.Cursor(d.valsTable)
	if err != nil {
		return nil, false, err
	}
	defer c.Close()

	seekKey := make([]byte, len(k), len(k)+8)
	copy(seekKey, k)
	// The newest step has the smallest invert(step) suffix, so the
	// zero-suffixed key is the smallest possible composite key with this
	// prefix; seeking it lands on the newest record for K, if any.
	seekKey = append(seekKey, 0, 0, 0, 0, 0, 0, 0, 0)

	foundKey, foundVal, err := c.Seek(seekKey)
	if err != nil {
		return nil, false, err
	}
	if foundKey == nil || len(foundKey) < len(k)+8 || string(foundKey[:len(k)]) != string(k) {
		return nil, false, nil
	}
	raw, okDecode := decodeValue(foundVal)
	if !okDecode {
		return nil, false, nil
	}
	if isTombstone(raw) {
		return nil, false, nil
	}
	return raw, true, nil
}

// Put writes K=V at the given global transaction number, updating History
// and the InvertedIndex when history is enabled (spec §A.4.3's History
// algorithm).
func (d *Domain) Put(tx kv.RwTx, k, v []byte, txNum uint64) error {
	return d.write(tx, k, v, txNum)
}

// Delete writes a tombstone for K at txNum.
func (d *Domain) Delete(tx kv.RwTx, k []byte, txNum uint64) error {
	return d.write(tx, k, nil, txNum)
}

// write applies one Domain mutation. The history values table records, at
// key K ‖ t, the value the write at t establishes (not its predecessor): this
// is what makes the literal get_as_of algorithm in spec §A.4.3 ("return the
// value recorded at K ‖ t*" for the largest t* <= t) agree with worked
// example S3, where get_as_of(a, 150) after Put(a, "v1", 100) must yield
// "v1" itself, not whatever preceded it. See DESIGN.md for this reading of
// the spec's History section.
func (d *Domain) write(tx kv.RwTx, k, v []byte, txNum uint64) error {
	step := d.step(txNum)

	if d.cfg.WithHistory {
		// 1. append t -> K to the per-domain keys table.
		if err := tx.Put(d.histKeysTable, encodeStepBE(txNum), k); err != nil {
			return err
		}
		// 2. append K ‖ t -> invert(step) ‖ V to the values table.
		histKey := make([]byte, 0, len(k)+8)
		histKey = append(histKey, k...)
		histKey = append(histKey, encodeStepBE(txNum)...)
		if err := tx.Put(d.histValsTable, histKey, encodeValue(step, v)); err != nil {
			return err
		}
		// 3. record K -> t in the inverted index.
		idxKey := make([]byte, 0, len(k)+8)
		idxKey = append(idxKey, k...)
		idxKey = append(idxKey, encodeStepBE(txNum)...)
		if err := tx.Put(d.idxTable, idxKey, nil); err != nil {
			return err
		}
	}

	newKey := encodeKey(k, step)
	return tx.Put(d.valsTable, newKey, encodeValue(step, v))
}

// GetAsOf implements the as-of algorithm from spec §A.4.3: consult the
// inverted index for the largest change tx t* <= t; if found, return the
// value recorded at that point (tombstone => not-found). If K has history
// entries but none at or before t, the key did not exist yet at t
// (not-found). Only when K has no history entries at all does GetAsOf fall
// back to GetLatest, which handles keys created before history existed.
func (d *Domain) GetAsOf(tx kv.Tx, k []byte, txNum uint64) (value []byte, ok bool, err error) {
	if !d.cfg.WithHistory {
		return d.GetLatest(tx, k)
	}

	idx := NewInvertedIndex(d.idxTable)
	var tStar uint64
	var found bool
	if d.frozen != nil {
		tStar, found, err = d.frozen.Seek(tx, k, txNum)
		if err != nil {
			return nil, false, err
		}
	}
	if !found {
		tStar, found, err = idx.Seek(tx, k, txNum)
		if err != nil {
			return nil, false, err
		}
	}
	if !found {
		hasAny, err := idx.HasAny(tx, k)
		if err != nil {
			return nil, false, err
		}
		if hasAny {
			return nil, false, nil
		}
		return d.GetLatest(tx, k)
	}

	histKey := make([]byte, 0, len(k)+8)
	histKey = append(histKey, k...)
	histKey = append(histKey, encodeStepBE(tStar)...)

	stored, err := tx.GetOne(d.histValsTable, histKey)
	if err != nil {
		return nil, false, err
	}
	raw, okDecode := decodeValue(stored)
	if !okDecode || isTombstone(raw) {
		return nil, false, nil
	}
	return raw, true, nil
}

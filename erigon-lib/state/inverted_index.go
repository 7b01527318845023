package state

import (
	"bytes"
	"encoding/binary"

	"github.com/corexec/corexec/erigon-lib/kv"
)

// InvertedIndex maps a domain key K to the sorted sequence of transaction
// numbers at which K changed (spec §A.4.3). It is stored as one row per
// (K, txNum) pair — key = K ‖ big-endian(txNum), value empty — so that a
// single cursor seek lands on the smallest entry >= a target, which this
// package inverts into "largest entry <= t" by seeking one past t and
// stepping back.
type InvertedIndex struct {
	table string
}

func NewInvertedIndex(table string) *InvertedIndex { return &InvertedIndex{table: table} }

// Seek returns the largest recorded tx number <= t for key k, or found=false
// if K has an entry but none at or before t.
func (idx *InvertedIndex) Seek(tx kv.Tx, k []byte, t uint64) (txNum uint64, found bool, err error) {
	c, err := tx.Cursor(idx.table)
	if err != nil {
		return 0, false, err
	}
	defer c.Close()

	// Seek to the first entry > t (t+1), then step back one to land on the
	// largest entry <= t.
	upper := make([]byte, len(k)+8)
	copy(upper, k)
	binary.BigEndian.PutUint64(upper[len(k):], t+1)
	if t == ^uint64(0) {
		// t is already maximal; there is no "t+1", seek past K entirely.
		upper = nextPrefix(k)
	}

	foundKey, _, err := c.Seek(upper)
	if err != nil {
		return 0, false, err
	}

	var candKey []byte
	if foundKey == nil || !bytes.HasPrefix(foundKey, k) {
		// No entry >= upper bound within K; the last entry for K (if any)
		// is the answer, so seek to the last row with prefix K directly.
		candKey, _, err = seekLastWithPrefix(c, k)
		if err != nil {
			return 0, false, err
		}
	} else {
		// foundKey has prefix k and txNum >= t+1; step back to the
		// previous row.
		candKey, _, err = c.Prev()
		if err != nil {
			return 0, false, err
		}
	}

	if candKey == nil || !bytes.HasPrefix(candKey, k) {
		return 0, false, nil
	}
	txNum = binary.BigEndian.Uint64(candKey[len(k):])
	if txNum > t {
		return 0, false, nil
	}
	return txNum, true, nil
}

// HasAny reports whether K has ever been recorded in the index, regardless
// of txNum — used to distinguish "key didn't exist yet at t" (some entries
// exist, all after t) from "key predates history tracking entirely" (no
// entries at all), which take the fallback-to-latest path per spec §A.4.3.
func (idx *InvertedIndex) HasAny(tx kv.Tx, k []byte) (bool, error) {
	c, err := tx.Cursor(idx.table)
	if err != nil {
		return false, err
	}
	defer c.Close()
	foundKey, _, err := c.Seek(k)
	if err != nil {
		return false, err
	}
	return foundKey != nil && bytes.HasPrefix(foundKey, k), nil
}

func seekLastWithPrefix(c kv.Cursor, prefix []byte) ([]byte, []byte, error) {
	np := nextPrefix(prefix)
	if np == nil {
		return c.Last()
	}
	k, v, err := c.Seek(np)
	if err != nil {
		return nil, nil, err
	}
	if k == nil {
		return c.Last()
	}
	return c.Prev()
}

// nextPrefix returns the smallest key greater than every key with the given
// prefix, or nil if prefix is all 0xff bytes (no successor representable).
func nextPrefix(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

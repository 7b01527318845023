package jsonrpc

import (
	"sync"

	"github.com/corexec/corexec/erigon-lib/common"
)

// filterKind distinguishes a log filter from a new-block filter; both are
// served by polling, per spec §C.9's "poll-only" façade design.
type filterKind int

const (
	logFilter filterKind = iota
	blockFilter
)

type filter struct {
	kind    filterKind
	query   FilterQuery
	lastSeenBlock uint64
}

// filterSet is the in-memory registry behind eth_newFilter/
// eth_newBlockFilter/eth_getFilterChanges. Filters are not persisted and do
// not survive a restart, matching every production JSON-RPC node's
// behavior for this method family.
type filterSet struct {
	mu      sync.Mutex
	next    uint64
	filters map[uint64]*filter
}

func newFilterSet() *filterSet {
	return &filterSet{filters: make(map[uint64]*filter)}
}

func (fs *filterSet) create(kind filterKind, q FilterQuery, head uint64) common.Quantity {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id := fs.next
	fs.next++
	fs.filters[id] = &filter{kind: kind, query: q, lastSeenBlock: head}
	return common.Quantity(id)
}

// poll returns the blocks (as hashes, for block filters) or an empty slice
// for log filters, since no log index exists yet to serve matches from
// (spec §A.9 lists Merkle-trie/EVM integration as the open points; log
// indexing has no dedicated storage in this build and is left honestly
// unimplemented rather than fabricated — see DESIGN.md).
func (fs *filterSet) poll(id uint64, head uint64, hashOf func(n uint64) (common.Hash, error)) ([]interface{}, error) {
	fs.mu.Lock()
	f, ok := fs.filters[id]
	fs.mu.Unlock()
	if !ok {
		return nil, ErrFilterNotFound
	}

	fs.mu.Lock()
	from := f.lastSeenBlock + 1
	f.lastSeenBlock = head
	kind := f.kind
	fs.mu.Unlock()

	if kind == logFilter || from > head {
		return []interface{}{}, nil
	}
	out := make([]interface{}, 0, head-from+1)
	for n := from; n <= head; n++ {
		h, err := hashOf(n)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Package memdb is an in-memory, ordered key-value engine implementing
// erigon-lib/kv's Tx/RwTx/Cursor contract. It stands in for MDBX (spec
// §A.6, §C.2): erigontech/mdbx-go is a cgo binding and has no place in a
// module that is never built with a C toolchain, so each table here is a
// tidwall/btree ordered tree, and its copy-on-write Copy gives every
// read-only transaction a stable view unaffected by concurrent commits.
package memdb

import (
	"bytes"
	"context"
	"sync"

	tbtree "github.com/tidwall/btree"

	"github.com/corexec/corexec/erigon-lib/kv"
)

type item struct {
	key, val []byte
}

func itemLess(a, b item) bool { return bytes.Compare(a.key, b.key) < 0 }

// DB is the in-memory engine. It holds one ordered tree per table and
// serializes writers while allowing readers to proceed against a frozen
// snapshot.
type DB struct {
	mu     sync.Mutex
	tables map[string]*tbtree.BTreeG[item]
	// writerActive guards the single-writer invariant (spec §A.5).
	writerActive bool
}

// New creates an empty engine with the given tables pre-created.
func New(tables []string) *DB {
	db := &DB{tables: make(map[string]*tbtree.BTreeG[item], len(tables))}
	for _, t := range tables {
		db.tables[t] = tbtree.NewBTreeG(itemLess)
	}
	return db
}

func (db *DB) Close() {}

func (db *DB) BeginRo(ctx context.Context) (kv.Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	snap := make(map[string]*tbtree.BTreeG[item], len(db.tables))
	for name, t := range db.tables {
		snap[name] = t.Copy()
	}
	return &roTx{db: db, tables: snap}, nil
}

func (db *DB) View(ctx context.Context, f func(tx kv.Tx) error) error {
	tx, err := db.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

func (db *DB) BeginRw(ctx context.Context) (kv.RwTx, error) {
	db.mu.Lock()
	if db.writerActive {
		db.mu.Unlock()
		return nil, kv.ErrTransactionInProgress
	}
	db.writerActive = true
	snap := make(map[string]*tbtree.BTreeG[item], len(db.tables))
	for name, t := range db.tables {
		snap[name] = t.Copy()
	}
	db.mu.Unlock()
	return &rwTx{roTx: roTx{db: db, tables: snap}}, nil
}

func (db *DB) Update(ctx context.Context, f func(tx kv.RwTx) error) error {
	tx, err := db.BeginRw(ctx)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type roTx struct {
	db     *DB
	tables map[string]*tbtree.BTreeG[item]
	done   bool
}

func (tx *roTx) table(name string) *tbtree.BTreeG[item] {
	t, ok := tx.tables[name]
	if !ok {
		t = tbtree.NewBTreeG(itemLess)
		tx.tables[name] = t
	}
	return t
}

func (tx *roTx) GetOne(table string, key []byte) ([]byte, error) {
	v, ok := tx.table(table).Get(item{key: key})
	if !ok {
		return nil, nil
	}
	return v.val, nil
}

func (tx *roTx) Has(table string, key []byte) (bool, error) {
	_, ok := tx.table(table).Get(item{key: key})
	return ok, nil
}

func (tx *roTx) Cursor(table string) (kv.Cursor, error) {
	return &cursor{t: tx.table(table)}, nil
}

func (tx *roTx) Rollback() { tx.done = true }

type rwTx struct {
	roTx
}

func (tx *rwTx) Put(table string, key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	tx.table(table).Set(item{key: k, val: v})
	return nil
}

func (tx *rwTx) Delete(table string, key []byte) error {
	tx.table(table).Delete(item{key: key})
	return nil
}

func (tx *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	return &cursor{t: tx.table(table), rw: tx}, nil
}

func (tx *rwTx) Commit() error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if tx.done {
		return kv.ErrNoTransactionActive
	}
	for name, t := range tx.tables {
		tx.db.tables[name] = t
	}
	tx.db.writerActive = false
	tx.done = true
	return nil
}

func (tx *rwTx) Rollback() {
	if tx.done {
		return
	}
	tx.db.mu.Lock()
	tx.db.writerActive = false
	tx.db.mu.Unlock()
	tx.done = true
}

// cursor walks a table's btree in key order. It holds its own position
// rather than an external iterator handle, matching the MDBX cursor model
// the rest of the engine is built against.
type cursor struct {
	t   *tbtree.BTreeG[item]
	rw  *rwTx
	cur item
	ok  bool
}

func (c *cursor) First() ([]byte, []byte, error) {
	it, ok := c.t.Min()
	if !ok {
		c.ok = false
		return nil, nil, nil
	}
	c.cur, c.ok = it, true
	return it.key, it.val, nil
}

func (c *cursor) Last() ([]byte, []byte, error) {
	it, ok := c.t.Max()
	if !ok {
		c.ok = false
		return nil, nil, nil
	}
	c.cur, c.ok = it, true
	return it.key, it.val, nil
}

func (c *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	var found item
	hasFound := false
	c.t.Ascend(item{key: seek}, func(it item) bool {
		found = it
		hasFound = true
		return false
	})
	if !hasFound {
		c.ok = false
		return nil, nil, nil
	}
	c.cur, c.ok = found, true
	return found.key, found.val, nil
}

func (c *cursor) SeekExact(key []byte) ([]byte, []byte, error) {
	it, ok := c.t.Get(item{key: key})
	if !ok {
		c.ok = false
		return nil, nil, nil
	}
	c.cur, c.ok = it, true
	return it.key, it.val, nil
}

func (c *cursor) Next() ([]byte, []byte, error) {
	if !c.ok {
		return nil, nil, nil
	}
	var next item
	found := false
	first := true
	c.t.Ascend(c.cur, func(it item) bool {
		if first {
			first = false
			return true // skip current position
		}
		next = it
		found = true
		return false
	})
	if !found {
		c.ok = false
		return nil, nil, nil
	}
	c.cur, c.ok = next, true
	return next.key, next.val, nil
}

func (c *cursor) Prev() ([]byte, []byte, error) {
	if !c.ok {
		return nil, nil, nil
	}
	var prev item
	found := false
	c.t.Descend(c.cur, func(it item) bool {
		if bytes.Equal(it.key, c.cur.key) {
			return true // skip current position
		}
		prev = it
		found = true
		return false
	})
	if !found {
		c.ok = false
		return nil, nil, nil
	}
	c.cur, c.ok = prev, true
	return prev.key, prev.val, nil
}

func (c *cursor) Close() {}

func (c *cursor) Put(k, v []byte) error {
	if c.rw == nil {
		return kv.ErrNoTransactionActive
	}
	key := append([]byte(nil), k...)
	val := append([]byte(nil), v...)
	c.t.Set(item{key: key, val: val})
	c.cur, c.ok = item{key: key, val: val}, true
	return nil
}

func (c *cursor) Delete(k []byte) error {
	if c.rw == nil {
		return kv.ErrNoTransactionActive
	}
	c.t.Delete(item{key: k})
	return nil
}

// Append is an optimization hint (caller guarantees ascending key order);
// the btree backend has no sorted-bulk-load fast path, so it is equivalent
// to Put.
func (c *cursor) Append(k, v []byte) error { return c.Put(k, v) }

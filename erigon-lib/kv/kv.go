// Package kv defines the key-value engine contract: named tables, ordered
// cursors, and read-only / read-write transactions, behaviorally
// equivalent to LMDB/MDBX (spec §A.6). Concrete engines (e.g. memdb) live
// in sub-packages.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound             = errors.New("kv: not found")
	ErrTransactionInProgress = errors.New("kv: transaction already in progress")
	ErrNoTransactionActive  = errors.New("kv: no transaction active")
	ErrCorruptedData        = errors.New("kv: corrupted data")
)

// Getter is the read surface shared by RO and RW transactions.
type Getter interface {
	GetOne(table string, key []byte) (val []byte, err error)
	Has(table string, key []byte) (bool, error)
	Cursor(table string) (Cursor, error)
}

// Putter is the write surface added by RW transactions.
type Putter interface {
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
	RwCursor(table string) (RwCursor, error)
}

// Tx is a read-only transaction: a consistent snapshot as of the moment it
// was opened, unaffected by concurrent writers.
type Tx interface {
	Getter
	Rollback()
}

// RwTx is a read-write transaction. Only one RwTx may be open at a time
// per database (single-writer); it also satisfies Tx for reads within the
// same transaction.
type RwTx interface {
	Tx
	Putter
	Commit() error
}

// Cursor iterates a table's key space in lexicographic key order.
type Cursor interface {
	First() (k, v []byte, err error)
	Seek(seek []byte) (k, v []byte, err error)
	SeekExact(key []byte) (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Last() (k, v []byte, err error)
	Close()
}

// RwCursor additionally supports mutation at the cursor's current position.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Delete(k []byte) error
	Append(k, v []byte) error
}

// RoDB opens read-only transactions.
type RoDB interface {
	BeginRo(ctx context.Context) (Tx, error)
	View(ctx context.Context, f func(tx Tx) error) error
	Close()
}

// RwDB opens read-write transactions; writes are serialized (single
// writer), reads may proceed concurrently against their own snapshot.
type RwDB interface {
	RoDB
	BeginRw(ctx context.Context) (RwTx, error)
	Update(ctx context.Context, f func(tx RwTx) error) error
}

// TemporalTx layers the Domain/History/InvertedIndex contract (spec
// §A.4.3) on top of a plain RwTx/Tx.
type TemporalTx interface {
	Tx
	// GetLatest returns the latest value for key k in the given domain.
	GetLatest(domain Domain, k []byte) (v []byte, ok bool, err error)
	// GetAsOf returns the value of k in domain as observed immediately
	// after the last write at or before txNum.
	GetAsOf(domain Domain, k []byte, txNum uint64) (v []byte, ok bool, err error)
}

// TemporalRwTx adds the writer half of the temporal contract.
type TemporalRwTx interface {
	TemporalTx
	RwTx
	// PutLatest writes k=v as of the given global transaction number.
	PutLatest(domain Domain, k, v []byte, txNum uint64) error
	// DeleteLatest writes a tombstone for k as of txNum.
	DeleteLatest(domain Domain, k []byte, txNum uint64) error
}

// Package stagedsync implements the resumable, unwind-capable staged sync
// pipeline (spec §A.4.2): Headers → BlockHashes → Bodies → Senders →
// Execution → TxLookup → Finish. No single file in the retrieved pack
// implements this package (the teacher's own eth/stagedsync tree was not
// among the retrieved files); the driver loop, context bundle, and stage
// list are written fresh from spec text following the teacher's general
// package-per-concern layout and its log/error conventions elsewhere.
package stagedsync

import (
	"context"

	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/log"
)

// Context bundles what a stage needs to run one execute/unwind cycle (spec
// §A.4.2: "Context bundles: writable KV transaction, current chain head,
// cancellation flag, log sink").
type Context struct {
	Ctx     context.Context
	Tx      kv.RwTx
	Head    uint64
	Logger  log.Logger
	Cancel  <-chan struct{}
}

func (c *Context) cancelled() bool {
	select {
	case <-c.Cancel:
		return true
	default:
		return false
	}
}

// Stage is the {execute, unwind} descriptor every pipeline step implements
// (spec §A.9: "Stages as {execute, unwind} descriptors driving the pipeline
// via a small array").
type Stage struct {
	Name    string
	Execute func(sc *Context, from, to uint64) error
	Unwind  func(sc *Context, to uint64) error
}

// Progress reads a stage's persisted progress from SyncStageProgress (spec
// §A.6: "Stage progress stored under SyncStageProgress, key = stage name,
// value = big-endian u64").
func Progress(tx kv.Tx, stage string) (uint64, error) {
	v, err := tx.GetOne(kv.SyncStageProgress, []byte(stage))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return decodeBE(v), nil
}

func SetProgress(tx kv.RwTx, stage string, progress uint64) error {
	return tx.Put(kv.SyncStageProgress, []byte(stage), encodeBE(progress))
}

func encodeBE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func decodeBE(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

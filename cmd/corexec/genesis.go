package main

import (
	"context"

	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/eth/stagedsync"
)

func beU64(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

// seedGenesis writes block 0 and every stage's progress marker, the floor
// every stage's from+1..to loop in eth/stagedsync/stages.go reads against.
// Without it HeadersStage's parent-hash lookup at height 0 always fails.
func seedGenesis(ctx context.Context, db kv.RwDB, gasLimit uint64) error {
	header := &types.Header{
		Number:     0,
		GasLimit:   gasLimit,
		Difficulty: common.NewU256(1),
		UncleHash:  types.EmptyUncleHash,
		TxHash:     types.ComputeTxRoot(nil),
		Root:       common.Hash{},
	}
	enc, err := header.EncodeRLP()
	if err != nil {
		return err
	}
	body := &types.Body{}
	bodyEnc, err := types.EncodeBodyRLP(body)
	if err != nil {
		return err
	}
	hash := header.Hash()

	return db.Update(ctx, func(tx kv.RwTx) error {
		if err := tx.Put(kv.Headers, beU64(0), enc); err != nil {
			return err
		}
		if err := tx.Put(kv.HeaderCanonical, beU64(0), hash.Bytes()); err != nil {
			return err
		}
		if err := tx.Put(kv.HeaderNumber, hash.Bytes(), beU64(0)); err != nil {
			return err
		}
		if err := tx.Put(kv.BlockBody, beU64(0), bodyEnc); err != nil {
			return err
		}
		for _, stage := range []string{"Headers", "BlockHashes", "Bodies", "Senders", "Execution", "TxLookup", "Finish"} {
			if err := stagedsync.SetProgress(tx, stage, 0); err != nil {
				return err
			}
		}
		return nil
	})
}

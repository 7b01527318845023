package main

import (
	"context"

	"github.com/corexec/corexec/core/txpool"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
	st "github.com/corexec/corexec/erigon-lib/state"
)

// poolAccountReader satisfies txpool.AccountReader by reading the latest
// account through the temporal store, the same path turbo/jsonrpc.Server
// uses for eth_getBalance/eth_getTransactionCount (spec §A.4.5 admission
// needs the same on-chain nonce/balance view the RPC façade exposes).
type poolAccountReader struct {
	db  kv.RwDB
	agg *st.Aggregator
}

func (r *poolAccountReader) AccountState(addr common.Address) (txpool.AccountState, error) {
	tx, err := r.db.BeginRo(context.Background())
	if err != nil {
		return txpool.AccountState{}, err
	}
	defer tx.Rollback()

	ttx := st.NewTemporalTx(tx, r.agg)
	enc, ok, err := ttx.GetLatest(kv.AccountsDomain, addr[:])
	if err != nil {
		return txpool.AccountState{}, err
	}
	if !ok || len(enc) == 0 {
		return txpool.AccountState{Nonce: 0, Balance: common.NewU256(0)}, nil
	}
	acc, err := types.DecodeAccountFromStorage(enc)
	if err != nil {
		return txpool.AccountState{}, err
	}
	return txpool.AccountState{Nonce: acc.Nonce, Balance: acc.Balance}, nil
}

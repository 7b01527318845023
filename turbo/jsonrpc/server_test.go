package jsonrpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/core/txpool"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/kv/memdb"
	"github.com/corexec/corexec/erigon-lib/log"
	st "github.com/corexec/corexec/erigon-lib/state"
	"github.com/corexec/corexec/eth/stagedsync"
)

type zeroReader struct{}

func (zeroReader) AccountState(common.Address) (txpool.AccountState, error) {
	return txpool.AccountState{Nonce: 0, Balance: common.NewU256(1_000_000)}, nil
}

func newTestServer(t *testing.T) (*Server, kv.RwDB, common.Address) {
	t.Helper()
	db := memdb.New(kv.ChaindataTables)
	agg := st.NewAggregator(8192, false)

	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	acc := &types.Account{Balance: common.NewU256(42), Nonce: 7, CodeHash: types.EmptyCodeHash}

	header := &types.Header{Number: 1, GasLimit: 30_000_000, GasUsed: 21_000, Difficulty: common.NewU256(0), UncleHash: types.EmptyUncleHash, TxHash: types.ComputeTxRoot(nil)}

	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)

	ttx := st.NewTemporalRwTx(tx, agg)
	require.NoError(t, ttx.PutLatest(kv.AccountsDomain, addr[:], acc.EncodeForStorage(), 0))

	enc, err := header.EncodeRLP()
	require.NoError(t, err)
	require.NoError(t, tx.Put(kv.Headers, beU64(1), enc))
	require.NoError(t, tx.Put(kv.HeaderCanonical, beU64(1), header.Hash().Bytes()))
	require.NoError(t, tx.Put(kv.HeaderNumber, header.Hash().Bytes(), beU64(1)))
	body := &types.Body{}
	bodyEnc, err := types.EncodeBodyRLP(body)
	require.NoError(t, err)
	require.NoError(t, tx.Put(kv.BlockBody, beU64(1), bodyEnc))
	require.NoError(t, stagedsync.SetProgress(tx, "Finish", 1))
	require.NoError(t, stagedsync.SetProgress(tx, "Headers", 1))
	require.NoError(t, tx.Commit())

	pool := txpool.New(zeroReader{}, 30_000_000, common.NewU256(0), 16, 1024)
	return NewServer(db, agg, pool, 1337, log.Nop{}), db, addr
}

func TestBlockNumberReflectsFinishProgress(t *testing.T) {
	server, _, _ := newTestServer(t)
	n, err := server.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, common.Quantity(1), n)
}

func TestGetBalanceReadsLatestAccount(t *testing.T) {
	server, _, addr := newTestServer(t)
	bal, err := server.GetBalance(context.Background(), addr, BlockTag{Tag: "latest"})
	require.NoError(t, err)
	require.Equal(t, common.Quantity(42), bal)
}

func TestGetTransactionCountReadsNonce(t *testing.T) {
	server, _, addr := newTestServer(t)
	n, err := server.GetTransactionCount(context.Background(), addr, BlockTag{})
	require.NoError(t, err)
	require.Equal(t, common.Quantity(7), n)
}

func TestGetBalanceUnknownAddressIsZero(t *testing.T) {
	server, _, _ := newTestServer(t)
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	bal, err := server.GetBalance(context.Background(), other, BlockTag{})
	require.NoError(t, err)
	require.Equal(t, common.Quantity(0), bal)
}

func TestGetBlockByNumberReturnsHeaderFields(t *testing.T) {
	server, _, _ := newTestServer(t)
	view, err := server.GetBlockByNumber(context.Background(), BlockTag{Tag: "latest"}, false)
	require.NoError(t, err)
	require.Equal(t, common.Quantity(1), view.Number)
	require.Equal(t, uint64(30_000_000), uint64(view.GasLimit))
}

func TestCallReturnsNotImplemented(t *testing.T) {
	server, _, _ := newTestServer(t)
	_, err := server.Call(context.Background(), CallArgs{}, BlockTag{})
	require.ErrorIs(t, err, ErrEVMNotImplemented)
}

func TestSendRawTransactionRejectsGarbage(t *testing.T) {
	server, _, _ := newTestServer(t)
	_, err := server.SendRawTransaction([]byte{0xff, 0x01})
	require.Error(t, err)
}

func TestNewBlockFilterThenGetFilterChanges(t *testing.T) {
	server, _, _ := newTestServer(t)
	id, err := server.NewBlockFilter(context.Background())
	require.NoError(t, err)

	changes, err := server.GetFilterChanges(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestGetFilterChangesUnknownID(t *testing.T) {
	server, _, _ := newTestServer(t)
	_, err := server.GetFilterChanges(context.Background(), 999)
	require.ErrorIs(t, err, ErrFilterNotFound)
}

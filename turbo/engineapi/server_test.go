package engineapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/consensus"
	"github.com/corexec/corexec/consensus/merge"
	"github.com/corexec/corexec/core/txpool"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/kv/memdb"
	"github.com/corexec/corexec/erigon-lib/log"
	"github.com/corexec/corexec/eth/stagedsync"
)

func zeroSelector() consensus.Selector {
	pos := merge.New(nil)
	return consensus.Selector{MergeHeight: 0, PoW: pos, PoS: pos}
}

type zeroReader struct{}

func (zeroReader) AccountState(common.Address) (txpool.AccountState, error) {
	return txpool.AccountState{Nonce: 0, Balance: common.NewU256(0)}, nil
}

func testGenesis() *types.Header {
	return &types.Header{UncleHash: types.EmptyUncleHash, Difficulty: common.NewU256(0), Number: 0, GasLimit: 30_000_000}
}

func newTestServer(t *testing.T) (*Server, kv.RwDB) {
	t.Helper()
	db := memdb.New(kv.ChaindataTables)

	genesis := testGenesis()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	enc, err := genesis.EncodeRLP()
	require.NoError(t, err)
	require.NoError(t, tx.Put(kv.Headers, []byte{0, 0, 0, 0, 0, 0, 0, 0}, enc))
	require.NoError(t, tx.Put(kv.HeaderCanonical, []byte{0, 0, 0, 0, 0, 0, 0, 0}, genesis.Hash().Bytes()))
	require.NoError(t, stagedsync.SetProgress(tx, "Finish", 0))
	require.NoError(t, tx.Commit())

	source := NewPayloadSource()
	stages := []stagedsync.Stage{
		stagedsync.HeadersStage(source, zeroSelector()),
		stagedsync.BlockHashesStage(),
		stagedsync.BodiesStage(source),
		stagedsync.TxLookupStage(),
		stagedsync.FinishStage(nil),
	}
	driver := stagedsync.NewDriver(stages, db, log.Nop{})
	pool := txpool.New(zeroReader{}, 30_000_000, common.NewU256(0), 16, 1024)
	return NewServer(db, driver, source, pool, log.Nop{}), db
}

func TestNewPayloadRejectsBadHash(t *testing.T) {
	server, _ := newTestServer(t)
	payload := validBasePayload()
	payload.BlockHash = common.HexToHash("0xdead")

	status, err := server.NewPayload(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, InvalidStatus, status.Status)
}

func TestNewPayloadRejectsOversizedExtraData(t *testing.T) {
	server, _ := newTestServer(t)
	payload := validBasePayload()
	payload.ExtraData = make([]byte, 64)

	status, err := server.NewPayload(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, InvalidStatus, status.Status)
}

func TestNewPayloadAcceptsContiguousBlock(t *testing.T) {
	server, db := newTestServer(t)
	payload := validBasePayload()
	payload.ParentHash = testGenesis().Hash()
	payload.BlockHash = headerFromPayload(payload).Hash()

	status, err := server.NewPayload(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, ValidStatus, status.Status)

	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	defer roTx.Rollback()
	prog, err := stagedsync.Progress(roTx, "Finish")
	require.NoError(t, err)
	require.Equal(t, uint64(1), prog)
}

func TestNewPayloadReturnsSyncingOnGap(t *testing.T) {
	server, _ := newTestServer(t)
	payload := validBasePayload()
	payload.BlockNumber = 5
	payload.BlockHash = headerFromPayload(payload).Hash()

	status, err := server.NewPayload(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, SyncingStatus, status.Status)
}

func TestForkchoiceUpdatedBuildsPayload(t *testing.T) {
	server, _ := newTestServer(t)
	req := &ForkChoiceUpdatedRequest{
		State: ForkChoiceState{HeadBlockHash: common.HexToHash("0x01")},
		Attributes: &PayloadAttributes{
			Timestamp:             2000,
			SuggestedFeeRecipient: common.HexToAddress("0x02"),
		},
	}
	resp, err := server.ForkchoiceUpdated(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.PayloadID)

	got, err := server.GetPayload(*resp.PayloadID)
	require.NoError(t, err)
	require.NotNil(t, got.ExecutionPayload)
}

func validBasePayload() *ExecutionPayload {
	return &ExecutionPayload{
		ParentHash:    common.Hash{},
		FeeRecipient:  common.HexToAddress("0x01"),
		GasLimit:      30_000_000,
		GasUsed:       0,
		BlockNumber:   1,
		Timestamp:     1000,
		LogsBloom:     make([]byte, 256),
	}
}

func headerFromPayload(p *ExecutionPayload) *types.Header {
	h := &types.Header{
		ParentHash:  p.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    p.FeeRecipient,
		TxHash:      types.ComputeTxRoot(nil),
		ReceiptHash: p.ReceiptsRoot,
		Number:      uint64(p.BlockNumber),
		GasLimit:    uint64(p.GasLimit),
		GasUsed:     uint64(p.GasUsed),
		Time:        uint64(p.Timestamp),
		Extra:       p.ExtraData,
		Difficulty:  common.NewU256(0),
	}
	return h
}

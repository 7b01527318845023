package stagedsync

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/consensus"
	"github.com/corexec/corexec/consensus/ethash"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/crypto"
	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/kv/memdb"
	"github.com/corexec/corexec/erigon-lib/log"
)

type fakeHeaderSource struct {
	headers map[uint64]*types.Header
}

func (f *fakeHeaderSource) HeaderByNumber(ctx context.Context, n uint64) (*types.Header, error) {
	return f.headers[n], nil
}

type fakeBodySource struct {
	bodies map[uint64]*types.Body
}

func (f *fakeBodySource) BodyByNumber(ctx context.Context, n uint64) (*types.Body, error) {
	return f.bodies[n], nil
}

func genesisHeader() *types.Header {
	return &types.Header{
		UncleHash:  types.EmptyUncleHash,
		Difficulty: common.NewU256(ethash.MinimumDifficulty),
		Number:     0,
		GasLimit:   30_000_000,
		Time:       1000,
	}
}

func childHeader(t *testing.T, parent *types.Header, engine *ethash.Ethash, number uint64, time uint64) *types.Header {
	t.Helper()
	h := &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Number:     number,
		GasLimit:   parent.GasLimit,
		Time:       time,
		MixDigest:  common.HexToHash("0x01"),
	}
	h.TxHash = types.ComputeTxRoot(nil)
	h.Difficulty = engine.CalcDifficulty(time, parent)
	return h
}

func newMemDB() kv.RwDB { return memdb.New(kv.ChaindataTables) }

func seedGenesis(t *testing.T, db kv.RwDB, header *types.Header) {
	t.Helper()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	enc, err := header.EncodeRLP()
	require.NoError(t, err)
	require.NoError(t, tx.Put(kv.Headers, beU64(0), enc))
	require.NoError(t, tx.Put(kv.HeaderCanonical, beU64(0), header.Hash().Bytes()))
	require.NoError(t, tx.Commit())
}

func TestHeadersStageAcceptsValidChain(t *testing.T) {
	db := newMemDB()
	genesis := genesisHeader()
	seedGenesis(t, db, genesis)

	engine := ethash.New(ethash.ForkSchedule{})
	h1 := childHeader(t, genesis, engine, 1, 1013)
	source := &fakeHeaderSource{headers: map[uint64]*types.Header{1: h1}}
	selector := consensus.Selector{MergeHeight: 1_000_000, PoW: engine, PoS: engine}

	stage := HeadersStage(source, selector)

	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	sc := &Context{Ctx: context.Background(), Tx: tx, Logger: log.Nop{}, Cancel: make(chan struct{})}
	require.NoError(t, stage.Execute(sc, 0, 1))
	require.NoError(t, tx.Commit())

	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	defer roTx.Rollback()
	enc, err := roTx.GetOne(kv.Headers, beU64(1))
	require.NoError(t, err)
	require.NotNil(t, enc)
	got, err := decodeHeader(enc)
	require.NoError(t, err)
	require.Equal(t, h1.Hash(), got.Hash())
}

func TestHeadersStageRejectsParentMismatch(t *testing.T) {
	db := newMemDB()
	genesis := genesisHeader()
	seedGenesis(t, db, genesis)

	engine := ethash.New(ethash.ForkSchedule{})
	h1 := childHeader(t, genesis, engine, 1, 1013)
	h1.ParentHash = common.HexToHash("0xbad")
	source := &fakeHeaderSource{headers: map[uint64]*types.Header{1: h1}}
	selector := consensus.Selector{MergeHeight: 1_000_000, PoW: engine, PoS: engine}

	stage := HeadersStage(source, selector)
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	sc := &Context{Ctx: context.Background(), Tx: tx, Logger: log.Nop{}, Cancel: make(chan struct{})}
	require.ErrorIs(t, stage.Execute(sc, 0, 1), ErrHeaderDivergence)
}

func TestBodiesStageVerifiesTxRoot(t *testing.T) {
	db := newMemDB()
	genesis := genesisHeader()
	engine := ethash.New(ethash.ForkSchedule{})
	h1 := childHeader(t, genesis, engine, 1, 1013)

	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	enc, err := h1.EncodeRLP()
	require.NoError(t, err)
	require.NoError(t, tx.Put(kv.Headers, beU64(1), enc))
	require.NoError(t, tx.Put(kv.HeaderCanonical, beU64(1), h1.Hash().Bytes()))
	require.NoError(t, tx.Commit())

	source := &fakeBodySource{bodies: map[uint64]*types.Body{1: {}}}
	stage := BodiesStage(source)

	rtx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer rtx.Rollback()
	sc := &Context{Ctx: context.Background(), Tx: rtx, Logger: log.Nop{}, Cancel: make(chan struct{})}
	require.NoError(t, stage.Execute(sc, 0, 1))
}

func TestSendersStageRecoversSigner(t *testing.T) {
	priv, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	require.NoError(t, err)
	wantAddr := crypto.PubkeyToAddress(&priv.PublicKey)

	tx := &types.Transaction{
		Type:     types.LegacyTxType,
		Nonce:    0,
		GasLimit: 21000,
		Value:    common.NewU256(0),
		GasPrice: common.NewU256(1),
	}
	digest := tx.Hash()
	r, s, v, err := crypto.Sign(digest.Bytes(), priv)
	require.NoError(t, err)
	tx.R, tx.S, tx.V = r, s, v

	body := &types.Body{Transactions: []*types.Transaction{tx}}
	enc, err := types.EncodeBodyRLP(body)
	require.NoError(t, err)

	db := newMemDB()
	rwTx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	require.NoError(t, rwTx.Put(kv.BlockBody, beU64(1), enc))
	require.NoError(t, rwTx.Commit())

	recoverFn := func(tx *types.Transaction) (common.Address, error) {
		digest := tx.Hash()
		pub, err := crypto.RecoverPubkey(digest.Bytes(), tx.R, tx.S, tx.V)
		if err != nil {
			return common.Address{}, err
		}
		return crypto.PubkeyToAddress(pub), nil
	}
	stage := SendersStage(recoverFn)

	tx2, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx2.Rollback()
	sc := &Context{Ctx: context.Background(), Tx: tx2, Logger: log.Nop{}, Cancel: make(chan struct{})}
	require.NoError(t, stage.Execute(sc, 0, 1))

	got, err := tx2.GetOne(kv.EthTx, append(beU64(1), beU64(0)...))
	require.NoError(t, err)
	require.Equal(t, wantAddr.Bytes(), got)
}

func TestDriverRunsStagesToTarget(t *testing.T) {
	db := newMemDB()
	genesis := genesisHeader()
	seedGenesis(t, db, genesis)

	engine := ethash.New(ethash.ForkSchedule{})
	h1 := childHeader(t, genesis, engine, 1, 1013)
	headerSource := &fakeHeaderSource{headers: map[uint64]*types.Header{1: h1}}
	bodySource := &fakeBodySource{bodies: map[uint64]*types.Body{1: {}}}
	selector := consensus.Selector{MergeHeight: 1_000_000, PoW: engine, PoS: engine}

	var publishedHead uint64
	stages := []Stage{
		HeadersStage(headerSource, selector),
		BlockHashesStage(),
		BodiesStage(bodySource),
		TxLookupStage(),
		FinishStage(func(h uint64) { publishedHead = h }),
	}
	driver := NewDriver(stages, db, log.Nop{})

	sc := &Context{Ctx: context.Background(), Logger: log.Nop{}, Cancel: make(chan struct{})}
	require.NoError(t, driver.RunToHead(sc, 1))
	require.Equal(t, uint64(1), publishedHead)

	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	defer roTx.Rollback()
	prog, err := Progress(roTx, "Headers")
	require.NoError(t, err)
	require.Equal(t, uint64(1), prog)
}

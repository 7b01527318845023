package engineapi

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/corexec/corexec/core/txpool"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/log"
	"github.com/corexec/corexec/eth/stagedsync"
)

const (
	keyForkchoiceHead      = "ForkchoiceHead"
	keyForkchoiceSafe      = "ForkchoiceSafe"
	keyForkchoiceFinalized = "ForkchoiceFinalized"
)

// payloadSource feeds a single engine-delivered block to the HeadersStage
// and BodiesStage of an otherwise network-fed pipeline (spec §A.5: "Engine
// API handler runs on its own thread, enqueues work to the driver"). The
// Server mutates it immediately before each RunToHead call; the driver is
// single-threaded-cooperative so this is race-free under Server.mu.
type payloadSource struct {
	number uint64
	header *types.Header
	body   *types.Body
}

func (s *payloadSource) HeaderByNumber(ctx context.Context, n uint64) (*types.Header, error) {
	if n != s.number {
		return nil, fmt.Errorf("engineapi: no buffered header at %d", n)
	}
	return s.header, nil
}

func (s *payloadSource) BodyByNumber(ctx context.Context, n uint64) (*types.Body, error) {
	if n != s.number {
		return nil, fmt.Errorf("engineapi: no buffered body at %d", n)
	}
	return s.body, nil
}

// Server implements new_payload / forkchoice_updated / get_payload (spec
// §A.4.6), delegating execution to the staged sync driver and payload
// bodies to the transaction pool's pending set.
type Server struct {
	db     kv.RwDB
	driver *stagedsync.Driver
	source *payloadSource
	pool   *txpool.Pool
	logger log.Logger

	mu      sync.Mutex
	built   map[string]*GetPayloadResponse
	nextSeq uint64
}

func NewServer(db kv.RwDB, driver *stagedsync.Driver, source *payloadSource, pool *txpool.Pool, logger log.Logger) *Server {
	return &Server{
		db:     db,
		driver: driver,
		source: source,
		pool:   pool,
		logger: logger,
		built:  make(map[string]*GetPayloadResponse),
	}
}

// NewPayloadSource constructs the shared buffer a Server and its driver's
// HeadersStage/BodiesStage must be wired with at startup.
func NewPayloadSource() *payloadSource { return &payloadSource{} }

// NewPayload validates and executes one engine-delivered block (spec
// §A.4.6). Structural checks run before any KV access.
func (s *Server) NewPayload(ctx context.Context, payload *ExecutionPayload) (*PayloadStatus, error) {
	if err := ValidateStructure(payload); err != nil {
		reason := err.Error()
		return &PayloadStatus{Status: InvalidStatus, ValidationError: &reason}, nil
	}

	txs := make([]*types.Transaction, 0, len(payload.Transactions))
	for i, raw := range payload.Transactions {
		tx, err := types.DecodeTransactionRLP(raw)
		if err != nil {
			reason := fmt.Sprintf("transaction %d: %v", i, err)
			return &PayloadStatus{Status: InvalidStatus, ValidationError: &reason}, nil
		}
		txs = append(txs, tx)
	}

	header := &types.Header{
		ParentHash:  payload.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    payload.FeeRecipient,
		Root:        payload.StateRoot,
		TxHash:      types.ComputeTxRoot(txs),
		ReceiptHash: payload.ReceiptsRoot,
		Number:      uint64(payload.BlockNumber),
		GasLimit:    uint64(payload.GasLimit),
		GasUsed:     uint64(payload.GasUsed),
		Time:        uint64(payload.Timestamp),
		Extra:       payload.ExtraData,
		MixDigest:   payload.PrevRandao,
		Difficulty:  common.NewU256(0),
	}
	copy(header.Bloom[:], payload.LogsBloom)
	if payload.BaseFeePerGas != 0 {
		baseFee := common.NewU256(uint64(payload.BaseFeePerGas))
		header.BaseFee = baseFee
	}
	if payload.WithdrawalsHash != nil {
		header.WithdrawalsHash = payload.WithdrawalsHash
	}
	if payload.BlobGasUsed != nil {
		v := uint64(*payload.BlobGasUsed)
		header.BlobGasUsed = &v
	}
	if payload.ExcessBlobGas != nil {
		v := uint64(*payload.ExcessBlobGas)
		header.ExcessBlobGas = &v
	}

	if header.Hash() != payload.BlockHash {
		s.logger.Warn("new_payload: block hash mismatch", "stated", payload.BlockHash, "computed", header.Hash())
		reason := "invalid block hash"
		return &PayloadStatus{Status: InvalidStatus, ValidationError: &reason}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	headTx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	head, err := stagedsync.Progress(headTx, "Finish")
	headTx.Rollback()
	if err != nil {
		return nil, err
	}

	if uint64(payload.BlockNumber) != head+1 {
		return &PayloadStatus{Status: SyncingStatus}, nil
	}

	s.source.number = uint64(payload.BlockNumber)
	s.source.header = header
	s.source.body = &types.Body{Transactions: txs}

	cancel := make(chan struct{})
	sc := &stagedsync.Context{Ctx: ctx, Logger: s.logger, Cancel: cancel}
	if err := s.driver.RunToHead(sc, uint64(payload.BlockNumber)); err != nil {
		parent := payload.ParentHash
		reason := err.Error()
		s.logger.Warn("new_payload: execution rejected block", "number", payload.BlockNumber, "err", err)
		return &PayloadStatus{Status: InvalidStatus, LatestValidHash: &parent, ValidationError: &reason}, nil
	}

	hash := payload.BlockHash
	return &PayloadStatus{Status: ValidStatus, LatestValidHash: &hash}, nil
}

// ForkchoiceUpdated updates the head/safe/finalized pointers and, if
// payload attributes are supplied, begins assembling a new payload (spec
// §A.4.6).
func (s *Server) ForkchoiceUpdated(ctx context.Context, req *ForkChoiceUpdatedRequest) (*ForkChoiceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginRw(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.Put(kv.ConfigTable, []byte(keyForkchoiceHead), req.State.HeadBlockHash.Bytes()); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Put(kv.ConfigTable, []byte(keyForkchoiceSafe), req.State.SafeBlockHash.Bytes()); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Put(kv.ConfigTable, []byte(keyForkchoiceFinalized), req.State.FinalizedBlockHash.Bytes()); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	status := PayloadStatus{Status: ValidStatus, LatestValidHash: &req.State.HeadBlockHash}
	if req.Attributes == nil {
		return &ForkChoiceResponse{PayloadStatus: status}, nil
	}

	headTx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	headNum, err := stagedsync.Progress(headTx, "Finish")
	headTx.Rollback()
	if err != nil {
		return nil, err
	}

	resp, id := s.buildPayload(headNum+1, req.State.HeadBlockHash, req.Attributes)
	s.built[id] = resp
	return &ForkChoiceResponse{PayloadStatus: status, PayloadID: &id}, nil
}

// GetPayload returns a previously assembled payload (spec §A.4.6).
func (s *Server) GetPayload(id string) (*GetPayloadResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.built[id]
	if !ok {
		return nil, fmt.Errorf("engineapi: unknown payload id %q", id)
	}
	return resp, nil
}

// buildPayload assembles a candidate block from the pool's pending
// transactions atop the forkchoice head (spec §A.4.6 "get_payload(id):
// return currently best payload for id"; tx-root and receipts-root are
// the same placeholder root documented in core/types.ComputeTxRoot, not a
// real Merkle Patricia Trie).
func (s *Server) buildPayload(number uint64, headHash common.Hash, attrs *PayloadAttributes) (*GetPayloadResponse, string) {
	var selected []*types.Transaction
	for _, perSender := range s.pool.Pending() {
		selected = append(selected, perSender...)
	}

	txRoot := types.ComputeTxRoot(selected)
	header := &types.Header{
		ParentHash:  headHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    attrs.SuggestedFeeRecipient,
		TxHash:      txRoot,
		ReceiptHash: txRoot,
		MixDigest:   attrs.PrevRandao,
		Number:      number,
		Time:        uint64(attrs.Timestamp),
		Difficulty:  common.NewU256(0),
	}

	rawTxs := make([]common.Bytes, 0, len(selected))
	for _, tx := range selected {
		enc, err := tx.EncodeRLP()
		if err != nil {
			continue
		}
		rawTxs = append(rawTxs, enc)
	}

	payload := &ExecutionPayload{
		ParentHash:    header.ParentHash,
		FeeRecipient:  header.Coinbase,
		StateRoot:     header.Root,
		ReceiptsRoot:  header.ReceiptHash,
		PrevRandao:    header.MixDigest,
		BlockNumber:   common.Quantity(header.Number),
		GasLimit:      common.Quantity(header.GasLimit),
		GasUsed:       common.Quantity(header.GasUsed),
		Timestamp:     common.Quantity(header.Time),
		ExtraData:     header.Extra,
		BlockHash:     header.Hash(),
		Transactions:  rawTxs,
	}

	id := computePayloadID(s.nextSeq, headHash, attrs)
	s.nextSeq++
	return &GetPayloadResponse{ExecutionPayload: payload}, id
}

// GetPayloadBodiesByHash resolves bodies for a batch of block hashes (spec
// §A.6 engine_getPayloadBodiesByHashV1); entries for unknown hashes are nil.
func (s *Server) GetPayloadBodiesByHash(ctx context.Context, hashes []common.Hash) ([]*ExecutionPayloadBodyV1, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := make([]*ExecutionPayloadBodyV1, len(hashes))
	for i, h := range hashes {
		numEnc, err := tx.GetOne(kv.HeaderNumber, h.Bytes())
		if err != nil {
			return nil, err
		}
		if numEnc == nil {
			continue
		}
		body, err := s.readBody(tx, numEnc)
		if err != nil {
			return nil, err
		}
		out[i] = body
	}
	return out, nil
}

// GetPayloadBodiesByRange resolves bodies for [start, start+count) (spec
// §A.6 engine_getPayloadBodiesByRangeV1); missing blocks are nil entries.
func (s *Server) GetPayloadBodiesByRange(ctx context.Context, start, count uint64) ([]*ExecutionPayloadBodyV1, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := make([]*ExecutionPayloadBodyV1, count)
	for i := uint64(0); i < count; i++ {
		body, err := s.readBody(tx, beU64(start+i))
		if err != nil {
			return nil, err
		}
		out[i] = body
	}
	return out, nil
}

func (s *Server) readBody(tx kv.Tx, numKey []byte) (*ExecutionPayloadBodyV1, error) {
	enc, err := tx.GetOne(kv.BlockBody, numKey)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, nil
	}
	body, err := types.DecodeBodyRLP(enc)
	if err != nil {
		return nil, err
	}
	txs := make([]common.Bytes, 0, len(body.Transactions))
	for _, t := range body.Transactions {
		raw, err := t.EncodeRLP()
		if err != nil {
			return nil, err
		}
		txs = append(txs, raw)
	}
	return &ExecutionPayloadBodyV1{Transactions: txs}, nil
}

func beU64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// computePayloadID derives a deterministic payload id from the head hash
// and build attributes, the way op-program's l2_engine_api.go derives
// engine.PayloadID from a SHA-256 digest; this repo uses its own Keccak256
// primitive instead of importing crypto/sha256 for a single call site.
func computePayloadID(seq uint64, headHash common.Hash, attrs *PayloadAttributes) string {
	var buf []byte
	buf = append(buf, headHash.Bytes()...)
	buf = append(buf, byte(attrs.Timestamp), byte(attrs.Timestamp>>8), byte(attrs.Timestamp>>16), byte(attrs.Timestamp>>24))
	buf = append(buf, attrs.SuggestedFeeRecipient.Bytes()...)
	buf = append(buf, byte(seq), byte(seq>>8))
	digest := common.Keccak256(buf)
	return common.EncodeHexString(digest[:8])
}

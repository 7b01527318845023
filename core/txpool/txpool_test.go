package txpool

import (
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/crypto"
)

type fakeReader struct {
	accounts map[common.Address]AccountState
}

func (f *fakeReader) AccountState(addr common.Address) (AccountState, error) {
	if s, ok := f.accounts[addr]; ok {
		return s, nil
	}
	return AccountState{Nonce: 0, Balance: common.NewU256(0)}, nil
}

func signedTx(t *testing.T, priv *ecdsa.PrivateKey, nonce uint64, gasPrice uint64, gasLimit uint64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		Type:     types.LegacyTxType,
		Nonce:    nonce,
		GasLimit: gasLimit,
		Value:    common.NewU256(0),
		GasPrice: common.NewU256(gasPrice),
	}
	digest := tx.Hash()
	r, s, v, err := crypto.Sign(digest.Bytes(), priv)
	require.NoError(t, err)
	tx.R, tx.S, tx.V = r, s, v
	return tx
}

func newKeyAndAddr(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	require.NoError(t, err)
	return priv, crypto.PubkeyToAddress(&priv.PublicKey)
}

func TestAddPromotesMatchingNonceToPending(t *testing.T) {
	priv, addr := newKeyAndAddr(t)
	reader := &fakeReader{accounts: map[common.Address]AccountState{
		addr: {Nonce: 0, Balance: common.NewU256(1_000_000_000_000)},
	}}
	pool := New(reader, 30_000_000, common.NewU256(1), 16, 1024)

	tx := signedTx(t, priv, 0, 10, 21000)
	require.NoError(t, pool.Add(tx))

	pending := pool.Pending()
	require.Len(t, pending[addr], 1)
}

func TestAddQueuesFutureNonce(t *testing.T) {
	priv, addr := newKeyAndAddr(t)
	reader := &fakeReader{accounts: map[common.Address]AccountState{
		addr: {Nonce: 0, Balance: common.NewU256(1_000_000_000_000)},
	}}
	pool := New(reader, 30_000_000, common.NewU256(1), 16, 1024)

	tx := signedTx(t, priv, 1, 10, 21000)
	require.NoError(t, pool.Add(tx))

	pending := pool.Pending()
	require.Empty(t, pending[addr])
}

func TestPromotionChainsAcrossContiguousNonces(t *testing.T) {
	priv, addr := newKeyAndAddr(t)
	reader := &fakeReader{accounts: map[common.Address]AccountState{
		addr: {Nonce: 0, Balance: common.NewU256(1_000_000_000_000)},
	}}
	pool := New(reader, 30_000_000, common.NewU256(1), 16, 1024)

	require.NoError(t, pool.Add(signedTx(t, priv, 1, 10, 21000)))
	require.NoError(t, pool.Add(signedTx(t, priv, 2, 10, 21000)))
	require.NoError(t, pool.Add(signedTx(t, priv, 0, 10, 21000)))

	pending := pool.Pending()
	require.Len(t, pending[addr], 3)
}

func TestReplacementRequiresBump(t *testing.T) {
	priv, addr := newKeyAndAddr(t)
	reader := &fakeReader{accounts: map[common.Address]AccountState{
		addr: {Nonce: 0, Balance: common.NewU256(1_000_000_000_000)},
	}}
	pool := New(reader, 30_000_000, common.NewU256(1), 16, 1024)

	require.NoError(t, pool.Add(signedTx(t, priv, 0, 100, 21000)))
	require.ErrorIs(t, pool.Add(signedTx(t, priv, 0, 105, 21000)), ErrUnderpriced)
	require.NoError(t, pool.Add(signedTx(t, priv, 0, 110, 21000)))
}

func TestNonceTooLowRejected(t *testing.T) {
	priv, addr := newKeyAndAddr(t)
	reader := &fakeReader{accounts: map[common.Address]AccountState{
		addr: {Nonce: 5, Balance: common.NewU256(1_000_000_000_000)},
	}}
	pool := New(reader, 30_000_000, common.NewU256(1), 16, 1024)

	require.ErrorIs(t, pool.Add(signedTx(t, priv, 4, 10, 21000)), ErrNonceTooLow)
}

func TestInsufficientFundsRejected(t *testing.T) {
	priv, addr := newKeyAndAddr(t)
	reader := &fakeReader{accounts: map[common.Address]AccountState{
		addr: {Nonce: 0, Balance: common.NewU256(100)},
	}}
	pool := New(reader, 30_000_000, common.NewU256(1), 16, 1024)

	require.ErrorIs(t, pool.Add(signedTx(t, priv, 0, 10, 21000)), ErrInsufficientFunds)
}

func TestIntrinsicGasTooLowRejected(t *testing.T) {
	priv, addr := newKeyAndAddr(t)
	reader := &fakeReader{accounts: map[common.Address]AccountState{
		addr: {Nonce: 0, Balance: common.NewU256(1_000_000_000_000)},
	}}
	pool := New(reader, 30_000_000, common.NewU256(1), 16, 1024)

	require.ErrorIs(t, pool.Add(signedTx(t, priv, 0, 10, 1000)), ErrIntrinsicGasTooLow)
}

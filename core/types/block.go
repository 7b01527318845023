package types

import (
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/rlp"
)

// Body is a block's transactions and uncle headers, fetched and stored
// separately from the header (spec §A.4.2 Bodies stage).
type Body struct {
	Transactions []*Transaction
	Uncles       []*Header
}

// Block pairs a header with its body.
type Block struct {
	Header *Header
	Body   *Body
}

// ComputeTxRoot is a placeholder root over the transaction list: a real
// implementation uses a Merkle Patricia Trie keyed by RLP-encoded tx index
// (spec §A.9 Open Questions: "Merkle Patricia Trie storage-root
// computation" is an explicit stubbed integration point). This computes
// Keccak256 over the concatenation of each transaction's own hash, which
// is order-sensitive and collision-resistant but not interoperable with
// the real Ethereum trie root.
func ComputeTxRoot(txs []*Transaction) common.Hash {
	var buf []byte
	for _, tx := range txs {
		h := tx.Hash()
		buf = append(buf, h.Bytes()...)
	}
	return common.Keccak256Hash(buf)
}

// ComputeUncleHash is Keccak256 of the RLP list of uncle headers; for zero
// uncles this equals EmptyUncleHash.
func ComputeUncleHash(uncles []*Header) common.Hash {
	if len(uncles) == 0 {
		return EmptyUncleHash
	}
	var payload []byte
	for _, u := range uncles {
		enc, err := u.EncodeRLP()
		if err != nil {
			panic(err)
		}
		payload = append(payload, enc...)
	}
	return common.Keccak256Hash(rlp.EncodeList(nil, payload))
}

// EncodeBodyRLP and DecodeBodyRLP are the BlockBody table's storage
// encoding: a two-element list of [transactions-list, uncles-list], each
// wrapping its members' own canonical RLP (spec §A.6's BlockBody table).
func EncodeBodyRLP(b *Body) ([]byte, error) {
	var txsPayload []byte
	for _, tx := range b.Transactions {
		enc, err := tx.EncodeRLP()
		if err != nil {
			return nil, err
		}
		txsPayload = rlp.EncodeString(txsPayload, enc)
	}
	var unclesPayload []byte
	for _, u := range b.Uncles {
		enc, err := u.EncodeRLP()
		if err != nil {
			return nil, err
		}
		unclesPayload = append(unclesPayload, enc...)
	}
	var payload []byte
	payload = rlp.EncodeList(payload, txsPayload)
	payload = rlp.EncodeList(payload, unclesPayload)
	return rlp.EncodeList(nil, payload), nil
}

func DecodeBodyRLP(enc []byte) (*Body, error) {
	outer, err := rlp.NewStream(enc).List()
	if err != nil {
		return nil, err
	}
	txsList, err := outer.List()
	if err != nil {
		return nil, err
	}
	b := &Body{}
	for txsList.Len() > 0 {
		raw, err := txsList.Bytes()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransactionRLP(raw)
		if err != nil {
			return nil, err
		}
		b.Transactions = append(b.Transactions, tx)
	}
	unclesList, err := outer.List()
	if err != nil {
		return nil, err
	}
	for unclesList.Len() > 0 {
		headerList, err := unclesList.List()
		if err != nil {
			return nil, err
		}
		h, err := decodeHeaderFromStream(headerList)
		if err != nil {
			return nil, err
		}
		b.Uncles = append(b.Uncles, h)
	}
	return b, nil
}

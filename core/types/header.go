// Package types defines the block and transaction data model: headers, the
// five transaction variants, receipts, and accounts (spec §A.3).
package types

import (
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/rlp"
)

// BlockNonce is the 8-byte PoW nonce, repurposed as zero post-merge.
type BlockNonce [8]byte

func EncodeNonce(i uint64) (n BlockNonce) {
	for idx := 0; idx < 8; idx++ {
		n[7-idx] = byte(i)
		i >>= 8
	}
	return n
}

func (n BlockNonce) Uint64() uint64 {
	var v uint64
	for _, b := range n {
		v = v<<8 | uint64(b)
	}
	return v
}

// Header is the block header (spec §A.3). Optional fork-specific fields are
// nil/absent before their activation block.
type Header struct {
	ParentHash  common.Hash
	UncleHash   common.Hash
	Coinbase    common.Address
	Root        common.Hash // state root
	TxHash      common.Hash
	ReceiptHash common.Hash
	Bloom       common.Bloom
	Difficulty  *common.U256
	Number      uint64
	GasLimit    uint64
	GasUsed     uint64
	Time        uint64
	Extra       []byte
	MixDigest   common.Hash // PREVRANDAO post-merge
	Nonce       BlockNonce

	BaseFee *common.U256 // London+

	WithdrawalsHash *common.Hash // Shanghai+

	BlobGasUsed   *uint64 // Cancun+
	ExcessBlobGas *uint64 // Cancun+

	ParentBeaconRoot *common.Hash // Cancun+

	RequestsHash *common.Hash // Prague+
}

// IsPostMerge reports whether the header is shaped like a PoS block
// (spec §A.3 invariant: difficulty = 0, nonce = 0, empty uncles).
func (h *Header) IsPostMerge() bool {
	return h.Difficulty != nil && h.Difficulty.IsZero() && h.Nonce.Uint64() == 0
}

// EncodeRLP produces the canonical RLP encoding used for Hash().
func (h *Header) EncodeRLP() ([]byte, error) {
	var payload []byte
	payload = rlp.EncodeString(payload, h.ParentHash.Bytes())
	payload = rlp.EncodeString(payload, h.UncleHash.Bytes())
	payload = rlp.EncodeString(payload, h.Coinbase.Bytes())
	payload = rlp.EncodeString(payload, h.Root.Bytes())
	payload = rlp.EncodeString(payload, h.TxHash.Bytes())
	payload = rlp.EncodeString(payload, h.ReceiptHash.Bytes())
	payload = rlp.EncodeString(payload, h.Bloom.Bytes())
	payload = rlp.EncodeString(payload, u256Bytes(h.Difficulty))
	payload = rlp.EncodeUint64(payload, h.Number)
	payload = rlp.EncodeUint64(payload, h.GasLimit)
	payload = rlp.EncodeUint64(payload, h.GasUsed)
	payload = rlp.EncodeUint64(payload, h.Time)
	payload = rlp.EncodeString(payload, h.Extra)
	payload = rlp.EncodeString(payload, h.MixDigest.Bytes())
	payload = rlp.EncodeString(payload, h.Nonce[:])

	if h.BaseFee != nil {
		payload = rlp.EncodeString(payload, u256Bytes(h.BaseFee))
	}
	if h.WithdrawalsHash != nil {
		payload = rlp.EncodeString(payload, h.WithdrawalsHash.Bytes())
	}
	if h.BlobGasUsed != nil {
		payload = rlp.EncodeUint64(payload, *h.BlobGasUsed)
	}
	if h.ExcessBlobGas != nil {
		payload = rlp.EncodeUint64(payload, *h.ExcessBlobGas)
	}
	if h.ParentBeaconRoot != nil {
		payload = rlp.EncodeString(payload, h.ParentBeaconRoot.Bytes())
	}
	if h.RequestsHash != nil {
		payload = rlp.EncodeString(payload, h.RequestsHash.Bytes())
	}

	var out []byte
	out = rlp.EncodeList(out, payload)
	return out, nil
}

// Hash returns Keccak256 of the header's canonical RLP encoding.
func (h *Header) Hash() common.Hash {
	enc, err := h.EncodeRLP()
	if err != nil {
		panic(err) // canonical headers always encode
	}
	return common.Keccak256Hash(enc)
}

func u256Bytes(v *common.U256) []byte {
	if v == nil {
		return nil
	}
	b := v.Bytes()
	return b
}

// EmptyUncleHash is Keccak256 of the RLP empty list, the only legal uncle
// hash once PoS is active (spec §A.4.1).
var EmptyUncleHash = common.Keccak256Hash(rlp.ListHeader(0))

// DecodeHeaderRLP reverses EncodeRLP for the KV store's own Headers table.
// Optional suffix fields (BaseFee onward) are read in the same fixed order
// EncodeRLP appends them in, stopping as soon as the list stream is
// exhausted — the internal storage encoding needs no fork-activation
// lookup to know which optional fields a given header carries.
func DecodeHeaderRLP(enc []byte) (*Header, error) {
	list, err := rlp.NewStream(enc).List()
	if err != nil {
		return nil, err
	}
	return decodeHeaderFromStream(list)
}

// decodeHeaderFromStream reads a header from a stream already positioned at
// the start of its list payload, used both by DecodeHeaderRLP and by
// DecodeBodyRLP when reading uncle headers nested inside a body.
func decodeHeaderFromStream(list *rlp.Stream) (*Header, error) {
	var err error
	h := &Header{}
	if h.ParentHash, err = readHash(list); err != nil {
		return nil, err
	}
	if h.UncleHash, err = readHash(list); err != nil {
		return nil, err
	}
	if addrB, err := list.Bytes(); err != nil {
		return nil, err
	} else {
		h.Coinbase = common.BytesToAddress(addrB)
	}
	if h.Root, err = readHash(list); err != nil {
		return nil, err
	}
	if h.TxHash, err = readHash(list); err != nil {
		return nil, err
	}
	if h.ReceiptHash, err = readHash(list); err != nil {
		return nil, err
	}
	if bloomB, err := list.Bytes(); err != nil {
		return nil, err
	} else {
		copy(h.Bloom[:], bloomB)
	}
	if h.Difficulty, err = readU256(list); err != nil {
		return nil, err
	}
	if h.Number, err = list.Uint64(); err != nil {
		return nil, err
	}
	if h.GasLimit, err = list.Uint64(); err != nil {
		return nil, err
	}
	if h.GasUsed, err = list.Uint64(); err != nil {
		return nil, err
	}
	if h.Time, err = list.Uint64(); err != nil {
		return nil, err
	}
	if h.Extra, err = list.Bytes(); err != nil {
		return nil, err
	}
	if len(h.Extra) == 0 {
		h.Extra = nil
	}
	if h.MixDigest, err = readHash(list); err != nil {
		return nil, err
	}
	if nonceB, err := list.Bytes(); err != nil {
		return nil, err
	} else {
		copy(h.Nonce[:], nonceB)
	}

	if list.Len() > 0 {
		if h.BaseFee, err = readU256(list); err != nil {
			return nil, err
		}
	}
	if list.Len() > 0 {
		hash, err := readHash(list)
		if err != nil {
			return nil, err
		}
		h.WithdrawalsHash = &hash
	}
	if list.Len() > 0 {
		v, err := list.Uint64()
		if err != nil {
			return nil, err
		}
		h.BlobGasUsed = &v
	}
	if list.Len() > 0 {
		v, err := list.Uint64()
		if err != nil {
			return nil, err
		}
		h.ExcessBlobGas = &v
	}
	if list.Len() > 0 {
		hash, err := readHash(list)
		if err != nil {
			return nil, err
		}
		h.ParentBeaconRoot = &hash
	}
	if list.Len() > 0 {
		hash, err := readHash(list)
		if err != nil {
			return nil, err
		}
		h.RequestsHash = &hash
	}
	return h, nil
}

func readHash(s *rlp.Stream) (common.Hash, error) {
	b, err := s.Bytes()
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(b), nil
}

func readU256(s *rlp.Stream) (*common.U256, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	v := new(common.U256)
	v.SetBytes(b)
	return v, nil
}

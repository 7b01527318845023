package types

import (
	"errors"
	"math/big"

	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/rlp"
)

// TxType is the leading type byte on the wire (spec §A.3).
type TxType byte

const (
	LegacyTxType TxType = iota
	AccessListTxType
	DynamicFeeTxType
	BlobTxType
	SetCodeTxType
)

var (
	ErrBlobTxMissingRecipient    = errors.New("types: blob tx must have a recipient")
	ErrSetCodeTxMissingRecipient = errors.New("types: set-code tx must have a recipient")
	ErrTypedTxMissingChainID     = errors.New("types: typed tx must encode chain id")
)

// AccessTuple is one (address, storage keys) entry of an EIP-2930 access
// list.
type AccessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}

// Authorization is one EIP-7702 authorization-list entry.
type Authorization struct {
	ChainID uint64
	Address common.Address
	Nonce   uint64
	V       byte
	R, S    *big.Int
}

// Signature holds the (v, r, s) ECDSA signature shared by every tx type.
type Signature struct {
	V byte
	R *big.Int
	S *big.Int
}

// Transaction is the tagged variant over the five tx kinds. Fields not
// meaningful to a given Type are left zero/nil; Validate enforces the
// per-type constraints from spec §A.3.
type Transaction struct {
	Type TxType

	ChainID   uint64 // required for all but LegacyTxType
	Nonce     uint64
	GasLimit  uint64
	To        *common.Address // nil ⇒ contract creation
	Value     *common.U256
	Data      []byte

	GasPrice  *common.U256 // legacy, access-list
	Tip       *common.U256 // dynamic-fee, blob, set-code: max priority fee
	FeeCap    *common.U256 // dynamic-fee, blob, set-code: max fee per gas

	AccessList []AccessTuple // access-list, dynamic-fee, blob, set-code

	BlobVersionedHashes []common.Hash // blob only
	BlobFeeCap          *common.U256  // blob only: max fee per blob gas

	AuthList []Authorization // set-code only

	Signature
}

// Validate enforces the structural constraints from spec §A.3.
func (tx *Transaction) Validate() error {
	if tx.Type == BlobTxType && tx.To == nil {
		return ErrBlobTxMissingRecipient
	}
	if tx.Type == SetCodeTxType && tx.To == nil {
		return ErrSetCodeTxMissingRecipient
	}
	if tx.Type != LegacyTxType && tx.ChainID == 0 {
		return ErrTypedTxMissingChainID
	}
	return nil
}

// IsContractCreation reports whether To is absent.
func (tx *Transaction) IsContractCreation() bool { return tx.To == nil }

// EffectiveGasPrice implements spec §A.4.5: legacy/access-list use
// gas_price directly; the fee-market types use
// min(tip_cap, fee_cap - base_fee) + base_fee, clamped to >= 0.
func (tx *Transaction) EffectiveGasPrice(baseFee *common.U256) *common.U256 {
	switch tx.Type {
	case LegacyTxType, AccessListTxType:
		return tx.GasPrice.Clone()
	default:
		if baseFee == nil {
			return tx.FeeCap.Clone()
		}
		headroom := new(common.U256)
		if tx.FeeCap.Cmp(baseFee) <= 0 {
			return common.NewU256(0)
		}
		headroom.Sub(tx.FeeCap, baseFee)
		tipOrHeadroom := tx.Tip.Clone()
		if headroom.Cmp(tx.Tip) < 0 {
			tipOrHeadroom = headroom
		}
		result := new(common.U256)
		result.Add(tipOrHeadroom, baseFee)
		return result
	}
}

// IntrinsicGas computes the minimum gas required before EVM execution
// (spec §A.4.5): 21000 base, 53000 for creation, 4/16 gas per zero/non-zero
// data byte, +2400 per access-list address, +1900 per storage key, +25000
// per EIP-7702 authorization.
func (tx *Transaction) IntrinsicGas() (uint64, error) {
	var gas uint64 = 21000
	if tx.IsContractCreation() {
		gas = 53000
	}

	var zeroes, nonZeroes uint64
	for _, b := range tx.Data {
		if b == 0 {
			zeroes++
		} else {
			nonZeroes++
		}
	}
	gas += zeroes * 4
	gas += nonZeroes * 16

	for _, tuple := range tx.AccessList {
		gas += 2400
		gas += uint64(len(tuple.StorageKeys)) * 1900
	}

	gas += uint64(len(tx.AuthList)) * 25000

	return gas, nil
}

// Hash returns the canonical signing/identity hash: Keccak256 of the type
// byte (if typed) followed by the RLP payload, with the signature fields
// encoded as zero so that signing and sender recovery hash the same bytes.
func (tx *Transaction) Hash() common.Hash {
	unsigned := *tx
	unsigned.Signature = Signature{R: new(big.Int), S: new(big.Int)}
	enc, err := unsigned.EncodeRLP()
	if err != nil {
		panic(err)
	}
	return common.Keccak256Hash(enc)
}

// EncodeRLP produces the type-prefixed wire encoding (spec §A.6: "transaction
// type byte precedes RLP for typed transactions; absent for legacy").
func (tx *Transaction) EncodeRLP() ([]byte, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	var payload []byte
	if tx.Type != LegacyTxType {
		payload = rlp.EncodeUint64(payload, tx.ChainID)
	}
	payload = rlp.EncodeUint64(payload, tx.Nonce)
	if tx.Type == LegacyTxType || tx.Type == AccessListTxType {
		payload = rlp.EncodeString(payload, tx.GasPrice.Bytes())
	} else {
		payload = rlp.EncodeString(payload, tx.Tip.Bytes())
		payload = rlp.EncodeString(payload, tx.FeeCap.Bytes())
	}
	payload = rlp.EncodeUint64(payload, tx.GasLimit)
	if tx.To != nil {
		payload = rlp.EncodeString(payload, tx.To.Bytes())
	} else {
		payload = rlp.EncodeString(payload, nil)
	}
	payload = rlp.EncodeString(payload, tx.Value.Bytes())
	payload = rlp.EncodeString(payload, tx.Data)

	if tx.Type != LegacyTxType {
		payload = append(payload, encodeAccessList(tx.AccessList)...)
	}
	if tx.Type == BlobTxType {
		payload = rlp.EncodeString(payload, tx.BlobFeeCap.Bytes())
		var hashesPayload []byte
		for _, h := range tx.BlobVersionedHashes {
			hashesPayload = rlp.EncodeString(hashesPayload, h.Bytes())
		}
		payload = rlp.EncodeList(payload, hashesPayload)
	}
	if tx.Type == SetCodeTxType {
		payload = append(payload, encodeAuthList(tx.AuthList)...)
	}

	payload = rlp.EncodeUint64(payload, uint64(tx.V))
	payload = rlp.EncodeString(payload, tx.R.Bytes())
	payload = rlp.EncodeString(payload, tx.S.Bytes())

	var out []byte
	out = rlp.EncodeList(out, payload)
	if tx.Type != LegacyTxType {
		out = append([]byte{byte(tx.Type)}, out...)
	}
	return out, nil
}

func encodeAccessList(list []AccessTuple) []byte {
	var payload []byte
	for _, tuple := range list {
		var tuplePayload []byte
		tuplePayload = rlp.EncodeString(tuplePayload, tuple.Address.Bytes())
		var keysPayload []byte
		for _, k := range tuple.StorageKeys {
			keysPayload = rlp.EncodeString(keysPayload, k.Bytes())
		}
		tuplePayload = rlp.EncodeList(tuplePayload, keysPayload)
		payload = rlp.EncodeList(payload, tuplePayload)
	}
	var out []byte
	return rlp.EncodeList(out, payload)
}

// DecodeTransactionRLP reverses EncodeRLP for the KV store's own
// BlockBody table. The leading type byte (values 1-4) distinguishes a
// typed transaction from a legacy one, which starts directly with an RLP
// list prefix (0xc0+), mirroring the asymmetry EncodeRLP produces.
func DecodeTransactionRLP(enc []byte) (*Transaction, error) {
	if len(enc) == 0 {
		return nil, errors.New("types: empty transaction encoding")
	}
	tx := &Transaction{}
	body := enc
	switch enc[0] {
	case byte(AccessListTxType), byte(DynamicFeeTxType), byte(BlobTxType), byte(SetCodeTxType):
		tx.Type = TxType(enc[0])
		body = enc[1:]
	default:
		tx.Type = LegacyTxType
	}

	list, err := rlp.NewStream(body).List()
	if err != nil {
		return nil, err
	}

	if tx.Type != LegacyTxType {
		if tx.ChainID, err = list.Uint64(); err != nil {
			return nil, err
		}
	}
	if tx.Nonce, err = list.Uint64(); err != nil {
		return nil, err
	}
	if tx.Type == LegacyTxType || tx.Type == AccessListTxType {
		if tx.GasPrice, err = readU256(list); err != nil {
			return nil, err
		}
	} else {
		if tx.Tip, err = readU256(list); err != nil {
			return nil, err
		}
		if tx.FeeCap, err = readU256(list); err != nil {
			return nil, err
		}
	}
	if tx.GasLimit, err = list.Uint64(); err != nil {
		return nil, err
	}
	toB, err := list.Bytes()
	if err != nil {
		return nil, err
	}
	if len(toB) > 0 {
		addr := common.BytesToAddress(toB)
		tx.To = &addr
	}
	if tx.Value, err = readU256(list); err != nil {
		return nil, err
	}
	if tx.Data, err = list.Bytes(); err != nil {
		return nil, err
	}

	if tx.Type != LegacyTxType {
		if tx.AccessList, err = decodeAccessList(list); err != nil {
			return nil, err
		}
	}
	if tx.Type == BlobTxType {
		if tx.BlobFeeCap, err = readU256(list); err != nil {
			return nil, err
		}
		hashesList, err := list.List()
		if err != nil {
			return nil, err
		}
		for hashesList.Len() > 0 {
			h, err := readHash(hashesList)
			if err != nil {
				return nil, err
			}
			tx.BlobVersionedHashes = append(tx.BlobVersionedHashes, h)
		}
	}
	if tx.Type == SetCodeTxType {
		if tx.AuthList, err = decodeAuthList(list); err != nil {
			return nil, err
		}
	}

	vU64, err := list.Uint64()
	if err != nil {
		return nil, err
	}
	tx.V = byte(vU64)
	if tx.R, err = readBigInt(list); err != nil {
		return nil, err
	}
	if tx.S, err = readBigInt(list); err != nil {
		return nil, err
	}
	return tx, nil
}

func decodeAccessList(s *rlp.Stream) ([]AccessTuple, error) {
	outer, err := s.List()
	if err != nil {
		return nil, err
	}
	var list []AccessTuple
	for outer.Len() > 0 {
		entry, err := outer.List()
		if err != nil {
			return nil, err
		}
		addrB, err := entry.Bytes()
		if err != nil {
			return nil, err
		}
		keysList, err := entry.List()
		if err != nil {
			return nil, err
		}
		var keys []common.Hash
		for keysList.Len() > 0 {
			h, err := readHash(keysList)
			if err != nil {
				return nil, err
			}
			keys = append(keys, h)
		}
		list = append(list, AccessTuple{Address: common.BytesToAddress(addrB), StorageKeys: keys})
	}
	return list, nil
}

func decodeAuthList(s *rlp.Stream) ([]Authorization, error) {
	outer, err := s.List()
	if err != nil {
		return nil, err
	}
	var list []Authorization
	for outer.Len() > 0 {
		entry, err := outer.List()
		if err != nil {
			return nil, err
		}
		a := Authorization{}
		if a.ChainID, err = entry.Uint64(); err != nil {
			return nil, err
		}
		addrB, err := entry.Bytes()
		if err != nil {
			return nil, err
		}
		a.Address = common.BytesToAddress(addrB)
		if a.Nonce, err = entry.Uint64(); err != nil {
			return nil, err
		}
		vU64, err := entry.Uint64()
		if err != nil {
			return nil, err
		}
		a.V = byte(vU64)
		if a.R, err = readBigInt(entry); err != nil {
			return nil, err
		}
		if a.S, err = readBigInt(entry); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, nil
}

func readBigInt(s *rlp.Stream) (*big.Int, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func encodeAuthList(list []Authorization) []byte {
	var payload []byte
	for _, a := range list {
		var entry []byte
		entry = rlp.EncodeUint64(entry, a.ChainID)
		entry = rlp.EncodeString(entry, a.Address.Bytes())
		entry = rlp.EncodeUint64(entry, a.Nonce)
		entry = rlp.EncodeUint64(entry, uint64(a.V))
		entry = rlp.EncodeString(entry, a.R.Bytes())
		entry = rlp.EncodeString(entry, a.S.Bytes())
		payload = rlp.EncodeList(payload, entry)
	}
	var out []byte
	return rlp.EncodeList(out, payload)
}

package types

import (
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/rlp"
)

// EncodeForStorage produces the compact encoding persisted in the
// temporal store's accounts Domain: RLP(balance, nonce, codeHash,
// storageRoot[, delegation]).
func (a *Account) EncodeForStorage() []byte {
	var payload []byte
	payload = rlp.EncodeString(payload, a.Balance.Bytes())
	payload = rlp.EncodeUint64(payload, a.Nonce)
	payload = rlp.EncodeString(payload, a.CodeHash.Bytes())
	payload = rlp.EncodeString(payload, a.StorageRoot.Bytes())
	if a.Delegation != nil {
		payload = rlp.EncodeString(payload, a.Delegation.Bytes())
	}
	var out []byte
	return rlp.EncodeList(out, payload)
}

// DecodeAccountFromStorage is the inverse of EncodeForStorage.
func DecodeAccountFromStorage(enc []byte) (*Account, error) {
	s := rlp.NewStream(enc)
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	balB, err := list.Bytes()
	if err != nil {
		return nil, err
	}
	nonce, err := list.Uint64()
	if err != nil {
		return nil, err
	}
	codeHashB, err := list.Bytes()
	if err != nil {
		return nil, err
	}
	storageRootB, err := list.Bytes()
	if err != nil {
		return nil, err
	}
	acc := &Account{
		Balance:     new(common.U256).SetBytes(balB),
		Nonce:       nonce,
		CodeHash:    common.BytesToHash(codeHashB),
		StorageRoot: common.BytesToHash(storageRootB),
	}
	if list.Len() > 0 {
		delB, err := list.Bytes()
		if err == nil && len(delB) == 20 {
			d := common.BytesToAddress(delB)
			acc.Delegation = &d
		}
	}
	return acc, nil
}

package types

import "github.com/corexec/corexec/erigon-lib/common"

// EmptyCodeHash is Keccak256 of the empty byte string, the code hash of an
// externally-owned account.
var EmptyCodeHash = common.Keccak256Hash(nil)

// Account is the per-address state record (spec §A.3).
type Account struct {
	Balance     *common.U256
	Nonce       uint64
	CodeHash    common.Hash
	StorageRoot common.Hash
	// Delegation is the EIP-7702 delegated-code target; nil when the
	// account carries its own code (or none).
	Delegation *common.Address
}

// IsEmpty reports whether the account is indistinguishable from one that
// never existed (EIP-161): zero nonce, zero balance, no code.
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && a.CodeHash == EmptyCodeHash
}

// StorageKey builds the 72-byte composite storage key (spec §A.3):
// address hash ⊕ slot hash ⊕ 8-byte incarnation.
func StorageKey(addrHash, slotHash common.Hash, incarnation uint64) [72]byte {
	var k [72]byte
	copy(k[:32], addrHash.Bytes())
	copy(k[32:64], slotHash.Bytes())
	for i := 0; i < 8; i++ {
		k[71-i] = byte(incarnation)
		incarnation >>= 8
	}
	return k
}

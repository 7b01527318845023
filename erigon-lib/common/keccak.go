package common

import (
	"golang.org/x/crypto/sha3"
)

// Keccak256 returns the Keccak256 digest of the concatenation of the given
// byte slices. This is the original (pre-NIST) Keccak padding used
// throughout Ethereum, not SHA3-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Keccak256Hash is Keccak256 with the result wrapped as a Hash.
func Keccak256Hash(data ...[]byte) Hash {
	return BytesToHash(Keccak256(data...))
}

package common

import (
	"encoding/hex"
	"strings"
)

// ChecksumAddress implements EIP-55: each hex digit of the address is
// upper-cased when the corresponding nibble of Keccak256(lowercase hex) is
// >= 8, lower-cased otherwise.
func ChecksumAddress(a Address) string {
	lower := hex.EncodeToString(a[:])
	hash := Keccak256([]byte(lower))
	hashHex := hex.EncodeToString(hash)

	var sb strings.Builder
	sb.WriteString("0x")
	for i, c := range lower {
		if c >= '0' && c <= '9' {
			sb.WriteRune(c)
			continue
		}
		// hashHex[i] is a hex digit 0-f; treat as nibble value.
		nibble := hashHex[i]
		var v int
		switch {
		case nibble >= '0' && nibble <= '9':
			v = int(nibble - '0')
		default:
			v = int(nibble-'a') + 10
		}
		if v >= 8 {
			sb.WriteRune(c - 32) // upper-case
		} else {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// IsValidChecksumAddress verifies that a mixed-case hex address string
// matches its EIP-55 checksum. Pure lower-case or pure upper-case input
// (no casing information) is accepted without a checksum check.
func IsValidChecksumAddress(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 2*AddressLength {
		return false
	}
	lower := strings.ToLower(s)
	if s == lower || s == strings.ToUpper(s) {
		return true
	}
	b, err := hex.DecodeString(lower)
	if err != nil {
		return false
	}
	return ChecksumAddress(BytesToAddress(b)) == "0x"+s
}

// HexToAddress parses a hex-encoded address, with or without 0x prefix.
func HexToAddress(s string) Address {
	s = strings.TrimPrefix(s, "0x")
	b, _ := hex.DecodeString(s)
	return BytesToAddress(b)
}

// HexToHash parses a hex-encoded hash, with or without 0x prefix.
func HexToHash(s string) Hash {
	s = strings.TrimPrefix(s, "0x")
	b, _ := hex.DecodeString(s)
	return BytesToHash(b)
}

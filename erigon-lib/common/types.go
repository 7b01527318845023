// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package common holds the chain-agnostic primitives shared by every layer of
// the client: fixed-size hashes and addresses, and the 256-bit integer used
// for balances, difficulty and gas accounting.
package common

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

const (
	HashLength    = 32
	AddressLength = 20
)

// Hash is a 32-byte Keccak256 digest: a block hash, a state root, a
// transaction hash, a storage slot, or a log topic.
type Hash [HashLength]byte

func BytesToHash(b []byte) (h Hash) {
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte   { return h[:] }
func (h Hash) String() string  { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool    { return h == (Hash{}) }
func (h Hash) Cmp(o Hash) int  { return bytes.Compare(h[:], o[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	b, err := DecodeHexString(string(text))
	if err != nil {
		return err
	}
	*h = BytesToHash(b)
	return nil
}

// Address is a 20-byte account or contract address.
type Address [AddressLength]byte

func BytesToAddress(b []byte) (a Address) {
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte  { return a[:] }
func (a Address) Hash() Hash     { return BytesToHash(a[:]) }
func (a Address) IsZero() bool   { return a == (Address{}) }
func (a Address) Cmp(o Address) int { return bytes.Compare(a[:], o[:]) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	b, err := DecodeHexString(string(text))
	if err != nil {
		return err
	}
	*a = BytesToAddress(b)
	return nil
}

// String renders the EIP-55 mixed-case checksum form.
func (a Address) String() string {
	return ChecksumAddress(a)
}

// U256 is the 256-bit unsigned integer used for balances, difficulty, gas
// price and storage values. It is a thin alias over holiman/uint256 so the
// rest of the codebase never touches math/big on the hot path.
type U256 = uint256.Int

func NewU256(x uint64) *U256 { return uint256.NewInt(x) }

// Bloom is the 256-byte logs bloom filter carried by headers and receipts.
type Bloom [256]byte

func (b *Bloom) Add(data []byte) {
	hash := Keccak256(data)
	for i := 0; i < 3; i++ {
		bitIdx := 2048 - uint((uint(hash[i*2])<<8|uint(hash[i*2+1]))&0x7ff) - 1
		b[bitIdx/8] |= 1 << (bitIdx % 8)
	}
}

func (b Bloom) Bytes() []byte { return b[:] }

func (b *Bloom) OrWith(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

func BloomFromLogs(addrs [][]byte, topics [][]byte) Bloom {
	var b Bloom
	for _, a := range addrs {
		b.Add(a)
	}
	for _, t := range topics {
		b.Add(t)
	}
	return b
}

func (h Hash) GoString() string    { return fmt.Sprintf("common.HexToHash(%q)", h.String()) }
func (a Address) GoString() string { return fmt.Sprintf("common.HexToAddress(%q)", a.String()) }

// Package crypto wraps the ECDSA primitives used for transaction signing
// and signer recovery. The teacher's production binding
// (erigontech/secp256k1) is a cgo library and has no place in a module that
// is never built with a C toolchain; this package uses Go's standard
// crypto/ecdsa over the P-256-shaped secp256k1 curve parameters instead
// (see DESIGN.md for the justification).
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/corexec/corexec/erigon-lib/common"
)

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// S256 returns the secp256k1 curve.
func S256() elliptic.Curve { return secp256k1{} }

// PubkeyToAddress derives the 20-byte address from an uncompressed public
// key (the low 20 bytes of Keccak256 of the 64-byte X||Y encoding).
func PubkeyToAddress(pub *ecdsa.PublicKey) common.Address {
	buf := make([]byte, 64)
	pub.X.FillBytes(buf[:32])
	pub.Y.FillBytes(buf[32:])
	return common.BytesToAddress(common.Keccak256(buf))
}

// Sign produces an (r, s, v) signature over a 32-byte digest.
func Sign(digest []byte, priv *ecdsa.PrivateKey) (r, s *big.Int, v byte, err error) {
	if len(digest) != 32 {
		return nil, nil, 0, errors.New("crypto: digest must be 32 bytes")
	}
	r, s, err = ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return nil, nil, 0, err
	}
	// Canonicalize s to the lower half of the curve order (EIP-2).
	halfOrder := new(big.Int).Rsh(priv.Curve.Params().N, 1)
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(priv.Curve.Params().N, s)
		v ^= 1
	}
	return r, s, v, nil
}

func VerifySignature(pub *ecdsa.PublicKey, digest []byte, r, s *big.Int) bool {
	return ecdsa.Verify(pub, digest, r, s)
}

// RecoverPubkey recovers the public key that produced (r, s, v) over
// digest; v is the normalized recovery id in {0,1,2,3} (chain-id offset
// already stripped by the caller, per spec §A.4.5's "ECDSA recovery,
// chain-id-aware" admission step). Used by the Senders stage to recover
// transaction signers without a secp256k1-specific cgo recovery routine.
func RecoverPubkey(digest []byte, r, s *big.Int, v byte) (*ecdsa.PublicKey, error) {
	curve := secp256k1Params
	if r.Sign() <= 0 || s.Sign() <= 0 || r.Cmp(curve.N) >= 0 || s.Cmp(curve.N) >= 0 {
		return nil, ErrInvalidSignature
	}

	// Candidate R.x = r + v/2 * N (v in {0,1} selects x=r; {2,3} is the
	// rare x>=P case, kept for completeness).
	rx := new(big.Int).Set(r)
	if v >= 2 {
		rx.Add(rx, curve.N)
	}
	if rx.Cmp(curve.P) >= 0 {
		return nil, ErrInvalidSignature
	}

	ry, err := decompressY(rx, v&1 == 1)
	if err != nil {
		return nil, err
	}

	// Q = r^-1 * (s*R - e*G)
	e := new(big.Int).SetBytes(digest)
	rInv := new(big.Int).ModInverse(r, curve.N)
	if rInv == nil {
		return nil, ErrInvalidSignature
	}

	sRx, sRy := curve.ScalarMult(rx, ry, s.Bytes())
	eGx, eGy := curve.ScalarBaseMult(e.Bytes())
	eGyNeg := new(big.Int).Sub(curve.P, eGy)
	eGyNeg.Mod(eGyNeg, curve.P)

	qx, qy := curve.Add(sRx, sRy, eGx, eGyNeg)
	qx, qy = curve.ScalarMult(qx, qy, rInv.Bytes())

	if !checkOnCurve(qx, qy) {
		return nil, ErrInvalidSignature
	}
	return &ecdsa.PublicKey{Curve: secp256k1{}, X: qx, Y: qy}, nil
}

// decompressY recovers the y-coordinate for x on secp256k1 (y^2 = x^3 + 7),
// selecting the root whose parity matches odd.
func decompressY(x *big.Int, odd bool) (*big.Int, error) {
	p := secp256k1Params.P
	xCubed := new(big.Int).Mul(x, x)
	xCubed.Mul(xCubed, x)
	xCubed.Add(xCubed, secp256k1Params.B)
	xCubed.Mod(xCubed, p)

	// p ≡ 3 mod 4 for secp256k1, so sqrt(a) = a^((p+1)/4) mod p.
	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Rsh(exp, 2)
	y := new(big.Int).Exp(xCubed, exp, p)

	if y.Bit(0) == 1 != odd {
		y.Sub(p, y)
	}
	if !checkOnCurve(x, y) {
		return nil, ErrInvalidSignature
	}
	return y, nil
}

// checkOnCurve reports whether (x, y) is a point of y^2 = x^3 + 7 mod p.
func checkOnCurve(x, y *big.Int) bool {
	p := secp256k1Params.P
	if x.Sign() < 0 || x.Cmp(p) >= 0 || y.Sign() < 0 || y.Cmp(p) >= 0 {
		return false
	}
	lhs := new(big.Int).Mul(y, y)
	lhs.Mod(lhs, p)
	rhs := new(big.Int).Mul(x, x)
	rhs.Mul(rhs, x)
	rhs.Add(rhs, secp256k1Params.B)
	rhs.Mod(rhs, p)
	return lhs.Cmp(rhs) == 0
}

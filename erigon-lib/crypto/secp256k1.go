package crypto

import (
	"crypto/elliptic"
	"math/big"
)

// secp256k1 curve parameters (SEC 2, section 2.4.1), expressed as a
// standard elliptic.CurveParams so crypto/ecdsa can operate on it without a
// cgo dependency.
type secp256k1 struct{}

var secp256k1Params *elliptic.CurveParams

func init() {
	secp256k1Params = &elliptic.CurveParams{Name: "secp256k1"}
	secp256k1Params.P, _ = new(big.Int).SetString(
		"fffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)
	secp256k1Params.N, _ = new(big.Int).SetString(
		"fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	secp256k1Params.B, _ = new(big.Int).SetString("7", 16)
	secp256k1Params.Gx, _ = new(big.Int).SetString(
		"79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798", 16)
	secp256k1Params.Gy, _ = new(big.Int).SetString(
		"483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8", 16)
	secp256k1Params.BitSize = 256
}

func (secp256k1) Params() *elliptic.CurveParams { return secp256k1Params }

func (c secp256k1) IsOnCurve(x, y *big.Int) bool {
	p := secp256k1Params.P
	ySq := new(big.Int).Mul(y, y)
	ySq.Mod(ySq, p)

	xCubed := new(big.Int).Mul(x, x)
	xCubed.Mul(xCubed, x)
	xCubed.Add(xCubed, secp256k1Params.B)
	xCubed.Mod(xCubed, p)

	return ySq.Cmp(xCubed) == 0
}

func (c secp256k1) Add(x1, y1, x2, y2 *big.Int) (x, y *big.Int) {
	return secp256k1Params.Add(x1, y1, x2, y2)
}

func (c secp256k1) Double(x1, y1 *big.Int) (x, y *big.Int) {
	return secp256k1Params.Double(x1, y1)
}

func (c secp256k1) ScalarMult(x1, y1 *big.Int, k []byte) (x, y *big.Int) {
	return secp256k1Params.ScalarMult(x1, y1, k)
}

func (c secp256k1) ScalarBaseMult(k []byte) (x, y *big.Int) {
	return secp256k1Params.ScalarBaseMult(k)
}

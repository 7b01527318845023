// Package misc implements fork-specific header checks too small to deserve
// their own consensus engine: currently just EIP-4844 blob gas accounting
// (spec §A.3 "blob gas used / excess blob gas (Cancun+)").
package misc

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/corexec/corexec/core/types"
)

// EIP-4844 mainnet constants. This repo has no per-chain fork
// config (spec §A.4.1's engines are plain Ethereum PoW/PoS, not a
// multi-network client), so these are fixed rather than read off a
// chain.Config, matching the fixed 6*131072 blob-gas ceiling the Engine API
// façade already enforces in turbo/engineapi/validate.go.
const (
	BlobGasPerBlob             = 131072
	TargetBlobGasPerBlock      = 3 * BlobGasPerBlob
	MaxBlobGasPerBlock         = 6 * BlobGasPerBlob
	MinBlobGasPrice            = 1
	BlobGasPriceUpdateFraction = 3338477
)

// CalcExcessBlobGas implements calc_excess_blob_gas from EIP-4844: the
// running total of blob gas spent above the per-block target, carried
// forward block to block.
func CalcExcessBlobGas(parent *types.Header) uint64 {
	var excessBlobGas, blobGasUsed uint64
	if parent.ExcessBlobGas != nil {
		excessBlobGas = *parent.ExcessBlobGas
	}
	if parent.BlobGasUsed != nil {
		blobGasUsed = *parent.BlobGasUsed
	}
	if excessBlobGas+blobGasUsed < TargetBlobGasPerBlock {
		return 0
	}
	return excessBlobGas + blobGasUsed - TargetBlobGasPerBlock
}

// FakeExponential approximates factor * e ** (num / denom) using the Taylor
// expansion described in EIP-4844.
func FakeExponential(factor, denom *uint256.Int, excessBlobGas uint64) (*uint256.Int, error) {
	numerator := uint256.NewInt(excessBlobGas)
	output := uint256.NewInt(0)
	numeratorAccum := new(uint256.Int)
	_, overflow := numeratorAccum.MulOverflow(factor, denom)
	if overflow {
		return nil, fmt.Errorf("misc: overflow in MulOverflow(factor=%v, denom=%v)", factor, denom)
	}
	divisor := new(uint256.Int)
	for i := 1; numeratorAccum.Sign() > 0; i++ {
		_, overflow = output.AddOverflow(output, numeratorAccum)
		if overflow {
			return nil, fmt.Errorf("misc: overflow in AddOverflow(output=%v, numeratorAccum=%v)", output, numeratorAccum)
		}
		_, overflow = divisor.MulOverflow(denom, uint256.NewInt(uint64(i)))
		if overflow {
			return nil, fmt.Errorf("misc: overflow in MulOverflow(denom=%v, i=%v)", denom, i)
		}
		_, overflow = numeratorAccum.MulDivOverflow(numeratorAccum, numerator, divisor)
		if overflow {
			return nil, fmt.Errorf("misc: overflow in MulDivOverflow(numeratorAccum=%v, numerator=%v, divisor=%v)", numeratorAccum, numerator, divisor)
		}
	}
	return output.Div(output, denom), nil
}

// GetBlobGasPrice returns the per-byte blob gas price implied by
// excessBlobGas.
func GetBlobGasPrice(excessBlobGas uint64) (*uint256.Int, error) {
	return FakeExponential(uint256.NewInt(MinBlobGasPrice), uint256.NewInt(BlobGasPriceUpdateFraction), excessBlobGas)
}

// GetBlobGasUsed returns the blob gas consumed by a block carrying numBlobs
// blob-versioned hashes.
func GetBlobGasUsed(numBlobs int) uint64 {
	return uint64(numBlobs) * BlobGasPerBlob
}

// VerifyPresenceOfCancunHeaderFields checks that the fields introduced in
// Cancun (EIP-4844, EIP-4788) are present.
func VerifyPresenceOfCancunHeaderFields(header *types.Header) error {
	if header.BlobGasUsed == nil {
		return errors.New("misc: header is missing blobGasUsed")
	}
	if header.ExcessBlobGas == nil {
		return errors.New("misc: header is missing excessBlobGas")
	}
	if header.ParentBeaconRoot == nil {
		return errors.New("misc: header is missing parentBeaconRoot")
	}
	return nil
}

// VerifyAbsenceOfCancunHeaderFields checks that the header carries none of
// the fields Cancun introduced.
func VerifyAbsenceOfCancunHeaderFields(header *types.Header) error {
	if header.BlobGasUsed != nil {
		return fmt.Errorf("misc: invalid blobGasUsed before fork: have %v, expected nil", *header.BlobGasUsed)
	}
	if header.ExcessBlobGas != nil {
		return fmt.Errorf("misc: invalid excessBlobGas before fork: have %v, expected nil", *header.ExcessBlobGas)
	}
	if header.ParentBeaconRoot != nil {
		return fmt.Errorf("misc: invalid parentBeaconRoot before fork: have %x, expected nil", *header.ParentBeaconRoot)
	}
	return nil
}

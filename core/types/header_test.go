package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/corexec/corexec/erigon-lib/common"
)

func sampleHeader() *Header {
	withdrawalsHash := common.Hash{0xaa}
	blobGasUsed := uint64(131072)
	excessBlobGas := uint64(0)
	parentBeaconRoot := common.Hash{0xbb}
	return &Header{
		ParentHash:  common.Hash{0x01},
		UncleHash:   EmptyUncleHash,
		Coinbase:    common.Address{0x02},
		Root:        common.Hash{0x03},
		TxHash:      common.Hash{0x04},
		ReceiptHash: common.Hash{0x05},
		Bloom:       common.Bloom{0x06},
		Difficulty:  common.NewU256(0),
		Number:      19_000_000,
		GasLimit:    30_000_000,
		GasUsed:     12_345_678,
		Time:        1_700_000_000,
		Extra:       []byte("corexec"),
		MixDigest:   common.Hash{0x07},
		Nonce:       BlockNonce{},
		BaseFee:     common.NewU256(1_000_000_000),

		WithdrawalsHash:  &withdrawalsHash,
		BlobGasUsed:      &blobGasUsed,
		ExcessBlobGas:    &excessBlobGas,
		ParentBeaconRoot: &parentBeaconRoot,
	}
}

// TestHeaderRLPRoundTrip is Property 7 (header hash determinism) exercised
// through the storage codec: encoding then decoding must reproduce every
// field exactly, and the hash of the decoded header must match the
// original's.
func TestHeaderRLPRoundTrip(t *testing.T) {
	h := sampleHeader()
	enc, err := h.EncodeRLP()
	require.NoError(t, err)

	got, err := DecodeHeaderRLP(enc)
	require.NoError(t, err)

	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("round-tripped header differs (-want +got):\n%s", diff)
	}
	require.Equal(t, h.Hash(), got.Hash())
}

// TestHeaderHashIsCanonical checks that two independently built Header
// values with identical field contents hash identically, and that touching
// any single field changes the hash (spec §A.8 Property 7).
func TestHeaderHashIsCanonical(t *testing.T) {
	a := sampleHeader()
	b := sampleHeader()
	require.Equal(t, a.Hash(), b.Hash())

	b.GasUsed++
	require.NotEqual(t, a.Hash(), b.Hash())
}

// TestHeaderRLPRoundTripPreMerge exercises a header with no post-London
// optional fields, the shape every pre-merge block takes.
func TestHeaderRLPRoundTripPreMerge(t *testing.T) {
	h := &Header{
		ParentHash:  common.Hash{0x01},
		UncleHash:   common.Hash{0x02},
		Coinbase:    common.Address{0x03},
		Root:        common.Hash{0x04},
		TxHash:      common.Hash{0x05},
		ReceiptHash: common.Hash{0x06},
		Difficulty:  common.NewU256(17_179_869_184),
		Number:      100,
		GasLimit:    5_000_000,
		GasUsed:     0,
		Time:        1_609_459_200,
		MixDigest:   common.Hash{0x07},
		Nonce:       EncodeNonce(42),
	}
	enc, err := h.EncodeRLP()
	require.NoError(t, err)
	got, err := DecodeHeaderRLP(enc)
	require.NoError(t, err)
	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("round-tripped pre-merge header differs (-want +got):\n%s", diff)
	}
	require.Nil(t, got.BaseFee)
	require.Nil(t, got.WithdrawalsHash)
}

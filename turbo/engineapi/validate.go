package engineapi

import (
	"fmt"

	"github.com/valyala/fastjson"
)

const maxExtraDataLen = 32
const maxBlobGasPerBlock = 6 * 131072

// prescanStructure does a cheap, allocation-light pass over the raw payload
// JSON with fastjson before the full json-iterator unmarshal, rejecting
// malformed hex widths early (spec §A.4.6: "Façade validates structural
// sizes ... before delegating").
func prescanStructure(raw []byte) error {
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("engineapi: invalid payload json: %w", err)
	}
	if err := checkHexField(v, "parentHash", 32); err != nil {
		return err
	}
	if err := checkHexField(v, "feeRecipient", 20); err != nil {
		return err
	}
	if err := checkHexField(v, "stateRoot", 32); err != nil {
		return err
	}
	if err := checkHexField(v, "receiptsRoot", 32); err != nil {
		return err
	}
	if err := checkHexField(v, "logsBloom", 256); err != nil {
		return err
	}
	if err := checkHexField(v, "prevRandao", 32); err != nil {
		return err
	}
	if err := checkHexField(v, "blockHash", 32); err != nil {
		return err
	}
	if extra := v.GetStringBytes("extraData"); extra != nil {
		if n := hexByteLen(extra); n > maxExtraDataLen {
			return fmt.Errorf("engineapi: extraData exceeds %d bytes", maxExtraDataLen)
		}
	}
	return nil
}

func checkHexField(v *fastjson.Value, field string, wantBytes int) error {
	b := v.GetStringBytes(field)
	if b == nil {
		return fmt.Errorf("engineapi: missing field %q", field)
	}
	if n := hexByteLen(b); n != wantBytes {
		return fmt.Errorf("engineapi: field %q has %d bytes, want %d", field, n, wantBytes)
	}
	return nil
}

// hexByteLen returns the decoded byte length of a `0x`-prefixed hex string
// without allocating a decode buffer.
func hexByteLen(hexBytes []byte) int {
	n := len(hexBytes)
	if n >= 2 && hexBytes[0] == '0' && (hexBytes[1] == 'x' || hexBytes[1] == 'X') {
		n -= 2
	}
	return n / 2
}

// ValidateStructure re-checks the fully decoded payload's structural
// invariants (spec §A.4.6: gas_used <= gas_limit, extra_data <= 32 bytes,
// blob gas <= 6 * 131072, well-formed tx bytes).
func ValidateStructure(p *ExecutionPayload) error {
	if uint64(p.GasUsed) > uint64(p.GasLimit) {
		return fmt.Errorf("engineapi: gasUsed %d exceeds gasLimit %d", p.GasUsed, p.GasLimit)
	}
	if len(p.ExtraData) > maxExtraDataLen {
		return fmt.Errorf("engineapi: extraData exceeds %d bytes", maxExtraDataLen)
	}
	if p.BlobGasUsed != nil && uint64(*p.BlobGasUsed) > maxBlobGasPerBlock {
		return fmt.Errorf("engineapi: blobGasUsed exceeds %d", maxBlobGasPerBlock)
	}
	for i, raw := range p.Transactions {
		if len(raw) == 0 {
			return fmt.Errorf("engineapi: empty transaction at index %d", i)
		}
	}
	return nil
}

// Package engineapi implements the Engine API façade (spec §A.4.6):
// new_payload, forkchoice_updated, get_payload, served over its own
// JWT-authenticated HTTP listener separate from the JSON-RPC façade.
package engineapi

import (
	"github.com/corexec/corexec/erigon-lib/common"
)

type Status string

const (
	ValidStatus   Status = "VALID"
	InvalidStatus Status = "INVALID"
	SyncingStatus Status = "SYNCING"
	AcceptedStatus Status = "ACCEPTED"
)

// PayloadStatus is the result of new_payload and forkchoice_updated (spec
// §A.4.6: "{VALID, latest_valid_hash}, {INVALID, ...}, {SYNCING}, or
// {ACCEPTED}").
type PayloadStatus struct {
	Status          Status        `json:"status"`
	LatestValidHash *common.Hash  `json:"latestValidHash,omitempty"`
	ValidationError *string       `json:"validationError,omitempty"`
}

// ExecutionPayload mirrors the Engine API's payload object. Quantity/Bytes
// fields carry their wire `0x`-prefixed hex encoding.
type ExecutionPayload struct {
	ParentHash    common.Hash     `json:"parentHash"`
	FeeRecipient  common.Address  `json:"feeRecipient"`
	StateRoot     common.Hash     `json:"stateRoot"`
	ReceiptsRoot  common.Hash     `json:"receiptsRoot"`
	LogsBloom     common.Bytes    `json:"logsBloom"`
	PrevRandao    common.Hash     `json:"prevRandao"`
	BlockNumber   common.Quantity `json:"blockNumber"`
	GasLimit      common.Quantity `json:"gasLimit"`
	GasUsed       common.Quantity `json:"gasUsed"`
	Timestamp     common.Quantity `json:"timestamp"`
	ExtraData     common.Bytes    `json:"extraData"`
	BaseFeePerGas common.Quantity `json:"baseFeePerGas"`
	BlockHash     common.Hash     `json:"blockHash"`
	Transactions  []common.Bytes  `json:"transactions"`

	WithdrawalsHash *common.Hash     `json:"withdrawalsRoot,omitempty"`
	BlobGasUsed     *common.Quantity `json:"blobGasUsed,omitempty"`
	ExcessBlobGas   *common.Quantity `json:"excessBlobGas,omitempty"`
}

// ForkChoiceState is the three-way head/safe/finalized pointer CL clients
// push on every slot (spec §A.4.6).
type ForkChoiceState struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

// PayloadAttributes requests a new payload be built on top of the
// forkchoice head (spec §A.4.6: "if attrs supplied, start building a
// payload, return payload id").
type PayloadAttributes struct {
	Timestamp             common.Quantity `json:"timestamp"`
	PrevRandao             common.Hash     `json:"prevRandao"`
	SuggestedFeeRecipient common.Address  `json:"suggestedFeeRecipient"`
}

type ForkChoiceUpdatedRequest struct {
	State      ForkChoiceState     `json:"forkchoiceState"`
	Attributes *PayloadAttributes `json:"payloadAttributes,omitempty"`
}

type ForkChoiceResponse struct {
	PayloadStatus PayloadStatus `json:"payloadStatus"`
	PayloadID     *string       `json:"payloadId,omitempty"`
}

// ExecutionPayloadBodyV1 is the transactions-only body returned by
// engine_getPayloadBodiesBy{Hash,Range}V1 (spec §A.6).
type ExecutionPayloadBodyV1 struct {
	Transactions []common.Bytes `json:"transactions"`
}

type GetPayloadResponse struct {
	ExecutionPayload *ExecutionPayload `json:"executionPayload"`
	BlockValue       common.Quantity   `json:"blockValue"`
}

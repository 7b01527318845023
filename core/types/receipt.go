package types

import "github.com/corexec/corexec/erigon-lib/common"

// ReceiptStatus follows EIP-658: 1 = success, 0 = failure.
type ReceiptStatus uint64

const (
	ReceiptStatusFailed ReceiptStatus = 0
	ReceiptStatusSuccessful ReceiptStatus = 1
)

// Log is one EVM log entry (spec §A.3).
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt carries the outcome of one executed transaction.
type Receipt struct {
	Status            ReceiptStatus
	CumulativeGasUsed uint64
	Bloom             common.Bloom
	Logs              []Log
}

// ComputeBloom derives the receipt's bloom filter from its logs.
func (r *Receipt) ComputeBloom() {
	var b common.Bloom
	for _, l := range r.Logs {
		addrs := [][]byte{l.Address.Bytes()}
		topics := make([][]byte, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Bytes()
		}
		lb := common.BloomFromLogs(addrs, topics)
		b.OrWith(lb)
	}
	r.Bloom = b
}

// Package jsonrpc implements the JSON-RPC 2.0 façade over the core read
// APIs: block/transaction/receipt lookups, current-state reads through the
// temporal store, transaction submission into the pool, and polling-style
// log filters (spec §A.6). It never mutates chain state itself — state
// only changes through the staged-sync pipeline and the Engine API.
package jsonrpc

import (
	"github.com/corexec/corexec/erigon-lib/common"
)

// BlockView is the eth_getBlockBy{Hash,Number} response shape: a header
// plus either transaction hashes or full transaction bodies, depending on
// the caller's fullTx flag.
type BlockView struct {
	Number           common.Quantity `json:"number"`
	Hash             common.Hash     `json:"hash"`
	ParentHash       common.Hash     `json:"parentHash"`
	Nonce            common.Bytes    `json:"nonce"`
	StateRoot        common.Hash     `json:"stateRoot"`
	TransactionsRoot common.Hash     `json:"transactionsRoot"`
	ReceiptsRoot     common.Hash     `json:"receiptsRoot"`
	Miner            common.Address  `json:"miner"`
	Difficulty       common.Quantity `json:"difficulty"`
	ExtraData        common.Bytes    `json:"extraData"`
	GasLimit         common.Quantity `json:"gasLimit"`
	GasUsed          common.Quantity `json:"gasUsed"`
	Timestamp        common.Quantity `json:"timestamp"`
	BaseFeePerGas    *common.Quantity `json:"baseFeePerGas,omitempty"`
	Transactions     []interface{}   `json:"transactions"`
	Uncles           []common.Hash   `json:"uncles"`
}

// TransactionView is the eth_getTransactionByHash response shape and the
// full-transaction element of BlockView.Transactions.
type TransactionView struct {
	Hash             common.Hash     `json:"hash"`
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *common.Quantity `json:"blockNumber"`
	TransactionIndex *common.Quantity `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Value            common.Quantity `json:"value"`
	Gas              common.Quantity `json:"gas"`
	GasPrice         common.Quantity `json:"gasPrice"`
	Nonce            common.Quantity `json:"nonce"`
	Input            common.Bytes    `json:"input"`
	Type             common.Quantity `json:"type"`
	ChainID          *common.Quantity `json:"chainId,omitempty"`
	V                common.Quantity `json:"v"`
	R                common.Quantity `json:"r"`
	S                common.Quantity `json:"s"`
}

// ReceiptView is the eth_getTransactionReceipt response shape.
type ReceiptView struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  common.Quantity `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       common.Quantity `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	CumulativeGasUsed common.Quantity `json:"cumulativeGasUsed"`
	GasUsed           common.Quantity `json:"gasUsed"`
	ContractAddress   *common.Address `json:"contractAddress,omitempty"`
	LogsBloom         common.Bytes    `json:"logsBloom"`
	Status            common.Quantity `json:"status"`
	Logs              []LogView       `json:"logs"`
}

// LogView mirrors types.Log with hex-encoded wire fields.
type LogView struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    common.Bytes   `json:"data"`
}

// SyncingStatus is the eth_syncing response: false once caught up, or the
// {startingBlock, currentBlock, highestBlock} object while behind.
type SyncingStatus struct {
	StartingBlock common.Quantity `json:"startingBlock"`
	CurrentBlock  common.Quantity `json:"currentBlock"`
	HighestBlock  common.Quantity `json:"highestBlock"`
}

// CallArgs is the eth_call/eth_estimateGas request object.
type CallArgs struct {
	From     *common.Address `json:"from,omitempty"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *common.Quantity `json:"gas,omitempty"`
	GasPrice *common.Quantity `json:"gasPrice,omitempty"`
	Value    *common.Quantity `json:"value,omitempty"`
	Data     common.Bytes    `json:"data,omitempty"`
}

// FilterQuery is the eth_newFilter request object (address/topics
// restriction is accepted but not yet applied — see Server.GetFilterChanges).
type FilterQuery struct {
	FromBlock *BlockTag        `json:"fromBlock,omitempty"`
	ToBlock   *BlockTag        `json:"toBlock,omitempty"`
	Address   *common.Address  `json:"address,omitempty"`
	Topics    []common.Hash    `json:"topics,omitempty"`
}

// BlockTag is the block-parameter closed enum: a decimal/hex number or one
// of the named tags (spec §A.6 "block tags latest/earliest/pending/safe/
// finalized").
type BlockTag struct {
	Tag    string
	Number *uint64
}

func (t *BlockTag) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	switch s {
	case "latest", "earliest", "pending", "safe", "finalized", "":
		t.Tag = s
		return nil
	default:
		n, err := common.ParseQuantity(s)
		if err != nil {
			return err
		}
		t.Number = &n
		return nil
	}
}

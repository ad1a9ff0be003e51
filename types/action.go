package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ActionKind tags a PerformAction request.
type ActionKind string

const (
	ActionChainID               ActionKind = "chainId"
	ActionGetBlockNumber        ActionKind = "getBlockNumber"
	ActionGetGasPrice           ActionKind = "getGasPrice"
	ActionGetPriorityFee        ActionKind = "getPriorityFee"
	ActionGetBalance            ActionKind = "getBalance"
	ActionGetTransactionCount   ActionKind = "getTransactionCount"
	ActionGetCode               ActionKind = "getCode"
	ActionGetStorage            ActionKind = "getStorage"
	ActionBroadcastTransaction  ActionKind = "broadcastTransaction"
	ActionGetBlock              ActionKind = "getBlock"
	ActionGetTransaction        ActionKind = "getTransaction"
	ActionGetTransactionReceipt ActionKind = "getTransactionReceipt"
	ActionCall                  ActionKind = "call"
	ActionEstimateGas           ActionKind = "estimateGas"
	ActionGetLogs               ActionKind = "getLogs"
	ActionGetLatestBlockhash    ActionKind = "getLatestBlockhash"
)

// Action is one abstract request a provider performs. Each kind carries only
// the fields it needs.
type Action interface {
	Kind() ActionKind
}

// BlockTag is a named tag ("latest", "pending", ...) or a hex quantity.
type BlockTag string

const (
	BlockLatest    BlockTag = "latest"
	BlockPending   BlockTag = "pending"
	BlockEarliest  BlockTag = "earliest"
	BlockSafe      BlockTag = "safe"
	BlockFinalized BlockTag = "finalized"
)

// BlockNumber returns the quantity tag for block n.
func BlockNumber(n uint64) BlockTag {
	return BlockTag(hexutil.EncodeUint64(n))
}

// OrLatest returns t, or "latest" when t is empty.
func (t BlockTag) OrLatest() BlockTag {
	if t == "" {
		return BlockLatest
	}
	return t
}

type (
	ChainIDAction     struct{}
	BlockNumberAction struct{}
	GasPriceAction    struct{}
	PriorityFeeAction struct{}

	BalanceAction struct {
		Address  string
		BlockTag BlockTag
	}

	TransactionCountAction struct {
		Address  string
		BlockTag BlockTag
	}

	CodeAction struct {
		Address  string
		BlockTag BlockTag
	}

	StorageAction struct {
		Address  string
		Position *big.Int
		BlockTag BlockTag
	}

	BroadcastAction struct {
		SignedTransaction string
	}

	// BlockAction selects a block by tag, or by hash when BlockHash is set.
	BlockAction struct {
		BlockTag            BlockTag
		BlockHash           string
		IncludeTransactions bool
	}

	TransactionAction struct {
		Hash string
	}

	ReceiptAction struct {
		Hash string
	}

	CallAction struct {
		Transaction *PreparedTransaction
		BlockTag    BlockTag
	}

	EstimateGasAction struct {
		Transaction *PreparedTransaction
	}

	LogsAction struct {
		Filter Filter
	}

	LatestBlockhashAction struct{}
)

func (ChainIDAction) Kind() ActionKind          { return ActionChainID }
func (BlockNumberAction) Kind() ActionKind      { return ActionGetBlockNumber }
func (GasPriceAction) Kind() ActionKind         { return ActionGetGasPrice }
func (PriorityFeeAction) Kind() ActionKind      { return ActionGetPriorityFee }
func (BalanceAction) Kind() ActionKind          { return ActionGetBalance }
func (TransactionCountAction) Kind() ActionKind { return ActionGetTransactionCount }
func (CodeAction) Kind() ActionKind             { return ActionGetCode }
func (StorageAction) Kind() ActionKind          { return ActionGetStorage }
func (BroadcastAction) Kind() ActionKind        { return ActionBroadcastTransaction }
func (BlockAction) Kind() ActionKind            { return ActionGetBlock }
func (TransactionAction) Kind() ActionKind      { return ActionGetTransaction }
func (ReceiptAction) Kind() ActionKind          { return ActionGetTransactionReceipt }
func (CallAction) Kind() ActionKind             { return ActionCall }
func (EstimateGasAction) Kind() ActionKind      { return ActionEstimateGas }
func (LogsAction) Kind() ActionKind             { return ActionGetLogs }
func (LatestBlockhashAction) Kind() ActionKind  { return ActionGetLatestBlockhash }

// Filter is an eth_getLogs / eth_newFilter log filter. Address holds zero or
// more contract addresses; a single address is sent as a string.
type Filter struct {
	Address   []string   `json:"-"`
	Topics    [][]string `json:"topics,omitempty"`
	FromBlock BlockTag   `json:"fromBlock,omitempty"`
	ToBlock   BlockTag   `json:"toBlock,omitempty"`
	BlockHash string     `json:"blockHash,omitempty"`
}

// RPCFilter is the wire form of Filter.
type RPCFilter struct {
	Address   any        `json:"address,omitempty"`
	Topics    [][]string `json:"topics,omitempty"`
	FromBlock BlockTag   `json:"fromBlock,omitempty"`
	ToBlock   BlockTag   `json:"toBlock,omitempty"`
	BlockHash string     `json:"blockHash,omitempty"`
}

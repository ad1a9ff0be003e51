package types

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
)

// Transaction envelope types.
const (
	TxTypeLegacy     uint8 = 0
	TxTypeAccessList uint8 = 1
	TxTypeDynamicFee uint8 = 2
)

// TransactionRequest is the caller's intent. Nil fields are filled in by the
// signer pipeline.
type TransactionRequest struct {
	Type *uint8

	To   Addressable
	From Addressable

	Nonce    *uint64
	GasLimit *big.Int

	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int

	Data    []byte
	Value   *big.Int
	ChainID *big.Int

	AccessList ethtypes.AccessList

	// BlockTag applies to call and estimateGas only.
	BlockTag BlockTag

	// Solana carries a native transaction for the solana namespace.
	Solana *solana.Transaction
	// Tron carries a node-built transaction object for the tron namespace.
	Tron json.RawMessage
}

// HasEIP1559Fields reports whether either priority-fee field is set.
func (r *TransactionRequest) HasEIP1559Fields() bool {
	return r.MaxFeePerGas != nil || r.MaxPriorityFeePerGas != nil
}

// PreparedTransaction is a request whose address-like fields have been
// resolved to concrete strings. An empty To means contract creation.
type PreparedTransaction struct {
	Type *uint8

	To   string
	From string

	Nonce    *uint64
	GasLimit *big.Int

	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int

	Data    []byte
	Value   *big.Int
	ChainID *big.Int

	AccessList ethtypes.AccessList

	BlockTag BlockTag

	Solana *solana.Transaction
	Tron   json.RawMessage
}

func (p *PreparedTransaction) HasEIP1559Fields() bool {
	return p.MaxFeePerGas != nil || p.MaxPriorityFeePerGas != nil
}

// Copy returns a shallow copy; big.Int values are duplicated so the copy can
// be mutated freely.
func (p *PreparedTransaction) Copy() *PreparedTransaction {
	c := *p
	c.GasLimit = copyBig(p.GasLimit)
	c.GasPrice = copyBig(p.GasPrice)
	c.MaxPriorityFeePerGas = copyBig(p.MaxPriorityFeePerGas)
	c.MaxFeePerGas = copyBig(p.MaxFeePerGas)
	c.Value = copyBig(p.Value)
	c.ChainID = copyBig(p.ChainID)
	if p.Type != nil {
		t := *p.Type
		c.Type = &t
	}
	if p.Nonce != nil {
		n := *p.Nonce
		c.Nonce = &n
	}
	return &c
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// RPCTransaction is the wire shape of a transaction for eth_call,
// eth_estimateGas, eth_sendTransaction and eth_signTransaction. Every
// quantity is minimal-width hex and every address lower-case.
type RPCTransaction struct {
	Type                 string               `json:"type,omitempty"`
	ChainID              string               `json:"chainId,omitempty"`
	Nonce                string               `json:"nonce,omitempty"`
	Gas                  string               `json:"gas,omitempty"`
	GasPrice             string               `json:"gasPrice,omitempty"`
	MaxFeePerGas         string               `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string               `json:"maxPriorityFeePerGas,omitempty"`
	Value                string               `json:"value,omitempty"`
	From                 string               `json:"from,omitempty"`
	To                   string               `json:"to,omitempty"`
	Data                 string               `json:"data,omitempty"`
	AccessList           *ethtypes.AccessList `json:"accessList,omitempty"`
}

// FeeData is the network's current pricing. Nil fields are unsupported by
// the network.
type FeeData struct {
	GasPrice             *big.Int `json:"gasPrice"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas"`
}

// SupportsEIP1559 reports whether both priority-fee fields are known.
func (f *FeeData) SupportsEIP1559() bool {
	return f.MaxFeePerGas != nil && f.MaxPriorityFeePerGas != nil
}

// LatestBlockhash is a Solana blockhash and the last block height at which
// transactions referencing it are accepted.
type LatestBlockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Block is the subset of an eth_getBlockBy* result the library consumes.
type Block struct {
	Number        *hexutil.Big    `json:"number"`
	Hash          string          `json:"hash"`
	ParentHash    string          `json:"parentHash"`
	Timestamp     hexutil.Uint64  `json:"timestamp"`
	GasLimit      *hexutil.Big    `json:"gasLimit"`
	GasUsed       *hexutil.Big    `json:"gasUsed"`
	Miner         string          `json:"miner"`
	BaseFeePerGas *hexutil.Big    `json:"baseFeePerGas"`
	Transactions  json.RawMessage `json:"transactions"`
}

// TransactionResponse is a transaction the network knows about.
type TransactionResponse struct {
	Hash                 string         `json:"hash"`
	BlockHash            string         `json:"blockHash,omitempty"`
	BlockNumber          *hexutil.Big   `json:"blockNumber,omitempty"`
	Type                 hexutil.Uint64 `json:"type"`
	From                 string         `json:"from"`
	To                   string         `json:"to,omitempty"`
	Nonce                hexutil.Uint64 `json:"nonce"`
	Gas                  *hexutil.Big   `json:"gas"`
	GasPrice             *hexutil.Big   `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big   `json:"value"`
	Input                string         `json:"input"`
	ChainID              *hexutil.Big   `json:"chainId,omitempty"`
}

// Log is one entry returned by eth_getLogs or a log filter.
type Log struct {
	Address          string         `json:"address"`
	Topics           []string       `json:"topics"`
	Data             string         `json:"data"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	BlockHash        string         `json:"blockHash"`
	TransactionHash  string         `json:"transactionHash"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	LogIndex         hexutil.Uint64 `json:"logIndex"`
	Removed          bool           `json:"removed"`
}

// Receipt is the subset of eth_getTransactionReceipt the library consumes.
type Receipt struct {
	TransactionHash   string         `json:"transactionHash"`
	BlockHash         string         `json:"blockHash"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	From              string         `json:"from"`
	To                string         `json:"to,omitempty"`
	ContractAddress   string         `json:"contractAddress,omitempty"`
	GasUsed           *hexutil.Big   `json:"gasUsed"`
	CumulativeGasUsed *hexutil.Big   `json:"cumulativeGasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice,omitempty"`
	Status            hexutil.Uint64 `json:"status"`
	Logs              []Log          `json:"logs"`
}

package clients

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/vitwit/chainrpc/types"
)

// EVMAdapter speaks the canonical eth_* JSON-RPC dialect.
type EVMAdapter struct{}

var _ ChainAdapter = (*EVMAdapter)(nil)

func NewEVMAdapter() *EVMAdapter {
	return &EVMAdapter{}
}

func (a *EVMAdapter) Namespace() types.ChainNamespace {
	return types.NamespaceEIP155
}

func (a *EVMAdapter) MapRequest(action types.Action) (*types.RPCRequest, error) {
	return mapEVMRequest(a, action, strings.ToLower)
}

// mapEVMRequest is shared with the Tron adapter, which only differs in how
// addresses and transactions are rendered.
func mapEVMRequest(adapter ChainAdapter, action types.Action, address func(string) string) (*types.RPCRequest, error) {
	switch req := action.(type) {
	case types.ChainIDAction:
		return rpc("eth_chainId"), nil

	case types.BlockNumberAction:
		return rpc("eth_blockNumber"), nil

	case types.GasPriceAction:
		return rpc("eth_gasPrice"), nil

	case types.PriorityFeeAction:
		return rpc("eth_maxPriorityFeePerGas"), nil

	case types.BalanceAction:
		return rpc("eth_getBalance", address(req.Address), req.BlockTag.OrLatest()), nil

	case types.TransactionCountAction:
		return rpc("eth_getTransactionCount", address(req.Address), req.BlockTag.OrLatest()), nil

	case types.CodeAction:
		return rpc("eth_getCode", address(req.Address), req.BlockTag.OrLatest()), nil

	case types.StorageAction:
		position := req.Position
		if position == nil {
			position = new(big.Int)
		}
		return rpc("eth_getStorageAt", address(req.Address), "0x"+position.Text(16), req.BlockTag.OrLatest()), nil

	case types.BroadcastAction:
		return rpc("eth_sendRawTransaction", req.SignedTransaction), nil

	case types.BlockAction:
		if req.BlockHash != "" {
			return rpc("eth_getBlockByHash", req.BlockHash, req.IncludeTransactions), nil
		}
		return rpc("eth_getBlockByNumber", req.BlockTag.OrLatest(), req.IncludeTransactions), nil

	case types.TransactionAction:
		return rpc("eth_getTransactionByHash", req.Hash), nil

	case types.ReceiptAction:
		return rpc("eth_getTransactionReceipt", req.Hash), nil

	case types.CallAction:
		tx, err := adapter.NormalizeTransaction(req.Transaction)
		if err != nil {
			return nil, err
		}
		return rpc("eth_call", tx, req.BlockTag.OrLatest()), nil

	case types.EstimateGasAction:
		tx, err := adapter.NormalizeTransaction(req.Transaction)
		if err != nil {
			return nil, err
		}
		return rpc("eth_estimateGas", tx), nil

	case types.LogsAction:
		return rpc("eth_getLogs", normalizeFilter(req.Filter, address)), nil
	}

	return nil, unsupported(adapter.Namespace(), action.Kind())
}

func rpc(method string, args ...any) *types.RPCRequest {
	if args == nil {
		args = []any{}
	}
	return &types.RPCRequest{Method: method, Args: args}
}

func normalizeFilter(f types.Filter, address func(string) string) types.RPCFilter {
	out := types.RPCFilter{
		Topics:    f.Topics,
		FromBlock: f.FromBlock,
		ToBlock:   f.ToBlock,
		BlockHash: f.BlockHash,
	}
	switch len(f.Address) {
	case 0:
	case 1:
		out.Address = address(f.Address[0])
	default:
		addrs := make([]string, len(f.Address))
		for i, a := range f.Address {
			addrs[i] = address(a)
		}
		out.Address = addrs
	}
	return out
}

func (a *EVMAdapter) NormalizeTransaction(tx *types.PreparedTransaction) (*types.RPCTransaction, error) {
	return normalizeEVMTransaction(tx, strings.ToLower)
}

func normalizeEVMTransaction(tx *types.PreparedTransaction, address func(string) string) (*types.RPCTransaction, error) {
	if tx == nil {
		return nil, types.InvalidArgument("missing transaction", "transaction", nil)
	}

	out := &types.RPCTransaction{
		ChainID:              quantity(tx.ChainID),
		Gas:                  quantity(tx.GasLimit),
		GasPrice:             quantity(tx.GasPrice),
		MaxFeePerGas:         quantity(tx.MaxFeePerGas),
		MaxPriorityFeePerGas: quantity(tx.MaxPriorityFeePerGas),
		Value:                quantity(tx.Value),
	}
	if tx.Type != nil {
		out.Type = hexutil.EncodeUint64(uint64(*tx.Type))
	}
	if tx.Nonce != nil {
		out.Nonce = hexutil.EncodeUint64(*tx.Nonce)
	}
	if tx.From != "" {
		out.From = address(tx.From)
	}
	if tx.To != "" {
		out.To = address(tx.To)
	}
	if tx.Data != nil {
		out.Data = strings.ToLower(hexutil.Encode(tx.Data))
	}
	if tx.AccessList != nil {
		list := make(ethtypes.AccessList, len(tx.AccessList))
		copy(list, tx.AccessList)
		out.AccessList = &list
	}
	return out, nil
}

func quantity(v *big.Int) string {
	if v == nil {
		return ""
	}
	return hexutil.EncodeBig(v)
}

// ClassifyError applies the eth_* heuristics.
func (a *EVMAdapter) ClassifyError(payload *types.Payload, rpcErr *types.RPCError) error {
	return classifyEVMError(payload, rpcErr)
}

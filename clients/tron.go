package clients

import (
	"strings"

	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

// TronAdapter reuses the eth_* mapping of the Tron JSON-RPC endpoint but
// submits every address as 0x41-prefixed hex.
type TronAdapter struct {
	evm *EVMAdapter
}

var _ ChainAdapter = (*TronAdapter)(nil)

func NewTronAdapter() *TronAdapter {
	return &TronAdapter{evm: NewEVMAdapter()}
}

func (a *TronAdapter) Namespace() types.ChainNamespace {
	return types.NamespaceTron
}

func (a *TronAdapter) MapRequest(action types.Action) (*types.RPCRequest, error) {
	converted, err := a.convertAddresses(action)
	if err != nil {
		return nil, err
	}
	return mapEVMRequest(a, converted, strings.ToLower)
}

// convertAddresses rewrites every address in action to prefixed hex. The
// rewrite happens up front because conversion can fail.
func (a *TronAdapter) convertAddresses(action types.Action) (types.Action, error) {
	var err error
	switch req := action.(type) {
	case types.BalanceAction:
		req.Address, err = utils.TronToPrefixedHex(req.Address)
		return req, err
	case types.TransactionCountAction:
		req.Address, err = utils.TronToPrefixedHex(req.Address)
		return req, err
	case types.CodeAction:
		req.Address, err = utils.TronToPrefixedHex(req.Address)
		return req, err
	case types.StorageAction:
		req.Address, err = utils.TronToPrefixedHex(req.Address)
		return req, err
	case types.LogsAction:
		addrs := make([]string, len(req.Filter.Address))
		for i, addr := range req.Filter.Address {
			if addrs[i], err = utils.TronToPrefixedHex(addr); err != nil {
				return nil, err
			}
		}
		req.Filter.Address = addrs
		return req, nil
	}
	return action, nil
}

func (a *TronAdapter) NormalizeTransaction(tx *types.PreparedTransaction) (*types.RPCTransaction, error) {
	if tx == nil {
		return nil, types.InvalidArgument("missing transaction", "transaction", nil)
	}

	converted := tx.Copy()
	var err error
	if converted.From != "" {
		if converted.From, err = utils.TronToPrefixedHex(converted.From); err != nil {
			return nil, err
		}
	}
	if converted.To != "" {
		if converted.To, err = utils.TronToPrefixedHex(converted.To); err != nil {
			return nil, err
		}
	}
	return normalizeEVMTransaction(converted, strings.ToLower)
}

// ClassifyError recognises Tron's own balance wording before falling back to
// the eth_* heuristics. Call reverts are left to the eth_* path so a
// contract's "insufficient balance" reason stays a CALL_EXCEPTION.
func (a *TronAdapter) ClassifyError(payload *types.Payload, rpcErr *types.RPCError) error {
	if payload != nil && (payload.Method == "eth_call" || payload.Method == "eth_estimateGas") {
		return classifyEVMError(payload, rpcErr)
	}
	message := strings.ToLower(strings.Join(spelunkMessage(rpcErrorValue(rpcErr)), "\n"))
	if strings.Contains(message, "balance is not sufficient") || strings.Contains(message, "insufficient balance") {
		return &types.Error{
			Code:        types.ErrInsufficientFunds,
			Message:     "insufficient funds",
			Transaction: firstParam(payload),
			Payload:     payload,
			RPCError:    rpcErr,
		}
	}
	return classifyEVMError(payload, rpcErr)
}

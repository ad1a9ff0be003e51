package clients

import (
	"github.com/vitwit/chainrpc/types"
)

// ChainAdapter maps abstract actions onto one chain family's JSON-RPC
// dialect and turns that family's error payloads into classified errors.
// Adapters hold no connection state and are safe for concurrent use.
type ChainAdapter interface {
	Namespace() types.ChainNamespace

	// MapRequest returns the method and arguments for action, or an
	// UNSUPPORTED_OPERATION error when the namespace cannot serve it.
	MapRequest(action types.Action) (*types.RPCRequest, error)

	// NormalizeTransaction renders tx in wire shape.
	NormalizeTransaction(tx *types.PreparedTransaction) (*types.RPCTransaction, error)

	// ClassifyError coalesces an RPC error into the error taxonomy.
	ClassifyError(payload *types.Payload, rpcErr *types.RPCError) error
}

// NewAdapter returns the adapter for ns.
func NewAdapter(ns types.ChainNamespace) (ChainAdapter, error) {
	switch ns {
	case types.NamespaceEIP155:
		return NewEVMAdapter(), nil
	case types.NamespaceSolana:
		return NewSolanaAdapter(), nil
	case types.NamespaceTron:
		return NewTronAdapter(), nil
	default:
		return nil, types.InvalidArgument("unsupported namespace", "namespace", ns)
	}
}

func unsupported(ns types.ChainNamespace, kind types.ActionKind) error {
	return &types.Error{
		Code:      types.ErrUnsupportedOperation,
		Message:   "method not supported: " + string(kind),
		Operation: string(kind),
		Data:      map[string]any{"namespace": ns},
	}
}

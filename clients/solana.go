package clients

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

// SolanaAdapter maps actions onto the Solana JSON-RPC API. Actions with no
// Solana counterpart fail with UNSUPPORTED_OPERATION.
type SolanaAdapter struct{}

var _ ChainAdapter = (*SolanaAdapter)(nil)

func NewSolanaAdapter() *SolanaAdapter {
	return &SolanaAdapter{}
}

func (a *SolanaAdapter) Namespace() types.ChainNamespace {
	return types.NamespaceSolana
}

func (a *SolanaAdapter) MapRequest(action types.Action) (*types.RPCRequest, error) {
	switch req := action.(type) {
	case types.ChainIDAction, types.GasPriceAction, types.PriorityFeeAction,
		types.TransactionCountAction, types.CodeAction, types.StorageAction, types.LogsAction:
		return nil, unsupported(a.Namespace(), action.Kind())

	case types.BlockNumberAction:
		return rpc("getBlockHeight"), nil

	case types.LatestBlockhashAction:
		return rpc("getLatestBlockhash", map[string]any{"commitment": "processed"}), nil

	case types.BalanceAction:
		return rpc("getBalance", req.Address), nil

	case types.BlockAction:
		if req.BlockHash != "" {
			return nil, &types.Error{
				Code:      types.ErrUnsupportedOperation,
				Message:   "solana blocks are addressed by slot",
				Operation: string(action.Kind()),
			}
		}
		slot, err := slotFromTag(req.BlockTag)
		if err != nil {
			return nil, err
		}
		return rpc("getBlock", slot, map[string]any{
			"rewards":                        false,
			"transactionDetails":             transactionDetails(req.IncludeTransactions),
			"maxSupportedTransactionVersion": 0,
		}), nil

	case types.TransactionAction:
		return rpc("getSignatureStatuses", []string{req.Hash}), nil

	case types.ReceiptAction:
		return rpc("getTransaction", req.Hash, map[string]any{
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		}), nil

	case types.EstimateGasAction:
		msg, err := encodeMessage(req.Transaction)
		if err != nil {
			return nil, err
		}
		return rpc("getFeeForMessage", msg), nil

	case types.CallAction:
		tx, err := encodeTransaction(req.Transaction)
		if err != nil {
			return nil, err
		}
		return rpc("simulateTransaction", tx, map[string]any{
			"encoding":               "base64",
			"sigVerify":              false,
			"replaceRecentBlockhash": true,
		}), nil

	case types.BroadcastAction:
		return rpc("sendTransaction", req.SignedTransaction, map[string]any{"encoding": "base64"}), nil
	}

	return nil, unsupported(a.Namespace(), action.Kind())
}

func transactionDetails(include bool) string {
	if include {
		return "full"
	}
	return "signatures"
}

func slotFromTag(tag types.BlockTag) (uint64, error) {
	if tag == "" {
		return 0, types.InvalidArgument("solana getBlock requires a slot", "blockTag", tag)
	}
	slot, err := utils.ParseQuantityString(string(tag))
	if err != nil || !slot.IsUint64() {
		return 0, types.InvalidArgument("solana getBlock requires a slot", "blockTag", tag)
	}
	return slot.Uint64(), nil
}

func solanaTransaction(tx *types.PreparedTransaction) (*solana.Transaction, error) {
	if tx == nil || tx.Solana == nil {
		return nil, types.InvalidArgument("solana transaction not found", "transaction", nil)
	}
	return tx.Solana, nil
}

func encodeMessage(tx *types.PreparedTransaction) (string, error) {
	native, err := solanaTransaction(tx)
	if err != nil {
		return "", err
	}
	raw, err := native.Message.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode solana message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func encodeTransaction(tx *types.PreparedTransaction) (string, error) {
	native, err := solanaTransaction(tx)
	if err != nil {
		return "", err
	}
	if len(native.Signatures) == 0 {
		// simulation runs with sigVerify off; blank signatures keep the layout valid
		unsigned := *native
		unsigned.Signatures = make([]solana.Signature, native.Message.Header.NumRequiredSignatures)
		native = &unsigned
	}
	raw, err := native.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode solana transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// NormalizeTransaction has no JSON form for Solana; the native transaction
// travels base64 encoded inside the request instead.
func (a *SolanaAdapter) NormalizeTransaction(tx *types.PreparedTransaction) (*types.RPCTransaction, error) {
	if _, err := solanaTransaction(tx); err != nil {
		return nil, err
	}
	return &types.RPCTransaction{From: tx.From, To: tx.To}, nil
}

// Solana JSON-RPC error codes.
const (
	solanaMethodNotFound       = -32601
	solanaPreflightFailure     = -32002
	solanaBlockhashNotFound    = -32003
	solanaTransactionSimFailed = -32004
)

func (a *SolanaAdapter) ClassifyError(payload *types.Payload, rpcErr *types.RPCError) error {
	value := rpcErrorValue(rpcErr)
	message := strings.Join(spelunkMessage(value), "\n")

	var logs []string
	if data, ok := value["data"].(map[string]any); ok {
		if rawLogs, ok := data["logs"].([]any); ok {
			for _, l := range rawLogs {
				if s, ok := l.(string); ok {
					logs = append(logs, s)
				}
			}
		}
	}
	message += "\n" + strings.Join(logs, "\n")

	switch {
	case rpcErr.Code == solanaMethodNotFound:
		return &types.Error{
			Code:      types.ErrUnsupportedOperation,
			Message:   "unsupported operation",
			Operation: payload.Method,
			Payload:   payload,
			RPCError:  rpcErr,
		}

	case containsFold(message, "insufficient lamports"), containsFold(message, "no record of a prior credit"):
		return &types.Error{
			Code:        types.ErrInsufficientFunds,
			Message:     "insufficient funds",
			Transaction: firstParam(payload),
			Payload:     payload,
			RPCError:    rpcErr,
		}

	case rpcErr.Code == solanaBlockhashNotFound, containsFold(message, "blockhash not found"):
		return &types.Error{
			Code:        types.ErrNonceExpired,
			Message:     "blockhash expired",
			Transaction: firstParam(payload),
			Payload:     payload,
			RPCError:    rpcErr,
		}

	case containsFold(message, "custom program error"),
		payload.Method == "simulateTransaction" && rpcErr.Code == solanaTransactionSimFailed,
		rpcErr.Code == solanaPreflightFailure:
		action := "call"
		if payload.Method == "sendTransaction" {
			action = "sendTransaction"
		}
		return &types.Error{
			Code:     types.ErrCallException,
			Message:  "transaction simulation failed",
			Action:   action,
			Reason:   rpcErr.Message,
			Payload:  payload,
			RPCError: rpcErr,
			Data:     logs,
		}
	}

	return unknownError(payload, rpcErr)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

package provider

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/vitwit/chainrpc/signer"
	"github.com/vitwit/chainrpc/transport"
	"github.com/vitwit/chainrpc/types"
)

// TronAPIKeyHeader authenticates requests to TronGrid full nodes.
const TronAPIKeyHeader = "TRON-PRO-API-KEY"

// TronProvider serves the tron namespace. Reads go through the node's
// eth_* JSON-RPC endpoint; signed transactions are broadcast through the
// full node HTTP API, which the JSON-RPC endpoint does not offer.
type TronProvider struct {
	*Provider
	fullNode transport.Transport
}

var _ signer.Backend = (*TronProvider)(nil)

// NewTron builds a Tron provider. fullNode posts to
// /wallet/broadcasttransaction and may be nil for a read-only provider.
func NewTron(tr, fullNode transport.Transport, network any, opts ...Option) (*TronProvider, error) {
	p, err := New(tr, types.NamespaceTron, network, opts...)
	if err != nil {
		return nil, err
	}
	return &TronProvider{Provider: p, fullNode: fullNode}, nil
}

// NewTronFullNode returns a transport for the broadcast endpoint of the full
// node at fullHost.
func NewTronFullNode(fullHost, apiKey string, opts transport.HTTPOptions) *transport.HTTP {
	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if apiKey != "" {
		headers[TronAPIKeyHeader] = apiKey
	}
	opts.Headers = headers
	// every call here is a broadcast
	opts.RetryCount = 0
	return transport.NewHTTP(strings.TrimRight(fullHost, "/")+"/wallet/broadcasttransaction", opts)
}

// GetTransactionCount is always zero; Tron accounts have no nonce.
func (t *TronProvider) GetTransactionCount(context.Context, types.Addressable, types.BlockTag) (uint64, error) {
	return 0, nil
}

type tronBroadcastResult struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BroadcastTransaction submits a signed transaction object, as produced by a
// TronWallet, and returns its txID.
func (t *TronProvider) BroadcastTransaction(ctx context.Context, signedTx string) (string, error) {
	var signed struct {
		TxID      string   `json:"txID"`
		Signature []string `json:"signature"`
	}
	if err := json.Unmarshal([]byte(signedTx), &signed); err != nil || signed.TxID == "" {
		return "", types.InvalidArgument("signed transaction must be a tron transaction object", "signedTx", signedTx)
	}
	if len(signed.Signature) == 0 {
		return "", types.InvalidArgument("transaction is not signed", "signedTx", signed.TxID)
	}
	if t.fullNode == nil {
		return "", types.Unsupported("broadcastTransaction", "tron provider has no full node")
	}

	raw, err := t.fullNode.Send(ctx, []byte(signedTx))
	if err != nil {
		return "", err
	}
	var resp *tronBroadcastResult
	if err := json.Unmarshal(raw, &resp); err != nil || resp == nil {
		return "", &types.Error{Code: types.ErrBadData, Message: "no response from server", Data: string(raw), Err: err}
	}

	if !resp.Result {
		message := resp.Message
		if decoded, err := hex.DecodeString(message); err == nil {
			message = string(decoded)
		}
		return "", &types.Error{
			Code:    types.ErrBadData,
			Message: "error from server",
			Data:    map[string]any{"code": resp.Code, "message": message, "txID": signed.TxID},
		}
	}
	if !strings.EqualFold(resp.TxID, signed.TxID) {
		return "", &types.Error{
			Code:    types.ErrBadData,
			Message: "the returned txID did not match",
			Data:    map[string]any{"expected": signed.TxID, "actual": resp.TxID},
		}
	}

	t.opts.Logger.Debug("tron transaction broadcast", map[string]any{"txID": resp.TxID})
	return resp.TxID, nil
}

// Destroy tears down the JSON-RPC provider and closes the full node.
func (t *TronProvider) Destroy() error {
	var result *multierror.Error
	if err := t.Provider.Destroy(); err != nil {
		result = multierror.Append(result, err)
	}
	if t.fullNode != nil {
		if err := t.fullNode.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

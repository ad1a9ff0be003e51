package signer

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/vitwit/chainrpc/clients"
	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

const (
	testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	other   = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
)

// fakeBackend is an in-memory Backend with fixed answers.
type fakeBackend struct {
	ns      types.ChainNamespace
	network *types.Network
	fees    *types.FeeData
	nonce   uint64
	gas     *big.Int
	names   map[string]string

	feeCalls      atomic.Int32
	estimateCalls atomic.Int32

	mu        sync.Mutex
	estimates []*types.TransactionRequest
	sent      []string
	hash      string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	network, err := types.NetworkFrom(types.NamespaceEIP155, "mainnet")
	require.NoError(t, err)
	return &fakeBackend{
		ns:      types.NamespaceEIP155,
		network: network,
		fees: &types.FeeData{
			GasPrice:             big.NewInt(50),
			MaxFeePerGas:         big.NewInt(100),
			MaxPriorityFeePerGas: big.NewInt(2),
		},
		nonce: 7,
		gas:   big.NewInt(21000),
		names: map[string]string{},
	}
}

func (b *fakeBackend) Namespace() types.ChainNamespace { return b.ns }

func (b *fakeBackend) GetNetwork(context.Context) (*types.Network, error) {
	return b.network.Clone(), nil
}

func (b *fakeBackend) ResolveAddress(ctx context.Context, target types.Addressable) (string, error) {
	return utils.ResolveAddress(ctx, target, b.ns, b)
}

func (b *fakeBackend) ResolveName(_ context.Context, name string) (string, error) {
	return b.names[name], nil
}

func (b *fakeBackend) GetTransactionCount(context.Context, types.Addressable, types.BlockTag) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) GetFeeData(context.Context) (*types.FeeData, error) {
	b.feeCalls.Inc()
	return &types.FeeData{
		GasPrice:             b.fees.GasPrice,
		MaxFeePerGas:         b.fees.MaxFeePerGas,
		MaxPriorityFeePerGas: b.fees.MaxPriorityFeePerGas,
	}, nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, tx *types.TransactionRequest) (*big.Int, error) {
	b.estimateCalls.Inc()
	b.mu.Lock()
	b.estimates = append(b.estimates, tx)
	b.mu.Unlock()
	return new(big.Int).Set(b.gas), nil
}

func (b *fakeBackend) Call(context.Context, *types.TransactionRequest) (hexutil.Bytes, error) {
	return hexutil.Bytes{0x01}, nil
}

// BroadcastTransaction answers eip155 payloads with their keccak hash and
// everything else with b.hash.
func (b *fakeBackend) BroadcastTransaction(_ context.Context, signedTx string) (string, error) {
	b.mu.Lock()
	b.sent = append(b.sent, signedTx)
	b.mu.Unlock()
	if b.ns == types.NamespaceEIP155 {
		payload, err := hexutil.Decode(signedTx)
		if err != nil {
			return "", err
		}
		return crypto.Keccak256Hash(payload).Hex(), nil
	}
	return b.hash, nil
}

func (b *fakeBackend) lastSent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return ""
	}
	return b.sent[len(b.sent)-1]
}

type rpcCall struct {
	method string
	params string
}

// fakeRPC adds a node-managed account surface to fakeBackend.
type fakeRPC struct {
	*fakeBackend
	adapter clients.ChainAdapter

	rpcMu   sync.Mutex
	calls   []rpcCall
	answers map[string]any
	lookup  func(hash string) (*types.TransactionResponse, error)
}

func newFakeRPC(t *testing.T) *fakeRPC {
	return &fakeRPC{
		fakeBackend: newFakeBackend(t),
		adapter:     clients.NewEVMAdapter(),
		answers:     map[string]any{},
	}
}

func (r *fakeRPC) Send(_ context.Context, method string, params any) (json.RawMessage, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	r.rpcMu.Lock()
	r.calls = append(r.calls, rpcCall{method: method, params: string(encoded)})
	answer, ok := r.answers[method]
	r.rpcMu.Unlock()
	if !ok {
		return nil, &types.Error{Code: types.ErrUnsupportedOperation, Message: "method not found", Operation: method}
	}
	return json.Marshal(answer)
}

func (r *fakeRPC) GetTransaction(_ context.Context, hash string) (*types.TransactionResponse, error) {
	if r.lookup == nil {
		return &types.TransactionResponse{Hash: hash}, nil
	}
	return r.lookup(hash)
}

func (r *fakeRPC) Adapter() clients.ChainAdapter { return r.adapter }

// paramsOf returns the JSON params of the last call of method.
func (r *fakeRPC) paramsOf(method string) []json.RawMessage {
	r.rpcMu.Lock()
	defer r.rpcMu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].method != method {
			continue
		}
		var params []json.RawMessage
		if err := json.NewDecoder(strings.NewReader(r.calls[i].params)).Decode(&params); err != nil {
			return nil
		}
		return params
	}
	return nil
}

package chainrpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/chainrpc/signer"
	"github.com/vitwit/chainrpc/types"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// rpcNode is a JSON-RPC endpoint answering from a fixed result table.
type rpcNode struct {
	mu      sync.Mutex
	results map[string]any
	headers []http.Header
}

func newRPCNode(t *testing.T, results map[string]any) (*rpcNode, string) {
	t.Helper()
	n := &rpcNode{results: results}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	return n, srv.URL
}

func (n *rpcNode) serve(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	n.headers = append(n.headers, r.Header.Clone())
	n.mu.Unlock()

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var reqs []types.Payload
	if len(raw) > 0 && raw[0] == '[' {
		_ = json.Unmarshal(raw, &reqs)
	} else {
		var req types.Payload
		_ = json.Unmarshal(raw, &req)
		reqs = append(reqs, req)
	}

	out := make([]map[string]any, 0, len(reqs))
	for _, req := range reqs {
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := n.results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		out = append(out, resp)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (n *rpcNode) lastHeader(key string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.headers) == 0 {
		return ""
	}
	return n.headers[len(n.headers)-1].Get(key)
}

func evmConfig(url string) types.ClientConfig {
	return types.ClientConfig{
		Namespace:     types.NamespaceEIP155,
		Network:       "mainnet",
		RPCUrl:        url,
		StaticNetwork: true,
		Headers:       map[string]string{"X-Api-Key": "secret"},
	}
}

func TestAddNetworkEVM(t *testing.T) {
	node, url := newRPCNode(t, map[string]any{"eth_blockNumber": "0x10"})
	c := New()
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.AddNetwork(context.Background(), "eth", evmConfig(url)))
	assert.True(t, c.IsNetworkSupported("eth"))
	assert.Equal(t, []string{"eth"}, c.Networks())

	p, err := c.EVM("eth")
	require.NoError(t, err)
	n, err := p.GetBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), n)
	assert.Equal(t, "secret", node.lastHeader("X-Api-Key"))

	_, err = c.Solana("eth")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))

	err = c.AddNetwork(context.Background(), "eth", evmConfig(url))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestAddNetworkRejectsInvalidConfig(t *testing.T) {
	c := New()

	err := c.AddNetwork(context.Background(), "eth", types.ClientConfig{Namespace: types.NamespaceEIP155})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))

	cfg := evmConfig("https://rpc.example.org")
	cfg.Network = "no-such-network"
	assert.Error(t, c.AddNetwork(context.Background(), "eth", cfg))

	cfg = evmConfig("https://rpc.example.org")
	cfg.Namespace = types.NamespaceSolana
	cfg.Network = "mainnet"
	assert.Error(t, c.AddNetwork(context.Background(), "sol", cfg), "mainnet is not a solana network")

	assert.Empty(t, c.Networks())
}

func TestSolanaNetwork(t *testing.T) {
	_, url := newRPCNode(t, map[string]any{"getBlockHeight": 1234})
	c := New()
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.AddNetwork(context.Background(), "sol", types.ClientConfig{
		Namespace: types.NamespaceSolana,
		Network:   "solana-devnet",
		RPCUrl:    url,
	}))

	p, err := c.Solana("sol")
	require.NoError(t, err)
	n, err := p.GetBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), n)

	s, err := c.Signer("sol", testKey)
	require.NoError(t, err)
	assert.IsType(t, &signer.SolanaWallet{}, s)
}

func TestTronNetwork(t *testing.T) {
	node, url := newRPCNode(t, map[string]any{})
	c := New()
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.AddNetwork(context.Background(), "tron", types.ClientConfig{
		Namespace:     types.NamespaceTron,
		Network:       "tron-nile",
		RPCUrl:        url,
		FullNodeURL:   url,
		TronAPIKey:    "tron-key",
		StaticNetwork: true,
	}))

	p, err := c.Tron("tron")
	require.NoError(t, err)
	network, err := p.GetNetwork(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tron-nile", network.Name())

	// Reads on the JSON-RPC endpoint carry the API key too.
	_, _ = p.GetBlockNumber(context.Background())
	assert.Equal(t, "tron-key", node.lastHeader("TRON-PRO-API-KEY"))

	s, err := c.Signer("tron", testKey)
	require.NoError(t, err)
	assert.IsType(t, &signer.TronWallet{}, s)

	_, err = c.EVM("tron")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestSignerForEVM(t *testing.T) {
	_, url := newRPCNode(t, map[string]any{})
	c := New()
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.AddNetwork(context.Background(), "eth", evmConfig(url)))

	s, err := c.Signer("eth", testKey)
	require.NoError(t, err)
	assert.IsType(t, &signer.Wallet{}, s)

	_, err = c.Signer("eth", "not a key")
	assert.Error(t, err)

	_, err = c.Signer("missing", testKey)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestNewFromConfigAndClose(t *testing.T) {
	_, url := newRPCNode(t, map[string]any{"eth_blockNumber": "0x1"})

	sepolia := evmConfig(url)
	sepolia.Network = "sepolia"
	c, err := NewFromConfig(context.Background(), &types.Config{
		Clients: map[string]types.ClientConfig{
			"mainnet": evmConfig(url),
			"sepolia": sepolia,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mainnet", "sepolia"}, c.Networks())

	require.NoError(t, c.RemoveNetwork("sepolia"))
	assert.Equal(t, []string{"mainnet"}, c.Networks())
	assert.True(t, types.IsErrorCode(c.RemoveNetwork("sepolia"), types.ErrInvalidArgument))

	require.NoError(t, c.Close())
	assert.Empty(t, c.Networks())
}

func TestNewFromConfigFailsOnBadNetwork(t *testing.T) {
	_, err := NewFromConfig(context.Background(), &types.Config{
		Clients: map[string]types.ClientConfig{
			"bad": {Namespace: types.NamespaceEIP155, RPCUrl: "https://rpc.example.org", Network: "nope", StaticNetwork: true},
		},
	})
	assert.Error(t, err)

	_, err = NewFromConfig(context.Background(), &types.Config{LogLevel: "loud"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestNetworkish(t *testing.T) {
	v, err := networkish(types.ClientConfig{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = networkish(types.ClientConfig{Network: "137"})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(137), v)

	v, err = networkish(types.ClientConfig{Network: "matic"})
	require.NoError(t, err)
	assert.Equal(t, "matic", v)

	_, err = networkish(types.ClientConfig{StaticNetwork: true})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v["library_version"])
	assert.Contains(t, v["namespaces"], "tron")
}

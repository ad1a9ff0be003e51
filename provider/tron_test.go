package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/chainrpc/signer"
	"github.com/vitwit/chainrpc/transport"
	"github.com/vitwit/chainrpc/types"
)

const tronKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// fakeFullNode answers /wallet/broadcasttransaction.
type fakeFullNode struct {
	mu       sync.Mutex
	received []string
	answer   func(txID string) map[string]any
}

func (f *fakeFullNode) transport() transport.Transport {
	return transport.Func(func(_ context.Context, body []byte) ([]byte, error) {
		var tx struct {
			TxID string `json:"txID"`
		}
		if err := json.Unmarshal(body, &tx); err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.received = append(f.received, string(body))
		f.mu.Unlock()

		answer := map[string]any{"result": true, "txid": tx.TxID}
		if f.answer != nil {
			answer = f.answer(tx.TxID)
		}
		return json.Marshal(answer)
	})
}

func newTestTron(t *testing.T, node *fakeNode, full *fakeFullNode) *TronProvider {
	t.Helper()
	network, err := types.NetworkFrom(types.NamespaceTron, "tron-nile")
	require.NoError(t, err)

	var fullNode transport.Transport
	if full != nil {
		fullNode = full.transport()
	}
	p, err := NewTron(node.transport(), fullNode, nil, WithStaticNetwork(network), WithCacheTimeout(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Destroy() })
	return p
}

func unsignedTronTx(t *testing.T) []byte {
	t.Helper()
	rawData := []byte{0x0a, 0x02, 0x01, 0x02}
	id := sha256.Sum256(rawData)
	out, err := json.Marshal(map[string]any{
		"txID":         hex.EncodeToString(id[:]),
		"raw_data":     map[string]any{"ref_block_hash": "abcd"},
		"raw_data_hex": hex.EncodeToString(rawData),
	})
	require.NoError(t, err)
	return out
}

func signedTronTx(t *testing.T) (string, string) {
	t.Helper()
	w, err := signer.NewTronWallet(tronKey, nil)
	require.NoError(t, err)
	signed, err := w.SignTransaction(context.Background(), &types.PreparedTransaction{Tron: unsignedTronTx(t)})
	require.NoError(t, err)

	var tx struct {
		TxID string `json:"txID"`
	}
	require.NoError(t, json.Unmarshal([]byte(signed), &tx))
	return signed, tx.TxID
}

func TestTronBroadcast(t *testing.T) {
	full := &fakeFullNode{}
	p := newTestTron(t, newFakeNode(), full)
	signed, txID := signedTronTx(t)

	hash, err := p.BroadcastTransaction(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, txID, hash)
	require.Len(t, full.received, 1)
	assert.JSONEq(t, signed, full.received[0])
}

func TestTronBroadcastFailures(t *testing.T) {
	signed, txID := signedTronTx(t)

	t.Run("rejected", func(t *testing.T) {
		full := &fakeFullNode{answer: func(string) map[string]any {
			return map[string]any{"code": "SIGERROR", "message": hex.EncodeToString([]byte("validate signature error"))}
		}}
		p := newTestTron(t, newFakeNode(), full)

		_, err := p.BroadcastTransaction(context.Background(), signed)
		var e *types.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, types.ErrBadData, e.Code)
		assert.Equal(t, "validate signature error", e.Data.(map[string]any)["message"])
		assert.Equal(t, "SIGERROR", e.Data.(map[string]any)["code"])
	})

	t.Run("txID mismatch", func(t *testing.T) {
		full := &fakeFullNode{answer: func(string) map[string]any {
			return map[string]any{"result": true, "txid": "ff"}
		}}
		p := newTestTron(t, newFakeNode(), full)

		_, err := p.BroadcastTransaction(context.Background(), signed)
		var e *types.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "the returned txID did not match", e.Message)
		assert.Equal(t, txID, e.Data.(map[string]any)["expected"])
	})

	t.Run("unsigned", func(t *testing.T) {
		p := newTestTron(t, newFakeNode(), &fakeFullNode{})
		_, err := p.BroadcastTransaction(context.Background(), string(unsignedTronTx(t)))
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
	})

	t.Run("read only", func(t *testing.T) {
		p := newTestTron(t, newFakeNode(), nil)
		_, err := p.BroadcastTransaction(context.Background(), signed)
		assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOperation))
	})
}

func TestTronTransactionCountIsZero(t *testing.T) {
	node := newFakeNode()
	p := newTestTron(t, node, nil)

	n, err := p.GetTransactionCount(context.Background(), types.Address("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"), types.BlockPending)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, node.count("eth_getTransactionCount"))
}

func TestTronWalletThroughProvider(t *testing.T) {
	node := newFakeNode().result("eth_estimateGas", "0x3e8")
	full := &fakeFullNode{}
	p := newTestTron(t, node, full)

	w, err := signer.NewTronWallet(tronKey, p)
	require.NoError(t, err)

	resp, err := w.SendTransaction(context.Background(), &types.TransactionRequest{
		To:   types.Address("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"),
		Tron: unsignedTronTx(t),
	})
	require.NoError(t, err)

	_, txID := signedTronTx(t)
	assert.Equal(t, txID, resp.Hash)
	assert.Equal(t, int64(1000), resp.Gas.ToInt().Int64())
	assert.Equal(t, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", resp.To)

	var estimate []map[string]any
	require.NoError(t, json.Unmarshal(mustJSON(t, node.lastParams("eth_estimateGas")), &estimate))
	assert.Equal(t, "0x41a614f803b6fd780986a42c78ec9c7f77e6ded13c", estimate[0]["to"])
	require.Len(t, full.received, 1)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return out
}

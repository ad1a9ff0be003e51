package signer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/chainrpc/types"
)

const sentHash = "0x5e77a04531c7c107af1882d76cbff9486d0a9aa53701c30888509d4f5f2b003a"

func TestObserveBackOffSchedule(t *testing.T) {
	b := newObserveBackOff()

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestJSONRPCSignerSendUnchecked(t *testing.T) {
	rpc := newFakeRPC(t)
	rpc.answers["eth_sendTransaction"] = sentHash
	s := NewJSONRPCSigner(rpc, other)

	hash, err := s.SendUncheckedTransaction(context.Background(), &types.TransactionRequest{
		To:   types.Address(other),
		Data: []byte{0xde, 0xad},
	})
	require.NoError(t, err)
	assert.Equal(t, sentHash, hash)

	params := rpc.paramsOf("eth_sendTransaction")
	require.Len(t, params, 1)
	var wire types.RPCTransaction
	require.NoError(t, json.Unmarshal(params[0], &wire))
	assert.Equal(t, strings.ToLower(other), wire.From)
	assert.Equal(t, strings.ToLower(other), wire.To)
	assert.Equal(t, "0x5208", wire.Gas)
	assert.Equal(t, "0xdead", wire.Data)
	assert.Empty(t, wire.Nonce, "the node assigns the nonce")

	from, err := rpc.estimates[0].From.GetAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, other, from)
}

func TestJSONRPCSignerFromMismatch(t *testing.T) {
	rpc := newFakeRPC(t)
	rpc.answers["eth_sendTransaction"] = sentHash
	s := NewJSONRPCSigner(rpc, other)

	_, err := s.SendUncheckedTransaction(context.Background(), &types.TransactionRequest{
		From: types.Address("0x0000000000000000000000000000000000000001"),
	})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
	assert.Nil(t, rpc.paramsOf("eth_sendTransaction"))
}

func TestJSONRPCSignerSendTransactionWaits(t *testing.T) {
	rpc := newFakeRPC(t)
	rpc.answers["eth_sendTransaction"] = sentHash
	polls := 0
	rpc.lookup = func(hash string) (*types.TransactionResponse, error) {
		polls++
		if polls < 3 {
			return nil, nil
		}
		return &types.TransactionResponse{Hash: hash, From: other}, nil
	}
	s := NewJSONRPCSigner(rpc, other)

	hash, err := s.SendUncheckedTransaction(context.Background(), &types.TransactionRequest{To: types.Address(other)})
	require.NoError(t, err)

	resp, err := s.waitForTransaction(context.Background(), hash, backoff.NewConstantBackOff(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, sentHash, resp.Hash)
	assert.Equal(t, 3, polls)
}

func TestWaitForTransactionStopsOnFatalErrors(t *testing.T) {
	rpc := newFakeRPC(t)
	rpc.lookup = func(string) (*types.TransactionResponse, error) {
		return nil, types.NewError(types.ErrBadData, "invalid response")
	}
	s := NewJSONRPCSigner(rpc, other)

	_, err := s.waitForTransaction(context.Background(), sentHash, backoff.NewConstantBackOff(time.Millisecond))
	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrBadData, e.Code)
	assert.Equal(t, sentHash, e.Data.(map[string]any)["sendTransactionHash"])
}

func TestWaitForTransactionToleratesInvalidArguments(t *testing.T) {
	rpc := newFakeRPC(t)
	polls := 0
	rpc.lookup = func(string) (*types.TransactionResponse, error) {
		polls++
		return nil, types.InvalidArgument("bad hash", "hash", nil)
	}
	s := NewJSONRPCSigner(rpc, other)

	_, err := s.waitForTransaction(context.Background(), sentHash, backoff.NewConstantBackOff(time.Millisecond))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
	assert.Equal(t, maxInvalidPolls+1, polls)
}

func TestWaitForTransactionHonoursContext(t *testing.T) {
	rpc := newFakeRPC(t)
	rpc.lookup = func(string) (*types.TransactionResponse, error) { return nil, nil }
	s := NewJSONRPCSigner(rpc, other)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.waitForTransaction(ctx, sentHash, newObserveBackOff())
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
}

func TestJSONRPCSignerSigning(t *testing.T) {
	rpc := newFakeRPC(t)
	rpc.answers["personal_sign"] = "0xaa"
	rpc.answers["eth_sign"] = "0xbb"
	rpc.answers["eth_signTypedData_v4"] = "0xcc"
	rpc.answers["personal_unlockAccount"] = true
	s := NewJSONRPCSigner(rpc, other)
	ctx := context.Background()
	lower := `"` + strings.ToLower(other) + `"`

	sig, err := s.SignMessage(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "0xaa", sig)
	params := rpc.paramsOf("personal_sign")
	require.Len(t, params, 2)
	assert.JSONEq(t, `"0x68656c6c6f"`, string(params[0]))
	assert.JSONEq(t, lower, string(params[1]))

	sig, err = s.SignLegacyMessage(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "0xbb", sig)
	params = rpc.paramsOf("eth_sign")
	require.Len(t, params, 2)
	assert.JSONEq(t, lower, string(params[0]))
	assert.JSONEq(t, `"0x68656c6c6f"`, string(params[1]))

	sig, err = s.SignTypedData(ctx, mail())
	require.NoError(t, err)
	assert.Equal(t, "0xcc", sig)
	params = rpc.paramsOf("eth_signTypedData_v4")
	require.Len(t, params, 2)
	assert.JSONEq(t, lower, string(params[0]))
	var payload string
	require.NoError(t, json.Unmarshal(params[1], &payload))
	assert.Contains(t, payload, `"primaryType":"Mail"`)

	ok, err := s.Unlock(ctx, "secret")
	require.NoError(t, err)
	assert.True(t, ok)
	params = rpc.paramsOf("personal_unlockAccount")
	require.Len(t, params, 3)
	assert.JSONEq(t, `"secret"`, string(params[1]))
	assert.JSONEq(t, `null`, string(params[2]))
}

func TestJSONRPCSignerSignTransaction(t *testing.T) {
	rpc := newFakeRPC(t)
	s := NewJSONRPCSigner(rpc, other)

	rpc.answers["eth_signTransaction"] = map[string]any{"raw": "0xf86b", "tx": map[string]any{}}
	signed, err := s.SignTransaction(context.Background(), &types.PreparedTransaction{To: other})
	require.NoError(t, err)
	assert.Equal(t, "0xf86b", signed)

	var wire types.RPCTransaction
	require.NoError(t, json.Unmarshal(rpc.paramsOf("eth_signTransaction")[0], &wire))
	assert.Equal(t, strings.ToLower(other), wire.From)

	rpc.answers["eth_signTransaction"] = "0xf86c"
	signed, err = s.SignTransaction(context.Background(), &types.PreparedTransaction{To: other})
	require.NoError(t, err)
	assert.Equal(t, "0xf86c", signed)

	_, err = s.SignTransaction(context.Background(), &types.PreparedTransaction{From: "0x0000000000000000000000000000000000000001"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestJSONRPCSignerPopulateLeavesFieldsToNode(t *testing.T) {
	rpc := newFakeRPC(t)
	s := NewJSONRPCSigner(rpc, other)

	pop, err := s.PopulateTransaction(context.Background(), &types.TransactionRequest{To: types.Address(other)})
	require.NoError(t, err)
	assert.Nil(t, pop.Nonce)
	assert.Nil(t, pop.GasLimit)
	assert.Zero(t, rpc.feeCalls.Load())
}

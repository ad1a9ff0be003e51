package clients

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/chainrpc/types"
)

const (
	usdtBase58   = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	usdtPrefixed = "0x41a614f803b6fd780986a42c78ec9c7f77e6ded13c"
)

func TestTronMapRequestPrefixesAddresses(t *testing.T) {
	a := NewTronAdapter()

	for _, addr := range []string{usdtBase58, "0xa614f803b6fd780986a42c78ec9c7f77e6ded13c", usdtPrefixed} {
		req, err := a.MapRequest(types.BalanceAction{Address: addr})
		require.NoError(t, err, addr)
		assert.Equal(t, "eth_getBalance", req.Method)
		assert.Equal(t, []any{usdtPrefixed, types.BlockLatest}, req.Args)
	}

	req, err := a.MapRequest(types.LogsAction{Filter: types.Filter{Address: []string{usdtBase58}}})
	require.NoError(t, err)
	filter := req.Args[0].(types.RPCFilter)
	assert.Equal(t, usdtPrefixed, filter.Address)
}

func TestTronMapRequestRejectsBadAddress(t *testing.T) {
	_, err := NewTronAdapter().MapRequest(types.CodeAction{Address: "not-an-address"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestTronNormalizeTransaction(t *testing.T) {
	tx := &types.PreparedTransaction{From: usdtBase58, To: usdtBase58, Data: []byte{0x01}}

	out, err := NewTronAdapter().NormalizeTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, usdtPrefixed, out.From)
	assert.Equal(t, usdtPrefixed, out.To)
	assert.Equal(t, "0x01", out.Data)

	// the caller's transaction is left alone
	assert.Equal(t, usdtBase58, tx.From)
}

func TestTronCallUsesPrefixedTransaction(t *testing.T) {
	req, err := NewTronAdapter().MapRequest(types.CallAction{
		Transaction: &types.PreparedTransaction{To: usdtBase58},
	})
	require.NoError(t, err)
	assert.Equal(t, "eth_call", req.Method)
	assert.Equal(t, usdtPrefixed, req.Args[0].(*types.RPCTransaction).To)
}

func TestTronClassifyError(t *testing.T) {
	a := NewTronAdapter()

	err := a.ClassifyError(payload("eth_sendRawTransaction", "0x01"),
		rpcError(-32000, "Validate TransferContract error, balance is not sufficient.", nil))
	assert.True(t, types.IsErrorCode(err, types.ErrInsufficientFunds))

	err = a.ClassifyError(payload("eth_call"), rpcError(3, "execution reverted: X", revertX))
	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrCallException, e.Code)
	assert.Equal(t, "X", e.Reason)

	// A contract revert reading "insufficient balance" is still a call
	// exception and keeps its data.
	for _, method := range []string{"eth_call", "eth_estimateGas"} {
		err = a.ClassifyError(payload(method), rpcError(3, "execution reverted: insufficient balance", revertInsufficientBalance))
		require.ErrorAs(t, err, &e, method)
		assert.Equal(t, types.ErrCallException, e.Code, method)
		assert.Equal(t, revertInsufficientBalance, e.RevertData, method)
		assert.Equal(t, "insufficient balance", e.Reason, method)
	}

	err = a.ClassifyError(payload("eth_sendRawTransaction", "0x01"),
		rpcError(-32000, "insufficient balance", nil))
	assert.True(t, types.IsErrorCode(err, types.ErrInsufficientFunds))
}

// revertInsufficientBalance is Error("insufficient balance") ABI encoded.
var revertInsufficientBalance = "0x08c379a0" +
	strings.Repeat("0", 62) + "20" +
	strings.Repeat("0", 62) + "14" +
	"696e73756666696369656e742062616c616e6365" + strings.Repeat("0", 24)

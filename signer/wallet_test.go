package signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

func decodeSigned(t *testing.T, signed string) *ethtypes.Transaction {
	t.Helper()
	raw, err := hexutil.Decode(signed)
	require.NoError(t, err)
	tx := new(ethtypes.Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw))
	return tx
}

func mail() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Mail": {
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Mail",
		Domain: apitypes.TypedDataDomain{
			Name:    "chainrpc",
			ChainId: math.NewHexOrDecimal256(1),
		},
		Message: apitypes.TypedDataMessage{"contents": "hello"},
	}
}

func TestNewWalletRejectsBadKey(t *testing.T) {
	_, err := NewWallet("0x1234", nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestWalletAddress(t *testing.T) {
	key, err := utils.PrivateKeyFromHex(testKey)
	require.NoError(t, err)

	w, err := NewWallet(testKey, nil)
	require.NoError(t, err)

	addr, err := w.GetAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), addr)
}

func TestWalletSignTransaction(t *testing.T) {
	w, err := NewWallet(testKey, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		tx   *types.PreparedTransaction
		typ  uint8
	}{
		{
			name: "legacy",
			tx:   &types.PreparedTransaction{Type: u8(0), GasPrice: big.NewInt(50)},
			typ:  ethtypes.LegacyTxType,
		},
		{
			name: "access list",
			tx:   &types.PreparedTransaction{Type: u8(1), GasPrice: big.NewInt(50)},
			typ:  ethtypes.AccessListTxType,
		},
		{
			name: "dynamic fee",
			tx:   &types.PreparedTransaction{Type: u8(2), MaxFeePerGas: big.NewInt(100), MaxPriorityFeePerGas: big.NewInt(2)},
			typ:  ethtypes.DynamicFeeTxType,
		},
		{
			name: "inferred dynamic fee",
			tx:   &types.PreparedTransaction{MaxFeePerGas: big.NewInt(100), MaxPriorityFeePerGas: big.NewInt(2)},
			typ:  ethtypes.DynamicFeeTxType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := tt.tx.Copy()
			tx.To = other
			tx.Nonce = u64(9)
			tx.GasLimit = big.NewInt(21000)
			tx.ChainID = big.NewInt(1)
			tx.Value = big.NewInt(12345)

			signed, err := w.SignTransaction(context.Background(), tx)
			require.NoError(t, err)

			decoded := decodeSigned(t, signed)
			assert.Equal(t, tt.typ, decoded.Type())
			assert.Equal(t, uint64(9), decoded.Nonce())
			assert.Equal(t, uint64(21000), decoded.Gas())
			assert.Equal(t, int64(12345), decoded.Value().Int64())
			assert.Equal(t, other, decoded.To().Hex())

			sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(1)), decoded)
			require.NoError(t, err)
			assert.Equal(t, w.Address(), sender)
		})
	}
}

func TestWalletSignTransactionRequiresFields(t *testing.T) {
	w, err := NewWallet(testKey, nil)
	require.NoError(t, err)

	complete := func() *types.PreparedTransaction {
		return &types.PreparedTransaction{
			Nonce:    u64(0),
			GasLimit: big.NewInt(21000),
			ChainID:  big.NewInt(1),
			GasPrice: big.NewInt(1),
		}
	}

	tx := complete()
	tx.Nonce = nil
	_, err = w.SignTransaction(context.Background(), tx)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))

	tx = complete()
	tx.ChainID = nil
	_, err = w.SignTransaction(context.Background(), tx)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))

	tx = complete()
	tx.From = other
	_, err = w.SignTransaction(context.Background(), tx)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))

	tx = complete()
	signed, err := w.SignTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Nil(t, decodeSigned(t, signed).To(), "empty To creates a contract")
}

func TestWalletSignMessage(t *testing.T) {
	w, err := NewWallet(testKey, nil)
	require.NoError(t, err)

	sig, err := w.SignMessage(context.Background(), []byte("hello"))
	require.NoError(t, err)

	ok, err := utils.VerifyPersonalMessage([]byte("hello"), sig, w.Address())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWalletSignTypedData(t *testing.T) {
	w, err := NewWallet(testKey, nil)
	require.NoError(t, err)

	sig, err := w.SignTypedData(context.Background(), mail())
	require.NoError(t, err)

	ok, err := utils.VerifyTypedDataSignature(mail(), sig, w.Address())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWalletSendTransaction(t *testing.T) {
	backend := newFakeBackend(t)
	w, err := NewWallet(testKey, backend)
	require.NoError(t, err)

	resp, err := w.SendTransaction(context.Background(), &types.TransactionRequest{
		To:    types.Address(other),
		Value: big.NewInt(1),
	})
	require.NoError(t, err)

	decoded := decodeSigned(t, backend.lastSent())
	assert.Equal(t, decoded.Hash().Hex(), resp.Hash)
	assert.Equal(t, w.Address().Hex(), resp.From)
	assert.Equal(t, other, resp.To)
	assert.Equal(t, uint64(7), uint64(resp.Nonce))
	assert.Equal(t, uint64(types.TxTypeDynamicFee), uint64(resp.Type))
	assert.Equal(t, int64(100), resp.MaxFeePerGas.ToInt().Int64())
	assert.Equal(t, uint8(ethtypes.DynamicFeeTxType), decoded.Type())
}

func TestWalletConnect(t *testing.T) {
	offline, err := NewWallet(testKey, nil)
	require.NoError(t, err)
	assert.Nil(t, offline.Backend())

	backend := newFakeBackend(t)
	online := offline.Connect(backend)
	assert.Equal(t, offline.Address(), online.Address())

	nonce, err := online.GetNonce(context.Background(), types.BlockPending)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)
}

func TestVoidSigner(t *testing.T) {
	backend := newFakeBackend(t)
	v := NewVoidSigner(other, backend)

	pop, err := v.PopulateTransaction(context.Background(), &types.TransactionRequest{To: types.Address(other)})
	require.NoError(t, err)
	assert.Equal(t, other, pop.From)

	_, err = v.SignTransaction(context.Background(), pop)
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOperation))

	_, err = v.SignMessage(context.Background(), []byte("hi"))
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOperation))

	_, err = v.SignTypedData(context.Background(), mail())
	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "signTypedData", e.Operation)

	_, err = v.SendTransaction(context.Background(), &types.TransactionRequest{To: types.Address(other)})
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOperation))
	assert.Empty(t, backend.lastSent())
}

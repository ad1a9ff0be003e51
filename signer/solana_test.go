package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/chainrpc/types"
)

var testBlockhash = solana.Hash{1, 2, 3, 4}

type fakeSolana struct {
	*fakeBackend
}

func newFakeSolana(t *testing.T) *fakeSolana {
	t.Helper()
	b := newFakeBackend(t)
	network, err := types.NetworkFrom(types.NamespaceSolana, "solana-devnet")
	require.NoError(t, err)
	b.ns = types.NamespaceSolana
	b.network = network
	b.gas = big.NewInt(5000)
	return &fakeSolana{fakeBackend: b}
}

func (f *fakeSolana) GetLatestBlockhash(context.Context) (*types.LatestBlockhash, error) {
	return &types.LatestBlockhash{Blockhash: testBlockhash.String(), LastValidBlockHeight: 100}, nil
}

func (f *fakeSolana) EstimateGas(ctx context.Context, tx *types.TransactionRequest) (*big.Int, error) {
	tx.Solana.Message.RecentBlockhash = testBlockhash
	return f.fakeBackend.EstimateGas(ctx, tx)
}

func transfer(t *testing.T, from solana.PublicKey) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, from, solana.NewWallet().PublicKey()).Build()},
		solana.Hash{},
		solana.TransactionPayer(from),
	)
	require.NoError(t, err)
	return tx
}

func decodeSolana(t *testing.T, signed string) *solana.Transaction {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(signed)
	require.NoError(t, err)
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	return tx
}

func TestNewSolanaWalletKeyFormats(t *testing.T) {
	kp := solana.NewWallet()
	w, err := NewSolanaWallet(kp.PrivateKey.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), w.PublicKey())

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	w, err = NewSolanaWallet(hex.EncodeToString(seed), nil)
	require.NoError(t, err)
	expected := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.Equal(t, []byte(expected), w.PublicKey().Bytes())

	_, err = NewSolanaWallet("not a key", nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestSolanaWalletSignTransaction(t *testing.T) {
	kp := solana.NewWallet()
	w, err := NewSolanaWallet(kp.PrivateKey.String(), nil)
	require.NoError(t, err)

	tx := transfer(t, w.PublicKey())
	signed, err := w.SignTransaction(context.Background(), &types.PreparedTransaction{Solana: tx})
	require.NoError(t, err)

	decoded := decodeSolana(t, signed)
	require.Len(t, decoded.Signatures, 1)
	message, err := decoded.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, decoded.Signatures[0].Verify(w.PublicKey(), message))
	assert.Empty(t, tx.Signatures, "the caller's transaction is left untouched")
}

func TestSolanaWalletCannotSignForOthers(t *testing.T) {
	w, err := NewSolanaWallet(solana.NewWallet().PrivateKey.String(), nil)
	require.NoError(t, err)

	tx := transfer(t, solana.NewWallet().PublicKey())
	_, err = w.SignTransaction(context.Background(), &types.PreparedTransaction{Solana: tx})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))

	_, err = w.SignTransaction(context.Background(), &types.PreparedTransaction{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestSolanaWalletSendTransaction(t *testing.T) {
	backend := newFakeSolana(t)
	w, err := NewSolanaWallet(solana.NewWallet().PrivateKey.String(), backend)
	require.NoError(t, err)

	tx := transfer(t, w.PublicKey())
	signature := "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	backend.hash = signature

	resp, err := w.SendTransaction(context.Background(), &types.TransactionRequest{Solana: tx})
	require.NoError(t, err)
	assert.Equal(t, signature, resp.Hash)
	assert.Equal(t, w.PublicKey().String(), resp.From)
	assert.Equal(t, int64(5000), resp.Gas.ToInt().Int64())

	broadcast := decodeSolana(t, backend.lastSent())
	assert.Equal(t, testBlockhash, broadcast.Message.RecentBlockhash)
	require.Len(t, broadcast.Signatures, 1)
}

func TestSolanaWalletPopulateWithGasLimit(t *testing.T) {
	backend := newFakeSolana(t)
	w, err := NewSolanaWallet(solana.NewWallet().PrivateKey.String(), backend)
	require.NoError(t, err)

	pop, err := w.PopulateTransaction(context.Background(), &types.TransactionRequest{
		Solana:   transfer(t, w.PublicKey()),
		GasLimit: big.NewInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, testBlockhash, pop.Solana.Message.RecentBlockhash)
	assert.Equal(t, int64(103), pop.ChainID.Int64())
	assert.Zero(t, backend.estimateCalls.Load())

	_, err = w.PopulateTransaction(context.Background(), &types.TransactionRequest{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestSolanaWalletSignMessage(t *testing.T) {
	w, err := NewSolanaWallet(solana.NewWallet().PrivateKey.String(), nil)
	require.NoError(t, err)

	sig, err := w.SignMessage(context.Background(), []byte("hello"))
	require.NoError(t, err)

	parsed, err := solana.SignatureFromBase58(sig)
	require.NoError(t, err)
	assert.True(t, parsed.Verify(w.PublicKey(), []byte("hello")))

	_, err = w.SignTypedData(context.Background(), mail())
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOperation))
}

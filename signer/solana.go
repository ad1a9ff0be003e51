package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/chainrpc/types"
)

// SolanaBackend is a Backend for the solana namespace.
type SolanaBackend interface {
	Backend
	GetLatestBlockhash(ctx context.Context) (*types.LatestBlockhash, error)
}

// SolanaWallet signs native Solana transactions with an ed25519 key.
type SolanaWallet struct {
	backend SolanaBackend
	key     solana.PrivateKey
}

// NewSolanaWallet accepts a base58 keypair or a hex encoded 32-byte seed.
func NewSolanaWallet(privateKey string, backend SolanaBackend) (*SolanaWallet, error) {
	key, err := parseSolanaKey(privateKey)
	if err != nil {
		return nil, types.InvalidArgument("invalid solana private key", "privateKey", "[REDACTED]")
	}
	return &SolanaWallet{backend: backend, key: key}, nil
}

func parseSolanaKey(s string) (solana.PrivateKey, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if seed, err := hex.DecodeString(trimmed); err == nil && len(seed) == ed25519.SeedSize {
		return solana.PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
	}
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d byte keypair, got %d", ed25519.PrivateKeySize, len(key))
	}
	return key, nil
}

func (w *SolanaWallet) GetAddress(context.Context) (string, error) {
	return w.PublicKey().String(), nil
}

func (w *SolanaWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *SolanaWallet) Connect(backend SolanaBackend) *SolanaWallet {
	return &SolanaWallet{backend: backend, key: w.key}
}

func (w *SolanaWallet) PopulateCall(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	if w.backend == nil {
		return nil, missingBackend("populateCall")
	}
	return populateAddresses(ctx, w.backend, w.PublicKey().String(), tx)
}

// PopulateTransaction stamps the latest blockhash on the native transaction
// and quotes its fee as the gas limit.
func (w *SolanaWallet) PopulateTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	pop, err := w.PopulateCall(ctx, tx)
	if err != nil {
		return nil, err
	}
	if pop.Solana == nil {
		return nil, types.InvalidArgument("solana transaction not found", "transaction", nil)
	}

	if pop.GasLimit == nil {
		// EstimateGas stamps the blockhash as a side effect
		if pop.GasLimit, err = w.backend.EstimateGas(ctx, request(pop)); err != nil {
			return nil, err
		}
	} else {
		latest, err := w.backend.GetLatestBlockhash(ctx)
		if err != nil {
			return nil, err
		}
		hash, err := solana.HashFromBase58(latest.Blockhash)
		if err != nil {
			return nil, &types.Error{Code: types.ErrBadData, Message: "invalid blockhash", Data: latest.Blockhash, Err: err}
		}
		pop.Solana.Message.RecentBlockhash = hash
	}

	if err := checkChainID(ctx, w.backend, pop); err != nil {
		return nil, err
	}
	return pop, nil
}

func (w *SolanaWallet) EstimateGas(ctx context.Context, tx *types.TransactionRequest) (*big.Int, error) {
	pop, err := w.PopulateCall(ctx, tx)
	if err != nil {
		return nil, err
	}
	return w.backend.EstimateGas(ctx, request(pop))
}

func (w *SolanaWallet) Call(ctx context.Context, tx *types.TransactionRequest) (hexutil.Bytes, error) {
	pop, err := w.PopulateCall(ctx, tx)
	if err != nil {
		return nil, err
	}
	return w.backend.Call(ctx, request(pop))
}

// SignTransaction signs the native transaction and returns it base64
// encoded, ready for sendTransaction.
func (w *SolanaWallet) SignTransaction(_ context.Context, tx *types.PreparedTransaction) (string, error) {
	if tx.Solana == nil {
		return "", types.InvalidArgument("solana transaction not found", "transaction", nil)
	}
	signed := *tx.Solana
	signed.Signatures = nil

	self := w.PublicKey()
	if _, err := signed.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(self) {
			return &w.key
		}
		return nil
	}); err != nil {
		return "", types.InvalidArgument("cannot sign solana transaction", "transaction", err.Error())
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode solana transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// SignMessage returns the base58 ed25519 signature of message.
func (w *SolanaWallet) SignMessage(_ context.Context, message []byte) (string, error) {
	sig, err := w.key.Sign(message)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return sig.String(), nil
}

func (w *SolanaWallet) SignTypedData(context.Context, apitypes.TypedData) (string, error) {
	return "", types.Unsupported("signTypedData", "solana does not support typed data signing")
}

func (w *SolanaWallet) SendTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.TransactionResponse, error) {
	if w.backend == nil {
		return nil, missingBackend("sendTransaction")
	}
	pop, err := w.PopulateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	signed, err := w.SignTransaction(ctx, pop)
	if err != nil {
		return nil, err
	}
	hash, err := w.backend.BroadcastTransaction(ctx, signed)
	if err != nil {
		return nil, err
	}
	return response(hash, pop), nil
}

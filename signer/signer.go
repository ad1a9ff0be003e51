// Package signer turns transaction intents into populated, signed payloads
// for each chain namespace.
package signer

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/sync/errgroup"

	"github.com/vitwit/chainrpc/types"
)

// Backend is the provider surface a signer needs. *provider.Provider and its
// namespace specialisations satisfy it.
type Backend interface {
	Namespace() types.ChainNamespace
	GetNetwork(ctx context.Context) (*types.Network, error)
	ResolveAddress(ctx context.Context, target types.Addressable) (string, error)
	ResolveName(ctx context.Context, name string) (string, error)
	GetTransactionCount(ctx context.Context, address types.Addressable, tag types.BlockTag) (uint64, error)
	GetFeeData(ctx context.Context) (*types.FeeData, error)
	EstimateGas(ctx context.Context, tx *types.TransactionRequest) (*big.Int, error)
	Call(ctx context.Context, tx *types.TransactionRequest) (hexutil.Bytes, error)
	BroadcastTransaction(ctx context.Context, signedTx string) (string, error)
}

// Signer is an account that can populate and sign transactions. Every Signer
// is Addressable, so it can stand in for an address in a request.
type Signer interface {
	types.Addressable

	// PopulateCall resolves the addresses of tx for call and estimateGas.
	PopulateCall(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error)
	// PopulateTransaction fills in everything needed to sign tx.
	PopulateTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error)

	EstimateGas(ctx context.Context, tx *types.TransactionRequest) (*big.Int, error)
	Call(ctx context.Context, tx *types.TransactionRequest) (hexutil.Bytes, error)

	SignTransaction(ctx context.Context, tx *types.PreparedTransaction) (string, error)
	SignMessage(ctx context.Context, message []byte) (string, error)
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error)

	SendTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.TransactionResponse, error)
}

var (
	_ Signer = (*Wallet)(nil)
	_ Signer = (*VoidSigner)(nil)
	_ Signer = (*JSONRPCSigner)(nil)
	_ Signer = (*SolanaWallet)(nil)
	_ Signer = (*TronWallet)(nil)
)

func missingBackend(operation string) error {
	return &types.Error{Code: types.ErrUnsupportedOperation, Message: "missing provider", Operation: operation}
}

// populateAddresses copies tx and resolves To and From concurrently. From
// must resolve to self; when absent it is set to self.
func populateAddresses(ctx context.Context, backend Backend, self string, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	if tx == nil {
		return nil, types.InvalidArgument("missing transaction", "transaction", nil)
	}
	pop := prepare(tx)
	pop.From = self

	g, gctx := errgroup.WithContext(ctx)
	if tx.To != nil {
		g.Go(func() error {
			to, err := backend.ResolveAddress(gctx, tx.To)
			pop.To = to
			return err
		})
	}
	if tx.From != nil {
		g.Go(func() error {
			from, err := backend.ResolveAddress(gctx, tx.From)
			if err != nil {
				return err
			}
			if !strings.EqualFold(from, self) {
				return types.InvalidArgument("transaction from mismatch", "tx.from", from)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pop, nil
}

// prepare copies the non-address fields of tx.
func prepare(tx *types.TransactionRequest) *types.PreparedTransaction {
	pop := &types.PreparedTransaction{
		Type:                 tx.Type,
		Nonce:                tx.Nonce,
		GasLimit:             tx.GasLimit,
		GasPrice:             tx.GasPrice,
		MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas,
		MaxFeePerGas:         tx.MaxFeePerGas,
		Data:                 tx.Data,
		Value:                tx.Value,
		ChainID:              tx.ChainID,
		AccessList:           tx.AccessList,
		BlockTag:             tx.BlockTag,
		Solana:               tx.Solana,
		Tron:                 tx.Tron,
	}
	return pop.Copy()
}

// request turns a prepared transaction back into a request so it can be
// handed to a Backend.
func request(pop *types.PreparedTransaction) *types.TransactionRequest {
	tx := &types.TransactionRequest{
		Type:                 pop.Type,
		Nonce:                pop.Nonce,
		GasLimit:             pop.GasLimit,
		GasPrice:             pop.GasPrice,
		MaxPriorityFeePerGas: pop.MaxPriorityFeePerGas,
		MaxFeePerGas:         pop.MaxFeePerGas,
		Data:                 pop.Data,
		Value:                pop.Value,
		ChainID:              pop.ChainID,
		AccessList:           pop.AccessList,
		BlockTag:             pop.BlockTag,
		Solana:               pop.Solana,
		Tron:                 pop.Tron,
	}
	if pop.To != "" {
		tx.To = types.Address(pop.To)
	}
	if pop.From != "" {
		tx.From = types.Address(pop.From)
	}
	return tx
}

// checkChainID fills in or verifies the chain id against the live network.
func checkChainID(ctx context.Context, backend Backend, pop *types.PreparedTransaction) error {
	network, err := backend.GetNetwork(ctx)
	if err != nil {
		return err
	}
	if pop.ChainID == nil {
		pop.ChainID = network.ChainID()
		return nil
	}
	if pop.ChainID.Cmp(network.ChainID()) != 0 {
		return types.InvalidArgument("transaction chainId mismatch", "tx.chainId", pop.ChainID.String())
	}
	return nil
}

// response describes a transaction this library just broadcast.
func response(hash string, pop *types.PreparedTransaction) *types.TransactionResponse {
	resp := &types.TransactionResponse{
		Hash:                 hash,
		From:                 pop.From,
		To:                   pop.To,
		Gas:                  (*hexutil.Big)(pop.GasLimit),
		GasPrice:             (*hexutil.Big)(pop.GasPrice),
		MaxFeePerGas:         (*hexutil.Big)(pop.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(pop.MaxPriorityFeePerGas),
		Value:                (*hexutil.Big)(pop.Value),
		ChainID:              (*hexutil.Big)(pop.ChainID),
		Input:                hexutil.Encode(pop.Data),
	}
	if pop.Type != nil {
		resp.Type = hexutil.Uint64(*pop.Type)
	}
	if pop.Nonce != nil {
		resp.Nonce = hexutil.Uint64(*pop.Nonce)
	}
	return resp
}

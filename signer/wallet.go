package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

// Wallet signs eip155 transactions with a local secp256k1 key.
type Wallet struct {
	evmSigner
	privateKey *ecdsa.PrivateKey
}

// NewWallet creates a wallet from a hex private key. backend may be nil for
// offline signing.
func NewWallet(privateKeyHex string, backend Backend) (*Wallet, error) {
	key, err := utils.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, types.InvalidArgument("invalid private key", "privateKey", "[REDACTED]")
	}
	return NewWalletFromKey(key, backend), nil
}

func NewWalletFromKey(key *ecdsa.PrivateKey, backend Backend) *Wallet {
	return &Wallet{
		evmSigner:  evmSigner{backend: backend, address: utils.AddressFromPrivateKey(key).Hex()},
		privateKey: key,
	}
}

// Connect returns a copy of w bound to backend.
func (w *Wallet) Connect(backend Backend) *Wallet {
	return NewWalletFromKey(w.privateKey, backend)
}

func (w *Wallet) Address() common.Address {
	return common.HexToAddress(w.address)
}

// SignTransaction serialises and signs tx. Nonce, gas limit and chain id must
// already be set; From, when present, must be this wallet.
func (w *Wallet) SignTransaction(_ context.Context, tx *types.PreparedTransaction) (string, error) {
	if tx.From != "" && !strings.EqualFold(tx.From, w.address) {
		return "", types.InvalidArgument("transaction from address mismatch", "tx.from", tx.From)
	}
	if tx.Nonce == nil {
		return "", types.InvalidArgument("missing nonce", "tx.nonce", nil)
	}
	if tx.GasLimit == nil {
		return "", types.InvalidArgument("missing gasLimit", "tx.gasLimit", nil)
	}
	if tx.ChainID == nil {
		return "", types.InvalidArgument("missing chainId", "tx.chainId", nil)
	}

	inner, err := txData(tx)
	if err != nil {
		return "", err
	}

	signed, err := ethtypes.SignTx(ethtypes.NewTx(inner), ethtypes.LatestSignerForChainID(tx.ChainID), w.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return hexutil.Encode(raw), nil
}

func txData(tx *types.PreparedTransaction) (ethtypes.TxData, error) {
	var to *common.Address
	if tx.To != "" {
		addr := common.HexToAddress(tx.To)
		to = &addr
	}
	value := orZero(tx.Value)
	gas := tx.GasLimit.Uint64()

	txType := types.TxTypeLegacy
	switch {
	case tx.Type != nil:
		txType = *tx.Type
	case tx.HasEIP1559Fields():
		txType = types.TxTypeDynamicFee
	}

	switch txType {
	case types.TxTypeLegacy:
		return &ethtypes.LegacyTx{
			Nonce:    *tx.Nonce,
			GasPrice: orZero(tx.GasPrice),
			Gas:      gas,
			To:       to,
			Value:    value,
			Data:     tx.Data,
		}, nil
	case types.TxTypeAccessList:
		return &ethtypes.AccessListTx{
			ChainID:    tx.ChainID,
			Nonce:      *tx.Nonce,
			GasPrice:   orZero(tx.GasPrice),
			Gas:        gas,
			To:         to,
			Value:      value,
			Data:       tx.Data,
			AccessList: tx.AccessList,
		}, nil
	case types.TxTypeDynamicFee:
		return &ethtypes.DynamicFeeTx{
			ChainID:    tx.ChainID,
			Nonce:      *tx.Nonce,
			GasTipCap:  orZero(tx.MaxPriorityFeePerGas),
			GasFeeCap:  orZero(tx.MaxFeePerGas),
			Gas:        gas,
			To:         to,
			Value:      value,
			Data:       tx.Data,
			AccessList: tx.AccessList,
		}, nil
	default:
		return nil, types.InvalidArgument("unsupported transaction type", "tx.type", txType)
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// SignMessage produces an EIP-191 personal signature.
func (w *Wallet) SignMessage(_ context.Context, message []byte) (string, error) {
	return utils.SignPersonalMessage(message, w.privateKey)
}

// SignTypedData produces an EIP-712 signature.
func (w *Wallet) SignTypedData(_ context.Context, typedData apitypes.TypedData) (string, error) {
	hash, err := utils.HashTypedData(typedData)
	if err != nil {
		return "", types.InvalidArgument("invalid typed data", "typedData", err.Error())
	}
	return utils.SignHash(hash, w.privateKey)
}

// SendTransaction populates, signs and broadcasts tx.
func (w *Wallet) SendTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.TransactionResponse, error) {
	if w.backend == nil {
		return nil, missingBackend("sendTransaction")
	}
	pop, err := w.PopulateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	signable := pop.Copy()
	signable.From = ""

	signed, err := w.SignTransaction(ctx, signable)
	if err != nil {
		return nil, err
	}
	hash, err := w.backend.BroadcastTransaction(ctx, signed)
	if err != nil {
		return nil, err
	}
	return response(hash, pop), nil
}

package signer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

const tronMessagePrefix = "\x19TRON Signed Message:\n"

// TronWallet signs node-built Tron transactions with a secp256k1 key.
type TronWallet struct {
	backend    Backend
	privateKey *ecdsa.PrivateKey
	address    string
}

func NewTronWallet(privateKeyHex string, backend Backend) (*TronWallet, error) {
	key, err := utils.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, types.InvalidArgument("invalid private key", "privateKey", "[REDACTED]")
	}
	evm := crypto.PubkeyToAddress(key.PublicKey)
	address, err := utils.TronToBase58(evm.Hex())
	if err != nil {
		return nil, err
	}
	return &TronWallet{backend: backend, privateKey: key, address: address}, nil
}

func (w *TronWallet) GetAddress(context.Context) (string, error) {
	return w.address, nil
}

func (w *TronWallet) Connect(backend Backend) *TronWallet {
	return &TronWallet{backend: backend, privateKey: w.privateKey, address: w.address}
}

func (w *TronWallet) PopulateCall(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	if w.backend == nil {
		return nil, missingBackend("populateCall")
	}
	return populateAddresses(ctx, w.backend, w.address, tx)
}

// PopulateTransaction resolves addresses, estimates energy and checks the
// chain id. Tron has no account nonce or fee market.
func (w *TronWallet) PopulateTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	pop, err := w.PopulateCall(ctx, tx)
	if err != nil {
		return nil, err
	}
	if pop.GasLimit == nil {
		if pop.GasLimit, err = w.backend.EstimateGas(ctx, request(pop)); err != nil {
			return nil, err
		}
	}
	if err := checkChainID(ctx, w.backend, pop); err != nil {
		return nil, err
	}
	return pop, nil
}

func (w *TronWallet) EstimateGas(ctx context.Context, tx *types.TransactionRequest) (*big.Int, error) {
	pop, err := w.PopulateCall(ctx, tx)
	if err != nil {
		return nil, err
	}
	return w.backend.EstimateGas(ctx, request(pop))
}

func (w *TronWallet) Call(ctx context.Context, tx *types.TransactionRequest) (hexutil.Bytes, error) {
	pop, err := w.PopulateCall(ctx, tx)
	if err != nil {
		return nil, err
	}
	return w.backend.Call(ctx, request(pop))
}

// SignTransaction signs the node-built transaction in tx.Tron and returns it
// as JSON with the signature appended.
func (w *TronWallet) SignTransaction(_ context.Context, tx *types.PreparedTransaction) (string, error) {
	if len(tx.Tron) == 0 {
		return "", types.InvalidArgument("tron transaction not found", "transaction", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(tx.Tron, &fields); err != nil {
		return "", types.InvalidArgument("invalid tron transaction", "transaction", string(tx.Tron))
	}
	var txID, rawDataHex string
	_ = json.Unmarshal(fields["txID"], &txID)
	_ = json.Unmarshal(fields["raw_data_hex"], &rawDataHex)

	id, err := hex.DecodeString(txID)
	if err != nil || len(id) != sha256.Size {
		return "", types.InvalidArgument("invalid tron transaction id", "txID", txID)
	}
	rawData, err := hex.DecodeString(rawDataHex)
	if err != nil {
		return "", types.InvalidArgument("invalid tron raw_data_hex", "raw_data_hex", rawDataHex)
	}
	if digest := sha256.Sum256(rawData); !bytes.Equal(digest[:], id) {
		return "", types.InvalidArgument("tron transaction id does not match raw_data_hex", "txID", txID)
	}

	sig, err := utils.SignHash(id, w.privateKey)
	if err != nil {
		return "", err
	}

	var signatures []string
	if raw, ok := fields["signature"]; ok {
		if err := json.Unmarshal(raw, &signatures); err != nil {
			return "", types.InvalidArgument("invalid tron signature list", "signature", string(raw))
		}
	}
	signatures = append(signatures, strings.TrimPrefix(sig, "0x"))
	if fields["signature"], err = json.Marshal(signatures); err != nil {
		return "", err
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SignMessage signs message with the TRON personal message prefix.
func (w *TronWallet) SignMessage(_ context.Context, message []byte) (string, error) {
	return utils.SignHash(HashTronMessage(message), w.privateKey)
}

// HashTronMessage is the TRON counterpart of the EIP-191 message digest.
func HashTronMessage(message []byte) []byte {
	return crypto.Keccak256([]byte(tronMessagePrefix+strconv.Itoa(len(message))), message)
}

// SignTypedData signs the EIP-712 digest, which TIP-712 shares.
func (w *TronWallet) SignTypedData(_ context.Context, typedData apitypes.TypedData) (string, error) {
	hash, err := utils.HashTypedData(typedData)
	if err != nil {
		return "", types.InvalidArgument("invalid typed data", "typedData", err.Error())
	}
	return utils.SignHash(hash, w.privateKey)
}

func (w *TronWallet) SendTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.TransactionResponse, error) {
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

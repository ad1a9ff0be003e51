package utils

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// HashMessage returns the EIP-191 personal message digest of message.
func HashMessage(message []byte) []byte {
	return accounts.TextHash(message)
}

// HashTypedData returns the EIP-712 digest of typedData.
func HashTypedData(typedData apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// RecoverAddressFromSignature recovers the signer of a 65-byte r||s||v
// signature over hash. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverAddressFromSignature(hash []byte, signature string) (common.Address, error) {
	sigBytes, err := hexutil.Decode(ensure0x(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}

	if len(sigBytes) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}

	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.SigToPub(hash, sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// PrivateKeyFromHex parses a hex private key, with or without 0x.
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

func AddressFromPrivateKey(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// SignHash signs hash and returns the signature with a 27/28 recovery id,
// the form wallets and nodes exchange.
func SignHash(hash []byte, privateKey *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign hash: %w", err)
	}
	signature[64] += 27

	return hexutil.Encode(signature), nil
}

func SignPersonalMessage(message []byte, privateKey *ecdsa.PrivateKey) (string, error) {
	return SignHash(HashMessage(message), privateKey)
}

func VerifyPersonalMessage(message []byte, signature string, expectedAddress common.Address) (bool, error) {
	recovered, err := RecoverAddressFromSignature(HashMessage(message), signature)
	if err != nil {
		return false, err
	}
	return recovered == expectedAddress, nil
}

// VerifyTypedDataSignature checks an EIP-712 signature against expectedSigner.
func VerifyTypedDataSignature(typedData apitypes.TypedData, signature string, expectedSigner common.Address) (bool, error) {
	hash, err := HashTypedData(typedData)
	if err != nil {
		return false, err
	}
	recovered, err := RecoverAddressFromSignature(hash, signature)
	if err != nil {
		return false, err
	}
	return recovered == expectedSigner, nil
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

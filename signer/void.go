package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/vitwit/chainrpc/types"
)

// VoidSigner knows an address but holds no key. It can populate, call and
// estimate on behalf of the address; every signing operation fails.
type VoidSigner struct {
	evmSigner
}

func NewVoidSigner(address string, backend Backend) *VoidSigner {
	return &VoidSigner{evmSigner{backend: backend, address: address}}
}

func (v *VoidSigner) Connect(backend Backend) *VoidSigner {
	return NewVoidSigner(v.address, backend)
}

func (v *VoidSigner) SignTransaction(context.Context, *types.PreparedTransaction) (string, error) {
	return "", types.Unsupported("signTransaction", "VoidSigner cannot sign transactions")
}

func (v *VoidSigner) SignMessage(context.Context, []byte) (string, error) {
	return "", types.Unsupported("signMessage", "VoidSigner cannot sign messages")
}

func (v *VoidSigner) SignTypedData(context.Context, apitypes.TypedData) (string, error) {
	return "", types.Unsupported("signTypedData", "VoidSigner cannot sign typed data")
}

func (v *VoidSigner) SendTransaction(context.Context, *types.TransactionRequest) (*types.TransactionResponse, error) {
	return nil, types.Unsupported("sendTransaction", "VoidSigner cannot sign transactions")
}

package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/vitwit/chainrpc/types"
)

// evmSigner is the population pipeline shared by every eip155 signer.
type evmSigner struct {
	backend Backend
	address string
}

func (s *evmSigner) GetAddress(context.Context) (string, error) {
	return s.address, nil
}

func (s *evmSigner) Backend() Backend {
	return s.backend
}

func (s *evmSigner) GetNonce(ctx context.Context, tag types.BlockTag) (uint64, error) {
	if s.backend == nil {
		return 0, missingBackend("getTransactionCount")
	}
	return s.backend.GetTransactionCount(ctx, types.Address(s.address), tag)
}

func (s *evmSigner) ResolveName(ctx context.Context, name string) (string, error) {
	if s.backend == nil {
		return "", missingBackend("resolveName")
	}
	return s.backend.ResolveName(ctx, name)
}

func (s *evmSigner) PopulateCall(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	if s.backend == nil {
		return nil, missingBackend("populateCall")
	}
	return populateAddresses(ctx, s.backend, s.address, tx)
}

func (s *evmSigner) EstimateGas(ctx context.Context, tx *types.TransactionRequest) (*big.Int, error) {
	pop, err := s.PopulateCall(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.backend.EstimateGas(ctx, request(pop))
}

func (s *evmSigner) Call(ctx context.Context, tx *types.TransactionRequest) (hexutil.Bytes, error) {
	pop, err := s.PopulateCall(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.backend.Call(ctx, request(pop))
}

// PopulateTransaction resolves addresses, then fetches the nonce, gas limit
// and chain id concurrently, and finally settles the fee model.
func (s *evmSigner) PopulateTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	if s.backend == nil {
		return nil, missingBackend("populateTransaction")
	}
	pop, err := populateAddresses(ctx, s.backend, s.address, tx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	if pop.Nonce == nil {
		g.Go(func() error {
			nonce, err := s.GetNonce(gctx, types.BlockPending)
			if err != nil {
				return err
			}
			pop.Nonce = &nonce
			return nil
		})
	}
	if pop.GasLimit == nil {
		estimate := request(pop)
		g.Go(func() error {
			gas, err := s.backend.EstimateGas(gctx, estimate)
			pop.GasLimit = gas
			return err
		})
	}
	var network *types.Network
	g.Go(func() error {
		var err error
		network, err = s.backend.GetNetwork(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if pop.ChainID == nil {
		pop.ChainID = network.ChainID()
	} else if pop.ChainID.Cmp(network.ChainID()) != 0 {
		return nil, types.InvalidArgument("transaction chainId mismatch", "tx.chainId", pop.ChainID.String())
	}

	if err := resolveFees(pop, func() (*types.FeeData, error) { return s.backend.GetFeeData(ctx) }); err != nil {
		return nil, err
	}
	return pop, nil
}

func typeIs(t *uint8, v uint8) bool {
	return t != nil && *t == v
}

func typed(v uint8) *uint8 {
	return &v
}

// resolveFees settles the fee model of pop. Legacy and EIP-1559 fields never
// mix; an unset type follows what the network supports. feeData is only
// called when the transaction is not already fully priced.
func resolveFees(pop *types.PreparedTransaction, feeData func() (*types.FeeData, error)) error {
	hasEIP1559 := pop.HasEIP1559Fields()
	legacy := typeIs(pop.Type, types.TxTypeLegacy) || typeIs(pop.Type, types.TxTypeAccessList)

	if pop.GasPrice != nil && (typeIs(pop.Type, types.TxTypeDynamicFee) || hasEIP1559) {
		return types.InvalidArgument("eip-1559 transaction do not support gasPrice", "tx", pop.GasPrice.String())
	}
	if legacy && hasEIP1559 {
		return types.InvalidArgument("pre-eip-1559 transaction do not support maxFeePerGas/maxPriorityFeePerGas", "tx", pop.Type)
	}

	if (pop.Type == nil || typeIs(pop.Type, types.TxTypeDynamicFee)) && pop.MaxFeePerGas != nil && pop.MaxPriorityFeePerGas != nil {
		pop.Type = typed(types.TxTypeDynamicFee)
		return nil
	}

	fees, err := feeData()
	if err != nil {
		return err
	}

	switch {
	case legacy:
		if fees.GasPrice == nil {
			return &types.Error{Code: types.ErrUnsupportedOperation, Message: "network does not support gasPrice", Operation: "getGasPrice"}
		}
		if pop.GasPrice == nil {
			pop.GasPrice = fees.GasPrice
		}

	case pop.Type == nil:
		switch {
		case fees.SupportsEIP1559():
			pop.Type = typed(types.TxTypeDynamicFee)
			if pop.GasPrice != nil {
				pop.MaxFeePerGas = new(big.Int).Set(pop.GasPrice)
				pop.MaxPriorityFeePerGas = new(big.Int).Set(pop.GasPrice)
				pop.GasPrice = nil
				break
			}
			if pop.MaxFeePerGas == nil {
				pop.MaxFeePerGas = fees.MaxFeePerGas
			}
			if pop.MaxPriorityFeePerGas == nil {
				pop.MaxPriorityFeePerGas = fees.MaxPriorityFeePerGas
			}

		case fees.GasPrice != nil:
			if hasEIP1559 {
				return &types.Error{
					Code:    types.ErrInvalidArgument,
					Message: "network does not support EIP-1559",
					Data:    map[string]any{"operation": "populateTransaction"},
				}
			}
			if pop.GasPrice == nil {
				pop.GasPrice = fees.GasPrice
			}
			pop.Type = typed(types.TxTypeLegacy)

		default:
			return &types.Error{Code: types.ErrUnsupportedOperation, Message: "failed to get consistent fee data", Operation: "signer.getFeeData"}
		}

	case typeIs(pop.Type, types.TxTypeDynamicFee):
		if pop.MaxFeePerGas == nil {
			pop.MaxFeePerGas = fees.MaxFeePerGas
		}
		if pop.MaxPriorityFeePerGas == nil {
			pop.MaxPriorityFeePerGas = fees.MaxPriorityFeePerGas
		}

	default:
		return types.InvalidArgument("unsupported transaction type", "tx.type", *pop.Type)
	}
	return nil
}

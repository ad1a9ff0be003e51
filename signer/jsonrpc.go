package signer

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/sync/errgroup"

	"github.com/vitwit/chainrpc/clients"
	"github.com/vitwit/chainrpc/types"
)

// RPCBackend is a Backend that can also pass raw requests to a node which
// manages the signer's key.
type RPCBackend interface {
	Backend
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
	GetTransaction(ctx context.Context, hash string) (*types.TransactionResponse, error)
	Adapter() clients.ChainAdapter
}

// maxInvalidPolls bounds how many INVALID_ARGUMENT answers are tolerated
// while waiting for a sent transaction to show up.
const maxInvalidPolls = 10

// JSONRPCSigner delegates signing to an account held by the node
// (eth_sendTransaction, personal_sign and friends).
type JSONRPCSigner struct {
	evmSigner
	rpc RPCBackend
}

func NewJSONRPCSigner(backend RPCBackend, address string) *JSONRPCSigner {
	return &JSONRPCSigner{
		evmSigner: evmSigner{backend: backend, address: address},
		rpc:       backend,
	}
}

// PopulateTransaction only resolves addresses. The node fills in the rest
// when it signs.
func (s *JSONRPCSigner) PopulateTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	return s.PopulateCall(ctx, tx)
}

// SendUncheckedTransaction submits tx with eth_sendTransaction and returns
// the hash without waiting for the node to index it.
func (s *JSONRPCSigner) SendUncheckedTransaction(ctx context.Context, tx *types.TransactionRequest) (string, error) {
	if tx == nil {
		return "", types.InvalidArgument("missing transaction", "transaction", nil)
	}

	var (
		pop *types.PreparedTransaction
		gas *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pop, err = populateAddresses(gctx, s.backend, s.address, tx)
		return err
	})
	if tx.GasLimit == nil {
		estimate := *tx
		estimate.From = types.Address(s.address)
		g.Go(func() error {
			var err error
			gas, err = s.backend.EstimateGas(gctx, &estimate)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	if gas != nil {
		pop.GasLimit = gas
	}

	wire, err := s.rpc.Adapter().NormalizeTransaction(pop)
	if err != nil {
		return "", err
	}
	raw, err := s.rpc.Send(ctx, "eth_sendTransaction", []any{wire})
	if err != nil {
		return "", err
	}
	return decodeString(raw)
}

// SendTransaction sends tx and waits until the node reports it, polling
// until ctx is done.
func (s *JSONRPCSigner) SendTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.TransactionResponse, error) {
	hash, err := s.SendUncheckedTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.waitForTransaction(ctx, hash, newObserveBackOff())
}

func (s *JSONRPCSigner) waitForTransaction(ctx context.Context, hash string, b backoff.BackOff) (*types.TransactionResponse, error) {
	invalid := 0
	for {
		resp, err := s.rpc.GetTransaction(ctx, hash)
		switch {
		case err == nil && resp != nil:
			return resp, nil
		case err == nil:
		case types.IsErrorCode(err, types.ErrBadData),
			types.IsErrorCode(err, types.ErrNetwork),
			types.IsErrorCode(err, types.ErrUnsupportedOperation),
			types.IsErrorCode(err, types.ErrTimeout):
			return nil, withSentHash(err, hash)
		case types.IsErrorCode(err, types.ErrInvalidArgument):
			invalid++
			if invalid > maxInvalidPolls {
				return nil, withSentHash(err, hash)
			}
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &types.Error{
				Code:      types.ErrTimeout,
				Message:   "gave up waiting for transaction",
				Operation: "sendTransaction",
				Data:      map[string]any{"hash": hash},
				Err:       ctx.Err(),
			}
		case <-timer.C:
		}
	}
}

func withSentHash(err error, hash string) error {
	if e, ok := err.(*types.Error); ok {
		c := *e
		c.Data = map[string]any{"sendTransactionHash": hash, "data": e.Data}
		return &c
	}
	return err
}

// observeBackOff waits 1s, then 100ms, then 4s forever.
type observeBackOff struct {
	step int
}

var observeSchedule = []time.Duration{time.Second, 100 * time.Millisecond}

const observeSteadyInterval = 4 * time.Second

func newObserveBackOff() *observeBackOff {
	return &observeBackOff{}
}

func (b *observeBackOff) NextBackOff() time.Duration {
	if b.step < len(observeSchedule) {
		d := observeSchedule[b.step]
		b.step++
		return d
	}
	return observeSteadyInterval
}

func (b *observeBackOff) Reset() {
	b.step = 0
}

// SignTransaction asks the node to sign tx without sending it.
func (s *JSONRPCSigner) SignTransaction(ctx context.Context, tx *types.PreparedTransaction) (string, error) {
	pop := tx.Copy()
	if pop.From == "" {
		pop.From = s.address
	} else {
		from, err := s.backend.ResolveAddress(ctx, types.Address(pop.From))
		if err != nil {
			return "", err
		}
		if !strings.EqualFold(from, s.address) {
			return "", types.InvalidArgument("from address mismatch", "transaction", pop.From)
		}
		pop.From = from
	}

	wire, err := s.rpc.Adapter().NormalizeTransaction(pop)
	if err != nil {
		return "", err
	}
	raw, err := s.rpc.Send(ctx, "eth_signTransaction", []any{wire})
	if err != nil {
		return "", err
	}

	// some nodes answer with {raw, tx}
	var signed struct {
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(raw, &signed); err == nil && signed.Raw != "" {
		return signed.Raw, nil
	}
	return decodeString(raw)
}

func (s *JSONRPCSigner) SignMessage(ctx context.Context, message []byte) (string, error) {
	raw, err := s.rpc.Send(ctx, "personal_sign", []any{hexutil.Encode(message), strings.ToLower(s.address)})
	if err != nil {
		return "", err
	}
	return decodeString(raw)
}

// SignLegacyMessage signs with eth_sign, which some older nodes require.
func (s *JSONRPCSigner) SignLegacyMessage(ctx context.Context, message []byte) (string, error) {
	raw, err := s.rpc.Send(ctx, "eth_sign", []any{strings.ToLower(s.address), hexutil.Encode(message)})
	if err != nil {
		return "", err
	}
	return decodeString(raw)
}

func (s *JSONRPCSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error) {
	payload, err := json.Marshal(typedData)
	if err != nil {
		return "", types.InvalidArgument("invalid typed data", "typedData", err.Error())
	}
	raw, err := s.rpc.Send(ctx, "eth_signTypedData_v4", []any{strings.ToLower(s.address), string(payload)})
	if err != nil {
		return "", err
	}
	return decodeString(raw)
}

// Unlock unlocks the account on the node for its default duration.
func (s *JSONRPCSigner) Unlock(ctx context.Context, password string) (bool, error) {
	raw, err := s.rpc.Send(ctx, "personal_unlockAccount", []any{strings.ToLower(s.address), password, nil})
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, &types.Error{Code: types.ErrBadData, Message: "invalid unlock response", Data: string(raw), Err: err}
	}
	return ok, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &types.Error{Code: types.ErrBadData, Message: "invalid string response", Data: string(raw), Err: err}
	}
	return s, nil
}

package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/chainrpc/signer"
	"github.com/vitwit/chainrpc/transport"
	"github.com/vitwit/chainrpc/types"
)

// SolanaProvider serves the solana namespace. Its network is always static
// since Solana has no chain id call.
type SolanaProvider struct {
	*Provider
}

var _ signer.SolanaBackend = (*SolanaProvider)(nil)

func NewSolana(tr transport.Transport, network any, opts ...Option) (*SolanaProvider, error) {
	if network == nil {
		return nil, types.InvalidArgument("solana provider requires a network", "network", nil)
	}
	static, err := types.NetworkFrom(types.NamespaceSolana, network)
	if err != nil {
		return nil, err
	}

	opts = append(opts, WithStaticNetwork(static))
	p, err := newProvider(tr, types.NamespaceSolana, static, types.DefaultRegistry(), opts)
	if err != nil {
		return nil, err
	}
	sp := &SolanaProvider{Provider: p}
	p.receiptFn = sp.GetTransactionReceipt
	return sp, nil
}

// contextValue unwraps the {context, value} envelope most Solana methods use.
func contextValue[T any](raw json.RawMessage) (T, error) {
	var resp struct {
		Value T `json:"value"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp.Value, &types.Error{Code: types.ErrBadData, Message: "invalid solana response", Data: string(raw), Err: err}
	}
	return resp.Value, nil
}

func (s *SolanaProvider) GetLatestBlockhash(ctx context.Context) (*types.LatestBlockhash, error) {
	raw, err := s.Perform(ctx, types.LatestBlockhashAction{})
	if err != nil {
		return nil, err
	}
	value, err := contextValue[*types.LatestBlockhash](raw)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, types.NewError(types.ErrBadData, "missing blockhash")
	}
	return value, nil
}

func (s *SolanaProvider) GetBalance(ctx context.Context, address types.Addressable, _ types.BlockTag) (*big.Int, error) {
	addr, err := s.ResolveAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	raw, err := s.Perform(ctx, types.BalanceAction{Address: addr})
	if err != nil {
		return nil, err
	}
	lamports, err := contextValue[uint64](raw)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(lamports), nil
}

// GetFeeData reports a unit gas price; Solana fees are quoted per message.
func (s *SolanaProvider) GetFeeData(context.Context) (*types.FeeData, error) {
	return &types.FeeData{GasPrice: big.NewInt(1)}, nil
}

// EstimateGas stamps the latest blockhash on the native transaction and asks
// for the fee of its message, in lamports.
func (s *SolanaProvider) EstimateGas(ctx context.Context, tx *types.TransactionRequest) (*big.Int, error) {
	if tx == nil || tx.Solana == nil {
		return nil, types.InvalidArgument("solana transaction not found", "transaction", nil)
	}

	latest, err := s.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := solana.HashFromBase58(latest.Blockhash)
	if err != nil {
		return nil, &types.Error{Code: types.ErrBadData, Message: "invalid blockhash", Data: latest.Blockhash, Err: err}
	}
	tx.Solana.Message.RecentBlockhash = hash

	raw, err := s.Perform(ctx, types.EstimateGasAction{Transaction: &types.PreparedTransaction{Solana: tx.Solana}})
	if err != nil {
		return nil, err
	}
	fee, err := contextValue[*uint64](raw)
	if err != nil {
		return nil, err
	}
	if fee == nil {
		return nil, types.NewError(types.ErrBadData, "fee unavailable for message")
	}
	return new(big.Int).SetUint64(*fee), nil
}

type simulation struct {
	Err        any      `json:"err"`
	Logs       []string `json:"logs"`
	ReturnData *struct {
		ProgramID string   `json:"programId"`
		Data      []string `json:"data"`
	} `json:"returnData"`
}

// Call simulates the native transaction and returns the program's return
// data. A failed simulation is a CALL_EXCEPTION carrying the logs.
func (s *SolanaProvider) Call(ctx context.Context, tx *types.TransactionRequest) (hexutil.Bytes, error) {
	if tx == nil || tx.Solana == nil {
		return nil, types.InvalidArgument("solana transaction not found", "transaction", nil)
	}

	raw, err := s.Perform(ctx, types.CallAction{Transaction: &types.PreparedTransaction{Solana: tx.Solana}})
	if err != nil {
		return nil, err
	}
	sim, err := contextValue[simulation](raw)
	if err != nil {
		return nil, err
	}
	if sim.Err != nil {
		return nil, &types.Error{
			Code:    types.ErrCallException,
			Message: "transaction simulation failed",
			Action:  "call",
			Data:    sim.Logs,
		}
	}
	if sim.ReturnData == nil || len(sim.ReturnData.Data) == 0 {
		return hexutil.Bytes{}, nil
	}
	out, err := base64.StdEncoding.DecodeString(sim.ReturnData.Data[0])
	if err != nil {
		return nil, &types.Error{Code: types.ErrBadData, Message: "invalid return data", Err: err}
	}
	return out, nil
}

// BroadcastTransaction submits a base64 signed transaction and checks the
// returned signature against the transaction's own.
func (s *SolanaProvider) BroadcastTransaction(ctx context.Context, signedTx string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(signedTx)
	if err != nil {
		return "", types.InvalidArgument("signed transaction must be base64", "signedTx", signedTx)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(payload))
	if err != nil {
		return "", types.InvalidArgument("invalid solana transaction", "signedTx", signedTx)
	}
	if len(tx.Signatures) == 0 {
		return "", types.InvalidArgument("transaction is not signed", "signedTx", signedTx)
	}

	raw, err := s.Perform(ctx, types.BroadcastAction{SignedTransaction: signedTx})
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", &types.Error{Code: types.ErrBadData, Message: "invalid signature", Data: string(raw), Err: err}
	}

	if expected := tx.Signatures[0].String(); expected != hash {
		return "", &types.Error{
			Code:    types.ErrBadData,
			Message: "the returned hash did not match",
			Data:    map[string]any{"expected": expected, "actual": hash},
		}
	}
	return hash, nil
}

type solanaBlock struct {
	Blockhash         string          `json:"blockhash"`
	PreviousBlockhash string          `json:"previousBlockhash"`
	BlockHeight       *uint64         `json:"blockHeight"`
	BlockTime         *int64          `json:"blockTime"`
	Transactions      json.RawMessage `json:"transactions"`
	Signatures        json.RawMessage `json:"signatures"`
}

// GetBlock fetches the block at a slot. Solana blocks carry no gas fields.
func (s *SolanaProvider) GetBlock(ctx context.Context, slot types.BlockTag, includeTransactions bool) (*types.Block, error) {
	raw, err := s.Perform(ctx, types.BlockAction{BlockTag: slot, IncludeTransactions: includeTransactions})
	if err != nil {
		return nil, err
	}
	b, err := decodeNullable[solanaBlock](raw)
	if err != nil || b == nil {
		return nil, err
	}

	block := &types.Block{
		Hash:         b.Blockhash,
		ParentHash:   b.PreviousBlockhash,
		Transactions: b.Transactions,
	}
	if !includeTransactions {
		block.Transactions = b.Signatures
	}
	if b.BlockHeight != nil {
		block.Number = (*hexutil.Big)(new(big.Int).SetUint64(*b.BlockHeight))
	}
	if b.BlockTime != nil && *b.BlockTime > 0 {
		block.Timestamp = hexutil.Uint64(*b.BlockTime)
	}
	return block, nil
}

type signatureStatus struct {
	Slot               uint64 `json:"slot"`
	Err                any    `json:"err"`
	ConfirmationStatus string `json:"confirmationStatus"`
}

// GetTransaction reports a signature the cluster knows about, or nil.
func (s *SolanaProvider) GetTransaction(ctx context.Context, hash string) (*types.TransactionResponse, error) {
	raw, err := s.Perform(ctx, types.TransactionAction{Hash: hash})
	if err != nil {
		return nil, err
	}
	statuses, err := contextValue[[]*signatureStatus](raw)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return nil, nil
	}
	return &types.TransactionResponse{
		Hash:        hash,
		BlockNumber: (*hexutil.Big)(new(big.Int).SetUint64(statuses[0].Slot)),
	}, nil
}

type solanaTransaction struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Fee uint64 `json:"fee"`
		Err any    `json:"err"`
	} `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			RecentBlockhash string `json:"recentBlockhash"`
		} `json:"message"`
	} `json:"transaction"`
}

// GetTransactionReceipt maps a confirmed transaction onto a receipt: the fee
// becomes gasUsed and a nil meta.err means success.
func (s *SolanaProvider) GetTransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	raw, err := s.Perform(ctx, types.ReceiptAction{Hash: hash})
	if err != nil {
		return nil, err
	}
	tx, err := decodeNullable[solanaTransaction](raw)
	if err != nil || tx == nil {
		return nil, err
	}

	receipt := &types.Receipt{
		TransactionHash: hash,
		BlockHash:       tx.Transaction.Message.RecentBlockhash,
		BlockNumber:     hexutil.Uint64(tx.Slot),
		Logs:            []types.Log{},
	}
	if len(tx.Transaction.Signatures) > 0 {
		receipt.TransactionHash = tx.Transaction.Signatures[0]
	}
	if tx.Meta != nil {
		receipt.GasUsed = (*hexutil.Big)(new(big.Int).SetUint64(tx.Meta.Fee))
		if tx.Meta.Err == nil {
			receipt.Status = 1
		}
	}
	return receipt, nil
}

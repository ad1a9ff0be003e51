// Package provider talks to one node on behalf of one network. It batches
// requests through a Dispatcher, maps actions through the namespace's chain
// adapter and manages event subscriptions.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/patrickmn/go-cache"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vitwit/chainrpc/clients"
	"github.com/vitwit/chainrpc/signer"
	"github.com/vitwit/chainrpc/transport"
	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

var oneGwei = big.NewInt(1_000_000_000)

// cacheable actions carry no arguments and change at most once per block.
var cacheable = map[types.ActionKind]bool{
	types.ActionChainID:        true,
	types.ActionGetBlockNumber: true,
	types.ActionGetGasPrice:    true,
	types.ActionGetPriorityFee: true,
}

var _ signer.RPCBackend = (*Provider)(nil)

type Provider struct {
	d        *Dispatcher
	adapter  clients.ChainAdapter
	opts     Options
	registry *types.Registry

	// expected is the network given at construction, if any.
	expected *types.Network

	results *cache.Cache
	group   singleflight.Group

	// receiptFn lets a namespace decode receipts its own way; subscribers
	// call it instead of GetTransactionReceipt.
	receiptFn func(ctx context.Context, hash string) (*types.Receipt, error)

	mu              sync.Mutex
	subs            map[string]*subscription
	nextListener    atomic.Uint64
	paused          *bool
	polling         bool
	pollingInterval atomic.Duration
}

// New builds a provider for namespace ns over tr. network may be nil (detect
// from the node), a registered name, a chain id, a *types.Network or a
// NetworkDescriptor.
func New(tr transport.Transport, ns types.ChainNamespace, network any, opts ...Option) (*Provider, error) {
	return newProvider(tr, ns, network, types.DefaultRegistry(), opts)
}

func NewEVM(tr transport.Transport, network any, opts ...Option) (*Provider, error) {
	return New(tr, types.NamespaceEIP155, network, opts...)
}

func newProvider(tr transport.Transport, ns types.ChainNamespace, network any, registry *types.Registry, opts []Option) (*Provider, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	adapter, err := clients.NewAdapter(ns)
	if err != nil {
		return nil, err
	}

	var expected *types.Network
	if network != nil {
		if expected, err = registry.From(ns, network); err != nil {
			return nil, err
		}
	}

	if static := o.StaticNetwork; static != nil {
		if static.Namespace() != ns {
			return nil, types.InvalidArgument("staticNetwork belongs to another namespace", "staticNetwork", static.Name())
		}
		if expected != nil && !sameNetwork(static, network, expected) {
			return nil, types.InvalidArgument("staticNetwork MUST match network object", "options", map[string]any{
				"staticNetwork": static.String(),
				"network":       expected.String(),
			})
		}
		o.StaticNetwork = static.Clone()
		expected = o.StaticNetwork
	}

	p := &Provider{
		adapter:  adapter,
		opts:     o,
		registry: registry,
		expected: expected,
		subs:     make(map[string]*subscription),
		polling:  o.Polling,
	}
	p.pollingInterval.Store(o.PollingInterval)
	if o.CacheTimeout > 0 {
		p.results = cache.New(o.CacheTimeout, 4*o.CacheTimeout)
	}

	p.d = newDispatcher(tr, adapter, p.detectNetwork, o)
	p.d.onDebug = p.emitDebug
	return p, nil
}

// sameNetwork reports whether the network argument names exactly the
// pinned static network. A *types.Network argument must be the static
// network itself; names and chain ids must resolve to an equal network.
func sameNetwork(static *types.Network, arg any, resolved *types.Network) bool {
	if n, ok := arg.(*types.Network); ok {
		return n == static
	}
	return static.Name() == resolved.Name() && static.Matches(resolved)
}

func (p *Provider) Namespace() types.ChainNamespace {
	return p.adapter.Namespace()
}

func (p *Provider) Adapter() clients.ChainAdapter {
	return p.adapter
}

func (p *Provider) Options() Options {
	return p.opts
}

// Start begins network detection. Every request path calls it.
func (p *Provider) Start() {
	p.d.Start()
}

// Ready is closed once the network is known.
func (p *Provider) Ready() <-chan struct{} {
	return p.d.Ready()
}

func (p *Provider) detectNetwork(ctx context.Context) (*types.Network, error) {
	chainID, err := p.queryChainID(ctx, true)
	if err != nil {
		return nil, err
	}
	if p.expected != nil && p.expected.ChainID().Cmp(chainID) == 0 {
		return p.expected.Clone(), nil
	}
	return p.registry.From(p.Namespace(), chainID)
}

// queryChainID asks the node for its chain id. direct bypasses the queue,
// which bootstrap needs because the queue only drains once ready.
func (p *Provider) queryChainID(ctx context.Context, direct bool) (*big.Int, error) {
	var (
		raw json.RawMessage
		err error
	)
	if direct {
		req, mapErr := p.adapter.MapRequest(types.ChainIDAction{})
		if mapErr != nil {
			return nil, mapErr
		}
		raw, err = p.d.Call(ctx, req.Method, req.Args)
	} else {
		raw, err = p.perform(ctx, types.ChainIDAction{})
	}
	if err != nil {
		return nil, err
	}
	return utils.ParseQuantity(raw)
}

// GetNetwork returns the provider's network. Unless the network is static,
// the node's chain id is checked against it on every call and a change is a
// NETWORK_ERROR.
func (p *Provider) GetNetwork(ctx context.Context) (*types.Network, error) {
	p.Start()
	network, err := p.d.WaitReady(ctx)
	if err != nil {
		return nil, err
	}
	if p.opts.StaticNetwork != nil {
		return network.Clone(), nil
	}

	expected := p.expected
	if expected == nil {
		expected = network
	}

	actual, err := p.queryChainID(ctx, false)
	if err != nil {
		return nil, err
	}
	if expected.ChainID().Cmp(actual) != 0 {
		return nil, &types.Error{
			Code:      types.ErrNetwork,
			Message:   "network changed",
			Operation: "getNetwork",
			Data: map[string]any{
				"expected": expected.ChainID().String(),
				"actual":   actual.String(),
			},
		}
	}
	return expected.Clone(), nil
}

// Send issues a raw JSON-RPC request through the batching queue.
func (p *Provider) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	p.Start()
	return p.d.Send(ctx, method, params)
}

// Perform maps action through the chain adapter and sends it. Every action
// but chainId first confirms the network has not changed.
func (p *Provider) Perform(ctx context.Context, action types.Action) (json.RawMessage, error) {
	if action.Kind() != types.ActionChainID {
		if _, err := p.GetNetwork(ctx); err != nil {
			return nil, err
		}
	}
	return p.perform(ctx, action)
}

func (p *Provider) perform(ctx context.Context, action types.Action) (json.RawMessage, error) {
	action, err := p.stripLegacyType(ctx, action)
	if err != nil {
		return nil, err
	}

	req, err := p.adapter.MapRequest(action)
	if err != nil {
		return nil, err
	}

	kind := action.Kind()
	if kind == types.ActionBroadcastTransaction {
		return p.Send(ctx, req.Method, req.Args)
	}

	if p.results != nil && cacheable[kind] {
		if v, ok := p.results.Get(string(kind)); ok {
			return v.(json.RawMessage), nil
		}
	}

	key, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request key: %w", err)
	}

	ch := p.group.DoChan(string(key), func() (any, error) {
		// shared by every caller, so no single caller's ctx may cancel it
		raw, err := p.Send(context.Background(), req.Method, req.Args)
		if err != nil {
			return nil, err
		}
		if p.results != nil && cacheable[kind] {
			p.results.SetDefault(string(kind), raw)
		}
		return raw, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, &types.Error{Code: types.ErrTimeout, Message: "request cancelled", Operation: string(kind), Err: ctx.Err()}
	}
}

// stripLegacyType drops an explicit nonzero type from call and estimateGas
// when nothing else in the transaction or the network speaks EIP-1559, as
// pre-London nodes reject the field.
func (p *Provider) stripLegacyType(ctx context.Context, action types.Action) (types.Action, error) {
	var tx *types.PreparedTransaction
	switch a := action.(type) {
	case types.CallAction:
		tx = a.Transaction
	case types.EstimateGasAction:
		tx = a.Transaction
	default:
		return action, nil
	}

	if tx == nil || tx.Type == nil || *tx.Type == 0 || tx.HasEIP1559Fields() {
		return action, nil
	}

	feeData, err := p.GetFeeData(ctx)
	if err != nil {
		return nil, err
	}
	if feeData.MaxFeePerGas != nil || feeData.MaxPriorityFeePerGas != nil {
		return action, nil
	}

	stripped := tx.Copy()
	stripped.Type = nil
	switch a := action.(type) {
	case types.CallAction:
		a.Transaction = stripped
		return a, nil
	case types.EstimateGasAction:
		a.Transaction = stripped
		return a, nil
	}
	return action, nil
}

func (p *Provider) GetBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := p.Perform(ctx, types.BlockNumberAction{})
	if err != nil {
		return 0, err
	}
	return utils.ParseUint64(raw)
}

func (p *Provider) GetGasPrice(ctx context.Context) (*big.Int, error) {
	raw, err := p.Perform(ctx, types.GasPriceAction{})
	if err != nil {
		return nil, err
	}
	return utils.ParseQuantity(raw)
}

// GetFeeData combines the legacy gas price with the latest base fee. The
// priority fee comes from eth_maxPriorityFeePerGas, falling back to 1 gwei
// when the node has no opinion, and maxFee is twice the base fee plus it.
func (p *Provider) GetFeeData(ctx context.Context) (*types.FeeData, error) {
	var (
		block       *types.Block
		gasPrice    *big.Int
		priorityFee *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		block, err = p.GetBlock(gctx, types.BlockLatest, false)
		return err
	})
	g.Go(func() error {
		// a node without a legacy gas price is not an error here
		if raw, err := p.Perform(gctx, types.GasPriceAction{}); err == nil {
			gasPrice, _ = utils.ParseQuantity(raw)
		}
		return nil
	})
	g.Go(func() error {
		if raw, err := p.Perform(gctx, types.PriorityFeeAction{}); err == nil {
			priorityFee, _ = utils.ParseQuantity(raw)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fees := &types.FeeData{GasPrice: gasPrice}
	if block != nil && block.BaseFeePerGas != nil {
		if priorityFee == nil {
			priorityFee = new(big.Int).Set(oneGwei)
		}
		base := block.BaseFeePerGas.ToInt()
		fees.MaxPriorityFeePerGas = priorityFee
		fees.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(base, big.NewInt(2)), priorityFee)
	}
	return fees, nil
}

// ResolveAddress turns an address-like value into a canonical address for
// this provider's namespace.
func (p *Provider) ResolveAddress(ctx context.Context, target types.Addressable) (string, error) {
	return utils.ResolveAddress(ctx, target, p.Namespace(), p)
}

func (p *Provider) GetBalance(ctx context.Context, address types.Addressable, tag types.BlockTag) (*big.Int, error) {
	addr, err := p.ResolveAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	raw, err := p.Perform(ctx, types.BalanceAction{Address: addr, BlockTag: tag})
	if err != nil {
		return nil, err
	}
	return utils.ParseQuantity(raw)
}

func (p *Provider) GetTransactionCount(ctx context.Context, address types.Addressable, tag types.BlockTag) (uint64, error) {
	addr, err := p.ResolveAddress(ctx, address)
	if err != nil {
		return 0, err
	}
	raw, err := p.Perform(ctx, types.TransactionCountAction{Address: addr, BlockTag: tag})
	if err != nil {
		return 0, err
	}
	return utils.ParseUint64(raw)
}

func (p *Provider) GetCode(ctx context.Context, address types.Addressable, tag types.BlockTag) (hexutil.Bytes, error) {
	addr, err := p.ResolveAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	raw, err := p.Perform(ctx, types.CodeAction{Address: addr, BlockTag: tag})
	if err != nil {
		return nil, err
	}
	return decodeBytes(raw)
}

func (p *Provider) GetStorage(ctx context.Context, address types.Addressable, position *big.Int, tag types.BlockTag) (hexutil.Bytes, error) {
	addr, err := p.ResolveAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	raw, err := p.Perform(ctx, types.StorageAction{Address: addr, Position: position, BlockTag: tag})
	if err != nil {
		return nil, err
	}
	return decodeBytes(raw)
}

// GetBlock returns the block at tag, or nil when the node does not have it.
func (p *Provider) GetBlock(ctx context.Context, tag types.BlockTag, includeTransactions bool) (*types.Block, error) {
	raw, err := p.Perform(ctx, types.BlockAction{BlockTag: tag, IncludeTransactions: includeTransactions})
	if err != nil {
		return nil, err
	}
	return decodeNullable[types.Block](raw)
}

func (p *Provider) GetBlockByHash(ctx context.Context, hash string, includeTransactions bool) (*types.Block, error) {
	raw, err := p.Perform(ctx, types.BlockAction{BlockHash: hash, IncludeTransactions: includeTransactions})
	if err != nil {
		return nil, err
	}
	return decodeNullable[types.Block](raw)
}

func (p *Provider) GetTransaction(ctx context.Context, hash string) (*types.TransactionResponse, error) {
	raw, err := p.Perform(ctx, types.TransactionAction{Hash: hash})
	if err != nil {
		return nil, err
	}
	return decodeNullable[types.TransactionResponse](raw)
}

// receipt looks hash up through the namespace's receipt decoder.
func (p *Provider) receipt(ctx context.Context, hash string) (*types.Receipt, error) {
	if p.receiptFn != nil {
		return p.receiptFn(ctx, hash)
	}
	return p.GetTransactionReceipt(ctx, hash)
}

func (p *Provider) GetTransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	raw, err := p.Perform(ctx, types.ReceiptAction{Hash: hash})
	if err != nil {
		return nil, err
	}
	return decodeNullable[types.Receipt](raw)
}

func (p *Provider) GetLogs(ctx context.Context, filter types.Filter) ([]types.Log, error) {
	addrs := make([]string, len(filter.Address))
	for i, a := range filter.Address {
		addr, err := p.ResolveAddress(ctx, types.Address(a))
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	filter.Address = addrs

	raw, err := p.Perform(ctx, types.LogsAction{Filter: filter})
	if err != nil {
		return nil, err
	}
	var logs []types.Log
	if utils.IsNull(raw) {
		return logs, nil
	}
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, &types.Error{Code: types.ErrBadData, Message: "invalid logs response", Data: string(raw), Err: err}
	}
	return logs, nil
}

// PrepareTransaction resolves the address-like fields of tx.
func (p *Provider) PrepareTransaction(ctx context.Context, tx *types.TransactionRequest) (*types.PreparedTransaction, error) {
	if tx == nil {
		return nil, types.InvalidArgument("missing transaction", "transaction", nil)
	}

	out := &types.PreparedTransaction{
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

	g, gctx := errgroup.WithContext(ctx)
	if tx.To != nil {
		g.Go(func() error {
			addr, err := p.ResolveAddress(gctx, tx.To)
			out.To = addr
			return err
		})
	}
	if tx.From != nil {
		g.Go(func() error {
			addr, err := p.ResolveAddress(gctx, tx.From)
			out.From = addr
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out.Copy(), nil
}

// Call executes tx against the node without creating a transaction.
func (p *Provider) Call(ctx context.Context, tx *types.TransactionRequest) (hexutil.Bytes, error) {
	prepared, err := p.PrepareTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	raw, err := p.Perform(ctx, types.CallAction{Transaction: prepared, BlockTag: tx.BlockTag})
	if err != nil {
		return nil, err
	}
	return decodeBytes(raw)
}

func (p *Provider) EstimateGas(ctx context.Context, tx *types.TransactionRequest) (*big.Int, error) {
	prepared, err := p.PrepareTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	raw, err := p.Perform(ctx, types.EstimateGasAction{Transaction: prepared})
	if err != nil {
		return nil, err
	}
	return utils.ParseQuantity(raw)
}

// BroadcastTransaction submits a signed transaction and returns its hash.
// For eip155 networks the returned hash must be the keccak of the payload.
func (p *Provider) BroadcastTransaction(ctx context.Context, signedTx string) (string, error) {
	raw, err := p.Perform(ctx, types.BroadcastAction{SignedTransaction: signedTx})
	if err != nil {
		return "", err
	}

	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", &types.Error{Code: types.ErrBadData, Message: "invalid transaction hash", Data: string(raw), Err: err}
	}

	if p.Namespace() == types.NamespaceEIP155 {
		payload, err := hexutil.Decode(signedTx)
		if err == nil {
			if computed := crypto.Keccak256Hash(payload).Hex(); !strings.EqualFold(computed, hash) {
				return "", &types.Error{
					Code:    types.ErrBadData,
					Message: "transaction hash mismatch",
					Data:    map[string]any{"expected": computed, "actual": hash},
				}
			}
		}
	}
	return hash, nil
}

// ListAccounts returns the accounts the node manages.
func (p *Provider) ListAccounts(ctx context.Context) ([]string, error) {
	raw, err := p.Send(ctx, "eth_accounts", []any{})
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, &types.Error{Code: types.ErrBadData, Message: "invalid accounts response", Data: string(raw), Err: err}
	}
	return accounts, nil
}

// GetSigner returns a signer for an account the node manages. An empty
// address selects the node's first account.
func (p *Provider) GetSigner(ctx context.Context, address string) (*signer.JSONRPCSigner, error) {
	if address == "" {
		return p.GetSignerByIndex(ctx, 0)
	}
	want, err := utils.GetAddress(p.Namespace(), address)
	if err != nil {
		return nil, err
	}

	accounts, err := p.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if got, err := utils.GetAddress(p.Namespace(), account); err == nil && got == want {
			return signer.NewJSONRPCSigner(p, want), nil
		}
	}
	return nil, types.InvalidArgument("invalid account", "address", address)
}

// GetSignerByIndex returns a signer for the index-th account of eth_accounts.
func (p *Provider) GetSignerByIndex(ctx context.Context, index int) (*signer.JSONRPCSigner, error) {
	accounts, err := p.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(accounts) {
		return nil, types.InvalidArgument("no such account", "index", index)
	}
	address, err := utils.GetAddress(p.Namespace(), accounts[index])
	if err != nil {
		return nil, err
	}
	return signer.NewJSONRPCSigner(p, address), nil
}

// ENS selectors.
var (
	resolverSelector = common.FromHex("0x0178b8bf")
	addrSelector     = common.FromHex("0x3b3b57de")
)

// ResolveName looks name up in the network's ENS registry. An unconfigured
// name resolves to "".
func (p *Provider) ResolveName(ctx context.Context, name string) (string, error) {
	network, err := p.GetNetwork(ctx)
	if err != nil {
		return "", err
	}
	plugin, ok := network.GetPlugin(types.EnsPluginName).(*types.EnsPlugin)
	if !ok {
		return "", &types.Error{
			Code:      types.ErrUnsupportedOperation,
			Message:   "network does not support ENS",
			Operation: "resolveName",
			Data:      map[string]any{"network": network.Name()},
		}
	}

	node := NameHash(name)

	resolver, err := p.callForAddress(ctx, plugin.Address, append(append([]byte{}, resolverSelector...), node...))
	if err != nil || resolver == (common.Address{}) {
		return "", err
	}

	addr, err := p.callForAddress(ctx, resolver.Hex(), append(append([]byte{}, addrSelector...), node...))
	if err != nil || addr == (common.Address{}) {
		return "", err
	}
	return addr.Hex(), nil
}

func (p *Provider) callForAddress(ctx context.Context, to string, data []byte) (common.Address, error) {
	out, err := p.Call(ctx, &types.TransactionRequest{To: types.Address(to), Data: data})
	if err != nil {
		return common.Address{}, err
	}
	if len(out) < 32 {
		return common.Address{}, nil
	}
	return common.BytesToAddress(out[12:32]), nil
}

// NameHash computes the ENS node of name.
func NameHash(name string) []byte {
	node := make([]byte, 32)
	if name == "" {
		return node
	}
	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		node = crypto.Keccak256(node, crypto.Keccak256([]byte(labels[i])))
	}
	return node
}

// Destroy tears the provider down: subscribers stop, the bootstrap loop and
// drain timer are cancelled and queued requests fail.
func (p *Provider) Destroy() error {
	p.removeAllSubscriptions()
	return p.d.Destroy()
}

func decodeBytes(raw json.RawMessage) (hexutil.Bytes, error) {
	var out hexutil.Bytes
	if utils.IsNull(raw) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &types.Error{Code: types.ErrBadData, Message: "invalid hex data", Data: string(raw), Err: err}
	}
	return out, nil
}

func decodeNullable[T any](raw json.RawMessage) (*T, error) {
	if utils.IsNull(raw) {
		return nil, nil
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &types.Error{Code: types.ErrBadData, Message: "invalid response", Data: string(raw), Err: err}
	}
	return out, nil
}

// Package chainrpc is a multichain JSON-RPC client for EVM, Solana and Tron
// networks. A Client owns one provider per configured network and hands out
// providers and signers by network name.
package chainrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/vitwit/chainrpc/logger"
	"github.com/vitwit/chainrpc/metrics"
	"github.com/vitwit/chainrpc/provider"
	"github.com/vitwit/chainrpc/signer"
	"github.com/vitwit/chainrpc/transport"
	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 3
)

// Provider is the read and broadcast surface every namespace's provider
// offers.
type Provider interface {
	signer.Backend
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, address types.Addressable, tag types.BlockTag) (*big.Int, error)
	GetTransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error)
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
	Destroy() error
}

// Client is the main entry point.
type Client struct {
	mu        sync.RWMutex
	providers map[string]Provider

	logger     logger.Logger
	metrics    metrics.Recorder
	timeout    time.Duration
	retryCount int
}

// New creates a Client with no networks.
func New(opts ...Option) *Client {
	c := &Client{
		providers:  make(map[string]Provider),
		logger:     logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
		timeout:    defaultTimeout,
		retryCount: defaultRetryCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a Client and adds every network in cfg. Options
// override the logging and metrics choices made by cfg.
func NewFromConfig(ctx context.Context, cfg *types.Config, opts ...Option) (*Client, error) {
	if err := utils.ValidateStruct(cfg); err != nil {
		return nil, &types.Error{Code: types.ErrInvalidArgument, Message: "invalid config", Err: err}
	}

	base := []Option{WithRetryCount(cfg.RetryCount)}
	if cfg.DefaultTimeout > 0 {
		base = append(base, WithTimeout(cfg.DefaultTimeout))
	}
	if cfg.LogLevel != "" {
		base = append(base, WithLogger(logger.NewZapLogger(cfg.LogLevel)))
	}
	if cfg.EnableMetrics {
		rec, err := metrics.NewPrometheusRecorder(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		base = append(base, WithMetrics(rec))
	}
	c := New(append(base, opts...)...)

	if cfg.NetworksFile != "" {
		if err := types.DefaultRegistry().LoadNetworksYAML(cfg.NetworksFile); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(cfg.Clients))
	for name := range cfg.Clients {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := c.AddNetwork(ctx, name, cfg.Clients[name]); err != nil {
			return nil, multierror.Append(err, c.Close()).ErrorOrNil()
		}
	}
	return c, nil
}

// AddNetwork builds the provider for cfg and registers it under name.
func (c *Client) AddNetwork(ctx context.Context, name string, cfg types.ClientConfig) error {
	if err := utils.ValidateStruct(cfg); err != nil {
		return &types.Error{Code: types.ErrInvalidArgument, Message: fmt.Sprintf("invalid config for %s", name), Err: err}
	}
	if c.has(name) {
		return types.InvalidArgument("network already added", "name", name)
	}

	p, err := c.build(ctx, name, cfg)
	if err != nil {
		return fmt.Errorf("failed to create %s provider for %s: %w", cfg.Namespace, name, err)
	}
	if err := c.AddProvider(name, p); err != nil {
		_ = p.Destroy()
		return err
	}

	c.logger.Info("network added", map[string]any{"name": name, "namespace": string(cfg.Namespace)})
	return nil
}

// AddProvider registers an already built provider under name.
func (c *Client) AddProvider(name string, p Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.providers[name]; ok {
		return types.InvalidArgument("network already added", "name", name)
	}
	c.providers[name] = p
	return nil
}

func (c *Client) has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.providers[name]
	return ok
}

func (c *Client) build(ctx context.Context, name string, cfg types.ClientConfig) (Provider, error) {
	network, err := networkish(cfg)
	if err != nil {
		return nil, err
	}

	opts := append(provider.FromClientConfig(cfg),
		provider.WithLogger(logger.With(c.logger, map[string]any{"network": name})),
		provider.WithMetrics(c.metrics),
	)
	if cfg.StaticNetwork && cfg.Namespace != types.NamespaceSolana {
		static, err := types.NetworkFrom(cfg.Namespace, network)
		if err != nil {
			return nil, err
		}
		opts = append(opts, provider.WithStaticNetwork(static))
	}

	tr, err := c.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var p Provider
	switch cfg.Namespace {
	case types.NamespaceEIP155:
		p, err = provider.NewEVM(tr, network, opts...)
	case types.NamespaceSolana:
		p, err = provider.NewSolana(tr, network, opts...)
	case types.NamespaceTron:
		var fullNode transport.Transport
		if cfg.FullNodeURL != "" {
			fullNode = provider.NewTronFullNode(cfg.FullNodeURL, cfg.TronAPIKey, c.httpOptions(cfg, nil))
		}
		p, err = provider.NewTron(tr, fullNode, network, opts...)
	default:
		err = types.Unsupported("addNetwork", fmt.Sprintf("unsupported namespace %q", cfg.Namespace))
	}
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	return p, nil
}

func (c *Client) httpOptions(cfg types.ClientConfig, headers map[string]string) transport.HTTPOptions {
	opts := transport.HTTPOptions{
		Headers:    headers,
		Timeout:    c.timeout,
		RetryCount: c.retryCount,
	}
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if cfg.RetryCount > 0 {
		opts.RetryCount = cfg.RetryCount
	}
	return opts
}

// dial opens the WebSocket endpoint when one is configured, HTTP otherwise.
func (c *Client) dial(ctx context.Context, cfg types.ClientConfig) (transport.Transport, error) {
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Namespace == types.NamespaceTron && cfg.TronAPIKey != "" {
		headers[provider.TronAPIKeyHeader] = cfg.TronAPIKey
	}

	if cfg.WSUrl != "" {
		dialCtx, cancel := context.WithTimeout(ctx, c.httpOptions(cfg, nil).Timeout)
		defer cancel()
		return transport.DialWebSocket(dialCtx, cfg.WSUrl, headers)
	}
	return transport.NewHTTP(cfg.RPCUrl, c.httpOptions(cfg, headers)), nil
}

// networkish turns the configured network into a provider argument: nil to
// detect, a chain id for decimal strings, a registered name otherwise.
func networkish(cfg types.ClientConfig) (any, error) {
	if cfg.Network == "" {
		if cfg.StaticNetwork {
			return nil, types.InvalidArgument("static network requires a network", "network", nil)
		}
		return nil, nil
	}
	if id, ok := new(big.Int).SetString(cfg.Network, 10); ok {
		return id, nil
	}
	return cfg.Network, nil
}

// Provider returns the provider registered under name.
func (c *Client) Provider(name string) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[name]
	if !ok {
		return nil, types.InvalidArgument("unknown network", "name", name)
	}
	return p, nil
}

// EVM returns the eip155 provider registered under name.
func (c *Client) EVM(name string) (*provider.Provider, error) {
	return providerAs[*provider.Provider](c, name, types.NamespaceEIP155)
}

// Solana returns the solana provider registered under name.
func (c *Client) Solana(name string) (*provider.SolanaProvider, error) {
	return providerAs[*provider.SolanaProvider](c, name, types.NamespaceSolana)
}

// Tron returns the tron provider registered under name.
func (c *Client) Tron(name string) (*provider.TronProvider, error) {
	return providerAs[*provider.TronProvider](c, name, types.NamespaceTron)
}

func providerAs[T Provider](c *Client, name string, ns types.ChainNamespace) (T, error) {
	var zero T
	p, err := c.Provider(name)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, types.InvalidArgument(fmt.Sprintf("network is not a %s network", ns), "name", name)
	}
	return typed, nil
}

// Signer builds a local signer for the network's namespace from privateKey.
func (c *Client) Signer(name, privateKey string) (signer.Signer, error) {
	p, err := c.Provider(name)
	if err != nil {
		return nil, err
	}

	var s signer.Signer
	switch backend := p.(type) {
	case *provider.SolanaProvider:
		s, err = signer.NewSolanaWallet(privateKey, backend)
	case *provider.TronProvider:
		s, err = signer.NewTronWallet(privateKey, backend)
	default:
		if p.Namespace() != types.NamespaceEIP155 {
			return nil, types.Unsupported("signer", fmt.Sprintf("no local signer for namespace %s", p.Namespace()))
		}
		s, err = signer.NewWallet(privateKey, backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Networks lists the registered network names in order.
func (c *Client) Networks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsNetworkSupported reports whether a provider is registered under name.
func (c *Client) IsNetworkSupported(name string) bool {
	return c.has(name)
}

// RemoveNetwork destroys and forgets the provider registered under name.
func (c *Client) RemoveNetwork(name string) error {
	c.mu.Lock()
	p, ok := c.providers[name]
	delete(c.providers, name)
	c.mu.Unlock()
	if !ok {
		return types.InvalidArgument("unknown network", "name", name)
	}
	return p.Destroy()
}

// Close destroys every provider.
func (c *Client) Close() error {
	c.mu.Lock()
	providers := c.providers
	c.providers = make(map[string]Provider)
	c.mu.Unlock()

	var result *multierror.Error
	for name, p := range providers {
		if err := p.Destroy(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// Version information
const Version = "1.0.0"

// GetVersion returns version information
func GetVersion() map[string]any {
	return map[string]any{
		"library_version": Version,
		"namespaces": []string{
			string(types.NamespaceEIP155),
			string(types.NamespaceSolana),
			string(types.NamespaceTron),
		},
		"transports": []string{"http", "websocket"},
	}
}

package provider

import (
	"time"

	"github.com/vitwit/chainrpc/logger"
	"github.com/vitwit/chainrpc/metrics"
	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

const (
	DefaultBatchStallTime  = 10 * time.Millisecond
	DefaultBatchMaxSize    = 1 << 20
	DefaultBatchMaxCount   = 100
	DefaultPollingInterval = 4 * time.Second
	DefaultCacheTimeout    = 250 * time.Millisecond

	bootstrapRetryInterval = time.Second
)

// Options configures a provider.
type Options struct {
	// Polling forces client-side polling for log subscriptions.
	Polling bool
	// StaticNetwork skips chain id detection.
	StaticNetwork *types.Network

	BatchStallTime time.Duration `validate:"gte=0"`
	BatchMaxSize   int           `validate:"gte=1"`
	// BatchMaxCount of 1 disables batching.
	BatchMaxCount int `validate:"gte=1"`

	PollingInterval time.Duration `validate:"gt=0"`
	// CacheTimeout bounds how long chainId, blockNumber and fee lookups are
	// reused. Zero disables the cache.
	CacheTimeout time.Duration `validate:"gte=0"`

	Logger  logger.Logger
	Metrics metrics.Recorder
}

type Option func(*Options)

func DefaultOptions() Options {
	return Options{
		BatchStallTime:  DefaultBatchStallTime,
		BatchMaxSize:    DefaultBatchMaxSize,
		BatchMaxCount:   DefaultBatchMaxCount,
		PollingInterval: DefaultPollingInterval,
		CacheTimeout:    DefaultCacheTimeout,
		Logger:          logger.NoopLogger{},
		Metrics:         metrics.NoopRecorder{},
	}
}

func WithPolling(polling bool) Option {
	return func(o *Options) {
		o.Polling = polling
	}
}

func WithStaticNetwork(network *types.Network) Option {
	return func(o *Options) {
		o.StaticNetwork = network
	}
}

func WithBatchStallTime(d time.Duration) Option {
	return func(o *Options) {
		o.BatchStallTime = d
	}
}

func WithBatchMaxSize(n int) Option {
	return func(o *Options) {
		o.BatchMaxSize = n
	}
}

func WithBatchMaxCount(n int) Option {
	return func(o *Options) {
		o.BatchMaxCount = n
	}
}

func WithPollingInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PollingInterval = d
	}
}

func WithCacheTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.CacheTimeout = d
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Options) {
		o.Metrics = r
	}
}

// FromClientConfig translates the knobs of a ClientConfig into options.
// Zero values keep the defaults.
func FromClientConfig(cfg types.ClientConfig) []Option {
	var opts []Option
	if cfg.Polling {
		opts = append(opts, WithPolling(true))
	}
	if cfg.PollingInterval > 0 {
		opts = append(opts, WithPollingInterval(cfg.PollingInterval))
	}
	if cfg.BatchStallTime > 0 {
		opts = append(opts, WithBatchStallTime(cfg.BatchStallTime))
	}
	if cfg.BatchMaxSize > 0 {
		opts = append(opts, WithBatchMaxSize(cfg.BatchMaxSize))
	}
	if cfg.BatchMaxCount > 0 {
		opts = append(opts, WithBatchMaxCount(cfg.BatchMaxCount))
	}
	return opts
}

func buildOptions(opts []Option) (Options, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logger.NoopLogger{}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NoopRecorder{}
	}
	if err := utils.ValidateStruct(o); err != nil {
		return o, &types.Error{Code: types.ErrInvalidArgument, Message: "invalid provider options", Err: err}
	}
	return o, nil
}

// stallTime collapses to zero when batching is disabled.
func (o Options) stallTime() time.Duration {
	if o.BatchMaxCount == 1 {
		return 0
	}
	return o.BatchStallTime
}

package types

import (
	"time"
)

// ClientConfig contains configuration for one network's provider.
type ClientConfig struct {
	// Namespace selects the chain adapter and signer pipeline.
	Namespace ChainNamespace `json:"namespace" validate:"required,oneof=eip155 solana tron"`
	// Network is a registered network name or a decimal chain id. When empty
	// the network is detected from the node.
	Network string            `json:"network,omitempty"`
	RPCUrl  string            `json:"rpcUrl" validate:"required,url"`
	WSUrl   string            `json:"wsUrl,omitempty" validate:"omitempty,url"`
	Headers map[string]string `json:"headers,omitempty"`

	// FullNodeURL is the Tron full node HTTP API used for broadcasting.
	FullNodeURL string `json:"fullNodeUrl,omitempty" validate:"omitempty,url"`
	TronAPIKey  string `json:"tronApiKey,omitempty"`

	Timeout    time.Duration `json:"timeout,omitempty" validate:"gte=0"`
	RetryCount int           `json:"retryCount,omitempty" validate:"gte=0"`

	// StaticNetwork pins Network and skips chain id detection.
	StaticNetwork bool `json:"staticNetwork,omitempty"`
	// Polling forces client-side polling for log subscriptions.
	Polling         bool          `json:"polling,omitempty"`
	PollingInterval time.Duration `json:"pollingInterval,omitempty" validate:"gte=0"`

	BatchStallTime time.Duration `json:"batchStallTime,omitempty" validate:"gte=0"`
	BatchMaxSize   int           `json:"batchMaxSize,omitempty" validate:"gte=0"`
	BatchMaxCount  int           `json:"batchMaxCount,omitempty" validate:"gte=0"`
}

// Config contains global configuration for the library.
type Config struct {
	DefaultTimeout time.Duration           `json:"defaultTimeout,omitempty" validate:"gte=0"`
	RetryCount     int                     `json:"retryCount,omitempty" validate:"gte=0"`
	Clients        map[string]ClientConfig `json:"clients,omitempty" validate:"dive"`
	LogLevel       string                  `json:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics  bool                    `json:"enableMetrics,omitempty"`
	NetworksFile   string                  `json:"networksFile,omitempty"`
}

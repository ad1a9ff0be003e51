// Package config loads the library configuration from the environment.
//
// Global settings use CHAINRPC_* variables. Networks are listed in
// CHAINRPC_NETWORKS and each one reads CHAINRPC_<NAME>_* variables, where
// NAME is the upper-cased network key with dashes turned into underscores:
//
//	CHAINRPC_NETWORKS=mainnet,solana-devnet
//	CHAINRPC_MAINNET_RPC_URL=https://eth.example.org
//	CHAINRPC_SOLANA_DEVNET_NAMESPACE=solana
//	CHAINRPC_SOLANA_DEVNET_RPC_URL=https://api.devnet.solana.com
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

const Prefix = "CHAINRPC_"

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 3
	defaultLogLevel   = "info"
)

// LookupFunc reads one variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the given .env files (".env" when none are named) into the
// process environment and builds a validated Config from it. A missing
// default .env file is not an error. Every problem found is reported in one
// aggregated error.
func Load(files ...string) (*types.Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}
	return LoadFrom(os.LookupEnv)
}

// LoadFile reads a JSON encoded Config from path.
func LoadFile(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := utils.ParseConfig(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom builds a validated Config from lookup.
func LoadFrom(lookup LookupFunc) (*types.Config, error) {
	r := &reader{lookup: lookup}

	cfg := &types.Config{
		DefaultTimeout: r.duration("DEFAULT_TIMEOUT", defaultTimeout),
		RetryCount:     r.int("RETRY_COUNT", defaultRetryCount),
		LogLevel:       strings.ToLower(r.string("LOG_LEVEL", defaultLogLevel)),
		EnableMetrics:  r.bool("ENABLE_METRICS", false),
		NetworksFile:   r.string("NETWORKS_FILE", ""),
		Clients:        make(map[string]types.ClientConfig),
	}

	for _, name := range splitList(r.string("NETWORKS", "")) {
		if _, dup := cfg.Clients[name]; dup {
			r.fail(fmt.Errorf("network %q listed twice", name))
			continue
		}
		cfg.Clients[name] = r.client(name, cfg)
	}

	if err := Validate(cfg); err != nil {
		r.fail(err)
	}
	return cfg, r.errs.ErrorOrNil()
}

// Validate checks struct tags and the cross-field rules the tags cannot
// express.
func Validate(cfg *types.Config) error {
	var result *multierror.Error

	if err := utils.ValidateStruct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result, fmt.Errorf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	for name, c := range cfg.Clients {
		if c.Namespace == types.NamespaceSolana && c.Network == "" {
			result = multierror.Append(result, fmt.Errorf("network %q: solana networks must be named", name))
		}
		if c.StaticNetwork && c.Network == "" {
			result = multierror.Append(result, fmt.Errorf("network %q: static network requires a network", name))
		}
		if c.FullNodeURL != "" && c.Namespace != types.NamespaceTron {
			result = multierror.Append(result, fmt.Errorf("network %q: full node url is only used by tron", name))
		}
	}

	return result.ErrorOrNil()
}

type reader struct {
	lookup LookupFunc
	scope  string
	errs   *multierror.Error
}

func (r *reader) fail(err error) {
	r.errs = multierror.Append(r.errs, err)
}

func (r *reader) key(name string) string {
	return Prefix + r.scope + name
}

func (r *reader) string(name, def string) string {
	if v, ok := r.lookup(r.key(name)); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) int(name string, def int) int {
	v := r.string(name, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("%s: invalid integer %q", r.key(name), v))
		return def
	}
	return n
}

func (r *reader) bool(name string, def bool) bool {
	v := r.string(name, "")
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	r.fail(fmt.Errorf("%s: invalid boolean %q", r.key(name), v))
	return def
}

func (r *reader) duration(name string, def time.Duration) time.Duration {
	v := r.string(name, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(fmt.Errorf("%s: invalid duration %q", r.key(name), v))
		return def
	}
	return d
}

func (r *reader) client(name string, global *types.Config) types.ClientConfig {
	r.scope = EnvName(name) + "_"
	defer func() { r.scope = "" }()

	ns := types.NamespaceEIP155
	if v := r.string("NAMESPACE", ""); v != "" {
		parsed, err := types.ParseChainNamespace(strings.ToLower(v))
		if err != nil {
			r.fail(fmt.Errorf("%s: %w", r.key("NAMESPACE"), err))
		} else {
			ns = parsed
		}
	}

	headers, err := parseHeaders(r.string("HEADERS", ""))
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", r.key("HEADERS"), err))
	}

	return types.ClientConfig{
		Namespace:       ns,
		Network:         r.string("NETWORK", ""),
		RPCUrl:          r.string("RPC_URL", ""),
		WSUrl:           r.string("WS_URL", ""),
		Headers:         headers,
		FullNodeURL:     r.string("FULL_NODE_URL", ""),
		TronAPIKey:      r.string("TRON_API_KEY", ""),
		Timeout:         r.duration("TIMEOUT", global.DefaultTimeout),
		RetryCount:      r.int("RETRY_COUNT", global.RetryCount),
		StaticNetwork:   r.bool("STATIC_NETWORK", false),
		Polling:         r.bool("POLLING", false),
		PollingInterval: r.duration("POLLING_INTERVAL", 0),
		BatchStallTime:  r.duration("BATCH_STALL_TIME", 0),
		BatchMaxSize:    r.int("BATCH_MAX_SIZE", 0),
		BatchMaxCount:   r.int("BATCH_MAX_COUNT", 0),
	}
}

// EnvName turns a network key into its variable infix.
func EnvName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseHeaders reads "Key=Value,Other=Value".
func parseHeaders(s string) (map[string]string, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(parts))
	for _, part := range parts {
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q", part)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers, nil
}

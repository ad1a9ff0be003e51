package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vitwit/chainrpc"
	"github.com/vitwit/chainrpc/config"
	"github.com/vitwit/chainrpc/logger"
	"github.com/vitwit/chainrpc/types"
)

const (
	flagRPCURL      = "rpc-url"
	flagWSURL       = "ws-url"
	flagNamespace   = "namespace"
	flagNetwork     = "network"
	flagFullNodeURL = "full-node-url"
	flagAPIKey      = "tron-api-key"
	flagLogLevel    = "log-level"
	flagTimeout     = "timeout"
	flagEnvFile     = "env-file"
	flagConfig      = "config"

	adhocNetwork = "default"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CHAINRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "chainrpc",
		Short:         "Query EVM, Solana and Tron nodes over JSON-RPC",
		Version:       chainrpc.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `chainrpc talks to a single network.

Either point it at a node with --rpc-url, or configure networks through
CHAINRPC_* variables (see the config package) and select one with --network.`,
	}

	flags := root.PersistentFlags()
	flags.String(flagRPCURL, "", "JSON-RPC endpoint; overrides the configured networks")
	flags.String(flagWSURL, "", "WebSocket endpoint used instead of --rpc-url")
	flags.String(flagNamespace, string(types.NamespaceEIP155), "chain namespace: eip155, solana or tron")
	flags.String(flagNetwork, "", "network name or chain id")
	flags.String(flagFullNodeURL, "", "tron full node used to broadcast transactions")
	flags.String(flagAPIKey, "", "TronGrid API key")
	flags.String(flagLogLevel, "warn", "log level: debug, info, warn or error")
	flags.Duration(flagTimeout, 30*time.Second, "request timeout")
	flags.String(flagEnvFile, "", "optional .env file with network configuration")
	flags.String(flagConfig, "", "JSON config file; replaces the environment configuration")
	_ = v.BindPFlags(flags)

	a := &app{v: v}
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		zl := zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}
		a.log = logger.NewZerologLogger(zl, v.GetString(flagLogLevel))
		return nil
	}
	root.PersistentPostRunE = func(*cobra.Command, []string) error {
		return a.close()
	}

	root.AddCommand(
		newChainIDCmd(a),
		newBlockNumberCmd(a),
		newBalanceCmd(a),
		newFeeDataCmd(a),
		newSendRawCmd(a),
		newReceiptCmd(a),
		newRPCCmd(a),
	)
	return root
}

// app lazily builds the client shared by the subcommands.
type app struct {
	v      *viper.Viper
	log    logger.Logger
	client *chainrpc.Client
	name   string
}

func (a *app) provider(ctx context.Context) (chainrpc.Provider, error) {
	if a.client == nil {
		if err := a.connect(ctx); err != nil {
			return nil, err
		}
	}
	return a.client.Provider(a.name)
}

func (a *app) connect(ctx context.Context) error {
	opts := []chainrpc.Option{
		chainrpc.WithLogger(a.log),
		chainrpc.WithTimeout(a.v.GetDuration(flagTimeout)),
	}

	if a.v.GetString(flagRPCURL) == "" && a.v.GetString(flagWSURL) == "" {
		return a.connectConfigured(ctx, opts)
	}

	ns, err := types.ParseChainNamespace(strings.ToLower(a.v.GetString(flagNamespace)))
	if err != nil {
		return err
	}
	cfg := types.ClientConfig{
		Namespace:   ns,
		Network:     a.v.GetString(flagNetwork),
		RPCUrl:      a.v.GetString(flagRPCURL),
		WSUrl:       a.v.GetString(flagWSURL),
		FullNodeURL: a.v.GetString(flagFullNodeURL),
		TronAPIKey:  a.v.GetString(flagAPIKey),
	}
	if cfg.RPCUrl == "" {
		cfg.RPCUrl = cfg.WSUrl
	}
	if ns == types.NamespaceSolana && cfg.Network == "" {
		cfg.Network = "solana-mainnet"
	}

	client := chainrpc.New(opts...)
	if err := client.AddNetwork(ctx, adhocNetwork, cfg); err != nil {
		return err
	}
	a.client, a.name = client, adhocNetwork
	return nil
}

func (a *app) connectConfigured(ctx context.Context, opts []chainrpc.Option) error {
	var (
		cfg *types.Config
		err error
	)
	if path := a.v.GetString(flagConfig); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		var files []string
		if f := a.v.GetString(flagEnvFile); f != "" {
			files = append(files, f)
		}
		cfg, err = config.Load(files...)
	}
	if err != nil {
		return err
	}

	name := a.v.GetString(flagNetwork)
	if name == "" {
		if len(cfg.Clients) != 1 {
			return fmt.Errorf("--%s is required when %d networks are configured", flagNetwork, len(cfg.Clients))
		}
		for n := range cfg.Clients {
			name = n
		}
	}
	clientCfg, ok := cfg.Clients[name]
	if !ok {
		return fmt.Errorf("network %q is not configured", name)
	}

	client := chainrpc.New(opts...)
	if err := client.AddNetwork(ctx, name, clientCfg); err != nil {
		return err
	}
	a.client, a.name = client, name
	return nil
}

func (a *app) close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

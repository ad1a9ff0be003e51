package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vitwit/chainrpc/types"
	"github.com/vitwit/chainrpc/utils"
)

// nativeDecimals is the precision of each namespace's native unit.
var nativeDecimals = map[types.ChainNamespace]int{
	types.NamespaceEIP155: 18,
	types.NamespaceSolana: 9,
	types.NamespaceTron:   6,
}

func newChainIDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chain-id",
		Short: "Print the network name and chain id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.provider(cmd.Context())
			if err != nil {
				return err
			}
			network, err := p.GetNetwork(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", network.Name(), network.ChainID())
			return nil
		},
	}
}

func newBlockNumberCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "block-number",
		Short: "Print the latest block number (block height on Solana)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.provider(cmd.Context())
			if err != nil {
				return err
			}
			n, err := p.GetBlockNumber(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	var block string
	cmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Print an account balance in base units and native units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := parseBlockTag(block)
			if err != nil {
				return err
			}
			p, err := a.provider(cmd.Context())
			if err != nil {
				return err
			}
			balance, err := p.GetBalance(cmd.Context(), types.Address(args[0]), tag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", balance, utils.FormatUnits(balance, nativeDecimals[p.Namespace()]))
			return nil
		},
	}
	cmd.Flags().StringVar(&block, "block", string(types.BlockLatest), "block tag or number")
	return cmd
}

func newFeeDataCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fee-data",
		Short: "Print gas price and EIP-1559 fees in gwei",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.provider(cmd.Context())
			if err != nil {
				return err
			}
			fees, err := p.GetFeeData(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gasPrice:             %s\n", utils.FormatGwei(fees.GasPrice))
			fmt.Fprintf(out, "maxFeePerGas:         %s\n", utils.FormatGwei(fees.MaxFeePerGas))
			fmt.Fprintf(out, "maxPriorityFeePerGas: %s\n", utils.FormatGwei(fees.MaxPriorityFeePerGas))
			return nil
		},
	}
}

func newSendRawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send-raw <signed-tx>",
		Short: "Broadcast a signed transaction and print its hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.provider(cmd.Context())
			if err != nil {
				return err
			}
			hash, err := p.BroadcastTransaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newReceiptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "receipt <hash>",
		Short: "Print a transaction receipt as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.provider(cmd.Context())
			if err != nil {
				return err
			}
			hash := args[0]
			if err := utils.ValidateTransactionHash(hash, p.Namespace()); err != nil {
				return err
			}
			if p.Namespace() == types.NamespaceTron && !strings.HasPrefix(hash, "0x") {
				hash = "0x" + hash
			}
			receipt, err := p.GetTransactionReceipt(cmd.Context(), hash)
			if err != nil {
				return err
			}
			if receipt == nil {
				return fmt.Errorf("transaction %s not found", args[0])
			}
			return printJSON(cmd, receipt)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	return nil
}

func newRPCCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc <method> [params-json]",
		Short: "Send a raw JSON-RPC request",
		Example: `  chainrpc rpc eth_getBlockByNumber '["latest", false]'
  chainrpc --namespace solana rpc getSlot`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := []any{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return fmt.Errorf("params must be a JSON array: %w", err)
				}
			}
			p, err := a.provider(cmd.Context())
			if err != nil {
				return err
			}
			result, err := p.Send(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			return printJSON(cmd, json.RawMessage(result))
		},
	}
}

func parseBlockTag(s string) (types.BlockTag, error) {
	switch types.BlockTag(s) {
	case "", types.BlockLatest:
		return types.BlockLatest, nil
	case types.BlockPending, types.BlockEarliest, types.BlockSafe, types.BlockFinalized:
		return types.BlockTag(s), nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return types.BlockNumber(n), nil
	}
	if _, ok := new(big.Int).SetString(s, 0); ok {
		return types.BlockTag(s), nil
	}
	return "", fmt.Errorf("invalid block %q", s)
}

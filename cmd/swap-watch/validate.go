package main

import (
	"context"
	"fmt"
	"time"

	"github.com/devblac/swap-watch/internal/config"
	"github.com/devblac/swap-watch/internal/source/evm"
	"github.com/spf13/cobra"
)

const defaultRPCTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, resolve the Swap event, and ping the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d, confirmation depth %d)\n", cfg.Version, cfg.Global.ConfirmationDepth)

		decoder, err := newDecoder(cfg)
		if err != nil {
			return fmt.Errorf("event invalid: %w", err)
		}
		fmt.Fprintf(out, "- event %s topic %s\n", cfg.Source.Event, decoder.Topic().Hex())

		ctx, cancel := context.WithTimeout(cmd.Context(), defaultRPCTimeout)
		defer cancel()

		chainID, head, err := pingEVM(ctx, cfg.Source.RPCURL)
		if err != nil {
			fmt.Fprintf(out, "- source %s: ERROR %v\n", cfg.Source.ID, err)
			return fmt.Errorf("validate: source %s failed connectivity", cfg.Source.ID)
		}
		fmt.Fprintf(out, "- source %s: chainId %s head %d OK\n", cfg.Source.ID, chainID, head)

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func pingEVM(ctx context.Context, url string) (string, uint64, error) {
	cli, err := evm.NewRPCClient(ctx, url)
	if err != nil {
		return "", 0, err
	}
	defer cli.Close()

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("call eth_chainId: %w", err)
	}
	head, err := cli.BlockNumber(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("call eth_blockNumber: %w", err)
	}
	return chainID.String(), head, nil
}

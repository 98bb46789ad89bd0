package main

import (
	"fmt"

	"github.com/devblac/swap-watch/internal/config"
	"github.com/devblac/swap-watch/internal/storage"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the last confirmed block and reorg statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		cfg, err := config.LoadArchive(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		last, ok, err := store.LastConfirmed(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "source %s: no confirmed blocks yet\n", cfg.Source.ID)
			return nil
		}
		st, err := store.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "source %s\n", cfg.Source.ID)
		fmt.Fprintf(out, "  last confirmed: %d %s (%s)\n", last.Height, last.Hash, last.ConfirmedAt.UTC().Format("2006-01-02T15:04:05Z"))
		fmt.Fprintf(out, "  blocks: %d  swaps: %d\n", st.Blocks, st.Swaps)
		fmt.Fprintf(out, "  released after reorg: %d  deepest reorg: %d\n", st.Reorged, st.MaxDepth)
		return nil
	},
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/devblac/swap-watch/internal/config"
	"github.com/devblac/swap-watch/internal/engine"
	"github.com/devblac/swap-watch/internal/health"
	"github.com/devblac/swap-watch/internal/logging"
	"github.com/devblac/swap-watch/internal/metrics"
	"github.com/devblac/swap-watch/internal/source/evm"
	"github.com/devblac/swap-watch/internal/storage"
	"github.com/devblac/swap-watch/internal/window"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagTo      uint64
	flagOutput  string
	flagNoStore bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Exit after the first confirmed block")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Do not send to sinks")
	runCmd.Flags().Uint64Var(&flagTo, "to", 0, "Exit once this height is confirmed")
	runCmd.Flags().StringVar(&flagOutput, "output", "json", "Confirmed block output on stdout: json or text")
	runCmd.Flags().BoolVar(&flagNoStore, "no-store", false, "Do not archive confirmed blocks")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow the chain head and print confirmed swaps",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.NewWithLevel(os.Getenv("LOG_LEVEL"))
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var store *storage.Store
		if !flagNoStore {
			store, err = storage.Open(cfg.Global.DBPath)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()
		}

		decoder, err := newDecoder(cfg)
		if err != nil {
			return err
		}

		cli, err := evm.NewRPCClient(ctx, cfg.Source.RPCURL)
		if err != nil {
			return err
		}
		defer cli.Close()

		win, err := window.New(cfg.Global.ConfirmationDepth, evm.NewFetcher(cli, decoder))
		if err != nil {
			return err
		}

		sinks, err := buildSinks(cfg)
		if err != nil {
			return err
		}

		emit, err := engine.NewEmitter(cmd.OutOrStdout(), flagOutput, cfg.Source.ID)
		if err != nil {
			return err
		}

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
		}

		if flagHealth != "" {
			checker := health.Checker{
				RPCPing: health.NewRPCChecker(cfg.Source.ID, cli, 5*time.Minute).Ping,
			}
			if store != nil {
				checker.DBPing = store.Ping
				checker.LastConfirmed = func(ctx context.Context) (uint64, bool, error) {
					b, ok, err := store.LastConfirmed(ctx)
					return b.Height, ok, err
				}
			}
			healthSrv := health.Serve(flagHealth, checker)
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		runner, err := engine.NewRunner(win, store, cfg, sinks, engine.Options{
			SourceID: cfg.Source.ID,
			SymbolA:  cfg.Tokens.A.Symbol,
			SymbolB:  cfg.Tokens.B.Symbol,
			DryRun:   flagDryRun,
			To:       flagTo,
			Once:     flagOnce,
			Emit:     emit,
			Metrics:  mtr,
			Logger:   log,
		})
		if err != nil {
			return err
		}

		heads, err := evm.SubscribeHeads(ctx, cli)
		if err != nil {
			return err
		}
		defer heads.Close()

		log.Info("watching pool",
			"contract", decoder.Address().Hex(),
			"topic", decoder.Topic().Hex(),
			"confirmation_depth", cfg.Global.ConfirmationDepth,
			"dry_run", flagDryRun,
		)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx := errgroup.WithContext(runCtx)

		if flagMetrics != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: flagMetrics, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelShutdown()
				return srv.Shutdown(shutdownCtx)
			})
		}

		g.Go(func() error {
			defer cancel()
			return runner.Run(gctx, heads)
		})

		err = g.Wait()
		if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.Info("shutting down")
			return nil
		}
		if err != nil {
			log.Error("run failed", "err", err)
		}
		return err
	},
}

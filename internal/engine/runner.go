package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/devblac/swap-watch/internal/config"
	"github.com/devblac/swap-watch/internal/metrics"
	"github.com/devblac/swap-watch/internal/sink"
	"github.com/devblac/swap-watch/internal/source/evm"
	"github.com/devblac/swap-watch/internal/storage"
	"github.com/devblac/swap-watch/internal/swap"
	"github.com/devblac/swap-watch/internal/window"
)

// HeadSource yields chain head notifications. io.EOF ends the run cleanly.
type HeadSource interface {
	Next(ctx context.Context) (evm.Head, error)
}

// Emitter receives every confirmed block, in height order.
type Emitter func(c window.Confirmed) error

// Options tune a Runner. To stops the run once that height is confirmed
// (zero means no limit); Once stops it after the first confirmed block.
type Options struct {
	SourceID string
	SymbolA  string
	SymbolB  string
	DryRun   bool
	To       uint64
	Once     bool
	Emit     Emitter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Runner drives the window from head notifications and routes each
// confirmed block to the emitter, the archive, and rule sinks.
type Runner struct {
	win     *window.Window
	store   *storage.Store
	sinks   map[string]sink.Sender
	rules   []ruleExec
	opts    Options
	logger  *slog.Logger
	nowFunc func() time.Time
}

type ruleExec struct {
	rule   config.Rule
	preds  []Predicate
	bucket *TokenBucket
}

// NewRunner builds a runner. store may be nil, in which case nothing is
// archived and sink deliveries are not recorded.
func NewRunner(win *window.Window, store *storage.Store, cfg *config.Config, sinks map[string]sink.Sender, opts Options) (*Runner, error) {
	if win == nil {
		return nil, errors.New("window is required")
	}
	rules := make([]ruleExec, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		preds, err := CompilePredicates(r.Where)
		if err != nil {
			return nil, fmt.Errorf("rule %s predicates: %w", r.ID, err)
		}
		exec := ruleExec{rule: r, preds: preds}
		if r.RateLimit != nil {
			exec.bucket = NewTokenBucket(r.RateLimit.Capacity, r.RateLimit.PerSecond)
		}
		rules = append(rules, exec)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		win:     win,
		store:   store,
		sinks:   sinks,
		rules:   rules,
		opts:    opts,
		logger:  logger.With("source", opts.SourceID),
		nowFunc: time.Now,
	}, nil
}

// Run consumes heads until the source ends, the context is cancelled, a
// stop condition is met, or a fatal error occurs. Fatal errors are returned
// as is; nothing is retried.
func (r *Runner) Run(ctx context.Context, heads HeadSource) error {
	for {
		head, err := heads.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Info("head stream closed")
				return nil
			}
			return err
		}
		r.opts.Metrics.Head(head.Height)

		done, err := r.HandleHead(ctx, head)
		if err != nil {
			r.opts.Metrics.Errors()
			return err
		}
		if done {
			return nil
		}
	}
}

// HandleHead advances the window to head. The first head initializes the
// window. Later heads roll it forward one height at a time, so notifications
// skipped by the node are caught up. Heads at or below the newest held
// block are ignored. It reports true once a stop condition is met.
func (r *Runner) HandleHead(ctx context.Context, head evm.Head) (bool, error) {
	tail, ok := r.win.Tail()
	if !ok {
		if err := r.win.Initialize(ctx, head.Height); err != nil {
			return false, fmt.Errorf("initialize window at block %d: %w", head.Height, err)
		}
		r.logger.Info("window initialized", "height", head.Height, "held", r.win.Len(), "state", r.win.State().String())
		return false, nil
	}

	if head.Height <= tail {
		r.logger.Debug("stale head ignored", "height", head.Height, "tail", tail)
		return false, nil
	}

	for h := tail + 1; h <= head.Height; h++ {
		c, released, err := r.win.RollForward(ctx, h)
		if err != nil {
			return false, fmt.Errorf("roll forward to block %d: %w", h, err)
		}
		if c.ReorgDepth > 0 {
			r.opts.Metrics.Reorg(c.ReorgDepth)
			r.logger.Warn("reorg repaired", "height", h, "depth", c.ReorgDepth)
		}
		if !released {
			continue
		}
		if err := r.confirm(ctx, c); err != nil {
			return false, err
		}
		if r.opts.Once || (r.opts.To > 0 && c.Height >= r.opts.To) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Runner) confirm(ctx context.Context, c window.Confirmed) error {
	if r.opts.Emit != nil {
		if err := r.opts.Emit(c); err != nil {
			return fmt.Errorf("emit block %d: %w", c.Height, err)
		}
	}

	if r.store != nil {
		block, swaps := toArchive(c, r.nowFunc())
		if err := r.store.RecordConfirmed(ctx, block, swaps); err != nil {
			return fmt.Errorf("archive block %d: %w", c.Height, err)
		}
	}

	r.opts.Metrics.Confirmed(len(c.Events))
	r.logger.Info("block confirmed",
		"height", c.Height,
		"hash", c.Hash.Hex(),
		"swaps", len(c.Events),
		"reorg_depth", c.ReorgDepth,
	)

	return r.route(ctx, c)
}

func (r *Runner) route(ctx context.Context, c window.Confirmed) error {
	if len(r.rules) == 0 {
		return nil
	}
	for _, ev := range c.Events {
		args := ev.Args()
		args["height"] = c.Height
		args["block_hash"] = strings.ToLower(c.Hash.Hex())

		for _, exec := range r.rules {
			pass, err := allPredicates(exec.preds, args)
			if err != nil {
				r.logger.Debug("rule evaluation failed", "rule", exec.rule.ID, "tx_hash", args["tx_hash"], "err", err)
				continue
			}
			if !pass {
				continue
			}
			if exec.bucket != nil && !exec.bucket.Allow(r.nowFunc()) {
				r.opts.Metrics.AlertsDropped()
				r.logger.Debug("alert rate limited", "rule", exec.rule.ID, "tx_hash", args["tx_hash"])
				continue
			}
			if r.opts.DryRun {
				r.logger.Info("dry-run match", "rule", exec.rule.ID, "height", c.Height, "tx_hash", args["tx_hash"])
				continue
			}
			if err := r.deliver(ctx, exec.rule, c, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) deliver(ctx context.Context, rule config.Rule, c window.Confirmed, ev swap.Event) error {
	payload := r.toSinkPayload(rule.ID, c, ev)
	for _, sinkID := range rule.Sinks {
		s := r.sinks[sinkID]
		if s == nil {
			continue
		}
		status := "sent"
		if err := s.Send(ctx, payload); err != nil {
			status = "failed"
			r.opts.Metrics.Errors()
			r.logger.Warn("sink send failed", "rule", rule.ID, "sink", sinkID, "err", err)
		} else {
			r.opts.Metrics.AlertsSent()
		}
		if r.store == nil {
			continue
		}
		err := r.store.InsertSend(ctx, storage.Send{
			TxHash:    payload.TxHash,
			LogIndex:  payload.LogIndex,
			RuleID:    rule.ID,
			SinkID:    sinkID,
			Status:    status,
			CreatedAt: r.nowFunc(),
		})
		if err != nil {
			return fmt.Errorf("record send %s/%s: %w", rule.ID, sinkID, err)
		}
	}
	return nil
}

func allPredicates(preds []Predicate, args map[string]any) (bool, error) {
	for _, p := range preds {
		ok, err := p(args)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *Runner) toSinkPayload(ruleID string, c window.Confirmed, ev swap.Event) sink.SwapPayload {
	return sink.SwapPayload{
		RuleID:     ruleID,
		SourceID:   r.opts.SourceID,
		Height:     c.Height,
		BlockHash:  strings.ToLower(c.Hash.Hex()),
		ReorgDepth: c.ReorgDepth,
		TxHash:     strings.ToLower(ev.TxHash.Hex()),
		LogIndex:   ev.LogIndex,
		Sender:     ev.Sender,
		Receiver:   ev.Receiver,
		Direction:  ev.Direction.String(),
		AmountA:    ev.AmountA,
		AmountB:    ev.AmountB,
		SymbolA:    r.opts.SymbolA,
		SymbolB:    r.opts.SymbolB,
	}
}

func toArchive(c window.Confirmed, now time.Time) (storage.Block, []storage.Swap) {
	swaps := make([]storage.Swap, 0, len(c.Events))
	for _, ev := range c.Events {
		swaps = append(swaps, storage.Swap{
			TxHash:    strings.ToLower(ev.TxHash.Hex()),
			LogIndex:  ev.LogIndex,
			Height:    c.Height,
			Sender:    ev.Sender,
			Receiver:  ev.Receiver,
			Direction: ev.Direction.String(),
			AmountA:   ev.AmountA,
			AmountB:   ev.AmountB,
		})
	}
	return storage.Block{
		Height:      c.Height,
		Hash:        strings.ToLower(c.Hash.Hex()),
		ReorgDepth:  c.ReorgDepth,
		ConfirmedAt: now,
	}, swaps
}

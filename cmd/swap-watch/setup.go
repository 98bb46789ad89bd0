package main

import (
	"fmt"

	"github.com/devblac/swap-watch/internal/config"
	"github.com/devblac/swap-watch/internal/sink"
	"github.com/devblac/swap-watch/internal/source/evm"
)

func newDecoder(cfg *config.Config) (*evm.SwapDecoder, error) {
	abis, err := evm.LoadABIs(cfg.Source.ABIDirs)
	if err != nil {
		return nil, fmt.Errorf("load abis: %w", err)
	}
	decimals := evm.Decimals{A: *cfg.Tokens.A.Decimals, B: *cfg.Tokens.B.Decimals}
	d, err := evm.NewSwapDecoder(cfg.Source.Contract, cfg.Source.Event, abis, decimals)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Source.ID, err)
	}
	return d, nil
}

func buildSinks(cfg *config.Config) (map[string]sink.Sender, error) {
	sinks := map[string]sink.Sender{}
	for _, s := range cfg.Sinks {
		var (
			sender sink.Sender
			err    error
		)
		switch s.Type {
		case "slack":
			sender, err = sink.NewSlackSender(s.WebhookURL, s.Template)
		case "teams":
			sender, err = sink.NewTeamsSender(s.WebhookURL, s.Template)
		case "webhook":
			sender, err = sink.NewWebhookSender(s.URL, s.Method, s.Template, map[string]string{
				"Content-Type": "application/json",
			})
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
		sinks[s.ID] = sender
	}
	return sinks, nil
}

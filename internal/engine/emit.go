package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/devblac/swap-watch/internal/window"
)

type emittedSwap struct {
	TxHash    string `json:"tx_hash"`
	LogIndex  uint   `json:"log_index"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Direction string `json:"direction"`
	AmountA   string `json:"amount_a"`
	AmountB   string `json:"amount_b"`
}

type emittedBlock struct {
	Source     string        `json:"source,omitempty"`
	Height     uint64        `json:"height"`
	Hash       string        `json:"hash"`
	ReorgDepth uint          `json:"reorg_depth"`
	Swaps      []emittedSwap `json:"swaps"`
}

// NewEmitter writes each confirmed block to w. format is "json" (one object
// per line) or "text".
func NewEmitter(w io.Writer, format, sourceID string) (Emitter, error) {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		return func(c window.Confirmed) error {
			return enc.Encode(toEmitted(c, sourceID))
		}, nil
	case "text":
		return func(c window.Confirmed) error {
			return writeText(w, toEmitted(c, sourceID))
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func toEmitted(c window.Confirmed, sourceID string) emittedBlock {
	out := emittedBlock{
		Source:     sourceID,
		Height:     c.Height,
		Hash:       strings.ToLower(c.Hash.Hex()),
		ReorgDepth: c.ReorgDepth,
		Swaps:      make([]emittedSwap, 0, len(c.Events)),
	}
	for _, ev := range c.Events {
		out.Swaps = append(out.Swaps, emittedSwap{
			TxHash:    strings.ToLower(ev.TxHash.Hex()),
			LogIndex:  ev.LogIndex,
			Sender:    ev.Sender,
			Receiver:  ev.Receiver,
			Direction: ev.Direction.String(),
			AmountA:   ev.AmountA,
			AmountB:   ev.AmountB,
		})
	}
	return out
}

func writeText(w io.Writer, b emittedBlock) error {
	if _, err := fmt.Fprintf(w, "block %d %s reorg_depth=%d swaps=%d\n", b.Height, b.Hash, b.ReorgDepth, len(b.Swaps)); err != nil {
		return err
	}
	for _, s := range b.Swaps {
		_, err := fmt.Fprintf(w, "  %s:%d %s sender=%s receiver=%s amount_a=%s amount_b=%s\n",
			s.TxHash, s.LogIndex, s.Direction, s.Sender, s.Receiver, s.AmountA, s.AmountB)
		if err != nil {
			return err
		}
	}
	return nil
}

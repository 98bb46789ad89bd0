package engine

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/devblac/swap-watch/internal/swap"
	"github.com/devblac/swap-watch/internal/window"
	"github.com/ethereum/go-ethereum/common"
)

func sampleConfirmed() window.Confirmed {
	return window.Confirmed{
		Snapshot: window.Snapshot{
			Height: 17000000,
			Hash:   common.HexToHash("0xAB"),
			Events: []swap.Event{{
				TxHash:   common.HexToHash("0xCD"),
				LogIndex: 7,
				Record: swap.Record{
					Sender:    "0x01",
					Receiver:  "0x02",
					Direction: swap.AToB,
					AmountA:   "1.5",
					AmountB:   "1.499999",
				},
			}},
		},
		ReorgDepth: 1,
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	emit, err := NewEmitter(&buf, "json", "pool")
	if err != nil {
		t.Fatalf("emitter: %v", err)
	}
	if err := emit(sampleConfirmed()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := emit(window.Confirmed{Snapshot: window.Snapshot{Height: 17000001}}); err != nil {
		t.Fatalf("emit empty: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one line per block, got %d", len(lines))
	}
	var got emittedBlock
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Source != "pool" || got.Height != 17000000 || got.ReorgDepth != 1 || len(got.Swaps) != 1 {
		t.Fatalf("unexpected block: %+v", got)
	}
	if s := got.Swaps[0]; s.Direction != "A->B" || s.LogIndex != 7 || s.AmountB != "1.499999" || s.TxHash != strings.ToLower(s.TxHash) {
		t.Fatalf("unexpected swap: %+v", s)
	}
	if !strings.Contains(lines[1], `"swaps":[]`) {
		t.Fatalf("empty block should carry an empty swap list: %s", lines[1])
	}
}

func TestTextEmitter(t *testing.T) {
	var buf bytes.Buffer
	emit, err := NewEmitter(&buf, "text", "")
	if err != nil {
		t.Fatalf("emitter: %v", err)
	}
	if err := emit(sampleConfirmed()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"block 17000000", "reorg_depth=1", "swaps=1", ":7 A->B", "amount_a=1.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestEmitterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewEmitter(&bytes.Buffer{}, "xml", ""); err == nil {
		t.Fatalf("expected unknown format to fail")
	}
}

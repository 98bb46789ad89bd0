package engine

import (
	"testing"
	"time"
)

func swapArgs() map[string]any {
	return map[string]any{
		"sender":    "0xaaa",
		"receiver":  "0xbbb",
		"direction": "B->A",
		"amount_a":  "1000.499999999999999999",
		"amount_b":  "1000.5",
		"height":    uint64(17_000_000),
		"log_index": uint64(3),
	}
}

func TestCompilePredicates(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"amount_b > 1000", true},
		{"amount_b >= 1000.5", true},
		{"amount_b < 1_000", false},
		{"amount_a <= 1e3", false},
		{"amount_b > 2 * 500", true},
		{"height == 17000000", true},
		{"log_index != 3", false},
		{"direction == B->A", true},
		{"direction != A->B", true},
		{"sender in 0x111,0xaaa", true},
		{"receiver in 0x111,0xaaa", false},
		{"amount_a contains .4999", true},
		{"missing > 1", false},
		{"direction > 1", false},
	}
	args := swapArgs()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			preds, err := CompilePredicates([]string{tt.expr})
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			got, err := allPredicates(preds, args)
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got != tt.want {
				t.Fatalf("%q = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCompilePredicatesExactAmounts(t *testing.T) {
	tests := []struct {
		expr   string
		amount string
		want   bool
	}{
		{"amount_a > 1000", "1000.000000000000000001", true},
		{"amount_a > 1000", "1000.000000000000000000", false},
		{"amount_a >= 1000.000000000000000001", "1000.000000000000000001", true},
		{"amount_a < 1000.000000000000000001", "1000.000000000000000000", true},
		{"amount_a == 1000", "1000.000000000000000000", true},
		{"amount_a == 9007199254740993", "9007199254740992.000000", false},
		{"amount_a != 9007199254740993", "9007199254740992.000000", true},
		{"amount_a > 1e18", "1000000000000000000.000000000000000001", true},
		{"amount_a <= 2 * 0.000000000000000001", "0.000000000000000002", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr+" on "+tt.amount, func(t *testing.T) {
			preds, err := CompilePredicates([]string{tt.expr})
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			got, err := allPredicates(preds, map[string]any{"amount_a": tt.amount})
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got != tt.want {
				t.Fatalf("%q on %s = %v, want %v", tt.expr, tt.amount, got, tt.want)
			}
		})
	}
}

func TestCompilePredicatesSkipsBlankAndRejectsUnknown(t *testing.T) {
	preds, err := CompilePredicates([]string{"", "  "})
	if err != nil || len(preds) != 0 {
		t.Fatalf("blank expressions: preds=%d err=%v", len(preds), err)
	}
	if _, err := CompilePredicates([]string{"amount_b ~ 3"}); err == nil {
		t.Fatalf("expected unsupported operator to fail")
	}
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 1) // capacity=2, 1 token/sec
	now := time.Now()

	if !tb.Allow(now) || !tb.Allow(now) {
		t.Fatalf("expected initial tokens available")
	}
	if tb.Allow(now) {
		t.Fatalf("expected third to be rate-limited")
	}

	// Refill after 1.5s -> should allow one
	now = now.Add(1500 * time.Millisecond)
	if !tb.Allow(now) {
		t.Fatalf("expected token after refill")
	}
}

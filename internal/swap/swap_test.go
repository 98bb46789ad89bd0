package swap

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	sender   = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	receiver = common.HexToAddress("0x00000000000000000000000000000000000000aB")
)

func neg(v uint64) *uint256.Int {
	return new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(v))
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		rawA    *uint256.Int
		rawB    *uint256.Int
		wantDir Direction
		wantA   string
		wantB   string
	}{
		{
			name:    "token_b_out",
			rawA:    uint256.NewInt(2_000_000_000_000_000_000),
			rawB:    neg(1_999_500),
			wantDir: BToA,
			wantA:   "2.000000000000000000",
			wantB:   "1.999500",
		},
		{
			name:    "token_a_out",
			rawA:    neg(500_000_000_000_000_000),
			rawB:    uint256.NewInt(500_100),
			wantDir: AToB,
			wantA:   "0.500000000000000000",
			wantB:   "0.500100",
		},
		{
			name:    "zero_in",
			rawA:    uint256.NewInt(0),
			rawB:    neg(1),
			wantDir: BToA,
			wantA:   "0.000000000000000000",
			wantB:   "0.000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Build(sender, receiver, tt.rawA, tt.rawB, 18, 6)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if rec.Direction != tt.wantDir {
				t.Fatalf("direction = %s, want %s", rec.Direction, tt.wantDir)
			}
			if rec.AmountA != tt.wantA || rec.AmountB != tt.wantB {
				t.Fatalf("amounts = %s / %s, want %s / %s", rec.AmountA, rec.AmountB, tt.wantA, tt.wantB)
			}
			if rec.Sender != "0xe592427a0aece92de3edee1f18e0157c05861564" {
				t.Fatalf("sender not lowercase hex: %s", rec.Sender)
			}
			if rec.Receiver != "0x00000000000000000000000000000000000000ab" {
				t.Fatalf("receiver not lowercase hex: %s", rec.Receiver)
			}
		})
	}
}

func TestBuildRejectsSignPattern(t *testing.T) {
	cases := map[string][2]*uint256.Int{
		"both_positive": {uint256.NewInt(1), uint256.NewInt(2)},
		"both_negative": {neg(1), neg(2)},
		"both_zero":     {uint256.NewInt(0), uint256.NewInt(0)},
	}
	for name, amounts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(sender, receiver, amounts[0], amounts[1], 18, 6)
			if !errors.Is(err, ErrSignPattern) {
				t.Fatalf("expected ErrSignPattern, got %v", err)
			}
		})
	}
}

func TestEventArgs(t *testing.T) {
	rec, err := Build(sender, receiver, uint256.NewInt(10), neg(20), 0, 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ev := Event{TxHash: common.HexToHash("0xAB"), LogIndex: 4, Record: rec}
	args := ev.Args()
	if args["direction"] != "B->A" {
		t.Fatalf("direction arg = %v", args["direction"])
	}
	if args["amount_b"] != "20.0" {
		t.Fatalf("amount_b arg = %v", args["amount_b"])
	}
	if args["log_index"] != uint64(4) {
		t.Fatalf("log_index arg = %v", args["log_index"])
	}
}

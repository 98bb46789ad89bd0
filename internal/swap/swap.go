// Package swap builds application-level swap records from the signed
// amounts of a pool Swap event.
package swap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devblac/swap-watch/internal/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrSignPattern is returned when a swap does not carry exactly one negative amount.
var ErrSignPattern = errors.New("swap amounts must have exactly one negative side")

// Direction is named after the negative, outgoing side of the swap.
type Direction int

const (
	// AToB is reported when amount A is negative.
	AToB Direction = iota
	// BToA is reported when amount B is negative.
	BToA
)

func (d Direction) String() string {
	switch d {
	case AToB:
		return "A->B"
	case BToA:
		return "B->A"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Record is an immutable swap with both amounts as non-negative decimal strings.
type Record struct {
	Sender    string
	Receiver  string
	Direction Direction
	AmountA   string
	AmountB   string
}

// Event is a Record located at its log position within a block.
type Event struct {
	TxHash   common.Hash
	LogIndex uint
	Record
}

// Build decodes a swap. The monitored pool encodes every swap as one amount
// flowing in and the other, negative, flowing out; any other sign pattern
// means the log is not what the pool is expected to emit, and Build returns
// ErrSignPattern.
func Build(accountA, accountB common.Address, rawA, rawB *uint256.Int, decimalsA, decimalsB uint8) (Record, error) {
	negA, amountA := fixedpoint.Decode(rawA, decimalsA)
	negB, amountB := fixedpoint.Decode(rawB, decimalsB)
	if negA == negB {
		return Record{}, fmt.Errorf("%w: amount_a negative=%v amount_b negative=%v", ErrSignPattern, negA, negB)
	}

	dir := AToB
	if negB {
		dir = BToA
	}
	return Record{
		Sender:    hexAddress(accountA),
		Receiver:  hexAddress(accountB),
		Direction: dir,
		AmountA:   amountA,
		AmountB:   amountB,
	}, nil
}

// Args exposes the record as a flat map for rule predicates.
func (e Event) Args() map[string]any {
	return map[string]any{
		"tx_hash":   strings.ToLower(e.TxHash.Hex()),
		"log_index": uint64(e.LogIndex),
		"sender":    e.Sender,
		"receiver":  e.Receiver,
		"direction": e.Direction.String(),
		"amount_a":  e.AmountA,
		"amount_b":  e.AmountB,
	}
}

func hexAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}

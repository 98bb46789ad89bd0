// Package window holds recent blocks for a fixed number of confirmations and
// repairs them when the chain reorganizes before they are released.
package window

import (
	"context"
	"errors"
	"fmt"

	"github.com/devblac/swap-watch/internal/swap"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultCapacity is the default confirmation depth.
const DefaultCapacity = 5

// Snapshot is one observed block and the swaps it carried. A snapshot is
// never edited; a reorg replaces it wholesale.
type Snapshot struct {
	Height uint64
	Hash   common.Hash
	Events []swap.Event
}

// Confirmed is a snapshot released from the window, with the number of
// members replaced during the roll-forward that released it.
type Confirmed struct {
	Snapshot
	ReorgDepth uint
}

// Fetcher loads the current view of the block at height.
type Fetcher interface {
	Snapshot(ctx context.Context, height uint64) (Snapshot, error)
}

// State is the fill level of a window.
type State int

const (
	Uninitialized State = iota
	Filling
	Steady
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Filling:
		return "filling"
	case Steady:
		return "steady"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Window is a bounded run of consecutive snapshots, oldest first. It is not
// safe for concurrent use; a single loop drives it.
type Window struct {
	fetcher  Fetcher
	capacity int
	members  ring
}

// New builds an empty window releasing blocks after capacity confirmations.
func New(capacity int, fetcher Fetcher) (*Window, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("window capacity must be at least 1, got %d", capacity)
	}
	if fetcher == nil {
		return nil, errors.New("window fetcher is required")
	}
	return &Window{
		fetcher:  fetcher,
		capacity: capacity,
		// One spare slot holds the new head between append and eviction.
		members: newRing(capacity + 1),
	}, nil
}

// Capacity returns the confirmation depth.
func (w *Window) Capacity() int { return w.capacity }

// Len returns the number of held snapshots.
func (w *Window) Len() int { return w.members.Len() }

// State reports the fill level.
func (w *Window) State() State {
	switch n := w.members.Len(); {
	case n == 0:
		return Uninitialized
	case n < w.capacity:
		return Filling
	default:
		return Steady
	}
}

// Tail returns the height of the newest member.
func (w *Window) Tail() (uint64, bool) {
	n := w.members.Len()
	if n == 0 {
		return 0, false
	}
	return w.members.At(n - 1).Height, true
}

// Heights lists member heights, oldest first.
func (w *Window) Heights() []uint64 {
	out := make([]uint64, w.members.Len())
	for i := range out {
		out[i] = w.members.At(i).Height
	}
	return out
}

// Members returns a copy of the held snapshots, oldest first.
func (w *Window) Members() []Snapshot {
	out := make([]Snapshot, w.members.Len())
	for i := range out {
		out[i] = w.members.At(i)
	}
	return out
}

// Initialize fills the window with the capacity blocks ending at latest. A
// chain shorter than the window leaves it Filling.
func (w *Window) Initialize(ctx context.Context, latest uint64) error {
	if w.members.Len() != 0 {
		return errors.New("window already initialized")
	}
	floor := uint64(0)
	if latest >= uint64(w.capacity-1) {
		floor = latest - uint64(w.capacity-1)
	}
	snaps, err := w.fetchRange(ctx, floor, latest)
	if err != nil {
		return err
	}
	for _, s := range snaps {
		w.members.Push(s)
	}
	return nil
}

// RollForward extends the window by newHeight, which must directly follow
// the newest member. It refetches every held height, repairs members whose
// hashes changed, appends the new block and, once the window holds more than
// capacity members, evicts and returns the oldest. While Filling nothing is
// released and only ReorgDepth of the result is set. The window is left
// unchanged when an error is returned.
func (w *Window) RollForward(ctx context.Context, newHeight uint64) (Confirmed, bool, error) {
	tail, ok := w.Tail()
	if !ok {
		return Confirmed{}, false, errors.New("window not initialized")
	}
	if newHeight != tail+1 {
		return Confirmed{}, false, fmt.Errorf("%w: next height %d after tail %d", ErrHeightMismatch, newHeight, tail)
	}

	floor := w.members.At(0).Height
	fresh, err := w.fetchRange(ctx, floor, newHeight)
	if err != nil {
		return Confirmed{}, false, err
	}

	n := w.members.Len()
	depth, err := Reconcile(&w.members, fresh[:n])
	if err != nil {
		return Confirmed{}, false, err
	}
	w.members.Push(fresh[n])

	if w.members.Len() <= w.capacity {
		return Confirmed{ReorgDepth: depth}, false, nil
	}
	return Confirmed{Snapshot: w.members.PopFront(), ReorgDepth: depth}, true, nil
}

// fetchRange loads [from, to] in ascending order. The result is either
// complete or an error; partial ranges are never returned.
func (w *Window) fetchRange(ctx context.Context, from, to uint64) ([]Snapshot, error) {
	out := make([]Snapshot, 0, to-from+1)
	for h := from; h <= to; h++ {
		s, err := w.fetcher.Snapshot(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("fetch block %d: %w", h, err)
		}
		if s.Height != h {
			return nil, fmt.Errorf("%w: asked for block %d, got %d", ErrHeightMismatch, h, s.Height)
		}
		out = append(out, s)
	}
	return out, nil
}

package window

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/devblac/swap-watch/internal/swap"
	"github.com/ethereum/go-ethereum/common"
)

// fakeFetcher serves the node's current view of each height. fork maps a
// height to its current hash namespace; heights above head are unknown.
type fakeFetcher struct {
	head   uint64
	fork   map[uint64]byte
	fail   map[uint64]error
	events map[common.Hash][]swap.Event
	calls  []uint64
}

func newFakeFetcher(head uint64) *fakeFetcher {
	return &fakeFetcher{
		head:   head,
		fork:   map[uint64]byte{},
		fail:   map[uint64]error{},
		events: map[common.Hash][]swap.Event{},
	}
}

func (f *fakeFetcher) Snapshot(_ context.Context, height uint64) (Snapshot, error) {
	f.calls = append(f.calls, height)
	if err := f.fail[height]; err != nil {
		return Snapshot{}, err
	}
	if height > f.head {
		return Snapshot{}, fmt.Errorf("block %d not found", height)
	}
	hash := blockHash(height, f.fork[height])
	events := f.events[hash]
	if events == nil {
		events = []swap.Event{}
	}
	return Snapshot{Height: height, Hash: hash, Events: events}, nil
}

func newTestWindow(t *testing.T, capacity int, f Fetcher) *Window {
	t.Helper()
	w, err := New(capacity, f)
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	return w
}

func TestNewRejectsBadCapacity(t *testing.T) {
	if _, err := New(0, newFakeFetcher(0)); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
	if _, err := New(3, nil); err == nil {
		t.Fatalf("expected error for nil fetcher")
	}
}

func TestInitializeFillsAscending(t *testing.T) {
	f := newFakeFetcher(100)
	w := newTestWindow(t, 5, f)

	if w.State() != Uninitialized {
		t.Fatalf("state = %s, want uninitialized", w.State())
	}
	if err := w.Initialize(context.Background(), 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	want := []uint64{96, 97, 98, 99, 100}
	if got := w.Heights(); !reflect.DeepEqual(got, want) {
		t.Fatalf("heights = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(f.calls, want) {
		t.Fatalf("fetch order = %v, want %v", f.calls, want)
	}
	if w.State() != Steady {
		t.Fatalf("state = %s, want steady", w.State())
	}
	if err := w.Initialize(context.Background(), 100); err == nil {
		t.Fatalf("expected second initialize to fail")
	}
}

func TestRollForwardNoReorg(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher(100)
	w := newTestWindow(t, 5, f)
	if err := w.Initialize(ctx, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	before := w.Members()

	f.head = 101
	f.calls = nil
	c, ok, err := w.RollForward(ctx, 101)
	if err != nil {
		t.Fatalf("roll forward: %v", err)
	}
	if !ok {
		t.Fatalf("expected a confirmed block")
	}
	if c.Height != 96 || c.ReorgDepth != 0 {
		t.Fatalf("confirmed %d depth %d, want 96 depth 0", c.Height, c.ReorgDepth)
	}
	if c.Hash != before[0].Hash {
		t.Fatalf("confirmed hash changed without a reorg")
	}
	if want := []uint64{96, 97, 98, 99, 100, 101}; !reflect.DeepEqual(f.calls, want) {
		t.Fatalf("fetch order = %v, want %v", f.calls, want)
	}

	after := w.Members()
	if want := []uint64{97, 98, 99, 100, 101}; !reflect.DeepEqual(w.Heights(), want) {
		t.Fatalf("heights = %v, want %v", w.Heights(), want)
	}
	for i := 0; i < 4; i++ {
		if after[i].Hash != before[i+1].Hash {
			t.Fatalf("member at height %d changed without a reorg", after[i].Height)
		}
	}
}

func TestRollForwardRepairsPartialReorg(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher(104)
	w := newTestWindow(t, 5, f)
	if err := w.Initialize(ctx, 104); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// The two newest blocks are replaced before 105 arrives.
	f.fork[103], f.fork[104], f.fork[105] = 1, 1, 1
	replaced := blockHash(104, 1)
	f.events[replaced] = []swap.Event{{LogIndex: 7}}
	f.head = 105

	c, ok, err := w.RollForward(ctx, 105)
	if err != nil {
		t.Fatalf("roll forward: %v", err)
	}
	if !ok || c.Height != 100 || c.ReorgDepth != 2 {
		t.Fatalf("confirmed=%v height=%d depth=%d, want 100 depth 2", ok, c.Height, c.ReorgDepth)
	}

	members := w.Members()
	if members[2].Hash != blockHash(103, 1) || members[3].Hash != replaced {
		t.Fatalf("reorged members not replaced: %v", w.Heights())
	}
	if len(members[3].Events) != 1 || members[3].Events[0].LogIndex != 7 {
		t.Fatalf("replacement should carry the fresh events")
	}
	if members[0].Hash != blockHash(101, 0) {
		t.Fatalf("older members should be untouched")
	}
}

func TestRollForwardFullDepthReorg(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher(104)
	w := newTestWindow(t, 5, f)
	if err := w.Initialize(ctx, 104); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	before := w.Members()

	for h := uint64(100); h <= 105; h++ {
		f.fork[h] = 9
	}
	f.head = 105

	_, ok, err := w.RollForward(ctx, 105)
	if !errors.Is(err, ErrFullDepthReorg) {
		t.Fatalf("expected ErrFullDepthReorg, got %v", err)
	}
	if ok {
		t.Fatalf("nothing may be confirmed on a full-depth reorg")
	}
	if !reflect.DeepEqual(w.Members(), before) {
		t.Fatalf("window must be unchanged after a fatal roll-forward")
	}
}

func TestRollForwardFetchFailureLeavesWindow(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher(10)
	w := newTestWindow(t, 3, f)
	if err := w.Initialize(ctx, 10); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	boom := errors.New("rpc timeout")
	f.fail[9] = boom
	f.head = 11

	_, _, err := w.RollForward(ctx, 11)
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if want := []uint64{8, 9, 10}; !reflect.DeepEqual(w.Heights(), want) {
		t.Fatalf("heights = %v, want %v", w.Heights(), want)
	}
}

func TestRollForwardRequiresNextHeight(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher(20)
	w := newTestWindow(t, 3, f)

	if _, _, err := w.RollForward(ctx, 1); err == nil {
		t.Fatalf("expected error on uninitialized window")
	}
	if err := w.Initialize(ctx, 10); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for _, h := range []uint64{10, 12} {
		if _, _, err := w.RollForward(ctx, h); !errors.Is(err, ErrHeightMismatch) {
			t.Fatalf("height %d: expected ErrHeightMismatch, got %v", h, err)
		}
	}
}

func TestRollForwardMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher(1000)
	w := newTestWindow(t, 4, f)
	if err := w.Initialize(ctx, 50); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for next := uint64(51); next <= 70; next++ {
		floor := w.Heights()[0]
		c, ok, err := w.RollForward(ctx, next)
		if err != nil {
			t.Fatalf("roll forward %d: %v", next, err)
		}
		if !ok || c.Height != floor {
			t.Fatalf("confirmed %d, want %d", c.Height, floor)
		}
		heights := w.Heights()
		for i, h := range heights {
			if h != floor+1+uint64(i) {
				t.Fatalf("heights after %d = %v", next, heights)
			}
		}
		if len(heights) != 4 {
			t.Fatalf("window length = %d, want 4", len(heights))
		}
	}
}

func TestFillingShortChain(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher(10)
	w := newTestWindow(t, 5, f)
	if err := w.Initialize(ctx, 2); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if w.State() != Filling {
		t.Fatalf("state = %s, want filling", w.State())
	}
	if want := []uint64{0, 1, 2}; !reflect.DeepEqual(w.Heights(), want) {
		t.Fatalf("heights = %v, want %v", w.Heights(), want)
	}

	for _, h := range []uint64{3, 4} {
		if _, ok, err := w.RollForward(ctx, h); err != nil || ok {
			t.Fatalf("height %d: ok=%v err=%v, want nothing confirmed", h, ok, err)
		}
	}
	if w.State() != Steady {
		t.Fatalf("state = %s, want steady", w.State())
	}

	c, ok, err := w.RollForward(ctx, 5)
	if err != nil || !ok || c.Height != 0 {
		t.Fatalf("confirmed=%v height=%d err=%v, want block 0", ok, c.Height, err)
	}
}

func TestSingleSlotWindow(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher(10)
	w := newTestWindow(t, 1, f)
	if err := w.Initialize(ctx, 7); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	c, ok, err := w.RollForward(ctx, 8)
	if err != nil || !ok || c.Height != 7 {
		t.Fatalf("confirmed=%v height=%d err=%v", ok, c.Height, err)
	}

	f.fork[8] = 3
	if _, _, err := w.RollForward(ctx, 9); !errors.Is(err, ErrFullDepthReorg) {
		t.Fatalf("expected ErrFullDepthReorg, got %v", err)
	}
}

func TestRingWrapsAround(t *testing.T) {
	r := newRing(3)
	for h := uint64(0); h < 10; h++ {
		r.Push(Snapshot{Height: h})
		if r.Len() == 3 {
			if got := r.PopFront().Height; got != h-2 {
				t.Fatalf("pop = %d, want %d", got, h-2)
			}
		}
	}
	if r.Len() != 2 || r.At(0).Height != 8 || r.At(1).Height != 9 {
		t.Fatalf("unexpected ring contents")
	}
	r.Replace(1, Snapshot{Height: 99})
	if r.At(1).Height != 99 {
		t.Fatalf("replace did not land")
	}
}

package window

import (
	"errors"
	"fmt"
)

var (
	// ErrFullDepthReorg means the oldest retained block was replaced, so the
	// reorg reaches past the window and cannot be repaired from inside it.
	ErrFullDepthReorg = errors.New("reorg reaches the full window depth")
	// ErrHeightMismatch means two windows were compared at different heights.
	ErrHeightMismatch = errors.New("window height mismatch")
	// ErrLengthMismatch means two windows of different lengths were compared.
	ErrLengthMismatch = errors.New("window length mismatch")
)

// Sequence is an ordered run of snapshots, oldest first, whose members can be
// replaced in place.
type Sequence interface {
	Len() int
	At(i int) Snapshot
	Replace(i int, s Snapshot)
}

// Snapshots adapts a slice to Sequence.
type Snapshots []Snapshot

func (s Snapshots) Len() int                 { return len(s) }
func (s Snapshots) At(i int) Snapshot        { return s[i] }
func (s Snapshots) Replace(i int, v Snapshot) { s[i] = v }

// Reconcile repairs retained against a freshly fetched window covering the
// same heights and returns how many trailing members were replaced.
//
// The scan runs from the newest member back and stops at the first matching
// hash: reorgs are contiguous from the tip, so a match means everything older
// is unchanged. The anchor (oldest) hash must match; if it does not, the
// reorg is at least as deep as the window and ErrFullDepthReorg is returned
// without touching retained.
func Reconcile(retained Sequence, fresh []Snapshot) (uint, error) {
	n := retained.Len()
	if n != len(fresh) {
		return 0, fmt.Errorf("%w: retained %d, fresh %d", ErrLengthMismatch, n, len(fresh))
	}
	if n == 0 {
		return 0, nil
	}

	// Heights are checked up front so a misaligned pair never leaves
	// retained partially repaired.
	for i := 0; i < n; i++ {
		if h := retained.At(i).Height; h != fresh[i].Height {
			return 0, fmt.Errorf("%w: index %d retained %d, fresh %d", ErrHeightMismatch, i, h, fresh[i].Height)
		}
	}

	anchor := retained.At(0)
	if anchor.Hash != fresh[0].Hash {
		return 0, fmt.Errorf("%w: block %d changed from %s to %s", ErrFullDepthReorg, anchor.Height, anchor.Hash.Hex(), fresh[0].Hash.Hex())
	}

	var depth uint
	for i := n - 1; i > 0; i-- {
		if retained.At(i).Hash == fresh[i].Hash {
			break
		}
		retained.Replace(i, fresh[i])
		depth++
	}
	return depth, nil
}

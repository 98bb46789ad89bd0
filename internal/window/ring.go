package window

// ring is a fixed-capacity FIFO of snapshots. Pushing past capacity panics;
// Window sizes it to hold one member beyond the confirmation depth.
type ring struct {
	buf  []Snapshot
	head int
	n    int
}

func newRing(capacity int) ring {
	return ring{buf: make([]Snapshot, capacity)}
}

func (r *ring) Len() int { return r.n }

func (r *ring) At(i int) Snapshot {
	return r.buf[r.index(i)]
}

func (r *ring) Replace(i int, s Snapshot) {
	r.buf[r.index(i)] = s
}

func (r *ring) Push(s Snapshot) {
	if r.n == len(r.buf) {
		panic("window: ring overflow")
	}
	r.buf[(r.head+r.n)%len(r.buf)] = s
	r.n++
}

func (r *ring) PopFront() Snapshot {
	if r.n == 0 {
		panic("window: pop from empty ring")
	}
	s := r.buf[r.head]
	r.buf[r.head] = Snapshot{}
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return s
}

func (r *ring) index(i int) int {
	if i < 0 || i >= r.n {
		panic("window: ring index out of range")
	}
	return (r.head + i) % len(r.buf)
}

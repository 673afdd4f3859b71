// Package durability runs the commit log writer on a dedicated background
// task and exposes a watchable, monotonically non-decreasing durable
// offset: the boundary between "committed in memory" and "survives a
// crash".
package durability

import (
	"context"
	"sync"

	"github.com/ridgedb/ridge/pkg/errkind"
)

// DurableOffset is a watchable handle onto the actor's durable offset,
// matching the original implementation's three-method shape: a live
// Get, a LastSeen that survives actor death, and a blocking WaitFor.
type DurableOffset struct {
	mu      sync.Mutex
	value   uint64
	hasSeen bool
	closed  bool
	changed chan struct{} // closed and replaced on every set/close transition
}

func newDurableOffset() *DurableOffset {
	return &DurableOffset{changed: make(chan struct{})}
}

// Get returns the current durable offset. ok is false if the actor has
// closed (callers should treat this as DurabilityExited) or if nothing
// has been made durable yet.
func (d *DurableOffset) Get() (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, false
	}
	return d.value, d.hasSeen
}

// LastSeen returns the last durable offset observed, even after the
// actor has closed — unlike Get, it never reports "exited".
func (d *DurableOffset) LastSeen() (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.hasSeen
}

// WaitFor blocks until the durable offset reaches or passes target, the
// context is cancelled, or the actor closes (returns ErrDurabilityExited).
func (d *DurableOffset) WaitFor(ctx context.Context, target uint64) error {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return errkind.ErrDurabilityExited
		}
		if d.hasSeen && d.value >= target {
			d.mu.Unlock()
			return nil
		}
		ch := d.changed
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *DurableOffset) set(v uint64) {
	d.mu.Lock()
	if d.closed || (d.hasSeen && v <= d.value) {
		d.mu.Unlock()
		return
	}
	d.value = v
	d.hasSeen = true
	ch := d.changed
	d.changed = make(chan struct{})
	d.mu.Unlock()
	close(ch)
}

func (d *DurableOffset) closeHandle() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	ch := d.changed
	d.changed = make(chan struct{})
	d.mu.Unlock()
	close(ch)
}

// See the file LICENSE for copyright and licensing information.

package fs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kurafs/kfuse/pkg/fuse"
	"golang.org/x/net/trace"
)

// A unit is one request being served.
type unit struct {
	hdr    *fuse.Header
	ctx    context.Context
	cancel context.CancelFunc
	reply  *replier
	tr     trace.Trace // nil unless Config.Trace

	interrupted int32
}

func (u *unit) wasInterrupted() bool {
	return atomic.LoadInt32(&u.interrupted) != 0
}

// inflight maps request IDs to running units so INTERRUPT and shutdown
// can reach them.
type inflight struct {
	mu    sync.Mutex
	units map[fuse.RequestID]*unit
}

func newInflight() *inflight {
	return &inflight{units: make(map[fuse.RequestID]*unit)}
}

// add registers u. It fails if the ID is already in flight.
func (t *inflight) add(u *unit) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.units[u.hdr.ID]; ok {
		return false
	}
	t.units[u.hdr.ID] = u
	return true
}

func (t *inflight) remove(u *unit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.units[u.hdr.ID] == u {
		delete(t.units, u.hdr.ID)
	}
}

// interrupt cancels the unit serving id. It reports whether one was
// found; the kernel may interrupt a request that already completed.
func (t *inflight) interrupt(id fuse.RequestID) bool {
	t.mu.Lock()
	u, ok := t.units[id]
	t.mu.Unlock()
	if !ok {
		return false
	}
	atomic.StoreInt32(&u.interrupted, 1)
	u.cancel()
	return true
}

// cancelAll cancels every unit and returns how many there were.
func (t *inflight) cancelAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range t.units {
		u.cancel()
	}
	return len(t.units)
}

func (t *inflight) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.units)
}

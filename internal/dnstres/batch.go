package dnstres

import (
	"net"
	"sync"
	"sync/atomic"
)

// Result is delivered to a batch's OnResolved callback for each host.
type Result struct {
	Host  string
	Addrs []net.IP
	Err   error
}

// Batch is a refcounted set of hostnames to resolve. A Batch is shared
// across every pool worker that pulls hosts out of it, so its cursor is
// guarded by its own mutex independent of the pool's list lock: workers
// hold the pool lock only long enough to find a nonempty batch, then
// release it before consuming from the batch itself.
type Batch struct {
	mu     sync.Mutex
	hosts  []string
	cursor int

	refs int32

	// OnResolved is invoked once per host, possibly from several pool
	// workers concurrently if callers do not serialize inside it.
	OnResolved func(Result)

	// OnDone is invoked exactly once, after the batch's refcount drops
	// to zero. This happens strictly after the last OnResolved call for
	// this batch returns, since the worker that processes the last host
	// is also the one that drops the final reference.
	OnDone func()

	prev, next *Batch
}

// NewBatch builds a Batch over hosts with a single initial reference,
// held by the caller until it calls Release or hands the batch to a
// Pool (which takes its own reference while queued).
func NewBatch(hosts []string, onResolved func(Result), onDone func()) *Batch {
	return &Batch{
		hosts:      append([]string(nil), hosts...),
		refs:       1,
		OnResolved: onResolved,
		OnDone:     onDone,
	}
}

// Retain adds a reference to b and returns b for chaining.
func (b *Batch) Retain() *Batch {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// Release drops a reference. When the refcount reaches zero, OnDone is
// invoked on the calling goroutine. Per design, Release never blocks
// waiting for other in-flight resolutions against this batch to finish
// draining the cursor first -- the last Release simply fires OnDone.
func (b *Batch) Release() {
	if atomic.AddInt32(&b.refs, -1) == 0 && b.OnDone != nil {
		b.OnDone()
	}
}

// nextHost pops the next unresolved host off the batch, or reports ok=false
// once the cursor has reached the end.
func (b *Batch) nextHost() (host string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cursor >= len(b.hosts) {
		return "", false
	}
	host = b.hosts[b.cursor]
	b.cursor++
	return host, true
}

// remaining reports whether the batch still has hosts past its cursor.
// It takes only the batch's own lock, not the pool list lock.
func (b *Batch) remaining() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor < len(b.hosts)
}

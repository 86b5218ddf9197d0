package eds

import (
	"net"
)

// Slot is one client connection accepted on a Service's listening
// socket, tracked by a worker's poll loop. Its Transition field is the
// only mutable state a callback needs to inspect or replace.
type Slot struct {
	conn  net.Conn
	fd    int
	flags Flag

	cur *Transition

	// Send buffers outbound bytes for a transition that can't write
	// everything in one shot; the worker drains it before invoking the
	// transition's own Writable callback.
	outbuf []byte

	// closeAfterDrain and closeErr hold a pending close requested while
	// outbuf was non-empty: the worker defers the actual close until
	// drainOutbuf empties the queue, so a Send immediately followed by a
	// Done result still writes every queued byte first.
	closeAfterDrain bool
	closeErr        error

	// UserData is opaque state a handler attaches to the slot (job id,
	// partially-parsed frame, etc.).
	UserData interface{}

	worker *worker
}

// Fd returns the slot's underlying file descriptor.
func (s *Slot) Fd() int { return s.fd }

// Conn returns the net.Conn backing this slot.
func (s *Slot) Conn() net.Conn { return s.conn }

// Send enqueues b to be written out on the next writable opportunity,
// the worker-driven analogue of the original's "send" transition helper.
func (s *Slot) Send(b []byte) {
	s.outbuf = append(s.outbuf, b...)
	s.worker.wantWrite(s)
}

// SetTransition replaces the slot's current Transition, re-registering
// poller interest to match its WantRead/WantWrite flags.
func (s *Slot) SetTransition(t *Transition) {
	s.cur = t
	s.worker.applyInterest(s)
}

// ExternalFD marks the slot's fd as not owned by the worker: Close will
// deregister it from the poller without calling close(2).
func (s *Slot) ExternalFD() {
	s.flags |= FlagExternalFD
}

// IsExternalFD reports whether the slot's fd is externally owned.
func (s *Slot) IsExternalFD() bool {
	return s.flags&FlagExternalFD != 0
}

// Close ends the slot immediately: Finalize runs with err and the
// connection is closed. Unlike a transition returning
// Result{Done: true}, it does not wait for output queued by Send to drain.
func (s *Slot) Close(err error) {
	s.worker.closeSlot(s, err)
}

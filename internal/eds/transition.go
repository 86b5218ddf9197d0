package eds

// Flag modifies how a Slot is scheduled after a transition runs.
type Flag uint8

const (
	// FlagNone applies no special scheduling.
	FlagNone Flag = 0

	// FlagDefer asks the worker to re-dispatch this slot again on the
	// current tick, without waiting for the poller to report it ready
	// -- used when a callback knows there's more buffered data to
	// process than one read syscall returned.
	FlagDefer Flag = 1 << iota

	// FlagExternalFD marks the slot's fd as not owned by the worker: on
	// Close the worker removes it from the poller but does not call
	// close(2) on it. Used for fds received via fdpass and handed
	// further along instead of consumed locally.
	FlagExternalFD
)

// Result is returned by a Transition callback to tell the worker what
// to do next.
type Result struct {
	// Next replaces the slot's current Transition. A nil Next keeps the
	// current one (used by callbacks that only partially handled an
	// event, e.g. a short write still wants Writable called again).
	Next *Transition

	// Flags modifies scheduling for this slot, see Flag.
	Flags Flag

	// Done, when true, ends the slot: Finalize is invoked and the slot
	// is removed from the worker.
	Done bool

	// Err is the terminal error passed to Finalize when Done is true.
	Err error
}

// Transition is the callback-as-state-transition pattern at the heart of
// eds: a Slot is always in exactly one Transition, and each callback
// decides the next one. This plays the role the original's swapped
// readable/writable function pointer pairs played, but as an explicit
// struct instead of raw pointers, so a Slot's state is always a single
// inspectable value.
type Transition struct {
	// Name identifies the transition for logging; purely cosmetic.
	Name string

	// Readable is invoked when the slot's fd is ready for reading.
	Readable func(s *Slot) Result

	// Writable is invoked when the slot's fd is ready for writing.
	Writable func(s *Slot) Result

	// Tick is invoked once per supervisor tick regardless of
	// readiness, for timeout bookkeeping; it may return Done to expire
	// a slot that hasn't made progress.
	Tick func(s *Slot) Result

	// Finalize runs exactly once when the slot ends, success or not.
	// It never runs concurrently with Readable/Writable/Tick for the
	// same slot, and it always runs eventually for a slot that was
	// ever handed a Transition.
	Finalize func(s *Slot, err error)

	// WantRead and WantWrite report which interest this transition needs registered on
	// the poller. A transition that only cares about writes (e.g. one
	// draining an outbound buffer) need not be woken on every readable
	// event.
	WantRead  bool
	WantWrite bool
}

package reaplan

// event is a poller-agnostic readiness notification.
type event struct {
	fd       int
	readable bool
	writable bool
	hup      bool
}

// poller multiplexes readiness across many fds. Its two implementations
// (epoll_linux.go for Linux, kqueue_bsd.go for BSD/Darwin) both satisfy this
// interface so plan.go never branches on GOOS directly.
type poller interface {
	// add registers fd for the given interest.
	add(fd int, readable, writable bool) error

	// modify changes fd's registered interest.
	modify(fd int, readable, writable bool) error

	// remove deregisters fd.
	remove(fd int) error

	// wait blocks up to timeoutMillis (negative: forever) and appends
	// ready events to buf, returning the populated slice.
	wait(timeoutMillis int, buf []event) ([]event, error)

	// close releases the poller's own fd.
	close() error
}

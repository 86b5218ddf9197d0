/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package eds

import (
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sebcat/yans-go/internal/errs"
	"github.com/sebcat/yans-go/internal/ylog"
)

// worker is one preforked process's single-threaded event loop, hosting
// every client slot accepted on its Service's listening socket. A
// worker never spawns goroutines to handle a slot's I/O: all callback
// dispatch happens synchronously from Run's poll loop, so "no
// preemption of in-progress callbacks" holds by construction.
type worker struct {
	svc  *Service
	ln   *net.TCPListener
	lnUx *net.UnixListener
	log  *ylog.Logger

	mu    sync.Mutex
	slots map[int]*Slot

	tick time.Duration

	acceptFd int
}

func newWorker(svc *Service, acceptFd int, log *ylog.Logger) *worker {
	return &worker{
		svc:      svc,
		log:      log,
		slots:    make(map[int]*Slot),
		tick:     svc.TickInterval,
		acceptFd: acceptFd,
	}
}

// Run accepts clients on w.acceptFd and drives every slot's transitions
// until stop is closed.
func (w *worker) Run(stop <-chan struct{}) error {
	if w.tick <= 0 {
		w.tick = time.Second
	}

	if err := unix.SetNonblock(w.acceptFd, true); err != nil {
		return errs.Wrap(err, errs.Fatal, "eds: set listener nonblocking")
	}

	if w.svc.NFDs > 0 {
		if err := raiseNoFileRlimit(w.svc.NFDs); err != nil {
			w.log.Entry(ylog.WarnLevel, "eds: could not raise RLIMIT_NOFILE").
				FieldAdd("service", w.svc.Name).
				FieldAdd("nfds", w.svc.NFDs).
				ErrorAdd(true, err).
				Log()
		}
	}

	lastTick := time.Now()

	for {
		select {
		case <-stop:
			return w.shutdown()
		default:
		}

		fds := w.pollSet()
		n, err := unix.Poll(fds, int(w.tick/time.Millisecond))
		if err != nil && err != unix.EINTR {
			return errs.Wrap(err, errs.Fatal, "eds: poll")
		}

		if n > 0 {
			w.dispatch(fds)
		}

		if time.Since(lastTick) >= w.tick {
			w.runTick()
			lastTick = time.Now()
		}
	}
}

func (w *worker) pollSet() []unix.PollFd {
	w.mu.Lock()
	defer w.mu.Unlock()

	fds := make([]unix.PollFd, 0, len(w.slots)+1)
	fds = append(fds, unix.PollFd{Fd: int32(w.acceptFd), Events: unix.POLLIN})

	for _, s := range w.slots {
		var events int16
		if s.cur != nil && s.cur.WantRead {
			events |= unix.POLLIN
		}
		if (s.cur != nil && s.cur.WantWrite) || len(s.outbuf) > 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(s.fd), Events: events})
	}

	return fds
}

func (w *worker) dispatch(fds []unix.PollFd) {
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}

		if int(pfd.Fd) == w.acceptFd {
			if pfd.Revents&unix.POLLIN != 0 {
				w.acceptOne()
			}
			continue
		}

		w.mu.Lock()
		s, ok := w.slots[int(pfd.Fd)]
		w.mu.Unlock()
		if !ok {
			continue
		}

		if pfd.Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
			w.closeSlot(s, errs.New(errs.Peer, "eds: peer hangup"))
			continue
		}

		if pfd.Revents&unix.POLLOUT != 0 {
			w.drainOutbuf(s)
		}

		if s.cur == nil {
			continue
		}

		w.runSlot(s, pfd.Revents&unix.POLLIN != 0, pfd.Revents&unix.POLLOUT != 0)
	}
}

func (w *worker) acceptOne() {
	if w.lnUx != nil {
		c, err := w.lnUx.Accept()
		if err != nil {
			return
		}
		w.addAcceptedClient(c)
		return
	}
	if w.ln != nil {
		c, err := w.ln.Accept()
		if err != nil {
			return
		}
		w.addAcceptedClient(c)
	}
}

// addAcceptedClient enforces the Service's NFDs ceiling (spec.md §3's
// "max concurrent fds per worker") on freshly accepted clients,
// rejecting -- accept-and-immediately-close -- past it, per §7's
// "too many concurrent clients -> reject". addClient itself stays
// uncapped: handlers also call it directly to attach side-channel fds
// (e.g. a libpcap selectable fd) that were never accepted off the
// listening socket and shouldn't compete for the same budget twice.
func (w *worker) addAcceptedClient(c net.Conn) {
	if w.svc.NFDs > 0 {
		w.mu.Lock()
		n := len(w.slots)
		w.mu.Unlock()

		if n >= w.svc.NFDs {
			w.log.Entry(ylog.WarnLevel, "eds: rejecting client, nfds ceiling reached").
				FieldAdd("service", w.svc.Name).
				FieldAdd("nfds", w.svc.NFDs).
				Log()
			c.Close()
			return
		}
	}

	w.addClient(c)
}

// raiseNoFileRlimit best-effort raises this process's RLIMIT_NOFILE
// soft limit to cover want fds plus headroom for the listening socket,
// stdio, and any side-channel fds a handler attaches, capped at
// whatever the hard limit already allows (a non-root process cannot
// raise it further).
func raiseNoFileRlimit(want int) error {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return errs.Wrap(err, errs.Resource, "eds: getrlimit RLIMIT_NOFILE")
	}

	target := uint64(want) + 16
	if rl.Max != unix.RLIM_INFINITY && target > rl.Max {
		target = rl.Max
	}
	if target <= rl.Cur {
		return nil
	}

	rl.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return errs.Wrap(err, errs.Resource, "eds: setrlimit RLIMIT_NOFILE")
	}
	return nil
}

// addClient registers an already-accepted connection as a new slot on
// the Service's initial transition. Handlers also use this to register
// a connection obtained some other way (e.g. fdpass), matching the
// original's add_client transition helper.
func (w *worker) addClient(c net.Conn) *Slot {
	fd, ok := fdOf(c)
	if !ok {
		c.Close()
		return nil
	}

	unix.SetNonblock(fd, true)

	s := &Slot{
		conn:   c,
		fd:     fd,
		worker: w,
		cur:    w.svc.Initial(),
	}

	w.mu.Lock()
	w.slots[fd] = s
	w.mu.Unlock()

	return s
}

func (w *worker) wantWrite(s *Slot) {
	// Interest is recomputed from pollSet() each loop iteration; nothing
	// to do here beyond making sure the slot is still tracked.
	w.mu.Lock()
	_, ok := w.slots[s.fd]
	w.mu.Unlock()
	if !ok {
		return
	}
}

func (w *worker) applyInterest(*Slot) {
	// Interest is recomputed from pollSet() each loop iteration.
}

func (w *worker) drainOutbuf(s *Slot) {
	if len(s.outbuf) == 0 {
		if s.closeAfterDrain {
			w.closeSlot(s, s.closeErr)
		}
		return
	}
	n, err := s.conn.Write(s.outbuf)
	if n > 0 {
		s.outbuf = s.outbuf[n:]
	}
	if err != nil {
		w.closeSlot(s, errs.Wrap(err, errs.Peer, "eds: write"))
		return
	}
	if len(s.outbuf) == 0 && s.closeAfterDrain {
		w.closeSlot(s, s.closeErr)
	}
}

func (w *worker) runSlot(s *Slot, readable, writable bool) {
	if s.cur == nil {
		return
	}

	var res Result
	ran := false

	if readable && s.cur.Readable != nil {
		res = s.cur.Readable(s)
		ran = true
	}
	if !ran && writable && s.cur.Writable != nil {
		res = s.cur.Writable(s)
		ran = true
	}
	if !ran {
		return
	}

	w.applyResult(s, res)

	for res.Flags&FlagDefer != 0 && s.cur != nil {
		res = s.cur.Readable(s)
		w.applyResult(s, res)
		if res.Flags&FlagDefer == 0 {
			break
		}
	}
}

func (w *worker) applyResult(s *Slot, res Result) {
	if res.Next != nil {
		s.cur = res.Next
	}
	if res.Done {
		if len(s.outbuf) > 0 {
			// Defer the close until the queued bytes have been written
			// out by a subsequent drainOutbuf, matching "send followed
			// by a transition to {read=NULL, write=NULL} closes the
			// slot only after all queued bytes are written".
			s.closeAfterDrain = true
			s.closeErr = res.Err
			return
		}
		w.closeSlot(s, res.Err)
	}
}

func (w *worker) runTick() {
	w.mu.Lock()
	slots := make([]*Slot, 0, len(w.slots))
	for _, s := range w.slots {
		slots = append(slots, s)
	}
	w.mu.Unlock()

	for _, s := range slots {
		if s.cur == nil || s.cur.Tick == nil {
			continue
		}
		res := s.cur.Tick(s)
		w.applyResult(s, res)
	}
}

func (w *worker) closeSlot(s *Slot, err error) {
	w.mu.Lock()
	if _, ok := w.slots[s.fd]; !ok {
		w.mu.Unlock()
		return
	}
	delete(w.slots, s.fd)
	w.mu.Unlock()

	if s.cur != nil && s.cur.Finalize != nil {
		s.cur.Finalize(s, err)
	}
	s.cur = nil

	if !s.IsExternalFD() {
		s.conn.Close()
	}
}

func (w *worker) shutdown() error {
	w.mu.Lock()
	slots := make([]*Slot, 0, len(w.slots))
	for _, s := range w.slots {
		slots = append(slots, s)
	}
	w.mu.Unlock()

	for _, s := range slots {
		w.closeSlot(s, errs.New(errs.Fatal, "eds: shutting down"))
	}

	return nil
}

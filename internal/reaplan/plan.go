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

package reaplan

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/sebcat/yans-go/internal/errs"
	"github.com/sebcat/yans-go/internal/ylog"
)

// Action tells the Plan what to do with a Conn after a callback runs.
type Action int

const (
	// ActionContinue keeps the connection registered for further events.
	ActionContinue Action = iota
	// ActionClose tears the connection down and invokes OnDone.
	ActionClose
)

// Target is produced by OnConnect to describe the next outbound
// connection the Plan should open. OnConnect is a pull-based producer:
// the Plan calls it whenever it has spare capacity, rather than the
// caller pushing targets into a channel, so backpressure is implicit in
// how often the Plan asks for more.
type Target struct {
	// Network is accepted for API compatibility but otherwise unused:
	// REAPLAN only ever opens TCP sockets, and the IPv4/IPv6 socket
	// family is derived from Address itself.
	Network   string
	Address   string
	TLSConfig *tls.Config
	Deadline  time.Duration
	UserData  interface{}
}

// Config configures a Plan.
type Config struct {
	// MaxConns bounds the number of simultaneously open connections.
	MaxConns int

	// TickInterval is the poll timeout and therefore the deadline-sweep
	// granularity.
	TickInterval time.Duration

	// ConnectsPerTick caps how many new outbound connects fillFromProducer
	// initiates within a single Run iteration, independent of spare
	// MaxConns capacity. Zero means no extra cap beyond MaxConns.
	ConnectsPerTick int

	// OnConnect is called with spare capacity available. ok=false marks
	// the producer exhausted: OnConnect is not called again, and Run
	// returns once every open connection has finished. There is no way to
	// report "nothing right now, ask again later".
	OnConnect func() (Target, bool)

	// OnReadable and OnWritable are invoked once the connection has
	// completed its connect/handshake phase and entered stateReady.
	OnReadable func(*Conn) Action
	OnWritable func(*Conn) Action

	// OnDone is invoked exactly once per connection, when it is removed
	// from the Plan, with the terminal error (nil on a clean close).
	OnDone func(*Conn, error)

	Log *ylog.Logger
}

// Plan drives a bounded set of outbound connections through connect,
// optional TLS handshake, and application I/O, using a single poller.
// It is not goroutine-safe to call Run from more than one goroutine, but
// it is safe to stop it via context cancellation from any goroutine.
type Plan struct {
	cfg Config
	p   poller

	mu    sync.Mutex
	conns map[int]*Conn

	exhausted bool
}

// New builds a Plan. The poller is created immediately so construction
// can fail fast on resource exhaustion.
func New(cfg Config) (*Plan, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 256
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Log == nil {
		cfg.Log = ylog.Default()
	}

	pl, err := newPoller()
	if err != nil {
		return nil, err
	}

	return &Plan{
		cfg:   cfg,
		p:     pl,
		conns: make(map[int]*Conn),
	}, nil
}

// Run drives the Plan's event loop until ctx is canceled or the
// producer is exhausted and every connection has finished.
func (pl *Plan) Run(ctx context.Context) error {
	defer pl.p.close()

	for {
		if ctx.Err() != nil {
			return pl.shutdown()
		}

		pl.fillFromProducer()

		pl.mu.Lock()
		n := len(pl.conns)
		pl.mu.Unlock()
		if n == 0 && pl.exhausted {
			return nil
		}

		events, err := pl.p.wait(int(pl.cfg.TickInterval/time.Millisecond), make([]event, 0, 64))
		if err != nil {
			return err
		}

		for _, e := range events {
			pl.handleEvent(e)
		}

		pl.sweepDeadlines()
	}
}

func (pl *Plan) fillFromProducer() {
	if pl.exhausted || pl.cfg.OnConnect == nil {
		return
	}

	limit := pl.cfg.ConnectsPerTick
	initiated := 0

	for {
		if limit > 0 && initiated >= limit {
			return
		}

		pl.mu.Lock()
		n := len(pl.conns)
		pl.mu.Unlock()
		if n >= pl.cfg.MaxConns {
			return
		}

		target, ok := pl.cfg.OnConnect()
		if !ok {
			pl.exhausted = true
			return
		}

		pl.dial(target)
		initiated++
	}
}

// dial opens a non-blocking connect and registers the resulting fd with
// the poller for writable notification, rather than calling a blocking
// net.Dialer.Dial on the Plan's single event-loop goroutine. A target
// Plan may have up to MaxConns connects outstanding at once, and a slow
// or firewalled target must never stall progress on the others -- the
// same reason REAPLAN's original C implementation arms a non-blocking
// socket and waits for connect completion via kqueue/epoll rather than
// blocking in connect(2). Completion is detected the same way: select
// the fd for writability, then read SO_ERROR once it fires.
//
// REAPLAN connects to targets dnstres has already resolved, so
// Target.Address must be a literal "ip:port"; resolving a hostname here
// would reintroduce the same blocking-call problem one layer up.
func (pl *Plan) dial(t Target) {
	sa, domain, err := resolveSockaddr(t.Address)
	if err != nil {
		pl.failConnect(t, err)
		return
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		pl.failConnect(t, errs.Wrap(err, errs.Resource, "reaplan: socket "+t.Address))
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		pl.failConnect(t, errs.Wrap(err, errs.Resource, "reaplan: set nonblocking "+t.Address))
		return
	}

	c := &Conn{
		fd:        fd,
		addr:      t.Address,
		UserData:  t.UserData,
		state:     stateConnecting,
		tlsConfig: t.TLSConfig,
	}
	if t.Deadline > 0 {
		c.deadline = time.Now().Add(t.Deadline)
	}

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		pl.failConnect(t, errs.Wrap(err, errs.Peer, "reaplan: connect "+t.Address))
		return
	}

	pl.mu.Lock()
	pl.conns[c.fd] = c
	pl.mu.Unlock()

	// Writable means "connect completed" while stateConnecting, whether
	// the kernel resolved it asynchronously or, as can happen for a
	// loopback target, connect(2) itself already returned success.
	pl.p.add(c.fd, false, true)
}

// failConnect reports an OnConnect target that could not even start
// dialing (bad address, exhausted sockets, synchronous connect
// failure), mirroring the original's ERR return from on_connect.
func (pl *Plan) failConnect(t Target, err error) {
	if pl.cfg.OnDone != nil {
		pl.cfg.OnDone(&Conn{UserData: t.UserData}, err)
	}
}

// resolveSockaddr parses a literal "ip:port" address into a unix
// Sockaddr and the matching socket domain, without ever invoking the
// resolver -- a hostname here is a caller bug, not something to block
// the event loop resolving.
func resolveSockaddr(address string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, 0, errs.Wrap(err, errs.Peer, "reaplan: split host:port "+address)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, errs.New(errs.Peer, "reaplan: target address is not a literal IP: "+address)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, errs.Wrap(err, errs.Peer, "reaplan: invalid port in "+address)
	}

	if ip4 := ip.To4(); ip4 != nil {
		var addr [4]byte
		copy(addr[:], ip4)
		return &unix.SockaddrInet4{Port: port, Addr: addr}, unix.AF_INET, nil
	}

	var addr [16]byte
	copy(addr[:], ip.To16())
	return &unix.SockaddrInet6{Port: port, Addr: addr}, unix.AF_INET6, nil
}

// completeConnect runs when a stateConnecting fd reports writable: the
// non-blocking connect(2) has resolved one way or the other. SO_ERROR
// carries the outcome exactly as a blocking connect's return value
// would have.
func (pl *Plan) completeConnect(c *Conn) {
	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		pl.closeConn(c, errs.Wrap(err, errs.Resource, "reaplan: getsockopt SO_ERROR "+c.addr))
		return
	}
	if errno != 0 {
		pl.closeConn(c, errs.Wrap(syscall.Errno(errno), errs.Peer, "reaplan: connect "+c.addr))
		return
	}

	file := os.NewFile(uintptr(c.fd), c.addr)
	conn, err := net.FileConn(file)
	if err != nil {
		pl.closeConn(c, errs.Wrap(err, errs.Resource, "reaplan: FileConn "+c.addr))
		return
	}
	c.raw = conn
	c.fileConn = file

	if c.tlsConfig != nil {
		c.state = stateHandshaking
		c.tlsConn = tls.Client(conn, c.tlsConfig)
		pl.p.modify(c.fd, true, true)
		return
	}

	c.state = stateReady
	pl.p.modify(c.fd, true, true)
}

func (pl *Plan) handleEvent(e event) {
	pl.mu.Lock()
	c, ok := pl.conns[e.fd]
	pl.mu.Unlock()
	if !ok {
		return
	}

	if e.hup && c.state != stateConnecting {
		pl.closeConn(c, errs.New(errs.Peer, "reaplan: connection reset"))
		return
	}

	if c.state == stateConnecting {
		pl.completeConnect(c)
		return
	}

	if c.state == stateHandshaking {
		pl.driveHandshake(c)
		return
	}

	action := ActionContinue
	if e.readable && pl.cfg.OnReadable != nil {
		action = pl.cfg.OnReadable(c)
	}
	if action == ActionContinue && e.writable && pl.cfg.OnWritable != nil {
		action = pl.cfg.OnWritable(c)
	}

	if action == ActionClose {
		pl.closeConn(c, nil)
	}
}

// driveHandshake steps a non-blocking TLS handshake. Go's crypto/tls
// does not expose SSL_get_error's WANT_READ/WANT_WRITE directly, so the
// equivalent is approximated with a zero-wait deadline on the
// underlying connection: a timeout means "need more I/O", which we
// treat the same way regardless of direction and simply keep both
// readable and writable interest registered until the handshake
// completes or fails outright.
func (pl *Plan) driveHandshake(c *Conn) {
	_ = c.raw.SetDeadline(time.Now())
	err := c.tlsConn.Handshake()
	_ = c.raw.SetDeadline(time.Time{})

	if err == nil {
		c.state = stateReady
		pl.p.modify(c.fd, true, true)
		return
	}

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return
	}

	pl.closeConn(c, errs.Wrap(err, errs.Peer, "reaplan: tls handshake"))
}

func (pl *Plan) sweepDeadlines() {
	now := time.Now()

	pl.mu.Lock()
	var expired []*Conn
	for _, c := range pl.conns {
		if !c.deadline.IsZero() && now.After(c.deadline) {
			expired = append(expired, c)
		}
	}
	pl.mu.Unlock()

	for _, c := range expired {
		pl.closeConn(c, errs.New(errs.Policy, "reaplan: deadline exceeded"))
	}
}

func (pl *Plan) closeConn(c *Conn, cause error) error {
	pl.mu.Lock()
	if _, ok := pl.conns[c.fd]; !ok {
		pl.mu.Unlock()
		return nil
	}
	delete(pl.conns, c.fd)
	pl.mu.Unlock()

	pl.p.remove(c.fd)

	var closeErr error
	if c.tlsConn != nil {
		closeErr = c.tlsConn.Close()
	} else if c.raw != nil {
		closeErr = c.raw.Close()
	} else {
		// Closed while still stateConnecting: completeConnect never ran,
		// so the fd was never wrapped in an os.File/net.Conn pair and
		// this is the only reference to it left to close.
		if err := unix.Close(c.fd); err != nil {
			closeErr = errs.Wrap(err, errs.Resource, "reaplan: close "+c.addr)
		}
	}
	if c.fileConn != nil {
		if err := c.fileConn.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}

	if pl.cfg.OnDone != nil {
		pl.cfg.OnDone(c, cause)
	}

	return closeErr
}

func (pl *Plan) shutdown() error {
	pl.mu.Lock()
	conns := make([]*Conn, 0, len(pl.conns))
	for _, c := range pl.conns {
		conns = append(conns, c)
	}
	pl.mu.Unlock()

	var merr *multierror.Error
	for _, c := range conns {
		if err := pl.closeConn(c, errs.New(errs.Fatal, "reaplan: shutdown")); err != nil {
			merr = multierror.Append(merr, errs.Wrap(err, errs.Resource, "reaplan: closing connection during shutdown"))
		}
	}
	return merr.ErrorOrNil()
}

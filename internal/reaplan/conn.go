package reaplan

import (
	"crypto/tls"
	"net"
	"os"
	"time"
)

// connState is the connection's current phase, a tagged-state-sum
// rather than a pair of swappable function pointers: each tick inspects
// State to decide whether to drive a plain read/write, a TLS handshake
// step, or neither.
type connState int

const (
	stateConnecting connState = iota
	stateHandshaking
	stateReady
	stateClosing
)

// Conn is one outbound connection tracked by a Plan.
type Conn struct {
	fd       int
	addr     string
	raw      net.Conn
	fileConn *os.File
	tlsConn  *tls.Conn

	// tlsConfig is set from Target.TLSConfig at dial time and consumed
	// once the non-blocking connect completes, when the handshake
	// actually begins.
	tlsConfig *tls.Config

	state    connState
	deadline time.Time

	// UserData is opaque state the owning handler attaches to the
	// connection (e.g. the in-flight job this socket belongs to).
	UserData interface{}

	wantWrite bool
}

// Deadline returns the connection's current close-by time.
func (c *Conn) Deadline() time.Time { return c.deadline }

// Fd returns the connection's underlying file descriptor, for callbacks
// that need it (e.g. to bind the scanner's socket to a job id).
func (c *Conn) Fd() int { return c.fd }

// Raw returns the net.Conn underlying this connection, pre-TLS.
func (c *Conn) Raw() net.Conn { return c.raw }

// TLS returns the *tls.Conn wrapping this connection, or nil if the
// connection was never promoted to TLS (OnConnect's tlsConfig == nil).
func (c *Conn) TLS() *tls.Conn { return c.tlsConn }

// IsTLS reports whether this connection negotiated TLS.
func (c *Conn) IsTLS() bool { return c.tlsConn != nil }

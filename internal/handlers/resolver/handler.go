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

package resolver

import (
	"net"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sys/unix"

	"github.com/sebcat/yans-go/internal/dnstres"
	"github.com/sebcat/yans-go/internal/eds"
	"github.com/sebcat/yans-go/internal/errs"
	"github.com/sebcat/yans-go/internal/fdpass"
	"github.com/sebcat/yans-go/internal/frame"
)

// Handler owns the resolver pool shared by every accepted client.
type Handler struct {
	pool *dnstres.Pool
}

// New builds a Handler backed by pool. The pool is shared across every
// Slot the returned InitialTransition is attached to.
func New(pool *dnstres.Pool) *Handler {
	return &Handler{pool: pool}
}

// InitialTransition is installed as the resolver Service's
// InitialTransition: every newly accepted client starts in read_fd,
// awaiting the fd it wants gzip-compressed resolution output written to.
func (h *Handler) InitialTransition() *eds.Transition {
	t := &eds.Transition{Name: "resolver:read_fd"}
	t.WantRead = true
	t.Readable = h.onReadFd
	return t
}

func unixFile(c net.Conn) (*os.File, error) {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return nil, errs.New(errs.Peer, "resolver: socket is not AF_UNIX")
	}
	f, err := uc.File()
	if err != nil {
		return nil, errs.Wrap(err, errs.Peer, "resolver: dup socket")
	}
	return f, nil
}

// onReadFd implements read_fd: the client's first message on a resolver
// connection carries no framed body, only the fd that will receive the
// gzip-compressed "host addr\n" lines.
func (h *Handler) onReadFd(s *eds.Slot) eds.Result {
	f, err := unixFile(s.Conn())
	if err != nil {
		return eds.Result{Done: true, Err: err}
	}
	defer f.Close()

	out, err := h.readOutputFd(f)
	if err != nil {
		return eds.Result{Done: true, Err: err}
	}

	next := &eds.Transition{Name: "resolver:read_req"}
	next.WantRead = true
	next.Readable = h.onReadReq(out)
	return eds.Result{Next: next}
}

// readOutputFd receives the output fd off conn via fdpass, applying the
// post-receive error code convention from the External Interfaces
// section.
func (h *Handler) readOutputFd(conn *os.File) (*os.File, error) {
	payload, out, err := fdpass.Recv(conn)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errs.New(errs.Peer, "resolver: no output fd received")
	}
	if code := fdpass.DecodeErrCode(payload); code != 0 {
		out.Close()
		return nil, errs.Newf(errs.Peer, "resolver: peer reported error %d alongside fd", code)
	}
	return out, nil
}

// onReadReq implements read_req followed immediately by send_closefd: a
// framed request names the hosts to resolve; the handler creates a
// socketpair, hands one end back to the client as its "resolution is
// complete" signal (the client observes EOF on it once the resolver
// closes its own end), keeps the other end alive only for its lifetime,
// and submits the batch to the resolver pool.
func (h *Handler) onReadReq(out *os.File) func(*eds.Slot) eds.Result {
	return func(s *eds.Slot) eds.Result {
		cf, err := unixFile(s.Conn())
		if err != nil {
			out.Close()
			return eds.Result{Done: true, Err: err}
		}
		defer cf.Close()

		if err := h.handleRequest(s.Conn(), cf, out); err != nil {
			return eds.Result{Done: true, Err: err}
		}

		next := &eds.Transition{Name: "resolver:read_fd"}
		next.WantRead = true
		next.Readable = h.onReadFd
		return eds.Result{Next: next}
	}
}

// handleRequest reads the framed host-list request off body, sends one
// end of a fresh socketpair back over cf as the send_closefd step, and
// submits the resulting batch against out. It owns out's lifetime on
// every path: on error it is closed before returning.
func (h *Handler) handleRequest(body net.Conn, cf *os.File, out *os.File) error {
	req, err := frame.Read(body)
	if err != nil {
		out.Close()
		return err
	}

	hostsRaw, _ := req["hosts"].([]interface{})
	hosts := make([]string, 0, len(hostsRaw))
	for _, raw := range hostsRaw {
		if hs, ok := raw.(string); ok {
			hosts = append(hosts, hs)
		}
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		out.Close()
		return errs.Wrap(err, errs.Resource, "resolver: socketpair")
	}
	clientSig := os.NewFile(uintptr(fds[0]), "resolver-signal-client")
	ownSig := os.NewFile(uintptr(fds[1]), "resolver-signal-own")

	sendErr := fdpass.Send(cf, clientSig, fdpass.EncodeErrCode(0))
	clientSig.Close()
	if sendErr != nil {
		ownSig.Close()
		out.Close()
		return sendErr
	}

	h.submitBatch(hosts, out, ownSig)
	return nil
}

// submitBatch wraps out in a gzip writer serialized by a mutex (the
// Go-idiomatic analogue of flockfile, since the pool's resolver
// goroutines may invoke OnResolved for this batch concurrently), submits
// the batch, and arranges for the gzip stream, out, and ownSig to be
// closed exactly once OnDone fires -- which signals EOF to the client's
// retained socketpair end only after every OnResolved write has landed.
func (h *Handler) submitBatch(hosts []string, out *os.File, ownSig *os.File) {
	gz := gzip.NewWriter(out)
	var mu sync.Mutex

	batch := dnstres.NewBatch(hosts, func(r dnstres.Result) {
		mu.Lock()
		defer mu.Unlock()

		if r.Err != nil {
			return
		}
		for _, a := range r.Addrs {
			gz.Write([]byte(r.Host + " " + a.String() + "\n"))
		}
	}, func() {
		mu.Lock()
		gz.Close()
		out.Close()
		ownSig.Close()
		mu.Unlock()
	})

	h.pool.Submit(batch)
	batch.Release()
}

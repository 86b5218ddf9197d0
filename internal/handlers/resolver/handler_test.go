package resolver

import (
	"io"
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sebcat/yans-go/internal/dnstres"
	"github.com/sebcat/yans-go/internal/fdpass"
	"github.com/sebcat/yans-go/internal/frame"
)

// socketpair builds a connected pair of AF_UNIX stream sockets as raw
// *os.File, the same shape the resolver handler deals with once it dups
// a Slot's underlying connection.
func socketpair(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	return os.NewFile(uintptr(fds[0]), "client"), os.NewFile(uintptr(fds[1]), "server")
}

// TestResolverHandlerFdRoundTrip exercises the read_fd / read_req /
// send_closefd sequence end to end: a client passes an output fd and a
// framed host-list request; the handler hands back a socketpair end the
// client can watch for EOF, and -- once the (deliberately unreachable)
// resolver pool finishes the batch -- a read on that signaling fd
// returns EOF.
func TestResolverHandlerFdRoundTrip(t *testing.T) {
	clientRaw, serverRaw := socketpair(t)
	defer clientRaw.Close()
	defer serverRaw.Close()

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer pr.Close()

	if err := fdpass.Send(clientRaw, pw, fdpass.EncodeErrCode(0)); err != nil {
		t.Fatalf("fdpass.Send: %v", err)
	}
	pw.Close()

	pool := dnstres.NewPool(dnstres.Config{
		Workers:     2,
		Nameservers: []string{"127.0.0.1:1"},
		Timeout:     50 * time.Millisecond,
	})
	defer pool.Close()

	h := New(pool)

	out, err := h.readOutputFd(serverRaw)
	if err != nil {
		t.Fatalf("readOutputFd: %v", err)
	}

	if err := frame.Write(clientRaw, frame.Bag{
		"hosts": []interface{}{"example.invalid", "www.example.invalid"},
	}); err != nil {
		t.Fatalf("frame.Write: %v", err)
	}

	serverConnIface, err := net.FileConn(serverRaw)
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	serverConn := serverConnIface.(*net.UnixConn)
	defer serverConn.Close()

	cf, err := serverConn.File()
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	if err := h.handleRequest(serverConn, cf, out); err != nil {
		cf.Close()
		t.Fatalf("handleRequest: %v", err)
	}
	cf.Close()

	payload, sigFd, err := fdpass.Recv(clientRaw)
	if err != nil {
		t.Fatalf("fdpass.Recv: %v", err)
	}
	if sigFd == nil {
		t.Fatal("expected a signaling fd, got nil")
	}
	defer sigFd.Close()
	if fdpass.DecodeErrCode(payload) != 0 {
		t.Fatalf("unexpected error code %d alongside signaling fd", fdpass.DecodeErrCode(payload))
	}

	type readResult struct {
		n   int
		err error
	}
	readDone := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 1)
		n, err := sigFd.Read(buf)
		readDone <- readResult{n, err}
	}()

	select {
	case r := <-readDone:
		if r.n != 0 || r.err != io.EOF {
			t.Fatalf("sigFd.Read = (%d, %v), want (0, io.EOF)", r.n, r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("signaling fd never reached EOF")
	}
}

package eds

import (
	"net"
	"testing"
	"time"

	"github.com/sebcat/yans-go/internal/ylog"
)

func TestWorkerEchoesThroughTransition(t *testing.T) {
	ln, err := net.Listen("unix", t.TempDir()+"/eds-test.sock")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	uln := ln.(*net.UnixListener)
	f, err := uln.File()
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	defer f.Close()

	finalized := make(chan error, 1)

	svc := &Service{
		Name:         "echo",
		TickInterval: 20 * time.Millisecond,
		InitialTransition: func() *Transition {
			t := &Transition{Name: "echo"}
			t.WantRead = true
			t.Readable = func(s *Slot) Result {
				buf := make([]byte, 64)
				n, err := s.Conn().Read(buf)
				if err != nil || n == 0 {
					return Result{Done: true, Err: err}
				}
				s.Send(buf[:n])
				return Result{}
			}
			t.Finalize = func(s *Slot, err error) {
				finalized <- err
			}
			return t
		},
	}

	w := newWorker(svc, int(f.Fd()), ylog.Default())
	w.lnUx = uln

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- w.Run(stop) }()

	c, err := net.Dial("unix", uln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 64)
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("echoed %q, want %q", buf[:n], "hi")
	}

	c.Close()

	select {
	case err := <-finalized:
		_ = err
	case <-time.After(2 * time.Second):
		t.Fatal("Finalize never ran after peer close")
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker.Run never returned after stop")
	}
}

func TestWorkerRejectsClientsPastNFDs(t *testing.T) {
	ln, err := net.Listen("unix", t.TempDir()+"/eds-nfds-test.sock")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	uln := ln.(*net.UnixListener)
	f, err := uln.File()
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	defer f.Close()

	svc := &Service{
		Name:         "capped",
		NFDs:         1,
		TickInterval: 20 * time.Millisecond,
		InitialTransition: func() *Transition {
			t := &Transition{Name: "capped"}
			t.WantRead = true
			t.Readable = func(s *Slot) Result {
				buf := make([]byte, 64)
				_, err := s.Conn().Read(buf)
				if err != nil {
					return Result{Done: true, Err: err}
				}
				return Result{}
			}
			return t
		},
	}

	w := newWorker(svc, int(f.Fd()), ylog.Default())
	w.lnUx = uln

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- w.Run(stop) }()
	defer func() {
		close(stop)
		<-done
	}()

	first, err := net.Dial("unix", uln.Addr().String())
	if err != nil {
		t.Fatalf("Dial first: %v", err)
	}
	defer first.Close()

	// Give the worker a chance to accept and register the first slot
	// before the second connect races it for the single available fd.
	var n int
	for i := 0; i < 50; i++ {
		w.mu.Lock()
		n = len(w.slots)
		w.mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n != 1 {
		t.Fatalf("first client never registered as a slot")
	}

	second, err := net.Dial("unix", uln.Addr().String())
	if err != nil {
		t.Fatalf("Dial second: %v", err)
	}
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n2, err := second.Read(buf)
	if n2 != 0 || err == nil {
		t.Fatalf("second client past NFDs should be rejected with EOF, got n=%d err=%v", n2, err)
	}

	w.mu.Lock()
	slotCount := len(w.slots)
	w.mu.Unlock()
	if slotCount != 1 {
		t.Fatalf("slots = %d after rejection, want 1 (only the first client)", slotCount)
	}
}

package reaplan

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func echoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(c)
		}
	}()
	return ln
}

func TestPlanConnectsAndReadsEcho(t *testing.T) {
	ln := echoServer(t)
	defer ln.Close()

	var targets int32 = 3
	var mu sync.Mutex
	sent := make(map[int]bool)
	var doneCount int32

	pl, err := New(Config{
		MaxConns:     4,
		TickInterval: 50 * time.Millisecond,
		OnConnect: func() (Target, bool) {
			if atomic.AddInt32(&targets, -1) < 0 {
				return Target{}, false
			}
			return Target{Network: "tcp", Address: ln.Addr().String(), Deadline: 2 * time.Second}, true
		},
		OnWritable: func(c *Conn) Action {
			mu.Lock()
			already := sent[c.Fd()]
			sent[c.Fd()] = true
			mu.Unlock()
			if !already {
				c.Raw().Write([]byte("ping"))
			}
			return ActionContinue
		},
		OnReadable: func(c *Conn) Action {
			buf := make([]byte, 16)
			n, _ := c.Raw().Read(buf)
			if n > 0 && string(buf[:n]) == "ping" {
				return ActionClose
			}
			return ActionContinue
		},
		OnDone: func(c *Conn, err error) {
			atomic.AddInt32(&doneCount, 1)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pl.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if atomic.LoadInt32(&doneCount) != 3 {
		t.Fatalf("doneCount = %d, want 3", doneCount)
	}
}

func TestFillFromProducerCapsConnectsPerTick(t *testing.T) {
	ln := echoServer(t)
	defer ln.Close()

	var targets int32 = 6

	pl, err := New(Config{
		MaxConns:        8,
		ConnectsPerTick: 2,
		TickInterval:    20 * time.Millisecond,
		OnConnect: func() (Target, bool) {
			if atomic.AddInt32(&targets, -1) < 0 {
				return Target{}, false
			}
			return Target{Network: "tcp", Address: ln.Addr().String(), Deadline: 2 * time.Second}, true
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pl.p.close()

	// A single call to fillFromProducer is one tick's worth of connect
	// initiation; it must stop at ConnectsPerTick even though MaxConns
	// and the producer both have more capacity/targets available.
	pl.fillFromProducer()

	pl.mu.Lock()
	n := len(pl.conns)
	pl.mu.Unlock()
	if n != 2 {
		t.Fatalf("fillFromProducer registered %d conns in one tick, want 2", n)
	}
}

func TestPlanClosesOnDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		// Accept once but never write, forcing the deadline sweep.
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	served := false
	var doneErr error
	done := make(chan struct{})

	pl, err := New(Config{
		MaxConns:     1,
		TickInterval: 20 * time.Millisecond,
		OnConnect: func() (Target, bool) {
			if served {
				return Target{}, false
			}
			served = true
			return Target{Network: "tcp", Address: ln.Addr().String(), Deadline: 100 * time.Millisecond}, true
		},
		OnDone: func(c *Conn, err error) {
			doneErr = err
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go pl.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadline sweep never closed the connection")
	}

	if doneErr == nil {
		t.Fatalf("expected a deadline-exceeded error, got nil")
	}
}

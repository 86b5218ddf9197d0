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

package dnstres

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/sebcat/yans-go/internal/errs"
	"github.com/sebcat/yans-go/internal/ylog"
)

// Pool is a fixed-size resolver worker pool draining a doubly-linked
// list of Batches. Workers are plain goroutines rather than OS threads,
// the idiomatic Go substitute for the original's pthread-based pool --
// the bounded worker count is what matters, not the scheduling unit.
type Pool struct {
	log *ylog.Logger

	mu       sync.Mutex
	nonempty *sync.Cond
	head     *Batch
	tail     *Batch
	closed   bool

	nameservers []string
	timeout     time.Duration

	wg sync.WaitGroup
}

// Config configures a Pool.
type Config struct {
	// Workers is the fixed number of resolver goroutines.
	Workers int

	// Nameservers are "host:port" resolver addresses. Empty falls back
	// to the system resolv.conf.
	Nameservers []string

	// Timeout bounds each individual query.
	Timeout time.Duration

	Log *ylog.Logger
}

// NewPool starts cfg.Workers resolver goroutines, each pulling hosts
// from the shared batch list until Close is called.
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = ylog.Default()
	}

	nameservers := cfg.Nameservers
	if len(nameservers) == 0 {
		if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
			for _, s := range conf.Servers {
				nameservers = append(nameservers, net.JoinHostPort(s, conf.Port))
			}
		}
	}

	p := &Pool{
		log:         cfg.Log,
		nameservers: nameservers,
		timeout:     cfg.Timeout,
	}
	p.nonempty = sync.NewCond(&p.mu)

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit appends b to the tail of the pool's batch list and wakes one
// waiting worker. The pool takes its own reference on b for the
// duration it is queued or being drained. If the pool is already closed,
// the reference is dropped synchronously, which fires b's OnDone without
// any OnResolved call -- matching the original's "adding a batch after
// done is set synchronously invokes its on_done" behavior.
func (p *Pool) Submit(b *Batch) {
	b.Retain()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		b.Release()
		return
	}

	if p.tail == nil {
		p.head, p.tail = b, b
	} else {
		b.prev = p.tail
		p.tail.next = b
		p.tail = b
	}
	p.mu.Unlock()

	p.nonempty.Signal()
}

// Close stops accepting new work, steals the entire batch list, and
// drops the pool's own reference on every still-queued batch
// immediately -- it does not wait for them to finish resolving. Per
// spec.md's dnstres contract, a batch a worker has not yet claimed
// fires its OnDone with zero OnResolved calls; a batch a worker is
// mid-resolve on still holds that worker's own reference, so it
// finishes its in-flight host and then, finding the pool closed and
// the list empty, exits without claiming further work from it. Close
// only waits for workers to notice the list is gone and return, which
// is bounded by whatever single lookup (if any) each was already
// running, never by the size of the backlog.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	var stolen []*Batch
	for b := p.head; b != nil; {
		next := b.next
		b.prev, b.next = nil, nil
		stolen = append(stolen, b)
		b = next
	}
	p.head, p.tail = nil, nil
	p.mu.Unlock()
	p.nonempty.Broadcast()

	// Unlinking every stolen batch happened above under p.mu, the same
	// lock a concurrent worker's unlinkIfDrained takes to touch these
	// same prev/next pointers; only the Release calls themselves (which
	// may run a caller's OnDone) happen outside the lock, since OnDone
	// must never run while holding it.
	for _, b := range stolen {
		b.Release()
	}

	p.wg.Wait()
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		b := p.claimBatch()
		if b == nil {
			return
		}

		host, ok := b.nextHost()
		if !ok {
			p.unlinkIfDrained(b)
			b.Release()
			continue
		}

		addrs, err := p.resolve(host)
		if b.OnResolved != nil {
			b.OnResolved(Result{Host: host, Addrs: addrs, Err: err})
		}

		p.unlinkIfDrained(b)
		b.Release()
	}
}

// claimBatch returns the head-of-list batch with at least one
// unresolved host, blocking until one is available or the pool is
// closed and drained. It retains a reference on the caller's behalf.
func (p *Pool) claimBatch() *Batch {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		for b := p.head; b != nil; b = b.next {
			if b.remaining() {
				return b.Retain()
			}
		}
		if p.closed {
			return nil
		}
		p.nonempty.Wait()
	}
}

// unlinkIfDrained removes a drained b from the list and drops the
// reference Submit took for it. A batch that is no longer linked (already
// unlinked by another worker, or stolen by Close) is left alone, so that
// reference is dropped exactly once.
func (p *Pool) unlinkIfDrained(b *Batch) {
	if b.remaining() {
		return
	}

	p.mu.Lock()
	if b.prev == nil && p.head != b {
		p.mu.Unlock()
		return
	}

	if b.prev != nil {
		b.prev.next = b.next
	} else if p.head == b {
		p.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	} else if p.tail == b {
		p.tail = b.prev
	}
	b.prev, b.next = nil, nil
	p.mu.Unlock()

	b.Release()
}

func (p *Pool) resolve(host string) ([]net.IP, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if len(p.nameservers) == 0 {
		addrs, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, errs.Wrap(err, errs.Peer, "dnstres: lookup "+host)
		}
		return addrs, nil
	}

	var out []net.IP
	c := new(dns.Client)
	c.Timeout = p.timeout

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true

		var lastErr error
		for _, ns := range p.nameservers {
			r, _, err := c.ExchangeContext(ctx, m, ns)
			if err != nil {
				lastErr = err
				continue
			}
			for _, ans := range r.Answer {
				switch rr := ans.(type) {
				case *dns.A:
					out = append(out, rr.A)
				case *dns.AAAA:
					out = append(out, rr.AAAA)
				}
			}
			lastErr = nil
			break
		}
		if lastErr != nil && len(out) == 0 {
			return nil, errs.Wrap(lastErr, errs.Peer, "dnstres: query "+host)
		}
	}

	if len(out) == 0 {
		return nil, errs.New(errs.Peer, "dnstres: no addresses for "+host)
	}

	return out, nil
}

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

import "time"

// Service describes one named worker pool: a Unix socket to listen on,
// how many processes to prefork, the per-process fd ceiling, and the
// Transition a freshly accepted Slot starts in.
type Service struct {
	// Name identifies the service in logs and the CLI (`-s service`).
	Name string

	// SocketPath is the Unix socket the service's workers share via
	// SO_REUSEPORT-style pre-bind-then-fork: the supervisor binds it
	// once and passes the listening fd to every forked worker.
	SocketPath string

	// NProcs is the number of preforked worker processes.
	NProcs int

	// NFDs caps how many accepted clients one worker process holds at
	// once; past it, a new client is accepted and closed immediately.
	// The worker also raises its RLIMIT_NOFILE soft limit to NFDs plus
	// headroom, up to the hard limit.
	NFDs int

	// TickInterval is this service's worker tick period.
	TickInterval time.Duration

	// InitialTransition builds the Transition a freshly accepted Slot
	// enters. Called once per Slot, so a handler can close over
	// per-connection state without a separate factory type.
	InitialTransition func() *Transition
}

// Initial returns the Transition a new Slot on this service starts in.
func (s *Service) Initial() *Transition {
	if s.InitialTransition == nil {
		return nil
	}
	return s.InitialTransition()
}

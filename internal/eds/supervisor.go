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
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/hashicorp/go-multierror"

	"github.com/sebcat/yans-go/internal/errs"
	"github.com/sebcat/yans-go/internal/ylog"
)

// ReexecEnv is the environment variable a reexeced worker process finds
// set to its service's name. Its presence is how a freshly exec'd
// process distinguishes "I am a prefork worker" from "I am the
// supervisor", since Go cannot safely fork(2) a multithreaded runtime
// and reuse the parent's goroutines in the child.
const ReexecEnv = "YANSD_EDS_WORKER"

// Supervisor binds each configured Service's socket once and preforks
// NProcs worker processes per service by re-executing the running
// binary with ReexecEnv set, handing the bound listener across the exec
// boundary as an inherited file descriptor.
type Supervisor struct {
	services []*Service
	log      *ylog.Logger

	mu       sync.Mutex
	children map[*Service][]*exec.Cmd
	listener map[string]*os.File
	shutdown bool
	wg       sync.WaitGroup
}

// NewSupervisor builds a Supervisor over services.
func NewSupervisor(services []*Service, log *ylog.Logger) *Supervisor {
	if log == nil {
		log = ylog.Default()
	}
	return &Supervisor{
		services: services,
		log:      log,
		children: make(map[*Service][]*exec.Cmd),
		listener: make(map[string]*os.File),
	}
}

// RunWorker is the entry point a reexeced process calls instead of
// Start when it finds ReexecEnv set in its environment. It looks up the
// named service, treats fd 3 (the first inherited ExtraFile) as the
// bound listening socket, and runs that service's worker loop until
// stop fires.
func RunWorker(serviceName string, services []*Service, log *ylog.Logger, stop <-chan struct{}) error {
	var svc *Service
	for _, s := range services {
		if s.Name == serviceName {
			svc = s
			break
		}
	}
	if svc == nil {
		return errs.New(errs.Fatal, "eds: unknown service in reexec: "+serviceName)
	}

	const inheritedFd = 3
	w := newWorker(svc, inheritedFd, log)

	if ln, err := net.FileListener(os.NewFile(inheritedFd, svc.SocketPath)); err == nil {
		if uln, ok := ln.(*net.UnixListener); ok {
			w.lnUx = uln
		}
	}

	return w.Run(stop)
}

// Start binds every service's socket and preforks its worker processes.
// It returns once all children have been spawned; it does not block
// waiting for them to exit (Stop signals them and waits for that).
func (sv *Supervisor) Start(ctx context.Context) error {
	var merr *multierror.Error

	for _, svc := range sv.services {
		ln, err := net.Listen("unix", svc.SocketPath)
		if err != nil {
			merr = multierror.Append(merr, errs.Wrap(err, errs.Fatal, "eds: listen "+svc.SocketPath))
			continue
		}

		uln := ln.(*net.UnixListener)
		f, err := uln.File()
		if err != nil {
			merr = multierror.Append(merr, errs.Wrap(err, errs.Fatal, "eds: listener File()"))
			continue
		}

		sv.mu.Lock()
		sv.listener[svc.Name] = f
		sv.mu.Unlock()

		for i := 0; i < svc.NProcs; i++ {
			if err := sv.spawn(svc, f); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
	}

	return merr.ErrorOrNil()
}

func (sv *Supervisor) spawn(svc *Service, ln *os.File) error {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", ReexecEnv, svc.Name))
	cmd.ExtraFiles = []*os.File{ln}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return errs.Wrap(err, errs.Fatal, "eds: spawning worker for "+svc.Name)
	}

	sv.mu.Lock()
	sv.children[svc] = append(sv.children[svc], cmd)
	sv.mu.Unlock()

	sv.log.Entry(ylog.InfoLevel, "worker spawned").
		FieldAdd("service", svc.Name).
		FieldAdd("pid", cmd.Process.Pid).
		Log()

	sv.wg.Add(1)
	go sv.reap(svc, cmd)

	return nil
}

// reap waits for a worker to exit and removes it from the bookkeeping
// table -- the Go analogue of reaping a dead child off SIGCHLD. Per
// spec.md's Process Model, a crashed worker is NOT respawned: "after
// forking all workers it waitpids and restarts crashed workers is *not*
// performed -- a worker exit propagates." The listening socket stays
// open (other workers of the same service, if any, keep racing accept
// on it); this worker's slot in the pool is simply gone. It is the only
// caller of cmd.Wait: Stop must never call it again concurrently, so it
// synchronizes with Stop via sv.wg instead.
func (sv *Supervisor) reap(svc *Service, cmd *exec.Cmd) {
	defer sv.wg.Done()

	err := cmd.Wait()

	sv.mu.Lock()
	children := sv.children[svc]
	for i, c := range children {
		if c == cmd {
			sv.children[svc] = append(children[:i], children[i+1:]...)
			break
		}
	}
	sv.mu.Unlock()

	sv.log.Entry(ylog.WarnLevel, "worker exited, not respawned").
		FieldAdd("service", svc.Name).
		FieldAdd("pid", cmd.Process.Pid).
		ErrorAdd(err != nil, err).
		Log()
}

// Stop marks the supervisor as shutting down, sends SIGTERM to every
// live worker and waits for them to exit. reap never respawns a worker,
// so no replacement can appear while Stop waits.
func (sv *Supervisor) Stop() error {
	sv.mu.Lock()
	sv.shutdown = true
	var cmds []*exec.Cmd
	for _, cs := range sv.children {
		cmds = append(cmds, cs...)
	}
	sv.mu.Unlock()

	var merr *multierror.Error
	for _, cmd := range cmds {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			merr = multierror.Append(merr, errs.Wrap(err, errs.Resource, "eds: signaling worker"))
		}
	}

	sv.wg.Wait()

	return merr.ErrorOrNil()
}

// Walk calls fn once per configured service with its configured NProcs
// (not the number of workers still alive), in the style of the
// teacher's pool.Walk, stopping early if fn returns false.
func (sv *Supervisor) Walk(fn func(name string, nprocs int) bool) {
	for _, svc := range sv.services {
		if !fn(svc.Name, svc.NProcs) {
			return
		}
	}
}

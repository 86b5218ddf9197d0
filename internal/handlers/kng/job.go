package kng

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sebcat/yans-go/internal/errs"
)

// jobTypePattern is the job-type whitelist from the Worker Handlers
// section: lowercase letters, digits, and hyphens only, so a type name
// can never smuggle a path separator into the PATH lookup that follows.
var jobTypePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateJobType reports whether jobType is safe to pass to PATH lookup
// and exec.
func ValidateJobType(jobType string) error {
	if jobType == "" || !jobTypePattern.MatchString(jobType) {
		return errs.Newf(errs.Policy, "kng: invalid job type %q", jobType)
	}
	return nil
}

// Status is a Job's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusStopped Status = "stopped"
)

// Job is one running or finished unit of work. Ids are real v4 UUIDs --
// the original's "DUMMY" literal job-id placeholder is exactly what
// REDESIGN FLAGS calls out as unresolved, and github.com/google/uuid
// closes that gap with collision-free ids.
type Job struct {
	ID   string
	Type string

	mu            sync.Mutex
	status        Status
	log           bytes.Buffer
	cmd           *exec.Cmd
	started       time.Time
	timeout       time.Duration
	stopRequested bool
	termSentAt    time.Time
	done          chan struct{}
}

// Runner tracks every Job submitted to this worker process and sweeps
// them on a fixed interval for timeout escalation, the Go-idiomatic
// substitute for the original's on_svc_tick-driven job list scan.
type Runner struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	sweepInt time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner builds an empty Runner and starts its background sweep loop.
func NewRunner() *Runner {
	r := &Runner{
		jobs:     make(map[string]*Job),
		sweepInt: 200 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.sweepLoop()
	return r
}

func (r *Runner) sweepLoop() {
	defer r.wg.Done()
	t := time.NewTicker(r.sweepInt)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

// sweep implements the on_svc_tick timeout escalation described for kng:
// a running job past its deadline is sent SIGTERM; one that already
// received SIGTERM and is still alive a sweep interval later is sent
// SIGKILL.
func (r *Runner) sweep() {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	now := time.Now()
	for _, j := range jobs {
		j.mu.Lock()
		cmd := j.cmd
		running := j.status == StatusRunning
		timedOut := j.timeout > 0 && now.Sub(j.started) >= j.timeout
		termSentAt := j.termSentAt
		j.mu.Unlock()

		if !running || cmd == nil || cmd.Process == nil {
			continue
		}

		if !termSentAt.IsZero() {
			if now.Sub(termSentAt) >= r.sweepInt {
				cmd.Process.Signal(syscall.SIGKILL)
			}
			continue
		}

		if timedOut {
			j.mu.Lock()
			j.stopRequested = true
			j.termSentAt = now
			j.mu.Unlock()
			cmd.Process.Signal(syscall.SIGTERM)
		}
	}
}

// Close stops the Runner's sweep loop without touching running jobs; use
// Shutdown to tear those down too.
func (r *Runner) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Shutdown implements graceful worker shutdown (scenario F): SIGTERM
// every running job, wait grace for them to exit on their own, SIGKILL
// any survivors, then wait for all of them to exit before returning.
func (r *Runner) Shutdown(grace time.Duration) {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	var live []*Job
	for _, j := range jobs {
		j.mu.Lock()
		cmd := j.cmd
		running := j.status == StatusRunning
		j.stopRequested = true
		j.mu.Unlock()
		if running && cmd != nil && cmd.Process != nil {
			cmd.Process.Signal(syscall.SIGTERM)
			live = append(live, j)
		}
	}

	time.Sleep(grace)

	for _, j := range live {
		j.mu.Lock()
		cmd := j.cmd
		running := j.status == StatusRunning
		j.mu.Unlock()
		if running && cmd != nil && cmd.Process != nil {
			cmd.Process.Signal(syscall.SIGKILL)
		}
	}

	var wg sync.WaitGroup
	for _, j := range live {
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			<-j.done
		}(j)
	}
	wg.Wait()

	r.Close()
}

// lockedLogWriter serializes writes into a Job's log buffer against
// concurrent reads from Log: cmd.Run copies stdout/stderr from its own
// goroutines, so the buffer can't be written through unsynchronized.
type lockedLogWriter struct {
	j *Job
}

func (w lockedLogWriter) Write(p []byte) (int, error) {
	w.j.mu.Lock()
	defer w.j.mu.Unlock()
	return w.j.log.Write(p)
}

// Start validates jobType against the whitelist, resolves it on PATH,
// and execs it with KNEGD_ID/KNEGD_TYPE/KNEGDP_* set in its environment
// per the External Interfaces section. args is an extra, non-spec
// convenience for job binaries that also want positional arguments.
func (r *Runner) Start(jobType string, args []string, params map[string]string, timeout time.Duration) (*Job, error) {
	if err := ValidateJobType(jobType); err != nil {
		return nil, err
	}

	binPath, err := exec.LookPath(jobType)
	if err != nil {
		return nil, errs.Wrap(err, errs.Policy, "kng: job type not found on PATH")
	}

	j := &Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		status:  StatusRunning,
		started: time.Now(),
		timeout: timeout,
		done:    make(chan struct{}),
	}

	env := append(os.Environ(),
		fmt.Sprintf("KNEGD_ID=%s", j.ID),
		fmt.Sprintf("KNEGD_TYPE=%s", jobType),
	)
	for k, v := range params {
		env = append(env, fmt.Sprintf("KNEGDP_%s=%s", strings.ToUpper(k), v))
	}

	cmd := exec.Command(binPath, args...)
	cmd.Env = env
	cmd.Stdout = lockedLogWriter{j: j}
	cmd.Stderr = lockedLogWriter{j: j}

	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(err, errs.Resource, "kng: starting job")
	}
	j.cmd = cmd

	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()

	go j.run()

	return j, nil
}

func (j *Job) run() {
	err := j.cmd.Wait()

	j.mu.Lock()
	switch {
	case j.stopRequested:
		j.status = StatusStopped
	case err != nil:
		j.status = StatusFailed
	default:
		j.status = StatusDone
	}
	j.mu.Unlock()

	close(j.done)
}

// Status returns j's current status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Log returns a snapshot of j's accumulated output.
func (j *Job) Log() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]byte(nil), j.log.Bytes()...)
}

// Stop requests early termination of a running job; it is a no-op on a
// job that already finished.
func (j *Job) Stop() {
	j.mu.Lock()
	cmd := j.cmd
	running := j.status == StatusRunning
	j.stopRequested = true
	j.mu.Unlock()

	if running && cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
	}
}

// Get returns the job named by id.
func (r *Runner) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

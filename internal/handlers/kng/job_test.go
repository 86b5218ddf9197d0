package kng

import (
	"testing"
	"time"
)

func mustStart(t *testing.T, r *Runner, jobType string, args []string, timeout time.Duration) *Job {
	t.Helper()
	j, err := r.Start(jobType, args, nil, timeout)
	if err != nil {
		t.Fatalf("Start(%q): %v", jobType, err)
	}
	return j
}

func TestStartProducesDistinctIDs(t *testing.T) {
	r := NewRunner()
	defer r.Close()
	j1 := mustStart(t, r, "true", nil, 0)
	j2 := mustStart(t, r, "true", nil, 0)

	if j1.ID == j2.ID {
		t.Fatalf("job ids collided: %s", j1.ID)
	}
	if j1.ID == "DUMMY" || j2.ID == "DUMMY" {
		t.Fatalf("job id literal placeholder leaked through")
	}
}

func TestJobReachesDoneStatus(t *testing.T) {
	r := NewRunner()
	defer r.Close()
	j := mustStart(t, r, "true", nil, 2*time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j.Status() == StatusDone {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job never reached StatusDone, last status=%s", j.Status())
}

func TestStopCancelsRunningJob(t *testing.T) {
	r := NewRunner()
	defer r.Close()
	j := mustStart(t, r, "sleep", []string{"5"}, 0)
	time.Sleep(50 * time.Millisecond)
	j.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j.Status() == StatusStopped {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job never reached StatusStopped, last status=%s", j.Status())
}

func TestJobTimeoutIsSignaledAndEscalated(t *testing.T) {
	r := NewRunner()
	defer r.Close()
	j := mustStart(t, r, "sleep", []string{"30"}, 100*time.Millisecond)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if j.Status() == StatusStopped {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job past its timeout never reached StatusStopped, last status=%s", j.Status())
}

func TestGetUnknownJobReturnsNotOK(t *testing.T) {
	r := NewRunner()
	defer r.Close()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatalf("Get on unknown id returned ok=true")
	}
}

func TestStartRejectsInvalidJobType(t *testing.T) {
	r := NewRunner()
	defer r.Close()
	cases := []string{"", "../etc/passwd", "bin/sh", "UPPER", "has space"}
	for _, jobType := range cases {
		if _, err := r.Start(jobType, nil, nil, 0); err == nil {
			t.Fatalf("Start(%q) succeeded, want whitelist rejection", jobType)
		}
	}
}

func TestShutdownKillsRunningJobs(t *testing.T) {
	r := NewRunner()
	j := mustStart(t, r, "sleep", []string{"30"}, 0)
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Shutdown(100 * time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown never returned")
	}

	if j.Status() != StatusStopped {
		t.Fatalf("job status after Shutdown = %s, want %s", j.Status(), StatusStopped)
	}
}

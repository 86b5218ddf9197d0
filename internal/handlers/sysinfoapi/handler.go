// Package sysinfoapi is the illustrative system-information handler: a
// client asks once per connection and gets back a frame with the host
// name, GOOS, GOARCH, CPU count and the worker's goroutine count; load
// and uptime are not reported.
package sysinfoapi

import (
	"runtime"

	"github.com/sebcat/yans-go/internal/eds"
	"github.com/sebcat/yans-go/internal/frame"
)

// Handler answers sysinfo queries.
type Handler struct {
	hostname string
}

// New builds a Handler reporting as hostname.
func New(hostname string) *Handler {
	return &Handler{hostname: hostname}
}

// InitialTransition is installed as the sysinfoapi Service's
// InitialTransition.
func (h *Handler) InitialTransition() *eds.Transition {
	t := &eds.Transition{Name: "sysinfoapi:awaiting-request"}
	t.WantRead = true
	t.Readable = h.onRequest
	return t
}

func (h *Handler) onRequest(s *eds.Slot) eds.Result {
	if _, err := frame.Read(s.Conn()); err != nil {
		return eds.Result{Done: true, Err: err}
	}

	resp := frame.Bag{
		"hostname":   h.hostname,
		"goos":       runtime.GOOS,
		"goarch":     runtime.GOARCH,
		"numcpu":     runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
	}

	if err := frame.Write(s.Conn(), resp); err != nil {
		return eds.Result{Done: true, Err: err}
	}

	return eds.Result{Done: true}
}

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

package kng

import (
	"time"

	"github.com/sebcat/yans-go/internal/eds"
	"github.com/sebcat/yans-go/internal/frame"
)

// Handler dispatches kng's four actions (start/status/stop/log) over
// the same frame-per-request connection.
type Handler struct {
	runner *Runner
}

// New builds a Handler over a fresh Runner.
func New() *Handler {
	return &Handler{runner: NewRunner()}
}

// InitialTransition is installed as the kng Service's InitialTransition.
func (h *Handler) InitialTransition() *eds.Transition {
	t := &eds.Transition{Name: "kng:awaiting-request"}
	t.WantRead = true
	t.Readable = h.onRequest
	return t
}

// Shutdown tears down every job still owned by this handler's Runner,
// per the graceful-shutdown scenario: SIGTERM all, wait grace, SIGKILL
// survivors, then wait for all of them to exit.
func (h *Handler) Shutdown(grace time.Duration) {
	h.runner.Shutdown(grace)
}

func (h *Handler) onRequest(s *eds.Slot) eds.Result {
	req, err := frame.Read(s.Conn())
	if err != nil {
		return eds.Result{Done: true, Err: err}
	}

	var resp frame.Bag
	switch req.String("action") {
	case "start":
		args := make([]string, 0)
		if raw, ok := req["args"].([]interface{}); ok {
			for _, a := range raw {
				if str, ok := a.(string); ok {
					args = append(args, str)
				}
			}
		}
		params := make(map[string]string)
		if raw, ok := req["params"].(map[string]interface{}); ok {
			for k, v := range raw {
				if str, ok := v.(string); ok {
					params[k] = str
				}
			}
		}
		timeout := time.Duration(req.Int("timeout_ms")) * time.Millisecond
		j, err := h.runner.Start(req.String("type"), args, params, timeout)
		if err != nil {
			resp = frame.Bag{"error": err.Error()}
			break
		}
		resp = frame.Bag{"job_id": j.ID, "status": string(StatusRunning)}

	case "status":
		j, ok := h.runner.Get(req.String("job_id"))
		if !ok {
			resp = frame.Bag{"error": "unknown job_id"}
			break
		}
		resp = frame.Bag{"job_id": j.ID, "status": string(j.Status())}

	case "stop":
		j, ok := h.runner.Get(req.String("job_id"))
		if !ok {
			resp = frame.Bag{"error": "unknown job_id"}
			break
		}
		j.Stop()
		resp = frame.Bag{"job_id": j.ID, "status": string(StatusStopped)}

	case "log":
		j, ok := h.runner.Get(req.String("job_id"))
		if !ok {
			resp = frame.Bag{"error": "unknown job_id"}
			break
		}
		resp = frame.Bag{"job_id": j.ID, "log": string(j.Log())}

	default:
		resp = frame.Bag{"error": "unknown action"}
	}

	if err := frame.Write(s.Conn(), resp); err != nil {
		return eds.Result{Done: true, Err: err}
	}

	return eds.Result{}
}

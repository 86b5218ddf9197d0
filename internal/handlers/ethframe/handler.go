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

// Package ethframe is the illustrative raw-ethernet-frame sender
// handler: a client sends a sequence of framed requests, each carrying a
// base64-encoded raw frame payload, and the handler passes each one to
// its Sender as it arrives, reporting a per-frame status back over the
// same connection.
package ethframe

import (
	"encoding/base64"

	"github.com/sebcat/yans-go/internal/eds"
	"github.com/sebcat/yans-go/internal/errs"
	"github.com/sebcat/yans-go/internal/frame"
)

// Sender is whatever can transmit a raw frame; tests plug in a recording
// fake. This module ships no Sender implementation: cmd/yansd builds the
// handler with a nil Sender, and every request then gets an error status.
type Sender interface {
	SendFrame(payload []byte) error
}

// Handler drains frame-send requests against a Sender.
type Handler struct {
	sender Sender
}

// New builds a Handler writing frames through sender.
func New(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// InitialTransition is installed as the ethframe Service's
// InitialTransition.
func (h *Handler) InitialTransition() *eds.Transition {
	t := &eds.Transition{Name: "ethframe:awaiting-request"}
	t.WantRead = true
	t.Readable = h.onRequest
	return t
}

func (h *Handler) onRequest(s *eds.Slot) eds.Result {
	req, err := frame.Read(s.Conn())
	if err != nil {
		return eds.Result{Done: true, Err: err}
	}

	raw, decodeErr := base64.StdEncoding.DecodeString(req.String("payload"))
	if decodeErr != nil {
		frame.Write(s.Conn(), frame.Bag{"error": "malformed payload"})
		return eds.Result{}
	}

	var resp frame.Bag
	if h.sender == nil {
		resp = frame.Bag{"error": "ethframe: no sender configured"}
	} else if err := h.sender.SendFrame(raw); err != nil {
		resp = frame.Bag{"error": errs.Wrap(err, errs.Peer, "ethframe: send").Error()}
	} else {
		resp = frame.Bag{"sent": len(raw)}
	}

	if err := frame.Write(s.Conn(), resp); err != nil {
		return eds.Result{Done: true, Err: err}
	}

	return eds.Result{}
}

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

// Package pcap is the illustrative packet-capture dispatcher handler:
// each worker tick drains at most pcapDispatchMax queued packets before
// yielding back to the poll loop, preserving the original's
// PCAP_DISPATCH_CNT ceiling so one very active capture source can't
// starve every other slot.
package pcap

import (
	"encoding/base64"
	"time"

	"github.com/sebcat/yans-go/internal/eds"
	"github.com/sebcat/yans-go/internal/frame"
)

// pcapDispatchMax is the per-event packet drain ceiling, preserved from
// the original's PCAP_DISPATCH_CNT.
const pcapDispatchMax = 64

// Packet is one captured frame plus its capture timestamp.
type Packet struct {
	Data []byte
	TS   time.Time
}

// Source yields queued packets up to max at a time; a production Source
// wraps an AF_PACKET or BPF capture handle, a test Source is a fixed
// slice.
type Source interface {
	Dispatch(max int) ([]Packet, error)
}

// Handler streams captured packets to a connected client as they
// arrive, honoring the dispatch ceiling on every Tick.
type Handler struct {
	src Source
}

// New builds a Handler draining src.
func New(src Source) *Handler {
	return &Handler{src: src}
}

// InitialTransition is installed as the pcap Service's
// InitialTransition: every Tick, it drains up to pcapDispatchMax
// packets and forwards them as frames.
func (h *Handler) InitialTransition() *eds.Transition {
	t := &eds.Transition{Name: "pcap:streaming"}
	t.Tick = h.onTick
	return t
}

func (h *Handler) onTick(s *eds.Slot) eds.Result {
	pkts, err := h.src.Dispatch(pcapDispatchMax)
	if err != nil {
		return eds.Result{Done: true, Err: err}
	}

	for _, p := range pkts {
		rec := frame.Bag{
			"ts":   p.TS.UnixNano(),
			"data": base64.StdEncoding.EncodeToString(p.Data),
		}
		if err := frame.Write(s.Conn(), rec); err != nil {
			return eds.Result{Done: true, Err: err}
		}
	}

	return eds.Result{}
}

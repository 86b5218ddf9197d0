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

package frame

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/sebcat/yans-go/internal/errs"
)

// MaxSize bounds a single frame's body, rejecting anything that would
// force an unbounded allocation on an untrusted read.
const MaxSize = 16 << 20

// Bag is the self-describing key/value body of a frame. Workers and
// yansd agree on well-known keys ("type", "status", "job_id", ...)
// without a shared generated schema, the same role ycl_msg plays for
// the original wire protocol.
type Bag map[string]interface{}

// String returns the string value of key, or "" if absent or not a
// string.
func (b Bag) String(key string) string {
	if v, ok := b[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Int returns the int value of key, or 0 if absent or not numeric.
func (b Bag) Int(key string) int {
	if v, ok := b[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return 0
}

// Read decodes one length-prefixed frame from r.
func Read(r io.Reader) (Bag, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errs.Wrap(err, errs.Peer, "frame: reading length prefix")
	}

	n := binary.BigEndian.Uint32(lenbuf[:])
	if n > MaxSize {
		return nil, errs.New(errs.Policy, "frame: body exceeds maximum size")
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errs.Wrap(err, errs.Peer, "frame: reading body")
	}

	var b Bag
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, errs.Wrap(err, errs.Peer, "frame: decoding body")
	}

	return b, nil
}

// Write encodes b as one length-prefixed frame to w.
func Write(w io.Writer, b Bag) error {
	body, err := json.Marshal(b)
	if err != nil {
		return errs.Wrap(err, errs.Unknown, "frame: encoding body")
	}
	if len(body) > MaxSize {
		return errs.New(errs.Policy, "frame: body exceeds maximum size")
	}

	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(len(body)))

	if _, err := w.Write(lenbuf[:]); err != nil {
		return errs.Wrap(err, errs.Peer, "frame: writing length prefix")
	}
	if _, err := w.Write(body); err != nil {
		return errs.Wrap(err, errs.Peer, "frame: writing body")
	}

	return nil
}

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

// Package errs provides a small code-carrying error type shared by every
// package in this module, modeled on the teacher's errors package: a code,
// a message, an optional parent chain, and a caller trace.
package errs

import (
	"fmt"
	"strconv"
)

// Code identifies a distinguishable error kind. Callers switch on
// Error.Code or Error.Is rather than matching message strings. A Code is
// not sent over the wire: frame error responses carry the message text.
type Code uint16

const (
	// Unknown is the fallback code for unclassified errors.
	Unknown Code = 0

	// Again signals a transient "would block" condition; it is never
	// logged as an error and never closes a slot/connection.
	Again Code = 1

	// Peer signals a protocol violation from a remote peer: malformed
	// frame, truncated fd message, premature EOF.
	Peer Code = 2

	// Resource signals local resource exhaustion: allocation failure,
	// pool saturation, too many concurrent clients.
	Resource Code = 3

	// Policy signals a policy violation: invalid job type, frame over
	// the configured ceiling.
	Policy Code = 4

	// Fatal signals a condition that should end the worker process:
	// listening socket vanished, poll failure other than EINTR.
	Fatal Code = 5
)

var names = map[Code]string{
	Unknown:  "unknown error",
	Again:    "would block",
	Peer:     "peer protocol violation",
	Resource: "resource exhausted",
	Policy:   "policy violation",
	Fatal:    "fatal",
}

// String returns the registered message for c, or its decimal value for
// an unregistered code.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// New builds an Error with code c, message msg, and optional parents.
func New(c Code, msg string, parents ...error) Error {
	return newErr(c, msg, parents...)
}

// Newf is New with fmt.Sprintf-style formatting of msg.
func Newf(c Code, format string, args ...interface{}) Error {
	return newErr(c, fmt.Sprintf(format, args...))
}

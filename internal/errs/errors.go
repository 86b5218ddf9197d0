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

package errs

import (
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Error is the error type returned across package boundaries in this
// module. It carries a Code, a message, an optional parent chain, and
// the caller frame where it was created.
type Error interface {
	error

	// Code returns the error's code.
	Code() Code

	// Is reports whether target (or any of its parents) carries code c.
	Is(c Code) bool

	// Add appends parents to this error's parent chain and returns the
	// receiver for chaining.
	Add(parents ...error) Error

	// HasParent reports whether this error has at least one parent.
	HasParent() bool

	// Parents returns the direct parent chain.
	Parents() []Error

	// Unwrap exposes the parent chain to errors.Is/errors.As.
	Unwrap() []error

	// Trace returns "file:line" of the frame that created the error.
	Trace() string
}

type ers struct {
	code    Code
	msg     string
	parents []Error
	frame   runtime.Frame
}

// Wrap builds an Error with code c whose parent is cause. The cause is
// first passed through github.com/pkg/errors.WithStack, so it is never
// an Error by the time newErr sees it: the parent keeps only the cause's
// message, with code Unknown and without the cause's stack. Trace
// reports the frame that called Wrap.
func Wrap(cause error, c Code, msg string) Error {
	if cause == nil {
		return newErr(c, msg)
	}
	return newErr(c, msg, pkgerrors.WithStack(cause))
}

func newErr(c Code, msg string, parents ...error) Error {
	e := &ers{
		code: c,
		msg:  msg,
	}

	if pc, file, line, ok := runtime.Caller(2); ok {
		e.frame = runtime.Frame{PC: pc, File: file, Line: line}
	}

	for _, p := range parents {
		if p == nil {
			continue
		}
		if pe, ok := p.(Error); ok {
			e.parents = append(e.parents, pe)
		} else {
			e.parents = append(e.parents, &ers{code: Unknown, msg: p.Error()})
		}
	}

	return e
}

func (e *ers) Code() Code { return e.code }

func (e *ers) Error() string {
	var b strings.Builder
	b.WriteString(e.msg)

	for _, p := range e.parents {
		b.WriteString(": ")
		b.WriteString(p.Error())
	}

	return b.String()
}

func (e *ers) Is(c Code) bool {
	if e.code == c {
		return true
	}
	for _, p := range e.parents {
		if p.Is(c) {
			return true
		}
	}
	return false
}

func (e *ers) Add(parents ...error) Error {
	for _, p := range parents {
		if p == nil {
			continue
		}
		if pe, ok := p.(Error); ok {
			e.parents = append(e.parents, pe)
		} else {
			e.parents = append(e.parents, &ers{code: Unknown, msg: p.Error()})
		}
	}
	return e
}

func (e *ers) HasParent() bool { return len(e.parents) > 0 }

func (e *ers) Parents() []Error {
	return append([]Error(nil), e.parents...)
}

func (e *ers) Unwrap() []error {
	errs := make([]error, 0, len(e.parents))
	for _, p := range e.parents {
		errs = append(errs, p)
	}
	return errs
}

func (e *ers) Trace() string {
	if e.frame.File == "" {
		return ""
	}
	return formatFrame(e.frame)
}

func formatFrame(f runtime.Frame) string {
	file := f.File
	if i := strings.LastIndex(file, "/"); i >= 0 {
		file = file[i+1:]
	}
	return file + ":" + itoa(f.Line)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

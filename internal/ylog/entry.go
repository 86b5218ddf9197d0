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

// Package ylog wraps logrus with a small builder-style Entry, the way the
// teacher's logger package does, so callers compose fields before
// deciding whether the entry is even worth emitting.
package ylog

import (
	"github.com/sirupsen/logrus"
)

// Level mirrors logrus levels so callers never import logrus directly.
type Level uint32

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

func (l Level) toLogrus() logrus.Level {
	return logrus.Level(l)
}

// Entry accumulates fields and an optional error/data payload before
// being checked against a minimum level and logged.
type Entry struct {
	logger  *logrus.Logger
	level   Level
	message string
	fields  logrus.Fields
	errs    []error
	data    interface{}
}

// NewEntry starts a new Entry at lvl with message msg.
func (l *Logger) NewEntry(lvl Level, msg string) *Entry {
	return &Entry{
		logger:  l.log,
		level:   lvl,
		message: msg,
		fields:  make(logrus.Fields),
	}
}

// FieldAdd sets a single field on the entry and returns it for chaining.
func (e *Entry) FieldAdd(key string, val interface{}) *Entry {
	e.fields[key] = val
	return e
}

// FieldMerge merges a whole field set into the entry.
func (e *Entry) FieldMerge(fields map[string]interface{}) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// DataSet attaches an arbitrary payload under the "data" field.
func (e *Entry) DataSet(v interface{}) *Entry {
	e.data = v
	return e
}

// ErrorAdd appends err to the entry's error list when cond is true and
// err is non-nil. It mirrors the teacher's "ErrorAdd(cond bool, err
// error)" guard so call sites can pass a fallible result unconditionally.
func (e *Entry) ErrorAdd(cond bool, err error) *Entry {
	if cond && err != nil {
		e.errs = append(e.errs, err)
	}
	return e
}

// Check reports whether the entry is at or above min and therefore worth
// logging; callers use this to skip expensive field computation.
func (e *Entry) Check(min Level) bool {
	return e.level <= min
}

// Log emits the entry through logrus. A PanicLevel entry panics after
// logging and a FatalLevel entry exits the process, matching logrus's
// own Panic/Fatal semantics.
func (e *Entry) Log() {
	if e.data != nil {
		e.fields["data"] = e.data
	}
	if len(e.errs) == 1 {
		e.fields["error"] = e.errs[0].Error()
	} else if len(e.errs) > 1 {
		msgs := make([]string, len(e.errs))
		for i, er := range e.errs {
			msgs[i] = er.Error()
		}
		e.fields["errors"] = msgs
	}

	entry := e.logger.WithFields(e.fields)

	switch e.level {
	case PanicLevel:
		entry.Panic(e.message)
	case FatalLevel:
		entry.Fatal(e.message)
	case ErrorLevel:
		entry.Error(e.message)
	case WarnLevel:
		entry.Warn(e.message)
	case InfoLevel:
		entry.Info(e.message)
	default:
		entry.Debug(e.message)
	}
}

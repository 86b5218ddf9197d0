package ylog

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEntryLogWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DebugLevel)

	l.Entry(InfoLevel, "worker started").
		FieldAdd("service", "resolver").
		FieldAdd("pid", 1234).
		Log()

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, buf.String())
	}
	if decoded["service"] != "resolver" {
		t.Fatalf("service field = %v, want resolver", decoded["service"])
	}
	if decoded["msg"] != "worker started" {
		t.Fatalf("msg field = %v, want %q", decoded["msg"], "worker started")
	}
}

func TestEntryErrorAddSkippedWhenConditionFalse(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DebugLevel)

	l.Entry(ErrorLevel, "ignored").ErrorAdd(false, errBoom).Log()

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := decoded["error"]; ok {
		t.Fatalf("error field present despite cond=false")
	}
}

func TestCheckComparesSeverity(t *testing.T) {
	e := &Entry{level: ErrorLevel}
	if !e.Check(DebugLevel) {
		t.Fatalf("ErrorLevel entry should pass a DebugLevel (verbose) threshold")
	}
	if e.Check(FatalLevel) {
		t.Fatalf("ErrorLevel entry should not pass a FatalLevel (strict) threshold")
	}
}

var errBoom = &boomErr{}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }

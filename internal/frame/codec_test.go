package frame

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Bag{"type": "job", "job_id": "abc-123", "count": 3.0}

	if err := Write(&buf, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.String("type") != "job" || got.String("job_id") != "abc-123" || got.Int("count") != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestReadRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	lenbuf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(lenbuf)

	if _, err := Read(&buf); err == nil {
		t.Fatalf("expected error for oversized frame length")
	}
}

func TestReadReturnsEOFOnEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Read(&buf); err != io.EOF {
		t.Fatalf("Read on empty stream = %v, want io.EOF", err)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	defer pw.Close()

	done := make(chan error, 1)
	go func() {
		done <- Write(pw, Bag{"type": "ping"})
	}()

	got, err := Read(pr)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got.String("type") != "ping" {
		t.Fatalf("got %+v", got)
	}
}

package ethframe

import "testing"

type fakeSender struct {
	sent [][]byte
	fail bool
}

func (f *fakeSender) SendFrame(payload []byte) error {
	if f.fail {
		return errBoom
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }

var errBoom error = &boomErr{}

func TestNewRetainsSender(t *testing.T) {
	s := &fakeSender{}
	h := New(s)
	if h.sender != s {
		t.Fatalf("New did not retain sender")
	}
}

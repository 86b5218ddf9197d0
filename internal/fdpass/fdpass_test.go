package fdpass

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	return os.NewFile(uintptr(fds[0]), "a"), os.NewFile(uintptr(fds[1]), "b")
}

func TestSendRecvPassesFD(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "fdpass")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer tmp.Close()

	if _, err := tmp.WriteString("hello"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	if err := Send(a, tmp, []byte("ok")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	payload, got, err := Recv(b)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	defer got.Close()

	if string(payload) != "ok" {
		t.Fatalf("payload = %q, want %q", payload, "ok")
	}
	if got == nil {
		t.Fatalf("expected a passed fd, got nil")
	}

	buf := make([]byte, 5)
	if _, err := got.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt on passed fd: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("passed fd content = %q, want %q", buf, "hello")
	}
}

func TestErrCodeRoundTrip(t *testing.T) {
	if got := DecodeErrCode(EncodeErrCode(0)); got != 0 {
		t.Fatalf("DecodeErrCode(EncodeErrCode(0)) = %d, want 0", got)
	}
	if got := DecodeErrCode(EncodeErrCode(-7)); got != -7 {
		t.Fatalf("DecodeErrCode(EncodeErrCode(-7)) = %d, want -7", got)
	}
	if got := DecodeErrCode(nil); got != 0 {
		t.Fatalf("DecodeErrCode(nil) = %d, want 0", got)
	}
}

func TestRecvWithoutAncillaryDataReturnsNilFD(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	if _, err := a.Write([]byte("status-only")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	payload, f, err := Recv(b)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if f != nil {
		defer f.Close()
		t.Fatalf("expected nil fd, got one")
	}
	if string(payload) != "status-only" {
		t.Fatalf("payload = %q", payload)
	}
}

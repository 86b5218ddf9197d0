package daemonctl

import "testing"

func TestCreatePidFileIsExclusive(t *testing.T) {
	dir := t.TempDir()

	pf, err := CreatePidFile(dir, "yansd")
	if err != nil {
		t.Fatalf("CreatePidFile: %v", err)
	}
	defer pf.Close()

	if _, err := CreatePidFile(dir, "yansd"); err == nil {
		t.Fatalf("expected second CreatePidFile to fail")
	}

	pid, err := ReadPid(dir, "yansd")
	if err != nil {
		t.Fatalf("ReadPid: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("ReadPid = %d, want positive pid", pid)
	}
}

func TestClosePidFileAllowsRecreate(t *testing.T) {
	dir := t.TempDir()

	pf, err := CreatePidFile(dir, "yansd")
	if err != nil {
		t.Fatalf("CreatePidFile: %v", err)
	}
	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	pf2, err := CreatePidFile(dir, "yansd")
	if err != nil {
		t.Fatalf("second CreatePidFile after Close: %v", err)
	}
	pf2.Close()
}

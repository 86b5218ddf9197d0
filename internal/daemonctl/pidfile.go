package daemonctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sebcat/yans-go/internal/errs"
)

// PidFile is an exclusively-created file holding the owning process's
// pid, removed on Close. A second process trying to create the same
// PidFile fails with errs.Resource, the same "only one supervisor per
// basepath" guarantee O_CREAT|O_EXCL gives the original.
type PidFile struct {
	path string
	f    *os.File
}

// CreatePidFile creates "<basepath>/<name>.pid" exclusively and writes
// the current process's pid into it.
func CreatePidFile(basePath, name string) (*PidFile, error) {
	path := filepath.Join(basePath, name+".pid")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errs.Wrap(err, errs.Resource, "daemonctl: pidfile already exists: "+path)
		}
		return nil, errs.Wrap(err, errs.Fatal, "daemonctl: creating pidfile: "+path)
	}

	if _, err := fmt.Fprintln(f, os.Getpid()); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errs.Wrap(err, errs.Fatal, "daemonctl: writing pidfile: "+path)
	}

	return &PidFile{path: path, f: f}, nil
}

// ReadPid returns the pid recorded in "<basepath>/<name>.pid", for a CLI
// client that needs to signal a running supervisor.
func ReadPid(basePath, name string) (int, error) {
	path := filepath.Join(basePath, name+".pid")

	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errs.Wrap(err, errs.Resource, "daemonctl: reading pidfile: "+path)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, errs.Wrap(err, errs.Peer, "daemonctl: malformed pidfile: "+path)
	}

	return pid, nil
}

// Close closes and removes the pidfile. It is idempotent.
func (p *PidFile) Close() error {
	if p == nil || p.f == nil {
		return nil
	}
	p.f.Close()
	err := os.Remove(p.path)
	p.f = nil
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(err, errs.Resource, "daemonctl: removing pidfile: "+p.path)
	}
	return nil
}

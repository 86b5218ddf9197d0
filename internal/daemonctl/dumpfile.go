package daemonctl

import (
	"os"
	"path/filepath"

	"github.com/sebcat/yans-go/internal/errs"
)

// OpenDumpFile opens (creating if needed) "<basepath>/<name>.log" for
// append. cmd/yansd points its logger at it unless run with -n, so the
// supervisor's log lines land on disk; the process's own stdout and
// stderr are not redirected.
func OpenDumpFile(basePath, name string) (*os.File, error) {
	path := filepath.Join(basePath, name+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.Wrap(err, errs.Fatal, "daemonctl: opening dump file: "+path)
	}

	return f, nil
}

package tracelog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// OpenRotatingFile opens a new log file under dir named for the process's
// start time (YYYYMMDD-HHMMSS.mmm.log) and installs it as the package
// logger's output. The timestamp is fixed at open time; there is no
// size-based rotation within a single daemon run.
func OpenRotatingFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s.log", now.Format("20060102-150405.000"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	SetOutput(log.New(f, "ftm: ", log.Ltime|log.Lmicroseconds))
	return f, nil
}

// Package tracelog provides a small target-gated logger for debugging the
// engine's background tasks: a package-level *log.Logger whose output is
// only produced for targets the caller has enabled.
package tracelog

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Target identifies one area of the engine that can be traced independently.
type Target int32

const (
	// Watcher traces filesystem-watcher intent handling.
	Watcher Target = 1 << iota
	// Scanner traces full-tree scan passes.
	Scanner
	// Index traces index load/mutate/save cycles.
	Index
	// Cleaner traces trim and orphan-GC runs.
	Cleaner
	// HTTP traces API request handling.
	HTTP
)

var (
	logger  atomic.Pointer[log.Logger]
	current atomic.Int32
)

// targetNames maps the lowercase names accepted by ParseTargets (and the
// FTM_TRACE env var cmd/ftmd reads) to their Target bit.
var targetNames = map[string]Target{
	"watcher": Watcher,
	"scanner": Scanner,
	"index":   Index,
	"cleaner": Cleaner,
	"http":    HTTP,
}

func init() {
	logger.Store(log.New(os.Stderr, "ftm: ", log.Ltime|log.Lmicroseconds))
}

// SetTarget sets the bitmask of targets whose Print calls actually emit.
func SetTarget(t Target) { current.Store(int32(t)) }

// ParseTargets parses the comma-separated target list accepted by the
// FTM_TRACE env var (e.g. "watcher,scanner" or "all") into a Target
// bitmask. An empty string yields the zero mask (tracing off, the
// package's default). Unknown names are reported as an error rather than
// silently ignored.
func ParseTargets(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if strings.EqualFold(raw, "all") {
		var all Target
		for _, t := range targetNames {
			all |= t
		}
		return all, nil
	}

	var mask Target
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		t, ok := targetNames[name]
		if !ok {
			return 0, fmt.Errorf("tracelog: unknown trace target %q", name)
		}
		mask |= t
	}
	return mask, nil
}

// SetOutput redirects the package logger, used by the daemon to splice in
// the rotating log file once a root has been checked out.
func SetOutput(l *log.Logger) { logger.Store(l) }

// Enabled reports whether t is part of the currently active target mask.
func (t Target) Enabled() bool {
	return current.Load()&int32(t) != 0
}

// Printf logs a formatted message if t is enabled.
func (t Target) Printf(format string, args ...any) {
	if t.Enabled() {
		logger.Load().Output(2, fmt.Sprintf(format, args...)) //nolint:errcheck
	}
}

// Print logs a message if t is enabled.
func (t Target) Print(args ...any) {
	if t.Enabled() {
		logger.Load().Output(2, fmt.Sprint(args...)) //nolint:errcheck
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// cmdLogs prints the daemon's newest log file in full. There is no dedicated
// /api/logs route; since ftm and ftmd share a host by construction (the
// API only ever binds 127.0.0.1), the client instead asks /api/health for
// the watched directory and reads <dir>/.ftm/logs/ directly off local
// disk.
func cmdLogs(args []string) error {
	var health struct {
		Status   string `json:"status"`
		WatchDir string `json:"watch_dir"`
	}
	if err := request("GET", "/api/health", nil, &health); err != nil {
		return err
	}
	if health.WatchDir == "" {
		return errors.New("ftmd has no directory checked out")
	}

	logsDir := filepath.Join(health.WatchDir, ".ftm", "logs")
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("no log files found")
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })
	latest := filepath.Join(logsDir, entries[0].Name())

	f, err := os.Open(latest)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(os.Stdout, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "-- %s --\n", latest)
	return nil
}

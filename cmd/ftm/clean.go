package main

import "fmt"

func cmdClean(args []string) error {
	var report struct {
		EntriesTrimmed int   `json:"entries_trimmed"`
		TrimBytesFreed int64 `json:"trim_bytes_freed"`
		OrphansRemoved int   `json:"orphans_removed"`
		GCBytesFreed   int64 `json:"gc_bytes_freed"`
	}
	if err := request("POST", "/api/clean", nil, &report); err != nil {
		return err
	}
	fmt.Printf("trimmed %d entries (%d bytes freed), removed %d orphans (%d bytes freed)\n",
		report.EntriesTrimmed, report.TrimBytesFreed, report.OrphansRemoved, report.GCBytesFreed)
	return nil
}

package main

import (
	"errors"
	"fmt"
	"net/url"
)

func cmdHistory(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ftm history <file>")
	}

	var resp struct {
		Entries []struct {
			Timestamp string `json:"timestamp"`
			Op        string `json:"op"`
			Checksum  string `json:"checksum"`
			Size      int64  `json:"size"`
		} `json:"entries"`
	}
	path := "/api/history?file=" + url.QueryEscape(args[0])
	if err := request("GET", path, nil, &resp); err != nil {
		return err
	}

	for _, e := range resp.Entries {
		checksum := e.Checksum
		if len(checksum) > 12 {
			checksum = checksum[:12]
		}
		fmt.Printf("%s  %-8s %-12s %d bytes\n", e.Timestamp, e.Op, checksum, e.Size)
	}
	return nil
}

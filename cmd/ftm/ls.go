package main

import "fmt"

func cmdList(args []string) error {
	includeDeleted := false
	for _, a := range args {
		if a == "--include-deleted" {
			includeDeleted = true
		}
	}

	path := "/api/files"
	if includeDeleted {
		path += "?include_deleted=true"
	}

	var resp struct {
		Files []struct {
			File         string `json:"file"`
			EntryCount   int    `json:"entry_count"`
			LastOp       string `json:"last_op"`
			LastChecksum string `json:"last_checksum"`
			Deleted      bool   `json:"deleted"`
		} `json:"files"`
	}
	if err := request("GET", path, nil, &resp); err != nil {
		return err
	}

	for _, f := range resp.Files {
		marker := " "
		if f.Deleted {
			marker = "D"
		}
		checksum := f.LastChecksum
		if len(checksum) > 12 {
			checksum = checksum[:12]
		}
		fmt.Printf("%s %-40s %-8s %s (%d entries)\n", marker, f.File, f.LastOp, checksum, f.EntryCount)
	}
	return nil
}

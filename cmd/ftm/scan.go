package main

import "fmt"

func cmdScan(args []string) error {
	var report struct {
		FilesScanned int `json:"FilesScanned"`
		Created      int `json:"Created"`
		Modified     int `json:"Modified"`
		Deleted      int `json:"Deleted"`
		Unchanged    int `json:"Unchanged"`
		Skipped      int `json:"Skipped"`
	}
	if err := request("POST", "/api/scan", nil, &report); err != nil {
		return err
	}
	fmt.Printf("scanned %d: %d created, %d modified, %d deleted, %d unchanged, %d skipped\n",
		report.FilesScanned, report.Created, report.Modified, report.Deleted, report.Unchanged, report.Skipped)
	return nil
}

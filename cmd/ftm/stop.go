package main

import "fmt"

func cmdStop(args []string) error {
	if err := request("POST", "/api/shutdown", nil, nil); err != nil {
		return err
	}
	fmt.Println("ftmd is shutting down")
	return nil
}

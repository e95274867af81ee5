package main

import (
	"errors"
	"fmt"
)

func cmdRestore(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: ftm restore <file> <checksum>")
	}

	body := map[string]string{"file": args[0], "checksum_prefix": args[1]}
	if err := request("POST", "/api/restore", body, nil); err != nil {
		return err
	}
	fmt.Printf("restored %s to %s\n", args[0], args[1])
	return nil
}

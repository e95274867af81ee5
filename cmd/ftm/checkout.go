package main

import (
	"errors"
	"fmt"
	"path/filepath"
)

func cmdCheckout(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ftm checkout <dir>")
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	var resp struct {
		Directory string `json:"directory"`
	}
	if err := request("POST", "/api/checkout", map[string]string{"directory": abs}, &resp); err != nil {
		return err
	}
	fmt.Printf("checked out %s\n", resp.Directory)
	return nil
}

package main

import "fmt"

func cmdVersion(args []string) error {
	fmt.Println(bin, version)
	return nil
}

package main

import (
	"errors"
	"fmt"
	"net/url"
)

func cmdConfig(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: ftm config get <key> | ftm config set <key> <value>")
	}

	switch args[0] {
	case "get":
		var resp struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		path := "/api/config?key=" + url.QueryEscape(args[1])
		if err := request("GET", path, nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Value)
		return nil

	case "set":
		if len(args) != 3 {
			return errors.New("usage: ftm config set <key> <value>")
		}
		body := map[string]string{"key": args[1], "value": args[2]}
		if err := request("POST", "/api/config", body, nil); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[1], args[2])
		return nil

	default:
		return errors.New("usage: ftm config get <key> | ftm config set <key> <value>")
	}
}

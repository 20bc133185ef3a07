// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "fetch GET /status/indexers from a running indexerd and print it",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: "http://localhost:8080", Usage: "base URL of a running indexerd's query API"},
	},
	Action: func(c *cli.Context) error {
		return runStatus(c.String("addr"))
	},
}

func runStatus(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/status/indexers")
	if err != nil {
		return fmt.Errorf("querying %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", addr, resp.Status)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	pretty, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

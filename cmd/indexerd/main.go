// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// indexerd is the chain indexer's single deployable binary: it wires
// the config, store, chain clients, decoders, C3/C4 indexers, C6
// payment matcher, C7 price oracle, C8 valuation engine, C9 scheduler
// and C10 query API together and runs them, the same single-process
// "everything behind one daemon, one admin surface" shape evm-node
// uses for its own subcommand set.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

const clientIdentifier = "indexerd"

// shutdownTimeout bounds how long serve waits for the HTTP server to
// drain in-flight requests on SIGINT/SIGTERM before returning.
const shutdownTimeout = 10 * time.Second

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "hedgeledger chain indexer — ingestion, payment matching, valuation, and query API",
	Version: "1.0.0",
}

func init() {
	app.Commands = []*cli.Command{
		serveCommand,
		migrateCommand,
		backfillCommand,
		statusCommand,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// chainsFlag is the flag every subcommand that touches the store or
// the chain clients needs; kept in one place so `--chains` parses the
// same way for serve/backfill. Everything else is
// sourced from the environment per internal/config.Load, matching how
// evm-node leans on github.com/luxfi/geth/cmd/utils's shared flag sets
// rather than redeclaring the same flags per subcommand.
var chainsFlag = &cli.StringFlag{Name: "chains", Usage: "comma-separated chain ids to operate on, e.g. 53935,43114", Required: true}

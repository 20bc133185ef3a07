// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/hedgeledger/chainindexer/internal/config"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/store"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "apply every pending schema migration and exit",
	Action: func(c *cli.Context) error {
		cfg, err := config.Load(nil, nil)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if _, err := logging.Init(logging.Config{Level: cfg.LogLevel}); err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		log := logging.New("component", "indexerd-migrate")

		st, err := store.Open(c.Context, cfg.DatabaseURL, cfg.FallbackDatabaseURL)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		if err := st.Migrate(c.Context); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		log.Info("migrations applied")
		return nil
	},
}

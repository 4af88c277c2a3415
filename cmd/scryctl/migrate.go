package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var migrateCommands = []string{"up", "down", "reset", "status", "version"}

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <" + strings.Join(migrateCommands, "|") + ">",
		Short:     "Run database schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrateCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := args[0]
			cfg, err := c.config()
			if err != nil {
				return err
			}
			log, err := c.logger(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := c.env.openDB(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := c.env.migrate(ctx, db, command, log); err != nil {
				return fmt.Errorf("migrate %s: %w", command, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", command)
			return nil
		},
	}
}

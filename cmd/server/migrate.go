package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/pps/internal/config"
	"github.com/example/pps/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database if needed and apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Read()

			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

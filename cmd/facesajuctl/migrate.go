package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/facesaju/internal/migration"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the authoritative database schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSQL(cmd, func(conn *gorm.DB) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.Rollback(sqlDB, steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSQL(cmd, func(conn *gorm.DB) error {
					sqlDB, err := conn.DB()
					if err != nil {
						return err
					}
					if err := migration.RunMigrations(sqlDB); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSQL(cmd, func(conn *gorm.DB) error {
					sqlDB, err := conn.DB()
					if err != nil {
						return err
					}
					version, dirty, ok, err := migration.Version(sqlDB)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func withSQL(cmd *cobra.Command, fn func(conn *gorm.DB) error) error {
	var conn *gorm.DB
	return runWith(cmd.Context(), nil, func(context.Context) error {
		return fn(conn)
	}, &conn)
}

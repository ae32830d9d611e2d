package main

import (
	"database/sql"
	"fmt"
	"os"

	"idle-economy/internal/config"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func newSQLCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Raw SQL against the PostgreSQL database",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "apply <file>...",
		Short: "Execute SQL migration files in order",
		Long: `Execute each file in its own transaction, stopping at the first
failure. Only the postgres driver is supported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("sql apply needs DB_DRIVER=postgres, got %q", cfg.Database.Driver)
			}

			db, err := sql.Open("postgres", cfg.Database.URL())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			for _, path := range args {
				if err := applyFile(cmd, db, path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", path)
			}
			return nil
		},
	})
	return cmd
}

func applyFile(cmd *cobra.Command, db *sql.DB, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	tx, err := db.BeginTx(cmd.Context(), nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(cmd.Context(), string(body)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute %s: %w", path, err)
	}
	return tx.Commit()
}

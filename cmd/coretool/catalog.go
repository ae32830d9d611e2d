package main

import (
	"fmt"

	"idle-economy/internal/catalog"
	"idle-economy/internal/database"

	"github.com/spf13/cobra"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate or seed the upgrade, event and commission catalog",
	}
	cmd.AddCommand(newCatalogValidateCommand())
	cmd.AddCommand(newCatalogSeedCommand())
	return cmd
}

func newCatalogValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a catalog file without touching the database",
		Long: `Parse and validate a catalog file. With no file the embedded
default catalog is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			c, err := catalog.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog ok: %d upgrades, %d events, %d commissions\n",
				len(c.Upgrades), len(c.Events), len(c.Commissions))
			return nil
		},
	}
}

func newCatalogSeedCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the catalog into the template tables",
		Long: `Upsert every template by slug. Templates missing from the catalog
are deactivated, never deleted, so existing player rows keep resolving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := connect()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Catalog.Path
			}
			c, err := catalog.Load(file)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			res, err := catalog.NewStore(db, cfg.Market.DefaultCommission).Seed(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d upgrades, %d events, %d commissions\n",
				res.Upgrades, res.Events, res.Commissions)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file (defaults to CATALOG_PATH, then the embedded catalog)")
	return cmd
}

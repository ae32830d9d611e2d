package main

import (
	"fmt"
	"strconv"

	"idle-economy/internal/repository"

	"github.com/spf13/cobra"
)

func newPlayerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Per-player maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge <player-id>",
		Short: "Remove a player's progression, events and holdings",
		Long: `Cancel the player's active offers, returning reserved stock, then
delete their upgrades, events, settings, balances and items. Ledger lines
and market history are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePlayerID(args[0])
			if err != nil {
				return err
			}
			_, db, err := connect()
			if err != nil {
				return err
			}
			if err := repository.NewRepository(db).PurgePlayer(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "player %d purged\n", id)
			return nil
		},
	})
	return cmd
}

func parsePlayerID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid player id %q", s)
	}
	return uint(id), nil
}

package main

import (
	"fmt"

	"idle-economy/internal/auth"
	"idle-economy/internal/config"

	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "token <player-id>",
		Short: "Issue an API token for a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePlayerID(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			role := ""
			if admin {
				role = auth.RoleAdmin
			}
			token, err := issuer.GenerateToken(id, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	return cmd
}

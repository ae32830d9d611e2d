package main

import (
	"errors"
	"fmt"
	"log/slog"

	"idle-economy/internal/catalog"
	"idle-economy/internal/jobs"
	"idle-economy/internal/repository"
	"idle-economy/internal/services"

	"github.com/spf13/cobra"
)

func newSweepCommand() *cobra.Command {
	var skipEvents, skipOffers bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the scheduled jobs once",
		Long: `Expire overdue market offers and evaluate events for every player
seen within JOBS_ACTIVE_WINDOW, exactly as the server scheduler does.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := connect()
			if err != nil {
				return err
			}
			repo := repository.NewRepository(db)
			store := catalog.NewStore(db, cfg.Market.DefaultCommission)
			logger := slog.Default()

			var errs []error
			if !skipOffers {
				n, err := jobs.NewOfferExpiryJob(services.NewMarketService(repo, store, logger)).Run(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d offers\n", n)
				errs = append(errs, err)
			}
			if !skipEvents {
				job := jobs.NewEvaluateJob(repo, services.NewEventService(repo, store, logger), cfg.Jobs.ActiveWindow, logger)
				n, err := job.Run(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "evaluated %d players\n", n)
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&skipEvents, "skip-events", false, "do not evaluate events")
	cmd.Flags().BoolVar(&skipOffers, "skip-offers", false, "do not expire offers")
	return cmd
}

package main

import (
	"fmt"
	"log/slog"
	"time"

	"idle-economy/internal/catalog"
	"idle-economy/internal/models"
	"idle-economy/internal/repository"
	"idle-economy/internal/services"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newOfferCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Market listings owned by the system",
	}
	cmd.AddCommand(newSystemOfferCommand())
	return cmd
}

func newSystemOfferCommand() *cobra.Command {
	var (
		itemType string
		amount   string
		price    string
		currency string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "system <item-id>",
		Short: "List unlimited system stock at a fixed price",
		Long: `Create a SYSTEM offer. System offers reserve no stock and their
proceeds go to the system account. Players cannot create them over HTTP.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			total, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid --price: %w", err)
			}

			cfg, db, err := connect()
			if err != nil {
				return err
			}
			market := services.NewMarketService(
				repository.NewRepository(db),
				catalog.NewStore(db, cfg.Market.DefaultCommission),
				slog.Default(),
			)

			in := services.CreateOfferInput{
				ItemType:  itemType,
				ItemID:    args[0],
				Amount:    qty,
				Price:     total,
				Currency:  currency,
				OfferType: models.OfferTypeSystem,
			}
			if ttl > 0 {
				expires := time.Now().Add(ttl)
				in.ExpiresAt = &expires
			}
			offer, err := market.CreateOffer(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "offer %s listed\n", offer.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&itemType, "type", models.ItemTypeResource, "item type")
	cmd.Flags().StringVar(&amount, "amount", "1", "units per purchase")
	cmd.Flags().StringVar(&price, "price", "", "total price per purchase")
	cmd.Flags().StringVar(&currency, "currency", "", "currency the buyer pays in")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the offer after this long (0 = never)")
	_ = cmd.MarkFlagRequired("price")
	_ = cmd.MarkFlagRequired("currency")
	return cmd
}

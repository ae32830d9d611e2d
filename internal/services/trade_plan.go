package services

import (
	"fmt"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"

	"github.com/shopspring/decimal"
)

// tradePlan is the full effect of one trade, computed before anything is
// written. executeTrade applies it inside a single transaction.
type tradePlan struct {
	buyerID      uint
	sellerID     uint
	creditSeller bool
	currency     string
	price        decimal.Decimal
	fee          decimal.Decimal
	net          decimal.Decimal
	lines        []models.PaymentTransaction
	transaction  models.MarketTransaction
}

// planTrade checks that buyerID may take offer and splits the price into
// the seller's net and the commission. It performs no I/O.
func planTrade(offer *models.MarketOffer, buyerID uint, rate decimal.Decimal, pending bool, now time.Time) (*tradePlan, error) {
	const op = "market.ExecuteTrade"
	entity := offer.ID.String()

	switch {
	case offer.Status != models.OfferStatusActive:
		return nil, apperrors.Conflict(op, buyerID, entity, "offer is %s", offer.Status)
	case pending:
		return nil, apperrors.Conflict(op, buyerID, entity, "a trade against the offer is in flight")
	case offer.ExpiresAt != nil && !offer.ExpiresAt.After(now):
		return nil, apperrors.Conflict(op, buyerID, entity, "offer expired")
	case offer.OfferType != models.OfferTypeSystem && offer.SellerID == buyerID:
		return nil, apperrors.Conflict(op, buyerID, entity, "cannot buy own offer")
	case offer.OfferType == models.OfferTypePersonal && (offer.TargetBuyerID == nil || *offer.TargetBuyerID != buyerID):
		return nil, apperrors.Conflict(op, buyerID, entity, "offer is reserved for another player")
	case rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)):
		return nil, apperrors.Internal(op, buyerID, entity, fmt.Errorf("commission rate %s outside [0,1]", rate))
	}

	fee := offer.Price.Mul(rate).Round(8)
	net := offer.Price.Sub(fee)

	sellerAccount := models.PlayerAccount(offer.SellerID)
	source := sellerAccount
	switch {
	case offer.OfferType == models.OfferTypeSystem:
		sellerAccount = models.AccountSystem
		source = models.AccountSystem
	case offer.IsResource():
		source = models.AccountEscrow
	}

	buyer := models.PlayerAccount(buyerID)
	line := func(from, to string, amount decimal.Decimal, currency string, kind models.PaymentTxType) models.PaymentTransaction {
		return models.PaymentTransaction{
			FromAccount: from,
			ToAccount:   to,
			Amount:      amount,
			Currency:    currency,
			TxType:      kind,
			Status:      models.PaymentPending,
			Reference:   entity,
		}
	}
	lines := []models.PaymentTransaction{
		line(buyer, models.AccountEscrow, offer.Price, offer.Currency, models.PaymentBuyerToContract),
		line(models.AccountEscrow, sellerAccount, net, offer.Currency, models.PaymentContractToSeller),
		line(models.AccountEscrow, models.AccountFees, fee, offer.Currency, models.PaymentFee),
		line(source, buyer, offer.Amount, offer.ItemID, models.PaymentItemTransfer),
	}

	return &tradePlan{
		buyerID:      buyerID,
		sellerID:     offer.SellerID,
		creditSeller: offer.OfferType != models.OfferTypeSystem,
		currency:     offer.Currency,
		price:        offer.Price,
		fee:          fee,
		net:          net,
		lines:        lines,
		transaction: models.MarketTransaction{
			OfferID:    offer.ID,
			BuyerID:    buyerID,
			SellerID:   offer.SellerID,
			Price:      offer.Price,
			Commission: fee,
			Currency:   offer.Currency,
			Status:     models.MarketTxPending,
		},
	}, nil
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"
	"idle-economy/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// expireBatch caps how many offers one ExpireOffers call closes.
const expireBatch = 500

// MarketService lists, trades and closes market offers.
type MarketService struct {
	repo   *repository.Repository
	store  TemplateStore
	logger *slog.Logger
	now    func() time.Time
}

func NewMarketService(repo *repository.Repository, store TemplateStore, logger *slog.Logger) *MarketService {
	return &MarketService{
		repo:   repo,
		store:  store,
		logger: loggerOrDefault(logger),
		now:    time.Now,
	}
}

// CreateOfferInput describes a new listing. Price is the total the buyer
// pays for Amount units.
type CreateOfferInput struct {
	SellerID      uint             `json:"-"`
	ItemType      string           `json:"item_type" binding:"required"`
	ItemID        string           `json:"item_id" binding:"required"`
	Amount        decimal.Decimal  `json:"amount"`
	Price         decimal.Decimal  `json:"price"`
	Currency      string           `json:"currency" binding:"required"`
	OfferType     models.OfferType `json:"offer_type"`
	TargetBuyerID *uint            `json:"target_buyer_id,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
}

func (in CreateOfferInput) validate(now time.Time) error {
	const op = "market.CreateOffer"
	switch {
	case !in.Amount.IsPositive():
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "amount must be positive, got %s", in.Amount)
	case !in.Price.IsPositive():
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "price must be positive, got %s", in.Price)
	case in.ItemType == "" || in.ItemID == "" || in.Currency == "":
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "item_type, item_id and currency are required")
	case len(in.ItemType) > models.MaxItemTypeLength:
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "item_type is longer than %d characters", models.MaxItemTypeLength)
	case len(in.ItemID) > models.MaxKeyLength || len(in.Currency) > models.MaxKeyLength:
		return apperrors.InvalidArgument(op, in.SellerID, "", "item_id and currency are limited to %d characters", models.MaxKeyLength)
	case !in.OfferType.Valid():
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "unknown offer type %q", in.OfferType)
	case in.OfferType != models.OfferTypeSystem && in.SellerID == 0:
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "seller is required")
	case in.OfferType == models.OfferTypePersonal && (in.TargetBuyerID == nil || *in.TargetBuyerID == in.SellerID):
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "personal offers need a target buyer other than the seller")
	case in.OfferType != models.OfferTypePersonal && in.TargetBuyerID != nil:
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "only personal offers take a target buyer")
	case in.ExpiresAt != nil && !in.ExpiresAt.After(now):
		return apperrors.InvalidArgument(op, in.SellerID, in.ItemID, "expiry must be in the future")
	}
	return nil
}

// CreateOffer lists stock for sale. P2P and PERSONAL offers reserve the
// seller's stock at once so it cannot be listed twice.
func (s *MarketService) CreateOffer(ctx context.Context, in CreateOfferInput) (*models.MarketOffer, error) {
	const op = "market.CreateOffer"
	now := utc(s.now())
	if in.OfferType == "" {
		in.OfferType = models.OfferTypeP2P
	}
	if err := in.validate(now); err != nil {
		return nil, err
	}

	offer := &models.MarketOffer{
		ID:            uuid.New(),
		SellerID:      in.SellerID,
		ItemType:      in.ItemType,
		ItemID:        in.ItemID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Price:         in.Price,
		Status:        models.OfferStatusActive,
		OfferType:     in.OfferType,
		TargetBuyerID: in.TargetBuyerID,
	}
	if in.ExpiresAt != nil {
		expires := utc(*in.ExpiresAt)
		offer.ExpiresAt = &expires
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.ReserveOfferStock(ctx, offer); err != nil {
			return err
		}
		return tx.CreateOffer(ctx, offer)
	})
	if err != nil {
		return nil, apperrors.Wrap(op, in.SellerID, offer.ID.String(), err)
	}

	s.logger.Info("offer created",
		"offer_id", offer.ID,
		"seller_id", offer.SellerID,
		"offer_type", offer.OfferType,
		"item", offer.ItemType+":"+offer.ItemID,
		"price", offer.Price.String())
	return offer, nil
}

// ExecuteTrade sells the offer to buyerID. The whole trade is one
// transaction: if any step fails the buyer keeps the money and the offer
// stays ACTIVE.
func (s *MarketService) ExecuteTrade(ctx context.Context, buyerID uint, offerID uuid.UUID) (*models.TradeResult, error) {
	const op = "market.ExecuteTrade"
	entity := offerID.String()
	if buyerID == 0 {
		return nil, apperrors.InvalidArgument(op, buyerID, entity, "buyer is required")
	}
	now := utc(s.now())

	result := &models.TradeResult{}
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		offer, err := tx.LockOffer(ctx, offerID)
		if err != nil {
			return err
		}
		pending, err := tx.HasPendingTransaction(ctx, offer.ID)
		if err != nil {
			return err
		}
		rate, err := s.store.GetCommissionRate(ctx, offer.Currency)
		if err != nil {
			return err
		}
		plan, err := planTrade(offer, buyerID, rate, pending, now)
		if err != nil {
			return err
		}

		if err := s.applyTrade(ctx, tx, offer, plan, now); err != nil {
			return err
		}
		result.Offer = offer
		result.Transaction = &plan.transaction
		result.Payments, err = tx.PaymentLines(ctx, plan.transaction.ID)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(op, buyerID, entity, err)
	}

	s.logger.Info("trade executed",
		"offer_id", offerID,
		"buyer_id", buyerID,
		"seller_id", result.Offer.SellerID,
		"price", result.Transaction.Price.String(),
		"commission", result.Transaction.Commission.String())
	return result, nil
}

func (s *MarketService) applyTrade(ctx context.Context, tx *repository.Repository, offer *models.MarketOffer, plan *tradePlan, now time.Time) error {
	accounts := []uint{plan.buyerID}
	if plan.creditSeller {
		accounts = append(accounts, plan.sellerID)
		if plan.sellerID < plan.buyerID {
			accounts[0], accounts[1] = accounts[1], accounts[0]
		}
	}
	if err := tx.LockBalances(ctx, plan.currency, accounts...); err != nil {
		return err
	}

	if err := tx.Debit(ctx, plan.buyerID, plan.currency, plan.price); err != nil {
		return err
	}

	mtx := &plan.transaction
	if err := tx.CreateMarketTransaction(ctx, mtx); err != nil {
		return err
	}
	for i := range plan.lines {
		plan.lines[i].MarketTransactionID = &mtx.ID
	}
	if err := tx.RecordPayments(ctx, plan.lines...); err != nil {
		return err
	}

	if plan.creditSeller {
		if err := tx.Credit(ctx, plan.sellerID, plan.currency, plan.net); err != nil {
			return err
		}
	}
	if err := s.deliver(ctx, tx, offer, plan.buyerID); err != nil {
		return err
	}

	offer.Status = models.OfferStatusCompleted
	offer.CompletedAt = &now
	offer.IsItemLocked = false
	if err := tx.SaveOffer(ctx, offer); err != nil {
		return err
	}

	mtx.Status = models.MarketTxCompleted
	mtx.CompletedAt = &now
	if err := tx.SaveMarketTransaction(ctx, mtx); err != nil {
		return err
	}
	return tx.ConfirmPayments(ctx, mtx.ID)
}

// deliver hands the offered stock to the buyer. Resources come out of
// escrow (or the system for SYSTEM offers) through the ledger; items move
// between inventories.
func (s *MarketService) deliver(ctx context.Context, tx *repository.Repository, offer *models.MarketOffer, buyerID uint) error {
	switch {
	case offer.IsResource():
		return tx.Credit(ctx, buyerID, offer.ItemID, offer.Amount)
	case offer.ReservesStock():
		return tx.TransferItems(ctx, offer.SellerID, buyerID, offer.ItemType, offer.ItemID, offer.Amount)
	default:
		return tx.AddItems(ctx, buyerID, offer.ItemType, offer.ItemID, offer.Amount)
	}
}

// CancelOffer lets the seller withdraw an ACTIVE offer and returns the
// reserved stock.
func (s *MarketService) CancelOffer(ctx context.Context, sellerID uint, offerID uuid.UUID) (*models.MarketOffer, error) {
	const op = "market.CancelOffer"
	entity := offerID.String()

	var offer *models.MarketOffer
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		offer, err = tx.LockOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if offer.SellerID != sellerID {
			return apperrors.Conflict(op, sellerID, entity, "only the seller may cancel the offer")
		}
		if offer.Status != models.OfferStatusActive {
			return apperrors.Conflict(op, sellerID, entity, "offer is %s", offer.Status)
		}
		pending, err := tx.HasPendingTransaction(ctx, offer.ID)
		if err != nil {
			return err
		}
		if pending {
			return apperrors.Conflict(op, sellerID, entity, "a trade against the offer is in flight")
		}
		return tx.CloseOffer(ctx, offer, models.OfferStatusCancelled)
	})
	if err != nil {
		return nil, apperrors.Wrap(op, sellerID, entity, err)
	}

	s.logger.Info("offer cancelled", "offer_id", offerID, "seller_id", sellerID)
	return offer, nil
}

// ExpireOffers closes ACTIVE offers whose expiry has passed and returns the
// seller's stock. Each offer is closed in its own transaction.
func (s *MarketService) ExpireOffers(ctx context.Context, now time.Time) (int, error) {
	const op = "market.ExpireOffers"
	now = utc(now)

	ids, err := s.repo.DueOfferIDs(ctx, now, expireBatch)
	if err != nil {
		return 0, apperrors.Wrap(op, 0, "", err)
	}

	expired := 0
	var errs []error
	for _, id := range ids {
		closed := false
		err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			offer, err := tx.LockOffer(ctx, id)
			if err != nil {
				return err
			}
			if offer.Status != models.OfferStatusActive || offer.ExpiresAt == nil || offer.ExpiresAt.After(now) {
				return nil
			}
			pending, err := tx.HasPendingTransaction(ctx, offer.ID)
			if err != nil || pending {
				return err
			}
			closed = true
			return tx.CloseOffer(ctx, offer, models.OfferStatusExpired)
		})
		if err != nil {
			s.logger.Error("failed to expire offer", "offer_id", id, "error", err)
			errs = append(errs, apperrors.Wrap(op, 0, id.String(), err))
			continue
		}
		if closed {
			expired++
		}
	}

	if expired > 0 {
		s.logger.Info("offers expired", "count", expired)
	}
	return expired, errors.Join(errs...)
}

// ListOffers returns offers matching the filter.
func (s *MarketService) ListOffers(ctx context.Context, f repository.OfferFilter) ([]models.MarketOffer, error) {
	offers, err := s.repo.ListOffers(ctx, f)
	if err != nil {
		return nil, apperrors.Wrap("market.ListOffers", f.BuyerID, "", err)
	}
	return offers, nil
}

func (s *MarketService) GetOffer(ctx context.Context, offerID uuid.UUID) (*models.MarketOffer, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, apperrors.Wrap("market.GetOffer", 0, offerID.String(), err)
	}
	return offer, nil
}

// ListTransactions returns trades the player took part in, newest first.
func (s *MarketService) ListTransactions(ctx context.Context, playerID uint, limit, offset int) ([]models.MarketTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	txs, err := s.repo.ListMarketTransactions(ctx, playerID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap("market.ListTransactions", playerID, "", err)
	}
	return txs, nil
}

// PaymentLines returns the ledger lines of one trade.
func (s *MarketService) PaymentLines(ctx context.Context, marketTxID uuid.UUID) ([]models.PaymentTransaction, error) {
	lines, err := s.repo.PaymentLines(ctx, marketTxID)
	if err != nil {
		return nil, apperrors.Wrap("market.PaymentLines", 0, marketTxID.String(), err)
	}
	return lines, nil
}

// Wallet is a player's balances and inventory.
type Wallet struct {
	PlayerID uint                   `json:"player_id"`
	Balances []models.PlayerBalance `json:"balances"`
	Items    []models.PlayerItem    `json:"items"`
}

func (s *MarketService) Wallet(ctx context.Context, playerID uint) (*Wallet, error) {
	const op = "market.Wallet"
	balances, err := s.repo.Balances(ctx, playerID)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}
	items, err := s.repo.Items(ctx, playerID)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}
	return &Wallet{PlayerID: playerID, Balances: balances, Items: items}, nil
}

// Grant funds a player from the system account.
func (s *MarketService) Grant(ctx context.Context, playerID uint, currency string, amount decimal.Decimal) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		return tx.Grant(ctx, playerID, currency, amount, "grant")
	})
	if err != nil {
		return apperrors.Wrap("market.Grant", playerID, currency, err)
	}
	s.logger.Info("balance granted", "player_id", playerID, "currency", currency, "amount", amount.String())
	return nil
}

// GrantItems puts items into a player's inventory.
func (s *MarketService) GrantItems(ctx context.Context, playerID uint, itemType, itemID string, qty decimal.Decimal) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		return tx.AddItems(ctx, playerID, itemType, itemID, qty)
	})
	if err != nil {
		return apperrors.Wrap("market.GrantItems", playerID, itemType+":"+itemID, err)
	}
	return nil
}

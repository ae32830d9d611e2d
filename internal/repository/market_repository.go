package repository

import (
	"context"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"

	"github.com/google/uuid"
)

// OfferFilter narrows ListOffers; zero fields match everything.
type OfferFilter struct {
	SellerID  uint
	BuyerID   uint
	ItemType  string
	ItemID    string
	Currency  string
	OfferType models.OfferType
	Status    models.OfferStatus
	Limit     int
	Offset    int
}

// CreateOffer inserts a new offer.
func (r *Repository) CreateOffer(ctx context.Context, offer *models.MarketOffer) error {
	if err := r.db.WithContext(ctx).Create(offer).Error; err != nil {
		return apperrors.Internal("market.CreateOffer", offer.SellerID, offer.ItemID, err)
	}
	return nil
}

// LockOffer loads an offer with a row lock. It is always the first lock a
// trade takes.
func (r *Repository) LockOffer(ctx context.Context, id uuid.UUID) (*models.MarketOffer, error) {
	var offer models.MarketOffer
	if err := r.forUpdate(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, lookupErr(err, "market.LockOffer", 0, id.String())
	}
	return &offer, nil
}

// GetOffer loads an offer without locking it.
func (r *Repository) GetOffer(ctx context.Context, id uuid.UUID) (*models.MarketOffer, error) {
	var offer models.MarketOffer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, lookupErr(err, "market.GetOffer", 0, id.String())
	}
	return &offer, nil
}

// SaveOffer persists every column of the offer.
func (r *Repository) SaveOffer(ctx context.Context, offer *models.MarketOffer) error {
	if err := r.db.WithContext(ctx).Save(offer).Error; err != nil {
		return apperrors.Internal("market.SaveOffer", offer.SellerID, offer.ID.String(), err)
	}
	return nil
}

// ListOffers returns offers matching the filter, newest first. A BuyerID
// hides PERSONAL offers addressed to someone else.
func (r *Repository) ListOffers(ctx context.Context, f OfferFilter) ([]models.MarketOffer, error) {
	q := r.db.WithContext(ctx).Model(&models.MarketOffer{})
	if f.SellerID != 0 {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if f.BuyerID != 0 {
		q = q.Where("offer_type <> ? OR target_buyer_id = ?", models.OfferTypePersonal, f.BuyerID)
	}
	if f.ItemType != "" {
		q = q.Where("item_type = ?", f.ItemType)
	}
	if f.ItemID != "" {
		q = q.Where("item_id = ?", f.ItemID)
	}
	if f.Currency != "" {
		q = q.Where("currency = ?", f.Currency)
	}
	if f.OfferType != "" {
		q = q.Where("offer_type = ?", f.OfferType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var offers []models.MarketOffer
	if err := q.Order("created_at DESC").Find(&offers).Error; err != nil {
		return nil, apperrors.Internal("market.ListOffers", f.SellerID, "", err)
	}
	return offers, nil
}

// DueOfferIDs returns ACTIVE offers whose expiry is at or before now.
func (r *Repository) DueOfferIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.MarketOffer{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.OfferStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperrors.Internal("market.DueOffers", 0, "", err)
	}
	return ids, nil
}

// HasPendingTransaction reports whether a trade against the offer is in
// flight.
func (r *Repository) HasPendingTransaction(ctx context.Context, offerID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.MarketTransaction{}).
		Where("offer_id = ? AND status = ?", offerID, models.MarketTxPending).
		Count(&n).Error
	if err != nil {
		return false, apperrors.Internal("market.PendingCheck", 0, offerID.String(), err)
	}
	return n > 0, nil
}

// CreateMarketTransaction inserts a trade record.
func (r *Repository) CreateMarketTransaction(ctx context.Context, t *models.MarketTransaction) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return apperrors.Internal("market.CreateTransaction", t.BuyerID, t.OfferID.String(), err)
	}
	return nil
}

// SaveMarketTransaction persists every column of the trade record.
func (r *Repository) SaveMarketTransaction(ctx context.Context, t *models.MarketTransaction) error {
	if err := r.db.WithContext(ctx).Save(t).Error; err != nil {
		return apperrors.Internal("market.SaveTransaction", t.BuyerID, t.ID.String(), err)
	}
	return nil
}

// ListMarketTransactions returns trades where the player bought or sold.
func (r *Repository) ListMarketTransactions(ctx context.Context, playerID uint, limit, offset int) ([]models.MarketTransaction, error) {
	var txs []models.MarketTransaction
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", playerID, playerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, apperrors.Internal("market.ListTransactions", playerID, "", err)
	}
	return txs, nil
}

// ReserveOfferStock sets the seller's stock aside for a new offer:
// resources go to escrow through the ledger, items are locked in the
// inventory. SYSTEM offers have unlimited stock and reserve nothing.
func (r *Repository) ReserveOfferStock(ctx context.Context, offer *models.MarketOffer) error {
	if !offer.ReservesStock() {
		return nil
	}
	if offer.IsResource() {
		if err := r.Debit(ctx, offer.SellerID, offer.ItemID, offer.Amount); err != nil {
			return err
		}
		if err := r.RecordPayments(ctx, models.PaymentTransaction{
			FromAccount: models.PlayerAccount(offer.SellerID),
			ToAccount:   models.AccountEscrow,
			Amount:      offer.Amount,
			Currency:    offer.ItemID,
			TxType:      models.PaymentOfferEscrow,
			Status:      models.PaymentConfirmed,
			Reference:   offer.ID.String(),
		}); err != nil {
			return err
		}
	} else if err := r.ReserveItems(ctx, offer.SellerID, offer.ItemType, offer.ItemID, offer.Amount); err != nil {
		return err
	}
	offer.IsItemLocked = true
	return nil
}

// ReleaseOfferStock undoes ReserveOfferStock.
func (r *Repository) ReleaseOfferStock(ctx context.Context, offer *models.MarketOffer) error {
	if !offer.ReservesStock() || !offer.IsItemLocked {
		return nil
	}
	if offer.IsResource() {
		if err := r.Credit(ctx, offer.SellerID, offer.ItemID, offer.Amount); err != nil {
			return err
		}
		if err := r.RecordPayments(ctx, models.PaymentTransaction{
			FromAccount: models.AccountEscrow,
			ToAccount:   models.PlayerAccount(offer.SellerID),
			Amount:      offer.Amount,
			Currency:    offer.ItemID,
			TxType:      models.PaymentOfferRelease,
			Status:      models.PaymentConfirmed,
			Reference:   offer.ID.String(),
		}); err != nil {
			return err
		}
	} else if err := r.ReleaseItems(ctx, offer.SellerID, offer.ItemType, offer.ItemID, offer.Amount); err != nil {
		return err
	}
	offer.IsItemLocked = false
	return nil
}

// CloseOffer releases the offer's stock and moves it to a terminal status.
func (r *Repository) CloseOffer(ctx context.Context, offer *models.MarketOffer, status models.OfferStatus) error {
	if err := r.ReleaseOfferStock(ctx, offer); err != nil {
		return err
	}
	offer.Status = status
	return r.SaveOffer(ctx, offer)
}

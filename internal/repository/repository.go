package repository

import (
	"context"
	"errors"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the player-state store. A Repository obtained through
// Transaction is bound to that transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn inside one database transaction. Any error returned
// by fn rolls back everything fn wrote.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// forUpdate returns a query that takes row locks on the selected rows.
// SQLite ignores the clause; writers there are serialized by the
// immediate transaction mode instead.
func (r *Repository) forUpdate(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// createIfAbsent inserts row unless a unique index already holds it and
// reports whether a row was written.
func (r *Repository) createIfAbsent(ctx context.Context, row any) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// lookupErr maps a failed single-row lookup to NotFound or Internal.
func lookupErr(err error, op string, playerID uint, entityID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(op, playerID, entityID, "no such record")
	}
	return apperrors.Internal(op, playerID, entityID, err)
}

// PurgePlayer removes a player's progression, event and inventory rows and
// cancels the player's open offers. Trade history stays as audit trail.
func (r *Repository) PurgePlayer(ctx context.Context, playerID uint) error {
	const op = "repository.PurgePlayer"
	return r.Transaction(ctx, func(tx *Repository) error {
		offers, err := tx.ListOffers(ctx, OfferFilter{SellerID: playerID, Status: models.OfferStatusActive})
		if err != nil {
			return err
		}
		for i := range offers {
			if err := tx.CloseOffer(ctx, &offers[i], models.OfferStatusCancelled); err != nil {
				return err
			}
		}

		for _, table := range []string{
			"user_upgrades",
			"user_events",
			"user_event_settings",
			"player_balances",
			"player_items",
		} {
			if err := tx.db.WithContext(ctx).Exec("DELETE FROM "+table+" WHERE player_id = ?", playerID).Error; err != nil {
				return apperrors.Internal(op, playerID, table, err)
			}
		}
		return nil
	})
}

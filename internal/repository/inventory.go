package repository

import (
	"context"
	"fmt"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"

	"github.com/shopspring/decimal"
)

func itemRef(itemType, itemID string) string {
	return fmt.Sprintf("%s:%s", itemType, itemID)
}

func (r *Repository) lockItem(ctx context.Context, playerID uint, itemType, itemID string) (*models.PlayerItem, error) {
	row := &models.PlayerItem{
		PlayerID:       playerID,
		ItemType:       itemType,
		ItemID:         itemID,
		Quantity:       decimal.Zero,
		LockedQuantity: decimal.Zero,
	}
	if _, err := r.createIfAbsent(ctx, row); err != nil {
		return nil, err
	}

	var item models.PlayerItem
	err := r.forUpdate(ctx).
		Where("player_id = ? AND item_type = ? AND item_id = ?", playerID, itemType, itemID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// AddItems puts qty units of an item into the player's inventory.
func (r *Repository) AddItems(ctx context.Context, playerID uint, itemType, itemID string, qty decimal.Decimal) error {
	const op = "inventory.AddItems"
	ref := itemRef(itemType, itemID)
	if !qty.IsPositive() {
		return apperrors.InvalidArgument(op, playerID, ref, "quantity must be positive, got %s", qty)
	}

	item, err := r.lockItem(ctx, playerID, itemType, itemID)
	if err != nil {
		return apperrors.Internal(op, playerID, ref, err)
	}
	item.Quantity = item.Quantity.Add(qty)
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return apperrors.Internal(op, playerID, ref, err)
	}
	return nil
}

// ReserveItems sets qty units aside so they cannot be listed twice.
func (r *Repository) ReserveItems(ctx context.Context, playerID uint, itemType, itemID string, qty decimal.Decimal) error {
	const op = "inventory.ReserveItems"
	ref := itemRef(itemType, itemID)

	item, err := r.lockItem(ctx, playerID, itemType, itemID)
	if err != nil {
		return apperrors.Internal(op, playerID, ref, err)
	}
	if item.Available().LessThan(qty) {
		return apperrors.InsufficientFunds(op, playerID, ref, "%s available, %s requested", item.Available(), qty)
	}
	item.LockedQuantity = item.LockedQuantity.Add(qty)
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return apperrors.Internal(op, playerID, ref, err)
	}
	return nil
}

// ReleaseItems returns reserved units to the available pool.
func (r *Repository) ReleaseItems(ctx context.Context, playerID uint, itemType, itemID string, qty decimal.Decimal) error {
	const op = "inventory.ReleaseItems"
	ref := itemRef(itemType, itemID)

	item, err := r.lockItem(ctx, playerID, itemType, itemID)
	if err != nil {
		return apperrors.Internal(op, playerID, ref, err)
	}
	if item.LockedQuantity.LessThan(qty) {
		return apperrors.Internal(op, playerID, ref, fmt.Errorf("releasing %s but only %s reserved", qty, item.LockedQuantity))
	}
	item.LockedQuantity = item.LockedQuantity.Sub(qty)
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return apperrors.Internal(op, playerID, ref, err)
	}
	return nil
}

// TransferItems moves reserved units from one inventory to another.
func (r *Repository) TransferItems(ctx context.Context, fromID, toID uint, itemType, itemID string, qty decimal.Decimal) error {
	const op = "inventory.TransferItems"
	ref := itemRef(itemType, itemID)

	from, err := r.lockItem(ctx, fromID, itemType, itemID)
	if err != nil {
		return apperrors.Internal(op, fromID, ref, err)
	}
	if from.LockedQuantity.LessThan(qty) || from.Quantity.LessThan(qty) {
		return apperrors.Conflict(op, fromID, ref, "reservation of %s no longer held", qty)
	}
	from.Quantity = from.Quantity.Sub(qty)
	from.LockedQuantity = from.LockedQuantity.Sub(qty)
	if err := r.db.WithContext(ctx).Save(from).Error; err != nil {
		return apperrors.Internal(op, fromID, ref, err)
	}
	return r.AddItems(ctx, toID, itemType, itemID, qty)
}

// Items returns the player's inventory.
func (r *Repository) Items(ctx context.Context, playerID uint) ([]models.PlayerItem, error) {
	var items []models.PlayerItem
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("item_type ASC, item_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, apperrors.Internal("inventory.Items", playerID, "", err)
	}
	return items, nil
}

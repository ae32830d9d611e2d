package repository

import (
	"context"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"
)

// CreateUpgradeIfAbsent inserts the progress row unless the player already
// has one for the template. The (player, template) unique index decides;
// a lost race reports false.
func (r *Repository) CreateUpgradeIfAbsent(ctx context.Context, row *models.UserUpgrade) (bool, error) {
	created, err := r.createIfAbsent(ctx, row)
	if err != nil {
		return false, apperrors.Internal("upgrades.Create", row.PlayerID, row.TemplateSlug, err)
	}
	return created, nil
}

// LockUpgrade loads the progress row with a row lock.
func (r *Repository) LockUpgrade(ctx context.Context, playerID uint, slug string) (*models.UserUpgrade, error) {
	var row models.UserUpgrade
	err := r.forUpdate(ctx).
		Where("player_id = ? AND template_slug = ?", playerID, slug).
		First(&row).Error
	if err != nil {
		return nil, lookupErr(err, "upgrades.Lock", playerID, slug)
	}
	return &row, nil
}

// SaveUpgrade persists every column of the row.
func (r *Repository) SaveUpgrade(ctx context.Context, row *models.UserUpgrade) error {
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return apperrors.Internal("upgrades.Save", row.PlayerID, row.TemplateSlug, err)
	}
	return nil
}

// ListUpgrades returns the player's progress rows in creation order.
func (r *Repository) ListUpgrades(ctx context.Context, playerID uint) ([]models.UserUpgrade, error) {
	var rows []models.UserUpgrade
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Internal("upgrades.List", playerID, "", err)
	}
	return rows, nil
}

// CountUpgrades returns how many progress rows the player has for slug.
func (r *Repository) CountUpgrades(ctx context.Context, playerID uint, slug string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.UserUpgrade{}).
		Where("player_id = ? AND template_slug = ?", playerID, slug).
		Count(&n).Error
	if err != nil {
		return 0, apperrors.Internal("upgrades.Count", playerID, slug, err)
	}
	return n, nil
}

package catalog

import (
	"context"
	"errors"
	"sort"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store serves templates from the database. Gameplay code only reads it;
// rows change through Seed.
type Store struct {
	db                *gorm.DB
	defaultCommission decimal.Decimal
}

// NewStore returns a store that falls back to defaultCommission for
// currencies without a configured rate.
func NewStore(db *gorm.DB, defaultCommission decimal.Decimal) *Store {
	return &Store{db: db, defaultCommission: clampRate(defaultCommission)}
}

func clampRate(rate decimal.Decimal) decimal.Decimal {
	if rate.IsNegative() {
		return decimal.Zero
	}
	if one := decimal.NewFromInt(1); rate.GreaterThan(one) {
		return one
	}
	return rate
}

func (s *Store) GetUpgradeTemplate(ctx context.Context, slug string) (*models.UpgradeNodeTemplate, error) {
	var t models.UpgradeNodeTemplate
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("catalog.GetUpgradeTemplate", 0, slug, "unknown upgrade template")
	}
	if err != nil {
		return nil, apperrors.Internal("catalog.GetUpgradeTemplate", 0, slug, err)
	}
	return &t, nil
}

// ListUpgradeTemplates returns the templates with the given slugs; unknown
// slugs are skipped.
func (s *Store) ListUpgradeTemplates(ctx context.Context, slugs []string) ([]models.UpgradeNodeTemplate, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	var ts []models.UpgradeNodeTemplate
	err := s.db.WithContext(ctx).
		Where("slug IN ?", slugs).
		Order("weight DESC, slug ASC").
		Find(&ts).Error
	if err != nil {
		return nil, apperrors.Internal("catalog.ListUpgradeTemplates", 0, "", err)
	}
	return ts, nil
}

// ListActiveUpgradeTemplates returns every active node, heaviest first.
func (s *Store) ListActiveUpgradeTemplates(ctx context.Context) ([]models.UpgradeNodeTemplate, error) {
	var ts []models.UpgradeNodeTemplate
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("weight DESC, slug ASC").
		Find(&ts).Error
	if err != nil {
		return nil, apperrors.Internal("catalog.ListActiveUpgradeTemplates", 0, "", err)
	}
	return ts, nil
}

// ListRootUpgradeTemplates returns active nodes without prerequisites.
func (s *Store) ListRootUpgradeTemplates(ctx context.Context) ([]models.UpgradeNodeTemplate, error) {
	all, err := s.ListActiveUpgradeTemplates(ctx)
	if err != nil {
		return nil, err
	}
	roots := all[:0]
	for _, t := range all {
		if t.IsRoot() {
			roots = append(roots, t)
		}
	}
	return roots, nil
}

func (s *Store) GetEventTemplate(ctx context.Context, slug string) (*models.EventTemplate, error) {
	var t models.EventTemplate
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("catalog.GetEventTemplate", 0, slug, "unknown event template")
	}
	if err != nil {
		return nil, apperrors.Internal("catalog.GetEventTemplate", 0, slug, err)
	}
	return &t, nil
}

// ListActiveEventTemplates returns active events, highest priority first.
func (s *Store) ListActiveEventTemplates(ctx context.Context) ([]models.EventTemplate, error) {
	var ts []models.EventTemplate
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("priority DESC, slug ASC").
		Find(&ts).Error
	if err != nil {
		return nil, apperrors.Internal("catalog.ListActiveEventTemplates", 0, "", err)
	}
	return ts, nil
}

// GetCommissionRate returns the market fee rate for currency, in [0,1].
func (s *Store) GetCommissionRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	var rows []models.MarketCommission
	err := s.db.WithContext(ctx).Where("currency = ?", currency).Limit(1).Find(&rows).Error
	if err != nil {
		return decimal.Zero, apperrors.Internal("catalog.GetCommissionRate", 0, currency, err)
	}
	if len(rows) == 0 {
		return s.defaultCommission, nil
	}
	return clampRate(rows[0].Rate), nil
}

// SeedResult counts the rows written by Seed.
type SeedResult struct {
	Upgrades    int
	Events      int
	Commissions int
}

// Seed upserts the catalog by slug and currency. Slugs missing from the
// catalog are deactivated, never deleted, so progress rows keep their
// template.
func (s *Store) Seed(ctx context.Context, c *Catalog) (SeedResult, error) {
	if err := c.Validate(); err != nil {
		return SeedResult{}, apperrors.InvalidArgument("catalog.Seed", 0, "", "%v", err)
	}

	upgrades := c.UpgradeTemplates()
	events := c.EventTemplates()
	rates := c.CommissionRates()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(upgrades) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"title", "description", "max_level", "base_price", "price_multiplier",
					"effect_per_level", "currency", "category", "stability", "instability",
					"modifiers", "conditions", "children", "weight", "active", "updated_at",
				}),
			}).Create(&upgrades).Error
			if err != nil {
				return err
			}
		}
		if err := tx.Model(&models.UpgradeNodeTemplate{}).
			Where("slug NOT IN ?", slugsOf(upgrades)).
			Update("active", false).Error; err != nil {
			return err
		}

		if len(events) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"title", "type", "trigger_config", "effect", "frequency", "conditions",
					"priority", "active", "updated_at",
				}),
			}).Create(&events).Error
			if err != nil {
				return err
			}
		}
		if err := tx.Model(&models.EventTemplate{}).
			Where("slug NOT IN ?", eventSlugsOf(events)).
			Update("active", false).Error; err != nil {
			return err
		}

		if len(rates) > 0 {
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "currency"}},
				DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
			}).Create(&rates).Error
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, apperrors.Internal("catalog.Seed", 0, "", err)
	}
	return SeedResult{Upgrades: len(upgrades), Events: len(events), Commissions: len(rates)}, nil
}

// slugsOf always returns at least one element so NOT IN never sees an empty
// list.
func slugsOf(ts []models.UpgradeNodeTemplate) []string {
	out := []string{""}
	for _, t := range ts {
		out = append(out, t.Slug)
	}
	sort.Strings(out)
	return out
}

func eventSlugsOf(ts []models.EventTemplate) []string {
	out := []string{""}
	for _, t := range ts {
		out = append(out, t.Slug)
	}
	sort.Strings(out)
	return out
}

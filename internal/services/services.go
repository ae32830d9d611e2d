package services

import (
	"context"
	"log/slog"
	"time"

	"idle-economy/internal/models"

	"github.com/shopspring/decimal"
)

// TemplateStore is the read-only catalog the engines consume.
type TemplateStore interface {
	GetUpgradeTemplate(ctx context.Context, slug string) (*models.UpgradeNodeTemplate, error)
	ListUpgradeTemplates(ctx context.Context, slugs []string) ([]models.UpgradeNodeTemplate, error)
	ListRootUpgradeTemplates(ctx context.Context) ([]models.UpgradeNodeTemplate, error)
	ListActiveUpgradeTemplates(ctx context.Context) ([]models.UpgradeNodeTemplate, error)
	GetEventTemplate(ctx context.Context, slug string) (*models.EventTemplate, error)
	ListActiveEventTemplates(ctx context.Context) ([]models.EventTemplate, error)
	GetCommissionRate(ctx context.Context, currency string) (decimal.Decimal, error)
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// utc normalizes timestamps before they reach the database so stored
// values compare consistently.
func utc(t time.Time) time.Time {
	return t.UTC()
}

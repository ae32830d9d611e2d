package services

import (
	"context"
	"log/slog"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"
	"idle-economy/internal/repository"
)

// UpgradeService owns the per-player upgrade graph.
type UpgradeService struct {
	repo   *repository.Repository
	store  TemplateStore
	logger *slog.Logger
	now    func() time.Time
}

func NewUpgradeService(repo *repository.Repository, store TemplateStore, logger *slog.Logger) *UpgradeService {
	return &UpgradeService{
		repo:   repo,
		store:  store,
		logger: loggerOrDefault(logger),
		now:    time.Now,
	}
}

// InitializeTree creates a progress row for every root template the player
// does not have yet and returns all of the player's rows. Calling it again,
// sequentially or concurrently, never duplicates a row.
func (s *UpgradeService) InitializeTree(ctx context.Context, playerID uint) ([]models.UserUpgrade, error) {
	const op = "upgrades.InitializeTree"
	if playerID == 0 {
		return nil, apperrors.InvalidArgument(op, playerID, "", "player id is required")
	}

	roots, err := s.store.ListRootUpgradeTemplates(ctx)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}

	var rows []models.UserUpgrade
	created := 0
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for i := range roots {
			ok, err := tx.CreateUpgradeIfAbsent(ctx, models.NewUserUpgrade(playerID, &roots[i]))
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		rows, err = tx.ListUpgrades(ctx, playerID)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}

	if created > 0 {
		s.logger.Info("upgrade tree initialized", "player_id", playerID, "created", created)
	}
	return rows, nil
}

// AdvanceProgress adds delta to the node's progress, capped at the target.
// Reaching the target completes the node and seeds its children. A node
// whose template is still delayed accepts no progress.
func (s *UpgradeService) AdvanceProgress(ctx context.Context, playerID uint, slug string, delta int64) (*models.AdvanceResult, error) {
	const op = "upgrades.AdvanceProgress"
	if delta <= 0 {
		return nil, apperrors.InvalidArgument(op, playerID, slug, "delta must be positive, got %d", delta)
	}
	now := utc(s.now())

	result := &models.AdvanceResult{Unlocked: []string{}}
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		row, err := tx.LockUpgrade(ctx, playerID, slug)
		if err != nil {
			return err
		}
		if row.Completed {
			return apperrors.AlreadyCompleted(op, playerID, slug, "node already completed")
		}
		tmpl, err := s.store.GetUpgradeTemplate(ctx, slug)
		if err != nil {
			return err
		}
		if tmpl.DelayedAt(now) {
			return apperrors.Conflict(op, playerID, slug, "node is delayed until %s", tmpl.Conditions.DelayedUntil.Format(time.RFC3339))
		}

		applied := min(delta, row.TargetProgress-row.Progress)
		row.Progress += applied
		row.ProgressHistory = append(row.ProgressHistory, models.ProgressEntry{At: now, Delta: applied})

		if row.Progress >= row.TargetProgress {
			row.Completed = true
			row.CompletedAt = &now
			row.Stability = tmpl.Stability
			row.Instability = tmpl.Instability

			result.Unlocked, err = s.unlockChildren(ctx, tx, playerID, tmpl)
			if err != nil {
				return err
			}
		}

		if err := tx.SaveUpgrade(ctx, row); err != nil {
			return err
		}
		result.Upgrade = row
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, slug, err)
	}

	if result.Upgrade.Completed {
		s.logger.Info("upgrade completed",
			"player_id", playerID, "slug", slug, "unlocked", result.Unlocked)
	}
	return result, nil
}

// unlockChildren seeds a row for each child of tmpl and returns the slugs
// whose row was actually created, in catalog order.
func (s *UpgradeService) unlockChildren(ctx context.Context, tx *repository.Repository, playerID uint, tmpl *models.UpgradeNodeTemplate) ([]string, error) {
	unlocked := []string{}
	if len(tmpl.Children) == 0 {
		return unlocked, nil
	}

	children, err := s.store.ListUpgradeTemplates(ctx, tmpl.Children)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]*models.UpgradeNodeTemplate, len(children))
	for i := range children {
		bySlug[children[i].Slug] = &children[i]
	}

	for _, slug := range tmpl.Children {
		child, ok := bySlug[slug]
		if !ok || !child.Active {
			s.logger.Warn("skipping unknown or inactive child",
				"player_id", playerID, "parent", tmpl.Slug, "child", slug)
			continue
		}
		created, err := tx.CreateUpgradeIfAbsent(ctx, models.NewUserUpgrade(playerID, child))
		if err != nil {
			return nil, err
		}
		if created {
			unlocked = append(unlocked, slug)
		}
	}
	return unlocked, nil
}

// GetAvailableUpgrades returns roots plus the children of completed nodes,
// minus nodes held back by a future delay, heaviest first.
func (s *UpgradeService) GetAvailableUpgrades(ctx context.Context, playerID uint) ([]models.UpgradeNodeTemplate, error) {
	const op = "upgrades.GetAvailableUpgrades"
	now := utc(s.now())

	active, err := s.store.ListActiveUpgradeTemplates(ctx)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}
	rows, err := s.repo.ListUpgrades(ctx, playerID)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}

	var completed []string
	for _, r := range rows {
		if r.Completed {
			completed = append(completed, r.TemplateSlug)
		}
	}
	parents, err := s.store.ListUpgradeTemplates(ctx, completed)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}
	unlocked := make(map[string]bool)
	for _, p := range parents {
		for _, child := range p.Children {
			unlocked[child] = true
		}
	}

	available := []models.UpgradeNodeTemplate{}
	for _, t := range active {
		if !t.IsRoot() && !unlocked[t.Slug] {
			continue
		}
		if t.DelayedAt(now) {
			continue
		}
		available = append(available, t)
	}
	return available, nil
}

// PurchaseLevel buys the next level of a completed node, debiting
// basePrice * priceMultiplier^level from the template currency.
func (s *UpgradeService) PurchaseLevel(ctx context.Context, playerID uint, slug string) (*models.UserUpgrade, error) {
	const op = "upgrades.PurchaseLevel"

	tmpl, err := s.store.GetUpgradeTemplate(ctx, slug)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, slug, err)
	}

	var row *models.UserUpgrade
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		row, err = tx.LockUpgrade(ctx, playerID, slug)
		if err != nil {
			return err
		}
		if !row.Completed {
			return apperrors.Conflict(op, playerID, slug, "node must be completed before leveling")
		}
		if row.Level >= tmpl.MaxLevel {
			return apperrors.InvalidArgument(op, playerID, slug, "level %d is the maximum", tmpl.MaxLevel)
		}

		price := tmpl.LevelPrice(row.Level)
		if err := tx.Debit(ctx, playerID, tmpl.Currency, price); err != nil {
			return err
		}
		if err := tx.RecordPayments(ctx, models.PaymentTransaction{
			FromAccount: models.PlayerAccount(playerID),
			ToAccount:   models.AccountSystem,
			Amount:      price,
			Currency:    tmpl.Currency,
			TxType:      models.PaymentUpgradePurchase,
			Status:      models.PaymentConfirmed,
			Reference:   slug,
		}); err != nil {
			return err
		}

		row.Level++
		return tx.SaveUpgrade(ctx, row)
	})
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, slug, err)
	}

	s.logger.Info("upgrade level purchased", "player_id", playerID, "slug", slug, "level", row.Level)
	return row, nil
}

// Snapshot returns the player's rows with the derived totals: available
// slugs, summed stability and instability, and the modifiers granted by
// completed nodes. A node's modifier grows by effectPerLevel per level.
func (s *UpgradeService) Snapshot(ctx context.Context, playerID uint) (*models.ProgressionSnapshot, error) {
	const op = "upgrades.Snapshot"

	rows, err := s.repo.ListUpgrades(ctx, playerID)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}
	available, err := s.GetAvailableUpgrades(ctx, playerID)
	if err != nil {
		return nil, err
	}

	snap := &models.ProgressionSnapshot{
		PlayerID:  playerID,
		Upgrades:  rows,
		Available: make([]string, 0, len(available)),
		Modifiers: models.MultiplierSet{},
	}
	for _, t := range available {
		snap.Available = append(snap.Available, t.Slug)
	}

	var completed []string
	levels := make(map[string]int)
	for _, r := range rows {
		snap.Stability += r.Stability
		snap.Instability += r.Instability
		if r.Completed {
			completed = append(completed, r.TemplateSlug)
			levels[r.TemplateSlug] = r.Level
		}
	}
	templates, err := s.store.ListUpgradeTemplates(ctx, completed)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}
	for _, t := range templates {
		scale := 1 + t.EffectPerLevel*float64(levels[t.Slug])
		for _, m := range t.Modifiers {
			if m.Aggregates() {
				snap.Modifiers[m.Target] += m.Value * scale
			}
		}
	}
	return snap, nil
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUpgradeService(t *testing.T, doc string) *UpgradeService {
	t.Helper()
	repo, store := newEnv(t, doc)
	svc := NewUpgradeService(repo, store, quiet)
	now := t0
	svc.now = fixedClock(&now)
	return svc
}

func templateSlugs(ts []models.UpgradeNodeTemplate) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Slug)
	}
	return out
}

func TestInitializeTreeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, "")

	rows, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "stardust_production", rows[0].TemplateSlug)
	assert.Equal(t, int64(1000), rows[0].TargetProgress)
	assert.Equal(t, "crystal_mining", rows[1].TemplateSlug)

	again, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, again, 2)

	_, err = svc.InitializeTree(ctx, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestInitializeTreeConcurrent(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, "")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.InitializeTree(ctx, 7)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, slug := range []string{"stardust_production", "crystal_mining"} {
		n, err := svc.repo.CountUpgrades(ctx, 7, slug)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, slug)
	}
}

func TestAdvanceProgressCompletesAndUnlocks(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, "")
	_, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)

	res, err := svc.AdvanceProgress(ctx, 1, "stardust_production", 400)
	require.NoError(t, err)
	assert.Equal(t, int64(400), res.Upgrade.Progress)
	assert.False(t, res.Upgrade.Completed)
	assert.Empty(t, res.Unlocked)

	res, err = svc.AdvanceProgress(ctx, 1, "stardust_production", 700)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Upgrade.Progress, "progress is capped at the target")
	assert.True(t, res.Upgrade.Completed)
	require.NotNil(t, res.Upgrade.CompletedAt)
	assert.Equal(t, 1.0, res.Upgrade.Stability)
	assert.Equal(t, []string{"nebula_harvest", "orbital_forge"}, res.Unlocked)

	require.Len(t, res.Upgrade.ProgressHistory, 2)
	assert.Equal(t, int64(400), res.Upgrade.ProgressHistory[0].Delta)
	assert.Equal(t, int64(600), res.Upgrade.ProgressHistory[1].Delta)

	_, err = svc.AdvanceProgress(ctx, 1, "stardust_production", 1)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyCompleted)

	rows, err := svc.repo.ListUpgrades(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	// orbital_forge is already unlocked, so completing its second parent
	// creates nothing new.
	res, err = svc.AdvanceProgress(ctx, 1, "crystal_mining", 500)
	require.NoError(t, err)
	assert.Empty(t, res.Unlocked)
}

func TestAdvanceProgressRejects(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, "")
	_, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)

	_, err = svc.AdvanceProgress(ctx, 1, "stardust_production", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = svc.AdvanceProgress(ctx, 1, "stellar_engine", 10)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "locked nodes have no progress row")
}

func TestAdvanceProgressConcurrentNeverOvershoots(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, "")
	_, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AdvanceProgress(ctx, 1, "crystal_mining", 75)
		}()
	}
	wg.Wait()

	row, err := svc.repo.LockUpgrade(ctx, 1, "crystal_mining")
	require.NoError(t, err)
	assert.Equal(t, int64(500), row.Progress)
	assert.True(t, row.Completed)

	var sum int64
	for _, h := range row.ProgressHistory {
		sum += h.Delta
	}
	assert.Equal(t, int64(500), sum)

	n, err := svc.repo.CountUpgrades(ctx, 1, "orbital_forge")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

const delayedCatalog = `
upgrades:
  - slug: root
    currency: gold
    target_progress: 10
    children: [soon, later]
  - slug: soon
    currency: gold
    weight: 5
  - slug: later
    currency: gold
    delayed_until: 2026-06-01T00:00:00Z
`

func TestGetAvailableUpgrades(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, delayedCatalog)
	_, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)

	avail, err := svc.GetAvailableUpgrades(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, templateSlugs(avail))

	_, err = svc.AdvanceProgress(ctx, 1, "root", 10)
	require.NoError(t, err)

	avail, err = svc.GetAvailableUpgrades(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"soon", "root"}, templateSlugs(avail), "delayed node hidden, heaviest first")

	_, err = svc.AdvanceProgress(ctx, 1, "later", 1)
	assert.ErrorIs(t, err, apperrors.ErrConflict, "a hidden node accepts no progress")

	later := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	svc.now = fixedClock(&later)
	avail, err = svc.GetAvailableUpgrades(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root", "soon", "later"}, templateSlugs(avail))

	res, err := svc.AdvanceProgress(ctx, 1, "later", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Upgrade.Progress)
}

func TestPurchaseLevel(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, "")
	_, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)

	_, err = svc.PurchaseLevel(ctx, 1, "stardust_production")
	assert.ErrorIs(t, err, apperrors.ErrConflict, "node must be completed first")

	_, err = svc.AdvanceProgress(ctx, 1, "stardust_production", 1000)
	require.NoError(t, err)

	_, err = svc.PurchaseLevel(ctx, 1, "stardust_production")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	require.NoError(t, svc.repo.Grant(ctx, 1, "stardust", dec("100"), ""))
	row, err := svc.PurchaseLevel(ctx, 1, "stardust_production")
	require.NoError(t, err)
	assert.Equal(t, 1, row.Level)

	bal, err := svc.repo.Balance(ctx, 1, "stardust")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("50")), bal.String())

	// level 1 costs 50 * 1.15 = 57.5
	_, err = svc.PurchaseLevel(ctx, 1, "stardust_production")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	require.NoError(t, svc.repo.Grant(ctx, 1, "stardust", dec("7.5"), ""))
	row, err = svc.PurchaseLevel(ctx, 1, "stardust_production")
	require.NoError(t, err)
	assert.Equal(t, 2, row.Level)

	bal, err = svc.repo.Balance(ctx, 1, "stardust")
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), bal.String())
}

func TestPurchaseLevelStopsAtMax(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, `
upgrades:
  - {slug: root, currency: gold, target_progress: 1, max_level: 1, base_price: 0}
`)
	_, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)
	_, err = svc.AdvanceProgress(ctx, 1, "root", 1)
	require.NoError(t, err)

	row, err := svc.PurchaseLevel(ctx, 1, "root")
	require.NoError(t, err)
	assert.Equal(t, 1, row.Level)

	_, err = svc.PurchaseLevel(ctx, 1, "root")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := newUpgradeService(t, "")
	_, err := svc.InitializeTree(ctx, 1)
	require.NoError(t, err)
	_, err = svc.AdvanceProgress(ctx, 1, "stardust_production", 1000)
	require.NoError(t, err)
	require.NoError(t, svc.repo.Grant(ctx, 1, "stardust", dec("50"), ""))
	_, err = svc.PurchaseLevel(ctx, 1, "stardust_production")
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, snap.Upgrades, 4)
	assert.Equal(t, 1.0, snap.Stability)
	assert.Zero(t, snap.Instability)
	assert.ElementsMatch(t,
		[]string{"stardust_production", "crystal_mining", "nebula_harvest", "orbital_forge"},
		snap.Available)
	// 0.1 rate bonus grown by 5% for one purchased level
	assert.InDelta(t, 0.105, snap.Modifiers["stardust"], 1e-9)
}

package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"idle-economy/internal/catalog"
	"idle-economy/internal/models"
	"idle-economy/internal/repository"
	"idle-economy/internal/services"
	"idle-economy/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	quiet = slog.New(slog.DiscardHandler)
)

const tideCatalog = `
events:
  - slug: tide
    type: PERIODIC
    trigger: {interval_seconds: 3600}
    effect:
      modifiers: [{kind: rate_bonus, target: crystals, value: 0.2}]
      duration_seconds: 600
`

func newEnv(t *testing.T, doc string) (*repository.Repository, *catalog.Store) {
	t.Helper()
	c, err := catalog.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	db := testutil.NewDB(t)
	store := catalog.NewStore(db, decimal.Zero)
	_, err = store.Seed(context.Background(), c)
	require.NoError(t, err)
	return repository.NewRepository(db), store
}

func TestEvaluateJobCoversRecentPlayersOnly(t *testing.T) {
	ctx := context.Background()
	repo, store := newEnv(t, tideCatalog)
	events := services.NewEventService(repo, store, quiet)

	for _, id := range []uint{1, 2} {
		_, err := events.Evaluate(ctx, id, now.Add(-2*time.Hour))
		require.NoError(t, err)
	}
	_, err := events.Evaluate(ctx, 3, now.Add(-72*time.Hour))
	require.NoError(t, err)

	job := NewEvaluateJob(repo, events, 24*time.Hour, quiet)
	job.now = func() time.Time { return now }

	n, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// the tide fires again only for players the job evaluated
	for id, want := range map[uint]int{1: 2, 2: 2, 3: 1} {
		history, err := repo.EventHistory(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, want, "player %d", id)
	}
}

func TestEvaluateJobStopsOnCancelledContext(t *testing.T) {
	repo, store := newEnv(t, tideCatalog)
	events := services.NewEventService(repo, store, quiet)
	_, err := events.Evaluate(context.Background(), 1, now)
	require.NoError(t, err)

	job := NewEvaluateJob(repo, events, time.Hour, quiet)
	job.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = job.Run(ctx)
	assert.Error(t, err)
}

func TestOfferExpiryJob(t *testing.T) {
	ctx := context.Background()
	repo, store := newEnv(t, tideCatalog)
	market := services.NewMarketService(repo, store, quiet)

	require.NoError(t, market.Grant(ctx, 1, "crystals", decimal.NewFromInt(10)))
	expires := time.Now().Add(time.Hour)
	offer, err := market.CreateOffer(ctx, services.CreateOfferInput{
		SellerID:  1,
		ItemType:  models.ItemTypeResource,
		ItemID:    "crystals",
		Amount:    decimal.NewFromInt(10),
		Price:     decimal.NewFromInt(5),
		Currency:  "stardust",
		ExpiresAt: &expires,
	})
	require.NoError(t, err)

	job := NewOfferExpiryJob(market)
	n, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	job.now = func() time.Time { return expires.Add(time.Second) }
	n, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := market.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusExpired, got.Status)
}

type countingRunner struct {
	runs atomic.Int32
	err  error
}

func (r *countingRunner) Run(context.Context) (int, error) {
	r.runs.Add(1)
	return 1, r.err
}

func TestSchedulerRunsJobs(t *testing.T) {
	s, err := NewScheduler(quiet)
	require.NoError(t, err)

	ok := &countingRunner{}
	failing := &countingRunner{err: errors.New("boom")}
	require.NoError(t, s.Every("ok", 10*time.Millisecond, ok))
	require.NoError(t, s.Every("failing", 10*time.Millisecond, failing))

	s.Start()
	assert.Eventually(t, func() bool {
		return ok.runs.Load() >= 2 && failing.runs.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond, "a failing job keeps its schedule")
	require.NoError(t, s.Shutdown())
}

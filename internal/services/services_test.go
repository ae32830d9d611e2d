package services

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"idle-economy/internal/catalog"
	"idle-economy/internal/repository"
	"idle-economy/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var quiet = slog.New(slog.DiscardHandler)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newEnv seeds doc, or the default catalog when doc is empty, into a fresh
// database.
func newEnv(t *testing.T, doc string) (*repository.Repository, *catalog.Store) {
	t.Helper()
	repo, store, _ := newEnvDB(t, doc)
	return repo, store
}

// newEnvDB is newEnv plus the raw handle, for tests that tamper with rows.
func newEnvDB(t *testing.T, doc string) (*repository.Repository, *catalog.Store, *gorm.DB) {
	t.Helper()

	var (
		c   *catalog.Catalog
		err error
	)
	if doc == "" {
		c, err = catalog.Default()
	} else {
		c, err = catalog.Parse(strings.NewReader(doc))
	}
	require.NoError(t, err)

	db := testutil.NewDB(t)
	store := catalog.NewStore(db, decimal.Zero)
	_, err = store.Seed(context.Background(), c)
	require.NoError(t, err)
	return repository.NewRepository(db), store, db
}

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"
	"idle-economy/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newRepo(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(testutil.NewDB(t))
}

func TestCreateUpgradeIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	tmpl := &models.UpgradeNodeTemplate{Slug: "mining"}

	created, err := repo.CreateUpgradeIfAbsent(ctx, models.NewUserUpgrade(1, tmpl))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateUpgradeIfAbsent(ctx, models.NewUserUpgrade(1, tmpl))
	require.NoError(t, err)
	assert.False(t, created)

	n, err := repo.CountUpgrades(ctx, 1, "mining")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	row, err := repo.LockUpgrade(ctx, 1, "mining")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTargetProgress, row.TargetProgress)

	_, err = repo.LockUpgrade(ctx, 2, "mining")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLedgerDebitAndCredit(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	err := repo.Transaction(ctx, func(tx *Repository) error {
		return tx.Credit(ctx, 1, "stardust", dec("100"))
	})
	require.NoError(t, err)

	err = repo.Transaction(ctx, func(tx *Repository) error {
		return tx.Debit(ctx, 1, "stardust", dec("30.5"))
	})
	require.NoError(t, err)

	bal, err := repo.Balance(ctx, 1, "stardust")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("69.5")), bal.String())

	err = repo.Transaction(ctx, func(tx *Repository) error {
		return tx.Debit(ctx, 1, "stardust", dec("70"))
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	err = repo.Debit(ctx, 1, "stardust", dec("-1"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	bal, err = repo.Balance(ctx, 1, "stardust")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("69.5")), "failed debit leaves the balance untouched")

	missing, err := repo.Balance(ctx, 9, "stardust")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	boom := errors.New("boom")

	err := repo.Transaction(ctx, func(tx *Repository) error {
		if err := tx.Credit(ctx, 1, "stardust", dec("10")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	bal, err := repo.Balance(ctx, 1, "stardust")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestGrantRecordsLine(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Grant(ctx, 4, "crystals", dec("25"), "welcome"))

	lines, err := repo.AccountLines(ctx, models.PlayerAccount(4), 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, models.PaymentGrant, lines[0].TxType)
	assert.Equal(t, models.AccountSystem, lines[0].FromAccount)
	assert.Equal(t, models.PaymentConfirmed, lines[0].Status)

	assert.ErrorIs(t, repo.Grant(ctx, 4, "crystals", decimal.Zero, ""), apperrors.ErrInvalidArgument)
}

func TestRecordPaymentsDropsZeroLines(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mtxID := uuid.New()

	err := repo.RecordPayments(ctx,
		models.PaymentTransaction{MarketTransactionID: &mtxID, FromAccount: "a", ToAccount: "b", Amount: dec("5"), Currency: "stardust", TxType: models.PaymentFee, Status: models.PaymentPending},
		models.PaymentTransaction{MarketTransactionID: &mtxID, FromAccount: "a", ToAccount: "c", Amount: decimal.Zero, Currency: "stardust", TxType: models.PaymentFee, Status: models.PaymentPending},
	)
	require.NoError(t, err)
	require.NoError(t, repo.ConfirmPayments(ctx, mtxID))

	lines, err := repo.PaymentLines(ctx, mtxID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, models.PaymentConfirmed, lines[0].Status)
}

func TestInventoryReserveAndTransfer(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.AddItems(ctx, 1, "artifact", "ancient_lens", dec("3")))
	require.NoError(t, repo.ReserveItems(ctx, 1, "artifact", "ancient_lens", dec("2")))

	err := repo.ReserveItems(ctx, 1, "artifact", "ancient_lens", dec("2"))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	require.NoError(t, repo.TransferItems(ctx, 1, 2, "artifact", "ancient_lens", dec("2")))

	seller, err := repo.Items(ctx, 1)
	require.NoError(t, err)
	require.Len(t, seller, 1)
	assert.True(t, seller[0].Quantity.Equal(dec("1")))
	assert.True(t, seller[0].LockedQuantity.IsZero())

	buyer, err := repo.Items(ctx, 2)
	require.NoError(t, err)
	require.Len(t, buyer, 1)
	assert.True(t, buyer[0].Quantity.Equal(dec("2")))

	err = repo.TransferItems(ctx, 1, 2, "artifact", "ancient_lens", dec("1"))
	assert.ErrorIs(t, err, apperrors.ErrConflict, "unreserved units cannot be transferred")
}

func TestReserveAndReleaseResourceOffer(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Grant(ctx, 1, "crystals", dec("40"), ""))

	offer := &models.MarketOffer{
		ID:        uuid.New(),
		SellerID:  1,
		ItemType:  models.ItemTypeResource,
		ItemID:    "crystals",
		Amount:    dec("30"),
		Currency:  "stardust",
		Price:     dec("90"),
		Status:    models.OfferStatusActive,
		OfferType: models.OfferTypeP2P,
	}
	err := repo.Transaction(ctx, func(tx *Repository) error {
		if err := tx.ReserveOfferStock(ctx, offer); err != nil {
			return err
		}
		return tx.CreateOffer(ctx, offer)
	})
	require.NoError(t, err)
	assert.True(t, offer.IsItemLocked)

	bal, err := repo.Balance(ctx, 1, "crystals")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("10")), bal.String())

	err = repo.Transaction(ctx, func(tx *Repository) error {
		locked, err := tx.LockOffer(ctx, offer.ID)
		if err != nil {
			return err
		}
		return tx.CloseOffer(ctx, locked, models.OfferStatusCancelled)
	})
	require.NoError(t, err)

	bal, err = repo.Balance(ctx, 1, "crystals")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("40")), bal.String())

	stored, err := repo.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusCancelled, stored.Status)
	assert.False(t, stored.IsItemLocked)
}

func TestListOffersHidesOthersPersonalOffers(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	target := uint(3)

	for _, o := range []*models.MarketOffer{
		{SellerID: 1, ItemType: "artifact", ItemID: "x", Amount: dec("1"), Currency: "stardust", Price: dec("5"), Status: models.OfferStatusActive, OfferType: models.OfferTypeP2P},
		{SellerID: 1, ItemType: "artifact", ItemID: "y", Amount: dec("1"), Currency: "stardust", Price: dec("5"), Status: models.OfferStatusActive, OfferType: models.OfferTypePersonal, TargetBuyerID: &target},
	} {
		require.NoError(t, repo.CreateOffer(ctx, o))
	}

	visible, err := repo.ListOffers(ctx, OfferFilter{BuyerID: 2, Status: models.OfferStatusActive})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "x", visible[0].ItemID)

	visible, err = repo.ListOffers(ctx, OfferFilter{BuyerID: 3, Status: models.OfferStatusActive})
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestEventResolveOnce(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(time.Minute)

	ev := &models.UserEvent{
		PlayerID:     1,
		TemplateSlug: "meteor_shower",
		EventType:    models.EventRandom,
		Status:       models.UserEventActive,
		TriggeredAt:  now,
		ExpiresAt:    &expires,
	}
	require.NoError(t, repo.CreateEvent(ctx, ev))

	due, err := repo.DueEvents(ctx, 1, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.DueEvents(ctx, 1, expires)
	require.NoError(t, err)
	require.Len(t, due, 1)

	ok, err := repo.ResolveEvent(ctx, &due[0], models.UserEventExpired, expires)
	require.NoError(t, err)
	assert.True(t, ok)

	stale := *ev
	ok, err = repo.ResolveEvent(ctx, &stale, models.UserEventCompleted, expires)
	require.NoError(t, err)
	assert.False(t, ok, "second transition is a no-op")

	active, err := repo.ActiveEvents(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRecentlyEvaluatedPlayers(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for id, at := range map[uint]time.Time{1: now, 2: now.Add(-48 * time.Hour)} {
		err := repo.Transaction(ctx, func(tx *Repository) error {
			s, err := tx.LockEventSettings(ctx, id)
			if err != nil {
				return err
			}
			s.LastEvaluatedAt = &at
			return tx.SaveEventSettings(ctx, s)
		})
		require.NoError(t, err)
	}

	ids, err := repo.RecentlyEvaluatedPlayers(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, ids)
}

func TestPurgePlayer(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Grant(ctx, 1, "stardust", dec("10"), ""))
	require.NoError(t, repo.AddItems(ctx, 1, "artifact", "lens", dec("1")))
	_, err := repo.CreateUpgradeIfAbsent(ctx, models.NewUserUpgrade(1, &models.UpgradeNodeTemplate{Slug: "mining"}))
	require.NoError(t, err)
	require.NoError(t, repo.Grant(ctx, 2, "stardust", dec("10"), ""))

	require.NoError(t, repo.PurgePlayer(ctx, 1))

	n, err := repo.CountUpgrades(ctx, 1, "mining")
	require.NoError(t, err)
	assert.Zero(t, n)

	balances, err := repo.Balances(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, balances)

	other, err := repo.Balance(ctx, 2, "stardust")
	require.NoError(t, err)
	assert.True(t, other.Equal(dec("10")))
}

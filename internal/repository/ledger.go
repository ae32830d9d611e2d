package repository

import (
	"context"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger moves currency in and out of player balances. Both calls must run
// inside a transaction so a failed debit leaves nothing behind.
type Ledger interface {
	Debit(ctx context.Context, playerID uint, currency string, amount decimal.Decimal) error
	Credit(ctx context.Context, playerID uint, currency string, amount decimal.Decimal) error
}

var _ Ledger = (*Repository)(nil)

// Debit subtracts amount from the player's balance, failing with
// InsufficientFunds when the balance would go negative.
func (r *Repository) Debit(ctx context.Context, playerID uint, currency string, amount decimal.Decimal) error {
	const op = "ledger.Debit"
	if amount.IsNegative() {
		return apperrors.InvalidArgument(op, playerID, currency, "negative amount %s", amount)
	}
	if amount.IsZero() {
		return nil
	}

	bal, err := r.lockBalance(ctx, playerID, currency)
	if err != nil {
		return apperrors.Wrap(op, playerID, currency, err)
	}
	if bal.Amount.LessThan(amount) {
		return apperrors.InsufficientFunds(op, playerID, currency, "balance %s is below %s", bal.Amount, amount)
	}

	bal.Amount = bal.Amount.Sub(amount)
	if err := r.db.WithContext(ctx).Save(bal).Error; err != nil {
		return apperrors.Internal(op, playerID, currency, err)
	}
	return nil
}

// Credit adds amount to the player's balance, opening the account if needed.
func (r *Repository) Credit(ctx context.Context, playerID uint, currency string, amount decimal.Decimal) error {
	const op = "ledger.Credit"
	if amount.IsNegative() {
		return apperrors.InvalidArgument(op, playerID, currency, "negative amount %s", amount)
	}
	if amount.IsZero() {
		return nil
	}

	bal, err := r.lockBalance(ctx, playerID, currency)
	if err != nil {
		return apperrors.Wrap(op, playerID, currency, err)
	}

	bal.Amount = bal.Amount.Add(amount)
	if err := r.db.WithContext(ctx).Save(bal).Error; err != nil {
		return apperrors.Internal(op, playerID, currency, err)
	}
	return nil
}

// LockBalances opens and locks the accounts of playerIDs in one currency in
// ascending player order, so two transactions touching the same pair never
// wait on each other in opposite order.
func (r *Repository) LockBalances(ctx context.Context, currency string, playerIDs ...uint) error {
	const op = "ledger.LockBalances"
	for _, id := range playerIDs {
		if _, err := r.createIfAbsent(ctx, &models.PlayerBalance{PlayerID: id, Currency: currency, Amount: decimal.Zero}); err != nil {
			return apperrors.Internal(op, id, currency, err)
		}
	}

	var rows []models.PlayerBalance
	err := r.forUpdate(ctx).
		Where("currency = ? AND player_id IN ?", currency, playerIDs).
		Order("player_id ASC").
		Find(&rows).Error
	if err != nil {
		return apperrors.Internal(op, 0, currency, err)
	}
	return nil
}

func (r *Repository) lockBalance(ctx context.Context, playerID uint, currency string) (*models.PlayerBalance, error) {
	if _, err := r.createIfAbsent(ctx, &models.PlayerBalance{PlayerID: playerID, Currency: currency, Amount: decimal.Zero}); err != nil {
		return nil, err
	}

	var bal models.PlayerBalance
	err := r.forUpdate(ctx).
		Where("player_id = ? AND currency = ?", playerID, currency).
		First(&bal).Error
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

// Balance returns the player's balance in currency; a missing account is
// zero.
func (r *Repository) Balance(ctx context.Context, playerID uint, currency string) (decimal.Decimal, error) {
	var rows []models.PlayerBalance
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND currency = ?", playerID, currency).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, apperrors.Internal("ledger.Balance", playerID, currency, err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Amount, nil
}

// Balances returns every account of the player.
func (r *Repository) Balances(ctx context.Context, playerID uint) ([]models.PlayerBalance, error) {
	var rows []models.PlayerBalance
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("currency ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Internal("ledger.Balances", playerID, "", err)
	}
	return rows, nil
}

// Grant credits a player from the system account and records the line.
func (r *Repository) Grant(ctx context.Context, playerID uint, currency string, amount decimal.Decimal, reference string) error {
	const op = "ledger.Grant"
	if !amount.IsPositive() {
		return apperrors.InvalidArgument(op, playerID, currency, "grant amount must be positive, got %s", amount)
	}
	if err := r.Credit(ctx, playerID, currency, amount); err != nil {
		return err
	}
	return r.RecordPayments(ctx, models.PaymentTransaction{
		FromAccount: models.AccountSystem,
		ToAccount:   models.PlayerAccount(playerID),
		Amount:      amount,
		Currency:    currency,
		TxType:      models.PaymentGrant,
		Status:      models.PaymentConfirmed,
		Reference:   reference,
	})
}

// RecordPayments appends ledger lines. Zero-amount lines are dropped.
func (r *Repository) RecordPayments(ctx context.Context, lines ...models.PaymentTransaction) error {
	kept := make([]models.PaymentTransaction, 0, len(lines))
	for _, l := range lines {
		if l.Amount.IsPositive() {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&kept).Error; err != nil {
		return apperrors.Internal("ledger.RecordPayments", 0, "", err)
	}
	return nil
}

// ConfirmPayments moves the pending lines of a market transaction to
// CONFIRMED.
func (r *Repository) ConfirmPayments(ctx context.Context, marketTxID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("market_transaction_id = ? AND status = ?", marketTxID, models.PaymentPending).
		Update("status", models.PaymentConfirmed).Error
	if err != nil {
		return apperrors.Internal("ledger.ConfirmPayments", 0, marketTxID.String(), err)
	}
	return nil
}

// PaymentLines returns the lines written for a market transaction.
func (r *Repository) PaymentLines(ctx context.Context, marketTxID uuid.UUID) ([]models.PaymentTransaction, error) {
	var lines []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("market_transaction_id = ?", marketTxID).
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, apperrors.Internal("ledger.PaymentLines", 0, marketTxID.String(), err)
	}
	return lines, nil
}

// AccountLines returns the most recent lines touching an account.
func (r *Repository) AccountLines(ctx context.Context, account string, limit int) ([]models.PaymentTransaction, error) {
	var lines []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("from_account = ? OR to_account = ?", account, account).
		Order("created_at DESC").
		Limit(limit).
		Find(&lines).Error
	if err != nil {
		return nil, apperrors.Internal("ledger.AccountLines", 0, account, err)
	}
	return lines, nil
}

// AccountBalance nets the CONFIRMED lines of a pseudo account in one
// currency: inbound amounts minus outbound amounts. Fees are never paid out
// to a balance row, so this is where collected commission is read back.
func (r *Repository) AccountBalance(ctx context.Context, account, currency string) (decimal.Decimal, error) {
	var lines []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("currency = ? AND status = ?", currency, models.PaymentConfirmed).
		Where("from_account = ? OR to_account = ?", account, account).
		Find(&lines).Error
	if err != nil {
		return decimal.Zero, apperrors.Internal("ledger.AccountBalance", 0, account, err)
	}
	total := decimal.Zero
	for _, l := range lines {
		if l.ToAccount == account {
			total = total.Add(l.Amount)
		}
		if l.FromAccount == account {
			total = total.Sub(l.Amount)
		}
	}
	return total, nil
}

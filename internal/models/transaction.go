package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentTxType is the closed set of reasons a ledger line is written.
type PaymentTxType string

const (
	PaymentBuyerToContract  PaymentTxType = "BUYER_TO_CONTRACT"
	PaymentContractToSeller PaymentTxType = "CONTRACT_TO_SELLER"
	PaymentFee              PaymentTxType = "FEE"
	PaymentItemTransfer     PaymentTxType = "ITEM_TRANSFER"
	PaymentOfferEscrow      PaymentTxType = "OFFER_ESCROW"
	PaymentOfferRelease     PaymentTxType = "OFFER_RELEASE"
	PaymentEventReward      PaymentTxType = "EVENT_REWARD"
	PaymentUpgradePurchase  PaymentTxType = "UPGRADE_PURCHASE"
	PaymentGrant            PaymentTxType = "GRANT"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Pseudo accounts used in ledger lines next to player accounts.
const (
	AccountEscrow = "escrow"
	AccountSystem = "system"
	AccountFees   = "fees"
)

// PlayerAccount formats the ledger account reference of a player.
func PlayerAccount(playerID uint) string {
	return fmt.Sprintf("player:%d", playerID)
}

// PaymentTransaction is an append-only ledger line. Lines are never updated
// once CONFIRMED or FAILED.
type PaymentTransaction struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketTransactionID *uuid.UUID      `gorm:"type:uuid;index" json:"market_transaction_id,omitempty"`
	FromAccount         string          `gorm:"size:64;not null;index" json:"from_account"`
	ToAccount           string          `gorm:"size:64;not null;index" json:"to_account"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Currency            string          `gorm:"size:120;not null" json:"currency"`
	TxType              PaymentTxType   `gorm:"size:32;not null;index" json:"tx_type"`
	Status              PaymentStatus   `gorm:"size:20;not null;index" json:"status"`
	Reference           string          `gorm:"size:120" json:"reference,omitempty"`
	CreatedAt           time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("payment line amount must be positive, got %s", p.Amount)
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ItemTypeResource marks an offer of a fungible ledger resource; any other
// item type refers to inventory rows.
const ItemTypeResource = "resource"

// Column widths shared by item and currency keys. Item ids double as
// currencies in resource trades, so both use MaxKeyLength.
const (
	MaxItemTypeLength = 50
	MaxKeyLength      = 120
)

type OfferStatus string

const (
	OfferStatusActive    OfferStatus = "ACTIVE"
	OfferStatusCompleted OfferStatus = "COMPLETED"
	OfferStatusCancelled OfferStatus = "CANCELLED"
	OfferStatusExpired   OfferStatus = "EXPIRED"
)

type OfferType string

const (
	OfferTypeSystem   OfferType = "SYSTEM"
	OfferTypeP2P      OfferType = "P2P"
	OfferTypePersonal OfferType = "PERSONAL"
)

func (t OfferType) Valid() bool {
	switch t {
	case OfferTypeSystem, OfferTypeP2P, OfferTypePersonal:
		return true
	}
	return false
}

// MarketCommission is the catalog commission rate for a currency.
type MarketCommission struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Currency  string          `gorm:"size:120;uniqueIndex;not null" json:"currency"`
	Rate      decimal.Decimal `gorm:"type:decimal(10,8);not null;default:0" json:"rate"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (MarketCommission) TableName() string {
	return "market_commissions"
}

// MarketOffer is a listing of an item or resource for a fixed total price.
type MarketOffer struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SellerID      uint            `gorm:"not null;index" json:"seller_id"`
	ItemType      string          `gorm:"size:50;not null;index:idx_market_offers_item" json:"item_type"`
	ItemID        string          `gorm:"size:120;not null;index:idx_market_offers_item" json:"item_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Currency      string          `gorm:"size:120;not null;index" json:"currency"`
	Price         decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	Status        OfferStatus     `gorm:"size:20;not null;default:ACTIVE;index" json:"status"`
	OfferType     OfferType       `gorm:"size:20;not null" json:"offer_type"`
	TargetBuyerID *uint           `gorm:"index" json:"target_buyer_id,omitempty"`
	IsItemLocked  bool            `gorm:"not null;default:false" json:"is_item_locked"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (MarketOffer) TableName() string {
	return "market_offers"
}

func (o *MarketOffer) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IsResource reports whether the offer moves a fungible ledger resource.
func (o *MarketOffer) IsResource() bool {
	return o.ItemType == ItemTypeResource
}

// ReservesStock reports whether the seller's stock was set aside at listing.
func (o *MarketOffer) ReservesStock() bool {
	return o.OfferType != OfferTypeSystem
}

type MarketTransactionStatus string

const (
	MarketTxPending   MarketTransactionStatus = "PENDING"
	MarketTxCompleted MarketTransactionStatus = "COMPLETED"
	MarketTxFailed    MarketTransactionStatus = "FAILED"
	MarketTxCancelled MarketTransactionStatus = "CANCELLED"
)

// MarketTransaction is one execution of a trade against an offer.
type MarketTransaction struct {
	ID          uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	OfferID     uuid.UUID               `gorm:"type:uuid;not null;index" json:"offer_id"`
	BuyerID     uint                    `gorm:"not null;index" json:"buyer_id"`
	SellerID    uint                    `gorm:"not null;index" json:"seller_id"`
	Price       decimal.Decimal         `gorm:"type:decimal(20,8);not null" json:"price"`
	Commission  decimal.Decimal         `gorm:"type:decimal(20,8);not null;default:0" json:"commission"`
	Currency    string                  `gorm:"size:120;not null" json:"currency"`
	Status      MarketTransactionStatus `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func (MarketTransaction) TableName() string {
	return "market_transactions"
}

func (t *MarketTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TradeResult is returned by a completed trade.
type TradeResult struct {
	Offer       *MarketOffer         `json:"offer"`
	Transaction *MarketTransaction   `json:"transaction"`
	Payments    []PaymentTransaction `json:"payments"`
}

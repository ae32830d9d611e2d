package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlayerBalance is one currency account of a player. Amount never goes
// negative.
type PlayerBalance struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	PlayerID  uint            `gorm:"not null;uniqueIndex:idx_player_balances_player_currency" json:"player_id"`
	Currency  string          `gorm:"size:120;not null;uniqueIndex:idx_player_balances_player_currency" json:"currency"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (PlayerBalance) TableName() string {
	return "player_balances"
}

// PlayerItem is a stack of non-fungible-by-kind items in a player's
// inventory. LockedQuantity is reserved by active offers.
type PlayerItem struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PlayerID       uint            `gorm:"not null;uniqueIndex:idx_player_items_player_item" json:"player_id"`
	ItemType       string          `gorm:"size:50;not null;uniqueIndex:idx_player_items_player_item" json:"item_type"`
	ItemID         string          `gorm:"size:120;not null;uniqueIndex:idx_player_items_player_item" json:"item_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"quantity"`
	LockedQuantity decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"locked_quantity"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (PlayerItem) TableName() string {
	return "player_items"
}

// Available is the quantity not reserved by offers.
func (i *PlayerItem) Available() decimal.Decimal {
	return i.Quantity.Sub(i.LockedQuantity)
}

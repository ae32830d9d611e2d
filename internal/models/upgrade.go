package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTargetProgress is used when a template does not set one.
const DefaultTargetProgress int64 = 100

// UpgradeConditions is the unlock predicate of an upgrade node.
type UpgradeConditions struct {
	// Requires lists parent slugs; empty means the node is a root.
	Requires       []string   `json:"requires,omitempty" yaml:"requires"`
	TargetProgress int64      `json:"target_progress,omitempty" yaml:"target_progress"`
	DelayedUntil   *time.Time `json:"delayed_until,omitempty" yaml:"delayed_until"`
}

// UpgradeNodeTemplate is an immutable catalog entry of the upgrade graph.
type UpgradeNodeTemplate struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	Slug            string            `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Title           string            `gorm:"size:255" json:"title"`
	Description     string            `gorm:"type:text" json:"description"`
	MaxLevel        int               `gorm:"not null;default:0" json:"max_level"`
	BasePrice       decimal.Decimal   `gorm:"type:decimal(20,8);not null;default:0" json:"base_price"`
	PriceMultiplier decimal.Decimal   `gorm:"type:decimal(20,8);not null" json:"price_multiplier"`
	EffectPerLevel  float64           `gorm:"not null;default:0" json:"effect_per_level"`
	Currency        string            `gorm:"size:120;not null" json:"currency"`
	Category        string            `gorm:"size:50;index" json:"category"`
	Stability       float64           `gorm:"not null;default:0" json:"stability"`
	Instability     float64           `gorm:"not null;default:0" json:"instability"`
	Modifiers       []Effect          `gorm:"serializer:json;type:text" json:"modifiers"`
	Conditions      UpgradeConditions `gorm:"serializer:json;type:text" json:"conditions"`
	Children        []string          `gorm:"serializer:json;type:text" json:"children"`
	Weight          int               `gorm:"not null;default:0" json:"weight"`
	Active          bool              `gorm:"not null;index" json:"active"`
	Presentation    Presentation      `gorm:"serializer:json;type:text" json:"presentation,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (UpgradeNodeTemplate) TableName() string {
	return "upgrade_node_templates"
}

// IsRoot reports whether the node is available without a parent.
func (t *UpgradeNodeTemplate) IsRoot() bool {
	return len(t.Conditions.Requires) == 0
}

// TargetProgress returns the fill target for a fresh progress row.
func (t *UpgradeNodeTemplate) TargetProgress() int64 {
	if t.Conditions.TargetProgress > 0 {
		return t.Conditions.TargetProgress
	}
	return DefaultTargetProgress
}

// DelayedAt reports whether the node is held back at now.
func (t *UpgradeNodeTemplate) DelayedAt(now time.Time) bool {
	return t.Conditions.DelayedUntil != nil && t.Conditions.DelayedUntil.After(now)
}

// LevelPrice is basePrice * priceMultiplier^level.
func (t *UpgradeNodeTemplate) LevelPrice(level int) decimal.Decimal {
	return t.BasePrice.Mul(t.PriceMultiplier.Pow(decimal.NewFromInt(int64(level)))).Round(8)
}

// ProgressEntry is one append-only record of progress applied to a node.
type ProgressEntry struct {
	At    time.Time `json:"at"`
	Delta int64     `json:"delta"`
}

// UserUpgrade is a player's progress through one upgrade node.
type UserUpgrade struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	PlayerID        uint            `gorm:"not null;uniqueIndex:idx_user_upgrades_player_template" json:"player_id"`
	TemplateSlug    string          `gorm:"size:120;not null;uniqueIndex:idx_user_upgrades_player_template" json:"template_slug"`
	Level           int             `gorm:"not null;default:0" json:"level"`
	Progress        int64           `gorm:"not null;default:0" json:"progress"`
	TargetProgress  int64           `gorm:"not null" json:"target_progress"`
	Completed       bool            `gorm:"not null;default:false;index" json:"completed"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ProgressHistory []ProgressEntry `gorm:"serializer:json;type:text" json:"progress_history"`
	Stability       float64         `gorm:"not null;default:0" json:"stability"`
	Instability     float64         `gorm:"not null;default:0" json:"instability"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (UserUpgrade) TableName() string {
	return "user_upgrades"
}

// NewUserUpgrade builds the initial progress row for a template.
func NewUserUpgrade(playerID uint, t *UpgradeNodeTemplate) *UserUpgrade {
	return &UserUpgrade{
		PlayerID:        playerID,
		TemplateSlug:    t.Slug,
		TargetProgress:  t.TargetProgress(),
		ProgressHistory: []ProgressEntry{},
	}
}

// AdvanceResult is returned by a progress step.
type AdvanceResult struct {
	Upgrade  *UserUpgrade `json:"upgrade"`
	Unlocked []string     `json:"unlocked"`
}

// ProgressionSnapshot is the read model of a player's upgrade tree.
type ProgressionSnapshot struct {
	PlayerID    uint          `json:"player_id"`
	Upgrades    []UserUpgrade `json:"upgrades"`
	Available   []string      `json:"available"`
	Stability   float64       `json:"stability"`
	Instability float64       `json:"instability"`
	Modifiers   MultiplierSet `json:"modifiers"`
}

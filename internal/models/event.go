package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventType is the closed set of trigger rule families.
type EventType string

const (
	EventRandom            EventType = "RANDOM"
	EventPeriodic          EventType = "PERIODIC"
	EventOneTime           EventType = "ONE_TIME"
	EventConditional       EventType = "CONDITIONAL"
	EventChained           EventType = "CHAINED"
	EventGlobalTimed       EventType = "GLOBAL_TIMED"
	EventLimitedRepeatable EventType = "LIMITED_REPEATABLE"
	EventSeasonal          EventType = "SEASONAL"
	EventTriggeredByAction EventType = "TRIGGERED_BY_ACTION"
	EventPassive           EventType = "PASSIVE"
)

// Automatic reports whether evaluation may fire the type on its own.
func (t EventType) Automatic() bool {
	switch t {
	case EventTriggeredByAction, EventPassive:
		return false
	}
	return true
}

// SingleInstance reports whether a template of this type is held back
// while one of its instances is still ACTIVE. Other types rely on their
// trigger rule and the type cooldown.
func (t EventType) SingleInstance() bool {
	return t == EventOneTime || t == EventLimitedRepeatable
}

// TriggerConfig holds the parameters of every trigger rule; which fields
// apply is decided by the template's EventType.
type TriggerConfig struct {
	ChancePerSecond float64    `json:"chance_per_second,omitempty" yaml:"chance_per_second"`
	IntervalSeconds int64      `json:"interval_seconds,omitempty" yaml:"interval_seconds"`
	Condition       *Predicate `json:"condition,omitempty" yaml:"condition"`
	Prerequisite    string     `json:"prerequisite,omitempty" yaml:"prerequisite"`
	At              *time.Time `json:"at,omitempty" yaml:"at"`
	Limit           int64      `json:"limit,omitempty" yaml:"limit"`
	Start           *time.Time `json:"start,omitempty" yaml:"start"`
	End             *time.Time `json:"end,omitempty" yaml:"end"`
}

// Validate checks that the fields required by t are present.
func (c TriggerConfig) Validate(t EventType) error {
	switch t {
	case EventRandom:
		if c.ChancePerSecond <= 0 || c.ChancePerSecond > 1 {
			return fmt.Errorf("chance_per_second must be in (0,1], got %v", c.ChancePerSecond)
		}
	case EventPeriodic:
		if c.IntervalSeconds <= 0 {
			return fmt.Errorf("interval_seconds must be positive")
		}
	case EventOneTime, EventTriggeredByAction, EventPassive:
	case EventConditional:
		if c.Condition == nil {
			return fmt.Errorf("conditional trigger needs a condition")
		}
		return c.Condition.Validate()
	case EventChained:
		if c.Prerequisite == "" {
			return fmt.Errorf("chained trigger needs a prerequisite")
		}
	case EventGlobalTimed:
		if c.At == nil {
			return fmt.Errorf("global timed trigger needs at")
		}
	case EventLimitedRepeatable:
		if c.Limit <= 0 {
			return fmt.Errorf("limit must be positive")
		}
	case EventSeasonal:
		if c.Start == nil || c.End == nil || !c.End.After(*c.Start) {
			return fmt.Errorf("seasonal trigger needs start < end")
		}
	default:
		return fmt.Errorf("unknown event type %q", t)
	}
	return nil
}

// EventEffect is what an event applies while it is active.
type EventEffect struct {
	Modifiers       []Effect `json:"modifiers,omitempty" yaml:"modifiers"`
	DurationSeconds int64    `json:"duration_seconds,omitempty" yaml:"duration_seconds"`
}

// Duration returns the effect duration; zero means no expiry.
func (e EventEffect) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

// EventTemplate is an immutable catalog entry describing a gameplay event.
type EventTemplate struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	Slug          string        `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Title         string        `gorm:"size:255" json:"title"`
	Type          EventType     `gorm:"size:50;not null;index" json:"type"`
	TriggerConfig TriggerConfig `gorm:"serializer:json;type:text" json:"trigger_config"`
	Effect        EventEffect   `gorm:"serializer:json;type:text" json:"effect"`
	// Frequency is the cooldown in seconds applied to the event type after
	// this template fires.
	Frequency    int64        `gorm:"not null;default:0" json:"frequency"`
	Conditions   []Predicate  `gorm:"serializer:json;type:text" json:"conditions"`
	Priority     int          `gorm:"not null;default:0" json:"priority"`
	Active       bool         `gorm:"not null;index" json:"active"`
	Presentation Presentation `gorm:"serializer:json;type:text" json:"presentation,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (EventTemplate) TableName() string {
	return "event_templates"
}

// UserEventStatus is the lifecycle of a player's event instance.
type UserEventStatus string

const (
	UserEventActive    UserEventStatus = "ACTIVE"
	UserEventExpired   UserEventStatus = "EXPIRED"
	UserEventCompleted UserEventStatus = "COMPLETED"
	UserEventCancelled UserEventStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s UserEventStatus) Terminal() bool {
	return s != UserEventActive
}

// UserEvent is one activation of an event template for a player.
type UserEvent struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PlayerID     uint            `gorm:"not null;index:idx_user_events_player_status" json:"player_id"`
	TemplateSlug string          `gorm:"size:120;not null;index" json:"template_slug"`
	EventType    EventType       `gorm:"size:50;not null" json:"event_type"`
	Status       UserEventStatus `gorm:"size:20;not null;default:ACTIVE;index:idx_user_events_player_status" json:"status"`
	TriggeredAt  time.Time       `gorm:"not null" json:"triggered_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	Effects      EventEffect     `gorm:"serializer:json;type:text" json:"effects"`
	Progress     float64         `gorm:"not null;default:0" json:"progress"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (UserEvent) TableName() string {
	return "user_events"
}

func (e *UserEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ExpiredAt reports whether an active event should be swept at now.
func (e *UserEvent) ExpiredAt(now time.Time) bool {
	return e.Status == UserEventActive && e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// UserEventSettings is the per-player singleton holding the aggregated
// multiplier set and event-type preferences.
type UserEventSettings struct {
	ID              uint                 `gorm:"primaryKey" json:"id"`
	PlayerID        uint                 `gorm:"uniqueIndex;not null" json:"player_id"`
	Multipliers     MultiplierSet        `gorm:"serializer:json;type:text" json:"multipliers"`
	Cooldowns       map[string]time.Time `gorm:"serializer:json;type:text" json:"cooldowns"`
	EnabledTypes    []EventType          `gorm:"serializer:json;type:text" json:"enabled_types"`
	DisabledTypes   []EventType          `gorm:"serializer:json;type:text" json:"disabled_types"`
	PriorityTypes   []EventType          `gorm:"serializer:json;type:text" json:"priority_types"`
	LastEvaluatedAt *time.Time           `json:"last_evaluated_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func (UserEventSettings) TableName() string {
	return "user_event_settings"
}

// Allows reports whether the player's preferences let type t fire.
func (s *UserEventSettings) Allows(t EventType) bool {
	for _, d := range s.DisabledTypes {
		if d == t {
			return false
		}
	}
	if len(s.EnabledTypes) == 0 {
		return true
	}
	for _, e := range s.EnabledTypes {
		if e == t {
			return true
		}
	}
	return false
}

// CoolingDown reports whether type t is still in cooldown at now.
func (s *UserEventSettings) CoolingDown(t EventType, now time.Time) bool {
	until, ok := s.Cooldowns[string(t)]
	return ok && until.After(now)
}

// PriorityRank orders preferred types first; unlisted types share the
// lowest rank.
func (s *UserEventSettings) PriorityRank(t EventType) int {
	for i, p := range s.PriorityTypes {
		if p == t {
			return i
		}
	}
	return len(s.PriorityTypes)
}

// EvaluationResult is returned by an evaluation pass.
type EvaluationResult struct {
	PlayerID     uint          `json:"player_id"`
	ActiveEvents []UserEvent   `json:"active_events"`
	Multipliers  MultiplierSet `json:"multipliers"`
	Triggered    []UserEvent   `json:"triggered"`
	Expired      []UserEvent   `json:"expired"`
}

package repository

import (
	"context"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"

	"github.com/google/uuid"
)

// LockEventSettings returns the player's settings singleton, creating it on
// first use, with a row lock held for the rest of the transaction.
func (r *Repository) LockEventSettings(ctx context.Context, playerID uint) (*models.UserEventSettings, error) {
	const op = "events.LockSettings"
	fresh := &models.UserEventSettings{
		PlayerID:    playerID,
		Multipliers: models.MultiplierSet{},
		Cooldowns:   map[string]time.Time{},
	}
	if _, err := r.createIfAbsent(ctx, fresh); err != nil {
		return nil, apperrors.Internal(op, playerID, "", err)
	}

	var s models.UserEventSettings
	if err := r.forUpdate(ctx).Where("player_id = ?", playerID).First(&s).Error; err != nil {
		return nil, lookupErr(err, op, playerID, "")
	}
	if s.Multipliers == nil {
		s.Multipliers = models.MultiplierSet{}
	}
	if s.Cooldowns == nil {
		s.Cooldowns = map[string]time.Time{}
	}
	return &s, nil
}

// SaveEventSettings persists the settings singleton.
func (r *Repository) SaveEventSettings(ctx context.Context, s *models.UserEventSettings) error {
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return apperrors.Internal("events.SaveSettings", s.PlayerID, "", err)
	}
	return nil
}

// CreateEvent inserts a new event instance.
func (r *Repository) CreateEvent(ctx context.Context, e *models.UserEvent) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return apperrors.Internal("events.Create", e.PlayerID, e.TemplateSlug, err)
	}
	return nil
}

// LockEvent loads one of the player's event instances with a row lock.
func (r *Repository) LockEvent(ctx context.Context, playerID uint, id uuid.UUID) (*models.UserEvent, error) {
	var e models.UserEvent
	err := r.forUpdate(ctx).
		Where("id = ? AND player_id = ?", id, playerID).
		First(&e).Error
	if err != nil {
		return nil, lookupErr(err, "events.Lock", playerID, id.String())
	}
	return &e, nil
}

// ResolveEvent moves an ACTIVE instance to a terminal status. It reports
// false when the instance had already left ACTIVE, so a transition is
// applied at most once.
func (r *Repository) ResolveEvent(ctx context.Context, e *models.UserEvent, status models.UserEventStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.UserEvent{}).
		Where("id = ? AND status = ?", e.ID, models.UserEventActive).
		Updates(map[string]any{"status": status, "resolved_at": at})
	if res.Error != nil {
		return false, apperrors.Internal("events.Resolve", e.PlayerID, e.ID.String(), res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	e.Status = status
	e.ResolvedAt = &at
	return true, nil
}

// ActiveEvents returns the player's ACTIVE instances, oldest first.
func (r *Repository) ActiveEvents(ctx context.Context, playerID uint) ([]models.UserEvent, error) {
	var events []models.UserEvent
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND status = ?", playerID, models.UserEventActive).
		Order("triggered_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Internal("events.Active", playerID, "", err)
	}
	return events, nil
}

// DueEvents returns ACTIVE instances whose expiry is at or before now.
func (r *Repository) DueEvents(ctx context.Context, playerID uint, now time.Time) ([]models.UserEvent, error) {
	var events []models.UserEvent
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
			playerID, models.UserEventActive, now).
		Order("expires_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Internal("events.Due", playerID, "", err)
	}
	return events, nil
}

// EventHistory returns every instance the player ever had.
func (r *Repository) EventHistory(ctx context.Context, playerID uint) ([]models.UserEvent, error) {
	var events []models.UserEvent
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("triggered_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Internal("events.History", playerID, "", err)
	}
	return events, nil
}

// RecentlyEvaluatedPlayers returns players whose settings were evaluated
// since the given time.
func (r *Repository) RecentlyEvaluatedPlayers(ctx context.Context, since time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.UserEventSettings{}).
		Where("last_evaluated_at >= ?", since).
		Order("player_id ASC").
		Pluck("player_id", &ids).Error
	if err != nil {
		return nil, apperrors.Internal("events.RecentPlayers", 0, "", err)
	}
	return ids, nil
}

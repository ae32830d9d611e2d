package services

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"
	"idle-economy/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventService activates, expires and resolves per-player events and keeps
// the aggregated multiplier set in each player's settings row.
type EventService struct {
	repo   *repository.Repository
	store  TemplateStore
	logger *slog.Logger
	rand   func() float64
}

func NewEventService(repo *repository.Repository, store TemplateStore, logger *slog.Logger) *EventService {
	return &EventService{
		repo:   repo,
		store:  store,
		logger: loggerOrDefault(logger),
		rand:   rand.Float64,
	}
}

// Evaluate expires due events, fires every template whose rule holds and
// returns the player's active events with the recomputed multipliers.
func (s *EventService) Evaluate(ctx context.Context, playerID uint, now time.Time) (*models.EvaluationResult, error) {
	const op = "events.Evaluate"
	if playerID == 0 {
		return nil, apperrors.InvalidArgument(op, playerID, "", "player id is required")
	}
	now = utc(now)

	templates, err := s.store.ListActiveEventTemplates(ctx)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}

	result := &models.EvaluationResult{
		PlayerID:  playerID,
		Triggered: []models.UserEvent{},
		Expired:   []models.UserEvent{},
	}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		settings, err := tx.LockEventSettings(ctx, playerID)
		if err != nil {
			return err
		}

		result.Expired, err = s.sweep(ctx, tx, playerID, now)
		if err != nil {
			return err
		}

		st, err := s.loadState(ctx, tx, playerID)
		if err != nil {
			return err
		}

		var elapsed time.Duration
		if settings.LastEvaluatedAt != nil && now.After(*settings.LastEvaluatedAt) {
			elapsed = now.Sub(*settings.LastEvaluatedAt)
		}

		sort.SliceStable(templates, func(i, j int) bool {
			return settings.PriorityRank(templates[i].Type) < settings.PriorityRank(templates[j].Type)
		})
		for i := range templates {
			t := &templates[i]
			if !t.Type.Automatic() || !settings.Allows(t.Type) || settings.CoolingDown(t.Type, now) {
				continue
			}
			if t.Type.SingleInstance() && st.hasActive(t.Slug) {
				continue
			}
			ok, err := st.holdsAll(t.Conditions)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			fire, err := shouldFire(t, st, elapsed, now, s.rand)
			if err != nil {
				return err
			}
			if !fire {
				continue
			}

			ev, err := s.activate(ctx, tx, settings, t, now)
			if err != nil {
				return err
			}
			st.record(*ev)
			result.Triggered = append(result.Triggered, *ev)
		}

		if settings.LastEvaluatedAt == nil || now.After(*settings.LastEvaluatedAt) {
			settings.LastEvaluatedAt = &now
		}
		result.ActiveEvents, result.Multipliers, err = s.refresh(ctx, tx, settings)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, "", err)
	}

	if len(result.Triggered) > 0 || len(result.Expired) > 0 {
		s.logger.Info("events evaluated",
			"player_id", playerID,
			"triggered", len(result.Triggered),
			"expired", len(result.Expired),
			"active", len(result.ActiveEvents))
	}
	return result, nil
}

// sweep moves due ACTIVE events to EXPIRED. An event whose status was
// already changed is skipped so its effect is dropped exactly once.
func (s *EventService) sweep(ctx context.Context, tx *repository.Repository, playerID uint, now time.Time) ([]models.UserEvent, error) {
	due, err := tx.DueEvents(ctx, playerID, now)
	if err != nil {
		return nil, err
	}
	expired := []models.UserEvent{}
	for i := range due {
		ok, err := tx.ResolveEvent(ctx, &due[i], models.UserEventExpired, now)
		if err != nil {
			return nil, err
		}
		if ok {
			expired = append(expired, due[i])
		}
	}
	return expired, nil
}

func (s *EventService) loadState(ctx context.Context, tx *repository.Repository, playerID uint) (*playerState, error) {
	events, err := tx.EventHistory(ctx, playerID)
	if err != nil {
		return nil, err
	}
	upgrades, err := tx.ListUpgrades(ctx, playerID)
	if err != nil {
		return nil, err
	}
	balances, err := tx.Balances(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return &playerState{playerID: playerID, events: events, upgrades: upgrades, balances: balances}, nil
}

// activate creates an instance with a snapshot of the template's effect and
// starts the type cooldown.
func (s *EventService) activate(ctx context.Context, tx *repository.Repository, settings *models.UserEventSettings, t *models.EventTemplate, now time.Time) (*models.UserEvent, error) {
	ev := &models.UserEvent{
		PlayerID:     settings.PlayerID,
		TemplateSlug: t.Slug,
		EventType:    t.Type,
		Status:       models.UserEventActive,
		TriggeredAt:  now,
		Effects: models.EventEffect{
			Modifiers:       append([]models.Effect(nil), t.Effect.Modifiers...),
			DurationSeconds: t.Effect.DurationSeconds,
		},
	}
	if d := t.Effect.Duration(); d > 0 {
		expires := now.Add(d)
		ev.ExpiresAt = &expires
	}
	if err := tx.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	if t.Frequency > 0 {
		settings.Cooldowns[string(t.Type)] = now.Add(time.Duration(t.Frequency) * time.Second)
	}
	return ev, nil
}

// refresh recomputes the multiplier set from the ACTIVE snapshots and saves
// the settings row.
func (s *EventService) refresh(ctx context.Context, tx *repository.Repository, settings *models.UserEventSettings) ([]models.UserEvent, models.MultiplierSet, error) {
	active, err := tx.ActiveEvents(ctx, settings.PlayerID)
	if err != nil {
		return nil, nil, err
	}
	settings.Multipliers = aggregate(active)
	if err := tx.SaveEventSettings(ctx, settings); err != nil {
		return nil, nil, err
	}
	return active, settings.Multipliers, nil
}

// Trigger fires a template on an explicit external call. This is the only
// way TRIGGERED_BY_ACTION and PASSIVE events start. The player's type
// preferences and cooldowns apply as in Evaluate; a disabled or cooling
// type, or a template that already has an active instance, is a conflict.
func (s *EventService) Trigger(ctx context.Context, playerID uint, slug string, now time.Time) (*models.UserEvent, error) {
	const op = "events.Trigger"
	now = utc(now)

	t, err := s.store.GetEventTemplate(ctx, slug)
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, slug, err)
	}
	if !t.Active {
		return nil, apperrors.Conflict(op, playerID, slug, "event template is inactive")
	}
	if err := t.TriggerConfig.Validate(t.Type); err != nil {
		return nil, apperrors.InvalidArgument(op, playerID, slug, "%v", err)
	}

	var ev *models.UserEvent
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		settings, err := tx.LockEventSettings(ctx, playerID)
		if err != nil {
			return err
		}
		if !settings.Allows(t.Type) {
			return apperrors.Conflict(op, playerID, slug, "%s events are disabled for the player", t.Type)
		}
		if settings.CoolingDown(t.Type, now) {
			return apperrors.Conflict(op, playerID, slug, "%s events are cooling down", t.Type)
		}
		if _, err := s.sweep(ctx, tx, playerID, now); err != nil {
			return err
		}
		active, err := tx.ActiveEvents(ctx, playerID)
		if err != nil {
			return err
		}
		for _, a := range active {
			if a.TemplateSlug == slug {
				return apperrors.Conflict(op, playerID, slug, "event is already active")
			}
		}

		ev, err = s.activate(ctx, tx, settings, t, now)
		if err != nil {
			return err
		}
		_, _, err = s.refresh(ctx, tx, settings)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, slug, err)
	}

	s.logger.Info("event triggered", "player_id", playerID, "slug", slug, "event_id", ev.ID)
	return ev, nil
}

// Complete resolves an active event, pays its flat rewards through the
// ledger and drops its multipliers.
func (s *EventService) Complete(ctx context.Context, playerID uint, eventID uuid.UUID, now time.Time) (*models.UserEvent, error) {
	return s.resolve(ctx, "events.Complete", playerID, eventID, models.UserEventCompleted, utc(now))
}

// Cancel resolves an active event without paying rewards.
func (s *EventService) Cancel(ctx context.Context, playerID uint, eventID uuid.UUID, now time.Time) (*models.UserEvent, error) {
	return s.resolve(ctx, "events.Cancel", playerID, eventID, models.UserEventCancelled, utc(now))
}

func (s *EventService) resolve(ctx context.Context, op string, playerID uint, eventID uuid.UUID, status models.UserEventStatus, now time.Time) (*models.UserEvent, error) {
	entity := eventID.String()

	var ev *models.UserEvent
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		settings, err := tx.LockEventSettings(ctx, playerID)
		if err != nil {
			return err
		}
		ev, err = tx.LockEvent(ctx, playerID, eventID)
		if err != nil {
			return err
		}
		switch ev.Status {
		case models.UserEventActive:
		case models.UserEventCompleted:
			return apperrors.AlreadyCompleted(op, playerID, entity, "event already completed")
		default:
			return apperrors.Conflict(op, playerID, entity, "event is %s", ev.Status)
		}
		if ev.ExpiredAt(now) {
			return apperrors.Conflict(op, playerID, entity, "event expired at %s", ev.ExpiresAt.Format(time.RFC3339))
		}

		if _, err := tx.ResolveEvent(ctx, ev, status, now); err != nil {
			return err
		}
		if status == models.UserEventCompleted {
			if err := payRewards(ctx, tx, ev); err != nil {
				return err
			}
		}
		_, _, err = s.refresh(ctx, tx, settings)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(op, playerID, entity, err)
	}

	s.logger.Info("event resolved", "player_id", playerID, "event_id", eventID, "status", status)
	return ev, nil
}

// rewardLedger is the part of the store reward payouts need.
type rewardLedger interface {
	repository.Ledger
	RecordPayments(ctx context.Context, lines ...models.PaymentTransaction) error
}

// payRewards credits every flat_reward effect of the event snapshot.
func payRewards(ctx context.Context, ledger rewardLedger, ev *models.UserEvent) error {
	for _, eff := range ev.Effects.Modifiers {
		if eff.Kind != models.EffectFlatReward {
			continue
		}
		amount := decimal.NewFromFloat(eff.Value).Round(8)
		if err := ledger.Credit(ctx, ev.PlayerID, eff.Target, amount); err != nil {
			return err
		}
		if err := ledger.RecordPayments(ctx, models.PaymentTransaction{
			FromAccount: models.AccountSystem,
			ToAccount:   models.PlayerAccount(ev.PlayerID),
			Amount:      amount,
			Currency:    eff.Target,
			TxType:      models.PaymentEventReward,
			Status:      models.PaymentConfirmed,
			Reference:   ev.ID.String(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// ActiveEvents returns the player's active instances.
func (s *EventService) ActiveEvents(ctx context.Context, playerID uint) ([]models.UserEvent, error) {
	events, err := s.repo.ActiveEvents(ctx, playerID)
	if err != nil {
		return nil, apperrors.Wrap("events.ActiveEvents", playerID, "", err)
	}
	return events, nil
}

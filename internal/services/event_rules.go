package services

import (
	"strings"
	"time"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/models"
)

// playerState is what trigger rules and conditions are evaluated against.
// It is loaded once per evaluation and updated as events fire.
type playerState struct {
	playerID uint
	events   []models.UserEvent
	upgrades []models.UserUpgrade
	balances []models.PlayerBalance
}

func (p *playerState) record(e models.UserEvent) {
	p.events = append(p.events, e)
}

func (p *playerState) hasActive(slug string) bool {
	for _, e := range p.events {
		if e.TemplateSlug == slug && e.Status == models.UserEventActive {
			return true
		}
	}
	return false
}

func (p *playerState) count(slug string) int64 {
	var n int64
	for _, e := range p.events {
		if e.TemplateSlug == slug {
			n++
		}
	}
	return n
}

func (p *playerState) completed(slug string) bool {
	for _, e := range p.events {
		if e.TemplateSlug == slug && e.Status == models.UserEventCompleted {
			return true
		}
	}
	return false
}

func (p *playerState) lastTriggered(slug string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range p.events {
		if e.TemplateSlug == slug && (!found || e.TriggeredAt.After(last)) {
			last = e.TriggeredAt
			found = true
		}
	}
	return last, found
}

// metric resolves a named player-state value. Supported names:
// balance:<currency>, upgrades_completed, upgrade_level:<slug>,
// upgrade_progress:<slug>, events_completed, event_count:<slug>.
func (p *playerState) metric(name string) (float64, error) {
	key, arg, _ := strings.Cut(name, ":")
	switch key {
	case "balance":
		for _, b := range p.balances {
			if b.Currency == arg {
				return b.Amount.InexactFloat64(), nil
			}
		}
		return 0, nil
	case "upgrades_completed":
		n := 0
		for _, u := range p.upgrades {
			if u.Completed {
				n++
			}
		}
		return float64(n), nil
	case "upgrade_level", "upgrade_progress":
		for _, u := range p.upgrades {
			if u.TemplateSlug != arg {
				continue
			}
			if key == "upgrade_level" {
				return float64(u.Level), nil
			}
			return float64(u.Progress), nil
		}
		return 0, nil
	case "events_completed":
		n := 0
		for _, e := range p.events {
			if e.Status == models.UserEventCompleted {
				n++
			}
		}
		return float64(n), nil
	case "event_count":
		return float64(p.count(arg)), nil
	}
	return 0, apperrors.InvalidArgument("events.metric", p.playerID, name, "unknown metric")
}

func (p *playerState) holds(pred models.Predicate) (bool, error) {
	v, err := p.metric(pred.Metric)
	if err != nil {
		return false, err
	}
	ok, err := pred.Operator.Compare(v, pred.Threshold)
	if err != nil {
		return false, apperrors.InvalidArgument("events.predicate", p.playerID, pred.Metric, "%v", err)
	}
	return ok, nil
}

func (p *playerState) holdsAll(preds []models.Predicate) (bool, error) {
	for _, pred := range preds {
		ok, err := p.holds(pred)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// shouldFire applies the template's trigger rule. elapsed is the time since
// the player's previous evaluation and draw returns a value in [0,1).
func shouldFire(t *models.EventTemplate, st *playerState, elapsed time.Duration, now time.Time, draw func() float64) (bool, error) {
	cfg := t.TriggerConfig
	if err := cfg.Validate(t.Type); err != nil {
		return false, apperrors.InvalidArgument("events.trigger", st.playerID, t.Slug, "%v", err)
	}

	switch t.Type {
	case models.EventRandom:
		probability := elapsed.Seconds() * cfg.ChancePerSecond
		return draw() < probability, nil
	case models.EventPeriodic:
		last, ok := st.lastTriggered(t.Slug)
		if !ok {
			return true, nil
		}
		return now.Sub(last) >= time.Duration(cfg.IntervalSeconds)*time.Second, nil
	case models.EventOneTime:
		return st.count(t.Slug) == 0, nil
	case models.EventConditional:
		return st.holds(*cfg.Condition)
	case models.EventChained:
		return st.completed(cfg.Prerequisite), nil
	case models.EventGlobalTimed:
		return !now.Before(*cfg.At), nil
	case models.EventLimitedRepeatable:
		return st.count(t.Slug) < cfg.Limit, nil
	case models.EventSeasonal:
		return !now.Before(*cfg.Start) && now.Before(*cfg.End), nil
	case models.EventTriggeredByAction, models.EventPassive:
		return false, nil
	}
	return false, apperrors.InvalidArgument("events.trigger", st.playerID, t.Slug, "unknown event type %q", t.Type)
}

// aggregate recomputes the multiplier set from the snapshots of the given
// active events.
func aggregate(active []models.UserEvent) models.MultiplierSet {
	set := models.MultiplierSet{}
	for _, e := range active {
		set.Add(e.Effects.Modifiers)
	}
	return set
}

package models

import (
	"encoding/json"
	"fmt"
)

// EffectKind is the closed set of effect operations the engines interpret.
type EffectKind string

const (
	EffectRateBonus  EffectKind = "rate_bonus"
	EffectMultiplier EffectKind = "multiplier"
	EffectFlatReward EffectKind = "flat_reward"
)

// Effect is one modifier entry. Target names a production stat for
// rate_bonus/multiplier and a currency for flat_reward.
type Effect struct {
	Kind   EffectKind `json:"kind" yaml:"kind"`
	Target string     `json:"target" yaml:"target"`
	Value  float64    `json:"value" yaml:"value"`
}

func (e Effect) Validate() error {
	switch e.Kind {
	case EffectRateBonus, EffectMultiplier:
		if e.Target == "" {
			return fmt.Errorf("%s effect needs a target", e.Kind)
		}
	case EffectFlatReward:
		if e.Target == "" {
			return fmt.Errorf("flat_reward effect needs a currency target")
		}
		if e.Value <= 0 {
			return fmt.Errorf("flat_reward amount must be positive, got %v", e.Value)
		}
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	return nil
}

// Aggregates reports whether the effect contributes to a multiplier set.
func (e Effect) Aggregates() bool {
	switch e.Kind {
	case EffectRateBonus, EffectMultiplier:
		return true
	case EffectFlatReward:
		return false
	}
	return false
}

// MultiplierSet maps a target stat to the summed delta of all contributing
// effects. The effective multiplier for a target is 1 + delta.
type MultiplierSet map[string]float64

// Add folds the aggregating effects into the set.
func (m MultiplierSet) Add(effects []Effect) {
	for _, e := range effects {
		if e.Aggregates() {
			m[e.Target] += e.Value
		}
	}
}

// Factor returns the effective multiplier for target.
func (m MultiplierSet) Factor(target string) float64 {
	return 1 + m[target]
}

// ComparisonOperator is the closed set of predicate comparisons.
type ComparisonOperator string

const (
	OpGreaterThan    ComparisonOperator = ">"
	OpGreaterOrEqual ComparisonOperator = ">="
	OpLessThan       ComparisonOperator = "<"
	OpLessOrEqual    ComparisonOperator = "<="
	OpEqual          ComparisonOperator = "=="
	OpNotEqual       ComparisonOperator = "!="
)

// Compare applies the operator to value and threshold.
func (op ComparisonOperator) Compare(value, threshold float64) (bool, error) {
	switch op {
	case OpGreaterThan:
		return value > threshold, nil
	case OpGreaterOrEqual:
		return value >= threshold, nil
	case OpLessThan:
		return value < threshold, nil
	case OpLessOrEqual:
		return value <= threshold, nil
	case OpEqual:
		return value == threshold, nil
	case OpNotEqual:
		return value != threshold, nil
	}
	return false, fmt.Errorf("unknown comparison operator %q", op)
}

// Predicate compares a named player-state metric against a threshold.
type Predicate struct {
	Metric    string             `json:"metric" yaml:"metric"`
	Operator  ComparisonOperator `json:"operator" yaml:"operator"`
	Threshold float64            `json:"threshold" yaml:"threshold"`
}

func (p Predicate) Validate() error {
	if p.Metric == "" {
		return fmt.Errorf("predicate needs a metric")
	}
	if _, err := p.Operator.Compare(0, 0); err != nil {
		return err
	}
	return nil
}

// Presentation is display-only data passed through untouched.
type Presentation = json.RawMessage

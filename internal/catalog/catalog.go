// Package catalog is the read-only template store: upgrade nodes, event
// templates and market commission rates, seeded from YAML files.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"idle-economy/internal/models"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultCatalog []byte

// Amount is a decimal that decodes from either a YAML number or string.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q: %w", node.Line, node.Value, err)
	}
	a.Decimal = d
	return nil
}

// UpgradeSpec is the file representation of an upgrade node.
type UpgradeSpec struct {
	Slug            string          `yaml:"slug"`
	Title           string          `yaml:"title"`
	Description     string          `yaml:"description"`
	MaxLevel        int             `yaml:"max_level"`
	BasePrice       Amount          `yaml:"base_price"`
	PriceMultiplier *Amount         `yaml:"price_multiplier"`
	EffectPerLevel  float64         `yaml:"effect_per_level"`
	Currency        string          `yaml:"currency"`
	Category        string          `yaml:"category"`
	Stability       float64         `yaml:"stability"`
	Instability     float64         `yaml:"instability"`
	Modifiers       []models.Effect `yaml:"modifiers"`
	TargetProgress  int64           `yaml:"target_progress"`
	DelayedUntil    *time.Time      `yaml:"delayed_until"`
	Children        []string        `yaml:"children"`
	Weight          int             `yaml:"weight"`
	Active          *bool           `yaml:"active"`
}

// EventSpec is the file representation of an event template.
type EventSpec struct {
	Slug       string               `yaml:"slug"`
	Title      string               `yaml:"title"`
	Type       models.EventType     `yaml:"type"`
	Trigger    models.TriggerConfig `yaml:"trigger"`
	Effect     models.EventEffect   `yaml:"effect"`
	Frequency  int64                `yaml:"frequency"`
	Conditions []models.Predicate   `yaml:"conditions"`
	Priority   int                  `yaml:"priority"`
	Active     *bool                `yaml:"active"`
}

// CommissionSpec is the file representation of a commission rate.
type CommissionSpec struct {
	Currency string `yaml:"currency"`
	Rate     Amount `yaml:"rate"`
}

// Catalog is a parsed, not yet validated, catalog file.
type Catalog struct {
	Upgrades    []UpgradeSpec    `yaml:"upgrades"`
	Events      []EventSpec      `yaml:"events"`
	Commissions []CommissionSpec `yaml:"commissions"`
}

// Parse decodes a catalog document and validates it.
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile parses the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Default returns the embedded catalog shipped with the binary.
func Default() (*Catalog, error) {
	return Parse(bytes.NewReader(defaultCatalog))
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Validate checks references, the unlock graph and every tagged config.
func (c *Catalog) Validate() error {
	var errs []error

	upgrades := make(map[string]*UpgradeSpec, len(c.Upgrades))
	for i := range c.Upgrades {
		u := &c.Upgrades[i]
		if u.Slug == "" {
			errs = append(errs, fmt.Errorf("upgrade #%d: slug is required", i))
			continue
		}
		if !slug.IsSlug(u.Slug) {
			errs = append(errs, fmt.Errorf("upgrade %q: slug must be lower case ascii, digits, '-' or '_'", u.Slug))
		}
		if _, dup := upgrades[u.Slug]; dup {
			errs = append(errs, fmt.Errorf("upgrade %s: duplicate slug", u.Slug))
			continue
		}
		upgrades[u.Slug] = u

		if u.Currency == "" {
			errs = append(errs, fmt.Errorf("upgrade %s: currency is required", u.Slug))
		}
		if u.MaxLevel < 0 {
			errs = append(errs, fmt.Errorf("upgrade %s: max_level must not be negative", u.Slug))
		}
		if u.TargetProgress < 0 {
			errs = append(errs, fmt.Errorf("upgrade %s: target_progress must not be negative", u.Slug))
		}
		if u.BasePrice.IsNegative() {
			errs = append(errs, fmt.Errorf("upgrade %s: base_price must not be negative", u.Slug))
		}
		if u.PriceMultiplier != nil && !u.PriceMultiplier.IsPositive() {
			errs = append(errs, fmt.Errorf("upgrade %s: price_multiplier must be positive", u.Slug))
		}
		for _, m := range u.Modifiers {
			if err := m.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("upgrade %s: %w", u.Slug, err))
			}
		}
	}
	for _, u := range c.Upgrades {
		for _, child := range u.Children {
			if _, ok := upgrades[child]; !ok {
				errs = append(errs, fmt.Errorf("upgrade %s: unknown child %q", u.Slug, child))
			}
		}
	}
	if err := checkAcyclic(c.Upgrades); err != nil {
		errs = append(errs, err)
	}

	events := make(map[string]bool, len(c.Events))
	for _, e := range c.Events {
		if e.Slug == "" {
			errs = append(errs, fmt.Errorf("event: slug is required"))
			continue
		}
		if !slug.IsSlug(e.Slug) {
			errs = append(errs, fmt.Errorf("event %q: slug must be lower case ascii, digits, '-' or '_'", e.Slug))
		}
		if events[e.Slug] {
			errs = append(errs, fmt.Errorf("event %s: duplicate slug", e.Slug))
		}
		events[e.Slug] = true
	}
	for _, e := range c.Events {
		if err := e.Trigger.Validate(e.Type); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", e.Slug, err))
		}
		if e.Type == models.EventChained && !events[e.Trigger.Prerequisite] {
			errs = append(errs, fmt.Errorf("event %s: unknown prerequisite %q", e.Slug, e.Trigger.Prerequisite))
		}
		if e.Effect.DurationSeconds < 0 {
			errs = append(errs, fmt.Errorf("event %s: duration must not be negative", e.Slug))
		}
		if e.Frequency < 0 {
			errs = append(errs, fmt.Errorf("event %s: frequency must not be negative", e.Slug))
		}
		for _, m := range e.Effect.Modifiers {
			if err := m.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("event %s: %w", e.Slug, err))
			}
		}
		for _, p := range e.Conditions {
			if err := p.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("event %s: %w", e.Slug, err))
			}
		}
	}

	currencies := make(map[string]bool, len(c.Commissions))
	for _, cm := range c.Commissions {
		if cm.Currency == "" {
			errs = append(errs, fmt.Errorf("commission: currency is required"))
			continue
		}
		if currencies[cm.Currency] {
			errs = append(errs, fmt.Errorf("commission %s: duplicate currency", cm.Currency))
		}
		currencies[cm.Currency] = true
		if cm.Rate.IsNegative() || cm.Rate.GreaterThan(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Errorf("commission %s: rate %s outside [0,1]", cm.Currency, cm.Rate))
		}
	}

	return errors.Join(errs...)
}

// checkAcyclic runs Kahn's algorithm over the children adjacency.
func checkAcyclic(specs []UpgradeSpec) error {
	indegree := make(map[string]int, len(specs))
	for _, u := range specs {
		if _, ok := indegree[u.Slug]; !ok {
			indegree[u.Slug] = 0
		}
		for _, child := range u.Children {
			indegree[child]++
		}
	}
	children := make(map[string][]string, len(specs))
	for _, u := range specs {
		children[u.Slug] = append(children[u.Slug], u.Children...)
	}

	var queue []string
	for slug, d := range indegree {
		if d == 0 {
			queue = append(queue, slug)
		}
	}
	visited := 0
	for len(queue) > 0 {
		slug := queue[0]
		queue = queue[1:]
		visited++
		for _, child := range children[slug] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	if visited == len(indegree) {
		return nil
	}

	var cyclic []string
	for slug, d := range indegree {
		if d > 0 {
			cyclic = append(cyclic, slug)
		}
	}
	sort.Strings(cyclic)
	return fmt.Errorf("upgrade graph has a cycle through %v", cyclic)
}

// UpgradeTemplates converts the specs into records. Requires is derived
// from the parents' children lists.
func (c *Catalog) UpgradeTemplates() []models.UpgradeNodeTemplate {
	parents := make(map[string][]string)
	for _, u := range c.Upgrades {
		for _, child := range u.Children {
			parents[child] = append(parents[child], u.Slug)
		}
	}

	out := make([]models.UpgradeNodeTemplate, 0, len(c.Upgrades))
	for _, u := range c.Upgrades {
		multiplier := decimal.NewFromInt(1)
		if u.PriceMultiplier != nil {
			multiplier = u.PriceMultiplier.Decimal
		}
		active := true
		if u.Active != nil {
			active = *u.Active
		}
		out = append(out, models.UpgradeNodeTemplate{
			Slug:            u.Slug,
			Title:           u.Title,
			Description:     u.Description,
			MaxLevel:        u.MaxLevel,
			BasePrice:       u.BasePrice.Decimal,
			PriceMultiplier: multiplier,
			EffectPerLevel:  u.EffectPerLevel,
			Currency:        u.Currency,
			Category:        u.Category,
			Stability:       u.Stability,
			Instability:     u.Instability,
			Modifiers:       u.Modifiers,
			Conditions: models.UpgradeConditions{
				Requires:       parents[u.Slug],
				TargetProgress: u.TargetProgress,
				DelayedUntil:   u.DelayedUntil,
			},
			Children: u.Children,
			Weight:   u.Weight,
			Active:   active,
		})
	}
	return out
}

// EventTemplates converts the specs into records.
func (c *Catalog) EventTemplates() []models.EventTemplate {
	out := make([]models.EventTemplate, 0, len(c.Events))
	for _, e := range c.Events {
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		out = append(out, models.EventTemplate{
			Slug:          e.Slug,
			Title:         e.Title,
			Type:          e.Type,
			TriggerConfig: e.Trigger,
			Effect:        e.Effect,
			Frequency:     e.Frequency,
			Conditions:    e.Conditions,
			Priority:      e.Priority,
			Active:        active,
		})
	}
	return out
}

// CommissionRates converts the specs into records.
func (c *Catalog) CommissionRates() []models.MarketCommission {
	out := make([]models.MarketCommission, 0, len(c.Commissions))
	for _, cm := range c.Commissions {
		out = append(out, models.MarketCommission{Currency: cm.Currency, Rate: cm.Rate.Decimal})
	}
	return out
}

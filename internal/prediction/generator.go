// Package prediction forecasts maintenance work from property history.
//
// The Generator is deterministic: identical properties, history and clock
// always produce the identical candidate list, in the same order. It never
// writes. The Runner turns candidates into predicted tasks through the
// lifecycle controller.
package prediction

import (
	"sort"
	"strings"
	"time"

	"github.com/matthewbaird/propmaint/internal/types"
)

// Trigger names reported on a Candidate.
const (
	TriggerAge       = "age"
	TriggerFrequency = "frequency"
	TriggerService   = "service_interval"
)

// Signals are the history measurements a rule is evaluated against.
type Signals struct {
	// AgeYears is nil when the property has no year_built.
	AgeYears         *int `json:"age_years,omitempty"`
	Frequency        int  `json:"frequency"`
	DaysSinceService int  `json:"days_since_service"`
}

// Candidate is a suggested predictive task.
type Candidate struct {
	PropertyID       string      `json:"property_id"`
	Category         string      `json:"category"`
	Severity         types.Level `json:"severity"`
	PredictedForDate time.Time   `json:"predicted_for_date"`
	Triggers         []string    `json:"triggers"`
	Signals          Signals     `json:"signals"`
}

// Generator evaluates a Ruleset.
type Generator struct {
	rules Ruleset
}

func NewGenerator(rules Ruleset) *Generator {
	return &Generator{rules: rules}
}

func (g *Generator) Rules() Ruleset { return g.rules }

// Suggest returns candidates ordered by property id, then rule order.
func (g *Generator) Suggest(properties []types.Property, history []types.Task, now time.Time) []Candidate {
	now = now.UTC()
	day := startOfDay(now)
	windowStart := now.AddDate(0, 0, -g.rules.LookbackDays)

	props := make([]types.Property, len(properties))
	copy(props, properties)
	sort.Slice(props, func(i, j int) bool { return props[i].ID < props[j].ID })

	byProperty := make(map[string][]types.Task)
	for _, t := range history {
		byProperty[t.PropertyID] = append(byProperty[t.PropertyID], t)
	}

	var out []Candidate
	for _, p := range props {
		tasks := byProperty[p.ID]
		for _, r := range g.rules.Rules {
			sig := measure(p, tasks, r.Category, windowStart, now)
			triggers := evaluate(r, sig)
			if len(triggers) == 0 {
				continue
			}
			severity := r.Severity
			if len(triggers) >= 2 {
				severity = severity.Raise()
			}
			out = append(out, Candidate{
				PropertyID:       p.ID,
				Category:         r.Category,
				Severity:         severity,
				PredictedForDate: day.AddDate(0, 0, r.LeadDays),
				Triggers:         triggers,
				Signals:          sig,
			})
		}
	}
	return out
}

func measure(p types.Property, tasks []types.Task, category string, windowStart, now time.Time) Signals {
	var sig Signals
	if p.YearBuilt != nil {
		age := now.Year() - *p.YearBuilt
		sig.AgeYears = &age
	}

	lastService := p.CreatedAt
	serviced := false
	for _, t := range tasks {
		if !matchesCategory(t.Category, category) {
			continue
		}
		if t.Origin == types.OriginReactive && !t.CreatedAt.Before(windowStart) && !t.CreatedAt.After(now) {
			sig.Frequency++
		}
		if t.ResolvedAt != nil && (!serviced || t.ResolvedAt.After(lastService)) {
			lastService = *t.ResolvedAt
			serviced = true
		}
	}
	if days := int(now.Sub(lastService).Hours() / 24); days > 0 {
		sig.DaysSinceService = days
	}
	return sig
}

func evaluate(r Rule, sig Signals) []string {
	var triggers []string
	if sig.AgeYears != nil && *sig.AgeYears >= r.AgeYears {
		triggers = append(triggers, TriggerAge)
	}
	if sig.Frequency >= r.Frequency {
		triggers = append(triggers, TriggerFrequency)
	}
	if sig.DaysSinceService >= r.ServiceIntervalDays {
		triggers = append(triggers, TriggerService)
	}
	return triggers
}

// matchesCategory reports whether a free-form task category belongs to a
// rule category, e.g. "Plumbing - kitchen sink" matches "plumbing".
func matchesCategory(taskCategory, ruleCategory string) bool {
	return strings.Contains(strings.ToLower(taskCategory), ruleCategory)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Deduplicate drops candidates that an existing predicted task already covers:
// same property, same category, same predicted UTC day.
func Deduplicate(candidates []Candidate, existing []types.Task) []Candidate {
	type key struct {
		property string
		category string
		day      time.Time
	}
	covered := make(map[key]bool)
	for _, t := range existing {
		if t.Status != types.StatusPredicted || t.PredictedForDate == nil {
			continue
		}
		covered[key{t.PropertyID, strings.ToLower(strings.TrimSpace(t.Category)), startOfDay(*t.PredictedForDate)}] = true
	}

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if covered[key{c.PropertyID, c.Category, startOfDay(c.PredictedForDate)}] {
			continue
		}
		out = append(out, c)
	}
	return out
}

package prediction

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/matthewbaird/propmaint/internal/types"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed rules.cue
var defaultRulesSource []byte

// Rule is one category heuristic.
type Rule struct {
	Category            string      `json:"category"`
	Severity            types.Level `json:"severity"`
	AgeYears            int         `json:"age_years"`
	Frequency           int         `json:"frequency"`
	ServiceIntervalDays int         `json:"service_interval_days"`
	LeadDays            int         `json:"lead_days"`
}

// Ruleset is a decoded rules document.
type Ruleset struct {
	LookbackDays int    `json:"lookback_days"`
	Rules        []Rule `json:"rules"`
}

// DefaultRules returns the embedded ruleset.
func DefaultRules() (Ruleset, error) {
	return ParseRules(defaultRulesSource, "rules.cue")
}

// LoadRules reads a rules document from path, or returns the embedded
// defaults when path is empty.
func LoadRules(path string) (Ruleset, error) {
	if path == "" {
		return DefaultRules()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return Ruleset{}, fmt.Errorf("reading prediction rules: %w", err)
	}
	return ParseRules(src, path)
}

// ParseRules unifies a CUE rules document with the rule schema, checks that
// the result is concrete, and decodes it.
func ParseRules(src []byte, filename string) (Ruleset, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Ruleset{}, fmt.Errorf("compiling rule schema: %w", err)
	}
	doc := ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return Ruleset{}, fmt.Errorf("compiling %s: %w", filename, err)
	}

	val := schema.Unify(doc)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return Ruleset{}, fmt.Errorf("validating %s: %w", filename, err)
	}

	var rs Ruleset
	if err := val.LookupPath(cue.ParsePath("lookback_days")).Decode(&rs.LookbackDays); err != nil {
		return Ruleset{}, fmt.Errorf("decoding lookback_days: %w", err)
	}
	if err := val.LookupPath(cue.ParsePath("rules")).Decode(&rs.Rules); err != nil {
		return Ruleset{}, fmt.Errorf("decoding rules: %w", err)
	}
	if len(rs.Rules) == 0 {
		return Ruleset{}, fmt.Errorf("%s: no rules defined", filename)
	}

	seen := make(map[string]bool, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		r.Category = strings.ToLower(strings.TrimSpace(r.Category))
		if seen[r.Category] {
			return Ruleset{}, fmt.Errorf("%s: duplicate rule for category %q", filename, r.Category)
		}
		seen[r.Category] = true
		if r.Severity == "" {
			r.Severity = SeverityForCategory(r.Category)
		}
	}
	return rs, nil
}

// SeverityForCategory maps category keywords to a base severity: gas,
// electrical, water leak and plumbing are high; hvac, appliance and roof are
// medium; anything else is low.
func SeverityForCategory(category string) types.Level {
	c := strings.ToLower(category)
	for _, k := range []string{"gas", "electrical", "water leak", "plumbing"} {
		if strings.Contains(c, k) {
			return types.LevelHigh
		}
	}
	for _, k := range []string{"hvac", "appliance", "roof"} {
		if strings.Contains(c, k) {
			return types.LevelMedium
		}
	}
	return types.LevelLow
}

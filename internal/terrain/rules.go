package terrain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Range is a closed interval [Min, Max].
type Range struct {
	Min, Max float64
}

// Contains reports whether v lies in the interval, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Rule assigns a biome to tiles whose height and heat fall inside its ranges.
// Higher priority wins when several rules match.
type Rule struct {
	Priority int
	Biome    *Biome
	Height   Range
	Heat     Range
}

// Matches reports whether the rule covers the given sample.
func (r Rule) Matches(height, heat float64) bool {
	return r.Height.Contains(height) && r.Heat.Contains(heat)
}

// RuleSet is an ordered list of rules resolved against one catalog.
type RuleSet struct {
	catalog *Catalog
	rules   []Rule
}

// NewRuleSet validates rules against the catalog. Order is significant: among
// matching rules of equal priority the earliest one wins.
func NewRuleSet(catalog *Catalog, rules []Rule) (*RuleSet, error) {
	for i, r := range rules {
		if r.Biome == nil {
			return nil, fmt.Errorf("rule %d: nil biome", i)
		}
		if b, ok := catalog.Get(r.Biome.Name); !ok || b != r.Biome {
			return nil, fmt.Errorf("rule %d: biome %s not owned by catalog", i, r.Biome.Name)
		}
		if r.Height.Min > r.Height.Max || r.Heat.Min > r.Heat.Max {
			return nil, fmt.Errorf("rule %d (%s): inverted range", i, r.Biome.Name)
		}
	}
	return &RuleSet{catalog: catalog, rules: append([]Rule(nil), rules...)}, nil
}

// DefaultRules returns the built-in classification for DefaultCatalog-compatible catalogs.
func DefaultRules(c *Catalog) (*RuleSet, error) {
	get := func(name string) *Biome {
		b, _ := c.Get(name)
		return b
	}
	full := Range{0, 1}
	return NewRuleSet(c, []Rule{
		{Priority: 0, Biome: get(BiomeGrass), Height: Range{0.2, 0.8}, Heat: full},
		{Priority: -1, Biome: get(BiomeWater), Height: Range{0, 0.5}, Heat: full},
		{Priority: 0, Biome: get(BiomeSand), Height: Range{0.1, 0.2}, Heat: full},
		{Priority: -1, Biome: get(BiomeMountain), Height: Range{0.5, 1}, Heat: full},
		{Priority: -1, Biome: get(BiomeMountainSnow), Height: Range{0.8, 1}, Heat: Range{0, 0.5}},
	})
}

// Catalog returns the catalog the rules reference.
func (rs *RuleSet) Catalog() *Catalog {
	return rs.catalog
}

// Rules returns a copy of the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// Resolve classifies one sample. It returns the biome of the highest-priority
// matching rule, the first such rule on ties, or the catalog fallback.
func (rs *RuleSet) Resolve(height, heat float64) *Biome {
	best := -1
	for i, r := range rs.rules {
		if !r.Matches(height, heat) {
			continue
		}
		if best < 0 || r.Priority > rs.rules[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return rs.catalog.Fallback()
	}
	return rs.rules[best].Biome
}

type rulesFile struct {
	Rules []struct {
		Biome    string     `yaml:"biome"`
		Priority int        `yaml:"priority"`
		Height   [2]float64 `yaml:"height"`
		Heat     [2]float64 `yaml:"heat"`
	} `yaml:"rules"`
}

// ParseRules decodes a yaml rule list:
//
//	rules:
//	  - {biome: water, priority: 0, height: [0, 0.35], heat: [0, 1]}
func ParseRules(data []byte, catalog *Catalog) (*RuleSet, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	rules := make([]Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		b, ok := catalog.Get(r.Biome)
		if !ok {
			return nil, fmt.Errorf("rule %d: unknown biome %q", i, r.Biome)
		}
		rules = append(rules, Rule{
			Priority: r.Priority,
			Biome:    b,
			Height:   Range{r.Height[0], r.Height[1]},
			Heat:     Range{r.Heat[0], r.Heat[1]},
		})
	}
	return NewRuleSet(catalog, rules)
}

// LoadRules reads a yaml rule file.
func LoadRules(path string, catalog *Catalog) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rs, err := ParseRules(data, catalog)
	if err != nil {
		return nil, fmt.Errorf("loading rules from %s: %w", path, err)
	}
	return rs, nil
}

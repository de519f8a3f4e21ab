// Package catalog is the static service knowledge base: service descriptions,
// architecture patterns and a keyword recommender over requirement text.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ServiceInfo describes one cloud service.
type ServiceInfo struct {
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description" json:"description"`
	UseCases      []string `yaml:"use_cases" json:"use_cases"`
	SKUs          []string `yaml:"skus" json:"skus"`
	Features      []string `yaml:"features" json:"features"`
	Documentation string   `yaml:"documentation" json:"documentation"`
}

// PatternInfo describes an architecture pattern.
type PatternInfo struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Services    []string `yaml:"services" json:"services"`
}

type serviceRule struct {
	Keywords  []string `yaml:"keywords"`
	Service   string   `yaml:"service"`
	Unless    []string `yaml:"unless"`
	Alternate string   `yaml:"alternate"`
}

type patternRule struct {
	Keywords []string `yaml:"keywords"`
	Pattern  string   `yaml:"pattern"`
}

type document struct {
	Services       []ServiceInfo `yaml:"services"`
	Patterns       []PatternInfo `yaml:"patterns"`
	Rules          []serviceRule `yaml:"rules"`
	Always         []string      `yaml:"always"`
	PatternRules   []patternRule `yaml:"pattern_rules"`
	DefaultPattern string        `yaml:"default_pattern"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	doc      document
	services map[string]ServiceInfo
	patterns map[string]PatternInfo
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("catalog has no services")
	}
	if doc.DefaultPattern == "" {
		return nil, fmt.Errorf("catalog has no default pattern")
	}

	c := &Catalog{
		doc:      doc,
		services: make(map[string]ServiceInfo, len(doc.Services)),
		patterns: make(map[string]PatternInfo, len(doc.Patterns)),
	}
	for _, s := range doc.Services {
		if s.Name == "" {
			return nil, fmt.Errorf("catalog service without a name")
		}
		c.services[s.Name] = s
	}
	for _, p := range doc.Patterns {
		c.patterns[p.Name] = p
	}
	return c, nil
}

// Info returns the catalog entry for a service name.
func (c *Catalog) Info(name string) (ServiceInfo, bool) {
	s, ok := c.services[name]
	return s, ok
}

// Pattern returns the catalog entry for a pattern name.
func (c *Catalog) Pattern(name string) (PatternInfo, bool) {
	p, ok := c.patterns[name]
	return p, ok
}

// Services returns all services in catalog order.
func (c *Catalog) Services() []ServiceInfo {
	out := make([]ServiceInfo, len(c.doc.Services))
	copy(out, c.doc.Services)
	return out
}

// Patterns returns all patterns in catalog order.
func (c *Catalog) Patterns() []PatternInfo {
	out := make([]PatternInfo, len(c.doc.Patterns))
	copy(out, c.doc.Patterns)
	return out
}

// Recommend maps requirement texts to a deduplicated set of service names.
// Keywords match as substrings of the lowercased joined text. The result is
// sorted; callers should treat it as a set.
func (c *Catalog) Recommend(requirements []string) []string {
	text := joinLower(requirements)
	set := make(map[string]struct{})

	for _, r := range c.doc.Rules {
		if !containsAny(text, r.Keywords) {
			continue
		}
		if r.Alternate != "" && containsAny(text, r.Unless) {
			set[r.Alternate] = struct{}{}
		} else {
			set[r.Service] = struct{}{}
		}
	}
	for _, s := range c.doc.Always {
		set[s] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SuggestPattern returns the first pattern whose keywords occur in the
// requirement text, or the default pattern.
func (c *Catalog) SuggestPattern(requirements []string) string {
	text := joinLower(requirements)
	for _, r := range c.doc.PatternRules {
		if containsAny(text, r.Keywords) {
			return r.Pattern
		}
	}
	return c.doc.DefaultPattern
}

func joinLower(texts []string) string {
	return strings.ToLower(strings.Join(texts, " "))
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

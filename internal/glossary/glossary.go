package glossary

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule is one substitution: a regular expression and its replacement.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// defaultRules fixes terminology the translation models reliably get wrong
// on gaming speech: literal translations of Russian gamer slang turn into
// the terms players actually use.
var defaultRules = []Rule{
	// Medical / health
	{`\bpharmacy\b`, "medkit"},
	{`\bhealth\s?issues\b`, "HP"},
	{`\bmedicine\s?cabinet\b`, "medkit"},
	{`\bfirst\s?aid\s?kit\b`, "medkit"},
	{`\btreating\b`, "healing"},
	{`\btreatment\b`, "healing"},
	{`\bhealing\s?myself\b`, "healing"},

	// Ammo / weapons
	{`\bcartridges\b`, "ammo"},
	{`\bbullets\b`, "ammo"},
	{`\bspare\s?parts\b`, "ammo"},
	{`\brounds\b`, "ammo"},
	{`\bmachine\b`, "AR"},
	{`\bautomaton\b`, "AR"},
	{`\bgolden\s?machine\b`, "Gold AR"},

	// Movement / actions
	{`\bwander\b`, "loot"},
	{`\bcleaned\s?up\b`, "cleared"},
	{`\bjumping\b`, "dropping"},
	{`\brun\s?away\b`, "running"},

	// Locations
	{`\bupstairs\b`, "on high ground"},

	// Misc
	{`\badversaries\b`, "enemies"},
	{`\bopponents\b`, "enemies"},
	{`\bmen\b`, "players"},
	{`\bpeople\b`, "players"},
}

// Glossary rewrites translated text by applying its rules in order. It is
// immutable after construction and safe for concurrent use.
type Glossary struct {
	rules []compiledRule
}

type compiledRule struct {
	re      *regexp.Regexp
	replace string
}

// New compiles a glossary from rules. Patterns match case-insensitively.
func New(rules []Rule) (*Glossary, error) {
	g := &Glossary{rules: make([]compiledRule, 0, len(rules))}

	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glossary pattern %q: %w", r.Pattern, err)
		}
		g.rules = append(g.rules, compiledRule{re: re, replace: r.Replace})
	}

	return g, nil
}

// Default returns the built-in gaming glossary.
func Default() *Glossary {
	g, err := New(defaultRules)
	if err != nil {
		// The built-in rules are compile-tested; this cannot happen.
		panic(err)
	}
	return g
}

// LoadFile reads glossary rules from a YAML file and appends them to the
// built-in set, so user rules win by running last.
func LoadFile(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read glossary file: %w", err)
	}

	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse glossary file %s: %w", path, err)
	}

	return New(append(append([]Rule{}, defaultRules...), rules...))
}

// Apply runs all substitutions on the text.
func (g *Glossary) Apply(text string) string {
	if text == "" {
		return text
	}

	for _, r := range g.rules {
		text = r.re.ReplaceAllString(text, r.replace)
	}

	return text
}

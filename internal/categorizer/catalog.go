package categorizer

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/banksync/banksync/internal/model"
)

//go:embed merchants.yaml
var defaultMerchants []byte

// Rule assigns Category to descriptions matching Pattern.
type Rule struct {
	Label    string
	Category model.Category
	Pattern  string

	re *regexp.Regexp
}

// Matches reports whether description contains a match of the rule's pattern.
func (r Rule) Matches(description string) bool {
	return r.re.MatchString(description)
}

// Catalog is an ordered rule list; earlier rules take priority.
type Catalog []Rule

type ruleFile struct {
	Label    string `yaml:"label"`
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`
}

// ParseCatalog decodes a YAML rule list and compiles each pattern case-insensitively.
func ParseCatalog(data []byte) (Catalog, error) {
	var raw []ruleFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing merchant rules: %w", err)
	}

	catalog := make(Catalog, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		rule, err := NewRule(r.Label, r.Category, r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		if seen[rule.Label] {
			return nil, fmt.Errorf("rule %d: duplicate label %q", i+1, rule.Label)
		}
		seen[rule.Label] = true
		catalog = append(catalog, rule)
	}
	return catalog, nil
}

// NewRule validates and compiles a single rule.
func NewRule(label, category, pattern string) (Rule, error) {
	if label == "" {
		return Rule{}, errors.New("missing label")
	}
	cat, err := model.ParseCategory(category)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: %w", label, err)
	}
	if pattern == "" {
		return Rule{}, fmt.Errorf("%s: missing pattern", label)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: compiling pattern: %w", label, err)
	}
	return Rule{Label: label, Category: cat, Pattern: pattern, re: re}, nil
}

// DefaultCatalog returns the built-in merchant rules.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultMerchants)
}

// LoadOverrides reads user rules from path. A missing file yields no overrides.
func LoadOverrides(path string) (Catalog, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading merchant overrides: %w", err)
	}
	return ParseCatalog(data)
}

// Merge splices overrides into base by label. An override replaces the base rule
// at the same position; new labels are appended in override order. base is not modified.
func Merge(base, overrides Catalog) Catalog {
	merged := make(Catalog, len(base), len(base)+len(overrides))
	copy(merged, base)

	index := make(map[string]int, len(merged))
	for i, r := range merged {
		index[r.Label] = i
	}
	for _, o := range overrides {
		if i, ok := index[o.Label]; ok {
			merged[i] = o
			continue
		}
		index[o.Label] = len(merged)
		merged = append(merged, o)
	}
	return merged
}

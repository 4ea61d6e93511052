package categorizer

import (
	"github.com/patrickmn/go-cache"

	"github.com/banksync/banksync/internal/model"
)

// Categorizer assigns categories by first matching rule. Safe for concurrent use.
type Categorizer struct {
	rules Catalog
	memo  *cache.Cache
}

// New creates a Categorizer over a fixed rule list.
func New(rules Catalog) *Categorizer {
	own := make(Catalog, len(rules))
	copy(own, rules)
	return &Categorizer{
		rules: own,
		memo:  cache.New(cache.NoExpiration, 0),
	}
}

// Categorize returns the category of the first rule matching description,
// or UNCATEGORIZED when none match.
func (c *Categorizer) Categorize(description string) model.Category {
	if v, ok := c.memo.Get(description); ok {
		return v.(model.Category)
	}

	category := model.CategoryUncategorized
	for _, r := range c.rules {
		if r.Matches(description) {
			category = r.Category
			break
		}
	}
	c.memo.SetDefault(description, category)
	return category
}

// Rules returns a copy of the rule list in priority order.
func (c *Categorizer) Rules() Catalog {
	out := make(Catalog, len(c.rules))
	copy(out, c.rules)
	return out
}

package categorize

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"

	"spendwise/internal/core"
)

const (
	// MaxConfidence caps every rule-based suggestion.
	MaxConfidence = 0.95
	// FallbackConfidence is assigned when nothing matches.
	FallbackConfidence = 0.15

	fallbackReasoning = "No categorization rule matched the description or merchant"
)

// Jitter supplies the per-call confidence factor, in [0.9, 1.0].
type Jitter interface {
	Factor() float64
}

// RandomJitter draws a uniform factor from math/rand/v2.
type RandomJitter struct{}

func (RandomJitter) Factor() float64 { return 0.9 + 0.1*rand.Float64() }

// FixedJitter always returns the same factor.
type FixedJitter float64

func (f FixedJitter) Factor() float64 { return float64(f) }

// Transaction is the matcher input. Amount and PaymentMethod are carried for
// callers but do not influence the rule scan.
type Transaction struct {
	Description   string
	Merchant      string
	Amount        core.Money
	PaymentMethod core.PaymentMethod
}

// CategoryStore is the storage needed to seed rule categories.
type CategoryStore interface {
	EnsureCategory(ctx context.Context, c core.Category) (core.Category, error)
}

// EnsureCategories creates any category referenced by rules (plus the
// fallback category) that does not exist yet. It is idempotent and returns
// every rule category with its stored ID.
func EnsureCategories(ctx context.Context, store CategoryStore, rules []Rule) ([]core.Category, error) {
	out := make([]core.Category, 0, len(rules)+1)
	for _, r := range slices.Concat(rules, []Rule{OtherRule}) {
		c, err := store.EnsureCategory(ctx, core.Category{Name: r.Category, Color: r.Color, Icon: r.Icon, IsDefault: true})
		if err != nil {
			return nil, fmt.Errorf("ensure category %q: %w", r.Category, err)
		}
		out = append(out, c)
	}
	return out, nil
}

type compiledRule struct {
	categoryID int64
	name       string
	base       float64
	patterns   []*regexp.Regexp
}

// Matcher scans the rule table. It holds no mutable state after construction
// and is safe for concurrent use.
type Matcher struct {
	rules   []compiledRule
	otherID int64
	jitter  Jitter
}

// NewMatcher binds rules to the stored categories. Every rule category must
// be present; the fallback category is looked up but only required when an
// unmatched transaction is categorized.
func NewMatcher(rules []Rule, categories []core.Category, jitter Jitter) (*Matcher, error) {
	ids := make(map[string]int64, len(categories))
	for _, c := range categories {
		ids[c.Name] = c.ID
	}
	if jitter == nil {
		jitter = RandomJitter{}
	}

	m := &Matcher{jitter: jitter, otherID: ids[core.OtherCategoryName]}
	for _, r := range rules {
		id, ok := ids[r.Category]
		if !ok {
			return nil, fmt.Errorf("%w: category %q referenced by rules does not exist", core.ErrFatalConfiguration, r.Category)
		}
		cr := compiledRule{categoryID: id, name: r.Category, base: r.BaseConfidence}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("%w: compile pattern %q for %q: %w", core.ErrFatalConfiguration, p, r.Category, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		m.rules = append(m.rules, cr)
	}
	return m, nil
}

// Categorize returns the first rule match in table order, or the fallback
// category. It fails with ErrFatalConfiguration only when the fallback is
// needed and the fallback category does not exist.
func (m *Matcher) Categorize(tx Transaction) (core.CategorySuggestion, error) {
	text := strings.ToLower(tx.Description + " " + tx.Merchant)

	for _, r := range m.rules {
		for _, re := range r.patterns {
			matched := re.FindString(text)
			if matched == "" {
				continue
			}
			return core.CategorySuggestion{
				CategoryID:   r.categoryID,
				CategoryName: r.name,
				Confidence:   math.Min(r.base*m.jitter.Factor(), MaxConfidence),
				Reasoning:    fmt.Sprintf("Matched %q, a common indicator of %s", matched, r.name),
				MatchedTerm:  matched,
			}, nil
		}
	}

	if m.otherID == 0 {
		return core.CategorySuggestion{}, fmt.Errorf("%w: fallback category %q is missing", core.ErrFatalConfiguration, core.OtherCategoryName)
	}
	return core.CategorySuggestion{
		CategoryID:   m.otherID,
		CategoryName: core.OtherCategoryName,
		Confidence:   FallbackConfidence,
		Reasoning:    fallbackReasoning,
	}, nil
}

// OtherID returns the fallback category ID, or 0 when it is missing.
func (m *Matcher) OtherID() int64 { return m.otherID }

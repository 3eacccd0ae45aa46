// Package categorize assigns categories to expenses from an ordered rule table.
package categorize

import "spendwise/internal/core"

// Rule maps a category to the patterns that select it.
// Patterns are regular expressions matched against lower-cased text.
type Rule struct {
	Category       string
	Color          string
	Icon           string
	BaseConfidence float64
	Patterns       []string
}

// DefaultRules returns the built-in rule table.
//
// Order matters: the first rule with a matching pattern wins, even when a
// later rule would also match. "uber eats" is Food & Dining only because that
// rule is declared before Transportation. Reordering this table changes
// results for overlapping keywords.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: "Food & Dining", Color: "#F97316", Icon: "utensils", BaseConfidence: 0.85,
			Patterns: []string{
				`starbucks`, `coffee`, `caf[eé]`, `restaurant`, `pizza`, `burger`, `mcdonald`,
				`chipotle`, `subway`, `doordash`, `uber ?eats`, `grubhub`, `grocery`, `supermarket`,
				`whole foods`, `trader joe`, `bakery`, `diner`, `sushi`, `taco`, `\blunch\b`,
				`\bdinner\b`, `breakfast`,
			},
		},
		{
			Category: "Transportation", Color: "#3B82F6", Icon: "car", BaseConfidence: 0.85,
			Patterns: []string{
				`\buber\b`, `\blyft\b`, `taxi`, `gas station`, `\bshell\b`, `chevron`, `exxon`,
				`\bfuel\b`, `parking`, `\bmetro\b`, `transit`, `\bbus\b`, `train ticket`, `\btoll\b`,
			},
		},
		{
			Category: "Shopping", Color: "#EC4899", Icon: "shopping-bag", BaseConfidence: 0.8,
			Patterns: []string{
				`amazon`, `walmart`, `\btarget\b`, `\bebay\b`, `best buy`, `\bikea\b`, `\bmall\b`,
				`clothing`, `shoes`, `\betsy\b`,
			},
		},
		{
			Category: "Entertainment", Color: "#8B5CF6", Icon: "film", BaseConfidence: 0.8,
			Patterns: []string{
				`netflix`, `spotify`, `\bhulu\b`, `disney\+`, `cinema`, `movie`, `theater`,
				`concert`, `\bsteam\b`, `playstation`, `\bxbox\b`, `ticketmaster`,
			},
		},
		{
			Category: "Bills & Utilities", Color: "#EAB308", Icon: "file-text", BaseConfidence: 0.9,
			Patterns: []string{
				`electric`, `water bill`, `utilit`, `internet`, `comcast`, `verizon`, `at&t`,
				`phone bill`, `\brent\b`, `insurance`, `mortgage`,
			},
		},
		{
			Category: "Healthcare", Color: "#EF4444", Icon: "heart-pulse", BaseConfidence: 0.85,
			Patterns: []string{
				`pharmacy`, `\bcvs\b`, `walgreens`, `doctor`, `dental`, `dentist`, `hospital`,
				`clinic`, `medical`, `optometr`,
			},
		},
		{
			Category: "Travel", Color: "#14B8A6", Icon: "plane", BaseConfidence: 0.85,
			Patterns: []string{
				`airline`, `airbnb`, `hotel`, `flight`, `expedia`, `booking\.com`, `marriott`,
				`hilton`, `\bdelta\b`, `united airlines`,
			},
		},
		{
			Category: "Education", Color: "#6366F1", Icon: "graduation-cap", BaseConfidence: 0.8,
			Patterns: []string{
				`tuition`, `udemy`, `coursera`, `textbook`, `\bschool\b`, `university`, `\bcourse\b`,
			},
		},
	}
}

// OtherRule describes the fallback category. It has no patterns.
var OtherRule = Rule{Category: core.OtherCategoryName, Color: "#6B7280", Icon: "circle-help"}

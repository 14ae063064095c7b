package category

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCategory is returned when a rule names a category outside the
// expense taxonomy
var ErrUnknownCategory = errors.New("unknown category")

// Rule assigns Category to any text containing one of Keywords
type Rule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// DefaultRules is the built-in precedence. Groups overlap, so order matters:
// "amazon prime" is Shopping because the shopping brands come first.
var DefaultRules = []Rule{
	{FoodDining, []string{"grocery", "groceries", "supermarket", "whole foods", "trader joe", "safeway", "kroger", "publix", "aldi", "food"}},
	{Transportation, []string{"gas station", "gas", "fuel", "shell", "chevron", "exxon", "texaco", "citgo", "sunoco", "valero", "petrol", "parking"}},
	{Shopping, []string{"amazon", "walmart", "target", "costco", "best buy", "ebay", "home depot", "ikea", "macy"}},
	{FoodDining, []string{"restaurant", "cafe", "coffee", "starbucks", "mcdonald", "pizza", "burger", "diner", "grill", "bakery"}},
	{Transportation, []string{"uber", "lyft", "taxi", "cab "}},
	{Entertainment, []string{"netflix", "spotify", "hulu", "disney", "amazon prime", "hbo", "cinema", "movie", "theater", "theatre"}},
	{HealthFitness, []string{"gym", "fitness", "yoga", "crossfit", "peloton"}},
}

// Classifier maps text to a category by first-match keyword containment
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a Classifier over rules, which are evaluated in order.
// Every rule must name a fixed expense category.
func NewClassifier(rules []Rule) (*Classifier, error) {
	normalized := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if !IsExpense(r.Category) {
			return nil, fmt.Errorf("rule %d: %w: %q", i, ErrUnknownCategory, r.Category)
		}
		keywords := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		normalized = append(normalized, Rule{Category: r.Category, Keywords: keywords})
	}
	return &Classifier{rules: normalized}, nil
}

// NewDefaultClassifier creates a Classifier over DefaultRules
func NewDefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultRules)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the category of the first rule with a keyword contained in
// text, or Other
func (c *Classifier) Classify(text string) string {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Category
			}
		}
	}
	return Other
}

// rulesFile is the YAML layout of a rules override file
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule list from YAML:
//
//	rules:
//	  - category: Food & Dining
//	    keywords: [grocery, food]
func LoadRules(r io.Reader) ([]Rule, error) {
	var f rulesFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules file contains no rules")
	}
	return f.Rules, nil
}

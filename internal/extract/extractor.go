// Package extract turns noisy OCR, CSV and PDF statement text into normalized
// transactions. Everything here is best effort: unparseable input yields
// fewer or emptier records, never an error.
package extract

import (
	"strings"
	"time"
)

// Classifier maps free text to a spending category
type Classifier interface {
	Classify(text string) string
}

// IncomeCategory is assigned to every record whose polarity is income
const IncomeCategory = "Income"

// Extractor holds the collaborators shared by the receipt, row and statement
// extractors. It has no mutable state and is safe for concurrent use.
type Extractor struct {
	classifier Classifier
	now        func() time.Time
}

// Option configures an Extractor
type Option func(*Extractor)

// WithClock overrides the source of "now" used when no date can be found
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// New creates an Extractor that categorizes with classifier
func New(classifier Classifier, opts ...Option) *Extractor {
	e := &Extractor{
		classifier: classifier,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// splitLines returns the trimmed, non-empty lines of text
func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// categorize picks the category for a record of the given polarity
func (e *Extractor) categorize(kind Kind, description string) string {
	if kind == KindIncome {
		return IncomeCategory
	}
	return e.classifier.Classify(description)
}

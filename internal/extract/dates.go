package extract

import (
	"regexp"
	"strings"
	"time"
)

// datePattern pairs a date shape with the layout used to parse what it matched
type datePattern struct {
	re     *regexp.Regexp
	layout string
}

// datePatterns are tried in order; four-digit years must precede their
// two-digit variants so "01/15/2024" is never read as "01/15/20".
var datePatterns = []datePattern{
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`), "1/2/2006"},
	{regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{4}\b`), "1-2-2006"},
	{regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`), "2006-1-2"},
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2}\b`), "1/2/06"},
	{regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{2}\b`), "1-2-06"},
}

// directLayouts are the whole-field layouts accepted before falling back to
// pattern search
var directLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Mon, 02 Jan 2006",
}

// findDate returns the first date-shaped substring of text that parses,
// testing patterns in order. ok is false when nothing usable was found.
func findDate(text string) (time.Time, bool) {
	for _, p := range datePatterns {
		match := p.re.FindString(text)
		if match == "" {
			continue
		}
		if t, err := time.Parse(p.layout, match); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDirect parses a whole field in one of the common layouts
func parseDirect(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range directLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FindDate returns the first date found in text, or the extractor's current
// time when none matches.
func (e *Extractor) FindDate(text string) time.Time {
	if t, ok := findDate(text); ok {
		return t
	}
	return e.now()
}

// findDateInLines applies FindDate line by line; the first matching line wins
func (e *Extractor) findDateInLines(lines []string) time.Time {
	for _, line := range lines {
		if t, ok := findDate(line); ok {
			return t
		}
	}
	return e.now()
}

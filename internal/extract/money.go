package extract

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a monetary token has no parseable number
var ErrInvalidAmount = errors.New("invalid amount")

var (
	moneyNoise    = strings.NewReplacer("$", "", "₹", "", ",", "", " ", "")
	leadingNumber = regexp.MustCompile(`^(?:\d+(?:\.\d*)?|\.\d+)`)
)

// ParseSigned strips currency symbols and thousands separators from s and
// returns the signed value of the number it starts with. Anything after that
// number ("USD", a second dot) is ignored.
func ParseSigned(s string) (decimal.Decimal, error) {
	clean := moneyNoise.Replace(strings.TrimSpace(s))

	negative := false
	// The sign may sit before or after the currency symbol ("-$5", "$-5").
	for len(clean) > 0 && (clean[0] == '-' || clean[0] == '+') {
		if clean[0] == '-' {
			negative = !negative
		}
		clean = clean[1:]
	}

	number := leadingNumber.FindString(clean)
	if number == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	number = strings.TrimSuffix(number, ".")
	if strings.HasPrefix(number, ".") {
		number = "0" + number
	}

	d, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseAmount returns the absolute value of a monetary token
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := ParseSigned(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Abs(), nil
}

// containsAny reports whether lowered text contains any of the keywords
func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// rowIncomeKeywords mark a tabular row as income regardless of sign
var rowIncomeKeywords = []string{"deposit", "salary", "payment received", "credit", "refund"}

// statementIncomeKeywords mark a statement line as income
var statementIncomeKeywords = []string{"deposit", "payment received", "credit"}

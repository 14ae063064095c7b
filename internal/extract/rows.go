package extract

import (
	"strings"
)

// Column aliases per logical field; the first alias present in a row wins.
var (
	dateColumns        = []string{"date", "transaction_date", "transactiondate"}
	descriptionColumns = []string{"description", "memo", "note", "merchant"}
	amountColumns      = []string{"amount", "transaction_amount", "transactionamount"}
	categoryColumns    = []string{"category", "transaction_category", "transactioncategory"}
)

// SkipReason explains why a row or line produced no record
type SkipReason string

const (
	SkipMissingField   SkipReason = "missing required field"
	SkipInvalidAmount  SkipReason = "invalid amount"
	SkipNonPositive    SkipReason = "non-positive amount"
	SkipEmptyText      SkipReason = "empty description"
	SkipInvalidDate    SkipReason = "invalid date"
	SkipNoPatternMatch SkipReason = "no pattern matched"
)

// NormalizeHeader lower-cases a column name and joins inner whitespace with
// underscores, so "Transaction Date" becomes "transaction_date".
func NormalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimPrefix(h, "\uFEFF"))), "_")
}

// lookup returns the value of the first alias present in row
func lookup(row map[string]string, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if v, ok := row[alias]; ok {
			return v, true
		}
	}
	return "", false
}

// Row normalizes one CSV row of header→value pairs. Headers are expected to
// be normalized with NormalizeHeader already. When the row yields no record,
// ok is false and reason says why.
func (e *Extractor) Row(row map[string]string) (txn Transaction, reason SkipReason, ok bool) {
	rawDate, hasDate := lookup(row, dateColumns)
	description, hasDesc := lookup(row, descriptionColumns)
	rawAmount, hasAmount := lookup(row, amountColumns)
	if !hasDate || !hasDesc || !hasAmount {
		return Transaction{}, SkipMissingField, false
	}

	date, parsed := parseDirect(rawDate)
	if !parsed {
		date = e.FindDate(rawDate)
	}

	signed, err := ParseSigned(rawAmount)
	if err != nil {
		return Transaction{}, SkipInvalidAmount, false
	}

	kind := KindExpense
	if signed.IsPositive() || containsAny(description, rowIncomeKeywords) {
		kind = KindIncome
	}
	amount := signed.Abs()

	category, hasCategory := lookup(row, categoryColumns)
	category = strings.TrimSpace(category)
	if !hasCategory || category == "" {
		category = e.categorize(kind, description)
	}

	description = strings.TrimSpace(description)
	switch {
	case !amount.IsPositive():
		return Transaction{}, SkipNonPositive, false
	case description == "":
		return Transaction{}, SkipEmptyText, false
	}

	return Transaction{
		Date:          date,
		Description:   description,
		Amount:        amount,
		Kind:          kind,
		Category:      category,
		PaymentMethod: PaymentBankTransfer,
	}, "", true
}

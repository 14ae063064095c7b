package extract

import (
	"regexp"
	"strings"
	"time"
)

// statementPattern matches "date description amount" on one line
type statementPattern struct {
	re     *regexp.Regexp
	layout string
}

// amountToken is the first standalone amount after the description, so a
// trailing balance column or currency code is ignored.
const amountToken = `([+-]?[$₹]?[+-]?[\d,]*\d(?:\.\d+)?)(?:\s|$)`

var statementPatterns = []statementPattern{
	{regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\s+(.+?)\s+` + amountToken), "1/2/2006"},
	{regexp.MustCompile(`\b(\d{1,2}-\d{1,2}-\d{4})\s+(.+?)\s+` + amountToken), "1-2-2006"},
	{regexp.MustCompile(`\b(\d{4}-\d{1,2}-\d{1,2})\s+(.+?)\s+` + amountToken), "2006-1-2"},
}

// StatementResult is the outcome of scanning statement text
type StatementResult struct {
	Transactions []Transaction
	// Skipped counts lines that matched a pattern but were rejected
	Skipped int
}

// Statement scans PDF statement text line by line. Lines that match no
// pattern are ignored.
func (e *Extractor) Statement(text string) StatementResult {
	result := StatementResult{Transactions: make([]Transaction, 0)}
	for _, line := range splitLines(text) {
		txn, reason, ok := e.statementLine(line)
		if ok {
			result.Transactions = append(result.Transactions, txn)
		} else if reason != SkipNoPatternMatch {
			result.Skipped++
		}
	}
	return result
}

func (e *Extractor) statementLine(line string) (Transaction, SkipReason, bool) {
	for _, p := range statementPatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		// First matching pattern decides the line.
		date, err := time.Parse(p.layout, m[1])
		if err != nil {
			return Transaction{}, SkipInvalidDate, false
		}
		description := strings.TrimSpace(m[2])
		if description == "" {
			return Transaction{}, SkipEmptyText, false
		}
		amount, err := ParseAmount(m[3])
		if err != nil {
			return Transaction{}, SkipInvalidAmount, false
		}
		if !amount.IsPositive() {
			return Transaction{}, SkipNonPositive, false
		}

		kind := KindExpense
		if strings.Contains(m[3], "+") || containsAny(description, statementIncomeKeywords) {
			kind = KindIncome
		}

		return Transaction{
			Date:          date,
			Description:   description,
			Amount:        amount,
			Kind:          kind,
			Category:      e.categorize(kind, description),
			PaymentMethod: PaymentBankTransfer,
		}, "", true
	}
	return Transaction{}, SkipNoPatternMatch, false
}

package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	maxMerchantLength = 50
	unknownMerchant   = "Unknown Merchant"
)

// totalPatterns capture a candidate receipt total in group 1. Every match on
// every line is considered and the largest value wins.
var totalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)total[:\s]*[$₹]?\s*([\d,]+\.\d{2})`),
	regexp.MustCompile(`(?i)amount[:\s]*[$₹]?\s*([\d,]+\.\d{2})`),
	regexp.MustCompile(`(?i)[$₹]\s*([\d,]+\.\d{2})\s*total`),
	regexp.MustCompile(`[$₹]\s*([\d,]+\.\d{2})`),
	regexp.MustCompile(`(?i)grand\s+total[:\s]*[$₹]?\s*([\d,]+\.\d{2})`),
	regexp.MustCompile(`(?i)final\s+total[:\s]*[$₹]?\s*([\d,]+\.\d{2})`),
}

// lineItemPattern is deliberately loose: any text followed by a number
var lineItemPattern = regexp.MustCompile(`^(.+?)\s+[$₹]?([\d,]*\d(?:\.\d+)?)$`)

// Receipt interprets raw OCR text of a receipt
func (e *Extractor) Receipt(text string) *ReceiptData {
	lines := splitLines(text)

	data := &ReceiptData{
		Total:   findTotal(lines),
		Date:    e.findDateInLines(lines),
		Items:   findLineItems(lines),
		RawText: text,
	}
	if len(lines) > 0 {
		data.MerchantName = truncateRunes(lines[0], maxMerchantLength)
	}
	data.Category = e.classifier.Classify(data.MerchantName)

	return data
}

// SuggestTransaction builds the single save candidate for a scanned receipt.
// A zero amount means nothing usable was found and the user must edit it.
func SuggestTransaction(data *ReceiptData) Transaction {
	merchant := data.MerchantName
	if merchant == "" {
		merchant = unknownMerchant
	}
	return Transaction{
		Date:          data.Date,
		Description:   fmt.Sprintf("Receipt from %s", merchant),
		Amount:        data.Total,
		Kind:          KindExpense,
		Category:      data.Category,
		PaymentMethod: PaymentCreditCard,
	}
}

func findTotal(lines []string) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		for _, re := range totalPatterns {
			for _, m := range re.FindAllStringSubmatch(line, -1) {
				amount, err := ParseAmount(m[1])
				if err != nil {
					continue
				}
				if amount.GreaterThan(total) {
					total = amount
				}
			}
		}
	}
	return total
}

func findLineItems(lines []string) []LineItem {
	items := make([]LineItem, 0)
	for _, line := range lines {
		m := lineItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, err := ParseAmount(m[2])
		if err != nil || !amount.IsPositive() {
			continue
		}
		name := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[1]), ":"))
		items = append(items, LineItem{Name: name, Amount: amount})
	}
	return items
}

// truncateRunes shortens s to at most n runes
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

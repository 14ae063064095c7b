package extract

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the polarity of a transaction
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// PaymentMethod records how a transaction was paid
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentDebitCard    PaymentMethod = "debit_card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentOther        PaymentMethod = "other"
)

// Transaction is the normalized record produced by every ingestion path.
// Amount is always the absolute value; Kind carries the polarity.
type Transaction struct {
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          Kind            `json:"kind"`
	Category      string          `json:"category"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

// LineItem is a candidate "label amount" pair found on a receipt
type LineItem struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// ReceiptData is the raw result of interpreting receipt OCR text
type ReceiptData struct {
	Total        decimal.Decimal `json:"total"`
	MerchantName string          `json:"merchant_name"`
	Date         time.Time       `json:"date"`
	Items        []LineItem      `json:"items"`
	Category     string          `json:"category"`
	RawText      string          `json:"raw_text"`
}

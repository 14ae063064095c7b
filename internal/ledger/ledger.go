// Package ledger ingests uploaded receipts, CSV exports and PDF statements,
// and stores the transactions a user confirms.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/finance-tracker/internal/extract"
)

var (
	// ErrUnsupportedMediaType is returned for uploads that are not an image, PDF or CSV
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrOCRFailure wraps errors from the OCR engine
	ErrOCRFailure = errors.New("ocr failure")
	// ErrPDFExtraction wraps errors from the PDF text engine
	ErrPDFExtraction = errors.New("pdf extraction failure")
	// ErrNotFound is returned when a record does not exist for the user
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransaction is returned when a save candidate fails validation
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrInvalidCategory is returned for empty or duplicate custom categories
	ErrInvalidCategory = errors.New("invalid category")
)

// Source records which path produced a transaction
type Source string

const (
	SourceManual  Source = "manual"
	SourceReceipt Source = "receipt"
	SourceCSV     Source = "csv"
	SourcePDF     Source = "pdf"
)

// Transaction is a confirmed transaction owned by a user
type Transaction struct {
	ID            string                `json:"id"`
	UserID        string                `json:"user_id"`
	Date          time.Time             `json:"date"`
	Description   string                `json:"description"`
	Amount        decimal.Decimal       `json:"amount"`
	Kind          extract.Kind          `json:"kind"`
	Category      string                `json:"category"`
	PaymentMethod extract.PaymentMethod `json:"payment_method"`
	Source        Source                `json:"source"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// TransactionInput is a save candidate sent back by the user, usually an
// edited extraction result
type TransactionInput struct {
	Date          time.Time             `json:"date" validate:"required"`
	Description   string                `json:"description" validate:"required,max=500"`
	Amount        decimal.Decimal       `json:"amount" validate:"gt=0"`
	Kind          extract.Kind          `json:"kind" validate:"oneof=income expense"`
	Category      string                `json:"category" validate:"required,max=100"`
	PaymentMethod extract.PaymentMethod `json:"payment_method" validate:"oneof=cash credit_card debit_card bank_transfer other"`
	Source        Source                `json:"source" validate:"omitempty,oneof=manual receipt csv pdf"`
}

// UploadKind is the ingestion path an upload was routed to
type UploadKind string

const (
	UploadReceipt   UploadKind = "receipt"
	UploadCSV       UploadKind = "csv"
	UploadStatement UploadKind = "pdf"
)

// ImportRecord is the history entry written for every ingested file
type ImportRecord struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	Kind        UploadKind `json:"kind"`
	Count       int        `json:"count"`
	Skipped     int        `json:"skipped"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Filter narrows a transaction listing. Zero values match everything.
type Filter struct {
	Kind     extract.Kind
	Category string
	From     time.Time
	To       time.Time
}

// Match reports whether txn passes the filter. From and To are inclusive days.
func (f Filter) Match(txn *Transaction) bool {
	if f.Kind != "" && txn.Kind != f.Kind {
		return false
	}
	if f.Category != "" && txn.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && txn.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !txn.Date.Before(f.To.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// MonthSummary holds income and expense totals for one calendar month
type MonthSummary struct {
	Month   string          `json:"month"` // YYYY-MM
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// Summary aggregates a user's transactions
type Summary struct {
	TotalIncome  decimal.Decimal            `json:"total_income"`
	TotalExpense decimal.Decimal            `json:"total_expense"`
	Balance      decimal.Decimal            `json:"balance"`
	Count        int                        `json:"count"`
	ByCategory   map[string]decimal.Decimal `json:"by_category"`
	ByMonth      []MonthSummary             `json:"by_month"`
}

// Categories lists the fixed taxonomy plus the user's own categories
type Categories struct {
	Expense []string `json:"expense"`
	Income  []string `json:"income"`
	Custom  []string `json:"custom"`
}

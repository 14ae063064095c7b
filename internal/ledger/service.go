package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/finance-tracker/internal/category"
	"github.com/zombor/finance-tracker/internal/extract"
	"github.com/zombor/finance-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Engines are the text-extraction collaborators used during ingestion
type Engines struct {
	OCR scanning.Recognizer
	PDF scanning.TextExtractor
}

// Upload is a file received for ingestion
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// IngestResult is returned for every successfully ingested upload. Receipt
// uploads fill ExtractedData and SuggestedTransaction; CSV and PDF uploads
// fill Transactions.
type IngestResult struct {
	ImportID             string                `json:"import_id"`
	Kind                 UploadKind            `json:"kind"`
	ExtractedData        *extract.ReceiptData  `json:"extracted_data,omitempty"`
	SuggestedTransaction *extract.Transaction  `json:"suggested_transaction,omitempty"`
	Transactions         []extract.Transaction `json:"transactions"`
	Count                int                   `json:"count"`
	Skipped              int                   `json:"skipped"`
}

// Service handles ingestion and transaction operations
type Service struct {
	db            DB
	engines       Engines
	storage       Storage
	extractor     *extract.Extractor
	validate      *validator.Validate
	metrics       *Metrics
	ingestTimeout time.Duration
	idGenerator   IDGenerator
	timeSource    TimeSource
}

// ServiceOption configures optional Service behaviour
type ServiceOption func(*Service)

// WithMetrics records ingestion metrics
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIngestTimeout bounds a whole ingestion, engine call included
func WithIngestTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.ingestTimeout = d
	}
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, engines Engines, storage Storage, extractor *extract.Extractor, opts ...ServiceOption) *Service {
	return NewServiceWithDeps(db, engines, storage, extractor, &uuidGenerator{}, &defaultTimeSource{}, opts...)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, engines Engines, storage Storage, extractor *extract.Extractor, idGen IDGenerator, timeSrc TimeSource, opts ...ServiceOption) *Service {
	s := &Service{
		db:          db,
		engines:     engines,
		storage:     storage,
		extractor:   extractor,
		validate:    newValidator(),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "upload"
	}

	return base + unsafeFilenameChars.ReplaceAllString(ext, "")
}

// uploadKind routes an upload by its declared media type. A .csv file name
// is accepted for CSV files sent with a generic media type.
func uploadKind(contentType, filename string) (UploadKind, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return UploadReceipt, nil
	case mediaType == "application/pdf":
		return UploadStatement, nil
	case mediaType == "text/csv", strings.EqualFold(filepath.Ext(filename), ".csv"):
		return UploadCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
}

// Ingest extracts transaction candidates from an uploaded file. Nothing is
// saved as a transaction; the import itself is recorded in the history.
func (s *Service) Ingest(ctx context.Context, userID string, upload Upload) (*IngestResult, error) {
	if s.ingestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ingestTimeout)
		defer cancel()
	}

	start := s.timeSource.Now()
	log := loggerFrom(ctx).With("filename", upload.Filename, "content_type", upload.ContentType)

	kind, err := uploadKind(upload.ContentType, upload.Filename)
	if err != nil {
		s.metrics.observeIngest("", err, 0, 0, 0)
		return nil, err
	}

	var result *IngestResult
	switch kind {
	case UploadReceipt:
		result, err = s.ingestReceipt(ctx, upload)
	case UploadStatement:
		result, err = s.ingestStatement(ctx, upload)
	case UploadCSV:
		result, err = s.ingestCSV(ctx, upload)
	}
	s.metrics.observeIngest(kind, err, resultCount(result), resultSkipped(result), s.timeSource.Now().Sub(start))
	if err != nil {
		log.Error("Failed to ingest upload", "kind", kind, "file_size", len(upload.Data), "error", err)
		return nil, err
	}

	result.Kind = kind
	result.ImportID = s.idGenerator.Generate()
	record := &ImportRecord{
		ID:          result.ImportID,
		UserID:      userID,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		Kind:        kind,
		Count:       result.Count,
		Skipped:     result.Skipped,
		CreatedAt:   s.timeSource.Now(),
	}
	if err := s.db.SaveImport(record); err != nil {
		// The extraction is still returned; only the history entry is lost.
		log.Warn("Failed to record import", "error", err)
	}

	log.Info("Ingested upload", "kind", kind, "count", result.Count, "skipped", result.Skipped)
	return result, nil
}

func resultCount(r *IngestResult) int {
	if r == nil {
		return 0
	}
	return r.Count
}

func resultSkipped(r *IngestResult) int {
	if r == nil {
		return 0
	}
	return r.Skipped
}

// withScratchFile writes the upload to scratch storage for the duration of
// fn and removes it afterwards, whatever fn returns
func (s *Service) withScratchFile(ctx context.Context, upload Upload, fn func(path string) error) error {
	name := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(upload.Filename))
	saved, err := s.storage.Save(name, upload.Data)
	if err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	defer func() {
		if err := s.storage.Delete(saved); err != nil {
			loggerFrom(ctx).Warn("Failed to delete scratch file", "filename", saved, "error", err)
		}
	}()
	return fn(s.storage.Path(saved))
}

func (s *Service) ingestReceipt(ctx context.Context, upload Upload) (*IngestResult, error) {
	var text string
	err := s.withScratchFile(ctx, upload, func(path string) error {
		var err error
		text, err = s.engines.OCR.Recognize(ctx, path, upload.ContentType)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOCRFailure, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data := s.extractor.Receipt(text)
	suggestion := extract.SuggestTransaction(data)
	count := 0
	if suggestion.Amount.IsPositive() {
		count = 1
	}

	return &IngestResult{
		ExtractedData:        data,
		SuggestedTransaction: &suggestion,
		Transactions:         []extract.Transaction{},
		Count:                count,
	}, nil
}

func (s *Service) ingestStatement(ctx context.Context, upload Upload) (*IngestResult, error) {
	var text string
	err := s.withScratchFile(ctx, upload, func(path string) error {
		var err error
		text, err = s.engines.PDF.ExtractText(ctx, path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPDFExtraction, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	statement := s.extractor.Statement(text)
	return &IngestResult{
		Transactions: statement.Transactions,
		Count:        len(statement.Transactions),
		Skipped:      statement.Skipped,
	}, nil
}

func (s *Service) ingestCSV(ctx context.Context, upload Upload) (*IngestResult, error) {
	log := loggerFrom(ctx)
	result := &IngestResult{Transactions: make([]extract.Transaction, 0)}

	malformed, err := readRows(ctx, bytes.NewReader(upload.Data), func(line int, row map[string]string) {
		txn, reason, ok := s.extractor.Row(row)
		if !ok {
			log.Warn("Skipping csv row", "line", line, "reason", reason)
			result.Skipped++
			return
		}
		result.Transactions = append(result.Transactions, txn)
	})
	if err != nil {
		return nil, err
	}

	result.Skipped += malformed
	result.Count = len(result.Transactions)
	return result, nil
}

// newTransaction validates input and builds a stored record
func (s *Service) newTransaction(userID string, input TransactionInput, now time.Time) (*Transaction, error) {
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)
	if input.Source == "" {
		input.Source = SourceManual
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransaction, validationMessage(err))
	}

	return &Transaction{
		ID:            s.idGenerator.Generate(),
		UserID:        userID,
		Date:          input.Date,
		Description:   input.Description,
		Amount:        input.Amount,
		Kind:          input.Kind,
		Category:      input.Category,
		PaymentMethod: input.PaymentMethod,
		Source:        input.Source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SaveTransactions validates and stores confirmed candidates. Either all of
// them are saved or none are.
func (s *Service) SaveTransactions(ctx context.Context, userID string, inputs []TransactionInput) ([]*Transaction, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one transaction is required", ErrInvalidTransaction)
	}

	now := s.timeSource.Now()
	txns := make([]*Transaction, 0, len(inputs))
	for i, input := range inputs {
		txn, err := s.newTransaction(userID, input, now)
		if err != nil {
			if len(inputs) > 1 {
				return nil, fmt.Errorf("transaction %d: %w", i, err)
			}
			return nil, err
		}
		txns = append(txns, txn)
	}

	if err := s.db.SaveTransactions(txns); err != nil {
		return nil, fmt.Errorf("saving transactions: %w", err)
	}

	loggerFrom(ctx).Info("Saved transactions", "count", len(txns))
	return txns, nil
}

// GetTransaction retrieves a transaction by ID
func (s *Service) GetTransaction(ctx context.Context, userID, id string) (*Transaction, error) {
	txn, err := s.db.GetTransaction(userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}
	return txn, nil
}

// ListTransactions returns the user's transactions matching filter, newest first
func (s *Service) ListTransactions(ctx context.Context, userID string, filter Filter) ([]*Transaction, error) {
	all, err := s.db.ListTransactions(userID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	txns := make([]*Transaction, 0, len(all))
	for _, txn := range all {
		if filter.Match(txn) {
			txns = append(txns, txn)
		}
	}

	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.After(txns[j].Date)
		}
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return txns[i].ID < txns[j].ID
	})
	return txns, nil
}

// UpdateTransaction replaces the editable fields of a transaction
func (s *Service) UpdateTransaction(ctx context.Context, userID, id string, input TransactionInput) (*Transaction, error) {
	existing, err := s.db.GetTransaction(userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting transaction for update: %w", err)
	}

	if input.Source == "" {
		input.Source = existing.Source
	}
	updated, err := s.newTransaction(userID, input, s.timeSource.Now())
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := s.db.SaveTransactions([]*Transaction{updated}); err != nil {
		return nil, fmt.Errorf("updating transaction: %w", err)
	}
	return updated, nil
}

// DeleteTransaction removes a transaction
func (s *Service) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := s.db.DeleteTransaction(userID, id); err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}
	return nil
}

// Summary aggregates the user's transactions dated within [from, to]. Zero
// bounds are open.
func (s *Service) Summary(ctx context.Context, userID string, from, to time.Time) (*Summary, error) {
	txns, err := s.ListTransactions(ctx, userID, Filter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		ByCategory:   make(map[string]decimal.Decimal),
		ByMonth:      make([]MonthSummary, 0),
	}
	months := make(map[string]*MonthSummary)

	for _, txn := range txns {
		key := txn.Date.Format("2006-01")
		month, ok := months[key]
		if !ok {
			month = &MonthSummary{Month: key, Income: decimal.Zero, Expense: decimal.Zero}
			months[key] = month
		}

		switch txn.Kind {
		case extract.KindIncome:
			summary.TotalIncome = summary.TotalIncome.Add(txn.Amount)
			month.Income = month.Income.Add(txn.Amount)
		case extract.KindExpense:
			summary.TotalExpense = summary.TotalExpense.Add(txn.Amount)
			month.Expense = month.Expense.Add(txn.Amount)
			summary.ByCategory[txn.Category] = summary.ByCategory[txn.Category].Add(txn.Amount)
		}
		summary.Count++
	}

	for _, month := range months {
		summary.ByMonth = append(summary.ByMonth, *month)
	}
	sort.Slice(summary.ByMonth, func(i, j int) bool {
		return summary.ByMonth[i].Month < summary.ByMonth[j].Month
	})
	summary.Balance = summary.TotalIncome.Sub(summary.TotalExpense)

	return summary, nil
}

// Categories lists the fixed taxonomy and the user's custom categories
func (s *Service) Categories(ctx context.Context, userID string) (*Categories, error) {
	custom, err := s.db.ListCategories(userID)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return &Categories{
		Expense: category.ExpenseCategories(),
		Income:  category.IncomeCategories(),
		Custom:  custom,
	}, nil
}

// AddCategory stores a custom category. Names already in the fixed taxonomy
// or the user's list are rejected, ignoring case.
func (s *Service) AddCategory(ctx context.Context, userID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	if len(name) > 100 {
		return "", fmt.Errorf("%w: name must be at most 100 characters", ErrInvalidCategory)
	}

	existing, err := s.Categories(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, list := range [][]string{existing.Expense, existing.Income, existing.Custom, {extract.IncomeCategory}} {
		for _, c := range list {
			if strings.EqualFold(c, name) {
				return "", fmt.Errorf("%w: %q already exists", ErrInvalidCategory, name)
			}
		}
	}

	if err := s.db.AddCategory(userID, name); err != nil {
		return "", fmt.Errorf("saving category: %w", err)
	}
	return name, nil
}

// ListImports returns the user's import history, newest first
func (s *Service) ListImports(ctx context.Context, userID string) ([]*ImportRecord, error) {
	records, err := s.db.ListImports(userID)
	if err != nil {
		return nil, fmt.Errorf("listing imports: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// isEngineFailure reports whether err came from a text-extraction engine
func isEngineFailure(err error) bool {
	return errors.Is(err, ErrOCRFailure) || errors.Is(err, ErrPDFExtraction)
}

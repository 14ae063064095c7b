package scanning

import "context"

// Recognizer turns a receipt image into plain text
type Recognizer interface {
	// Recognize reads the image at path and returns the text it contains
	Recognize(ctx context.Context, path string, contentType string) (string, error)
	// Close closes the recognizer and releases resources
	Close() error
}

// TextExtractor turns a PDF document into plain text
type TextExtractor interface {
	// ExtractText reads the PDF at path and returns its text, page by page
	ExtractText(ctx context.Context, path string) (string, error)
}

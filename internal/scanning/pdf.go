package scanning

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/gen2brain/go-fitz"
)

// Fitz implements the TextExtractor interface with MuPDF
type Fitz struct{}

// NewFitz creates a new MuPDF-backed TextExtractor
func NewFitz() *Fitz {
	return &Fitz{}
}

// ExtractText returns the text of every page, pages separated by newlines
func (f *Fitz) ExtractText(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	var text strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pageText, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", page+1, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	return text.String(), nil
}

// PlainPDF implements the TextExtractor interface in pure Go, for builds
// without MuPDF
type PlainPDF struct{}

// NewPlainPDF creates a new pure-Go TextExtractor
func NewPlainPDF() *PlainPDF {
	return &PlainPDF{}
}

// ExtractText returns the plain text content of the document
func (p *PlainPDF) ExtractText(ctx context.Context, path string) (text string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("reading PDF size: %w", err)
	}

	// The parser panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("parsing PDF: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}

	return buf.String(), nil
}

package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zombor/finance-tracker/internal/extract"
)

// readRows streams CSV records as normalized header→value maps. Rows with
// fewer cells than the header simply lack the trailing keys. Malformed rows
// are logged and counted instead of aborting the file.
func readRows(ctx context.Context, r io.Reader, fn func(line int, row map[string]string)) (malformed int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading csv header: %w", err)
	}
	for i, h := range header {
		header[i] = extract.NormalizeHeader(h)
	}

	for {
		if err := ctx.Err(); err != nil {
			return malformed, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return malformed, nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			slog.Warn("Skipping malformed csv row", "line", perr.Line, "error", perr.Err)
			malformed++
			continue
		}
		if err != nil {
			return malformed, fmt.Errorf("reading csv: %w", err)
		}

		line, _ := reader.FieldPos(0)
		row := make(map[string]string, len(header))
		for i, value := range record {
			if i >= len(header) {
				break
			}
			row[header[i]] = value
		}
		fn(line, row)
	}
}

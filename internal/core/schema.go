package core

import (
	"fmt"
	"strings"
)

// ValidateHeader checks that header is exactly RequiredHeaders: same count,
// same order, same case.
func ValidateHeader(header []string) error {
	if len(header) != len(RequiredHeaders) {
		return fmt.Errorf("%w: expected %d columns %q, got %d %q",
			ErrInvalidSchema, len(RequiredHeaders), RequiredHeaders, len(header), header)
	}
	for i, want := range RequiredHeaders {
		if header[i] != want {
			return fmt.Errorf("%w: column %d is %q, expected %q",
				ErrInvalidSchema, i+1, header[i], want)
		}
	}
	return nil
}

// BuildBatch validates tokenized rows and maps them onto the required
// columns. The first row must be the header. Rows with no values at all are
// dropped; any other row must have exactly one value per column, and rows
// that do not are reported together in a *RowError.
func BuildBatch(fileName string, rows []Row) (ImportBatch, error) {
	if len(rows) == 0 {
		return ImportBatch{}, fmt.Errorf("%w: empty file", ErrInvalidSchema)
	}
	if err := ValidateHeader(rows[0].Fields); err != nil {
		return ImportBatch{}, err
	}

	batch := ImportBatch{
		FileName: fileName,
		Rows:     make([]CandidateRow, 0, len(rows)-1),
	}
	var bad []int

	for _, row := range rows[1:] {
		if isEmptyRow(row.Fields) {
			continue
		}
		if len(row.Fields) != len(RequiredHeaders) {
			bad = append(bad, row.Line)
			continue
		}
		batch.Rows = append(batch.Rows, CandidateRow{
			Line:         row.Line,
			CustomerName: row.Fields[0],
			MotherCode:   row.Fields[1],
			Group:        row.Fields[2],
		})
	}

	if len(bad) > 0 {
		return ImportBatch{}, &RowError{Lines: bad, Expected: len(RequiredHeaders)}
	}
	return batch, nil
}

// ParseBatch tokenizes a CSV payload and builds the batch from it.
func ParseBatch(fileName, payload string) (ImportBatch, error) {
	rows, err := NewTokenizer(normalizePayload(payload)).ReadAll()
	if err != nil {
		return ImportBatch{}, err
	}
	return BuildBatch(fileName, rows)
}

func isEmptyRow(fields []string) bool {
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package core

import (
	"errors"
	"fmt"
	"strings"
)

// Import pipeline failures. Callers wrap these with context using %w and
// classify them with errors.Is; MapError turns them into user messages.
var (
	// ErrMalformedUpload is returned when the request body does not contain a
	// boundary-delimited part, or the CSV payload cannot be tokenized.
	ErrMalformedUpload = errors.New("malformed upload")

	// ErrNotCSV is returned when the extracted payload has no comma at all.
	ErrNotCSV = errors.New("payload is not csv")

	// ErrInvalidSchema is returned when the header row is not exactly
	// Customer Name, Mother Code, Group.
	ErrInvalidSchema = errors.New("invalid csv header")

	// ErrMalformedRow is returned when a data row does not have exactly one
	// value per header column.
	ErrMalformedRow = errors.New("malformed csv row")

	// ErrInvalidIdentifier is returned for identifiers not shaped DDDD-DDDDDD.
	ErrInvalidIdentifier = errors.New("invalid customer identifier")

	// ErrIdentifierOverflow is returned when the next identifier would not
	// fit in ten digits.
	ErrIdentifierOverflow = errors.New("customer identifier overflow")

	// ErrDuplicateIdentifier is returned by a Store when an insert collides
	// with an existing identifier. The import is retried from a fresh cursor.
	ErrDuplicateIdentifier = errors.New("duplicate customer identifier")

	// ErrPersistence is returned when the store rejects a batch. Nothing from
	// the batch is committed.
	ErrPersistence = errors.New("persist customer batch")

	// ErrRequestTimeout is returned when the import deadline expires.
	ErrRequestTimeout = errors.New("import request timed out")

	// ErrNotFound is returned when an export matches no stored customers.
	ErrNotFound = errors.New("no customers found")

	// ErrFileTooLarge is returned when the upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidRequest is returned when a JSON request body cannot be decoded.
	ErrInvalidRequest = errors.New("invalid request body")
)

// RowError lists the data rows rejected by strict column-count validation.
type RowError struct {
	Lines    []int
	Expected int
}

func (e *RowError) Error() string {
	lines := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = fmt.Sprintf("%d", l)
	}
	return fmt.Sprintf("%s: expected %d columns on line(s) %s",
		ErrMalformedRow, e.Expected, strings.Join(lines, ", "))
}

func (e *RowError) Unwrap() error {
	return ErrMalformedRow
}

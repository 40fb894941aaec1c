package core

// tokenizer.go splits CSV text into rows of trimmed string fields.
//
// A field is either a double-quoted span, where "" stands for a literal quote
// and commas or line breaks do not end the field, or a plain span running to
// the next comma or line break. Rows end at \n; a preceding \r is dropped by
// trimming. Blank lines produce no row. Header and data rows go through the
// same code.

import (
	"fmt"
	"iter"
	"strings"
)

// Row is one tokenized CSV record.
type Row struct {
	Line   int // 1-based line the record starts on
	Fields []string
}

// Tokenizer produces rows from CSV text. The zero value yields no rows.
type Tokenizer struct {
	text string
}

// NewTokenizer returns a tokenizer over text.
func NewTokenizer(text string) Tokenizer {
	return Tokenizer{text: text}
}

// Rows returns a lazy sequence of rows. Each call starts again from the
// beginning of the text. Iteration stops after the first error.
func (t Tokenizer) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		s := &scanner{text: t.text, line: 1}
		for {
			row, ok, err := s.next()
			if err != nil {
				yield(Row{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// ReadAll collects every row.
func (t Tokenizer) ReadAll() ([]Row, error) {
	var rows []Row
	for row, err := range t.Rows() {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// TokenizeLine splits a single CSV line into fields.
func TokenizeLine(line string) ([]string, error) {
	rows, err := NewTokenizer(line).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Fields, nil
}

type terminator int

const (
	termComma terminator = iota
	termEOL
	termEOF
)

type scanner struct {
	text string
	pos  int
	line int
}

func (s *scanner) next() (Row, bool, error) {
	for s.pos < len(s.text) {
		if end, blank := s.blankLine(); blank {
			s.pos = end
			s.line++
			continue
		}

		start := s.line
		fields, err := s.readRow()
		if err != nil {
			return Row{}, false, err
		}
		return Row{Line: start, Fields: fields}, true, nil
	}
	return Row{}, false, nil
}

// blankLine reports whether the line at pos holds only whitespace, and where
// the following line begins.
func (s *scanner) blankLine() (int, bool) {
	for i := s.pos; i < len(s.text); i++ {
		switch s.text[i] {
		case ' ', '\t', '\r':
		case '\n':
			return i + 1, true
		default:
			return 0, false
		}
	}
	return len(s.text), true
}

func (s *scanner) readRow() ([]string, error) {
	var fields []string
	for {
		field, term, err := s.readField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, strings.TrimSpace(field))
		if term != termComma {
			return fields, nil
		}
	}
}

func (s *scanner) readField() (string, terminator, error) {
	for s.pos < len(s.text) && (s.text[s.pos] == ' ' || s.text[s.pos] == '\t') {
		s.pos++
	}

	var b strings.Builder
	if s.pos < len(s.text) && s.text[s.pos] == '"' {
		if err := s.readQuoted(&b); err != nil {
			return "", 0, err
		}
	}

	// Plain field, or anything left between a closing quote and the
	// delimiter, which is kept as-is.
	for s.pos < len(s.text) {
		c := s.text[s.pos]
		switch c {
		case ',':
			s.pos++
			return b.String(), termComma, nil
		case '\n':
			s.pos++
			s.line++
			return b.String(), termEOL, nil
		}
		b.WriteByte(c)
		s.pos++
	}
	return b.String(), termEOF, nil
}

func (s *scanner) readQuoted(b *strings.Builder) error {
	startLine := s.line
	s.pos++ // opening quote
	for s.pos < len(s.text) {
		c := s.text[s.pos]
		switch {
		case c == '"' && s.pos+1 < len(s.text) && s.text[s.pos+1] == '"':
			b.WriteByte('"')
			s.pos += 2
		case c == '"':
			s.pos++
			return nil
		default:
			if c == '\n' {
				s.line++
			}
			b.WriteByte(c)
			s.pos++
		}
	}
	return fmt.Errorf("%w: unterminated quoted field starting on line %d", ErrMalformedUpload, startLine)
}

package core

// export.go renders customers back to CSV.
//
// Every field is double-quoted with embedded quotes doubled, so the output
// tokenizes back to the same values. Lines are joined with \r\n and the last
// line has no terminator. The active flag and dates render differently per
// RenderMode; the stored value is always the same boolean and timestamp.

import (
	"fmt"
	"io"
	"strings"
)

// RenderMode selects how booleans and dates are written.
type RenderMode string

const (
	// ModeRegister writes active as 1/0 and dates as YYYY-MM-DD. Used for the
	// confirmation export after an import.
	ModeRegister RenderMode = "register"

	// ModeStatus writes active as ACTIVE/INACTIVE and dates as YYYYMMDD. Used
	// for the customer export.
	ModeStatus RenderMode = "status"
)

// ParseRenderMode accepts "register" or "status".
func ParseRenderMode(s string) (RenderMode, error) {
	switch RenderMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRegister:
		return ModeRegister, nil
	case ModeStatus:
		return ModeStatus, nil
	}
	return "", fmt.Errorf("unknown render mode %q (use register or status)", s)
}

// Field names a Customer attribute that can be exported.
type Field int

const (
	FieldIdentifier Field = iota
	FieldName
	FieldActive
	FieldMotherCode
	FieldGroup
	FieldCreatedAt
	FieldCompanyName
)

// Column is one exported column: its header text and source field.
type Column struct {
	Header string
	Field  Field
}

// RegisterColumns is the column order of the confirmation export.
var RegisterColumns = []Column{
	{Header: "Customer ID", Field: FieldIdentifier},
	{Header: "Customer Name", Field: FieldName},
	{Header: "isActive", Field: FieldActive},
	{Header: "Mother Code", Field: FieldMotherCode},
	{Header: "Group", Field: FieldGroup},
	{Header: "Date Created", Field: FieldCreatedAt},
}

// StatusColumns is the column order of the customer export.
var StatusColumns = []Column{
	{Header: "CompanyName", Field: FieldCompanyName},
	{Header: "BPName", Field: FieldName},
	{Header: "MotherCode", Field: FieldMotherCode},
	{Header: "Status", Field: FieldActive},
	{Header: "Group", Field: FieldGroup},
	{Header: "DateEnrolled", Field: FieldCreatedAt},
}

// Exporter renders customers as CSV.
type Exporter struct {
	Mode    RenderMode
	Columns []Column
}

// NewExporter returns an exporter using the default columns for mode.
func NewExporter(mode RenderMode) Exporter {
	cols := RegisterColumns
	if mode == ModeStatus {
		cols = StatusColumns
	}
	return Exporter{Mode: mode, Columns: cols}
}

// Render returns the CSV document for rows.
func (e Exporter) Render(rows []Customer) string {
	var b strings.Builder
	_, _ = e.WriteTo(&b, rows)
	return b.String()
}

// WriteTo writes the CSV document for rows to w.
func (e Exporter) WriteTo(w io.Writer, rows []Customer) (int64, error) {
	cw := &countingWriter{w: w}

	headers := make([]string, len(e.Columns))
	for i, col := range e.Columns {
		headers[i] = col.Header
	}
	writeLine(cw, headers)

	values := make([]string, len(e.Columns))
	for _, row := range rows {
		for i, col := range e.Columns {
			values[i] = e.value(row, col.Field)
		}
		cw.writeString("\r\n")
		writeLine(cw, values)
	}
	return cw.n, cw.err
}

func (e Exporter) value(c Customer, f Field) string {
	switch f {
	case FieldIdentifier:
		return c.Identifier.String()
	case FieldName:
		return c.Name
	case FieldActive:
		return e.formatActive(c.Active)
	case FieldMotherCode:
		return c.MotherCode
	case FieldGroup:
		return c.Group
	case FieldCreatedAt:
		if c.CreatedAt.IsZero() {
			return ""
		}
		if e.Mode == ModeStatus {
			return c.CreatedAt.Format("20060102")
		}
		return c.CreatedAt.Format("2006-01-02")
	case FieldCompanyName:
		return c.CompanyName
	}
	return ""
}

func (e Exporter) formatActive(active bool) string {
	if e.Mode == ModeStatus {
		if active {
			return "ACTIVE"
		}
		return "INACTIVE"
	}
	if active {
		return "1"
	}
	return "0"
}

func writeLine(cw *countingWriter, fields []string) {
	for i, f := range fields {
		if i > 0 {
			cw.writeString(",")
		}
		cw.writeString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`)
	}
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) writeString(s string) {
	if c.err != nil {
		return
	}
	n, err := io.WriteString(c.w, s)
	c.n += int64(n)
	c.err = err
}

// ResolveCompanyNames sets CompanyName on every row whose MotherCode matches
// the identifier of another row in the same slice.
func ResolveCompanyNames(rows []Customer) {
	names := make(map[string]string, len(rows))
	for _, r := range rows {
		names[r.Identifier.String()] = r.Name
	}
	for i := range rows {
		rows[i].CompanyName = ""
		if rows[i].MotherCode == "" {
			continue
		}
		rows[i].CompanyName = names[rows[i].MotherCode]
	}
}

package core

import "strings"

// PlanImport turns a validated batch into rows to insert. Rows whose customer
// name is blank are discarded and do not consume an identifier. The remaining
// rows get contiguous identifiers after cursor, in file order. It returns the
// rows and the number discarded.
func PlanImport(batch ImportBatch, cursor Identifier) ([]NewCustomer, int, error) {
	alloc := NewAllocator(cursor)
	rows := make([]NewCustomer, 0, len(batch.Rows))
	discarded := 0

	for _, r := range batch.Rows {
		name := strings.TrimSpace(r.CustomerName)
		if name == "" {
			discarded++
			continue
		}

		id, err := alloc.Next()
		if err != nil {
			return nil, 0, err
		}

		var mother *string
		if m := strings.TrimSpace(r.MotherCode); m != "" {
			mother = &m
		}

		rows = append(rows, NewCustomer{
			Identifier: id,
			Name:       name,
			MotherCode: mother,
			Group:      strings.TrimSpace(r.Group),
			Line:       r.Line,
		})
	}

	return rows, discarded, nil
}

// acceptedRows reports planned rows in response form.
func acceptedRows(rows []NewCustomer) []AcceptedRow {
	out := make([]AcceptedRow, len(rows))
	for i, r := range rows {
		out[i] = AcceptedRow{
			Line:         r.Line,
			CustomerID:   r.Identifier.String(),
			CustomerName: r.Name,
			Group:        r.Group,
		}
		if r.MotherCode != nil {
			out[i].MotherCode = *r.MotherCode
		}
	}
	return out
}

func countBlankNames(batch ImportBatch) int {
	n := 0
	for _, r := range batch.Rows {
		if strings.TrimSpace(r.CustomerName) == "" {
			n++
		}
	}
	return n
}

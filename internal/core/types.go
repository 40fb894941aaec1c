package core

import (
	"context"
	"time"
)

// Required header columns, in order.
const (
	ColumnCustomerName = "Customer Name"
	ColumnMotherCode   = "Mother Code"
	ColumnGroup        = "Group"
)

// RequiredHeaders is the exact header row an upload must start with.
var RequiredHeaders = []string{ColumnCustomerName, ColumnMotherCode, ColumnGroup}

// Customer is a persisted valued-customer row.
type Customer struct {
	Identifier  Identifier
	Name        string
	MotherCode  string // empty when absent
	Group       string
	Active      bool
	UpdateCount int
	CreatedAt   time.Time

	// CompanyName is the name of the customer referenced by MotherCode. It is
	// filled by ResolveCompanyNames and never stored.
	CompanyName string
}

// NewCustomer is a row ready to insert. Storage assigns the timestamp.
type NewCustomer struct {
	Identifier Identifier
	Name       string
	MotherCode *string // nil when the upload left it blank
	Group      string
	Line       int // source line, for reporting
}

// CandidateRow is one data row of an upload before validation.
type CandidateRow struct {
	Line         int
	CustomerName string
	MotherCode   string
	Group        string
}

// ImportBatch is the ordered set of candidate rows from one upload.
type ImportBatch struct {
	FileName string
	Rows     []CandidateRow
}

// AcceptedRow is a candidate row that was persisted, with its identifier.
type AcceptedRow struct {
	Line         int    `json:"line"`
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName"`
	MotherCode   string `json:"motherCode"`
	Group        string `json:"group"`
}

// ImportResult is the outcome of a successful import.
type ImportResult struct {
	BatchID   string
	FileName  string
	Accepted  []AcceptedRow
	Discarded int
	Customers []Customer
	Duration  time.Duration
}

// Identifiers returns the identifiers of the accepted rows in file order.
func (r *ImportResult) Identifiers() []string {
	ids := make([]string, len(r.Accepted))
	for i, row := range r.Accepted {
		ids[i] = row.CustomerID
	}
	return ids
}

// ImportRecord is the history entry written with every persisted batch.
type ImportRecord struct {
	BatchID         string    `json:"batchId"`
	FileName        string    `json:"fileName"`
	RowsInserted    int       `json:"rowsInserted"`
	RowsDiscarded   int       `json:"rowsDiscarded"`
	FirstIdentifier string    `json:"firstIdentifier"`
	LastIdentifier  string    `json:"lastIdentifier"`
	Source          string    `json:"source"` // client IP, or "cli"
	ImportedAt      time.Time `json:"importedAt"`
}

// PlanFunc builds the rows to insert from the current allocation cursor. A
// Store calls it inside its serialized import transaction.
type PlanFunc func(cursor Identifier) ([]NewCustomer, error)

// BatchWrite is everything a Store needs to persist one import.
type BatchWrite struct {
	Plan   PlanFunc
	Record ImportRecord // RowsInserted and identifiers are filled by the Store
}

// Store is the storage collaborator for the import pipeline.
//
// ImportBatch must be atomic: it reads the highest stored identifier (or
// EmptyCursor), calls Plan, inserts every returned row and the ImportRecord,
// and commits, all while holding a lock that serializes concurrent imports.
// On failure nothing is committed. Identifier collisions are reported as
// ErrDuplicateIdentifier.
type Store interface {
	ImportBatch(ctx context.Context, batch BatchWrite) ([]Customer, error)
	FindByIdentifiers(ctx context.Context, ids []Identifier) ([]Customer, error)
	RecentImports(ctx context.Context, limit int) ([]ImportRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

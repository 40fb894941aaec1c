// Package testutil holds test doubles shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

// MemStore is an in-memory core.Store. ImportBatch holds the mutex for the
// whole plan-and-insert step, which gives it the same serialization as the
// database backends.
type MemStore struct {
	mu        sync.Mutex
	customers map[core.Identifier]core.Customer
	imports   []core.ImportRecord

	// Now stamps created_at and imported_at. Defaults to time.Now.
	Now func() time.Time

	// ImportErrs are returned, in order, by the next ImportBatch calls
	// before any work is done.
	ImportErrs []error

	// ImportCalls counts ImportBatch invocations.
	ImportCalls int

	// Closed is set by Close.
	Closed bool
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{customers: make(map[core.Identifier]core.Customer)}
}

// Seed stores customers as-is.
func (m *MemStore) Seed(customers ...core.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range customers {
		m.customers[c.Identifier] = c
	}
}

// Customers returns every stored customer ordered by identifier.
func (m *MemStore) Customers() []core.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b core.Customer) int {
		return compareIdentifiers(a.Identifier, b.Identifier)
	})
	return out
}

func (m *MemStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemStore) ImportBatch(ctx context.Context, batch core.BatchWrite) ([]core.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ImportCalls++
	if len(m.ImportErrs) > 0 {
		err := m.ImportErrs[0]
		m.ImportErrs = m.ImportErrs[1:]
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cursor := core.EmptyCursor
	for id := range m.customers {
		if id > cursor {
			cursor = id
		}
	}

	rows, err := batch.Plan(cursor)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if _, exists := m.customers[r.Identifier]; exists {
			return nil, fmt.Errorf("insert %s: %w", r.Identifier, core.ErrDuplicateIdentifier)
		}
	}

	now := m.now()
	out := make([]core.Customer, len(rows))
	for i, r := range rows {
		c := core.Customer{
			Identifier: r.Identifier,
			Name:       r.Name,
			Group:      r.Group,
			Active:     true,
			CreatedAt:  now,
		}
		if r.MotherCode != nil {
			c.MotherCode = *r.MotherCode
		}
		m.customers[c.Identifier] = c
		out[i] = c
	}

	rec := batch.Record
	rec.RowsInserted = len(rows)
	rec.ImportedAt = now
	if len(rows) > 0 {
		rec.FirstIdentifier = rows[0].Identifier.String()
		rec.LastIdentifier = rows[len(rows)-1].Identifier.String()
	}
	m.imports = append(m.imports, rec)

	return out, nil
}

func (m *MemStore) FindByIdentifiers(ctx context.Context, ids []core.Identifier) ([]core.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Customer
	for _, id := range ids {
		if c, ok := m.customers[id]; ok {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b core.Customer) int {
		return compareIdentifiers(a.Identifier, b.Identifier)
	})
	return out, nil
}

func (m *MemStore) RecentImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]core.ImportRecord, 0, min(limit, len(m.imports)))
	for i := len(m.imports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.imports[i])
	}
	return out, nil
}

func (m *MemStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func compareIdentifiers(a, b core.Identifier) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

var _ core.Store = (*MemStore)(nil)

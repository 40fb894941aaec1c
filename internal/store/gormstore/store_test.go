package gormstore_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/valuedcustomer/internal/config"
	"github.com/JonMunkholm/valuedcustomer/internal/core"
	"github.com/JonMunkholm/valuedcustomer/internal/store/gormstore"
)

func openTestStore(t *testing.T) *gormstore.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := gormstore.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		URL:      fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxConns: 1,
	}, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func planRows(names ...string) core.PlanFunc {
	return func(cursor core.Identifier) ([]core.NewCustomer, error) {
		rows, _, err := core.PlanImport(core.ImportBatch{Rows: candidates(names...)}, cursor)
		return rows, err
	}
}

func candidates(names ...string) []core.CandidateRow {
	rows := make([]core.CandidateRow, len(names))
	for i, n := range names {
		rows[i] = core.CandidateRow{Line: i + 2, CustomerName: n, Group: "G"}
	}
	return rows
}

func TestImportBatch_AllocatesFromSentinel(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	customers, err := store.ImportBatch(ctx, core.BatchWrite{
		Plan:   planRows("A", "", "B", "C"),
		Record: core.ImportRecord{BatchID: "b-1", FileName: "one.csv", RowsDiscarded: 1, Source: "cli"},
	})
	require.NoError(t, err)
	require.Len(t, customers, 3)
	assert.Equal(t, "9000-000001", customers[0].Identifier.String())
	assert.Equal(t, "9000-000003", customers[2].Identifier.String())
	assert.True(t, customers[0].Active)
	assert.False(t, customers[0].CreatedAt.IsZero())
	assert.Empty(t, customers[0].MotherCode)

	records, err := store.RecentImports(ctx, 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.ImportRecord{
		BatchID:         "b-1",
		FileName:        "one.csv",
		RowsInserted:    3,
		RowsDiscarded:   1,
		FirstIdentifier: "9000-000001",
		LastIdentifier:  "9000-000003",
		Source:          "cli",
		ImportedAt:      records[0].ImportedAt,
	}, records[0])
}

func TestImportBatch_ContinuesFromHighest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	write := func(batchID string, names ...string) []core.Customer {
		t.Helper()
		customers, err := store.ImportBatch(ctx, core.BatchWrite{
			Plan:   planRows(names...),
			Record: core.ImportRecord{BatchID: batchID, FileName: batchID + ".csv"},
		})
		require.NoError(t, err)
		return customers
	}

	write("b-1", "A", "B", "C", "D", "E")
	second := write("b-2", "F", "G")

	assert.Equal(t, "9000-000006", second[0].Identifier.String())
	assert.Equal(t, "9000-000007", second[1].Identifier.String())
}

func TestImportBatch_MotherCodeNullable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mother := "9000-000001"
	customers, err := store.ImportBatch(ctx, core.BatchWrite{
		Plan: func(cursor core.Identifier) ([]core.NewCustomer, error) {
			return []core.NewCustomer{
				{Identifier: cursor + 1, Name: "Parent", Group: "G"},
				{Identifier: cursor + 2, Name: "Child", MotherCode: &mother, Group: "G"},
			}, nil
		},
		Record: core.ImportRecord{BatchID: "b-1"},
	})
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Empty(t, customers[0].MotherCode)
	assert.Equal(t, mother, customers[1].MotherCode)
}

func TestImportBatch_DuplicateRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.ImportBatch(ctx, core.BatchWrite{
		Plan: func(cursor core.Identifier) ([]core.NewCustomer, error) {
			return []core.NewCustomer{
				{Identifier: cursor + 1, Name: "A"},
				{Identifier: cursor + 1, Name: "B"},
			}, nil
		},
		Record: core.ImportRecord{BatchID: "b-dup"},
	})
	require.ErrorIs(t, err, core.ErrDuplicateIdentifier)

	found, err := store.FindByIdentifiers(ctx, []core.Identifier{core.EmptyCursor + 1})
	require.NoError(t, err)
	assert.Empty(t, found, "a failed batch must leave nothing behind")

	records, err := store.RecentImports(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestImportBatch_PlanErrorRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.ImportBatch(ctx, core.BatchWrite{
		Plan: func(core.Identifier) ([]core.NewCustomer, error) {
			return nil, fmt.Errorf("allocate: %w", core.ErrIdentifierOverflow)
		},
		Record: core.ImportRecord{BatchID: "b-1"},
	})
	require.ErrorIs(t, err, core.ErrIdentifierOverflow)

	records, err := store.RecentImports(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestService_ConcurrentImportsNeverShareIdentifiers(t *testing.T) {
	store := openTestStore(t)
	svc, err := core.NewService(store, config.ImportConfig{
		MaxConcurrent: 4,
		MaxWaitTime:   5 * time.Second,
		Timeout:       10 * time.Second,
		MaxAttempts:   3,
	}, nil)
	require.NoError(t, err)

	const workers = 6
	var wg sync.WaitGroup
	results := make([][]string, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			csv := fmt.Sprintf("Customer Name,Mother Code,Group\nW%d-1,,G\nW%d-2,,G\nW%d-3,,G", i, i, i)
			res, err := svc.ImportCSV(context.Background(), "w.csv", csv)
			if assert.NoError(t, err) {
				results[i] = res.Identifiers()
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, ids := range results {
		require.Len(t, ids, 3)
		for _, id := range ids {
			assert.False(t, seen[id], "identifier %s handed out twice", id)
			seen[id] = true
		}
		// Each batch is contiguous.
		first, _ := core.ParseIdentifier(ids[0])
		last, _ := core.ParseIdentifier(ids[2])
		assert.Equal(t, first+2, last)
	}
	assert.Len(t, seen, workers*3)
}

func TestFindByIdentifiers_Ordered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.ImportBatch(ctx, core.BatchWrite{
		Plan:   planRows("A", "B", "C"),
		Record: core.ImportRecord{BatchID: "b-1"},
	})
	require.NoError(t, err)

	found, err := store.FindByIdentifiers(ctx, []core.Identifier{
		core.EmptyCursor + 3, core.EmptyCursor + 1, core.EmptyCursor + 42,
	})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "A", found[0].Name)
	assert.Equal(t, "C", found[1].Name)

	require.NoError(t, store.Ping(ctx))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := gormstore.Open(config.DatabaseConfig{Driver: "oracle", URL: "x"}, 0)
	require.Error(t, err)
}

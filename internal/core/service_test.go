package core_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/valuedcustomer/internal/config"
	"github.com/JonMunkholm/valuedcustomer/internal/core"
	"github.com/JonMunkholm/valuedcustomer/internal/testutil"
)

type recorderSpy struct {
	mu        sync.Mutex
	succeeded int
	failed    []string
	retried   int
	exported  int
}

func (r *recorderSpy) ImportSucceeded(int, int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded++
}

func (r *recorderSpy) ImportFailed(code string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, code)
}

func (r *recorderSpy) ImportRetried() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retried++
}

func (r *recorderSpy) ExportRendered(core.RenderMode, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exported++
}

func newService(t *testing.T, store core.Store, rec core.Recorder) *core.Service {
	t.Helper()
	svc, err := core.NewService(store, config.ImportConfig{
		MaxConcurrent: 4,
		MaxWaitTime:   time.Second,
		Timeout:       5 * time.Second,
		MaxAttempts:   3,
	}, rec)
	require.NoError(t, err)
	return svc
}

func uploadBody(t *testing.T, name, csv string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func TestService_ImportUpload(t *testing.T) {
	store := testutil.NewMemStore()
	store.Seed(core.Customer{Identifier: core.EmptyCursor + 5, Name: "Existing", Active: true})
	rec := &recorderSpy{}
	svc := newService(t, store, rec)

	body, ct := uploadBody(t, "batch.csv",
		"Customer Name,Mother Code,Group\r\nAlice,,G1\r\n,M1,G2\r\nBob,M2,\r\n")

	ctx := core.ContextWithSource(context.Background(), "203.0.113.9")
	result, err := svc.ImportUpload(ctx, body, ct)
	require.NoError(t, err)

	assert.Equal(t, "batch.csv", result.FileName)
	assert.NotEmpty(t, result.BatchID)
	assert.Equal(t, 1, result.Discarded)
	assert.Equal(t, []string{"9000-000006", "9000-000007"}, result.Identifiers())
	require.Len(t, result.Customers, 2)
	assert.Equal(t, "Alice", result.Customers[0].Name)
	assert.Empty(t, result.Customers[0].MotherCode)
	assert.Equal(t, "M2", result.Customers[1].MotherCode)
	assert.True(t, result.Customers[1].Active)

	records, err := svc.RecentImports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, result.BatchID, records[0].BatchID)
	assert.Equal(t, 2, records[0].RowsInserted)
	assert.Equal(t, 1, records[0].RowsDiscarded)
	assert.Equal(t, "9000-000006", records[0].FirstIdentifier)
	assert.Equal(t, "9000-000007", records[0].LastIdentifier)
	assert.Equal(t, "203.0.113.9", records[0].Source)

	assert.Equal(t, 1, rec.succeeded)
	assert.Empty(t, rec.failed)
}

func TestService_ImportCSV_EmptyStoreStartsAtSentinel(t *testing.T) {
	svc := newService(t, testutil.NewMemStore(), nil)

	result, err := svc.ImportCSV(context.Background(), "a.csv", "Customer Name,Mother Code,Group\nFirst,,G")
	require.NoError(t, err)
	assert.Equal(t, []string{"9000-000001"}, result.Identifiers())
}

func TestService_ImportCSV_AllRowsDiscarded(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newService(t, store, nil)

	result, err := svc.ImportCSV(context.Background(), "a.csv", "Customer Name,Mother Code,Group\n,M1,G\n ,M2,G")
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	assert.Equal(t, 2, result.Discarded)
	assert.Zero(t, store.ImportCalls, "nothing should reach the store")
}

func TestService_ImportUpload_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want error
		code string
	}{
		{"reordered header", "Mother Code,Customer Name,Group\nA,B,C", core.ErrInvalidSchema, "VAL004"},
		{"short row", "Customer Name,Mother Code,Group\nA,B", core.ErrMalformedRow, "VAL005"},
		{"not csv", "hello world", core.ErrNotCSV, "FILE003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemStore()
			rec := &recorderSpy{}
			svc := newService(t, store, rec)
			body, ct := uploadBody(t, "x.csv", tt.csv)

			_, err := svc.ImportUpload(context.Background(), body, ct)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.code, core.MapError(err).Code)
			assert.Zero(t, store.ImportCalls)
			assert.Equal(t, []string{tt.code}, rec.failed)
		})
	}
}

func TestService_ImportUpload_Malformed(t *testing.T) {
	svc := newService(t, testutil.NewMemStore(), nil)

	_, err := svc.ImportUpload(context.Background(), []byte("Customer Name,Mother Code,Group\n"), "text/plain")
	require.ErrorIs(t, err, core.ErrMalformedUpload)
}

func TestService_RetriesDuplicateIdentifier(t *testing.T) {
	store := testutil.NewMemStore()
	store.ImportErrs = []error{
		fmt.Errorf("insert: %w", core.ErrDuplicateIdentifier),
	}
	rec := &recorderSpy{}
	svc := newService(t, store, rec)

	result, err := svc.ImportCSV(context.Background(), "a.csv", "Customer Name,Mother Code,Group\nA,,G")
	require.NoError(t, err)
	assert.Equal(t, []string{"9000-000001"}, result.Identifiers())
	assert.Equal(t, 2, store.ImportCalls)
	assert.Equal(t, 1, rec.retried)
}

func TestService_RetryExhausted(t *testing.T) {
	dup := fmt.Errorf("insert: %w", core.ErrDuplicateIdentifier)
	store := testutil.NewMemStore()
	store.ImportErrs = []error{dup, dup, dup}
	svc := newService(t, store, nil)

	_, err := svc.ImportCSV(context.Background(), "a.csv", "Customer Name,Mother Code,Group\nA,,G")
	require.ErrorIs(t, err, core.ErrPersistence)
	assert.Equal(t, "DB008", core.MapError(err).Code)
	assert.Equal(t, 3, store.ImportCalls)
	assert.Empty(t, store.Customers())
}

func TestService_StoreFailureIsPersistenceError(t *testing.T) {
	store := testutil.NewMemStore()
	store.ImportErrs = []error{errors.New("disk on fire")}
	svc := newService(t, store, nil)

	_, err := svc.ImportCSV(context.Background(), "a.csv", "Customer Name,Mother Code,Group\nA,,G")
	require.ErrorIs(t, err, core.ErrPersistence)
	assert.Equal(t, 1, store.ImportCalls)
}

func TestService_Overflow(t *testing.T) {
	store := testutil.NewMemStore()
	store.Seed(core.Customer{Identifier: core.MaxIdentifier, Name: "Last"})
	svc := newService(t, store, nil)

	_, err := svc.ImportCSV(context.Background(), "a.csv", "Customer Name,Mother Code,Group\nA,,G")
	require.ErrorIs(t, err, core.ErrIdentifierOverflow)
	assert.Equal(t, "ID001", core.MapError(err).Code)
	assert.Len(t, store.Customers(), 1)
}

func TestService_Timeout(t *testing.T) {
	store := testutil.NewMemStore()
	store.ImportErrs = []error{fmt.Errorf("copy rows: %w", context.DeadlineExceeded)}
	svc := newService(t, store, nil)

	_, err := svc.ImportCSV(context.Background(), "a.csv", "Customer Name,Mother Code,Group\nA,,G")
	require.ErrorIs(t, err, core.ErrRequestTimeout)
	assert.Equal(t, "UPL005", core.MapError(err).Code)
}

func TestService_ConcurrentImportsNeverShareIdentifiers(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newService(t, store, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			csv := fmt.Sprintf("Customer Name,Mother Code,Group\nW%d-a,,G\nW%d-b,,G\nW%d-c,,G", i, i, i)
			_, err := svc.ImportCSV(context.Background(), "w.csv", csv)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	customers := store.Customers()
	require.Len(t, customers, workers*3)
	for i, c := range customers {
		assert.Equal(t, core.EmptyCursor+core.Identifier(i+1), c.Identifier)
	}
}

func TestService_Export(t *testing.T) {
	store := testutil.NewMemStore()
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	store.Seed(
		core.Customer{Identifier: core.EmptyCursor + 1, Name: "Parent", Group: "G", Active: true, CreatedAt: created},
		core.Customer{Identifier: core.EmptyCursor + 2, Name: "Child", MotherCode: "9000-000001", Group: "G", Active: true, CreatedAt: created},
	)
	rec := &recorderSpy{}
	svc := newService(t, store, rec)

	ids := []string{"9000-000002", "9000-000001", "9000-000002", "9000-000099"}

	reg, err := svc.Export(context.Background(), ids, core.ModeRegister)
	require.NoError(t, err)
	require.Len(t, reg.Customers, 2)
	assert.Equal(t,
		`"Customer ID","Customer Name","isActive","Mother Code","Group","Date Created"`+"\r\n"+
			`"9000-000001","Parent","1","","G","2024-01-02"`+"\r\n"+
			`"9000-000002","Child","1","9000-000001","G","2024-01-02"`,
		reg.CSV)

	status, err := svc.Export(context.Background(), ids, core.ModeStatus)
	require.NoError(t, err)
	assert.Contains(t, status.CSV, `"Parent","Child","9000-000001","ACTIVE","G","20240102"`)

	again, err := svc.Export(context.Background(), ids, core.ModeStatus)
	require.NoError(t, err)
	assert.Equal(t, status.CSV, again.CSV)
	assert.Equal(t, 3, rec.exported)
}

func TestService_ExportErrors(t *testing.T) {
	svc := newService(t, testutil.NewMemStore(), nil)

	_, err := svc.Export(context.Background(), nil, core.ModeRegister)
	require.ErrorIs(t, err, core.ErrInvalidIdentifier)

	_, err = svc.Export(context.Background(), []string{"9000-1"}, core.ModeRegister)
	require.ErrorIs(t, err, core.ErrInvalidIdentifier)

	_, err = svc.Export(context.Background(), []string{"9000-000001"}, core.ModeRegister)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_LimiterAndPing(t *testing.T) {
	svc := newService(t, testutil.NewMemStore(), nil)

	assert.Equal(t, core.LimiterStatus{Active: 0, Available: 4, MaxConcurrent: 4}, svc.LimiterStatus())
	require.NoError(t, svc.Ping(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.WaitForImports(ctx))
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := core.NewService(nil, config.ImportConfig{}, nil)
	require.Error(t, err)
}

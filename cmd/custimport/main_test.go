package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/valuedcustomer/internal/config"
	"github.com/JonMunkholm/valuedcustomer/internal/core"
	"github.com/JonMunkholm/valuedcustomer/internal/testutil"
)

type harness struct {
	store    *testutil.MemStore
	migrated bool
	opened   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	return &harness{store: testutil.NewMemStore()}
}

func (h *harness) open(_ context.Context, _ *config.Config, migrate bool) (core.Store, error) {
	h.opened++
	h.migrated = h.migrated || migrate
	return h.store, nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(h.open)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestImportCommand(t *testing.T) {
	h := newHarness(t)
	file := writeTemp(t, "customers.csv", "Customer Name,Mother Code,Group\nAcme,,G1\n,,G2\nBeta,9000-000001,G1\n")
	confirm := filepath.Join(t.TempDir(), "confirm.csv")

	out, err := h.run(t, "import", "--file", file, "--out", confirm, "--migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 customers")
	assert.Contains(t, out, "skipped 1 rows")
	assert.Contains(t, out, "9000-000001\tAcme")
	assert.True(t, h.migrated)

	data, err := os.ReadFile(confirm)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `"Customer ID","Customer Name"`))
	assert.Contains(t, string(data), `"9000-000002","Beta"`)

	records, err := h.store.RecentImports(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cli", records[0].Source)
	assert.Equal(t, "customers.csv", records[0].FileName)
}

func TestImportCommand_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "import")
	require.Error(t, err, "--file is required")

	_, err = h.run(t, "import", "--file", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	_, err = h.run(t, "import", "--file", writeTemp(t, "x.csv", "no commas here"))
	require.ErrorIs(t, err, core.ErrNotCSV)

	_, err = h.run(t, "import", "--file", writeTemp(t, "y.csv", "Group,Customer Name,Mother Code\nG,A,"))
	require.ErrorIs(t, err, core.ErrInvalidSchema)
	assert.Zero(t, h.store.ImportCalls)
}

func TestExportCommand(t *testing.T) {
	h := newHarness(t)
	file := writeTemp(t, "customers.csv", "Customer Name,Mother Code,Group\nAcme,,G1\nBeta,9000-000001,G1")
	_, err := h.run(t, "import", "--file", file)
	require.NoError(t, err)

	out, err := h.run(t, "export", "--ids", "9000-000002,9000-000001", "--mode", "status")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\r\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], `"Acme","Beta","9000-000001","ACTIVE","G1"`), lines[2])

	dest := filepath.Join(t.TempDir(), "export.csv")
	_, err = h.run(t, "export", "--ids", "9000-000001", "--out", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `"Customer ID"`))
	assert.False(t, strings.HasSuffix(string(data), "\n"))
}

func TestExportCommand_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "export", "--ids", "9000-000001", "--mode", "fancy")
	require.Error(t, err)

	_, err = h.run(t, "export", "--ids", "9000-000001")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = h.run(t, "export", "--ids", "bogus")
	require.ErrorIs(t, err, core.ErrInvalidIdentifier)
}

func TestStoreClosedAfterCommand(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "export", "--ids", "9000-000001")
	require.Error(t, err)
	assert.Equal(t, 1, h.opened)
	assert.True(t, h.store.Closed)
}

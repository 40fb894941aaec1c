package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

func TestRecorder_Imports(t *testing.T) {
	r, err := New("test")
	require.NoError(t, err)

	r.ImportSucceeded(3, 1, 20*time.Millisecond)
	r.ImportSucceeded(2, 0, 10*time.Millisecond)
	r.ImportFailed("VAL004", time.Millisecond)
	r.ImportRetried()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.imports.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.imports.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("VAL004")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.rowsInserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rowsDiscarded))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorder_Exports(t *testing.T) {
	r, err := New("test")
	require.NoError(t, err)

	r.ExportRendered(core.ModeRegister, 4)
	r.ExportRendered(core.ModeStatus, 2)
	r.ExportRendered(core.ModeStatus, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.exports.WithLabelValues(string(core.ModeRegister))))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.exports.WithLabelValues(string(core.ModeStatus))))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.exportRows))
}

func TestRecorder_Handler(t *testing.T) {
	r, err := New("vc")
	require.NoError(t, err)
	r.ImportSucceeded(1, 0, time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `vc_import_batches_total{status="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	_, err := New("vc")
	require.NoError(t, err)
	_, err = New("vc")
	require.NoError(t, err, "each recorder owns its registry")
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_market_table/internal/domain"
)

func TestObserveRefresh(t *testing.T) {
	m, _ := New(prometheus.NewRegistry())
	finished := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	m.ObserveRefresh(domain.RefreshRecord{OK: true, Rows: 98, Skipped: 2, FinishedAt: finished}, 120*time.Millisecond)
	m.ObserveRefresh(domain.RefreshRecord{OK: false, Error: "boom"}, 3*time.Second)
	m.ObserveRefresh(domain.RefreshRecord{OK: true, Rows: 100, FinishedAt: finished}, 80*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.Rows))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Skipped))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.LastSuccess))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FetchLatency))
}

func TestObserveSort(t *testing.T) {
	m, _ := New(prometheus.NewRegistry())

	m.ObserveSort(domain.ColumnPrice)
	m.ObserveSort(domain.ColumnPrice)
	m.ObserveSort(domain.ColumnName)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SortRequests.WithLabelValues("price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SortRequests.WithLabelValues("name")))
}

func TestObserveConnections(t *testing.T) {
	m, _ := New(prometheus.NewRegistry())
	m.ObserveConnections(3)
	m.ObserveConnections(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))
}

func TestHandler(t *testing.T) {
	m, reg := New(nil)
	m.Rows.Set(42)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "market_table_rows 42")
	assert.Contains(t, string(body), "go_goroutines")
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errata-harvester/internal/store"
	"errata-harvester/internal/task"
)

type staticLoader store.Collection

func (s staticLoader) Load() store.Collection { return store.Collection(s) }

func fixture() staticLoader {
	return staticLoader{
		"RHSA-2024:0001": {ID: "RHSA-2024:0001", Severity: "Important", IssueDate: "2024-01-10"},
		"RHSA-2024:0002": {ID: "RHSA-2024:0002", Severity: "Moderate", IssueDate: "2024-03-01"},
	}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServer_List(t *testing.T) {
	h := New(fixture(), nil, prometheus.NewRegistry(), nil).Routes()

	rec := do(t, h, http.MethodGet, "/advisories")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []store.Advisory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "RHSA-2024:0002", got[0].ID)

	rec = do(t, h, http.MethodGet, "/advisories?severity=important")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "RHSA-2024:0001", got[0].ID)
}

func TestServer_Get(t *testing.T) {
	h := New(fixture(), nil, prometheus.NewRegistry(), nil).Routes()

	rec := do(t, h, http.MethodGet, "/advisories/RHSA-2024:0001")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errata_id":"RHSA-2024:0001"`)

	rec = do(t, h, http.MethodGet, "/advisories/RHSA-1999:0001")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Export(t *testing.T) {
	h := New(fixture(), nil, prometheus.NewRegistry(), nil).Routes()

	rec := do(t, h, http.MethodGet, "/export?format=csv")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\ufeffAdvisory ID"))

	rec = do(t, h, http.MethodGet, "/export?format=pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = do(t, h, http.MethodGet, "/export?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Collect(t *testing.T) {
	calls := 0
	harvest := func(ctx context.Context) (*task.Run, error) {
		calls++
		return &task.Run{State: task.StateDone, Added: 3}, nil
	}
	h := New(fixture(), harvest, prometheus.NewRegistry(), nil).Routes()

	rec := do(t, h, http.MethodPost, "/collect")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"added":3`)
	assert.Equal(t, 1, calls)

	failing := New(fixture(), func(ctx context.Context) (*task.Run, error) {
		return &task.Run{State: task.StateAborted}, errors.New("listing unavailable")
	}, prometheus.NewRegistry(), nil).Routes()
	rec = do(t, failing, http.MethodPost, "/collect")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, New(fixture(), nil, nil, nil).Routes(), http.MethodPost, "/collect")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "errata_test_total", Help: "t"})
	reg.MustRegister(c)
	c.Inc()
	h := New(fixture(), nil, reg, nil).Routes()

	assert.Equal(t, "ok", do(t, h, http.MethodGet, "/health").Body.String())
	assert.Contains(t, do(t, h, http.MethodGet, "/metrics").Body.String(), "errata_test_total 1")
}

func TestServer_CollectOutlivesClient(t *testing.T) {
	var harvestErr error
	harvest := func(ctx context.Context) (*task.Run, error) {
		harvestErr = ctx.Err()
		return &task.Run{State: task.StateDone}, nil
	}
	h := New(fixture(), harvest, prometheus.NewRegistry(), nil).Routes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/collect", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, harvestErr)
}

func TestServer_CollectStopsWithServer(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	cancel()
	srv := New(fixture(), func(ctx context.Context) (*task.Run, error) {
		select {
		case <-ctx.Done():
			return &task.Run{State: task.StateAborted}, ctx.Err()
		case <-time.After(5 * time.Second):
			return &task.Run{State: task.StateDone}, nil
		}
	}, prometheus.NewRegistry(), nil)
	srv.base = base

	rec := do(t, srv.Routes(), http.MethodPost, "/collect")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), context.Canceled.Error())
}

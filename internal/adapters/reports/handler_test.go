package reports_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcore/internal/adapters/reports"
	"dashcore/internal/config"
	"dashcore/internal/demo"
	"dashcore/internal/facade"
	"dashcore/internal/infra/persistence/memory"
	"dashcore/pkg/reportapi"
)

func newFacade(t *testing.T, reg prometheus.Registerer) *facade.Facade {
	t.Helper()
	cfg := config.Default()
	store := memory.NewStore()
	_, err := demo.Seed(context.Background(), store, config.DemoConfig{Seed: 7, Entities: 15}, cfg.CategoryList(), time.Now(), true)
	require.NoError(t, err)
	return facade.New(cfg, demo.NewSource(store, cfg), facade.WithMetrics(facade.NewMetrics(reg)))
}

func newHandler(t *testing.T) *reports.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	return reports.NewHandler(newFacade(t, reg), reports.WithGatherer(reg))
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newHandler(t), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMeta(t *testing.T) {
	rec := do(t, newHandler(t), http.MethodGet, "/api/v1/reports/sales-performance/meta", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var meta reportapi.Meta
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&meta))
	assert.True(t, meta.Features["export"])
	assert.NotEmpty(t, meta.LastUpdatedAt)
	assert.Equal(t, []string{"NORTH", "SOUTH", "EAST", "WEST"}, meta.Allowed["zone"])
}

func TestUnknownReportIs404(t *testing.T) {
	h := newHandler(t)
	rec := do(t, h, http.MethodPost, "/api/v1/reports/nope/kpis", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/reports/nope/meta", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKpisAndTable(t *testing.T) {
	h := newHandler(t)
	applied := map[string]any{
		"filters": map[string]any{"zone": []string{"NORTH", "SOUTH"}},
		"time":    map[string]any{"fiscalYear": "2025-2026", "period": "January 2026"},
		"toggles": map[string]any{"aggregation": "YTD", "metricMode": "VALUE"},
	}

	rec := do(t, h, http.MethodPost, "/api/v1/reports/sales-performance/kpis", applied)
	require.Equal(t, http.StatusOK, rec.Code)
	var kpis reportapi.KpiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&kpis))
	assert.Len(t, kpis.Cards, 4)
	assert.Len(t, kpis.Layout, 4)

	body := map[string]any{
		"filters":    applied["filters"],
		"pagination": map[string]any{"page": 1, "pageSize": 3},
		"sort":       map[string]any{"key": "entityName", "direction": "asc"},
	}
	rec = do(t, h, http.MethodPost, "/api/v1/reports/sales-performance/table", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var table reportapi.TableResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&table))
	assert.Equal(t, 1, table.Page)
	assert.Equal(t, 3, table.PageSize)
	assert.LessOrEqual(t, len(table.Rows), 3)
	for _, row := range table.Rows {
		assert.Contains(t, []string{"NORTH", "SOUTH"}, row.Zone)
	}
	assert.Positive(t, table.Total)
}

func TestDrilldown(t *testing.T) {
	h := newHandler(t)
	rec := do(t, h, http.MethodPost, "/api/v1/reports/sales-performance/drilldown", map[string]any{"entityId": "ent-0001"})
	require.Equal(t, http.StatusOK, rec.Code)
	var d reportapi.Drilldown
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.Equal(t, "ent-0001", d.Entity.ID)
	assert.NotEmpty(t, d.Trend)

	rec = do(t, h, http.MethodPost, "/api/v1/reports/sales-performance/drilldown", map[string]any{"entityId": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/reports/sales-performance/drilldown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportStreamsCSV(t *testing.T) {
	rec := do(t, newHandler(t), http.MethodPost, "/api/v1/reports/sales-performance/export", map[string]any{"format": "csv"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(rec.Body.String(), "\n")
	assert.Len(t, lines, 16)
	assert.True(t, strings.HasPrefix(lines[0], `"entityId"`))
}

func TestExportJSONViaQuery(t *testing.T) {
	rec := do(t, newHandler(t), http.MethodPost, "/api/v1/reports/sales-performance/export?format=json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 15)
}

func TestBadPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/sales-performance/table", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	newHandler(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateRoundTrip(t *testing.T) {
	h := newHandler(t)
	applied := reportapi.AppliedFilters{
		Filters: reportapi.FilterState{"zone": reportapi.List("NORTH"), "state": reportapi.List("A,B")},
		Time:    reportapi.TimeState{FiscalYear: "2025-2026", Period: "December 2025"},
		Toggles: reportapi.ToggleState{Aggregation: reportapi.AggregationQTD, MetricMode: reportapi.MetricModeVolume},
	}
	rec := do(t, h, http.MethodPost, "/api/v1/reports/sales-performance/state", applied)
	require.Equal(t, http.StatusOK, rec.Code)
	var encoded struct {
		Query string `json:"query"`
		URL   string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&encoded))
	assert.True(t, strings.HasPrefix(encoded.URL, "/reports/sales-performance?"))

	rec = do(t, h, http.MethodGet, "/api/v1/reports/sales-performance/state?"+encoded.Query, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var decoded struct {
		Applied reportapi.AppliedFilters `json:"applied"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decoded))
	assert.Equal(t, applied.Time, decoded.Applied.Time)
	assert.Equal(t, applied.Toggles, decoded.Applied.Toggles)
	require.Contains(t, decoded.Applied.Filters, "state")
	assert.Equal(t, []string{"A,B"}, decoded.Applied.Filters["state"].Values())
	assert.True(t, decoded.Applied.Filters["zone"].IsList())
}

func TestStateDecodeFallsBackOnGarbage(t *testing.T) {
	q := url.Values{"fy": {"1999"}, "agg": {"weekly"}}
	rec := do(t, newHandler(t), http.MethodGet, "/api/v1/reports/sales-performance/state?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var decoded struct {
		Applied reportapi.AppliedFilters `json:"applied"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decoded))
	def := config.Default()
	assert.Equal(t, def.Defaults.FiscalYear, decoded.Applied.Time.FiscalYear)
	assert.Equal(t, reportapi.AggregationYTD, decoded.Applied.Toggles.Aggregation)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHandler(t)
	do(t, h, http.MethodPost, "/api/v1/reports/sales-performance/kpis", nil)
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dashcore_facade_requests_total{backend="demo",op="kpis",status="success"} 1`)
}

func TestExportsDisabledWithoutScheduler(t *testing.T) {
	rec := do(t, newHandler(t), http.MethodPost, "/api/v1/exports", map[string]any{"reportId": "sales-performance"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

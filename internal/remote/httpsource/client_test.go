package httpsource_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcore/internal/adapters/reports"
	"dashcore/internal/config"
	"dashcore/internal/demo"
	"dashcore/internal/facade"
	"dashcore/internal/infra/persistence/memory"
	"dashcore/internal/remote/httpsource"
	"dashcore/pkg/reportapi"
)

// upstream serves a demo-backed façade the way a remote dashcore would.
func upstream(t *testing.T) (*httptest.Server, *config.Config) {
	t.Helper()
	cfg := config.Default()
	store := memory.NewStore()
	_, err := demo.Seed(context.Background(), store, config.DemoConfig{Seed: 3, Entities: 10}, cfg.CategoryList(), time.Now(), true)
	require.NoError(t, err)
	srv := httptest.NewServer(reports.NewHandler(facade.New(cfg, demo.NewSource(store, cfg))))
	t.Cleanup(srv.Close)
	return srv, cfg
}

func client(t *testing.T, baseURL string) *httpsource.Client {
	t.Helper()
	c, err := httpsource.New(config.RemoteConfig{BaseURL: baseURL, Timeout: "2s"})
	require.NoError(t, err)
	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://x", "://bad"} {
		_, err := httpsource.New(config.RemoteConfig{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestClientAgainstUpstream(t *testing.T) {
	srv, _ := upstream(t)
	c := client(t, srv.URL)
	ctx := context.Background()
	applied := reportapi.AppliedFilters{
		Filters: reportapi.FilterState{"zone": reportapi.List("NORTH", "EAST")},
	}

	meta, err := c.Meta(ctx, reportapi.MetaRequest{ReportID: "sales-performance"})
	require.NoError(t, err)
	assert.True(t, meta.Features["drilldown"])

	kpis, err := c.Kpis(ctx, reportapi.KpiRequest{ReportID: "sales-performance", AppliedFilters: applied})
	require.NoError(t, err)
	assert.Len(t, kpis.Cards, 4)

	table, err := c.Table(ctx, reportapi.TableRequest{ReportID: "sales-performance", AppliedFilters: applied, Pagination: reportapi.Pagination{Page: 1, PageSize: 100}})
	require.NoError(t, err)
	for _, row := range table.Rows {
		assert.Contains(t, []string{"NORTH", "EAST"}, row.Zone)
	}
	require.NotNil(t, table.Summary)

	d, err := c.Drilldown(ctx, reportapi.DrilldownRequest{ReportID: "sales-performance", EntityID: "ent-0002"})
	require.NoError(t, err)
	assert.Equal(t, "ent-0002", d.Entity.ID)

	_, err = c.Drilldown(ctx, reportapi.DrilldownRequest{ReportID: "sales-performance", EntityID: "ghost"})
	assert.ErrorIs(t, err, reportapi.ErrNotFound)

	csv, err := c.Export(ctx, reportapi.ExportRequest{ReportID: "sales-performance", Format: reportapi.FormatCSV})
	require.NoError(t, err)
	assert.Len(t, strings.Split(csv, "\n"), 11)
}

func TestRemoteShapeMatchesDemo(t *testing.T) {
	srv, _ := upstream(t)
	cfg := config.Default()
	cfg.RemoteReports = []string{"sales-analytics"}

	store := memory.NewStore()
	_, err := demo.Seed(context.Background(), store, config.DemoConfig{Seed: 3, Entities: 10}, cfg.CategoryList(), time.Now(), true)
	require.NoError(t, err)
	f := facade.New(cfg, demo.NewSource(store, cfg), facade.WithRemote(client(t, srv.URL)))

	req := reportapi.TableRequest{Pagination: reportapi.Pagination{Page: 1, PageSize: 5}}
	req.ReportID = "sales-performance"
	local, err := f.FetchTable(context.Background(), req)
	require.NoError(t, err)
	req.ReportID = "sales-analytics"
	remote, err := f.FetchTable(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, local.Total, remote.Total)
	require.Len(t, remote.Rows, len(local.Rows))
	for i := range local.Rows {
		assert.Equal(t, local.Rows[i].EntityID, remote.Rows[i].EntityID)
		assert.InDelta(t, local.Rows[i].Overall.ActualSales, remote.Rows[i].Overall.ActualSales, 1e-6)
	}
}

func TestUpstreamFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusBadGateway)
	}))
	defer srv.Close()
	c := client(t, srv.URL)

	_, err := c.Kpis(context.Background(), reportapi.KpiRequest{ReportID: "sales-analytics"})
	var se *httpsource.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "boom", se.Message)

	cfg := config.Default()
	cfg.RemoteReports = []string{"sales-analytics"}
	f := facade.New(cfg, nil, facade.WithRemote(c))
	resp, err := f.FetchKpis(context.Background(), reportapi.KpiRequest{ReportID: "sales-analytics"})
	require.NoError(t, err)
	assert.Empty(t, resp.Cards)
}

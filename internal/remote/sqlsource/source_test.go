package sqlsource

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcore/internal/config"
	"dashcore/pkg/reportapi"
)

const schema = `CREATE TABLE sales_analytics (
	groupheadname TEXT,
	customer_state TEXT,
	customer_type TEXT,
	industry TEXT,
	itemgroup TEXT,
	period TEXT,
	asondate TEXT,
	saleamt_ason REAL,
	target_ason REAL,
	metalweightsold_ason REAL,
	saleqty_ason REAL,
	profitloss_ason REAL
)`

type fact struct {
	entity, state, kind, industry, group, period string
	amount, target, weight, qty, profit          float64
}

var facts = []fact{
	{"ACME", "Gujarat", "DEALER", "PROJECT", "CABLES : BUILDING WIRES - PVC", "January 2026", 100, 200, 2, 5, 10},
	{"ACME", "Gujarat", "DEALER", "PROJECT", "CABLES : LT", "December 2025", 50, 50, 1, 2, 4},
	{"ACME", "Gujarat", "DEALER", "PROJECT", "CABLES : BUILDING WIRES - PVC", "January 2025", 80, 0, 1, 1, 1},
	{"BETA", "Kerala", "RETAILER", "INSTITUTIONAL", "CABLES : HT & EHV", "January 2026", 30, 60, 4, 1, 3},
	{"GAMMA", "Gujarat", "DEALER", "PROJECT", "CABLES : BUILDING WIRES - PVC", "January 2025", 40, 0, 1, 1, 1},
	{"DELTA", "Punjab", "DEALER", "PROJECT", "OTHER", "January 2026", 999, 0, 9, 9, 9},
}

func newSource(t *testing.T) *Source {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Remote.Driver = DriverSQLite
	cfg.Remote.DSN = filepath.Join(t.TempDir(), "facts.db")
	cfg.Remote.Columns.Target = "target_ason"

	db, err := sql.Open("sqlite", cfg.Remote.DSN)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, schema)
	require.NoError(t, err)
	for _, f := range facts {
		_, err = db.ExecContext(ctx, `INSERT INTO sales_analytics VALUES (?, ?, ?, ?, ?, ?, '2026-01-31', ?, ?, ?, ?, ?)`,
			f.entity, f.state, f.kind, f.industry, f.group, f.period, f.amount, f.target, f.weight, f.qty, f.profit)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func applied(agg reportapi.Aggregation, filters reportapi.FilterState) reportapi.AppliedFilters {
	return reportapi.AppliedFilters{
		Filters: filters,
		Time:    reportapi.TimeState{FiscalYear: "2025-2026", Period: "January 2026"},
		Toggles: reportapi.ToggleState{Aggregation: agg, MetricMode: reportapi.MetricModeValue},
	}
}

func tableIDs(resp reportapi.TableResponse) []string {
	out := make([]string, len(resp.Rows))
	for i, r := range resp.Rows {
		out[i] = r.EntityID
	}
	return out
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.Driver = "oracle"
	_, err := New(nil, cfg)
	require.Error(t, err)
}

func TestDialect(t *testing.T) {
	pg := &builder{d: dialect{driver: DriverPostgres}}
	assert.Equal(t, `"a" LIKE $1`, pg.match(pg.d.ident("a"), "x%"))
	assert.Equal(t, "$2, $3", pg.bindList([]string{"b", "c"}))

	my := &builder{d: dialect{driver: DriverMySQL}}
	assert.Equal(t, "`a` = ?", my.match(my.d.ident("a"), "x"))
	assert.Equal(t, []any{"x"}, my.args)
}

func TestTableYTD(t *testing.T) {
	s := newSource(t)
	resp, err := s.Table(context.Background(), reportapi.TableRequest{
		AppliedFilters: applied(reportapi.AggregationYTD, nil),
		Pagination:     reportapi.Pagination{Page: 1, PageSize: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME", "BETA"}, tableIDs(resp))
	assert.Equal(t, 2, resp.Total)

	acme := resp.Rows[0]
	assert.Equal(t, "Gujarat", acme.State)
	assert.Equal(t, "DEALER", acme.EntityType)
	bw := acme.Categories["buildingWires"]
	assert.InDelta(t, 100, bw.ActualSales, 1e-9)
	assert.InDelta(t, 200, bw.TargetSales, 1e-9)
	assert.InDelta(t, 50, bw.AchievementPct, 1e-9)
	assert.InDelta(t, 25, bw.GrowthPct, 1e-9)
	assert.InDelta(t, 150, acme.Overall.ActualSales, 1e-9)
	assert.InDelta(t, 87.5, acme.Overall.GrowthPct, 1e-9)

	require.NotNil(t, resp.Summary)
	assert.InDelta(t, 180, resp.Summary.Overall.ActualSales, 1e-9)
}

func TestTableMTDUsesSelectedMonthOnly(t *testing.T) {
	s := newSource(t)
	resp, err := s.Table(context.Background(), reportapi.TableRequest{
		AppliedFilters: applied(reportapi.AggregationMTD, nil),
		Pagination:     reportapi.Pagination{Page: 1, PageSize: 10},
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 2)
	assert.InDelta(t, 100, resp.Rows[0].Overall.ActualSales, 1e-9)
	assert.InDelta(t, 0, resp.Rows[0].Categories["ltCables"].ActualSales, 1e-9)
}

func TestTableFilters(t *testing.T) {
	s := newSource(t)
	ctx := context.Background()
	cases := []struct {
		name    string
		filters reportapi.FilterState
		want    []string
	}{
		{"state list", reportapi.FilterState{"state": reportapi.List("Kerala")}, []string{"BETA"}},
		{"scalar prefix", reportapi.FilterState{"entityType": reportapi.Single("DEA%")}, []string{"ACME"}},
		{"all", reportapi.FilterState{"entityType": reportapi.Single("ALL")}, []string{"ACME", "BETA"}},
		{"category", reportapi.FilterState{"category": reportapi.List("htEhv")}, []string{"BETA"}},
		{"unmapped zone ignored", reportapi.FilterState{"zone": reportapi.List("NORTH")}, []string{"ACME", "BETA"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := s.Table(ctx, reportapi.TableRequest{
				AppliedFilters: applied(reportapi.AggregationYTD, tc.filters),
				Pagination:     reportapi.Pagination{Page: 1, PageSize: 10},
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, tableIDs(resp))
			assert.Equal(t, len(tc.want), resp.Total)
		})
	}
}

func TestMetricModeSelectsMeasure(t *testing.T) {
	s := newSource(t)
	a := applied(reportapi.AggregationYTD, nil)
	a.Toggles.MetricMode = reportapi.MetricModeVolume
	resp, err := s.Table(context.Background(), reportapi.TableRequest{AppliedFilters: a, Pagination: reportapi.Pagination{Page: 1, PageSize: 10}})
	require.NoError(t, err)
	assert.Equal(t, []string{"BETA", "ACME"}, tableIDs(resp))
	assert.InDelta(t, 3, resp.Rows[1].Overall.ActualSales, 1e-9)
}

func TestKpis(t *testing.T) {
	s := newSource(t)
	resp, err := s.Kpis(context.Background(), reportapi.KpiRequest{AppliedFilters: applied(reportapi.AggregationYTD, nil)})
	require.NoError(t, err)
	require.Len(t, resp.Cards, 4)
	assert.Equal(t, "buildingWires", resp.Cards[0].Key)
	assert.InDelta(t, 100, resp.Cards[0].ActualSales, 1e-9)
	assert.InDelta(t, 100.0/180*100, resp.Cards[0].ContributionPct, 1e-9)
	assert.Len(t, resp.Layout, 4)
}

func TestMeta(t *testing.T) {
	s := newSource(t)
	meta, err := s.Meta(context.Background(), reportapi.MetaRequest{ReportID: "sales-analytics"})
	require.NoError(t, err)
	assert.Equal(t, "2026-01-31", meta.LastUpdatedAt)
	assert.Equal(t, []string{"Gujarat", "Kerala", "Punjab"}, meta.Allowed["state"])
	assert.Equal(t, []string{"NORTH", "SOUTH", "EAST", "WEST"}, meta.Allowed["zone"])
	assert.Equal(t, []string{"buildingWires", "ltCables", "flexibles", "htEhv"}, meta.Allowed["category"])

	_, err = s.DB().Exec(`INSERT INTO sales_analytics (groupheadname, customer_state, period) VALUES ('ZED', 'Assam', 'May 2025')`)
	require.NoError(t, err)
	cached, err := s.Meta(context.Background(), reportapi.MetaRequest{ReportID: "sales-analytics"})
	require.NoError(t, err)
	assert.Equal(t, meta.Allowed["state"], cached.Allowed["state"])
}

func TestDrilldown(t *testing.T) {
	s := newSource(t)
	ctx := context.Background()
	d, err := s.Drilldown(ctx, reportapi.DrilldownRequest{EntityID: "ACME", AppliedFilters: applied(reportapi.AggregationYTD, nil)})
	require.NoError(t, err)
	assert.Equal(t, "ACME", d.Entity.Name)
	assert.InDelta(t, 150, d.Summary.ActualSales, 1e-9)
	require.Len(t, d.Trend, 10)
	assert.Equal(t, reportapi.TrendPoint{Period: "April 2025", Value: 0}, d.Trend[0])
	assert.InDelta(t, 50, d.Trend[8].Value, 1e-9)
	assert.InDelta(t, 100, d.Trend[9].Value, 1e-9)
	require.NotEmpty(t, d.Breakdown.ByCategory)
	assert.Equal(t, "buildingWires", d.Breakdown.ByCategory[0].Key)
	assert.InDelta(t, 66.67, d.Breakdown.ByCategory[0].Percentage, 1e-9)

	quiet, err := s.Drilldown(ctx, reportapi.DrilldownRequest{EntityID: "GAMMA", AppliedFilters: applied(reportapi.AggregationYTD, nil)})
	require.NoError(t, err)
	assert.Zero(t, quiet.Summary.ActualSales)

	_, err = s.Drilldown(ctx, reportapi.DrilldownRequest{EntityID: "NOPE", AppliedFilters: applied(reportapi.AggregationYTD, nil)})
	assert.ErrorIs(t, err, reportapi.ErrNotFound)
}

func TestExport(t *testing.T) {
	s := newSource(t)
	out, err := s.Export(context.Background(), reportapi.ExportRequest{AppliedFilters: applied(reportapi.AggregationYTD, nil)})
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], `"ACME","ACME",""`))
}

func TestBadPeriodIsAnError(t *testing.T) {
	s := newSource(t)
	a := applied(reportapi.AggregationYTD, nil)
	a.Time.Period = "Smarch 2026"
	_, err := s.Kpis(context.Background(), reportapi.KpiRequest{AppliedFilters: a})
	require.Error(t, err)
}

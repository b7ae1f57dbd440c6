package query

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcore/pkg/reportapi"
	"dashcore/testutil"
)

var testCategories = []reportapi.Category{
	{Key: "wires", Label: "Wires"},
	{Key: "cables", Label: "Cables"},
}

func row(id, zone, state string, wires, cables float64) reportapi.Row {
	return reportapi.Row{
		EntityID:   id,
		EntityName: "Entity " + strings.ToUpper(id),
		EntityCode: "C-" + id,
		Zone:       zone,
		State:      state,
		Categories: map[string]reportapi.Metrics{
			"wires":  {ActualSales: wires, TargetSales: wires * 2, GrowthPct: 10},
			"cables": {ActualSales: cables, TargetSales: cables, GrowthPct: 20},
		},
		Overall: reportapi.Metrics{ActualSales: wires + cables, TargetSales: wires*2 + cables},
	}
}

func fixture() []reportapi.Row {
	return []reportapi.Row{
		row("a", "NORTH", "PB", 100, 0),
		row("b", "SOUTH", "KA", 40, 60),
		row("c", "NORTH", "HR", 0, 30),
		row("d", "EAST", "WB", 10, 10),
		row("e", "NORTH", "PB", 70, 5),
	}
}

func ids(rows []reportapi.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.EntityID
	}
	return out
}

func TestFilterRows(t *testing.T) {
	rows := fixture()

	got := FilterRows(rows, reportapi.FilterState{"zone": reportapi.List("NORTH")})
	for _, r := range got {
		assert.Equal(t, "NORTH", r.Zone)
	}
	assert.Equal(t, []string{"a", "c", "e"}, ids(got))

	assert.Equal(t, ids(rows), ids(FilterRows(rows, reportapi.FilterState{})))

	got = FilterRows(rows, reportapi.FilterState{
		"zone":  reportapi.Single("NORTH"),
		"state": reportapi.List("PB", "HR"),
	})
	assert.Equal(t, []string{"a", "c", "e"}, ids(got))

	got = FilterRows(rows, reportapi.FilterState{"zone": reportapi.Single(AllValue)})
	assert.Len(t, got, len(rows))

	got = FilterRows(rows, reportapi.FilterState{"region": reportapi.Single("R1")})
	assert.Empty(t, got)
}

func TestFilterRowsCategoryPositivity(t *testing.T) {
	rows := fixture()
	got := FilterRows(rows, reportapi.FilterState{CategoryKey: reportapi.Single("cables")})
	assert.Equal(t, []string{"b", "c", "d", "e"}, ids(got))

	got = FilterRows(rows, reportapi.FilterState{CategoryKey: reportapi.List("cables", "wires")})
	assert.Len(t, got, 5)
}

func TestSearchRows(t *testing.T) {
	rows := fixture()
	assert.Equal(t, []string{"b"}, ids(SearchRows(rows, "  entity b ")))
	assert.Equal(t, []string{"d"}, ids(SearchRows(rows, "c-D")))
	assert.Len(t, SearchRows(rows, "   "), len(rows))
}

func TestSortRows(t *testing.T) {
	rows := fixture()
	asc := SortRows(rows, "overall_actualSales", reportapi.Ascending)
	assert.Equal(t, []string{"d", "c", "e", "a", "b"}, ids(asc))

	desc := SortRows(rows, "overall_actualSales", reportapi.Descending)
	assert.Equal(t, []string{"a", "b", "e", "c", "d"}, ids(desc))

	byZone := SortRows(rows, "zone", reportapi.Ascending)
	assert.Equal(t, []string{"d", "a", "c", "e", "b"}, ids(byZone), "ties keep input order")

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(rows), "input untouched")
}

func TestSortRowsMissingValues(t *testing.T) {
	rows := []reportapi.Row{
		{EntityID: "x", Attributes: map[string]string{"tier": "b"}},
		{EntityID: "y"},
		{EntityID: "z", Attributes: map[string]string{"tier": "a"}},
	}
	assert.Equal(t, []string{"z", "x", "y"}, ids(SortRows(rows, "tier", reportapi.Ascending)))
	assert.Equal(t, []string{"y", "x", "z"}, ids(SortRows(rows, "tier", reportapi.Descending)))
}

func TestSortRowsCollation(t *testing.T) {
	rows := []reportapi.Row{
		{EntityID: "1", EntityName: "beta"},
		{EntityID: "2", EntityName: "Alpha"},
		{EntityID: "3", EntityName: "alpha"},
	}
	got := SortRows(rows, reportapi.FieldEntityName, reportapi.Ascending)
	assert.Equal(t, "1", got[2].EntityID)
}

func TestPaginateRowsCoverage(t *testing.T) {
	rows := fixture()
	for size := 1; size <= 6; size++ {
		var joined []reportapi.Row
		for page := 1; ; page++ {
			chunk := PaginateRows(rows, page, size)
			if len(chunk) == 0 {
				break
			}
			joined = append(joined, chunk...)
		}
		assert.Equal(t, ids(rows), ids(joined), "size %d", size)
	}
	assert.Empty(t, PaginateRows(rows, 99, 2))
	assert.NotNil(t, PaginateRows(nil, 1, 10))
}

func TestAggregationSumInvariant(t *testing.T) {
	for _, agg := range []reportapi.Aggregation{reportapi.AggregationYTD, reportapi.AggregationQTD, reportapi.AggregationMTD} {
		for _, r := range ApplyAggregationScale(fixture(), agg, testCategories) {
			var sum float64
			for _, c := range testCategories {
				sum += r.Categories[c.Key].ActualSales
			}
			assert.InDelta(t, sum, r.Overall.ActualSales, 1e-9, "%s %s", agg, r.EntityID)
		}
	}
}

func TestApplyAggregationScaleMTD(t *testing.T) {
	in := []reportapi.Row{{EntityID: "a", Categories: map[string]reportapi.Metrics{"wires": {ActualSales: 1200}}}}
	out := ApplyAggregationScale(in, reportapi.AggregationMTD, testCategories)
	assert.InDelta(t, 100, out[0].Categories["wires"].ActualSales, 1e-9)
	assert.Equal(t, 1200.0, in[0].Categories["wires"].ActualSales, "input untouched")
	assert.Contains(t, out[0].Categories, "cables")
}

func TestFetchTableScenario(t *testing.T) {
	rows := []reportapi.Row{
		{EntityID: "n", Zone: "NORTH", Overall: reportapi.Metrics{ActualSales: 100}},
		{EntityID: "s", Zone: "SOUTH", Overall: reportapi.Metrics{ActualSales: 50}},
	}
	resp := FetchTable(rows, reportapi.TableRequest{
		AppliedFilters: reportapi.AppliedFilters{Filters: reportapi.FilterState{"zone": reportapi.List("NORTH")}},
		Pagination:     reportapi.Pagination{Page: 1, PageSize: 50},
	}, testCategories)
	assert.Len(t, resp.Rows, 1)
	assert.Equal(t, 1, resp.Total)
}

func TestFetchTableTotalIgnoresPaging(t *testing.T) {
	req := reportapi.TableRequest{
		AppliedFilters: reportapi.AppliedFilters{
			Filters: reportapi.FilterState{"zone": reportapi.Single("NORTH")},
			Toggles: reportapi.ToggleState{Aggregation: reportapi.AggregationYTD},
		},
		Pagination: reportapi.Pagination{Page: 2, PageSize: 2},
	}
	resp := FetchTable(fixture(), req, testCategories)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "c", resp.Rows[0].EntityID, "default sort is overall actual desc")
	require.NotNil(t, resp.Summary)
	assert.Equal(t, SummaryID, resp.Summary.EntityID)
	assert.InDelta(t, 205, resp.Summary.Overall.ActualSales, 1e-9)

	req.Search = "entity e"
	req.Pagination = reportapi.Pagination{Page: 5, PageSize: 1}
	resp = FetchTable(fixture(), req, testCategories)
	assert.Equal(t, 1, resp.Total)
	assert.Empty(t, resp.Rows)
}

func TestAggregateKpis(t *testing.T) {
	records := AggregateKpis(fixture(), testCategories)
	require.Len(t, records, 2)

	wires := records[0]
	assert.Equal(t, "wires", wires.Key)
	assert.InDelta(t, 220, wires.ActualSales, 1e-9)
	assert.InDelta(t, 440, wires.TargetSales, 1e-9)
	assert.InDelta(t, 10, wires.GrowthPct, 1e-9)
	assert.InDelta(t, 50, wires.AchievementPct, 1e-9)

	cables := records[1]
	assert.InDelta(t, 20, cables.GrowthPct, 1e-9)
	assert.InDelta(t, 100, wires.ContributionPct+cables.ContributionPct, 1e-9)
	assert.InDelta(t, 220.0/325*100, wires.ContributionPct, 1e-9)
}

func TestAggregateKpisZeroAndNaN(t *testing.T) {
	rows := []reportapi.Row{{Categories: map[string]reportapi.Metrics{
		"wires": {ActualSales: math.NaN(), TargetSales: math.NaN(), GrowthPct: 5},
	}}}
	records := AggregateKpis(rows, testCategories)
	for _, r := range records {
		assert.Zero(t, r.ActualSales)
		assert.Zero(t, r.GrowthPct)
		assert.Zero(t, r.ContributionPct)
		assert.Zero(t, r.AchievementPct)
	}
	assert.Equal(t, records, AggregateKpis(rows, testCategories))
}

func TestBuildCards(t *testing.T) {
	records := AggregateKpis(fixture(), testCategories)
	cards := BuildCards(records, []CardDef{
		{ID: "k1", Category: "wires", Primary: "actualSales", Share: "contributionPct", Trend: "bogus"},
		{ID: "k2", Category: "unknown", Primary: "actualSales"},
	})
	require.Len(t, cards, 1)
	assert.Equal(t, "Wires", cards[0].Label)
	require.NotNil(t, cards[0].Primary)
	assert.InDelta(t, 220, *cards[0].Primary, 1e-9)
	assert.NotNil(t, cards[0].Share)
	assert.Nil(t, cards[0].Secondary)
	assert.Nil(t, cards[0].Trend)
}

func TestAggregateKpisMargin(t *testing.T) {
	rows := []reportapi.Row{
		{Categories: map[string]reportapi.Metrics{
			"wires":  {ActualSales: 150, ProfitLoss: 30},
			"cables": {ProfitLoss: -12},
		}},
		{Categories: map[string]reportapi.Metrics{
			"wires": {ActualSales: 50, ProfitLoss: -10},
		}},
	}
	records := AggregateKpis(rows, testCategories)
	require.Len(t, records, 2)
	assert.InDelta(t, 10, records[0].MarginPct, 1e-9)
	assert.InDelta(t, -12, records[1].ProfitLoss, 1e-9)
	assert.Zero(t, records[1].MarginPct)

	cards := BuildCards(records, []CardDef{{ID: "m", Category: "wires", Primary: "marginPct"}})
	require.Len(t, cards, 1)
	require.NotNil(t, cards[0].Primary)
	assert.InDelta(t, 10, *cards[0].Primary, 1e-9)
}

func TestExportCSV(t *testing.T) {
	rows := []reportapi.Row{{
		EntityID:   "a",
		EntityName: `Big "A" Co`,
		Zone:       "NORTH",
		Categories: map[string]reportapi.Metrics{"wires": {ActualSales: 12.5}},
	}}
	out := ExportCSV(rows, testCategories[:1])
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `"entityId","entityName","entityCode"`))
	assert.True(t, strings.HasPrefix(lines[1], `"a","Big ""A"" Co","","NORTH"`))
	assert.Contains(t, lines[1], ",12.5,0,0,0,")
}

func TestNoIOImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.IOImportForbidden, "query pipeline must stay pure")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.DriverImportForbidden, "query pipeline must not pull in storage drivers")
}

package demo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"

	"dashcore/internal/config"
	"dashcore/internal/fiscal"
	"dashcore/internal/query"
	"dashcore/pkg/reportapi"
)

// Source answers report requests from a row store through the query pipeline.
type Source struct {
	store Store
	cfg   *config.Config
}

func NewSource(store Store, cfg *config.Config) *Source {
	return &Source{store: store, cfg: cfg}
}

func (s *Source) rows(ctx context.Context) ([]reportapi.Row, error) {
	rows, err := s.store.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load demo rows: %w", err)
	}
	return rows, nil
}

// prepared runs filter and scale with filter keys mapped to row fields.
func (s *Source) prepared(ctx context.Context, applied reportapi.AppliedFilters) ([]reportapi.Row, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	applied.Filters = s.rowFilters(applied.Filters)
	return query.Prepare(rows, applied, s.cfg.CategoryList()), nil
}

func (s *Source) rowFilters(filters reportapi.FilterState) reportapi.FilterState {
	out := make(reportapi.FilterState, len(filters))
	for key, v := range filters {
		if f, ok := s.cfg.Filter(key); ok && key != query.CategoryKey {
			out[f.RowField()] = v
			continue
		}
		out[key] = v
	}
	return out
}

func (s *Source) Meta(ctx context.Context, req reportapi.MetaRequest) (reportapi.Meta, error) {
	report, _ := s.cfg.Report(req.ReportID)
	meta := reportapi.Meta{Features: report.FeatureFlags(), Allowed: map[string][]string{}}

	updated, err := s.store.UpdatedAt(ctx)
	if err != nil {
		return reportapi.Meta{}, fmt.Errorf("demo updated-at: %w", err)
	}
	if !updated.IsZero() {
		meta.LastUpdatedAt = updated.UTC().Format(time.RFC3339)
	}

	var rows []reportapi.Row
	for _, f := range s.cfg.Filters {
		if values, ok := s.cfg.StaticOptions(f); ok {
			meta.Allowed[f.Key] = values
			continue
		}
		if rows == nil {
			if rows, err = s.rows(ctx); err != nil {
				return reportapi.Meta{}, err
			}
		}
		meta.Allowed[f.Key] = distinct(rows, f.RowField())
	}
	return meta, nil
}

func distinct(rows []reportapi.Row, field string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, r := range rows {
		v, ok := r.Attribute(field)
		if !ok || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (s *Source) Kpis(ctx context.Context, req reportapi.KpiRequest) (reportapi.KpiResponse, error) {
	rows, err := s.prepared(ctx, req.AppliedFilters)
	if err != nil {
		return reportapi.KpiResponse{}, err
	}
	records := query.AggregateKpis(rows, s.cfg.CategoryList())
	return reportapi.KpiResponse{Cards: records, Layout: query.BuildCards(records, s.cfg.KpiCards)}, nil
}

func (s *Source) Table(ctx context.Context, req reportapi.TableRequest) (reportapi.TableResponse, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return reportapi.TableResponse{}, err
	}
	req.Filters = s.rowFilters(req.Filters)
	return query.FetchTable(rows, req, s.cfg.CategoryList()), nil
}

func (s *Source) Drilldown(ctx context.Context, req reportapi.DrilldownRequest) (reportapi.Drilldown, error) {
	all, err := s.rows(ctx)
	if err != nil {
		return reportapi.Drilldown{}, err
	}
	byID := func(r reportapi.Row) bool { return r.EntityID == req.EntityID }
	idx := slices.IndexFunc(all, byID)
	if idx < 0 {
		return reportapi.Drilldown{}, fmt.Errorf("entity %q: %w", req.EntityID, reportapi.ErrNotFound)
	}
	rows, err := s.prepared(ctx, req.AppliedFilters)
	if err != nil {
		return reportapi.Drilldown{}, err
	}
	// a known entity outside the active filters drills down to zeros
	var row reportapi.Row
	if i := slices.IndexFunc(rows, byID); i >= 0 {
		row = rows[i]
	} else {
		known := all[idx]
		row = reportapi.Row{EntityID: known.EntityID, EntityName: known.EntityName, EntityCode: known.EntityCode}.
			Normalize(s.cfg.CategoryList())
	}
	return reportapi.Drilldown{
		Entity:    reportapi.EntityRef{ID: row.EntityID, Name: row.EntityName, Code: row.EntityCode},
		Summary:   row.Overall,
		Trend:     trend(row, req.Time, req.Toggles.Aggregation),
		Breakdown: reportapi.Breakdown{ByCategory: query.Breakdown(row, s.cfg.CategoryList())},
	}, nil
}

// trend spreads the row's overall actual sales over the months the
// aggregation covers, with stable per-entity weights.
func trend(row reportapi.Row, t reportapi.TimeState, agg reportapi.Aggregation) []reportapi.TrendPoint {
	p, err := fiscal.ParsePeriod(t.Period)
	if err != nil {
		return []reportapi.TrendPoint{{Period: t.Period, Value: row.Overall.ActualSales}}
	}
	periods := fiscal.PeriodsFor(p, agg)
	weights := make([]float64, len(periods))
	var total float64
	for i, period := range periods {
		h := xxhash.Sum64String(row.EntityID + "|" + period.String())
		weights[i] = 0.6 + float64(h%1000)/1000*0.8
		total += weights[i]
	}
	out := make([]reportapi.TrendPoint, len(periods))
	for i, period := range periods {
		out[i] = reportapi.TrendPoint{Period: period.String(), Value: round2(row.Overall.ActualSales * weights[i] / total)}
	}
	return out
}

func (s *Source) Export(ctx context.Context, req reportapi.ExportRequest) (string, error) {
	rows, err := s.prepared(ctx, req.AppliedFilters)
	if err != nil {
		return "", err
	}
	return query.Render(rows, s.cfg.CategoryList(), req.Format)
}

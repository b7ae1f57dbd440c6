// Package sqlsource answers report requests from a sales fact table in a SQL
// database. Filters, the fiscal period window and per-category sums are pushed
// into SQL; search, sort and pagination reuse the in-memory pipeline over the
// per-entity result.
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"dashcore/internal/config"
	"dashcore/internal/fiscal"
	"dashcore/internal/logging"
	"dashcore/internal/query"
	"dashcore/pkg/reportapi"
)

const (
	distinctCacheSize = 64
	distinctCacheTTL  = 5 * time.Minute
)

// Source reads report data from cfg.Remote.Table.
type Source struct {
	db       *sql.DB
	cfg      *config.Config
	cols     config.ColumnMap
	table    string
	d        dialect
	timeout  time.Duration
	logger   *zap.Logger
	distinct *expirable.LRU[string, []string]
}

type Option func(*Source)

func WithLogger(l *zap.Logger) Option {
	return func(s *Source) { s.logger = logging.OrNop(l) }
}

// WithDistinctTTL sets how long distinct filter values are cached. Zero
// disables caching.
func WithDistinctTTL(ttl time.Duration) Option {
	return func(s *Source) {
		if ttl <= 0 {
			s.distinct = nil
			return
		}
		s.distinct = expirable.NewLRU[string, []string](distinctCacheSize, nil, ttl)
	}
}

// Open connects using cfg.Remote.Driver and cfg.Remote.DSN and verifies the
// connection.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Source, error) {
	if _, err := newDialect(cfg.Remote.Driver); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Remote.Driver, cfg.Remote.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Remote.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Remote.Driver, err)
	}
	s, err := New(db, cfg, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle.
func New(db *sql.DB, cfg *config.Config, opts ...Option) (*Source, error) {
	d, err := newDialect(cfg.Remote.Driver)
	if err != nil {
		return nil, err
	}
	s := &Source{
		db:       db,
		cfg:      cfg,
		cols:     cfg.Remote.Columns,
		table:    cfg.Remote.Table,
		d:        d,
		timeout:  config.Duration(cfg.Remote.Timeout, 20*time.Second),
		logger:   zap.NewNop(),
		distinct: expirable.NewLRU[string, []string](distinctCacheSize, nil, distinctCacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) DB() *sql.DB { return s.db }

func (s *Source) Close() error { return s.db.Close() }

func (s *Source) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// measure picks the amount column for the metric mode.
func (s *Source) measure(mode reportapi.MetricMode) string {
	switch {
	case mode == reportapi.MetricModeVolume && s.cols.Weight != "":
		return s.cols.Weight
	case mode == reportapi.MetricModeUnits && s.cols.Quantity != "":
		return s.cols.Quantity
	}
	return s.cols.Amount
}

// attrColumn maps a row attribute to its table column, or "".
func (s *Source) attrColumn(field string) string {
	switch field {
	case reportapi.FieldEntityCode:
		return s.cols.EntityCode
	case reportapi.FieldZone:
		return s.cols.Zone
	case reportapi.FieldState:
		return s.cols.State
	case reportapi.FieldEntityType:
		return s.cols.EntityType
	case reportapi.FieldChannelType:
		return s.cols.ChannelType
	}
	return ""
}

func (s *Source) filterColumn(key string) string {
	f, ok := s.cfg.Filter(key)
	if !ok {
		return ""
	}
	if f.Column != "" {
		return f.Column
	}
	return s.attrColumn(f.RowField())
}

// window returns the selected periods and the same months a year earlier.
func window(t reportapi.TimeState, agg reportapi.Aggregation) (cur, prior []string, err error) {
	p, err := fiscal.ParsePeriod(t.Period)
	if err != nil {
		return nil, nil, err
	}
	periods := fiscal.PeriodsFor(p, agg)
	return fiscal.Strings(periods), fiscal.Strings(fiscal.PriorYear(periods)), nil
}

// where renders the filter conditions. The category filter is applied after
// aggregation; filters with no column mapping are skipped.
func (s *Source) where(b *builder, filters reportapi.FilterState) []string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var conds []string
	for _, key := range keys {
		v := filters[key]
		if key == query.CategoryKey || !v.IsSet() {
			continue
		}
		col := s.filterColumn(key)
		if col == "" {
			s.logger.Debug("filter has no remote column", zap.String("filter", key))
			continue
		}
		qc := s.d.ident(col)
		if !v.IsList() {
			if v.Scalar() == query.AllValue {
				continue
			}
			conds = append(conds, b.match(qc, v.Scalar()))
			continue
		}
		conds = append(conds, qc+" IN ("+b.bindList(v.Values())+")")
	}
	return conds
}

type attr struct {
	field, col string
}

func (s *Source) attrs() []attr {
	var out []attr
	for _, field := range []string{reportapi.FieldEntityCode, reportapi.FieldZone, reportapi.FieldState, reportapi.FieldEntityType, reportapi.FieldChannelType} {
		if col := s.attrColumn(field); col != "" {
			out = append(out, attr{field: field, col: col})
		}
	}
	return out
}

// entityRows aggregates the fact table into one row per entity for the
// current window, with prior-year sums for growth. Only entities with
// positive current sales are returned.
func (s *Source) entityRows(ctx context.Context, applied reportapi.AppliedFilters, entity string) ([]reportapi.Row, error) {
	cur, prior, err := window(applied.Time, applied.Toggles.Aggregation)
	if err != nil {
		return nil, err
	}
	cats := s.cfg.Categories
	attrs := s.attrs()
	id := s.d.ident
	b := &builder{d: s.d}

	// inner select: one line per fact with its category index and window flag
	inner := []string{id(s.cols.Entity) + " AS e"}
	for i, a := range attrs {
		inner = append(inner, fmt.Sprintf("%s AS a%d", id(a.col), i))
	}
	catCase := "CASE"
	for i, c := range cats {
		catCase += fmt.Sprintf(" WHEN %s THEN %d", b.match(id(s.cols.Category), c.Match), i)
	}
	inner = append(inner,
		catCase+" ELSE -1 END AS ci",
		"CASE WHEN "+id(s.cols.Period)+" IN ("+b.bindList(cur)+") THEN 1 ELSE 0 END AS cur",
		"COALESCE("+id(s.measure(applied.Toggles.MetricMode))+", 0) AS m",
		s.optionalColumn(s.cols.Target)+" AS tg",
		s.optionalColumn(s.cols.Profit)+" AS pl",
		s.optionalColumn(s.cols.Quantity)+" AS qty",
	)
	conds := []string{
		id(s.cols.Entity) + " IS NOT NULL",
		id(s.cols.Period) + " IN (" + b.bindList(append(slices.Clone(cur), prior...)) + ")",
	}
	conds = append(conds, s.where(b, applied.Filters)...)
	if entity != "" {
		conds = append(conds, id(s.cols.Entity)+" = "+b.bind(entity))
	}

	outer := []string{"e"}
	for i := range attrs {
		outer = append(outer, fmt.Sprintf("MAX(a%d)", i))
	}
	for i := range cats {
		outer = append(outer,
			fmt.Sprintf("SUM(CASE WHEN ci = %d AND cur = 1 THEN m ELSE 0 END)", i),
			fmt.Sprintf("SUM(CASE WHEN ci = %d AND cur = 0 THEN m ELSE 0 END)", i),
			fmt.Sprintf("SUM(CASE WHEN ci = %d AND cur = 1 THEN tg ELSE 0 END)", i),
			fmt.Sprintf("SUM(CASE WHEN ci = %d AND cur = 1 THEN pl ELSE 0 END)", i),
			fmt.Sprintf("SUM(CASE WHEN ci = %d AND cur = 1 THEN qty ELSE 0 END)", i),
		)
	}
	stmt := "SELECT " + strings.Join(outer, ", ") +
		" FROM (SELECT " + strings.Join(inner, ", ") +
		" FROM " + id(s.table) +
		" WHERE " + strings.Join(conds, " AND ") + ") f" +
		" WHERE ci >= 0" +
		" GROUP BY e" +
		" HAVING SUM(CASE WHEN cur = 1 THEN m ELSE 0 END) > 0" +
		" ORDER BY e"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rs, err := s.db.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rs.Close()

	var rows []reportapi.Row
	for rs.Next() {
		var name string
		attrVals := make([]sql.NullString, len(attrs))
		sums := make([]float64, len(cats)*5)
		dest := make([]any, 0, 1+len(attrVals)+len(sums))
		dest = append(dest, &name)
		for i := range attrVals {
			dest = append(dest, &attrVals[i])
		}
		for i := range sums {
			dest = append(dest, &sums[i])
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		rows = append(rows, s.buildRow(name, attrs, attrVals, sums))
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table, err)
	}
	if v, ok := applied.Filters[query.CategoryKey]; ok {
		rows = query.FilterRows(rows, reportapi.FilterState{query.CategoryKey: v})
	}
	return rows, nil
}

func (s *Source) optionalColumn(col string) string {
	if col == "" {
		return "0"
	}
	return "COALESCE(" + s.d.ident(col) + ", 0)"
}

func (s *Source) buildRow(name string, attrs []attr, vals []sql.NullString, sums []float64) reportapi.Row {
	row := reportapi.Row{
		EntityID:   name,
		EntityName: name,
		Categories: make(map[string]reportapi.Metrics, len(s.cfg.Categories)),
	}
	for i, a := range attrs {
		if !vals[i].Valid {
			continue
		}
		row.SetAttribute(a.field, vals[i].String)
	}
	var overall reportapi.Metrics
	var overallPrior float64
	for i, c := range s.cfg.Categories {
		actual, prev, target, pl, qty := sums[i*5], sums[i*5+1], sums[i*5+2], sums[i*5+3], sums[i*5+4]
		m := reportapi.Metrics{
			ActualSales:    actual,
			TargetSales:    target,
			GrowthPct:      growth(actual, prev),
			AchievementPct: ratio(actual, target),
			ProfitLoss:     pl,
			Quantity:       qty,
		}
		row.Categories[c.Key] = m
		overall = overall.Add(m)
		overallPrior += prev
	}
	overall.GrowthPct = growth(overall.ActualSales, overallPrior)
	overall.AchievementPct = ratio(overall.ActualSales, overall.TargetSales)
	row.Overall = overall
	return row
}

func growth(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den * 100
}

func (s *Source) Meta(ctx context.Context, req reportapi.MetaRequest) (reportapi.Meta, error) {
	report, _ := s.cfg.Report(req.ReportID)
	meta := reportapi.Meta{Features: report.FeatureFlags(), Allowed: map[string][]string{}}

	last, err := s.lastUpdated(ctx)
	if err != nil {
		return reportapi.Meta{}, err
	}
	meta.LastUpdatedAt = last

	for _, f := range s.cfg.Filters {
		if values, ok := s.cfg.StaticOptions(f); ok {
			meta.Allowed[f.Key] = values
			continue
		}
		col := s.filterColumn(f.Key)
		if col == "" {
			continue
		}
		values, err := s.distinctValues(ctx, col)
		if err != nil {
			return reportapi.Meta{}, err
		}
		meta.Allowed[f.Key] = values
	}
	return meta, nil
}

func (s *Source) lastUpdated(ctx context.Context) (string, error) {
	if s.cols.AsOf == "" {
		return "", nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var v any
	err := s.db.QueryRowContext(ctx, "SELECT MAX("+s.d.ident(s.cols.AsOf)+") FROM "+s.d.ident(s.table)).Scan(&v)
	if err != nil {
		return "", fmt.Errorf("last updated: %w", err)
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case time.Time:
		return t.Format(time.DateOnly), nil
	case []byte:
		return string(t), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func (s *Source) distinctValues(ctx context.Context, col string) ([]string, error) {
	if s.distinct != nil {
		if v, ok := s.distinct.Get(col); ok {
			return slices.Clone(v), nil
		}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	qc := s.d.ident(col)
	rs, err := s.db.QueryContext(ctx, "SELECT DISTINCT "+qc+" FROM "+s.d.ident(s.table)+" WHERE "+qc+" IS NOT NULL ORDER BY "+qc)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", col, err)
	}
	defer rs.Close()
	out := []string{}
	for rs.Next() {
		var v string
		if err := rs.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct %s: %w", col, err)
		}
		if v != "" {
			out = append(out, v)
		}
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("distinct %s: %w", col, err)
	}
	if s.distinct != nil {
		s.distinct.Add(col, slices.Clone(out))
	}
	return out, nil
}

func (s *Source) Kpis(ctx context.Context, req reportapi.KpiRequest) (reportapi.KpiResponse, error) {
	rows, err := s.entityRows(ctx, req.AppliedFilters, "")
	if err != nil {
		return reportapi.KpiResponse{}, err
	}
	records := query.AggregateKpis(rows, s.cfg.CategoryList())
	return reportapi.KpiResponse{Cards: records, Layout: query.BuildCards(records, s.cfg.KpiCards)}, nil
}

func (s *Source) Table(ctx context.Context, req reportapi.TableRequest) (reportapi.TableResponse, error) {
	rows, err := s.entityRows(ctx, req.AppliedFilters, "")
	if err != nil {
		return reportapi.TableResponse{}, err
	}
	return query.PageTable(rows, req, s.cfg.CategoryList()), nil
}

// Drilldown reports reportapi.ErrNotFound when the entity has no facts at all.
func (s *Source) Drilldown(ctx context.Context, req reportapi.DrilldownRequest) (reportapi.Drilldown, error) {
	exists, err := s.entityExists(ctx, req.EntityID)
	if err != nil {
		return reportapi.Drilldown{}, err
	}
	if !exists {
		return reportapi.Drilldown{}, fmt.Errorf("entity %q: %w", req.EntityID, reportapi.ErrNotFound)
	}
	rows, err := s.entityRows(ctx, req.AppliedFilters, req.EntityID)
	if err != nil {
		return reportapi.Drilldown{}, err
	}
	row := reportapi.Row{EntityID: req.EntityID, EntityName: req.EntityID}
	if len(rows) > 0 {
		row = rows[0]
	}
	row = row.Normalize(s.cfg.CategoryList())
	trend, err := s.trend(ctx, req)
	if err != nil {
		return reportapi.Drilldown{}, err
	}
	return reportapi.Drilldown{
		Entity:    reportapi.EntityRef{ID: row.EntityID, Name: row.EntityName, Code: row.EntityCode},
		Summary:   row.Overall,
		Trend:     trend,
		Breakdown: reportapi.Breakdown{ByCategory: query.Breakdown(row, s.cfg.CategoryList())},
	}, nil
}

func (s *Source) entityExists(ctx context.Context, entity string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	b := &builder{d: s.d}
	stmt := "SELECT COUNT(*) FROM " + s.d.ident(s.table) + " WHERE " + s.d.ident(s.cols.Entity) + " = " + b.bind(entity)
	var n int
	if err := s.db.QueryRowContext(ctx, stmt, b.args...).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup entity: %w", err)
	}
	return n > 0, nil
}

// trend sums the measure per month of the current window, in calendar order,
// with zero for months that have no facts.
func (s *Source) trend(ctx context.Context, req reportapi.DrilldownRequest) ([]reportapi.TrendPoint, error) {
	cur, _, err := window(req.Time, req.Toggles.Aggregation)
	if err != nil {
		return nil, err
	}
	id := s.d.ident
	b := &builder{d: s.d}
	conds := []string{
		id(s.cols.Entity) + " = " + b.bind(req.EntityID),
		id(s.cols.Period) + " IN (" + b.bindList(cur) + ")",
	}
	conds = append(conds, s.where(b, req.Filters)...)
	stmt := "SELECT " + id(s.cols.Period) + ", COALESCE(SUM(" + id(s.measure(req.Toggles.MetricMode)) + "), 0)" +
		" FROM " + id(s.table) +
		" WHERE " + strings.Join(conds, " AND ") +
		" GROUP BY " + id(s.cols.Period)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rs, err := s.db.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	defer rs.Close()
	byPeriod := map[string]float64{}
	for rs.Next() {
		var p string
		var v float64
		if err := rs.Scan(&p, &v); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		byPeriod[p] = v
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	out := make([]reportapi.TrendPoint, len(cur))
	for i, p := range cur {
		out[i] = reportapi.TrendPoint{Period: p, Value: byPeriod[p]}
	}
	return out, nil
}

func (s *Source) Export(ctx context.Context, req reportapi.ExportRequest) (string, error) {
	rows, err := s.entityRows(ctx, req.AppliedFilters, "")
	if err != nil {
		return "", err
	}
	return query.Render(rows, s.cfg.CategoryList(), req.Format)
}

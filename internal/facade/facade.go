package facade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dashcore/internal/config"
	"dashcore/internal/logging"
	"dashcore/internal/query"
	"dashcore/pkg/reportapi"
)

const (
	opMeta      = "meta"
	opKpis      = "kpis"
	opTable     = "table"
	opDrilldown = "drilldown"
	opExport    = "export"
)

var errNoRemote = errors.New("no remote source configured")

// Facade is the single entry point for report data. Reports listed in the
// configured remote set go to the remote source; all others to the demo source.
type Facade struct {
	cfg     *config.Config
	demo    Source
	remote  Source
	logger  *zap.Logger
	metrics *Metrics
}

type Option func(*Facade)

func WithLogger(l *zap.Logger) Option {
	return func(f *Facade) { f.logger = logging.OrNop(l) }
}

func WithMetrics(m *Metrics) Option {
	return func(f *Facade) { f.metrics = m }
}

// WithRemote sets the backend for reports in cfg.RemoteReports.
func WithRemote(s Source) Option {
	return func(f *Facade) { f.remote = s }
}

func New(cfg *config.Config, demo Source, opts ...Option) *Facade {
	f := &Facade{cfg: cfg, demo: demo, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the configuration the façade routes with.
func (f *Facade) Config() *config.Config { return f.cfg }

func (f *Facade) route(reportID string) (Source, string, error) {
	if _, ok := f.cfg.Report(reportID); !ok {
		return nil, "", fmt.Errorf("report %q: %w", reportID, reportapi.ErrUnknownReport)
	}
	if f.cfg.IsRemote(reportID) {
		if f.remote == nil {
			return nil, BackendRemote, errNoRemote
		}
		return f.remote, BackendRemote, nil
	}
	return f.demo, BackendDemo, nil
}

// normalize drops filter keys the configuration does not declare and fills
// missing time and toggle values from the defaults.
func (f *Facade) normalize(a reportapi.AppliedFilters) reportapi.AppliedFilters {
	out := a.Clone()
	for key := range out.Filters {
		if _, ok := f.cfg.Filter(key); !ok {
			delete(out.Filters, key)
		}
	}
	def := f.cfg.AppliedDefaults()
	if out.Time.FiscalYear == "" {
		out.Time.FiscalYear = def.Time.FiscalYear
	}
	if out.Time.Period == "" {
		out.Time.Period = def.Time.Period
	}
	if agg, ok := reportapi.ParseAggregation(string(out.Toggles.Aggregation)); ok {
		out.Toggles.Aggregation = agg
	} else {
		out.Toggles.Aggregation = def.Toggles.Aggregation
	}
	if mode, ok := reportapi.ParseMetricMode(string(out.Toggles.MetricMode)); ok {
		out.Toggles.MetricMode = mode
	} else {
		out.Toggles.MetricMode = def.Toggles.MetricMode
	}
	return out
}

// failed logs and counts a transient failure.
func (f *Facade) failed(op, backend, reportID string, err error) {
	f.logger.Warn("report request failed; serving default",
		zap.String("report", reportID),
		zap.String("op", op),
		zap.String("backend", backend),
		zap.Error(err))
	f.metrics.fallback(op, backend)
}

func (f *Facade) defaultMeta(reportID string) reportapi.Meta {
	report, _ := f.cfg.Report(reportID)
	return reportapi.Meta{Features: report.FeatureFlags(), Allowed: map[string][]string{}}
}

// FetchMeta returns report metadata. Backend errors yield default metadata.
func (f *Facade) FetchMeta(ctx context.Context, req reportapi.MetaRequest) (reportapi.Meta, error) {
	src, backend, err := f.route(req.ReportID)
	if errors.Is(err, reportapi.ErrUnknownReport) {
		return reportapi.Meta{}, err
	}
	start := time.Now()
	var meta reportapi.Meta
	if err == nil {
		meta, err = src.Meta(ctx, req)
	}
	f.metrics.Observe(opMeta, backend, err == nil, time.Since(start))
	if err != nil {
		f.failed(opMeta, backend, req.ReportID, err)
		return f.defaultMeta(req.ReportID), nil
	}
	if meta.Features == nil {
		meta.Features = f.defaultMeta(req.ReportID).Features
	}
	return meta, nil
}

// FetchKpis returns KPI records and cards. Backend errors yield an empty response.
func (f *Facade) FetchKpis(ctx context.Context, req reportapi.KpiRequest) (reportapi.KpiResponse, error) {
	src, backend, err := f.route(req.ReportID)
	if errors.Is(err, reportapi.ErrUnknownReport) {
		return reportapi.KpiResponse{}, err
	}
	req.AppliedFilters = f.normalize(req.AppliedFilters)
	start := time.Now()
	var resp reportapi.KpiResponse
	if err == nil {
		resp, err = src.Kpis(ctx, req)
	}
	f.metrics.Observe(opKpis, backend, err == nil, time.Since(start))
	if err != nil {
		f.failed(opKpis, backend, req.ReportID, err)
		return reportapi.KpiResponse{Cards: []reportapi.KpiRecord{}, Layout: []reportapi.KpiCard{}}, nil
	}
	return resp, nil
}

// FetchTable returns one page of rows. Backend errors yield an empty page.
func (f *Facade) FetchTable(ctx context.Context, req reportapi.TableRequest) (reportapi.TableResponse, error) {
	src, backend, err := f.route(req.ReportID)
	if errors.Is(err, reportapi.ErrUnknownReport) {
		return reportapi.TableResponse{}, err
	}
	req.AppliedFilters = f.normalize(req.AppliedFilters)
	if req.Pagination.Page < 1 {
		req.Pagination.Page = max(f.cfg.Defaults.Page, 1)
	}
	if req.Pagination.PageSize <= 0 {
		req.Pagination.PageSize = f.cfg.Defaults.PageSize
	}
	start := time.Now()
	var resp reportapi.TableResponse
	if err == nil {
		resp, err = src.Table(ctx, req)
	}
	f.metrics.Observe(opTable, backend, err == nil, time.Since(start))
	if err != nil {
		f.failed(opTable, backend, req.ReportID, err)
		return reportapi.TableResponse{Rows: []reportapi.Row{}, Page: req.Pagination.Page, PageSize: req.Pagination.PageSize}, nil
	}
	return resp, nil
}

// FetchDrilldown returns entity detail. Unlike the other fetches every error,
// including reportapi.ErrNotFound, is returned to the caller.
func (f *Facade) FetchDrilldown(ctx context.Context, req reportapi.DrilldownRequest) (reportapi.Drilldown, error) {
	src, backend, err := f.route(req.ReportID)
	if err != nil {
		return reportapi.Drilldown{}, err
	}
	req.AppliedFilters = f.normalize(req.AppliedFilters)
	start := time.Now()
	d, err := src.Drilldown(ctx, req)
	f.metrics.Observe(opDrilldown, backend, err == nil, time.Since(start))
	if err != nil {
		return reportapi.Drilldown{}, fmt.Errorf("drilldown %s/%s: %w", req.ReportID, req.EntityID, err)
	}
	return d, nil
}

// ExportData renders the filtered dataset. Backend errors yield a
// header-only CSV, or an empty JSON array.
func (f *Facade) ExportData(ctx context.Context, req reportapi.ExportRequest) (string, error) {
	src, backend, err := f.route(req.ReportID)
	if errors.Is(err, reportapi.ErrUnknownReport) {
		return "", err
	}
	req.AppliedFilters = f.normalize(req.AppliedFilters)
	if req.Format != reportapi.FormatJSON {
		req.Format = reportapi.FormatCSV
	}
	start := time.Now()
	var out string
	if err == nil {
		out, err = src.Export(ctx, req)
	}
	f.metrics.Observe(opExport, backend, err == nil, time.Since(start))
	if err != nil {
		f.failed(opExport, backend, req.ReportID, err)
		if req.Format == reportapi.FormatJSON {
			return "[]", nil
		}
		return query.ExportCSV(nil, f.cfg.CategoryList()), nil
	}
	return out, nil
}

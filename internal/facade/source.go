// Package facade routes report requests to the demo or remote backend and
// turns transient backend failures into safe empty results.
package facade

import (
	"context"

	"dashcore/pkg/reportapi"
)

// Source is implemented by every report backend. Filter keys arrive already
// restricted to the configured filter set.
type Source interface {
	Meta(ctx context.Context, req reportapi.MetaRequest) (reportapi.Meta, error)
	Kpis(ctx context.Context, req reportapi.KpiRequest) (reportapi.KpiResponse, error)
	Table(ctx context.Context, req reportapi.TableRequest) (reportapi.TableResponse, error)
	Drilldown(ctx context.Context, req reportapi.DrilldownRequest) (reportapi.Drilldown, error)
	Export(ctx context.Context, req reportapi.ExportRequest) (string, error)
}

const (
	BackendDemo   = "demo"
	BackendRemote = "remote"
)

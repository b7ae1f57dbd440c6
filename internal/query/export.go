package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dashcore/pkg/reportapi"
)

// exportMetrics are the per-category columns written by ExportCSV.
var exportMetrics = []reportapi.Metric{
	reportapi.MetricActualSales,
	reportapi.MetricTargetSales,
	reportapi.MetricGrowthPct,
	reportapi.MetricAchievementPct,
}

// ExportColumns lists the CSV columns: descriptive fields, then each
// category's metrics, then the overall rollup.
func ExportColumns(categories []reportapi.Category) []string {
	cols := make([]string, 0, len(reportapi.DescriptiveFields)+(len(categories)+1)*len(exportMetrics))
	cols = append(cols, reportapi.DescriptiveFields...)
	for _, c := range categories {
		for _, m := range exportMetrics {
			cols = append(cols, reportapi.MetricKey{Category: c.Key, Metric: m}.String())
		}
	}
	for _, m := range exportMetrics {
		cols = append(cols, reportapi.Overall(m).String())
	}
	return cols
}

// ExportCSV renders rows as newline-joined CSV. Text cells are always double
// quoted with embedded quotes doubled; numbers are written bare.
func ExportCSV(rows []reportapi.Row, categories []reportapi.Category) string {
	cols := ExportColumns(categories)
	lines := make([]string, 0, len(rows)+1)

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = quote(c)
	}
	lines = append(lines, strings.Join(header, ","))

	cells := make([]string, len(cols))
	for _, row := range rows {
		for i, c := range cols {
			f, ok := row.Field(c)
			switch {
			case !ok:
				cells[i] = ""
			case f.Numeric:
				cells[i] = strconv.FormatFloat(finite(f.Number), 'f', -1, 64)
			default:
				cells[i] = quote(f.Text)
			}
		}
		lines = append(lines, strings.Join(cells, ","))
	}
	return strings.Join(lines, "\n")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Render encodes rows in the requested format. Anything other than JSON is
// written as CSV.
func Render(rows []reportapi.Row, categories []reportapi.Category, format reportapi.Format) (string, error) {
	if format != reportapi.FormatJSON {
		return ExportCSV(rows, categories), nil
	}
	if rows == nil {
		rows = []reportapi.Row{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode export rows: %w", err)
	}
	return string(b), nil
}

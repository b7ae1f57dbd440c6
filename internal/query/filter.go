// Package query holds the pure row pipeline behind every in-memory report:
// filtering, aggregation scaling, search, sorting, pagination, KPI
// aggregation and CSV rendering. No function here mutates its inputs.
package query

import (
	"slices"
	"strings"

	"dashcore/pkg/reportapi"
)

const (
	// CategoryKey selects rows with positive actual sales in the named categories.
	CategoryKey = "category"
	// AllValue as a scalar filter imposes no constraint.
	AllValue = "ALL"
)

// FilterRows keeps the rows that satisfy every set filter. Lists test
// membership, scalars test equality against the row field of the same name.
func FilterRows(rows []reportapi.Row, filters reportapi.FilterState) []reportapi.Row {
	keys := activeKeys(filters)
	if len(keys) == 0 {
		return slices.Clone(rows)
	}
	out := make([]reportapi.Row, 0, len(rows))
	for _, row := range rows {
		if matchesAll(row, filters, keys) {
			out = append(out, row)
		}
	}
	return out
}

func activeKeys(filters reportapi.FilterState) []string {
	keys := make([]string, 0, len(filters))
	for k, v := range filters {
		if !v.IsSet() {
			continue
		}
		if !v.IsList() && v.Scalar() == AllValue {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func matchesAll(row reportapi.Row, filters reportapi.FilterState, keys []string) bool {
	for _, key := range keys {
		value := filters[key]
		if key == CategoryKey {
			if !anyPositive(row, value.Values()) {
				return false
			}
			continue
		}
		field, ok := row.Attribute(key)
		if !ok {
			return false
		}
		if value.IsList() {
			if !value.Contains(field) {
				return false
			}
		} else if field != value.Scalar() {
			return false
		}
	}
	return true
}

func anyPositive(row reportapi.Row, categories []string) bool {
	for _, c := range categories {
		v, _ := row.Metric(reportapi.MetricKey{Category: c, Metric: reportapi.MetricActualSales})
		if v > 0 {
			return true
		}
	}
	return false
}

// SearchRows keeps rows whose name or code contains term, ignoring case.
// A blank term returns every row.
func SearchRows(rows []reportapi.Row, term string) []reportapi.Row {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return slices.Clone(rows)
	}
	out := make([]reportapi.Row, 0, len(rows))
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.EntityName), term) ||
			strings.Contains(strings.ToLower(row.EntityCode), term) {
			out = append(out, row)
		}
	}
	return out
}

package query

import (
	"dashcore/pkg/reportapi"
)

const (
	SummaryID   = "total"
	SummaryName = "TOTAL"
)

// Prepare runs the shared head of every demo request: filter then scale.
func Prepare(rows []reportapi.Row, applied reportapi.AppliedFilters, categories []reportapi.Category) []reportapi.Row {
	return ApplyAggregationScale(FilterRows(rows, applied.Filters), applied.Toggles.Aggregation, categories)
}

// FetchTable composes filter, scale, search, sort and paginate. Total counts
// the searched set and never depends on the requested page.
func FetchTable(rows []reportapi.Row, req reportapi.TableRequest, categories []reportapi.Category) reportapi.TableResponse {
	return PageTable(Prepare(rows, req.AppliedFilters, categories), req, categories)
}

// PageTable runs the tail of FetchTable over rows that are already filtered
// and scaled.
func PageTable(rows []reportapi.Row, req reportapi.TableRequest, categories []reportapi.Category) reportapi.TableResponse {
	searched := SearchRows(rows, req.Search)

	sort := DefaultSort
	if req.Sort != nil && req.Sort.Key != "" {
		sort = *req.Sort
	}
	sorted := SortRows(searched, sort.Key, sort.Direction)
	summary := Summarize(searched, categories)

	return reportapi.TableResponse{
		Rows:     PaginateRows(sorted, req.Pagination.Page, req.Pagination.PageSize),
		Page:     req.Pagination.Page,
		PageSize: req.Pagination.PageSize,
		Total:    len(searched),
		Summary:  &summary,
	}
}

// Summarize builds the totals row over rows.
func Summarize(rows []reportapi.Row, categories []reportapi.Category) reportapi.Row {
	out := reportapi.Row{
		EntityID:   SummaryID,
		EntityName: SummaryName,
		Categories: make(map[string]reportapi.Metrics, len(categories)),
	}
	for _, c := range categories {
		key := c.Key
		out.Categories[key] = totals(rows, func(r reportapi.Row) reportapi.Metrics { return r.Categories[key] })
	}
	out.Overall = totals(rows, func(r reportapi.Row) reportapi.Metrics { return r.Overall })
	return out
}

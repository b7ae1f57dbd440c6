package query

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"dashcore/pkg/reportapi"
)

// DefaultSort orders tables by overall actual sales, largest first.
var DefaultSort = reportapi.SortSpec{
	Key:       reportapi.Overall(reportapi.MetricActualSales).String(),
	Direction: reportapi.Descending,
}

// SortRows returns a stably sorted copy. Numeric fields compare numerically,
// text fields by English collation. Rows lacking the field go after the rest
// when ascending and before them when descending.
func SortRows(rows []reportapi.Row, key string, dir reportapi.Direction) []reportapi.Row {
	out := slices.Clone(rows)
	if key == "" {
		return out
	}
	coll := collate.New(language.English)
	desc := dir == reportapi.Descending
	slices.SortStableFunc(out, func(a, b reportapi.Row) int {
		fa, okA := a.Field(key)
		fb, okB := b.Field(key)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			if desc {
				return -1
			}
			return 1
		case !okB:
			if desc {
				return 1
			}
			return -1
		}
		var c int
		if fa.Numeric && fb.Numeric {
			c = cmp.Compare(fa.Number, fb.Number)
		} else {
			c = coll.CompareString(fa.Text, fb.Text)
		}
		if desc {
			return -c
		}
		return c
	})
	return out
}

// PaginateRows returns the 1-indexed page [(page-1)*size, page*size). Pages
// past the end are empty; page numbers below 1 are treated as 1.
func PaginateRows(rows []reportapi.Row, page, pageSize int) []reportapi.Row {
	if pageSize <= 0 {
		return []reportapi.Row{}
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []reportapi.Row{}
	}
	end := min(start+pageSize, len(rows))
	return slices.Clone(rows[start:end])
}

package query

import "dashcore/pkg/reportapi"

// ScaleFactor is the fixed multiplier applied to actual and target values for
// an aggregation mode.
func ScaleFactor(agg reportapi.Aggregation) float64 {
	switch agg {
	case reportapi.AggregationQTD:
		return 0.25
	case reportapi.AggregationMTD:
		return 1.0 / 12
	default:
		return 1
	}
}

// ApplyAggregationScale multiplies every category's actual and target sales
// by ScaleFactor(agg) and rebuilds the overall actual and target as the sum of
// the scaled category values.
func ApplyAggregationScale(rows []reportapi.Row, agg reportapi.Aggregation, categories []reportapi.Category) []reportapi.Row {
	factor := ScaleFactor(agg)
	out := make([]reportapi.Row, len(rows))
	for i, row := range rows {
		scaled := row.Normalize(categories)
		var actual, target float64
		for _, c := range categories {
			m := scaled.Categories[c.Key]
			m.ActualSales *= factor
			m.TargetSales *= factor
			scaled.Categories[c.Key] = m
			actual += m.ActualSales
			target += m.TargetSales
		}
		scaled.Overall.ActualSales = actual
		scaled.Overall.TargetSales = target
		out[i] = scaled
	}
	return out
}

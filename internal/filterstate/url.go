package filterstate

import (
	"net/url"
	"slices"
	"strings"

	"dashcore/pkg/reportapi"
)

const (
	ParamFiscalYear  = "fy"
	ParamPeriod      = "period"
	ParamAggregation = "agg"
	ParamMetricMode  = "mode"
	FilterPrefix     = "f_"
)

var (
	escaper   = strings.NewReplacer("%", "%25", ",", "%2C")
	unescaper = strings.NewReplacer("%2C", ",", "%25", "%")
)

// Encode renders an applied snapshot as query parameters. Filter values are
// escaped so commas inside a value survive; a one-element list carries a
// trailing comma so it decodes back as a list.
func Encode(a reportapi.AppliedFilters) url.Values {
	q := url.Values{}
	for key, v := range a.Filters {
		if !v.IsSet() {
			continue
		}
		values := v.Values()
		for i, item := range values {
			values[i] = escaper.Replace(item)
		}
		encoded := strings.Join(values, ",")
		if v.IsList() && len(values) == 1 {
			encoded += ","
		}
		q.Set(FilterPrefix+key, encoded)
	}
	if a.Time.FiscalYear != "" {
		q.Set(ParamFiscalYear, a.Time.FiscalYear)
	}
	if a.Time.Period != "" {
		q.Set(ParamPeriod, a.Time.Period)
	}
	if a.Toggles.Aggregation != "" {
		q.Set(ParamAggregation, string(a.Toggles.Aggregation))
	}
	if a.Toggles.MetricMode != "" {
		q.Set(ParamMetricMode, string(a.Toggles.MetricMode))
	}
	return q
}

// Decode reads an applied snapshot back from query parameters. Absent or
// invalid time and toggle values fall back to the defaults; filters come
// only from the f_ parameters.
func Decode(q url.Values, d Defaults) reportapi.AppliedFilters {
	out := reportapi.AppliedFilters{
		Filters: reportapi.FilterState{},
		Time:    d.Applied.Time,
		Toggles: d.Applied.Toggles,
	}
	for key := range q {
		name, ok := strings.CutPrefix(key, FilterPrefix)
		if !ok || name == "" {
			continue
		}
		if v := decodeValue(q.Get(key)); v.IsSet() {
			out.Filters[name] = v
		}
	}
	if fy := q.Get(ParamFiscalYear); d.validFiscalYear(fy) {
		out.Time.FiscalYear = fy
	}
	if p := q.Get(ParamPeriod); d.validPeriod(p) {
		out.Time.Period = p
	}
	if agg, ok := reportapi.ParseAggregation(q.Get(ParamAggregation)); ok {
		out.Toggles.Aggregation = agg
	}
	if mode, ok := reportapi.ParseMetricMode(q.Get(ParamMetricMode)); ok {
		out.Toggles.MetricMode = mode
	}
	return out
}

// HasState reports whether q carries any parameter Decode understands.
func HasState(q url.Values) bool {
	for key := range q {
		if strings.HasPrefix(key, FilterPrefix) {
			return true
		}
		switch key {
		case ParamFiscalYear, ParamPeriod, ParamAggregation, ParamMetricMode:
			return true
		}
	}
	return false
}

func decodeValue(raw string) reportapi.FilterValue {
	if raw == "" {
		return reportapi.FilterValue{}
	}
	if !strings.Contains(raw, ",") {
		return reportapi.Single(unescaper.Replace(raw))
	}
	parts := strings.Split(raw, ",")
	parts = slices.DeleteFunc(parts, func(s string) bool { return s == "" })
	for i, p := range parts {
		parts[i] = unescaper.Replace(p)
	}
	return reportapi.List(parts...)
}

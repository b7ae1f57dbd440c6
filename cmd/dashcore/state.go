package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"

	"dashcore/internal/config"
	"dashcore/internal/filterstate"
	"dashcore/pkg/reportapi"
)

// stateFlags select an applied snapshot on the command line. They are fed
// through a filterstate.Machine so the result matches what a dashboard
// session would apply.
type stateFlags struct {
	query       string
	filters     []string
	fiscalYear  string
	period      string
	aggregation string
	metricMode  string
}

func (s *stateFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&s.query, "state", "", "share-URL query to start from (f_zone=NORTH%2C&fy=...)")
	fs.StringArrayVarP(&s.filters, "filter", "f", nil, "filter as key=v1,v2 (repeatable; empty value clears)")
	fs.StringVar(&s.fiscalYear, "fy", "", "fiscal year")
	fs.StringVar(&s.period, "period", "", "period, e.g. \"January 2026\"")
	fs.StringVar(&s.aggregation, "agg", "", "aggregation: MTD, QTD or YTD")
	fs.StringVar(&s.metricMode, "mode", "", "metric mode: VALUE, VOLUME or UNITS")
}

func (s *stateFlags) applied(cfg *config.Config) (reportapi.AppliedFilters, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(s.query, "?"))
	if err != nil {
		return reportapi.AppliedFilters{}, fmt.Errorf("parse --state: %w", err)
	}
	m := filterstate.New(cfg.StateDefaults(), q)
	for _, raw := range s.filters {
		key, value, err := parseFilter(cfg, raw)
		if err != nil {
			return reportapi.AppliedFilters{}, err
		}
		m.SetPendingFilter(key, value)
	}
	m.SetPendingTime(reportapi.TimeState{FiscalYear: s.fiscalYear, Period: s.period})
	if s.aggregation != "" {
		m.SetPendingToggle(filterstate.ToggleAggregation, s.aggregation)
	}
	if s.metricMode != "" {
		m.SetPendingToggle(filterstate.ToggleMetricMode, s.metricMode)
	}
	return m.Apply(), nil
}

// parseFilter reads key=v1,v2. Single-select filters keep only a scalar.
func parseFilter(cfg *config.Config, raw string) (string, reportapi.FilterValue, error) {
	key, list, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", reportapi.FilterValue{}, fmt.Errorf("filter %q: want key=value", raw)
	}
	var values []string
	for _, v := range strings.Split(list, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if f, known := cfg.Filter(key); known && f.Type == config.FilterSingle {
		if len(values) == 0 {
			return key, reportapi.FilterValue{}, nil
		}
		return key, reportapi.Single(values[0]), nil
	}
	return key, reportapi.List(values...), nil
}

package config

import (
	"errors"
	"fmt"
	"slices"

	"dashcore/internal/fiscal"
	"dashcore/pkg/reportapi"
)

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("categories: at least one category is required"))
	}
	seen := map[string]bool{}
	for i, cat := range c.Categories {
		switch {
		case cat.Key == "":
			errs = append(errs, fmt.Errorf("categories[%d]: key is required", i))
		case cat.Key == reportapi.OverallKey:
			errs = append(errs, fmt.Errorf("categories[%d]: key %q is reserved", i, cat.Key))
		case seen[cat.Key]:
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate key %q", i, cat.Key))
		}
		seen[cat.Key] = true
	}

	reportIDs := map[string]bool{}
	for i, r := range c.Reports {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("reports[%d]: id is required", i))
		}
		reportIDs[r.ID] = true
	}
	for _, id := range c.RemoteReports {
		if !reportIDs[id] {
			errs = append(errs, fmt.Errorf("remoteReports: %q is not a configured report", id))
		}
	}

	for i, f := range c.Filters {
		if f.Key == "" {
			errs = append(errs, fmt.Errorf("filters[%d]: key is required", i))
		}
		if f.Type != FilterSingle && f.Type != FilterMulti {
			errs = append(errs, fmt.Errorf("filters[%d]: type %q must be single or multi", i, f.Type))
		}
		if f.Source != SourceStatic && f.Source != SourceDynamic {
			errs = append(errs, fmt.Errorf("filters[%d]: source %q must be static or dynamic", i, f.Source))
		}
	}

	if _, err := fiscal.ParseYear(c.Defaults.FiscalYear); err != nil {
		errs = append(errs, fmt.Errorf("defaults.fiscalYear: %w", err))
	}
	if _, err := fiscal.ParsePeriod(c.Defaults.Period); err != nil {
		errs = append(errs, fmt.Errorf("defaults.period: %w", err))
	}
	if len(c.Time.FiscalYears) > 0 && !slices.Contains(c.Time.FiscalYears, c.Defaults.FiscalYear) {
		errs = append(errs, fmt.Errorf("defaults.fiscalYear %q is not in time.fiscalYears", c.Defaults.FiscalYear))
	}
	if len(c.Time.Periods) > 0 && !slices.Contains(c.Time.Periods, c.Defaults.Period) {
		errs = append(errs, fmt.Errorf("defaults.period %q is not in time.periods", c.Defaults.Period))
	}
	if _, ok := reportapi.ParseAggregation(c.Defaults.Aggregation); !ok {
		errs = append(errs, fmt.Errorf("defaults.aggregation %q is invalid", c.Defaults.Aggregation))
	}
	if _, ok := reportapi.ParseMetricMode(c.Defaults.MetricMode); !ok {
		errs = append(errs, fmt.Errorf("defaults.metricMode %q is invalid", c.Defaults.MetricMode))
	}

	switch c.Demo.Store {
	case "", "memory", "postgres":
	case "sqlite":
		if c.Demo.SQLitePath == "" {
			errs = append(errs, errors.New("demo.sqlitePath is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("demo.store %q must be memory, sqlite or postgres", c.Demo.Store))
	}

	if len(c.RemoteReports) > 0 {
		switch c.Remote.Kind {
		case "sql":
			if !slices.Contains([]string{"pgx", "mysql", "sqlite"}, c.Remote.Driver) {
				errs = append(errs, fmt.Errorf("remote.driver %q must be pgx, mysql or sqlite", c.Remote.Driver))
			}
			if c.Remote.DSN == "" {
				errs = append(errs, errors.New("remote.dsn is required for the sql remote"))
			}
		case "http":
			if c.Remote.BaseURL == "" {
				errs = append(errs, errors.New("remote.baseURL is required for the http remote"))
			}
		default:
			errs = append(errs, fmt.Errorf("remote.kind %q must be sql or http", c.Remote.Kind))
		}
	}

	switch c.Export.Blob.Driver {
	case "", "memory":
	case "fs":
		if c.Export.Blob.Root == "" {
			errs = append(errs, errors.New("export.blob.root is required for the fs driver"))
		}
	case "s3":
		if c.Export.Blob.Bucket == "" {
			errs = append(errs, errors.New("export.blob.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("export.blob.driver %q must be memory, fs or s3", c.Export.Blob.Driver))
	}
	switch c.Export.Compression {
	case "", "none", "snappy":
	default:
		errs = append(errs, fmt.Errorf("export.compression %q must be none or snappy", c.Export.Compression))
	}

	return errors.Join(errs...)
}

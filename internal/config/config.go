// Package config loads the dashboard configuration: report catalogue, filter and
// KPI card definitions, defaults, and the storage/transport settings of the
// demo, remote and export backends.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"dashcore/internal/filterstate"
	"dashcore/internal/query"
	"dashcore/pkg/reportapi"
)

type Config struct {
	Server        ServerConfig     `yaml:"server"`
	Log           LogConfig        `yaml:"log"`
	Reports       []ReportConfig   `yaml:"reports"`
	RemoteReports []string         `yaml:"remoteReports"`
	Categories    []CategoryConfig `yaml:"categories"`
	Filters       []FilterConfig   `yaml:"filters"`
	KpiCards      []query.CardDef  `yaml:"kpiCards"`
	ColumnGroups  []ColumnGroup    `yaml:"columnGroups"`
	Defaults      DefaultsConfig   `yaml:"defaults"`
	Time          TimeConfig       `yaml:"time"`
	Demo          DemoConfig       `yaml:"demo"`
	Remote        RemoteConfig     `yaml:"remote"`
	Export        ExportConfig     `yaml:"export"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"readTimeout"`
	WriteTimeout    string `yaml:"writeTimeout"`
	ShutdownTimeout string `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type ReportConfig struct {
	ID       string          `yaml:"id"`
	Title    string          `yaml:"title"`
	Features map[string]bool `yaml:"features,omitempty"`
}

type CategoryConfig struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	// Match is the category column value; a trailing % makes it a prefix match.
	Match string `yaml:"match,omitempty"`
}

const (
	FilterSingle = "single"
	FilterMulti  = "multi"

	SourceStatic  = "static"
	SourceDynamic = "dynamic"
)

type FilterConfig struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	Type  string `yaml:"type"`
	// Field is the row attribute the filter tests; defaults to Key.
	Field string `yaml:"field,omitempty"`
	// Column is the remote table column the filter maps to.
	Column  string   `yaml:"column,omitempty"`
	Source  string   `yaml:"source"`
	Options []string `yaml:"options,omitempty"`
}

// RowField returns the row attribute the filter applies to.
func (f FilterConfig) RowField() string {
	if f.Field != "" {
		return f.Field
	}
	return f.Key
}

type ColumnGroup struct {
	ID      string   `yaml:"id"`
	Label   string   `yaml:"label"`
	Columns []string `yaml:"columns"`
}

type DefaultsConfig struct {
	FiscalYear  string              `yaml:"fiscalYear"`
	Period      string              `yaml:"period"`
	Aggregation string              `yaml:"aggregation"`
	MetricMode  string              `yaml:"metricMode"`
	Filters     map[string][]string `yaml:"filters,omitempty"`
	Page        int                 `yaml:"page"`
	PageSize    int                 `yaml:"pageSize"`
}

type TimeConfig struct {
	FiscalYears []string `yaml:"fiscalYears"`
	Periods     []string `yaml:"periods"`
}

type DemoConfig struct {
	Entities    int    `yaml:"entities"`
	Seed        uint64 `yaml:"seed"`
	Store       string `yaml:"store"` // memory | sqlite | postgres
	SQLitePath  string `yaml:"sqlitePath,omitempty"`
	PostgresDSN string `yaml:"postgresDSN,omitempty"`
}

type RemoteConfig struct {
	Kind    string    `yaml:"kind"`   // sql | http
	Driver  string    `yaml:"driver"` // pgx | mysql | sqlite
	DSN     string    `yaml:"dsn,omitempty"`
	Table   string    `yaml:"table"`
	Columns ColumnMap `yaml:"columns"`
	BaseURL string    `yaml:"baseURL,omitempty"`
	Timeout string    `yaml:"timeout"`
}

// ColumnMap names the columns of the remote fact table. Empty descriptive
// columns are not selected.
type ColumnMap struct {
	Entity      string `yaml:"entity"`
	EntityCode  string `yaml:"entityCode,omitempty"`
	Zone        string `yaml:"zone,omitempty"`
	State       string `yaml:"state,omitempty"`
	EntityType  string `yaml:"entityType,omitempty"`
	ChannelType string `yaml:"channelType,omitempty"`
	Category    string `yaml:"category"`
	Period      string `yaml:"period"`
	AsOf        string `yaml:"asOf"`
	Amount      string `yaml:"amount"`
	Target      string `yaml:"target,omitempty"`
	Weight      string `yaml:"weight"`
	Quantity    string `yaml:"quantity"`
	Profit      string `yaml:"profit"`
}

type ExportConfig struct {
	Blob        BlobConfig `yaml:"blob"`
	Compression string     `yaml:"compression"` // none | snappy
	QueueSize   int        `yaml:"queueSize"`
}

type BlobConfig struct {
	Driver    string `yaml:"driver"` // memory | fs | s3
	Root      string `yaml:"root,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"pathStyle,omitempty"`
	AccessKey string `yaml:"accessKey,omitempty"`
	SecretKey string `yaml:"secretKey,omitempty"`
}

// DefaultFeatures are the meta feature flags a report advertises unless its
// configuration overrides them.
func DefaultFeatures() map[string]bool {
	return map[string]bool{
		"export":         true,
		"drilldown":      true,
		"share":          true,
		"refresh":        true,
		"print":          true,
		"columnToggle":   true,
		"viewModeSwitch": true,
	}
}

// Default returns a configuration that serves the demo dataset with no files
// or external services.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Reports: []ReportConfig{
			{ID: "sales-performance", Title: "Sales Performance"},
			{ID: "sales-analytics", Title: "Sales Analytics"},
		},
		Categories: []CategoryConfig{
			{Key: "buildingWires", Label: "Building Wires", Match: "CABLES : BUILDING WIRES%"},
			{Key: "ltCables", Label: "LT Cables", Match: "CABLES : LT"},
			{Key: "flexibles", Label: "Flexibles", Match: "CABLES : LDC (FLEX ETC)"},
			{Key: "htEhv", Label: "HT & EHV", Match: "CABLES : HT & EHV"},
		},
		Filters: []FilterConfig{
			{Key: "zone", Label: "Zone", Type: FilterMulti, Source: SourceStatic,
				Options: []string{"NORTH", "SOUTH", "EAST", "WEST"}},
			{Key: "state", Label: "State", Type: FilterMulti, Column: "customer_state", Source: SourceDynamic},
			{Key: "entityType", Label: "Entity Type", Type: FilterSingle, Column: "customer_type", Source: SourceDynamic},
			{Key: "channelType", Label: "Channel", Type: FilterMulti, Column: "industry", Source: SourceDynamic},
			{Key: query.CategoryKey, Label: "Category", Type: FilterMulti, Source: SourceStatic},
		},
		KpiCards: []query.CardDef{
			{ID: "bw", Category: "buildingWires", Primary: "actualSales", Secondary: "achievementPct", Share: "contributionPct", Trend: "growthPct"},
			{ID: "lt", Category: "ltCables", Primary: "actualSales", Secondary: "achievementPct", Share: "contributionPct", Trend: "growthPct"},
			{ID: "flex", Category: "flexibles", Primary: "actualSales", Secondary: "achievementPct", Share: "contributionPct", Trend: "growthPct"},
			{ID: "ht", Category: "htEhv", Primary: "actualSales", Secondary: "achievementPct", Share: "contributionPct", Trend: "growthPct"},
		},
		ColumnGroups: []ColumnGroup{
			{ID: "entity", Label: "Entity", Columns: []string{"entityName", "entityCode", "zone", "state"}},
			{ID: "overall", Label: "Overall", Columns: []string{"overall_actualSales", "overall_targetSales", "overall_growthPct", "overall_achievementPct"}},
		},
		Defaults: DefaultsConfig{
			FiscalYear:  "2025-2026",
			Period:      "January 2026",
			Aggregation: string(reportapi.AggregationYTD),
			MetricMode:  string(reportapi.MetricModeValue),
			Page:        1,
			PageSize:    50,
		},
		Time: TimeConfig{
			FiscalYears: []string{"2024-2025", "2025-2026"},
			Periods: []string{
				"April 2025", "May 2025", "June 2025", "July 2025", "August 2025", "September 2025",
				"October 2025", "November 2025", "December 2025", "January 2026", "February 2026", "March 2026",
			},
		},
		Demo: DemoConfig{Entities: 120, Seed: 42, Store: "memory"},
		Remote: RemoteConfig{
			Kind:    "sql",
			Driver:  "pgx",
			Table:   "sales_analytics",
			Timeout: "20s",
			Columns: ColumnMap{
				Entity:      "groupheadname",
				State:       "customer_state",
				EntityType:  "customer_type",
				ChannelType: "industry",
				Category:    "itemgroup",
				Period:      "period",
				AsOf:        "asondate",
				Amount:      "saleamt_ason",
				Weight:      "metalweightsold_ason",
				Quantity:    "saleqty_ason",
				Profit:      "profitloss_ason",
			},
		},
		Export: ExportConfig{
			Blob:        BlobConfig{Driver: "memory"},
			Compression: "none",
			QueueSize:   16,
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - operator supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// CategoryList returns the categories in configured order.
func (c *Config) CategoryList() []reportapi.Category {
	out := make([]reportapi.Category, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = reportapi.Category{Key: cat.Key, Label: cat.Label}
	}
	return out
}

func (c *Config) Filter(key string) (FilterConfig, bool) {
	for _, f := range c.Filters {
		if f.Key == key {
			return f, true
		}
	}
	return FilterConfig{}, false
}

func (c *Config) Report(id string) (ReportConfig, bool) {
	for _, r := range c.Reports {
		if r.ID == id {
			return r, true
		}
	}
	return ReportConfig{}, false
}

// StaticOptions returns the allowed values a filter declares without
// consulting data: its configured options, or the category keys for the
// category filter. ok is false for filters whose values come from data.
func (c *Config) StaticOptions(f FilterConfig) (values []string, ok bool) {
	switch {
	case f.Source == SourceStatic && len(f.Options) > 0:
		return slices.Clone(f.Options), true
	case f.Key == query.CategoryKey:
		keys := make([]string, 0, len(c.Categories))
		for _, cat := range c.Categories {
			keys = append(keys, cat.Key)
		}
		return keys, true
	case f.Source == SourceStatic:
		return []string{}, true
	}
	return nil, false
}

// IsRemote reports whether id is served by the remote source.
func (c *Config) IsRemote(id string) bool {
	return slices.Contains(c.RemoteReports, id)
}

// FeatureFlags merges a report's overrides onto DefaultFeatures.
func (r ReportConfig) FeatureFlags() map[string]bool {
	out := DefaultFeatures()
	for k, v := range r.Features {
		out[k] = v
	}
	return out
}

// AppliedDefaults builds the default applied snapshot.
func (c *Config) AppliedDefaults() reportapi.AppliedFilters {
	filters := reportapi.FilterState{}
	for key, values := range c.Defaults.Filters {
		f, _ := c.Filter(key)
		if f.Type == FilterSingle && len(values) > 0 {
			filters[key] = reportapi.Single(values[0])
			continue
		}
		if v := reportapi.List(values...); v.IsSet() {
			filters[key] = v
		}
	}
	agg, ok := reportapi.ParseAggregation(c.Defaults.Aggregation)
	if !ok {
		agg = reportapi.AggregationYTD
	}
	mode, ok := reportapi.ParseMetricMode(c.Defaults.MetricMode)
	if !ok {
		mode = reportapi.MetricModeValue
	}
	return reportapi.AppliedFilters{
		Filters: filters,
		Time:    reportapi.TimeState{FiscalYear: c.Defaults.FiscalYear, Period: c.Defaults.Period},
		Toggles: reportapi.ToggleState{Aggregation: agg, MetricMode: mode},
	}
}

// StateDefaults seeds a filter state machine.
func (c *Config) StateDefaults() filterstate.Defaults {
	return filterstate.Defaults{
		Applied:     c.AppliedDefaults(),
		FiscalYears: slices.Clone(c.Time.FiscalYears),
		Periods:     slices.Clone(c.Time.Periods),
	}
}

// Duration parses s, returning fallback when s is empty or invalid.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

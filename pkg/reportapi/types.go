// Package reportapi defines the request/response contracts shared by every report
// backend, together with the row and filter model they carry.
package reportapi

import (
	"strings"
)

type Aggregation string

const (
	AggregationYTD Aggregation = "YTD"
	AggregationQTD Aggregation = "QTD"
	AggregationMTD Aggregation = "MTD"
)

// ParseAggregation accepts YTD, QTD or MTD in any case.
func ParseAggregation(s string) (Aggregation, bool) {
	a := Aggregation(strings.ToUpper(strings.TrimSpace(s)))
	return a, a.Valid()
}

// Valid reports whether a is one of the known aggregation modes.
func (a Aggregation) Valid() bool {
	switch a {
	case AggregationYTD, AggregationQTD, AggregationMTD:
		return true
	}
	return false
}

type MetricMode string

const (
	MetricModeValue  MetricMode = "VALUE"
	MetricModeVolume MetricMode = "VOLUME"
	MetricModeUnits  MetricMode = "UNITS"
)

// ParseMetricMode accepts VALUE, VOLUME or UNITS in any case.
func ParseMetricMode(s string) (MetricMode, bool) {
	m := MetricMode(strings.ToUpper(strings.TrimSpace(s)))
	return m, m.Valid()
}

// Valid reports whether m is one of the known metric modes.
func (m MetricMode) Valid() bool {
	switch m {
	case MetricModeValue, MetricModeVolume, MetricModeUnits:
		return true
	}
	return false
}

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps anything other than "asc" to Descending.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Ascending)) {
		return Ascending
	}
	return Descending
}

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

type TimeState struct {
	FiscalYear string `json:"fiscalYear"`
	Period     string `json:"period"`
}

type ToggleState struct {
	Aggregation Aggregation `json:"aggregation"`
	MetricMode  MetricMode  `json:"metricMode"`
}

// AppliedFilters is the snapshot that drives data fetching.
type AppliedFilters struct {
	Filters FilterState `json:"filters"`
	Time    TimeState   `json:"time"`
	Toggles ToggleState `json:"toggles"`
}

// Clone returns a deep copy.
func (a AppliedFilters) Clone() AppliedFilters {
	return AppliedFilters{Filters: a.Filters.Clone(), Time: a.Time, Toggles: a.Toggles}
}

type Category struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type SortSpec struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

type MetaRequest struct {
	ReportID string `json:"reportId"`
}

type Meta struct {
	LastUpdatedAt string              `json:"lastUpdatedAt"`
	Features      map[string]bool     `json:"features"`
	Allowed       map[string][]string `json:"allowed,omitempty"`
}

type KpiRequest struct {
	ReportID string `json:"reportId"`
	AppliedFilters
}

// KpiRecord summarises one category across a row set.
type KpiRecord struct {
	Key             string  `json:"key"`
	Label           string  `json:"label"`
	ActualSales     float64 `json:"actualSales"`
	TargetSales     float64 `json:"targetSales"`
	GrowthPct       float64 `json:"growthPct"`
	ContributionPct float64 `json:"contributionPct"`
	AchievementPct  float64 `json:"achievementPct"`
	ProfitLoss      float64 `json:"profitLoss"`
	MarginPct       float64 `json:"marginPct"`
}

// KpiCard is a KpiRecord projected onto a configured card layout.
type KpiCard struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Category  string   `json:"category"`
	Primary   *float64 `json:"primary,omitempty"`
	Secondary *float64 `json:"secondary,omitempty"`
	Share     *float64 `json:"share,omitempty"`
	Trend     *float64 `json:"trend,omitempty"`
}

type KpiResponse struct {
	Cards  []KpiRecord `json:"cards"`
	Layout []KpiCard   `json:"layout,omitempty"`
}

type TableRequest struct {
	ReportID string `json:"reportId"`
	AppliedFilters
	Pagination Pagination `json:"pagination"`
	Sort       *SortSpec  `json:"sort,omitempty"`
	Search     string     `json:"search,omitempty"`
}

type TableResponse struct {
	Rows     []Row `json:"rows"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int   `json:"total"`
	Summary  *Row  `json:"summary,omitempty"`
}

type DrilldownRequest struct {
	ReportID string `json:"reportId"`
	EntityID string `json:"entityId"`
	AppliedFilters
}

type EntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type TrendPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

type BreakdownItem struct {
	Key        string  `json:"key"`
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
}

type Breakdown struct {
	ByCategory []BreakdownItem `json:"byCategory"`
}

type Drilldown struct {
	Entity    EntityRef    `json:"entity"`
	Summary   Metrics      `json:"summary"`
	Trend     []TrendPoint `json:"trend"`
	Breakdown Breakdown    `json:"breakdown"`
}

type ExportRequest struct {
	ReportID string `json:"reportId"`
	AppliedFilters
	Format Format `json:"format"`
}

package reportapi

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

type Metric string

const (
	MetricActualSales    Metric = "actualSales"
	MetricTargetSales    Metric = "targetSales"
	MetricGrowthPct      Metric = "growthPct"
	MetricAchievementPct Metric = "achievementPct"
	MetricProfitLoss     Metric = "profitLoss"
	MetricQuantity       Metric = "quantity"
)

// AllMetrics lists every metric in wire order.
var AllMetrics = []Metric{
	MetricActualSales,
	MetricTargetSales,
	MetricGrowthPct,
	MetricAchievementPct,
	MetricProfitLoss,
	MetricQuantity,
}

// Valid reports whether m is a known metric name.
func (m Metric) Valid() bool {
	for _, known := range AllMetrics {
		if m == known {
			return true
		}
	}
	return false
}

// OverallKey is the category name of the rollup metric family.
const OverallKey = "overall"

// MetricKey addresses one metric of one category (or of the overall rollup).
type MetricKey struct {
	Category string
	Metric   Metric
}

// Overall returns the key of metric m in the overall rollup.
func Overall(m Metric) MetricKey { return MetricKey{Category: OverallKey, Metric: m} }

// String renders the flat wire spelling, e.g. "ltCables_actualSales".
func (k MetricKey) String() string { return k.Category + "_" + string(k.Metric) }

// ParseMetricKey splits a flat wire key such as "overall_growthPct".
func ParseMetricKey(s string) (MetricKey, bool) {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return MetricKey{}, false
	}
	m := Metric(s[i+1:])
	if !m.Valid() {
		return MetricKey{}, false
	}
	return MetricKey{Category: s[:i], Metric: m}, true
}

type Metrics struct {
	ActualSales    float64 `json:"actualSales"`
	TargetSales    float64 `json:"targetSales"`
	GrowthPct      float64 `json:"growthPct"`
	AchievementPct float64 `json:"achievementPct"`
	ProfitLoss     float64 `json:"profitLoss"`
	Quantity       float64 `json:"quantity"`
}

func (m Metrics) Get(metric Metric) float64 {
	switch metric {
	case MetricActualSales:
		return m.ActualSales
	case MetricTargetSales:
		return m.TargetSales
	case MetricGrowthPct:
		return m.GrowthPct
	case MetricAchievementPct:
		return m.AchievementPct
	case MetricProfitLoss:
		return m.ProfitLoss
	case MetricQuantity:
		return m.Quantity
	}
	return 0
}

func (m *Metrics) Set(metric Metric, v float64) bool {
	switch metric {
	case MetricActualSales:
		m.ActualSales = v
	case MetricTargetSales:
		m.TargetSales = v
	case MetricGrowthPct:
		m.GrowthPct = v
	case MetricAchievementPct:
		m.AchievementPct = v
	case MetricProfitLoss:
		m.ProfitLoss = v
	case MetricQuantity:
		m.Quantity = v
	default:
		return false
	}
	return true
}

// Add returns the element-wise sum of the additive metrics. Percentages are
// left zero; callers derive them from the summed values.
func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		ActualSales: m.ActualSales + o.ActualSales,
		TargetSales: m.TargetSales + o.TargetSales,
		ProfitLoss:  m.ProfitLoss + o.ProfitLoss,
		Quantity:    m.Quantity + o.Quantity,
	}
}

// Row is one entity of a report with its descriptive fields and metrics.
type Row struct {
	EntityID    string
	EntityName  string
	EntityCode  string
	Zone        string
	State       string
	EntityType  string
	ChannelType string
	Attributes  map[string]string
	Categories  map[string]Metrics
	Overall     Metrics
}

const (
	FieldEntityID    = "entityId"
	FieldEntityName  = "entityName"
	FieldEntityCode  = "entityCode"
	FieldZone        = "zone"
	FieldState       = "state"
	FieldEntityType  = "entityType"
	FieldChannelType = "channelType"
)

// DescriptiveFields lists the fixed string columns in wire order.
var DescriptiveFields = []string{
	FieldEntityID,
	FieldEntityName,
	FieldEntityCode,
	FieldZone,
	FieldState,
	FieldEntityType,
	FieldChannelType,
}

func (r *Row) fixedField(key string) (*string, bool) {
	switch key {
	case FieldEntityID:
		return &r.EntityID, true
	case FieldEntityName:
		return &r.EntityName, true
	case FieldEntityCode:
		return &r.EntityCode, true
	case FieldZone:
		return &r.Zone, true
	case FieldState:
		return &r.State, true
	case FieldEntityType:
		return &r.EntityType, true
	case FieldChannelType:
		return &r.ChannelType, true
	}
	return nil, false
}

// Attribute returns a descriptive string field, fixed or free-form.
func (r Row) Attribute(key string) (string, bool) {
	if p, ok := r.fixedField(key); ok {
		return *p, true
	}
	v, ok := r.Attributes[key]
	return v, ok
}

// SetAttribute writes a descriptive field, fixed or free-form.
func (r *Row) SetAttribute(key, value string) {
	if p, ok := r.fixedField(key); ok {
		*p = value
		return
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string]string)
	}
	r.Attributes[key] = value
}

// Metric returns the value for k. The boolean is false when the category is
// not present on the row; the value is then 0.
func (r Row) Metric(k MetricKey) (float64, bool) {
	if k.Category == OverallKey {
		return r.Overall.Get(k.Metric), true
	}
	m, ok := r.Categories[k.Category]
	return m.Get(k.Metric), ok
}

// Field is a typed cell value used for sorting and export.
type Field struct {
	Number  float64
	Text    string
	Numeric bool
}

// Field resolves a flat wire key to a typed value.
func (r Row) Field(key string) (Field, bool) {
	if mk, ok := ParseMetricKey(key); ok {
		if v, ok := r.Metric(mk); ok {
			return Field{Number: v, Numeric: true}, true
		}
	}
	if s, ok := r.Attribute(key); ok {
		return Field{Text: s}, true
	}
	return Field{}, false
}

// Clone returns a deep copy.
func (r Row) Clone() Row {
	out := r
	out.Attributes = maps.Clone(r.Attributes)
	out.Categories = maps.Clone(r.Categories)
	return out
}

// Normalize returns a copy carrying a Metrics value for every category.
func (r Row) Normalize(categories []Category) Row {
	out := r.Clone()
	if out.Categories == nil {
		out.Categories = make(map[string]Metrics, len(categories))
	}
	for _, c := range categories {
		if _, ok := out.Categories[c.Key]; !ok {
			out.Categories[c.Key] = Metrics{}
		}
	}
	return out
}

// MarshalJSON flattens metrics into "{category}_{metric}" keys.
func (r Row) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(DescriptiveFields)+len(r.Attributes)+(len(r.Categories)+1)*len(AllMetrics))
	for k, v := range r.Attributes {
		out[k] = v
	}
	for _, key := range DescriptiveFields {
		v, _ := r.Attribute(key)
		out[key] = v
	}
	for cat, m := range r.Categories {
		for _, metric := range AllMetrics {
			out[MetricKey{Category: cat, Metric: metric}.String()] = m.Get(metric)
		}
	}
	for _, metric := range AllMetrics {
		out[Overall(metric).String()] = r.Overall.Get(metric)
	}
	return json.Marshal(out)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Row{}
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			r.SetAttribute(key, v)
		case float64:
			mk, ok := ParseMetricKey(key)
			if !ok {
				continue
			}
			if mk.Category == OverallKey {
				r.Overall.Set(mk.Metric, v)
				continue
			}
			if r.Categories == nil {
				r.Categories = make(map[string]Metrics)
			}
			m := r.Categories[mk.Category]
			m.Set(mk.Metric, v)
			r.Categories[mk.Category] = m
		case nil:
		default:
			return fmt.Errorf("row field %q: unsupported type %T", key, value)
		}
	}
	return nil
}

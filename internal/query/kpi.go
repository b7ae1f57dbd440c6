package query

import (
	"cmp"
	"math"
	"slices"

	"dashcore/pkg/reportapi"
)

// CardDef maps KPI record fields onto a dashboard card. Metric names refer to
// KpiRecord JSON fields such as "actualSales" or "contributionPct".
type CardDef struct {
	ID        string `yaml:"id" json:"id"`
	Label     string `yaml:"label" json:"label"`
	Category  string `yaml:"category" json:"category"`
	Primary   string `yaml:"primary" json:"primary"`
	Secondary string `yaml:"secondary,omitempty" json:"secondary,omitempty"`
	Share     string `yaml:"share,omitempty" json:"share,omitempty"`
	Trend     string `yaml:"trend,omitempty" json:"trend,omitempty"`
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func pct(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den * 100
}

// totals folds metrics picked from each row. Growth is weighted by actual
// sales and achievement is derived from the summed actual and target.
func totals(rows []reportapi.Row, pick func(reportapi.Row) reportapi.Metrics) reportapi.Metrics {
	var sum reportapi.Metrics
	var weighted float64
	for _, row := range rows {
		m := pick(row)
		actual := finite(m.ActualSales)
		sum.ActualSales += actual
		sum.TargetSales += finite(m.TargetSales)
		sum.ProfitLoss += finite(m.ProfitLoss)
		sum.Quantity += finite(m.Quantity)
		weighted += actual * finite(m.GrowthPct)
	}
	if sum.ActualSales != 0 {
		sum.GrowthPct = weighted / sum.ActualSales
	}
	sum.AchievementPct = pct(sum.ActualSales, sum.TargetSales)
	return sum
}

// AggregateKpis produces one record per category: summed actual and target,
// sales-weighted growth, contribution to the grand total and achievement.
func AggregateKpis(rows []reportapi.Row, categories []reportapi.Category) []reportapi.KpiRecord {
	out := make([]reportapi.KpiRecord, len(categories))
	var grand float64
	for i, c := range categories {
		key := c.Key
		m := totals(rows, func(r reportapi.Row) reportapi.Metrics { return r.Categories[key] })
		grand += m.ActualSales
		out[i] = reportapi.KpiRecord{
			Key:            c.Key,
			Label:          c.Label,
			ActualSales:    m.ActualSales,
			TargetSales:    m.TargetSales,
			GrowthPct:      m.GrowthPct,
			AchievementPct: m.AchievementPct,
			ProfitLoss:     m.ProfitLoss,
			MarginPct:      pct(m.ProfitLoss, m.ActualSales),
		}
	}
	for i := range out {
		out[i].ContributionPct = pct(out[i].ActualSales, grand)
	}
	return out
}

func recordValue(r reportapi.KpiRecord, name string) (float64, bool) {
	switch name {
	case "actualSales":
		return r.ActualSales, true
	case "targetSales":
		return r.TargetSales, true
	case "growthPct":
		return r.GrowthPct, true
	case "contributionPct":
		return r.ContributionPct, true
	case "achievementPct":
		return r.AchievementPct, true
	case "profitLoss":
		return r.ProfitLoss, true
	case "marginPct":
		return r.MarginPct, true
	}
	return 0, false
}

// BuildCards projects records onto card definitions. Cards whose category has
// no record are skipped.
func BuildCards(records []reportapi.KpiRecord, defs []CardDef) []reportapi.KpiCard {
	byKey := make(map[string]reportapi.KpiRecord, len(records))
	for _, r := range records {
		byKey[r.Key] = r
	}
	pick := func(r reportapi.KpiRecord, name string) *float64 {
		if v, ok := recordValue(r, name); ok {
			return &v
		}
		return nil
	}
	cards := make([]reportapi.KpiCard, 0, len(defs))
	for _, d := range defs {
		r, ok := byKey[d.Category]
		if !ok {
			continue
		}
		label := d.Label
		if label == "" {
			label = r.Label
		}
		cards = append(cards, reportapi.KpiCard{
			ID:        d.ID,
			Label:     label,
			Category:  d.Category,
			Primary:   pick(r, d.Primary),
			Secondary: pick(r, d.Secondary),
			Share:     pick(r, d.Share),
			Trend:     pick(r, d.Trend),
		})
	}
	return cards
}

// Breakdown splits a row's overall actual sales by category, largest first.
// Percentages are of the overall actual and rounded to two places.
func Breakdown(row reportapi.Row, categories []reportapi.Category) []reportapi.BreakdownItem {
	items := make([]reportapi.BreakdownItem, 0, len(categories))
	for _, c := range categories {
		v := finite(row.Categories[c.Key].ActualSales)
		items = append(items, reportapi.BreakdownItem{
			Key:        c.Key,
			Name:       c.Label,
			Value:      v,
			Percentage: math.Round(pct(v, row.Overall.ActualSales)*100) / 100,
		})
	}
	slices.SortStableFunc(items, func(a, b reportapi.BreakdownItem) int { return cmp.Compare(b.Value, a.Value) })
	return items
}

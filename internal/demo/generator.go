// Package demo serves reports from a locally held, deterministically generated
// dataset. The dataset lives in an explicitly constructed row store; nothing
// in this package keeps global state.
package demo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"dashcore/pkg/reportapi"
)

type zone struct {
	name   string
	states []string
}

var zones = []zone{
	{name: "NORTH", states: []string{"Punjab", "Haryana", "Delhi", "Uttar Pradesh"}},
	{name: "SOUTH", states: []string{"Karnataka", "Tamil Nadu", "Kerala", "Telangana"}},
	{name: "EAST", states: []string{"West Bengal", "Odisha", "Bihar"}},
	{name: "WEST", states: []string{"Maharashtra", "Gujarat", "Rajasthan"}},
}

var (
	entityTypes  = []string{"DISTRIBUTOR", "DEALER", "RETAILER"}
	channelTypes = []string{"DEALER LOCAL", "CONTRACTOR", "INSTITUTIONAL", "PROJECT"}
	namePrefixes = []string{"Shakti", "Jyoti", "Ganesh", "Bharat", "Surya", "Modern", "Royal", "Star", "Vijay", "Prakash", "Sai", "Laxmi"}
	nameSuffixes = []string{"Electricals", "Traders", "Enterprises", "Agencies", "Distributors", "Cables", "Power Systems", "Sales"}
)

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Generate builds n rows with metrics for every category. The same seed
// always yields the same rows.
func Generate(seed uint64, n int, categories []reportapi.Category) []reportapi.Row {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rows := make([]reportapi.Row, 0, n)
	for i := range n {
		z := zones[rng.IntN(len(zones))]
		row := reportapi.Row{
			EntityID:    fmt.Sprintf("ent-%04d", i+1),
			EntityName:  namePrefixes[rng.IntN(len(namePrefixes))] + " " + nameSuffixes[rng.IntN(len(nameSuffixes))] + fmt.Sprintf(" %d", i+1),
			EntityCode:  fmt.Sprintf("D%05d", 10000+rng.IntN(90000)),
			Zone:        z.name,
			State:       z.states[rng.IntN(len(z.states))],
			EntityType:  entityTypes[rng.IntN(len(entityTypes))],
			ChannelType: channelTypes[rng.IntN(len(channelTypes))],
			Categories:  make(map[string]reportapi.Metrics, len(categories)),
		}
		for _, c := range categories {
			row.Categories[c.Key] = categoryMetrics(rng)
		}
		row.Overall = rollup(row.Categories, categories)
		rows = append(rows, row)
	}
	return rows
}

func categoryMetrics(rng *rand.Rand) reportapi.Metrics {
	if rng.Float64() < 0.15 {
		return reportapi.Metrics{}
	}
	actual := round2(5000 + rng.Float64()*495000)
	target := round2(actual * (0.8 + rng.Float64()*0.5))
	return reportapi.Metrics{
		ActualSales:    actual,
		TargetSales:    target,
		GrowthPct:      round2(-20 + rng.Float64()*60),
		AchievementPct: round2(actual / target * 100),
		ProfitLoss:     round2(actual * (0.04 + rng.Float64()*0.12)),
		Quantity:       math.Round(actual / (150 + rng.Float64()*350)),
	}
}

func rollup(metrics map[string]reportapi.Metrics, categories []reportapi.Category) reportapi.Metrics {
	var sum reportapi.Metrics
	var weighted float64
	for _, c := range categories {
		m := metrics[c.Key]
		sum = sum.Add(m)
		weighted += m.ActualSales * m.GrowthPct
	}
	if sum.ActualSales > 0 {
		sum.GrowthPct = round2(weighted / sum.ActualSales)
	}
	if sum.TargetSales > 0 {
		sum.AchievementPct = round2(sum.ActualSales / sum.TargetSales * 100)
	}
	sum.ActualSales = round2(sum.ActualSales)
	sum.TargetSales = round2(sum.TargetSales)
	sum.ProfitLoss = round2(sum.ProfitLoss)
	return sum
}

package reportapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricKey(t *testing.T) {
	k, ok := ParseMetricKey("ltCables_actualSales")
	require.True(t, ok)
	assert.Equal(t, MetricKey{Category: "ltCables", Metric: MetricActualSales}, k)

	k, ok = ParseMetricKey("ht_ehv_growthPct")
	require.True(t, ok)
	assert.Equal(t, "ht_ehv", k.Category)

	for _, bad := range []string{"zone", "_actualSales", "ltCables_", "ltCables_revenue"} {
		_, ok := ParseMetricKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestRowJSONFlattensMetrics(t *testing.T) {
	row := Row{
		EntityID:   "e1",
		EntityName: "Acme Traders",
		Zone:       "NORTH",
		Attributes: map[string]string{"region": "R1"},
		Categories: map[string]Metrics{"ltCables": {ActualSales: 120, TargetSales: 100}},
		Overall:    Metrics{ActualSales: 120},
	}
	data, err := json.Marshal(row)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "Acme Traders", flat["entityName"])
	assert.Equal(t, "R1", flat["region"])
	assert.Equal(t, 120.0, flat["ltCables_actualSales"])
	assert.Equal(t, 0.0, flat["ltCables_growthPct"])
	assert.Equal(t, 120.0, flat["overall_actualSales"])

	var back Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row.EntityName, back.EntityName)
	assert.Equal(t, "R1", back.Attributes["region"])
	assert.Equal(t, 100.0, back.Categories["ltCables"].TargetSales)
	assert.Equal(t, 120.0, back.Overall.ActualSales)
}

func TestRowUnmarshalSkipsUnknownNumbers(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{"entityId":"a","rank":3,"overall_actualSales":5}`), &row))
	assert.Equal(t, "a", row.EntityID)
	assert.Equal(t, 5.0, row.Overall.ActualSales)
	assert.Empty(t, row.Categories)
}

func TestRowNormalizeAndField(t *testing.T) {
	row := Row{EntityName: "A"}.Normalize([]Category{{Key: "flex"}, {Key: "lt"}})
	require.Len(t, row.Categories, 2)

	f, ok := row.Field("flex_actualSales")
	require.True(t, ok)
	assert.True(t, f.Numeric)
	assert.Zero(t, f.Number)

	_, ok = row.Field("missing_actualSales")
	assert.False(t, ok)

	f, ok = row.Field(FieldEntityName)
	require.True(t, ok)
	assert.Equal(t, "A", f.Text)
}

func TestRowCloneIsDeep(t *testing.T) {
	row := Row{Categories: map[string]Metrics{"a": {ActualSales: 1}}, Attributes: map[string]string{"x": "1"}}
	c := row.Clone()
	c.Categories["a"] = Metrics{ActualSales: 9}
	c.Attributes["x"] = "2"
	assert.Equal(t, 1.0, row.Categories["a"].ActualSales)
	assert.Equal(t, "1", row.Attributes["x"])
}

func TestFilterValueJSON(t *testing.T) {
	var state FilterState
	require.NoError(t, json.Unmarshal([]byte(`{"zone":"NORTH","state":["A","B"],"empty":[]}`), &state))
	assert.False(t, state["zone"].IsList())
	assert.Equal(t, "NORTH", state["zone"].Scalar())
	assert.True(t, state["state"].IsList())
	assert.Equal(t, []string{"A", "B"}, state["state"].Values())
	assert.False(t, state["empty"].IsSet())

	clean := state.Clone()
	assert.NotContains(t, clean, "empty")
	assert.Equal(t, 3, clean.Count())

	data, err := json.Marshal(clean)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zone":"NORTH","state":["A","B"]}`, string(data))
}

func TestFilterValueEqual(t *testing.T) {
	assert.True(t, List("a").Equal(List("a")))
	assert.False(t, List("a").Equal(Single("a")))
	assert.True(t, List().Equal(FilterValue{}))
	assert.False(t, List("a", "b").Equal(List("b", "a")))
}

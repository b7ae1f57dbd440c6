package reportapi

import (
	"encoding/json"
	"fmt"
	"slices"
)

// FilterValue holds either a single string or an ordered list of strings.
// The zero value means "unset".
type FilterValue struct {
	values []string
	list   bool
}

// Single returns a scalar filter value. An empty string yields the unset value.
func Single(v string) FilterValue {
	if v == "" {
		return FilterValue{}
	}
	return FilterValue{values: []string{v}}
}

// List returns a list filter value. Empty entries are dropped and an empty
// list collapses to the unset value.
func List(vs ...string) FilterValue {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return FilterValue{}
	}
	return FilterValue{values: out, list: true}
}

// IsSet reports whether the value restricts anything.
func (v FilterValue) IsSet() bool { return len(v.values) > 0 }

// IsList reports whether the value was supplied as a list.
func (v FilterValue) IsList() bool { return v.list && len(v.values) > 0 }

// Scalar returns the single value, or the first list entry.
func (v FilterValue) Scalar() string {
	if len(v.values) == 0 {
		return ""
	}
	return v.values[0]
}

// Values returns a copy of the underlying values.
func (v FilterValue) Values() []string { return slices.Clone(v.values) }

// Count is 1 for a scalar and N for a list of N.
func (v FilterValue) Count() int { return len(v.values) }

// Contains reports whether s is one of the values.
func (v FilterValue) Contains(s string) bool { return slices.Contains(v.values, s) }

// Equal compares kind and contents.
func (v FilterValue) Equal(o FilterValue) bool {
	if v.IsSet() != o.IsSet() {
		return false
	}
	if !v.IsSet() {
		return true
	}
	return v.list == o.list && slices.Equal(v.values, o.values)
}

func (v FilterValue) String() string {
	if v.IsList() {
		return fmt.Sprint(v.values)
	}
	return v.Scalar()
}

func (v FilterValue) MarshalJSON() ([]byte, error) {
	switch {
	case !v.IsSet():
		return []byte("null"), nil
	case v.list:
		return json.Marshal(v.values)
	default:
		return json.Marshal(v.values[0])
	}
}

func (v *FilterValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = FilterValue{}
	case string:
		*v = Single(t)
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("filter list entry %v is not a string", item)
			}
			items = append(items, s)
		}
		*v = List(items...)
	default:
		return fmt.Errorf("filter value must be a string or list, got %T", raw)
	}
	return nil
}

// FilterState maps filter keys to values. A missing key means no restriction.
type FilterState map[string]FilterValue

// Clone copies the state, dropping unset entries.
func (s FilterState) Clone() FilterState {
	out := make(FilterState, len(s))
	for k, v := range s {
		if v.IsSet() {
			out[k] = FilterValue{values: slices.Clone(v.values), list: v.list}
		}
	}
	return out
}

// Count sums the individual values across all keys.
func (s FilterState) Count() int {
	n := 0
	for _, v := range s {
		n += v.Count()
	}
	return n
}

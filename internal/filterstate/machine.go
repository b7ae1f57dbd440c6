// Package filterstate implements the two-phase pending/applied filter state of a
// dashboard session and its mirror in URL query parameters.
package filterstate

import (
	"net/url"
	"slices"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"dashcore/pkg/reportapi"
)

// Defaults seeds a machine and bounds what a URL may select.
type Defaults struct {
	Applied     reportapi.AppliedFilters
	FiscalYears []string
	Periods     []string
}

func (d Defaults) validFiscalYear(fy string) bool {
	return fy != "" && (len(d.FiscalYears) == 0 || slices.Contains(d.FiscalYears, fy))
}

func (d Defaults) validPeriod(p string) bool {
	return p != "" && (len(d.Periods) == 0 || slices.Contains(d.Periods, p))
}

// Toggle keys accepted by SetPendingToggle.
const (
	ToggleAggregation = "aggregation"
	ToggleMetricMode  = "metricMode"
)

type Option func(*Machine)

// WithURLSink receives the encoded applied snapshot whenever it changes.
func WithURLSink(sink func(url.Values)) Option {
	return func(m *Machine) { m.sink = sink }
}

// OnApplied registers a listener for new applied snapshots.
func OnApplied(fn func(reportapi.AppliedFilters)) Option {
	return func(m *Machine) { m.listeners = append(m.listeners, fn) }
}

// Machine holds the pending and applied snapshots. It is the only container
// of either, so Apply always sees every preceding setter call.
type Machine struct {
	mu        sync.Mutex
	defaults  Defaults
	pending   reportapi.AppliedFilters
	applied   reportapi.AppliedFilters
	sink      func(url.Values)
	listeners []func(reportapi.AppliedFilters)
}

// New seeds the machine from query when it carries state, otherwise from the
// defaults. The machine starts clean.
func New(defaults Defaults, query url.Values, opts ...Option) *Machine {
	m := &Machine{defaults: defaults}
	for _, opt := range opts {
		opt(m)
	}
	initial := defaults.Applied.Clone()
	if HasState(query) {
		initial = Decode(query, defaults)
	}
	m.applied = initial
	m.pending = initial.Clone()
	return m
}

func (m *Machine) SetPendingFilter(key string, value reportapi.FilterValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending.Filters == nil {
		m.pending.Filters = reportapi.FilterState{}
	}
	if !value.IsSet() {
		delete(m.pending.Filters, key)
		return
	}
	m.pending.Filters[key] = value
}

// SetPendingTime merges the non-empty fields of patch into pending time.
func (m *Machine) SetPendingTime(patch reportapi.TimeState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.FiscalYear != "" {
		m.pending.Time.FiscalYear = patch.FiscalYear
	}
	if patch.Period != "" {
		m.pending.Time.Period = patch.Period
	}
}

// SetPendingToggle sets one toggle. Unknown keys and out-of-range values are
// ignored.
func (m *Machine) SetPendingToggle(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch key {
	case ToggleAggregation:
		if agg, ok := reportapi.ParseAggregation(value); ok {
			m.pending.Toggles.Aggregation = agg
		}
	case ToggleMetricMode:
		if mode, ok := reportapi.ParseMetricMode(value); ok {
			m.pending.Toggles.MetricMode = mode
		}
	}
}

// Apply promotes pending to applied and returns the new applied snapshot.
// Observers run only when the applied snapshot actually changed.
func (m *Machine) Apply() reportapi.AppliedFilters {
	m.mu.Lock()
	changed := !equal(m.pending, m.applied)
	m.applied = m.pending.Clone()
	out := m.applied.Clone()
	m.mu.Unlock()
	if changed {
		m.notify(out)
	}
	return out
}

// ClearPending discards pending edits.
func (m *Machine) ClearPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = m.applied.Clone()
}

// ResetToDefaults sets both snapshots to the defaults without going through
// Apply. The URL sink is always rewritten.
func (m *Machine) ResetToDefaults() reportapi.AppliedFilters {
	m.mu.Lock()
	changed := !equal(m.applied, m.defaults.Applied)
	m.applied = m.defaults.Applied.Clone()
	m.pending = m.defaults.Applied.Clone()
	out := m.applied.Clone()
	m.mu.Unlock()
	if m.sink != nil {
		m.sink(Encode(out))
	}
	if changed {
		for _, fn := range m.listeners {
			fn(out.Clone())
		}
	}
	return out
}

// HasChanges reports whether pending differs from applied.
func (m *Machine) HasChanges() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !equal(m.pending, m.applied)
}

// AppliedFilterCount counts applied values; a list of N counts N.
func (m *Machine) AppliedFilterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied.Filters.Count()
}

func (m *Machine) Pending() reportapi.AppliedFilters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Clone()
}

func (m *Machine) Applied() reportapi.AppliedFilters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied.Clone()
}

// URL encodes the applied snapshot.
func (m *Machine) URL() url.Values {
	return Encode(m.Applied())
}

func (m *Machine) notify(applied reportapi.AppliedFilters) {
	if m.sink != nil {
		m.sink(Encode(applied))
	}
	for _, fn := range m.listeners {
		fn(applied.Clone())
	}
}

func equal(a, b reportapi.AppliedFilters) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcore/internal/filterstate"
	"dashcore/pkg/reportapi"
)

// gatedFetcher blocks calls for a zone until its gate is released and ignores
// cancellation, so a stale result can still arrive late.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	err   error
}

func (f *gatedFetcher) gate(zone string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = map[string]chan struct{}{}
	}
	if _, ok := f.gates[zone]; !ok {
		f.gates[zone] = make(chan struct{})
	}
	return f.gates[zone]
}

func zoneOf(a reportapi.AppliedFilters) string { return a.Filters["zone"].Scalar() }

func (f *gatedFetcher) FetchKpis(_ context.Context, req reportapi.KpiRequest) (reportapi.KpiResponse, error) {
	<-f.gate(zoneOf(req.AppliedFilters))
	return reportapi.KpiResponse{Cards: []reportapi.KpiRecord{{Key: zoneOf(req.AppliedFilters)}}}, f.err
}

func (f *gatedFetcher) FetchTable(_ context.Context, req reportapi.TableRequest) (reportapi.TableResponse, error) {
	<-f.gate(zoneOf(req.AppliedFilters))
	return reportapi.TableResponse{Rows: []reportapi.Row{{EntityID: zoneOf(req.AppliedFilters)}}, Total: 1, Page: req.Pagination.Page, PageSize: req.Pagination.PageSize}, nil
}

func applied(zone string) reportapi.AppliedFilters {
	return reportapi.AppliedFilters{Filters: reportapi.FilterState{"zone": reportapi.Single(zone)}}
}

func TestStaleRefetchDiscarded(t *testing.T) {
	f := &gatedFetcher{}
	var views []View
	var mu sync.Mutex
	s := New(f, "r", TableParams{Pagination: reportapi.Pagination{Page: 1, PageSize: 10}}, OnView(func(v View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	}))

	first := s.Refetch(context.Background(), applied("NORTH"))
	second := s.Refetch(context.Background(), applied("SOUTH"))
	require.Greater(t, second, first)

	close(f.gate("SOUTH"))
	close(f.gate("NORTH"))
	s.Wait()

	v := s.View()
	assert.Equal(t, second, v.Token)
	assert.Equal(t, "SOUTH", v.Kpis.Cards[0].Key)
	assert.Equal(t, "SOUTH", v.Table.Rows[0].EntityID)
	assert.Equal(t, 10, v.Table.PageSize)
	require.Len(t, views, 1)
}

func TestFailedRefetchKeepsPreviousView(t *testing.T) {
	f := &gatedFetcher{}
	close(f.gate("EAST"))
	s := New(f, "r", TableParams{})
	tok := s.Refetch(context.Background(), applied("EAST"))
	s.Wait()
	require.Equal(t, tok, s.View().Token)

	f.err = errors.New("boom")
	s.Refetch(context.Background(), applied("EAST"))
	s.Wait()
	assert.Equal(t, tok, s.View().Token)
}

func TestBindRefetchesOnApply(t *testing.T) {
	f := &gatedFetcher{}
	close(f.gate("WEST"))
	s := New(f, "r", TableParams{})
	defer s.Close()

	m := filterstate.New(filterstate.Defaults{Applied: reportapi.AppliedFilters{
		Time:    reportapi.TimeState{FiscalYear: "2025-2026", Period: "January 2026"},
		Toggles: reportapi.ToggleState{Aggregation: reportapi.AggregationYTD, MetricMode: reportapi.MetricModeValue},
	}}, url.Values{}, s.Bind(context.Background()))

	m.SetPendingFilter("zone", reportapi.Single("WEST"))
	m.Apply()
	s.Wait()
	assert.Equal(t, "WEST", s.View().Applied.Filters["zone"].Scalar())
}

// Package session keeps the data view of one open report in step with the
// applied filter snapshot.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dashcore/internal/facade"
	"dashcore/internal/filterstate"
	"dashcore/internal/logging"
	"dashcore/pkg/reportapi"
)

// Fetcher is the subset of the façade a session refetches through.
type Fetcher interface {
	FetchKpis(ctx context.Context, req reportapi.KpiRequest) (reportapi.KpiResponse, error)
	FetchTable(ctx context.Context, req reportapi.TableRequest) (reportapi.TableResponse, error)
}

// TableParams are the table-only request parts that live outside the
// filter state machine.
type TableParams struct {
	Pagination reportapi.Pagination
	Sort       *reportapi.SortSpec
	Search     string
}

// View is the most recent complete refetch result.
type View struct {
	Token   uint64
	Applied reportapi.AppliedFilters
	Kpis    reportapi.KpiResponse
	Table   reportapi.TableResponse
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = logging.OrNop(l) }
}

// OnView registers a callback invoked with each accepted view.
func OnView(fn func(View)) Option {
	return func(s *Session) { s.onView = fn }
}

// Session refetches KPIs and the table concurrently whenever Refetch is
// called. Starting a refetch cancels the previous one, and a result is only
// accepted while its token is still the latest.
type Session struct {
	fetcher  Fetcher
	reportID string
	seq      facade.Sequencer
	logger   *zap.Logger
	onView   func(View)

	mu     sync.Mutex
	cancel context.CancelFunc
	table  TableParams
	view   View
	wg     sync.WaitGroup
}

func New(fetcher Fetcher, reportID string, table TableParams, opts ...Option) *Session {
	s := &Session{fetcher: fetcher, reportID: reportID, table: table, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind returns a state machine option that refetches on every applied change.
func (s *Session) Bind(ctx context.Context) filterstate.Option {
	return filterstate.OnApplied(func(a reportapi.AppliedFilters) {
		s.Refetch(ctx, a)
	})
}

// SetTable replaces the table parameters used by subsequent refetches.
func (s *Session) SetTable(p TableParams) {
	s.mu.Lock()
	s.table = p
	s.mu.Unlock()
}

// Refetch starts an asynchronous refetch for applied and returns its token
// without waiting for it.
func (s *Session) Refetch(parent context.Context, applied reportapi.AppliedFilters) uint64 {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	token := s.seq.Next()
	table := s.table
	s.wg.Add(1)
	s.mu.Unlock()

	applied = applied.Clone()
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, token, applied, table)
	}()
	return token
}

func (s *Session) run(ctx context.Context, token uint64, applied reportapi.AppliedFilters, table TableParams) {
	var (
		kpis reportapi.KpiResponse
		rows reportapi.TableResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		kpis, err = s.fetcher.FetchKpis(gctx, reportapi.KpiRequest{ReportID: s.reportID, AppliedFilters: applied})
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.fetcher.FetchTable(gctx, reportapi.TableRequest{
			ReportID:       s.reportID,
			AppliedFilters: applied,
			Pagination:     table.Pagination,
			Sort:           table.Sort,
			Search:         table.Search,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("refetch failed", zap.String("report", s.reportID), zap.Uint64("token", token), zap.Error(err))
		return
	}

	s.mu.Lock()
	if ctx.Err() != nil || !s.seq.IsLatest(token) {
		s.mu.Unlock()
		s.logger.Debug("discarding stale refetch", zap.String("report", s.reportID), zap.Uint64("token", token))
		return
	}
	s.view = View{Token: token, Applied: applied, Kpis: kpis, Table: rows}
	view := s.view
	s.mu.Unlock()

	if s.onView != nil {
		s.onView(view)
	}
}

// View returns the latest accepted view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Wait blocks until every started refetch has finished.
func (s *Session) Wait() { s.wg.Wait() }

// Close cancels any in-flight refetch and waits for it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

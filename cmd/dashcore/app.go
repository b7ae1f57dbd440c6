package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"dashcore/internal/config"
	"dashcore/internal/demo"
	"dashcore/internal/facade"
	"dashcore/internal/remote/httpsource"
	"dashcore/internal/remote/sqlsource"
)

// app is the assembled façade plus everything that must be released with it.
type app struct {
	facade  *facade.Facade
	store   demo.Store
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp opens the demo store, seeds it when empty and attaches the remote
// source when any report is routed to it. reg may be nil.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{}
	store, closeStore, err := demo.OpenStore(ctx, cfg.Demo)
	if err != nil {
		return nil, fmt.Errorf("open demo store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	seeded, err := demo.Seed(ctx, store, cfg.Demo, cfg.CategoryList(), time.Now(), false)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if seeded {
		logger.Info("seeded demo dataset",
			zap.String("store", cfg.Demo.Store),
			zap.Int("entities", cfg.Demo.Entities),
			zap.Uint64("seed", cfg.Demo.Seed))
	}

	opts := []facade.Option{facade.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, facade.WithMetrics(facade.NewMetrics(reg)))
	}
	if len(cfg.RemoteReports) > 0 {
		remote, err := openRemote(ctx, cfg, logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if closer, ok := remote.(interface{ Close() error }); ok {
			a.closers = append(a.closers, closer.Close)
		}
		opts = append(opts, facade.WithRemote(remote))
		logger.Info("remote source attached",
			zap.String("kind", cfg.Remote.Kind),
			zap.Strings("reports", cfg.RemoteReports))
	}
	a.facade = facade.New(cfg, demo.NewSource(store, cfg), opts...)
	return a, nil
}

func openRemote(ctx context.Context, cfg *config.Config, logger *zap.Logger) (facade.Source, error) {
	switch cfg.Remote.Kind {
	case "http":
		c, err := httpsource.New(cfg.Remote, httpsource.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("remote http source: %w", err)
		}
		return c, nil
	case "sql":
		s, err := sqlsource.Open(ctx, cfg, sqlsource.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("remote sql source: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Remote.Kind)
	}
}

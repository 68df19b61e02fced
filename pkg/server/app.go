package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketEngine/internal/usecase"
	"MarketEngine/pkg/config"
	xhttp "MarketEngine/pkg/http"
	pkgkafka "MarketEngine/pkg/kafka"
	xlogger "MarketEngine/pkg/logger"
)

// Run modes.
const (
	ModeAggregate = "aggregate"
	ModeBackfill  = "backfill"
	ModeLoad      = "load"
	ModeServe     = "serve"
	ModeFollow    = "follow"
	ModeAll       = "all"
)

// Modes lists every accepted mode.
var Modes = []string{ModeAggregate, ModeBackfill, ModeLoad, ModeServe, ModeFollow, ModeAll}

// RunOptions are the per-invocation switches of the command line.
type RunOptions struct {
	Mode       string
	FullReload bool
}

// Closer is a resource released on shutdown, in reverse registration order.
type Closer struct {
	Name  string
	Close func() error
}

// CloserOf adapts an io.Closer.
func CloserOf(name string, c io.Closer) Closer {
	return Closer{Name: name, Close: c.Close}
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *xlogger.Logger
	aggregator *usecase.Aggregator
	backfiller *usecase.Backfiller // nil when the mirror is disabled
	loader     *usecase.Loader
	follower   *usecase.ArtifactsHandler
	consumer   *pkgkafka.Consumer // nil when kafka is disabled
	ops        xhttp.Handler
	checks     map[string]xhttp.HealthCheck
	closers    []Closer

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *xlogger.Logger,
	aggregator *usecase.Aggregator,
	backfiller *usecase.Backfiller,
	loader *usecase.Loader,
	follower *usecase.ArtifactsHandler,
	consumer *pkgkafka.Consumer,
	ops xhttp.Handler,
) *App {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &App{
		cfg:        cfg,
		logger:     logger,
		aggregator: aggregator,
		backfiller: backfiller,
		loader:     loader,
		follower:   follower,
		consumer:   consumer,
		ops:        ops,
		checks:     make(map[string]xhttp.HealthCheck),
	}
}

// AddHealthCheck exposes a dependency check on /healthz.
func (a *App) AddHealthCheck(name string, check xhttp.HealthCheck) { a.checks[name] = check }

// AddCloser registers a resource to release on shutdown.
func (a *App) AddCloser(c Closer) { a.closers = append(a.closers, c) }

// Run executes one mode. One-shot modes return when done; serve and
// follow block until SIGINT or SIGTERM. Resources are released either way.
func (a *App) Run(opts RunOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.close()

	start := time.Now()
	a.logger.Info("run started", xlogger.String("mode", opts.Mode), xlogger.Bool("full_reload", opts.FullReload))

	var err error
	switch opts.Mode {
	case ModeAggregate:
		err = a.aggregate(ctx)
	case ModeBackfill:
		err = a.backfill(ctx)
	case ModeLoad:
		err = a.load(ctx, opts.FullReload)
	case ModeAll:
		err = a.all(ctx, opts.FullReload)
	case ModeServe:
		err = a.serve(ctx, false)
	case ModeFollow:
		err = a.serve(ctx, true)
	default:
		err = fmt.Errorf("unknown mode %q (want one of %v)", opts.Mode, Modes)
	}
	if err != nil {
		a.logger.Error("run failed", xlogger.String("mode", opts.Mode), xlogger.Error(err))
		return err
	}
	a.logger.Info("run finished", xlogger.String("mode", opts.Mode), xlogger.Duration("took", time.Since(start)))
	return nil
}

func (a *App) aggregate(ctx context.Context) error {
	res, err := a.aggregator.Run(ctx)
	if err != nil {
		return err
	}
	_, err = a.aggregator.WriteArtifacts(ctx, res)
	return err
}

func (a *App) backfill(ctx context.Context) error {
	if a.backfiller == nil {
		return errors.New("backfill needs mirror.enabled")
	}
	_, err := a.backfiller.Run(ctx)
	return err
}

func (a *App) load(ctx context.Context, full bool) error {
	_, err := a.loader.Load(ctx, usecase.LoadOptions{FullReload: full})
	return err
}

// all backfills when the mirror is on, aggregates, then loads. A failed
// backfill does not stop the fresh aggregation.
func (a *App) all(ctx context.Context, full bool) error {
	if a.backfiller != nil {
		if err := a.backfill(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			a.logger.Warn("backfill failed, continuing", xlogger.Error(err))
		}
	}
	if err := a.aggregate(ctx); err != nil {
		return err
	}
	return a.load(ctx, full)
}

// serve runs the ops HTTP server, plus the artifacts consumer when follow
// is set, until ctx is cancelled.
func (a *App) serve(ctx context.Context, follow bool) error {
	if follow {
		if a.consumer == nil || a.follower == nil {
			return errors.New("follow needs kafka.enabled")
		}
		// catch up on anything announced while no follower was running
		if _, err := a.loader.Load(ctx, usecase.LoadOptions{}); err != nil {
			a.logger.Warn("catch-up load failed", xlogger.Error(err))
		}
		a.consumer.RegisterHandler(a.follower)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		a.logger.Info("following artifacts", xlogger.String("topic", a.follower.Topic()))
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.logger.With("component", "http")),
	}
	if !a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(""))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
	}
	for name, check := range a.checks {
		opts = append(opts, xhttp.WithHealthCheck(name, check))
	}
	a.httpServer = xhttp.NewServer(a.ops, opts...)
	if err := a.httpServer.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
	}
	return errors.Join(runErr, a.shutdown(follow))
}

// shutdown stops the consumer first so no load starts while the server
// drains.
func (a *App) shutdown(follow bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if follow && a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", xlogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", xlogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.logger.Warn("close error", xlogger.String("resource", c.Name), xlogger.Error(err))
		}
	}
	a.closers = nil
}

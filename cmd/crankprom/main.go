package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/crankprom/internal/config"
	"github.com/torosent/crankprom/internal/exposition"
	"github.com/torosent/crankprom/internal/ingest"
	"github.com/torosent/crankprom/internal/logging"
	"github.com/torosent/crankprom/internal/registry"
	"github.com/torosent/crankprom/internal/reporter"
	"github.com/torosent/crankprom/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := newApp(ctx, *cfg, out)
	if err != nil {
		return err
	}
	if err := a.start(); err != nil {
		a.closeTracing()
		return err
	}
	return a.wait(ctx)
}

// app wires the reporter, its producers and the exposition server for one process.
type app struct {
	cfg      config.Config
	log      *logrus.Entry
	reg      *registry.Registry
	reporter *reporter.Reporter
	meter    *ingest.Meter
	server   *exposition.Server
	stream   *ingest.StreamHandler
	tracing  *tracing.Provider
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer) (*app, error) {
	log, err := logging.Configure(cfg.Log, out)
	if err != nil {
		return nil, err
	}

	var regOpts []registry.Option
	if cfg.RuntimeMetrics {
		regOpts = append(regOpts, registry.WithRuntimeCollectors())
	}
	reg := registry.New(regOpts...)

	hook, err := logging.NewMetricsHook(reg)
	if err != nil {
		return nil, err
	}
	log.Logger.AddHook(hook)

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	rep, err := reporter.New(reg, reporter.Options{
		Prefix:      cfg.MetricPrefix,
		TimeBuckets: cfg.Buckets.Time,
		ByteBuckets: cfg.Buckets.Bytes,
		Logger:      log,
		Tracer:      tp.Tracer(),
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	meter, err := ingest.NewMeter(reg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		reg:      reg,
		reporter: rep,
		meter:    meter,
		server:   exposition.New(cfg.ListenAddr(), reg.Gatherer(), log),
		tracing:  tp,
	}
	if cfg.Ingest.HTTP {
		a.server.Handle(ingest.SamplesPath, ingest.NewHTTPHandler(meter.Wrap(ingest.SourceHTTP, rep), log))
	}
	if cfg.Ingest.WebSocket {
		a.stream = ingest.NewStreamHandler(meter.Wrap(ingest.SourceWebSocket, rep), log)
		a.server.Handle(ingest.StreamPath, a.stream)
	}
	return a, nil
}

func (a *app) start() error {
	if err := a.server.Start(); err != nil {
		return fmt.Errorf("serve metrics on %s: %w", a.cfg.ListenAddr(), err)
	}
	return nil
}

// wait runs the publish scheduler and every configured producer until ctx ends or one
// of them fails, then stops the producers, publishes what is still buffered and shuts
// the server down.
func (a *app) wait(ctx context.Context) error {
	var producer *loadProducer
	if a.cfg.Load.Enabled() {
		var err error
		producer, err = newLoadProducer(a.cfg, a.meter.Wrap(ingest.SourceLoad, a.reporter), a.tracing, a.log)
		if err != nil {
			return errors.Join(err, a.shutdown())
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reporter.NewScheduler(a.reporter, a.cfg.Interval, a.log).Run(gctx)
	})
	g.Go(func() error {
		select {
		case err := <-a.server.Done():
			if err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})
	if path := a.cfg.Ingest.File; path != "" {
		source := ingest.NewFileSource(path, a.meter.Wrap(ingest.SourceFile, a.reporter), a.log)
		g.Go(func() error {
			return source.Run(gctx)
		})
	}
	if path := a.cfg.Ingest.Replay; path != "" {
		g.Go(func() error {
			n, err := ingest.Replay(path, a.meter.Wrap(ingest.SourceReplay, a.reporter))
			if err != nil {
				return fmt.Errorf("replay %s: %w", path, err)
			}
			a.log.WithField("samples", n).Info("replayed samples")
			return nil
		})
	}
	if producer != nil {
		g.Go(func() error {
			producer.Run(gctx)
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		a.log.WithError(err).Error("stopping")
	}
	return errors.Join(err, a.shutdown())
}

// shutdown stops the HTTP and WebSocket producers, then runs the final publish cycle.
func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.stream != nil {
		a.stream.Close()
	}
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
	}
	report, err := a.reporter.OnShutdown(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	a.log.WithFields(logrus.Fields{
		"cycle":   report.ID.String(),
		"samples": report.Samples,
		"skipped": report.Skipped,
	}).Debug("final publish cycle done")

	if err := a.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	return errors.Join(errs...)
}

func (a *app) closeTracing() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = a.tracing.Shutdown(ctx)
}

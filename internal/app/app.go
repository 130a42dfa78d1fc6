// Package app assembles the extension layer, the simulated host and their
// supporting services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"extlayer/internal/config"
	"extlayer/internal/diagnostics"
	"extlayer/internal/extension"
	"extlayer/internal/fatal"
	"extlayer/internal/hostsim"
	"extlayer/internal/otel"
	"extlayer/internal/savestore"
	"extlayer/internal/telemetry"
	"extlayer/logging"
	loggingSinks "extlayer/logging/sinks"
)

const serviceName = "extlayer"

// Options override pieces of the runtime, mostly for tests.
type Options struct {
	Logger  telemetry.Logger
	Console io.Writer
	// Fatal replaces the dump-and-exit handler.
	Fatal extension.FatalHandler
}

// Runtime holds every long-lived component of a process.
type Runtime struct {
	Config   config.Config
	Logger   telemetry.Logger
	Router   *logging.Router
	Events   *diagnostics.Broadcaster
	World    *hostsim.World
	Saves    *savestore.Store
	Counters *telemetry.Counters

	closers []func(context.Context) error
}

// Start builds a runtime from cfg. Close must be called to release it.
func Start(ctx context.Context, cfg config.Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	rt := &Runtime{Config: cfg, Logger: logger, Counters: &telemetry.Counters{}}

	shutdownTracing, err := otel.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	rt.closers = append(rt.closers, shutdownTracing)

	router, err := rt.buildRouter(cfg, opts)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	rt.Router = router
	rt.closers = append(rt.closers, router.Close)

	handler := opts.Fatal
	if handler == nil {
		handler = fatal.NewHandler(fatal.Options{Logger: logger, DumpDir: cfg.DumpDir})
	}

	world, err := hostsim.New(ctx, cfg.World(), hostsim.Deps{
		Publisher: router,
		Logger:    logger,
		Counters:  rt.Counters,
		Fatal:     handler,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("start world: %w", err)
	}
	rt.World = world
	rt.closers = append(rt.closers, func(context.Context) error {
		world.Close()
		return nil
	})

	saves, err := savestore.Open(cfg.SaveDB, savestore.WithPublisher(router))
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("open save store: %w", err)
	}
	rt.Saves = saves
	rt.closers = append(rt.closers, func(context.Context) error { return saves.Close() })

	return rt, nil
}

func (rt *Runtime) buildRouter(cfg config.Config, opts Options) (*logging.Router, error) {
	logConfig := cfg.Logging()
	logConfig.Fields = map[string]any{"service": serviceName}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	var sinks []logging.NamedSink
	if logConfig.HasSink(config.SinkConsole) {
		sinks = append(sinks, logging.NamedSink{Name: config.SinkConsole, Sink: loggingSinks.NewConsoleSink(console, logConfig.Console)})
	}
	if logConfig.HasSink(config.SinkJSON) {
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return file.Close() })
		sinks = append(sinks, logging.NamedSink{Name: config.SinkJSON, Sink: loggingSinks.NewJSON(file, logConfig.JSON)})
	}
	rt.Events = diagnostics.NewBroadcaster()
	sinks = append(sinks, logging.NamedSink{Name: "diagnostics", Sink: rt.Events})
	return logging.NewRouter(nil, logConfig, sinks)
}

// Close releases components in reverse start order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

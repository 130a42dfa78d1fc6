package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"extlayer/internal/diagnostics"
	"extlayer/internal/observability"
	"extlayer/internal/savestore"
)

// ServeOptions configure Serve.
type ServeOptions struct {
	// AutosaveEvery writes the "autosave" slot every n frames. Zero disables it.
	AutosaveEvery uint64
	// Ready, when set, receives the bound listener address once the
	// diagnostics server is accepting connections.
	Ready func(addr string)
}

// Serve ticks the world at the configured frame interval and serves the
// diagnostics endpoints until ctx is cancelled.
func Serve(ctx context.Context, rt *Runtime, opts ServeOptions) error {
	var logger *log.Logger
	if provider, ok := rt.Logger.(interface{ StandardLogger() *log.Logger }); ok {
		logger = provider.StandardLogger()
	}
	handler := observability.Wrap(
		diagnostics.NewHandler(rt.World, rt.Events, diagnostics.HandlerConfig{Logger: logger}),
		rt.Config.Observability(),
	)
	srv := &http.Server{Addr: rt.Config.DiagAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen: %w", err)
	}
	rt.Logger.Printf("diagnostics listening on %s", ln.Addr())
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("diagnostics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return tick(gctx, rt, opts)
	})
	return g.Wait()
}

func tick(ctx context.Context, rt *Runtime, opts ServeOptions) error {
	ticker := time.NewTicker(rt.Config.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame := rt.World.Step()
			if opts.AutosaveEvery == 0 || frame%opts.AutosaveEvery != 0 {
				continue
			}
			if err := autosave(ctx, rt); err != nil {
				rt.Logger.Printf("autosave at frame %d failed: %v", frame, err)
			}
		}
	}
}

func autosave(ctx context.Context, rt *Runtime) error {
	sum, err := rt.World.Checksum(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := rt.World.Save(ctx, &buf); err != nil {
		return err
	}
	return rt.Saves.Put(ctx, savestore.Slot{
		Name:     "autosave",
		Session:  rt.World.Session().String(),
		Frame:    rt.World.Frame(),
		Checksum: sum,
		Objects:  rt.World.Len(),
		Payload:  buf.Bytes(),
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/databus/internal/config"
	"github.com/dshills/databus/internal/event"
	"github.com/dshills/databus/internal/metrics"
	"github.com/dshills/databus/internal/script"
	"github.com/dshills/databus/internal/watch"
)

// runner owns the current script host. Watch mode replaces the host on
// every change; metrics read whichever host is current.
type runner struct {
	opts *options
	log  *zap.Logger

	mu   sync.Mutex
	cfg  config.Config
	host *script.Host
}

// Stats implements metrics.StatsSource.
func (r *runner) Stats() event.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host == nil {
		return event.Stats{}
	}
	return r.host.Bus().Stats()
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	log, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return err
	}
	defer log.Sync()

	r := &runner{opts: opts, log: log}
	if err := r.loadConfig(); err != nil {
		return err
	}
	if err := r.start(); err != nil {
		r.stop()
		return err
	}

	if opts.watch || opts.metricsAddr != "" {
		if err := r.serve(ctx); err != nil {
			r.stop()
			return err
		}
	}

	stats := r.Stats()
	r.stop()

	if opts.stats {
		out, err := statsJSON(stats)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, out)
	}
	return nil
}

// loadConfig reads the config file and applies flag overrides.
func (r *runner) loadConfig() error {
	cfg := config.Default()
	if r.opts.configPath != "" {
		var err error
		if cfg, err = config.Load(r.opts.configPath); err != nil {
			return err
		}
	}
	if r.opts.debug {
		cfg.Debug = true
	}

	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	return nil
}

// start runs the scripts and emits in a fresh host and makes it current.
func (r *runner) start() error {
	r.mu.Lock()
	cfg := r.cfg
	r.mu.Unlock()

	h := script.NewHost(
		script.WithLogger(r.log),
		script.WithBusOptions(cfg.Options()...),
	)

	r.mu.Lock()
	old := r.host
	r.host = h
	r.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	for _, path := range r.opts.scripts {
		if err := h.DoFile(path); err != nil {
			return fmt.Errorf("running %s: %w", path, err)
		}
		r.log.Info("script loaded", zap.String("path", path))
	}

	for _, e := range r.opts.emits {
		if err := h.Bus().TriggerSync(e.channel, e.payload); err != nil {
			return err
		}
	}
	h.Drain()
	return nil
}

// stop closes the current host.
func (r *runner) stop() {
	r.mu.Lock()
	h := r.host
	r.host = nil
	r.mu.Unlock()
	if h != nil {
		_ = h.Close()
	}
}

// serve runs the metrics endpoint and the watcher until ctx is done.
func (r *runner) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector("main", r))
		if err := r.serveMetrics(ctx, g, reg); err != nil {
			return err
		}
	}

	if r.opts.watch {
		w, err := r.newWatcher()
		if err != nil {
			return err
		}
		defer w.Close()
		r.log.Info("watching files", zap.Strings("files", w.Files()))

		g.Go(func() error {
			return w.Run(ctx, r.reload)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

func (r *runner) serveMetrics(ctx context.Context, g *errgroup.Group, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", r.opts.metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}

func (r *runner) newWatcher() (*watch.Watcher, error) {
	w, err := watch.New(watch.WithLogger(r.log))
	if err != nil {
		return nil, err
	}

	paths := append([]string(nil), r.opts.scripts...)
	if r.opts.configPath != "" {
		paths = append(paths, r.opts.configPath)
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
	}
	return w, nil
}

// reload re-runs everything after a change. Failures are logged and the
// watcher keeps going.
func (r *runner) reload(ev watch.Event) {
	r.log.Info("change detected", zap.String("path", ev.Path), zap.Stringer("op", ev.Op))

	if r.opts.configPath != "" && sameFile(ev.Path, r.opts.configPath) {
		if err := r.loadConfig(); err != nil {
			r.log.Error("config reload failed", zap.Error(err))
			return
		}
	}
	if err := r.start(); err != nil {
		r.log.Error("script reload failed", zap.Error(err))
	}
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

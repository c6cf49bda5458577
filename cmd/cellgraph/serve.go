package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/cellgraph/internal/config"
	"github.com/vango-dev/cellgraph/internal/errors"
	"github.com/vango-dev/cellgraph/pkg/live"
	"github.com/vango-dev/cellgraph/pkg/middleware"
	"github.com/vango-dev/cellgraph/pkg/reactive"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		addr string
		tick time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Stream a reactive demo list to browsers",
		Long: `Start an HTTP server that keeps a list cell, reshuffles it on a
ticker, and streams every change to connected browsers as reconcile ops.

Routes:
  /          HTML client
  /ws        live feed (path from live.path)
  /shuffle   POST to reshuffle immediately
  /metrics   Prometheus metrics (when metrics.enabled)
  /healthz   health check

Examples:
  cellgraph serve
  cellgraph serve --addr=:9000 --tick=250ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Live.Addr = addr
			}
			if tick > 0 {
				cfg.Live.TickInterval = tick.String()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from cellgraph.json)")
	cmd.Flags().DurationVar(&tick, "tick", 0, "Reshuffle interval (default from cellgraph.json)")

	return cmd
}

// demo is the reactive state behind `cellgraph serve`. Everything except
// the feed's HTTP side runs on loop.
type demo struct {
	cfg     *config.Config
	logger  *slog.Logger
	loop    *reactive.Loop
	items   *reactive.Cell[[]string]
	count   *reactive.Derived[int]
	feed    *live.Feed[string]
	metrics *middleware.Metrics
	gather  prometheus.Gatherer
	rng     *rand.Rand
	next    int
}

func newDemo(cfg *config.Config, logger *slog.Logger) (*demo, error) {
	d := &demo{
		cfg:    cfg,
		logger: logger,
		loop:   reactive.NewLoop(),
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}

	var instruments []reactive.Instrument
	var feedMetrics live.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		d.metrics = middleware.Prometheus(
			middleware.WithRegistry(reg),
			middleware.WithNamespace(cfg.Metrics.Namespace),
		)
		d.gather = reg
		instruments = append(instruments, d.metrics)
		feedMetrics = d.metrics
	}
	if cfg.Tracing.Enabled {
		instruments = append(instruments, middleware.OpenTelemetry(
			middleware.WithTracerName(cfg.Tracing.TracerName),
		))
	}

	s := reactive.NewScheduler(
		reactive.WithPoster(d.loop),
		reactive.WithLogger(logger),
		reactive.WithCycleLimit(cfg.Scheduler.CycleLimit),
		reactive.WithInstrument(reactive.Instruments(instruments...)),
	)

	initial := make([]string, cfg.Live.Items)
	for i := range initial {
		initial[i] = d.newKey()
	}
	d.items = reactive.NewCell(s, initial)
	d.count = reactive.Derive(s, d.items, func(items []string) int { return len(items) })
	d.count.Subscribe(func(n int) {
		logger.Debug("demo list resized", "items", n)
	})

	feed, err := live.NewFeed(d.items, func(k string) string { return k }, live.Config{
		Logger:       logger,
		Metrics:      feedMetrics,
		WriteTimeout: cfg.WriteTimeout(),
	})
	if err != nil {
		return nil, err
	}
	d.feed = feed
	return d, nil
}

func (d *demo) newKey() string {
	d.next++
	return fmt.Sprintf("item-%02d", d.next)
}

// step reshuffles the list, sometimes dropping or adding an item. Runs on
// the loop.
func (d *demo) step() {
	d.items.Update(func(cur []string) []string {
		next := slices.Clone(cur)
		for i := 0; i < 1+len(next)/4; i++ {
			a, b := d.rng.IntN(len(next)), d.rng.IntN(len(next))
			next[a], next[b] = next[b], next[a]
		}
		switch d.rng.IntN(4) {
		case 0:
			if len(next) > 2 {
				i := d.rng.IntN(len(next))
				next = slices.Delete(next, i, i+1)
			}
		case 1:
			if len(next) < 2*d.cfg.Live.Items {
				next = slices.Insert(next, d.rng.IntN(len(next)+1), d.newKey())
			}
		}
		return next
	})
}

type health struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Seq     uint64 `json:"seq"`
	Items   int    `json:"items"`
}

func (d *demo) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Handle("/", live.Page("cellgraph", d.cfg.Live.Path))
	r.Handle(d.cfg.Live.Path, d.feed)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health{
			Status:  "ok",
			Clients: d.feed.ClientCount(),
			Seq:     d.feed.Seq(),
			Items:   len(d.feed.Items()),
		})
	})

	r.Post("/shuffle", func(w http.ResponseWriter, req *http.Request) {
		d.loop.Do(d.step)
		w.WriteHeader(http.StatusAccepted)
	})

	if d.gather != nil {
		r.Handle(d.cfg.Metrics.Path, promhttp.HandlerFor(d.gather, promhttp.HandlerOpts{}))
	}
	return r
}

// run drives the loop until ctx is done. Cycle errors are logged and the
// loop keeps going; the scheduler has already dropped the offending queue.
func (d *demo) run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.TickInterval())
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.loop.Do(d.step)
			}
		}
	}()

	for {
		err := d.loop.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		var cycle *reactive.CycleError
		if !stderrors.As(err, &cycle) {
			return runtimeError(err)
		}
		d.logger.Error("cellgraph: cycle broken", "error", runtimeError(err))
	}
}

// runtimeError attaches a registry code to errors surfacing from the
// reactive runtime. Other errors are returned unchanged.
func runtimeError(err error) error {
	var cycle *reactive.CycleError
	switch {
	case stderrors.As(err, &cycle):
		return errors.New("E001").
			WithDetail(fmt.Sprintf("Flushes re-filled the queue %d times in a row; %d pending items were dropped.",
				cycle.Generations, cycle.Dropped)).
			WithSuggestion("Look for an observer that writes a cell it depends on").
			Wrap(err)
	case stderrors.Is(err, reactive.ErrCircularDependency):
		return errors.New("E002").Wrap(err)
	case stderrors.Is(err, reactive.ErrObserverPanic):
		return errors.New("E003").Wrap(err)
	}
	var observer *reactive.ObserverError
	if stderrors.As(err, &observer) {
		return errors.New("E003").Wrap(err)
	}
	return err
}

func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	logger := cfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	d, err := newDemo(cfg, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Live.Addr)
	if err != nil {
		return errors.New("E061").
			WithDetail("Could not listen on " + cfg.Live.Addr + ".").
			WithSuggestion("Pick another address with --addr").
			Wrap(err)
	}
	srv := &http.Server{
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	success(cmd.OutOrStdout(), "Serving on http://%s", ln.Addr())

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err, ok := <-serveErr; ok {
			logger.Error("cellgraph: server stopped", "error", err)
			cancel()
		}
	}()

	runErr := d.run(loopCtx)
	d.feed.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("cellgraph: shutdown", "error", err)
	}
	return runErr
}

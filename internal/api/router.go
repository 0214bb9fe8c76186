package api

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/api/handlers"
	mw "github.com/Harshitk-cp/havi-knowledge/internal/api/middleware"
	"github.com/Harshitk-cp/havi-knowledge/internal/buildconfig"
	"github.com/Harshitk-cp/havi-knowledge/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ExpiredCounter reports how many pending inferences are past expiry.
type ExpiredCounter interface {
	Count(ctx context.Context) (int, error)
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	StoreDriver    string
	// Expiry adds expired_pending to /metrics when set.
	Expiry ExpiredCounter
}

// App holds the router and the counters behind /metrics.
type App struct {
	Router       *chi.Mux
	opts         Options
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
	metrics      *mw.MetricsCollector
}

// NewApp builds the HTTP surface over svc. Background work started here
// stops when ctx is done.
func NewApp(ctx context.Context, svc *service.KnowledgeService, db Pinger, opts Options, logger *zap.Logger) *App {
	inferenceHandler := handlers.NewInferenceHandler(svc, logger)
	knowledgeHandler := handlers.NewKnowledgeHandler(svc, logger)

	r := chi.NewRouter()
	app := &App{Router: r, opts: opts, startTime: time.Now()}
	app.metrics = mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Order matters: the request id and span must exist before logging reads them.
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Tracing)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	if opts.RateLimitRPS > 0 {
		r.Use(mw.RateLimit(ctx, opts.RateLimitRPS, opts.RateLimitBurst))
	}

	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", inferenceHandler.Turn)

		r.Route("/inferences", func(r chi.Router) {
			r.Get("/", inferenceHandler.List)
			r.Get("/{id}", inferenceHandler.GetByID)
			r.Post("/{id}/resolve", inferenceHandler.Resolve)
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", knowledgeHandler.List)
			r.Put("/explicit", knowledgeHandler.SetExplicit)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", knowledgeHandler.GetByID)
				r.Post("/confirm", knowledgeHandler.Confirm)
				r.Post("/reject", knowledgeHandler.Reject)
				r.Post("/archive", knowledgeHandler.Archive)
				r.Post("/edit", knowledgeHandler.Edit)
			})
		})

		r.Route("/prompts", func(r chi.Router) {
			r.Post("/select", knowledgeHandler.SelectPrompts)
			r.Post("/mark", knowledgeHandler.MarkPrompts)
		})
	})

	return app
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": buildconfig.Version()})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		body := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"throttled":      app.metrics.Throttled(),
			"goroutines":     runtime.NumGoroutine(),
			"store_driver":   app.opts.StoreDriver,
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"build":      buildconfig.VersionInfo(),
			"go_version": runtime.Version(),
		}
		if app.opts.Expiry != nil {
			if n, err := app.opts.Expiry.Count(r.Context()); err == nil {
				body["expired_pending"] = n
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

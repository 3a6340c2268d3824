// Package http exposes the ledger engine as a small JSON API for operators.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/services"
)

// ArchiveReader lists archived entries.
type ArchiveReader interface {
	ArchivedPeriods(ctx context.Context) ([]int, error)
	ListArchived(ctx context.Context, periodID int) ([]core.ArchivedLedgerEntry, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures NewServer.
type Options struct {
	AutoRollover      bool
	RequestsPerMinute int // mutating endpoints only
	Logger            *applog.Logger
	Now               func() time.Time
}

type Server struct {
	http.Server
	engine  *services.Engine
	archive ArchiveReader
	store   Pinger
	now     func() time.Time
	logger  *applog.Logger

	limiter      *ratelimit.Limiter
	details      *cache.LRUCache[services.PeriodDetail]
	cacheManager *cache.Manager
	gate         *rolloverGate

	shutdownOnce sync.Once
}

// NewServer wires the routes and middleware, returning a ready-to-run server.
func NewServer(addr string, engine *services.Engine, archive ArchiveReader, store Pinger, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		engine:       engine,
		archive:      archive,
		store:        store,
		now:          opts.Now,
		logger:       opts.Logger.WithComponent(applog.ComponentHTTP),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		details:      cache.NewLRUCache[services.PeriodDetail](64, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.details)
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.gate = &rolloverGate{
		runner: engine.Rollover,
		cal:    engine.Calendar,
		today:  s.today,
		onRun: func(d services.Diagnostics) {
			s.invalidate()
		},
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/period", s.handlePeriod)
	api.HandleFunc("GET /api/summaries/{year}/{month}", s.handleSummary)
	api.HandleFunc("GET /api/summaries/{year}/{month}/categories", s.handleCategoryTotals)
	api.HandleFunc("GET /api/archive", s.handleArchivedPeriods)
	api.HandleFunc("GET /api/archive/{period_id}", s.handleArchive)

	limited := s.limiter.Middleware(security.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded", applog.FieldClientIP, security.ClientIP(r), applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", RequestID: applog.RequestID(r.Context())})
	})
	api.Handle("POST /api/summaries/{year}/{month}/regenerate", limited(http.HandlerFunc(s.handleRegenerate)))
	api.Handle("POST /api/horizon", limited(http.HandlerFunc(s.handleHorizon)))
	api.Handle("POST /api/recurring/{id}/repropagate", limited(http.HandlerFunc(s.handleRepropagate)))
	api.Handle("POST /api/rollover", limited(http.HandlerFunc(s.handleRollover)))
	api.Handle("POST /api/reset", limited(http.HandlerFunc(s.handleReset)))

	var apiHandler http.Handler = api
	if opts.AutoRollover {
		apiHandler = s.gate.Middleware(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", apiHandler)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           applog.Middleware(opts.Logger)(headers.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) today() core.Date {
	return core.DateOf(s.now())
}

// invalidate drops cached period views after any write.
func (s *Server) invalidate() {
	s.details.Clear()
}

// Shutdown stops the background routines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

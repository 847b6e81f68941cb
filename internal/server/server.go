package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/events"
	"github.com/dkaragian/verdict/internal/modules/aggregation"
	aggregationhandlers "github.com/dkaragian/verdict/internal/modules/aggregation/handlers"
	"github.com/dkaragian/verdict/internal/modules/allocation"
	allocationhandlers "github.com/dkaragian/verdict/internal/modules/allocation/handlers"
	"github.com/dkaragian/verdict/internal/modules/calibration"
	calibrationhandlers "github.com/dkaragian/verdict/internal/modules/calibration/handlers"
	"github.com/dkaragian/verdict/internal/modules/executions"
	executionshandlers "github.com/dkaragian/verdict/internal/modules/executions/handlers"
	"github.com/dkaragian/verdict/internal/modules/health"
	healthhandlers "github.com/dkaragian/verdict/internal/modules/health/handlers"
	"github.com/dkaragian/verdict/internal/modules/reconciliation"
	reconciliationhandlers "github.com/dkaragian/verdict/internal/modules/reconciliation/handlers"
	"github.com/dkaragian/verdict/internal/modules/risk"
	riskhandlers "github.com/dkaragian/verdict/internal/modules/risk/handlers"
	"github.com/dkaragian/verdict/internal/modules/taxlots"
	taxlotshandlers "github.com/dkaragian/verdict/internal/modules/taxlots/handlers"
	"github.com/dkaragian/verdict/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log      zerolog.Logger
	Cfg      *config.Config
	LedgerDB *database.DB
	ConfigDB *database.DB
	EventBus *events.Bus

	Aggregator     *aggregation.Aggregator
	Calibrator     *calibration.Calibrator
	RiskScorer     *risk.Scorer
	HealthRepo     *health.Repository
	HealthMonitor  *health.Monitor
	WeightBook     *health.WeightBook
	ExecutionsRepo *executions.Repository
	ReconEngine    *reconciliation.Engine
	ReconRepo      *reconciliation.Repository
	TaxLotEngine   *taxlots.Engine
	AllocationRepo *allocation.Repository

	Scheduler  *scheduler.Scheduler
	FillStream FillStreamStatus
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            Config
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.systemHandlers = NewSystemHandlers(
		cfg.Log,
		cfg.Cfg.DataDir,
		cfg.LedgerDB,
		cfg.ConfigDB,
		cfg.Scheduler,
		cfg.FillStream,
	)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers job instances for manual triggering via API
func (s *Server) SetJobs(reconciliationJob, healthJob, backupJob, walCheckpointsJob scheduler.Job) {
	s.systemHandlers.SetJobs(reconciliationJob, healthJob, backupJob, walCheckpointsJob)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Unified events stream (SSE)
		eventsStreamHandler := NewEventsStreamHandler(s.cfg.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		// System monitoring and manual job triggers
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/reconciliation", s.systemHandlers.HandleTriggerReconciliation)
				r.Post("/health-evaluation", s.systemHandlers.HandleTriggerHealthEvaluation)
				r.Post("/backup", s.systemHandlers.HandleTriggerBackup)
				r.Post("/check-wal-checkpoints", s.systemHandlers.HandleTriggerWALCheckpoints)
			})
		})

		// Signal aggregation
		analysisHandler := aggregationhandlers.NewHandler(s.cfg.Aggregator, s.log)
		r.Get("/analysis/{symbol}", analysisHandler.HandleAnalyzeSymbol)

		// Confidence calibration
		calibrationHandler := calibrationhandlers.NewHandler(s.cfg.Calibrator, s.log)
		r.Route("/calibration", func(r chi.Router) {
			r.Get("/curves", calibrationHandler.HandleGetCurves)
			r.Get("/{strategy}", calibrationHandler.HandleCalibrate)
			r.Post("/{strategy}/refresh", calibrationHandler.HandleRefresh)
		})

		// Risk scoring
		riskHandler := riskhandlers.NewHandler(s.cfg.RiskScorer, s.log)
		r.Get("/risk/{symbol}", riskHandler.HandleGetRiskRadar)

		// Strategy health
		healthHandler := healthhandlers.NewHandler(s.cfg.HealthRepo, s.cfg.HealthMonitor, s.cfg.WeightBook, s.log)
		r.Route("/strategies", func(r chi.Router) {
			r.Get("/health", healthHandler.HandleGetAll)
			r.Get("/{name}/health", healthHandler.HandleGetStrategy)
			r.Post("/{name}/evaluate", healthHandler.HandleEvaluate)
			r.Post("/{name}/re-enable", healthHandler.HandleReEnable)
		})

		// Alert executions
		executionsHandler := executionshandlers.NewHandler(s.cfg.ExecutionsRepo, s.log)
		r.Route("/executions", func(r chi.Router) {
			r.Post("/", executionsHandler.HandleCreate)
			r.Post("/{id}/close", executionsHandler.HandleClose)
			r.Get("/strategy/{strategy}", executionsHandler.HandleGetByStrategy)
		})

		// Reconciliation
		reconciliationHandler := reconciliationhandlers.NewHandler(s.cfg.ReconEngine, s.cfg.ReconRepo, s.log)
		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/log", reconciliationHandler.HandleGetRecent)
			r.Post("/run", reconciliationHandler.HandleRunPass)
		})

		// Tax lots
		taxlotsHandler := taxlotshandlers.NewHandler(s.cfg.TaxLotEngine, s.log)
		r.Route("/taxlots", func(r chi.Router) {
			r.Get("/summary/{year}", taxlotsHandler.HandleYearEndSummary)
			r.Post("/fills", taxlotsHandler.HandleApplyFill)
			r.Get("/{symbol}", taxlotsHandler.HandleGetLots)
		})

		// Target allocations
		allocationHandler := allocationhandlers.NewHandler(s.cfg.AllocationRepo, s.log)
		r.Route("/allocations", func(r chi.Router) {
			r.Get("/", allocationHandler.HandleGetAll)
			r.Put("/", allocationHandler.HandleUpsert)
			r.Post("/replace", allocationHandler.HandleReplaceAll)
			r.Delete("/{id}", allocationHandler.HandleDelete)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

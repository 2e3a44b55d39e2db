// Package api serves the REST surface over configurations, workflows, the
// discovery queue and reports.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/store"
	"github.com/sells-group/deal-sourcing/internal/workflow"
)

// Runner starts pipeline work in the background.
type Runner interface {
	Start(ctx context.Context, req workflow.RunRequest) (*model.Workflow, error)
	StartConfiguration(ctx context.Context, configID string, trigger model.TriggerType) (*model.Workflow, error)
	StartResearchApproved(ctx context.Context, itemIDs []string)
}

// Reloader re-registers scheduled configurations after they change.
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

// Server holds the handler dependencies.
type Server struct {
	store       store.Store
	runner      Runner
	reloader    Reloader
	credentials func() []string
	corsOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithReloader sets the scheduler to refresh on configuration changes.
func WithReloader(r Reloader) Option {
	return func(s *Server) {
		s.reloader = r
	}
}

// WithCredentialCheck sets the function the health check uses to list
// missing credentials.
func WithCredentialCheck(fn func() []string) Option {
	return func(s *Server) {
		s.credentials = fn
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// New creates a Server.
func New(st store.Store, runner Runner, opts ...Option) *Server {
	s := &Server{
		store:       st,
		runner:      runner,
		credentials: func() []string { return nil },
		corsOrigins: []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/configurations", func(r chi.Router) {
			r.Get("/", s.listConfigurations)
			r.Post("/", s.createConfiguration)
			r.Get("/{id}", s.getConfiguration)
			r.Put("/{id}", s.updateConfiguration)
			r.Delete("/{id}", s.deleteConfiguration)
			r.Post("/{id}/run", s.runConfiguration)
		})

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.listWorkflows)
			r.Post("/", s.createWorkflow)
			r.Get("/{id}", s.getWorkflow)
			r.Get("/{id}/queue", s.workflowQueue)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.listQueue)
			r.Post("/bulk-approve", s.bulkApprove)
			r.Post("/bulk-reject", s.bulkReject)
			r.Get("/{id}", s.getQueueItem)
			r.Post("/{id}/approve", s.approveItem)
			r.Post("/{id}/reject", s.rejectItem)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.listReports)
			r.Get("/{id}", s.getReport)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// reload refreshes the scheduler; failures are logged only.
func (s *Server) reload(ctx context.Context) {
	if s.reloader == nil {
		return
	}
	if _, err := s.reloader.Reload(ctx); err != nil {
		zap.L().Warn("scheduler reload failed", zap.Error(err))
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/health"
	"github.com/xela07ax/cams-router/internal/router"
)

// Ingestor — вход в пайплайн маршрутизации.
type Ingestor interface {
	Ingest(ctx context.Context, req router.IngestionRequest) domain.Outcome
}

// DirectoryService — management-поверхность каталога.
type DirectoryService interface {
	Register(ctx context.Context, m *domain.AgentMapping) (*domain.AgentMapping, error)
	Resolve(ctx context.Context, address string) (*domain.AgentMapping, error)
	Mutate(ctx context.Context, address string, patch domain.MappingPatch, updatedBy string) (*domain.AgentMapping, error)
	Remove(ctx context.Context, address string) error
	List(ctx context.Context, f domain.MappingFilter) ([]*domain.AgentMapping, error)
}

// HealthRecorder — прием health-репортов агентов.
type HealthRecorder interface {
	Record(ctx context.Context, rep health.Report) error
}

type Server struct {
	router    *chi.Mux
	logger    *zap.Logger
	pipeline  Ingestor
	directory DirectoryService
	health    HealthRecorder
	limiter   *rate.Limiter
}

func NewServer(logger *zap.Logger, pipeline Ingestor, directory DirectoryService, healthSvc HealthRecorder, ingestRPS float64, ingestBurst int) *Server {
	if ingestRPS <= 0 {
		ingestRPS = 100
	}
	if ingestBurst <= 0 {
		ingestBurst = 20
	}

	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.Named("http-api"),
		pipeline:  pipeline,
		directory: directory,
		health:    healthSvc,
		limiter:   rate.NewLimiter(rate.Limit(ingestRPS), ingestBurst),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// Глобальные инфраструктурные Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Liveness для мониторинга
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Прием сообщений (hot path) — под лимитером
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/v1/messages", s.handleIngest)
	})

	// Management-поверхность каталога
	r.Route("/v1/agent-inboxes", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleRegister)
		r.Route("/{address}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Put("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
		})
	})

	// Health-репорты агентов
	r.Post("/v1/agent-health-check", s.handleHealthReport)
}

// rateLimit отсекает перегруз на приеме без ожидания в очереди.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

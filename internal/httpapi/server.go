package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/domain"
	apimw "github.com/hamed0406/livemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/livemonitor/internal/repo"
)

const (
	maxBodyBytes   = 32 << 10
	requestTimeout = 32 * time.Second
)

// Lifecycle is told about every persisted change so check loops follow the store.
type Lifecycle interface {
	OnCreate(id domain.TargetID, uri string, intervalMS int64) error
	OnUpdate(id domain.TargetID, patch domain.TargetPatch) error
	OnDelete(id domain.TargetID)
}

// Counter reports a size for the health endpoint.
type Counter interface {
	Len() int
}

type Server struct {
	Logger    *zap.Logger
	Store     repo.ServiceStore
	Engine    Lifecycle
	Stream    http.Handler // websocket endpoint; nil disables /ws
	Targets   Counter
	Loops     Counter
	Observers Counter

	locks idLocks
}

type RouterOptions struct {
	Keys               apimw.Keys
	AllowedOrigins     []string
	HealthAllowedHosts []string
	PublicRPM          int
	PublicBurst        int
	AdminRPM           int
	AdminBurst         int
	Production         bool
}

func NewServer(l *zap.Logger, store repo.ServiceStore, engine Lifecycle) *Server {
	return &Server{Logger: l, Store: store, Engine: engine}
}

func (s *Server) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(apimw.AccessLog(s.Logger))
	r.Use(chimw.Recoverer)
	if opts.Production {
		r.Use(apimw.SecurityHeaders)
	}

	r.Get("/healthz", s.handleHealth(opts.HealthAllowedHosts))
	if s.Stream != nil {
		r.Handle("/ws", s.Stream)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(corsHandler(opts.AllowedOrigins))
		r.Use(chimw.Timeout(requestTimeout))
		r.Use(chimw.Compress(5))

		// public (read-only)
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(opts.PublicRPM, opts.PublicBurst))
			r.Use(apimw.RequireAny(opts.Keys))
			r.Get("/services", s.handleListServices)
		})

		// admin (writes)
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(opts.AdminRPM, opts.AdminBurst))
			r.Use(apimw.RequireAdmin(opts.Keys))
			r.Post("/services", s.handleCreateService)
			r.Patch("/services/{serviceId}", s.handleUpdateService)
			r.Delete("/services/{serviceId}", s.handleDeleteService)
		})
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

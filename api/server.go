/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap access log
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  Under /api additionally:
  5. Auth:       Bearer token -> principal employee
  6. RateLimit:  Token bucket per principal
  7. Require:    casbin role check per route group

ROUTE GROUPS:
  /healthz                 Liveness, no auth
  /api/me, /api/employees  Directory
  /api/leaves/*            Employee self-service
  /api/manager/leaves/*    Review
  /api/admin/leaves/*      Export

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification and roles
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig carries the boundary settings the router needs.
type RouterConfig struct {
	JWTSecret         []byte
	AllowedOrigins    []string
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) (*chi.Mux, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	authz, err := NewAuthorizer()
	if err != nil {
		return nil, err
	}
	authn := NewAuthenticator(cfg.JWTSecret, h.Directory, logger)
	limiter := NewPrincipalRateLimiter(cfg.RequestsPerSecond, cfg.Burst)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(authn.Middleware)
		r.Use(limiter.Middleware)

		r.Get("/me", h.Me)
		r.With(authz.Require(objEmployees, actManage)).Post("/employees", h.CreateEmployee)

		// Employee self-service
		r.Route("/leaves", func(r chi.Router) {
			r.Use(authz.Require(objLeaves, actRequest))
			r.Post("/", h.SubmitLeave)
			r.Get("/", h.ListMyLeaves)
			r.Get("/balance", h.MyBalance)
			r.Delete("/{id}", h.CancelLeave)
		})

		// Review
		r.Route("/manager/leaves", func(r chi.Router) {
			r.Use(authz.Require(objLeaves, actReview))
			r.Get("/", h.ListAllLeaves)
			r.Get("/pending", h.ListPendingLeaves)
			r.Put("/{id}/decision", h.DecideLeave)
		})

		r.With(authz.Require(objReports, actExport)).Get("/admin/leaves/export", h.ExportLeaves)
	})

	return r, nil
}

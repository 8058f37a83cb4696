// Package httpapi exposes the REST surface: login/logout, ICD search and
// the guarded business endpoints. Routing is chi; protected routes are
// registered through the access guard, public ones are not.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/medcert/internal/logging"
	"github.com/dmitrijs2005/medcert/internal/server/config"
	"github.com/dmitrijs2005/medcert/internal/server/icd"
	"github.com/dmitrijs2005/medcert/internal/server/models"
	"github.com/dmitrijs2005/medcert/internal/server/ratelimit"
	"github.com/dmitrijs2005/medcert/internal/server/services"
	"github.com/dmitrijs2005/medcert/internal/server/sessions"
)

// UserDirectory is the slice of the users repository the API needs.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type Server struct {
	cfg      *config.Config
	logger   logging.Logger
	auth     *services.AuthService
	resolver *icd.Resolver
	users    UserDirectory
	guard    *Guard
	limiter  *ratelimit.Limiter
}

func NewServer(cfg *config.Config, logger logging.Logger, auth *services.AuthService,
	resolver *icd.Resolver, users UserDirectory, store sessions.Store) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		auth:     auth,
		resolver: resolver,
		users:    users,
		guard:    NewGuard(store, []byte(cfg.SecretKey), logger),
		limiter:  ratelimit.NewLimiter(),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(s.limiter, "auth", s.cfg.AuthRateLimit, s.cfg.AuthRateWindow))
			r.Post("/auth/login", s.handleLogin)
		})
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(s.limiter, "icd", s.cfg.IcdRateLimit, s.cfg.IcdRateWindow))
			r.Get("/icd/search", s.handleIcdSearch)
		})

		r.Get("/me", s.guard.Wrap(s.handleMe))
		r.Get("/admin/users/{email}", s.guard.Wrap(s.handleGetUser, "admin"))
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"

	"github.com/hongminglow/aria-characters/internal/account"
	"github.com/hongminglow/aria-characters/internal/auth"
	"github.com/hongminglow/aria-characters/internal/characters"
	"github.com/hongminglow/aria-characters/internal/config"
	"github.com/hongminglow/aria-characters/internal/http/apierr"
	"github.com/hongminglow/aria-characters/internal/http/handlers"
	"github.com/hongminglow/aria-characters/internal/http/respond"
	"github.com/hongminglow/aria-characters/internal/middleware"
	"github.com/hongminglow/aria-characters/internal/observability"
	"github.com/hongminglow/aria-characters/internal/ratelimit"
	"github.com/hongminglow/aria-characters/internal/storage"
)

// Deps are the collaborators the HTTP server is built from. Limiter,
// Metrics, Hasher and Logger fall back to defaults when nil.
type Deps struct {
	Config  config.Config
	Store   storage.Store
	Limiter ratelimit.Limiter
	Metrics *observability.Metrics
	Hasher  auth.PasswordHasher
	Logger  *slog.Logger
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up services, middleware and routes, and returns a ready server.
func New(d Deps) (*Server, error) {
	handler, err := NewHandler(d)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              d.Config.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}, nil
}

// NewHandler builds the full HTTP handler: CORS around the router.
func NewHandler(d Deps) (http.Handler, error) {
	if d.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.Nop{}
	}
	if d.Hasher == nil {
		d.Hasher = auth.NewBcryptHasher(0)
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics()
	}

	validator, err := characters.NewValidator()
	if err != nil {
		return nil, err
	}

	tokens := auth.NewTokenManager(d.Config.JWTSecret, d.Config.JWTIssuer, d.Config.JWTTTL)
	accounts := account.NewService(d.Store, d.Hasher, tokens)
	sheets := characters.NewService(d.Store, validator)

	authHandler := handlers.NewAuthHandler(accounts, handlers.CookieConfig{
		Name: d.Config.CookieName,
		TTL:  tokens.TTL(),
	}, d.Metrics, d.Logger)
	characterHandler := handlers.NewCharacterHandler(sheets, d.Logger)
	healthHandler := handlers.NewHealthHandler(time.Now(), d.Store, d.Logger)

	gate := middleware.Auth(tokens, d.Config.CookieName, d.Logger)
	limit := middleware.RateLimit(d.Limiter, d.Logger)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, apierr.CodeNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, apierr.CodeInvalidInput, "method not allowed")
	})
	r.Use(routerMiddleware(d)...)

	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	authRoutes := r.PathPrefix("/auth").Subrouter()
	authRoutes.Handle("/register", limit(http.HandlerFunc(authHandler.Register))).Methods(http.MethodPost)
	authRoutes.Handle("/login", limit(http.HandlerFunc(authHandler.Login))).Methods(http.MethodPost)
	authRoutes.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)
	authRoutes.Handle("/me", gate(http.HandlerFunc(authHandler.Me))).Methods(http.MethodGet)

	characterRoutes := r.PathPrefix("/characters").Subrouter()
	characterRoutes.Use(gate)
	characterRoutes.HandleFunc("", characterHandler.Create).Methods(http.MethodPost)
	characterRoutes.HandleFunc("", characterHandler.List).Methods(http.MethodGet)
	characterRoutes.HandleFunc("/{id}", characterHandler.Get).Methods(http.MethodGet)
	characterRoutes.HandleFunc("/{id}", characterHandler.Update).Methods(http.MethodPut)
	characterRoutes.HandleFunc("/{id}", characterHandler.Delete).Methods(http.MethodDelete)

	if slices.Contains(d.Config.CORSOrigins, "*") {
		d.Logger.Warn("CORS allows any origin; set CORS_ALLOWED_ORIGINS to an explicit list",
			slog.Any("origins", d.Config.CORSOrigins))
	}
	return middleware.CORS(d.Config.CORSOrigins, r), nil
}

// routerMiddleware runs outermost first. Recovery sits inside Logging so a
// recovered panic is still logged and counted as a 500.
func routerMiddleware(d Deps) []mux.MiddlewareFunc {
	return []mux.MiddlewareFunc{
		middleware.Logging(d.Logger, d.Metrics),
		middleware.Recovery(d.Logger),
		middleware.BodyLimit(d.Config.MaxBodyBytes),
	}
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Serve serves HTTP traffic on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	return s.inner.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cdpproxy/core"
	"cdpproxy/gateway/middleware"
	"cdpproxy/indexer"
)

const (
	GroupReads  = "reads"
	GroupWrites = "writes"

	// ScopeSubmit is required on the transaction route when auth is on.
	ScopeSubmit = "tx:submit"
)

var errWritesNeedAuth = errors.New("writes are disabled while gateway auth is off")

type Config struct {
	Node *core.Node
	// Indexer is optional; without it the event query route answers 503.
	Indexer       *indexer.Indexer
	Hub           *Hub
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
	// AllowUnauthenticatedWrites lets POST /v1/tx through while the
	// authenticator is disabled. Otherwise such writes answer 403.
	AllowUnauthenticatedWrites bool
}

type server struct {
	node    *core.Node
	indexer *indexer.Indexer
	hub     *Hub
	auth    *middleware.Authenticator
	logger  *slog.Logger
}

// New builds the gateway handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Node == nil {
		return nil, errors.New("gateway: node required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(0, logger)
	}
	obs := cfg.Observability
	if obs == nil {
		obs = middleware.NewObservability(middleware.ObservabilityConfig{}, logger)
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, logger)
	}
	auth := cfg.Authenticator
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	s := &server{node: cfg.Node, indexer: cfg.Indexer, hub: hub, auth: auth, logger: logger.With(slog.String("component", "gateway"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestIDs)
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(reads chi.Router) {
			reads.Use(limiter.Middleware(GroupReads))
			reads.Use(obs.Middleware(GroupReads))
			reads.Get("/accounts/{owner}", s.getAccount)
			reads.Get("/vaults/{id}", s.getVault)
			reads.Get("/automation/{id}", s.getAutomation)
			reads.Get("/automation/{id}/amounts", s.getAmounts)
			reads.Get("/management/{id}", s.getManagement)
			reads.Get("/events", s.listEvents)
			reads.Get("/events/ws", s.streamEvents)
		})
		v1.Group(func(writes chi.Router) {
			writes.Use(limiter.Middleware(GroupWrites))
			writes.Use(obs.Middleware(GroupWrites))
			writes.Use(requireWriteAuth(auth, cfg.AllowUnauthenticatedWrites))
			writes.Use(auth.Middleware(ScopeSubmit))
			writes.Post("/tx", s.submit)
		})
	})

	return otelhttp.NewHandler(r, "gateway"), nil
}

// requireWriteAuth refuses writes when nothing authenticates the sender,
// unless open writes were explicitly allowed.
func requireWriteAuth(auth *middleware.Authenticator, allowOpen bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Enabled() && !allowOpen {
				writeError(w, http.StatusForbidden, errWritesNeedAuth)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if _, err := s.node.Sequence(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

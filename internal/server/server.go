package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/clubnotify/internal/activity"
	"github.com/dukerupert/clubnotify/internal/database"
	"github.com/dukerupert/clubnotify/internal/handler"
	"github.com/dukerupert/clubnotify/internal/middleware"
	"github.com/dukerupert/clubnotify/internal/prefcache"
	"github.com/dukerupert/clubnotify/internal/push"
	"github.com/dukerupert/clubnotify/internal/routing"
	"github.com/dukerupert/clubnotify/internal/store"
	ws "github.com/dukerupert/clubnotify/internal/websocket"
)

// DefaultRateLimit is the per-client request budget per minute for routing calls.
const DefaultRateLimit = 120

type Config struct {
	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	VAPIDSubject     string
	LedgerCapacity   int
	DispatchInterval time.Duration
	// Redis enables the preferences cache when non-nil.
	Redis         redis.UniversalClient
	PrefsCacheTTL time.Duration
	RateLimit     int
	// WSSecret signs websocket connection tokens. When empty, /ws trusts
	// ?user_id= and must sit behind an authenticating proxy.
	WSSecret   string
	WSTokenTTL time.Duration
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	scorer        *activity.Scorer
	router        *routing.Router
	dispatcher    *push.Dispatcher
	routingH      *handler.RoutingHandler
	activityH     *handler.ActivityHandler
	preferencesH  *handler.PreferencesHandler
	pushH         *handler.PushHandler
	wsTokenH      *handler.WSTokenHandler
	wsVerify      ws.UserVerifier
	clientStore   *store.ClientStore
	rateLimiter   *middleware.RateLimiter
	rateLimit     int
	pushScheduler *push.Scheduler
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	scorer := activity.NewScorer()
	hub := ws.NewHub(logger.With("component", "websocket"), scorer)

	prefsStore := store.NewPreferencesStore(db)
	var prefs handler.PreferencesStore = prefsStore
	if cfg.Redis != nil {
		prefs = prefcache.New(cfg.Redis, prefsStore, cfg.PrefsCacheTTL, logger.With("component", "prefcache"))
	}

	routingLogger := logger.With("component", "routing")
	ledger := routing.NewLedger(cfg.LedgerCapacity, scorer)
	selector := routing.NewSelector(routing.LogSink{Logger: routingLogger})
	router := routing.NewRouter(prefs, scorer, selector, ledger, routingLogger)

	// Push notification service + dispatcher
	pushSt := store.NewPushStore(db)
	var pushSvc *push.Service
	var sender push.Sender
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
		sender = pushSvc
	}
	dispatcher := push.NewDispatcher(sender, pushSt, hub, ledger, logger.With("component", "dispatch"))

	var wsVerify ws.UserVerifier
	if cfg.WSSecret != "" {
		wsVerify = ws.TokenVerifier([]byte(cfg.WSSecret))
	}

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}

	return &Server{
		db:            db,
		hub:           hub,
		scorer:        scorer,
		router:        router,
		dispatcher:    dispatcher,
		routingH:      handler.NewRoutingHandler(router, dispatcher, hub, logger.With("component", "routing_handler")),
		activityH:     handler.NewActivityHandler(scorer),
		preferencesH:  handler.NewPreferencesHandler(prefs, logger.With("component", "preferences")),
		pushH:         handler.NewPushHandler(pushSt, pushSvc, logger.With("component", "push_handler")),
		wsTokenH:      handler.NewWSTokenHandler([]byte(cfg.WSSecret), cfg.WSTokenTTL, logger.With("component", "ws_token")),
		wsVerify:      wsVerify,
		clientStore:   store.NewClientStore(db),
		rateLimiter:   middleware.NewRateLimiter(),
		rateLimit:     rateLimit,
		pushScheduler: push.NewScheduler(dispatcher, cfg.DispatchInterval),
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// PushScheduler returns the scheduler that flushes delayed and batched notifications.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no API key required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.wsVerify))

	// API routes, wrapped with RequireAPIKey middleware
	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)

	authMiddleware := middleware.RequireAPIKey(s.clientStore, s.logger.With("component", "auth"))
	outerMux.Handle("/api/", authMiddleware(apiMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "ok"
	version, err := database.SchemaVersion(s.db)
	if err == nil {
		err = s.db.PingContext(r.Context())
	}
	if err != nil {
		s.logger.Error("health check", "error", err)
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(map[string]any{
		"status":         status,
		"schema_version": version,
		"online_users":   s.hub.OnlineUsers(),
		"tracked_users":  s.scorer.Tracked(),
		"ledger_size":    s.router.Ledger().Len(),
		"pending":        s.dispatcher.Pending(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ClientKey, s.rateLimit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Routing
	mux.HandleFunc("POST /api/decide", s.rateLimitedHandler(s.routingH.Decide))
	mux.HandleFunc("POST /api/notifications", s.rateLimitedHandler(s.routingH.Notify))
	mux.HandleFunc("GET /api/metrics", s.routingH.Metrics)
	mux.HandleFunc("GET /api/ledger", s.routingH.History)
	mux.HandleFunc("DELETE /api/ledger", s.routingH.ClearHistory)
	mux.HandleFunc("PUT /api/ledger/{id}/outcome", s.routingH.SetOutcome)

	// Activity
	mux.HandleFunc("POST /api/activity/{user_id}/interactions", s.activityH.RecordInteraction)
	mux.HandleFunc("GET /api/activity/{user_id}", s.activityH.Get)
	mux.HandleFunc("DELETE /api/activity/{user_id}", s.activityH.Reset)

	// Preferences
	mux.HandleFunc("GET /api/preferences/{user_id}", s.preferencesH.Get)
	mux.HandleFunc("PUT /api/preferences/{user_id}", s.preferencesH.Update)

	// Push subscriptions
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	// In-app websocket tokens
	mux.HandleFunc("POST /api/ws-tokens", s.wsTokenH.Issue)
}

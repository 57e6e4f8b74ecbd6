package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/clubnotify/internal/database"
	"github.com/dukerupert/clubnotify/internal/logging"
	"github.com/dukerupert/clubnotify/internal/prefcache"
	"github.com/dukerupert/clubnotify/internal/push"
	"github.com/dukerupert/clubnotify/internal/routing"
	"github.com/dukerupert/clubnotify/internal/server"
	"github.com/dukerupert/clubnotify/internal/store"
	"github.com/dukerupert/clubnotify/internal/websocket"
)

func main() {
	generateVAPID := flag.Bool("generate-vapid", false, "print a new VAPID key pair and exit")
	createClient := flag.String("create-client", "", "register an API client with this name, print its key and exit")
	flag.Parse()

	if *generateVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate VAPID keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("NOTIFY_VAPID_PUBLIC_KEY=%s\nNOTIFY_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	logger := logging.Setup(os.Getenv("NOTIFY_LOG_LEVEL"), os.Getenv("NOTIFY_LOG_FORMAT"))

	port := os.Getenv("NOTIFY_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("NOTIFY_DB_PATH")
	if dbPath == "" {
		dbPath = "notify.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *createClient != "" {
		code := runCreateClient(db, *createClient)
		db.Close()
		os.Exit(code)
	}

	cfg := server.Config{
		VAPIDPublicKey:   os.Getenv("NOTIFY_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:  os.Getenv("NOTIFY_VAPID_PRIVATE_KEY"),
		VAPIDSubject:     os.Getenv("NOTIFY_VAPID_SUBJECT"),
		LedgerCapacity:   envInt("NOTIFY_LEDGER_CAPACITY", routing.DefaultLedgerCapacity),
		DispatchInterval: envDuration("NOTIFY_DISPATCH_INTERVAL", push.DefaultInterval),
		PrefsCacheTTL:    envDuration("NOTIFY_PREFS_CACHE_TTL", prefcache.DefaultTTL),
		RateLimit:        envInt("NOTIFY_RATE_LIMIT", server.DefaultRateLimit),
		WSSecret:         os.Getenv("NOTIFY_WS_SECRET"),
		WSTokenTTL:       envDuration("NOTIFY_WS_TOKEN_TTL", websocket.DefaultTokenTTL),
	}
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		slog.Warn("VAPID keys not configured, push delivery disabled")
	}
	if cfg.WSSecret == "" {
		slog.Warn("NOTIFY_WS_SECRET not set, /ws trusts user_id and needs an authenticating proxy")
	}

	if url := os.Getenv("NOTIFY_REDIS_URL"); url != "" {
		rdb, err := prefcache.Connect(context.Background(), url)
		if err != nil {
			// The cache is optional; preferences are still served from the database.
			slog.Warn("redis unavailable, preferences cache disabled", "error", err)
		} else {
			defer rdb.Close()
			cfg.Redis = rdb
			slog.Info("preferences cache enabled", "ttl", cfg.PrefsCacheTTL)
		}
	}

	srv := server.New(db, cfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	srv.PushScheduler().Start(bgCtx)

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
				slog.Debug("rate limiter cleanup", "tracked", srv.RateLimiter().Len())
			case <-bgCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("notification router starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	srv.PushScheduler().Stop()
	bgCancel()
}

func runCreateClient(db *sql.DB, name string) int {
	key, client, err := store.NewClientStore(db).Create(name)
	if err != nil {
		slog.Error("failed to create client", "name", name, "error", err)
		return 1
	}
	fmt.Printf("client %q created (id %d)\nAPI key: %s\n", client.Name, client.ID, key)
	fmt.Println("Store this key now; it cannot be shown again.")
	return 0
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer, using default", "var", name, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "var", name, "value", v, "default", def)
		return def
	}
	return d
}

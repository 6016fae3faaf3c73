package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/pysugar/enginelabs-gateway/internal/adminauth"
	"github.com/pysugar/enginelabs-gateway/internal/config"
	"github.com/pysugar/enginelabs-gateway/internal/db"
	"github.com/pysugar/enginelabs-gateway/internal/metrics"
	"github.com/pysugar/enginelabs-gateway/internal/pool"
	"github.com/pysugar/enginelabs-gateway/internal/proxy/handlers"
	"github.com/pysugar/enginelabs-gateway/internal/proxy/middleware"
	"github.com/pysugar/enginelabs-gateway/internal/ratelimit"
	"github.com/pysugar/enginelabs-gateway/internal/session"
	"github.com/pysugar/enginelabs-gateway/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.Seed(database, cfg); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	settings := db.NewSettingsStore(database, cfg)
	creds := db.NewCredentialStore(database)
	keys := db.NewCallerKeyStore(database)
	logs := db.NewRequestLogStore(database, settings.MaxRequestRecords)
	mappings := db.NewModelMappingStore(database)

	credPool := pool.New(creds, settings.MaxFailCount)
	limiter := ratelimit.New()
	upstreamClient := upstream.NewClient()
	resolver := session.NewResolver(upstreamClient)
	adminTokens := adminauth.NewManager(cfg.AdminTokenSecret, cfg.AdminTokenExpiryDays)
	m := metrics.New()

	chatSvc := &handlers.ChatService{
		Pool:         credPool,
		Resolver:     resolver,
		Upstream:     upstreamClient,
		Settings:     settings,
		Mappings:     mappings,
		Metrics:      m,
		DefaultModel: cfg.DefaultModel,
	}

	// Expired rate-limit windows are only touched again when the same scope
	// reappears, so sweep them periodically.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() {
		if removed := limiter.Sweep(); removed > 0 {
			log.Printf("🧹 Swept %d expired rate-limit windows", removed)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule limiter sweep: %v", err)
	}
	sweeper.Start()

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/health", handlers.HealthHandler())
	r.Handle("/metrics", m.Handler())

	// OpenAI-compatible API
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequestLogger(logs, m))
		r.Use(middleware.CallerKeyAuth(keys, settings, limiter, m))
		r.Post("/chat/completions", handlers.ChatCompletionsHandler(chatSvc))
		r.Get("/models", handlers.ModelsHandler(mappings))
	})

	// Admin API
	r.Post("/admin/login", handlers.AdminLoginHandler(cfg.AdminUsername, cfg.AdminPassword, adminTokens))
	r.Route("/admin/api", func(r chi.Router) {
		r.Use(middleware.AdminAuth(adminTokens))

		r.Get("/stats", handlers.AdminStatsHandler(creds, keys, logs))
		r.Get("/logs", handlers.AdminLogsHandler(logs))

		r.Get("/credentials", handlers.ListCredentialsHandler(creds))
		r.Post("/credentials", handlers.AddCredentialHandler(creds, resolver, settings))
		r.Post("/credentials/{id}/test", handlers.TestCredentialHandler(creds, credPool, resolver, settings))
		r.Delete("/credentials/{id}", handlers.DeleteCredentialHandler(creds, resolver))

		r.Get("/keys", handlers.ListCallerKeysHandler(keys))
		r.Post("/keys", handlers.AddCallerKeyHandler(keys))
		r.Patch("/keys/{id}", handlers.UpdateCallerKeyHandler(keys))
		r.Delete("/keys/{id}", handlers.DeleteCallerKeyHandler(keys))

		r.Get("/settings", handlers.GetSettingsHandler(settings))
		r.Put("/settings", handlers.UpdateSettingsHandler(settings))

		r.Get("/models", handlers.GetModelMappingsHandler(mappings))
		r.Put("/models", handlers.UpdateModelMappingsHandler(mappings))
	})

	addr := cfg.Host + ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		// No WriteTimeout: chat responses stream for as long as the
		// upstream keeps producing.
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 EngineLabs gateway listening on http://%s", addr)
		log.Printf("🔌 OpenAI API: http://%s/v1", addr)
		log.Printf("🛠️ Admin API: http://%s/admin/api", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		log.Println("🛑 Shutting down")
		sweeper.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ Shutdown error: %v", err)
		}
	}
}

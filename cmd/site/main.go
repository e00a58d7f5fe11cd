package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kisscoffee/site/internal/app"
	"kisscoffee/site/internal/config"
	"kisscoffee/site/internal/export"
	"kisscoffee/site/internal/history"
	"kisscoffee/site/internal/logger"
	"kisscoffee/site/internal/search"
	"kisscoffee/site/internal/session"
	"kisscoffee/site/internal/store"
)

type backingStore interface {
	store.DocumentStore
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	UpsertUser(ctx context.Context, user store.User) (store.User, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	ctx := context.Background()

	var data backingStore
	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		data = store.NewPostgresStore(db)
		log.Info("using postgres for settings and users")
	} else {
		data = store.NewMemoryStore()
		log.Warn("DATABASE_URL not set, settings and users are kept in memory")
	}

	deps := app.Deps{Documents: data, Users: data, Logger: log}
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		log.Info("using redis for sessions")
	} else {
		deps.Sessions = session.NewMemoryStore()
		log.Info("using in-memory sessions")
	}

	var meiliClient *search.Meili
	if cfg.MeiliURL != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	deps.Search = search.NewService(meiliClient, log)
	defer deps.Search.Close()

	if cfg.HistoryDir != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			log.Error("history dir", "dir", cfg.HistoryDir, "error", err)
			os.Exit(1)
		}
		deps.Archive = history.New(cfg.HistoryDir)
	}

	var publisher export.Publisher
	if cfg.S3.Enabled() {
		s3, err := export.NewS3Publisher(export.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			log.Error("object storage", "error", err)
			os.Exit(1)
		}
		publisher = s3
	}
	deps.Exporter = export.NewService(publisher)

	service := app.New(cfg, deps)
	if err := service.Bootstrap(ctx); err != nil {
		log.Warn("bootstrap failed, will retry on next restart", "error", err)
	}

	httpServer, err := app.NewHTTPServer(service)
	if err != nil {
		log.Error("http server", "error", err)
		os.Exit(1)
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Kiss Coffee site listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}

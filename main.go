package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"naskahcollab/config"
	"naskahcollab/config/database"
	docHandler "naskahcollab/internal/document"
	"naskahcollab/internal/document/repository"
	"naskahcollab/internal/document/service"
	"naskahcollab/internal/email"
	"naskahcollab/internal/presence"
	"naskahcollab/pkg/logger"
	"naskahcollab/router"
	"naskahcollab/socket"
)

func main() {
	cfg, foundDotEnv, err := config.Load()
	if err != nil {
		logger.Init(logger.Config{})
		logger.Sugar.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logger.Log.Sync()
	if !foundDotEnv {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	var checks []router.HealthCheck

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Sugar.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, pinger.Ping)
	}

	// A Hub holds every live connection and open document session.
	opts := socket.Options{
		AutoSaveDelay: cfg.AutoSaveDelay,
		GracePeriod:   cfg.GracePeriod,
		SendBuffer:    cfg.SendBuffer,
	}
	var mirror *presence.RedisMirror
	if cfg.RedisURL != "" {
		mirror, err = presence.NewRedisMirror(cfg.RedisURL, cfg.PresenceTTL)
		if err != nil {
			logger.Sugar.Fatalf("Failed to configure presence mirror: %v", err)
		}
		defer mirror.Close()
		opts.Mirror = mirror
		checks = append(checks, mirror.Ping)
	}

	hub := socket.NewHub(store, opts)
	go hub.Run()

	mailer := email.NewMailer(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		AppURL:   cfg.AppURL,
	})
	docs := service.NewDocumentService(store, hub, mailer)
	comments := service.NewCommentService(store, hub)
	hub.Use(docs, comments)

	handler := docHandler.NewDocumentHandler(docs, comments, hub)
	if mirror != nil {
		handler.Presence = mirror
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.Setup(cfg, hub, handler, checks...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Sugar.Infof("Go Backend listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Sugar.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar.Errorf("HTTP shutdown: %v", err)
	}
	// pending auto-saves are written before connections close
	if err := hub.Shutdown(ctx); err != nil {
		logger.Sugar.Errorf("Hub shutdown: %v", err)
	}
}

func openStore(cfg *config.Config) (repository.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		users, err := cfg.Users()
		if err != nil {
			return nil, nil, err
		}
		mem := repository.NewMemoryRepository()
		for _, u := range users {
			mem.AddUser(u)
		}
		logger.Sugar.Infof("Using in-memory store with %d seeded users", len(users))
		return mem, func() {}, nil
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewDocumentRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, func() { db.Close() }, nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"amora/internal/config"
	"amora/internal/httpserver"
	"amora/internal/logger"
	"amora/internal/presence"
	"amora/internal/realtime"
	"amora/internal/security"
	"amora/internal/store/postgres"
	"amora/internal/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	db, stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(bcrypt.DefaultCost)

	hub := realtime.NewHub()
	pres := presence.New(cfg.RedisAddr, "amora")
	defer pres.Close()

	handler := httpserver.NewRouter(cfg, log, stores, hub, pres, tokenSvc, passwordHasher)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", cfg.HTTPAddr()),
			zap.String("driver", cfg.Driver),
			zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func openStores(cfg *config.Config) (*sql.DB, httpserver.Stores, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, httpserver.Stores{}, err
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, httpserver.Stores{}, err
		}
		users := postgres.NewUserRepo(db)
		return db, httpserver.Stores{
			Users:         users,
			Profiles:      users,
			Conversations: postgres.NewConversationRepo(db),
			Messages:      postgres.NewMessageRepo(db),
		}, nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, httpserver.Stores{}, err
		}
		if err := sqlite.Migrate(db); err != nil {
			return nil, httpserver.Stores{}, err
		}
		users := sqlite.NewUserRepo(db)
		return db, httpserver.Stores{
			Users:         users,
			Profiles:      users,
			Conversations: sqlite.NewConversationRepo(db),
			Messages:      sqlite.NewMessageRepo(db),
		}, nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"expensebook/internal/auth"
	"expensebook/internal/config"
	"expensebook/internal/handlers"
	"expensebook/internal/logging"
	"expensebook/internal/models"
	"expensebook/internal/report"
	"expensebook/internal/storage"
	"expensebook/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.WithField("driver", db.Driver()).Info("database ready")

	authService := auth.NewService(db, auth.Options{
		SessionTTL: cfg.Session.TTL,
		BcryptCost: cfg.Security.BcryptCost,
		Logger:     logger.WithField("component", "auth"),
	})

	if err := seedAdmin(ctx, db, authService, cfg.Admin, logger); err != nil {
		return err
	}

	if cfg.Security.FlashSecret == "" {
		logger.Warn("security.flash_secret not set, using a random key for this process")
	}
	h, err := handlers.NewHandlers(authService, db, report.NewEngine(db), web.TemplatesFS, handlers.Options{
		SecureCookie: cfg.Session.SecureCookie,
		FlashSecret:  []byte(cfg.Security.FlashSecret),
		Pinger:       db,
	})
	if err != nil {
		return err
	}

	static, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("static assets: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           setupRouter(h, static, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func setupRouter(h *handlers.Handlers, static fs.FS, logger logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(handlers.SecurityHeaders)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	h.RegisterRoutes(r)

	return r
}

// seedAdmin creates the configured admin account when no users exist yet.
func seedAdmin(ctx context.Context, db *storage.DB, svc *auth.Service, admin config.AdminConfig, logger logrus.FieldLogger) error {
	if admin.User == "" {
		return nil
	}
	count, err := db.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := svc.Register(ctx, admin.User, admin.Password); err != nil && !errors.Is(err, models.ErrDuplicateUsername) {
		return fmt.Errorf("create admin user: %w", err)
	}
	logger.WithField("username", admin.User).Info("admin user created")
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/httplog/v2"
	"github.com/shortlyhq/shortly/internal/config"
	"github.com/shortlyhq/shortly/internal/service"
	"github.com/shortlyhq/shortly/pkg/postgres"
	"golang.org/x/sync/errgroup"

	api "github.com/shortlyhq/shortly/internal/api/http"
	storage "github.com/shortlyhq/shortly/internal/database/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		panic(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}

	logger := httplog.NewLogger("shortly", httplog.Options{
		JSON:     cfg.Env == config.EnvProd,
		LogLevel: slog.LevelInfo,
		Concise:  cfg.Env != config.EnvProd,
	})

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return err
	}

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return err
	}

	linkRepo := storage.NewLinkRepository(db)

	recorder := service.NewVisitRecorder(linkRepo, logger.Logger)
	recorder.Start()

	alloc := service.NewCodeAllocator(linkRepo, cfg.ShortCodeLength)
	linkSvc := service.NewLinkService(linkRepo, alloc, recorder)

	verifier := api.NewJWTVerifier(cfg.Auth.JWTSecret)
	router := api.NewRouter(logger, linkSvc, verifier, cfg)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		err := server.Shutdown(context.Background())

		// No new visits arrive once the server is down; drain the queue
		// before releasing the pool.
		recorder.Stop()
		db.Close()

		return err
	})

	return g.Wait()
}

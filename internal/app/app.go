// Package app bootstraps shared infrastructure and wires the services.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/auth/jwt"
	"github.com/gokatarajesh/code-arena/internal/config"
	"github.com/gokatarajesh/code-arena/internal/db/repository"
	"github.com/gokatarajesh/code-arena/internal/logging"
	"github.com/gokatarajesh/code-arena/internal/match"
	matchqueue "github.com/gokatarajesh/code-arena/internal/match/queue"
	"github.com/gokatarajesh/code-arena/internal/server"
	"github.com/gokatarajesh/code-arena/internal/submission"
	ws "github.com/gokatarajesh/code-arena/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	queue      *matchqueue.Queue
	controller *match.Controller
}

// New bootstraps config, logger, Postgres, Redis and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=10",
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if cfg.Security.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be configured")
	}
	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		Issuer: cfg.Name,
	})

	matchRepo := repository.NewMatchRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	wsHub := ws.NewHub(logger)
	ratingQueue := matchqueue.New(redisClient, logger)
	matcher := match.NewMatcher(ratingQueue, logger)
	store := match.NewStore()

	controller := match.NewController(store, matchRepo, wsHub, match.ControllerConfig{
		DurationMinutes:  cfg.Match.DurationMinutes,
		QuestionCount:    cfg.Match.QuestionCount,
		CountdownSeconds: cfg.Match.CountdownSeconds,
		TickInterval:     cfg.Match.TickInterval,
	}, logger)

	judge := submission.NewHTTPJudge(cfg.Judge.URL, cfg.Judge.CallbackToken, cfg.Judge.Timeout, logger)
	submissionSvc := submission.NewService(store, submissionRepo, judge, controller, wsHub, logger)
	submissionHTTP := submission.NewHTTPHandler(submissionSvc, cfg.Judge.CallbackToken, logger)

	matchWS := match.NewHandler(ratingQueue, matcher, controller, store, submissionSvc, userRepo, wsHub, tokens, logger)
	matchHTTP := match.NewHTTPHandlers(matchRepo, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, tokens, matchWS, matchHTTP, submissionHTTP)

	return &Application{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		http:       apiServer,
		queue:      ratingQueue,
		controller: controller,
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	// Stop live timers and clear the queue so restarted instances
	// start from a clean slate.
	a.controller.Shutdown()
	if err := a.queue.Clear(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("queue clear error")
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

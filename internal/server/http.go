// Package server wires the HTTP surface of the API service.
package server

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/auth"
	"github.com/gokatarajesh/code-arena/internal/auth/jwt"
	"github.com/gokatarajesh/code-arena/internal/config"
	"github.com/gokatarajesh/code-arena/internal/match"
	"github.com/gokatarajesh/code-arena/internal/submission"
)

// NewHTTPServer wires base routes (health, metrics), the match WebSocket
// endpoint, and the REST API.
func NewHTTPServer(
	cfg *config.App,
	logger zerolog.Logger,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	tokens *jwt.Manager,
	matchWS *match.Handler,
	matchHTTP *match.HTTPHandlers,
	submissionHTTP *submission.HTTPHandler,
) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if err := pingDependencies(r.Context(), pool, redisClient); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	// WebSocket endpoint; token is validated during the upgrade.
	mux.HandleFunc("/ws/matches", matchWS.HandleWebSocket)

	// Judge result callback, authenticated by shared token instead of JWT.
	mux.HandleFunc("POST /v1/judge/results", submissionHTTP.HandleJudgeResult)

	// REST API behind JWT auth.
	mux.Handle("GET /v1/matches/history", auth.RequireAuth(http.HandlerFunc(matchHTTP.HandleHistory)))
	mux.Handle("GET /v1/matches/{matchID}", auth.RequireAuth(http.HandlerFunc(matchHTTP.HandleGetMatch)))
	mux.Handle("GET /v1/matches/{matchID}/submissions", auth.RequireAuth(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			submissionHTTP.HandleListSubmissions(w, r, claims.UserID)
		})))

	handler := auth.Middleware(tokens, logger)(mux)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redisClient *redis.Client) error {
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}

/*
Package handler provides the HTTP handlers and routing setup for the gridroom server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"gridroom/internal/pkg/auth/jwt"
	"gridroom/internal/pkg/limiter"
	"gridroom/internal/pkg/logx"
	"gridroom/internal/pkg/resp"
)

const (
	LoginRate  = 0.2
	LoginBurst = 5
	WSRate     = 0.5
	WSBurst    = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
// The limiter cleanup goroutines stop when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	loginLimiter := limiter.NewIPRateLimiter(ctx, "login", rate.Limit(LoginRate), LoginBurst)
	wsLimiter := limiter.NewIPRateLimiter(ctx, "ws", rate.Limit(WSRate), WSBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "gridroom",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/pow/challenge", HandlePowChallenge(deps))
		api.Post("/pow/verify", HandlePowVerify(deps))

		api.With(loginLimiter.Middleware).Post("/login", HandleLogin(deps))

		api.Get("/rooms/{areaId}/{roomId}", HandleGetRoom(deps))
		api.Get("/areas/{areaId}/stats", HandleGetStats(deps))

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(jwt.RequireAdmin(deps.Config.AdminSecret))
			admin.Post("/ban", HandleBan(deps))
			admin.Post("/unban", HandleUnban(deps))
		})
	})

	r.With(wsLimiter.Middleware).Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}

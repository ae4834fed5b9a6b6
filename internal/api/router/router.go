package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/http/handlers"
	httpmiddleware "github.com/ralphdg-dev/AI.ttorney-sub000/internal/http/middleware"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/webchat"
	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *webchat.Handler
	AdminEnforcement   *handlers.AdminEnforcementHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Anonymous request throttling for the public chat endpoints.
	AnonRateLimit float64
	AnonRateBurst int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		rate := cfg.AnonRateLimit
		if rate <= 0 {
			rate = 1
		}
		burst := cfg.AnonRateBurst
		if burst <= 0 {
			burst = 5
		}
		throttle := httpmiddleware.RateLimit(rate, burst)

		r.Get("/ws/chat", cfg.ChatHandler.HandleWebSocket)
		r.Route("/api/chat", func(api chi.Router) {
			api.With(throttle).Post("/", cfg.ChatHandler.HandleAsk)
			api.Get("/history", cfg.ChatHandler.HandleHistory)
		})
	}

	if cfg.AdminAuthSecret != "" && cfg.AdminEnforcement != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/enforcement/{userID}", func(e chi.Router) {
				e.Get("/status", cfg.AdminEnforcement.GetStatus)
				e.Get("/violations", cfg.AdminEnforcement.ListViolations)
				e.Post("/lift-suspension", cfg.AdminEnforcement.LiftSuspension)
				e.Post("/lift-ban", cfg.AdminEnforcement.LiftBan)
			})
		})
	}

	return r
}

package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medicare-assistant/internal/appointments"
	"github.com/wolfman30/medicare-assistant/internal/conversation"
	httpmiddleware "github.com/wolfman30/medicare-assistant/internal/http/middleware"
	"github.com/wolfman30/medicare-assistant/internal/webchat"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

const healthTimeout = 2 * time.Second

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	AppointmentsHandler *appointments.Handler
	WebChatHandler      *webchat.Handler
	MetricsHandler      http.Handler
	UserAuthSecret      string
	AdminAuthSecret     string
	CORSAllowedOrigins  []string
	RateLimiter         *httpmiddleware.RateLimiter

	// HealthCheck pings backing stores. Nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.UserAuth(cfg.UserAuthSecret))
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		// The WebSocket upgrade needs the raw connection, so it stays outside Compress.
		if cfg.WebChatHandler != nil {
			api.Get("/chat/ws", cfg.WebChatHandler.HandleWebSocket)
		}

		api.Group(func(rest chi.Router) {
			rest.Use(middleware.Compress(5))
			if h := cfg.ConversationHandler; h != nil {
				rest.Route("/chat/sessions", func(r chi.Router) {
					r.Post("/", h.CreateSession)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", h.GetSession)
						r.Delete("/", h.ResetSession)
						r.Post("/messages", h.PostMessage)
						r.With(httpmiddleware.RequireUser).Post("/attachments", h.UploadAttachment)
					})
				})
			}
			if h := cfg.AppointmentsHandler; h != nil {
				rest.Route("/appointments", func(r chi.Router) {
					r.Use(httpmiddleware.RequireUser)
					r.Get("/", h.ListMine)
					r.Post("/{number}/cancel", h.Cancel)
				})
			}
		})
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		admin.Use(middleware.Compress(5))
		if h := cfg.AppointmentsHandler; h != nil {
			admin.Get("/appointments", h.ListAll)
			admin.Delete("/appointments/{owner}/{id}", h.Delete)
			admin.Get("/capacity", h.Capacity)
		}
		if h := cfg.ConversationHandler; h != nil {
			admin.Get("/sessions/{id}/transcript", h.Transcript)
		}
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				status, body = http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

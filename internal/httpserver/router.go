package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"amora/internal/config"
	"amora/internal/domain"
	"amora/internal/presence"
	"amora/internal/realtime"
	"amora/internal/security"
	"amora/internal/service"
	"amora/internal/ws"
)

// Stores bundles the persistence interfaces the router wires into services.
type Stores struct {
	Users         domain.UserRepository
	Profiles      domain.ProfileStore
	Conversations domain.ConversationStore
	Messages      domain.MessageStore
}

// NewRouter constructs the main HTTP router and wires routes, services, and
// middleware.
func NewRouter(
	cfg *config.Config,
	log *zap.Logger,
	stores Stores,
	hub *realtime.Hub,
	pres *presence.Store,
	tokenSvc *security.TokenService,
	passwordHasher *security.PasswordHasher,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authSvc := service.NewAuthService(stores.Users, tokenSvc, passwordHasher)
	profileSvc := service.NewProfileService(stores.Profiles)
	convSvc := service.NewConversationService(stores.Conversations, stores.Profiles, log, cfg.OpTimeout)
	msgSvc := service.NewMessageService(stores.Conversations, stores.Messages, hub, log)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		// Request timeout applies to the REST surface only; the websocket
		// endpoint below holds its connection open.
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, stores.Users))

			r.Post("/auth/logout", handleLogout(authSvc))
			r.Get("/auth/me", handleMe())

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/{userID}", handleGetProfile(profileSvc, pres))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(convSvc))
				r.Post("/resolve", handleResolveConversation(convSvc))
				r.Get("/{conversationID}", handleGetConversation(convSvc))
				r.Post("/{conversationID}/pin", handleSetPinned(convSvc))
				r.Post("/{conversationID}/archive", handleSetArchived(convSvc))
				r.Get("/{conversationID}/messages", handleListMessages(msgSvc))
				r.Post("/{conversationID}/messages", handleCreateMessage(msgSvc))
			})
		})
	})

	// WebSocket endpoint
	r.Get("/ws", ws.MakeHandler(ws.Deps{
		Hub:           hub,
		Presence:      pres,
		Tokens:        tokenSvc,
		Users:         stores.Users,
		Conversations: convSvc,
		Messages:      msgSvc,
		Log:           log,
		Origins:       cfg.CORSOrigins,
		Timeout:       cfg.OpTimeout,
	}))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the domain error taxonomy to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrSelfConversation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrFetchFailed), errors.Is(err, domain.ErrSendFailed):
		// Transient; the client may retry.
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

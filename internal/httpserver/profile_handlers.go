package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"amora/internal/presence"
	"amora/internal/service"
)

func handleGetProfile(svc *service.ProfileService, pres *presence.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		prof, err := svc.Get(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}

		online, err := pres.IsOnline(r.Context(), userID)
		if err != nil {
			online = false
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"profile":   prof,
			"is_online": online,
		})
	}
}

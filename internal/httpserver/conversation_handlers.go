package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"amora/internal/service"
)

type resolveConversationRequest struct {
	OtherUserID string `json:"other_user_id"`
}

type flagRequest struct {
	Value bool `json:"value"`
}

func handleListConversations(svc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		convs, err := svc.List(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
	}
}

func handleResolveConversation(svc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		var req resolveConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OtherUserID == "" {
			http.Error(w, "other_user_id is required", http.StatusBadRequest)
			return
		}

		// Stateless resolve: known conversations come from the store listing.
		known, err := svc.List(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		conv, err := svc.Resolve(r.Context(), user.ID, req.OtherUserID, known)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation": conv,
			"state":        conv.State.String(),
		})
	}
}

func handleGetConversation(svc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		conv, err := svc.Get(r.Context(), chi.URLParam(r, "conversationID"), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleSetPinned(svc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		var req flagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := svc.SetPinned(r.Context(), chi.URLParam(r, "conversationID"), user.ID, req.Value); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"is_pinned": req.Value})
	}
}

func handleSetArchived(svc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		var req flagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := svc.SetArchived(r.Context(), chi.URLParam(r, "conversationID"), user.ID, req.Value); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"is_archived": req.Value})
	}
}

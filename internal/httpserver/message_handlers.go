package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"amora/internal/service"
)

type createMessageRequest struct {
	Content string `json:"content"`
}

func handleListMessages(svc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		msgs, err := svc.History(r.Context(), chi.URLParam(r, "conversationID"), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	}
}

func handleCreateMessage(svc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		var req createMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		msg, err := svc.Send(r.Context(), service.MessageSendInput{
			ConversationID: chi.URLParam(r, "conversationID"),
			Content:        req.Content,
		}, user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"amora/internal/domain"
	"amora/internal/presence"
	"amora/internal/realtime"
	"amora/internal/security"
	"amora/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Deps bundles everything a websocket session needs.
type Deps struct {
	Hub           *realtime.Hub
	Presence      *presence.Store
	Tokens        *security.TokenService
	Users         domain.UserRepository
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Log           *zap.Logger
	Origins       []string
	Timeout       time.Duration
}

// clientIntent is a single request frame from the client.
type clientIntent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	OtherUserID    string `json:"other_user_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// serverEvent is a single frame pushed to the client.
type serverEvent struct {
	Type           string                `json:"type"`
	ConversationID string                `json:"conversation_id,omitempty"`
	State          string                `json:"state,omitempty"`
	Conversations  []domain.Conversation `json:"conversations,omitempty"`
	Conversation   *domain.Conversation  `json:"conversation,omitempty"`
	Messages       []domain.Message      `json:"messages,omitempty"`
	Message        *domain.Message       `json:"message,omitempty"`
	Intent         string                `json:"intent,omitempty"`
	Error          string                `json:"error,omitempty"`
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(strings.ToLower(o)), "/")
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return set
}

func makeCheckOrigin(origins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(origins)
	if _, all := allowed["*"]; all || len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := strings.TrimRight(strings.ToLower(r.Header.Get("Origin")), "/")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// tokenFromRequest pulls the bearer token from the Authorization header or,
// for browser clients that cannot set headers on websocket dials, from the
// Sec-WebSocket-Protocol list as "bearer, <token>".
func tokenFromRequest(r *http.Request) (token, subprotocol string) {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):]), ""
	}
	parts := websocket.Subprotocols(r)
	for i, p := range parts {
		if strings.EqualFold(p, "bearer") && i+1 < len(parts) {
			return parts[i+1], "bearer"
		}
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return q, ""
	}
	return "", ""
}

// MakeHandler returns the websocket endpoint. Each connection owns one
// synchronizer driving the active conversation's state.
func MakeHandler(deps Deps) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     makeCheckOrigin(deps.Origins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token, subprotocol := tokenFromRequest(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		claims, err := deps.Tokens.Parse(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		user, err := deps.Users.GetByID(r.Context(), security.Subject(claims))
		if err != nil || user == nil || !user.IsActive {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		var responseHeader http.Header
		if subprotocol != "" {
			responseHeader = http.Header{"Sec-WebSocket-Protocol": {subprotocol}}
		}
		conn, err := upgrader.Upgrade(w, r, responseHeader)
		if err != nil {
			deps.Log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		session := &session{
			deps: deps,
			conn: conn,
			user: user,
			sync: service.NewSynchronizer(user.ID, deps.Conversations, deps.Messages, deps.Hub, deps.Log, deps.Timeout),
			out:  make(chan serverEvent, 64),
		}
		session.run(r.Context())
	}
}

type session struct {
	deps Deps
	conn *websocket.Conn
	user *domain.User
	sync *service.Synchronizer
	out  chan serverEvent
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()
	defer s.sync.Close()

	pctx, cancel := context.WithTimeout(context.Background(), s.deps.Timeout)
	if err := s.deps.Presence.SetOnline(pctx, s.user.ID); err != nil {
		s.deps.Log.Warn("presence set online failed", zap.Error(err))
	}
	cancel()
	defer func() {
		pctx, cancel := context.WithTimeout(context.Background(), s.deps.Timeout)
		defer cancel()
		if err := s.deps.Presence.SetOffline(pctx, s.user.ID); err != nil {
			s.deps.Log.Warn("presence set offline failed", zap.Error(err))
		}
	}()

	go s.writeLoop()
	go s.forwardEvents()

	s.readLoop(ctx)
}

// writeLoop is the only goroutine writing to the connection.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.sync.Done():
			return
		}
	}
}

// forwardEvents translates synchronizer events to wire frames.
func (s *session) forwardEvents() {
	for {
		select {
		case ev := <-s.sync.Events():
			switch ev.Kind {
			case service.EventHistory:
				s.send(serverEvent{
					Type:           "history",
					ConversationID: ev.ConversationID,
					Messages:       ev.Messages,
				})
			case service.EventHistoryError:
				s.send(serverEvent{
					Type:           "history_error",
					ConversationID: ev.ConversationID,
					Error:          ev.Err.Error(),
				})
			case service.EventMessage:
				m := ev.Message
				s.send(serverEvent{
					Type:           "message",
					ConversationID: ev.ConversationID,
					Message:        &m,
				})
			}
		case <-s.sync.Done():
			return
		}
	}
}

func (s *session) send(ev serverEvent) {
	select {
	case s.out <- ev:
	case <-s.sync.Done():
	}
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(64 * 1024)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.deps.Log.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var intent clientIntent
		if err := json.Unmarshal(raw, &intent); err != nil {
			s.send(serverEvent{Type: "error", Error: "malformed frame"})
			continue
		}
		s.handleIntent(ctx, intent)
	}
}

func (s *session) handleIntent(ctx context.Context, intent clientIntent) {
	octx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	defer cancel()

	switch intent.Type {
	case "list_conversations":
		convs, err := s.sync.Conversations(octx)
		if err != nil {
			s.send(serverEvent{Type: "error", Intent: intent.Type, Error: err.Error()})
			return
		}
		s.send(serverEvent{Type: "conversation_list", Conversations: convs})

	case "select_conversation":
		var conv *domain.Conversation
		var err error
		switch {
		case intent.ConversationID != "":
			conv, err = s.sync.SelectByID(octx, intent.ConversationID)
		case intent.OtherUserID != "":
			conv, err = s.sync.Open(octx, intent.OtherUserID)
		default:
			err = domain.ErrInvalidInput
		}
		if err != nil {
			s.send(serverEvent{Type: "error", Intent: intent.Type, Error: err.Error()})
			return
		}
		s.send(serverEvent{
			Type:           "conversation_selected",
			ConversationID: conv.ID,
			Conversation:   conv,
			State:          conv.State.String(),
		})

	case "send_message":
		// The synchronizer owns the send context; the intent's conversation
		// must be the active one.
		if _, err := s.sync.Send(ctx, intent.Content); err != nil {
			s.send(serverEvent{Type: "error", Intent: intent.Type, Error: err.Error()})
		}

	default:
		s.send(serverEvent{Type: "error", Intent: intent.Type, Error: "unknown intent"})
	}
}

package gateway

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kompite/arena/internal/auth"
	"github.com/kompite/arena/internal/jitter"
	"github.com/kompite/arena/internal/match"
)

// Server upgrades authenticated websocket requests into hub sessions.
type Server struct {
	hub      *Hub
	detector *jitter.Detector
	manager  *match.Manager
	jwt      *auth.JWTManager
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the websocket endpoint handler.
func NewServer(hub *Hub, detector *jitter.Detector, manager *match.Manager, jwt *auth.JWTManager, logger *slog.Logger) *Server {
	return &Server{
		hub:      hub,
		detector: detector,
		manager:  manager,
		jwt:      jwt,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens at the edge proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws?token=... upgrades.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, `{"code":"UNAUTHORIZED","message":"missing token"}`, http.StatusUnauthorized)
		return
	}
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		http.Error(w, `{"code":"UNAUTHORIZED","message":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	playerID, err := claims.PlayerID()
	if err != nil {
		http.Error(w, `{"code":"UNAUTHORIZED","message":"invalid subject"}`, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", "error", err)
		return
	}

	session := &Session{
		ID:       uuid.New().String(),
		PlayerID: playerID,
		Send:     make(chan []byte, sendBuffer),
	}
	c := &client{
		session:  session,
		conn:     conn,
		hub:      s.hub,
		detector: s.detector,
		manager:  s.manager,
		logger:   s.logger,
	}

	s.hub.Join(playerRoom(playerID), session)
	s.detector.Register(playerID)
	s.logger.Info("ws session opened", "player_id", playerID, "session_id", session.ID)

	go c.writePump()
	go c.readPump()
}

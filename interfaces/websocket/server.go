package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flopods-backend/pkg/auth"
)

// defaultMaxSessionsPerUser caps concurrent sessions per user
const defaultMaxSessionsPerUser = 10

// Server upgrades authenticated HTTP requests to WebSocket sessions
type Server struct {
	hub         *Hub
	upgrader    websocket.Upgrader
	jwtService  *auth.JWTService
	maxSessions int
	logger      *zap.Logger
}

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxSessions     int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultServerConfig returns the default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxSessions:     defaultMaxSessionsPerUser,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewServer creates a WebSocket server over hub
func NewServer(hub *Hub, jwtService *auth.JWTService, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.MaxSessions <= 0 {
		config.MaxSessions = defaultMaxSessionsPerUser
	}

	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		jwtService:  jwtService,
		maxSessions: config.MaxSessions,
		logger:      logger,
	}
}

// HandleWebSocket authenticates the request and upgrades it to a session.
// Authentication happens before registration: an invalid token never
// reaches the hub.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticateRequest(r)
	if err != nil {
		s.logger.Warn("websocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if s.hub.SessionCount(userID) >= s.maxSessions {
		s.logger.Warn("session limit exceeded",
			zap.String("user_id", userID))
		http.Error(w, "Too many sessions", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := NewClient(userID, s.hub, conn, s.logger)
	client.Start()

	s.logger.Info("websocket session established",
		zap.String("user_id", userID),
		zap.String("session_id", client.ID()),
		zap.String("remote_addr", r.RemoteAddr))
}

// authenticateRequest pulls the JWT from the query string, the
// Authorization header, or the auth cookie, in that order.
func (s *Server) authenticateRequest(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")

	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if token == "" {
		cookie, err := r.Cookie("auth_token")
		if err == nil {
			token = cookie.Value
		}
	}

	if token == "" {
		return "", errors.New("no authentication token provided")
	}

	claims, err := s.jwtService.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	return claims.UserID, nil
}

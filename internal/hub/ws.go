package hub

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/peerchat-io/peerchat/internal/models"
	"github.com/peerchat-io/peerchat/internal/store"
)

// Server is the websocket endpoint. It owns the handshake, the per-frame
// dispatch and the connection teardown; registry semantics live in Hub and
// delivery semantics in Delivery.
type Server struct {
	hub      *Hub
	delivery *Delivery
	db       store.DataStore
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewServer creates the websocket endpoint. allowedOrigins limits upgrade
// requests; empty allows any origin.
func NewServer(h *Hub, d *Delivery, db store.DataStore, allowedOrigins []string, logger zerolog.Logger) *Server {
	return &Server{
		hub:      h,
		delivery: d,
		db:       db,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

// ServeHTTP upgrades the request and runs the connection's read loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	t := newWSTransport(conn)
	var identity string // set once authenticated

	defer func() {
		t.Close()
		if identity == "" {
			return
		}
		// Guarded remove: if a newer connection already replaced this one,
		// the user is still online and the store must not say otherwise.
		if s.hub.Remove(identity, t) {
			s.markOffline(identity)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// One bad frame does not terminate the connection.
			_ = t.Send(errorFrame("Invalid message format"))
			continue
		}

		switch frame.Type {
		case FrameAuth:
			// The request context dies with the hijacked HTTP request, not
			// with this connection; store calls get their own context.
			identity = s.handleAuth(context.Background(), frame, t, identity)

		case FrameSignal:
			if identity == "" {
				_ = t.Send(errorFrame("Not authenticated"))
				continue
			}
			s.hub.Relay(SignalEnvelope{
				Kind:    frame.SignalType,
				From:    identity,
				To:      frame.To,
				Payload: frame.Payload,
			})

		default:
			_ = t.Send(errorFrame("Unknown message type"))
		}
	}
}

// handleAuth validates the presented identity, admits the connection and
// drains any queued messages. On failure it replies with an error frame and
// leaves the connection open for a retry, returning the prior identity.
func (s *Server) handleAuth(ctx context.Context, frame ClientFrame, t Transport, prior string) string {
	id, err := uuid.Parse(frame.UserID)
	if err != nil {
		_ = t.Send(errorFrame("Authentication failed"))
		return prior
	}

	user, err := s.db.GetUserByID(ctx, id)
	if err != nil || user == nil {
		_ = t.Send(errorFrame("Authentication failed"))
		return prior
	}

	identity := user.ID.String()
	s.hub.Admit(RosterEntry{UserID: identity, Email: user.Email, Name: user.Name}, t)

	if err := s.db.UpdateUserStatus(ctx, user.ID, models.StatusOnline); err != nil {
		s.logger.Warn().Err(err).Str("user_id", identity).Msg("status update failed")
	}

	_ = t.Send(AuthSuccessFrame{Type: FrameAuthSuccess})

	if _, err := s.delivery.DrainPending(ctx, identity); err != nil {
		s.logger.Error().Err(err).Str("user_id", identity).Msg("pending drain failed")
	}

	s.logger.Info().Str("user_id", identity).Msg("client connected")
	return identity
}

func (s *Server) markOffline(identity string) {
	ctx := context.Background()
	id, err := uuid.Parse(identity)
	if err != nil {
		return
	}
	if err := s.db.UpdateUserStatus(ctx, id, models.StatusOffline); err != nil {
		s.logger.Warn().Err(err).Str("user_id", identity).Msg("status update failed")
	}
	if err := s.db.UpdateLastSeen(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("user_id", identity).Msg("last-seen update failed")
	}
	s.logger.Info().Str("user_id", identity).Msg("client disconnected")
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/messaging"
	"github.com/carebridge/carebridge/internal/platform/auth"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections to websockets, authenticates the
// handshake and dispatches client events to the hub.
type Handler struct {
	hub    *Hub
	svc    *messaging.Service
	tokens *auth.TokenIssuer
	users  messaging.UserProvider
	log    zerolog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(hub *Hub, svc *messaging.Service, tokens *auth.TokenIssuer, users messaging.UserProvider, log zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		svc:    svc,
		tokens: tokens,
		users:  users,
		log:    log.With().Str("component", "ws-handler").Logger(),
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

// Connect authenticates the handshake and starts the connection's pumps.
// The credential comes from the Authorization header or, for browser
// clients that cannot set headers on websocket upgrades, a token query
// parameter. Either way it is normalized first: clients that store the
// token JSON-encoded end up sending it wrapped in literal quotes.
func (h *Handler) Connect(c echo.Context) error {
	credential := c.Request().Header.Get("Authorization")
	if credential == "" {
		credential = c.QueryParam("token")
	}
	credential = strings.TrimPrefix(strings.TrimSpace(credential), "Bearer ")
	credential = auth.NormalizeCredential(credential)
	if credential == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing credential")
	}

	userID, role, err := h.tokens.Verify(credential)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credential")
	}

	// The token may outlive the account it was issued for.
	u, err := h.users.ResolveUserInfo(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown subject")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(userID, role, u.Name, &gorillaConnAdapter{conn})
	h.hub.Register(client)
	h.log.Debug().Str("user_id", userID.String()).Msg("client connected")

	go client.writePump()
	go h.readPump(client)
	return nil
}

type clientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	OtherUserID uuid.UUID `json:"other_user_id"`
}

type sendPayload struct {
	ReceiverID    uuid.UUID `json:"receiver_id"`
	Text          string    `json:"text"`
	CorrelationID string    `json:"correlation_id"`
}

type errorPayload struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Error         string `json:"error"`
}

// readPump reads client events until the connection drops. A failed
// operation never terminates the connection: validation and storage
// failures come back as a message:error frame, authorization failures
// produce nothing at all.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
		h.log.Debug().Str("user_id", client.UserID.String()).Msg("client disconnected")
	}()

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev clientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue // Ignore malformed frames.
		}
		h.dispatch(client, ev)
	}
}

func (h *Handler) dispatch(client *Client, ev clientEvent) {
	ctx := context.Background()
	switch ev.Event {
	case "joinConversation":
		var p joinPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		h.hub.Join(ctx, client, p.OtherUserID)
	case "leaveConversation":
		var p joinPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		h.hub.Leave(client, p.OtherUserID)
	case "sendMessage":
		var p sendPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if _, err := h.svc.Send(ctx, client.UserID, p.ReceiverID, p.Text, p.CorrelationID); err != nil {
			if errors.Is(err, messaging.ErrUnauthorized) {
				// Denied sends stay silent so a probing client learns
				// nothing about the relationship.
				h.log.Warn().
					Str("user_id", client.UserID.String()).
					Str("receiver_id", p.ReceiverID.String()).
					Msg("send denied")
				return
			}
			h.sendError(client, p.CorrelationID, err)
		}
	}
}

// sendError reports a failed operation back to the offending client only.
// Never used for authorization failures, which are dropped silently.
func (h *Handler) sendError(client *Client, correlationID string, err error) {
	data := marshalEvent(h.log, "message:error", errorPayload{
		CorrelationID: correlationID,
		Error:         err.Error(),
	})
	if data == nil {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy Conn.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}

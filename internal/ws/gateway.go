package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"cmc-connect/internal/auth"
	"cmc-connect/internal/models"
	"cmc-connect/internal/observability"
)

// tokenValidator resolves a bearer token to a session. Satisfied by
// *auth.Service.
type tokenValidator interface {
	Validate(token string) (auth.Session, error)
}

// Gateway upgrades HTTP requests into chat websocket connections and ties
// each connection's lifecycle to the hub.
type Gateway struct {
	hub  *Hub
	auth tokenValidator
}

func NewGateway(hub *Hub, auth tokenValidator) *Gateway {
	return &Gateway{hub: hub, auth: auth}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and runs the connection. Browsers cannot
// set headers on websocket requests, so the token may also arrive as a
// query parameter.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("cmc-connect/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}

	session, err := g.auth.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	ip := observability.IPFromRequest(c.Request)
	connectedAt := time.Now()

	client := NewClient(session.UserID, uuid.NewString(), conn)
	g.hub.Connect(client)
	go client.WritePump()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: observability.WSEventPayload{
			Event:  "ws_connect",
			ConnID: client.ConnID,
			UserID: client.UserID,
			IP:     ip,
		},
	}, observability.BuildHeaders(requestID, traceID))

	go func() {
		err := client.ReadPump(func(ev models.ClientEvent) {
			g.hub.Dispatch(client.UserID, ev)
		})

		var closeReason string
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
		}

		g.hub.Disconnect(client)
		client.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload: observability.WSEventPayload{
				Event:      "ws_disconnect",
				ConnID:     client.ConnID,
				UserID:     client.UserID,
				IP:         ip,
				DurationMS: time.Since(connectedAt).Milliseconds(),
				Reason:     closeReason,
			},
		}, observability.BuildHeaders(requestID, traceID))
	}()
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

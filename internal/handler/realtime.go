package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/jehyuk/seatgate/internal/realtime"
)

// RealtimeHandler upgrades queue clients to a websocket so admissions and
// rank changes reach them as pushes instead of polls.
type RealtimeHandler struct {
	Gateway  *realtime.Gateway
	upgrader websocket.Upgrader
}

// NewRealtimeHandler constructs a RealtimeHandler.  The origin check is
// left open because authentication happens via the JWT middleware, not the
// Origin header, and queue pages are served from a separate frontend host.
func NewRealtimeHandler(gw *realtime.Gateway) *RealtimeHandler {
	if gw == nil {
		panic("nil gateway passed to NewRealtimeHandler")
	}
	return &RealtimeHandler{
		Gateway: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Stream handles GET /v1/events/:id/stream.  HandleConn blocks until the
// peer disconnects, so the upgraded connection lives for the duration of
// this handler.
func (h *RealtimeHandler) Stream(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	eventID := c.Param("id")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	sock, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}
	h.Gateway.HandleConn(eventID, userID, sock)
	return nil
}

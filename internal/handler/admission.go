package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/jehyuk/seatgate/internal/middleware"
	"github.com/jehyuk/seatgate/internal/waitroom"
)

// Queue statuses reported to clients polling their position.
const (
	statusWaiting  = "WAITING"
	statusAdmitted = "ADMITTED"
	statusExpired  = "EXPIRED"
)

// accessKeyHeader carries the opaque grant token on requests made from
// inside the purchase flow.
const accessKeyHeader = "X-Access-Key"

// AdmissionHandler exposes the waiting-room surface: joining the queue,
// polling status, extending an active session and leaving.  All methods
// assume JWT authentication has already run, so the caller's identity is
// read from the context.
type AdmissionHandler struct {
	Queue  *waitroom.WaitQueue
	Grants *waitroom.GrantStore
}

// NewAdmissionHandler constructs an AdmissionHandler.  All dependencies
// must be non-nil.
func NewAdmissionHandler(queue *waitroom.WaitQueue, grants *waitroom.GrantStore) *AdmissionHandler {
	if queue == nil || grants == nil {
		panic("nil dependency passed to NewAdmissionHandler")
	}
	return &AdmissionHandler{Queue: queue, Grants: grants}
}

// Enter handles POST /v1/events/:id/queue.  Joining is idempotent: a user
// already in line keeps their original position, and a user who already
// holds a grant is reported as admitted instead of being re-queued.
func (h *AdmissionHandler) Enter(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	eventID := c.Param("id")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()

	if grant, ttl, ok, err := h.Grants.Peek(ctx, eventID, userID); err == nil && ok {
		return c.JSON(http.StatusOK, echo.Map{
			"status":     statusAdmitted,
			"access_key": grant.Token,
			"expires_in": int64(ttl.Seconds()),
		})
	}

	rank, err := h.Queue.Enqueue(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, waitroom.ErrTooManyRequests) {
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "queue is saturated, retry shortly"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to join queue"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": statusWaiting, "rank": rank})
}

// Status handles GET /v1/events/:id/queue/status.  The response status is
// ADMITTED when a live grant exists, WAITING with a 1-based rank while
// queued, and EXPIRED when the user is in neither place (never entered, or
// their session ran out).
func (h *AdmissionHandler) Status(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	eventID := c.Param("id")
	ctx := c.Request().Context()

	if grant, ttl, ok, err := h.Grants.Peek(ctx, eventID, userID); err == nil && ok {
		return c.JSON(http.StatusOK, echo.Map{
			"status":     statusAdmitted,
			"access_key": grant.Token,
			"expires_in": int64(ttl.Seconds()),
		})
	}

	rank, ok, err := h.Queue.Rank(ctx, eventID, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read queue"})
	}
	if ok {
		return c.JSON(http.StatusOK, echo.Map{"status": statusWaiting, "rank": rank})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": statusExpired})
}

// Extend handles PATCH /v1/events/:id/session.  A heartbeat from an active
// client pushes the session deadline out, up to the per-session ceiling.
func (h *AdmissionHandler) Extend(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	eventID := c.Param("id")
	ctx := c.Request().Context()

	if err := h.Grants.Verify(ctx, eventID, userID, c.Request().Header.Get(accessKeyHeader)); err != nil {
		return grantError(c, err)
	}
	ttl, err := h.Grants.Extend(ctx, eventID, userID)
	if err != nil {
		return grantError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": statusAdmitted, "expires_in": int64(ttl.Seconds())})
}

// Leave handles DELETE /v1/events/:id/session.  It works both for queued
// users (drop out of line) and for admitted users (give up the slot so the
// scheduler can admit the next waiter sooner).
func (h *AdmissionHandler) Leave(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	eventID := c.Param("id")
	ctx := c.Request().Context()

	if _, err := h.Queue.Remove(ctx, eventID, userID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to leave queue"})
	}
	if err := h.Grants.Invalidate(ctx, eventID, userID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to end session"})
	}
	return c.NoContent(http.StatusNoContent)
}

// requireUserID extracts the authenticated user from the context or
// responds 401.  The returned error, when non-nil, has already been
// written to the client.
func requireUserID(c echo.Context) (string, error) {
	uid := middleware.UserID(c)
	if uid == "" {
		return "", c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return uid, nil
}

// grantError maps grant verification failures onto HTTP statuses: a wrong
// key is 401 and a vanished session is 410 so clients know to re-queue.
func grantError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, waitroom.ErrInvalidAccessKey):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid access key"})
	case errors.Is(err, waitroom.ErrSessionExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "session expired, rejoin the queue"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session lookup failed"})
	}
}

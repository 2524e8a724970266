package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jehyuk/seatgate/internal/repository"
	"github.com/jehyuk/seatgate/internal/seat"
	"github.com/jehyuk/seatgate/internal/waitroom"
)

// SeatHandler exposes the seat map and the hold/release operations.  The
// seat map is public (clients in the waiting room may preview it) while
// holds require a live access grant, keeping the write path behind the
// admission controller.
type SeatHandler struct {
	Seats   seat.StateStore
	Grants  *waitroom.GrantStore
	Catalog seat.Catalog
	HoldTTL time.Duration
}

// NewSeatHandler constructs a SeatHandler.  All dependencies must be non-nil.
func NewSeatHandler(seats seat.StateStore, grants *waitroom.GrantStore, catalog seat.Catalog, holdTTL time.Duration) *SeatHandler {
	if seats == nil || grants == nil || catalog == nil {
		panic("nil dependency passed to NewSeatHandler")
	}
	return &SeatHandler{Seats: seats, Grants: grants, Catalog: catalog, HoldTTL: holdTTL}
}

// seatView is the wire shape of one seat in the map response.
type seatView struct {
	SeatID    string `json:"seat_id"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at,omitempty"` // RFC 3339, held seats only
}

// List handles GET /v1/events/:id/seats.  It serves purely from the seat
// cache; an event with no cached seats is distinguished from an unknown
// event by checking the catalog before answering 404.
func (h *SeatHandler) List(c echo.Context) error {
	eventID := c.Param("id")
	ctx := c.Request().Context()

	records, err := h.Seats.List(ctx, eventID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seat map"})
	}
	if len(records) == 0 {
		if _, err := h.Catalog.SeatsForEvent(ctx, eventID); err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seat map"})
		}
		// Known event whose seats have not been warmed yet.
		return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "seats": []seatView{}})
	}

	views := make([]seatView, 0, len(records))
	for _, rec := range records {
		v := seatView{SeatID: rec.SeatID, Status: string(rec.Status)}
		if rec.ExpiresAt != nil {
			v.ExpiresAt = rec.ExpiresAt.UTC().Format(time.RFC3339)
		}
		views = append(views, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "seats": views})
}

// Hold handles POST /v1/events/:id/seats/:seat/hold.  The seat flips
// AVAILABLE -> HELD atomically; losing the race returns 409 with the
// seat's current state so clients can refresh just that seat.
func (h *SeatHandler) Hold(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	eventID, seatID := c.Param("id"), c.Param("seat")
	ctx := c.Request().Context()

	if err := h.Grants.Verify(ctx, eventID, userID, c.Request().Header.Get(accessKeyHeader)); err != nil {
		return grantError(c, err)
	}

	if err := h.Seats.Hold(ctx, eventID, seatID, userID, h.HoldTTL); err != nil {
		if errors.Is(err, seat.ErrSeatConflict) {
			rec, ok, _ := h.Seats.Get(ctx, eventID, seatID)
			status := ""
			if ok {
				status = string(rec.Status)
			}
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat not available", "status": status})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to hold seat"})
	}
	expires := time.Now().Add(h.HoldTTL).UTC()
	return c.JSON(http.StatusCreated, echo.Map{
		"seat_id":    seatID,
		"status":     string(seat.StatusHeld),
		"expires_at": expires.Format(time.RFC3339),
	})
}

// Release handles DELETE /v1/events/:id/seats/:seat/hold.  Only the
// holder may release; anyone else gets 403 and a seat that is not held
// gets 409.
func (h *SeatHandler) Release(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	eventID, seatID := c.Param("id"), c.Param("seat")
	ctx := c.Request().Context()

	if err := h.Grants.Verify(ctx, eventID, userID, c.Request().Header.Get(accessKeyHeader)); err != nil {
		return grantError(c, err)
	}

	if err := h.Seats.Release(ctx, eventID, seatID, userID); err != nil {
		switch {
		case errors.Is(err, seat.ErrNotHolder):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "seat held by another user"})
		case errors.Is(err, seat.ErrSeatConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat is not held"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release seat"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

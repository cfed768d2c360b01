package handler

import (
	"errors"   // for errors.Is comparisons against domain sentinels
	"net/http" // HTTP status codes
	"strings"  // slot-key prefix filtering
	"time"     // expiry timestamps in responses

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/recomplejos/court-booking/internal/availability"
	"github.com/recomplejos/court-booking/internal/hold"
	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/payment"
	"github.com/recomplejos/court-booking/internal/slotkey"
	"github.com/recomplejos/court-booking/internal/store"
	"github.com/recomplejos/court-booking/internal/token"
)

// BookingHandler groups the collaborators needed to take a booking
// from request to open payment session, and to serve the operator's
// calendar views.  The booking flow is strictly ordered: validate the
// slot, claim the hold, open the payment session; any later failure
// rolls the hold back so the slot frees immediately.
type BookingHandler struct {
	Validator    *availability.Validator
	Facilities   availability.FacilitySource
	Holds        *hold.Manager
	Orchestrator *payment.Orchestrator
	Store        store.Store
}

// NewBookingHandler constructs a BookingHandler.  All dependencies
// must be non-nil.
func NewBookingHandler(v *availability.Validator, facilities availability.FacilitySource, holds *hold.Manager, orch *payment.Orchestrator, s store.Store) *BookingHandler {
	if v == nil || facilities == nil || holds == nil || orch == nil || s == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Validator: v, Facilities: facilities, Holds: holds, Orchestrator: orch, Store: s}
}

// bookingRequest is the POST /v1/bookings body.  AmountCents is
// optional; when zero the resource or facility deposit applies.
type bookingRequest struct {
	FacilityID    string `json:"facility_id"`
	Resource      string `json:"resource"`
	Date          string `json:"date"` // YYYY-MM-DD
	Time          string `json:"time"` // HH:MM
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	AmountCents   int64  `json:"amount_cents,omitempty"`
	Title         string `json:"title,omitempty"`
}

// CreateBooking handles POST /v1/bookings.  On success it responds 201
// with the slot key, the lease expiry and the checkout redirect URL.
// Validation failures map to 400 with a machine-readable reason, an
// occupied slot to 409, a facility without gateway credentials to 409
// and gateway failures to 502.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var body bookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.FacilityID == "" || body.Resource == "" || body.Date == "" || body.Time == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "facility_id, resource, date and time are required"})
	}
	if body.CustomerName == "" || body.CustomerPhone == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_name and customer_phone are required"})
	}

	ctx := c.Request().Context()
	resource, err := h.Validator.Validate(ctx, body.FacilityID, body.Resource, body.Date, body.Time)
	if err != nil {
		var verr *availability.Error
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Reason})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
	}

	amount := body.AmountCents
	if amount <= 0 {
		amount = resource.DepositCents
	}
	if amount <= 0 {
		fac, err := h.Facilities.Get(ctx, body.FacilityID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load facility failed"})
		}
		amount = fac.DepositCents
	}
	if amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no deposit amount configured"})
	}

	key := slotkey.Derive(body.FacilityID, body.Resource, body.Date, body.Time)
	rec, err := h.Holds.TryHold(ctx, key, hold.Metadata{
		FacilityID:    body.FacilityID,
		CustomerName:  body.CustomerName,
		CustomerPhone: body.CustomerPhone,
		AmountCents:   amount,
	})
	if err != nil {
		if errors.Is(err, hold.ErrSlotTaken) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "slot_taken"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hold failed"})
	}

	sess, err := h.Orchestrator.OpenSession(ctx, key, body.FacilityID, body.Title)
	if err != nil {
		// The orchestrator already released the hold on gateway and
		// credential failures; only the status code is decided here.
		if errors.Is(err, token.ErrNotConnected) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "facility_not_connected"})
		}
		if errors.Is(err, payment.ErrNoLiveHold) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "slot_taken"})
		}
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment_session_failed"})
	}

	resp := echo.Map{
		"slot_key":      key,
		"preference_id": sess.PreferenceID,
		"redirect_url":  sess.RedirectURL,
	}
	if rec.HoldExpiresAt != nil {
		resp["hold_expires_at"] = rec.HoldExpiresAt.UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Availability handles GET /v1/facilities/:id/availability.  With a
// time parameter it is a point query for one slot, answering
// {available, reason?}; the reason distinguishes a validation failure
// (unknown resource, outside opening hours, slot in the past) from an
// occupied slot.  Without a time it returns the day view: the occupied
// times for one resource and date as a map of "HH:MM" to status.
// Either way, expired leases count as free even before the sweeper
// removes them.
func (h *BookingHandler) Availability(c echo.Context) error {
	facilityID := c.Param("id")
	resource := c.QueryParam("resource")
	date := c.QueryParam("date")
	if resource == "" || date == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "resource and date are required"})
	}
	ctx := c.Request().Context()

	if clock := c.QueryParam("time"); clock != "" {
		if _, err := h.Validator.Validate(ctx, facilityID, resource, date, clock); err != nil {
			var verr *availability.Error
			if errors.As(err, &verr) {
				return c.JSON(http.StatusOK, echo.Map{"available": false, "reason": verr.Reason})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
		}
		key := slotkey.Derive(facilityID, resource, date, clock)
		rec, err := h.Store.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusOK, echo.Map{"available": true})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
		}
		if rec.Blocks(time.Now()) {
			return c.JSON(http.StatusOK, echo.Map{"available": false, "reason": "slot_taken"})
		}
		return c.JSON(http.StatusOK, echo.Map{"available": true})
	}
	if _, err := h.Facilities.Get(ctx, facilityID); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "facility not found"})
	}

	prefix := slotkey.Normalize(facilityID) + "-" + slotkey.Normalize(resource) + "-" + date + "-"
	all, err := h.Store.ListAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "listing failed"})
	}
	now := time.Now()
	taken := map[string]model.ReservationStatus{}
	for key, rec := range all {
		if !strings.HasPrefix(key, prefix) || !rec.Blocks(now) {
			continue
		}
		if parts := slotkey.Parse(key); parts != nil {
			taken[parts.Time] = rec.Status
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"facility_id": facilityID, "date": date, "taken": taken})
}

// ListReservations handles GET /v1/facilities/:id/reservations, the
// operator calendar.  It returns every live record owned by the
// facility keyed by slot key, skipping expired leases.
func (h *BookingHandler) ListReservations(c echo.Context) error {
	facilityID := c.Param("id")
	ctx := c.Request().Context()
	all, err := h.Store.ListAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "listing failed"})
	}
	now := time.Now()
	out := map[string]*model.ReservationRecord{}
	for key, rec := range all {
		if rec.FacilityID == facilityID && rec.Blocks(now) {
			out[key] = rec
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// operatorRecordRequest is the POST /v1/facilities/:id/reservations
// body for manual and blocked records.
type operatorRecordRequest struct {
	Resource      string `json:"resource"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"` // "manual" or "blocked"
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

// CreateOperatorRecord handles POST /v1/facilities/:id/reservations.
// Operators enter phone bookings as "manual" and close slots off as
// "blocked"; both skip payment entirely and never expire.
func (h *BookingHandler) CreateOperatorRecord(c echo.Context) error {
	facilityID := c.Param("id")
	var body operatorRecordRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	status := model.ReservationStatus(body.Status)
	if status != model.StatusManual && status != model.StatusBlocked {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be manual or blocked"})
	}

	ctx := c.Request().Context()
	if _, err := h.Validator.Validate(ctx, facilityID, body.Resource, body.Date, body.Time); err != nil {
		var verr *availability.Error
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Reason})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
	}

	key := slotkey.Derive(facilityID, body.Resource, body.Date, body.Time)
	rec := &model.ReservationRecord{
		Status:        status,
		FacilityID:    facilityID,
		CustomerName:  body.CustomerName,
		CustomerPhone: body.CustomerPhone,
	}
	if err := h.Holds.Place(ctx, key, rec); err != nil {
		if errors.Is(err, hold.ErrSlotTaken) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "slot_taken"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "place failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"slot_key": key, "status": status})
}

// DeleteReservation handles DELETE /v1/facilities/:id/reservations/:key.
// This is the administrative exit for approved, manual and blocked
// records; it also cancels live holds.  The record must belong to the
// facility in the path.
func (h *BookingHandler) DeleteReservation(c echo.Context) error {
	facilityID := c.Param("id")
	key := c.Param("key")
	ctx := c.Request().Context()

	rec, err := h.Store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	if rec.FacilityID != facilityID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	if err := h.Store.Delete(ctx, key, rec.Version); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		if errors.Is(err, store.ErrVersionConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation changed, retry"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

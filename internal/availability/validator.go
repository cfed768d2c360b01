// Package availability checks a requested slot against facility
// configuration and the current time.  It is a leaf dependency of both
// the booking and the availability-query flows and never touches the
// reservation store.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/repository"
	"github.com/recomplejos/court-booking/internal/slotkey"
)

// Validation failure reasons, returned inside *Error.  They double as
// machine-readable reason codes in availability-query responses.
const (
	ReasonUnknownFacility = "unknown_facility"
	ReasonUnknownResource = "unknown_resource"
	ReasonInvalidDate     = "invalid_date"
	ReasonInvalidTime     = "invalid_time"
	ReasonSlotInPast      = "slot_in_past"
	ReasonOutsideHours    = "outside_opening_hours"
)

// Error is a user-correctable validation failure.  Reason is one of
// the Reason* constants above.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "availability: " + e.Reason }

// FacilitySource yields facility configuration by ID.  Production code
// passes the versioned read-through cache from the repository package.
type FacilitySource interface {
	Get(ctx context.Context, id string) (*model.Facility, error)
}

// Validator validates slot requests against facility configuration.
// The clock is injectable for tests and defaults to time.Now.
type Validator struct {
	facilities FacilitySource
	now        func() time.Time
}

// NewValidator returns a Validator reading configuration through the
// provided source.
func NewValidator(facilities FacilitySource) *Validator {
	return &Validator{facilities: facilities, now: time.Now}
}

// Validate checks, in order: the facility exists, the resource exists
// (matched on normalized slug), the date and time parse, the slot
// start is in the future in facility-local time, and the start falls
// inside that weekday's opening window.  It returns the matched
// resource on success and the first failing reason otherwise; it never
// partially validates.
func (v *Validator) Validate(ctx context.Context, facilityID, resourceName, date, clock string) (*model.Resource, error) {
	fac, err := v.facilities.Get(ctx, facilityID)
	if err != nil {
		if errors.Is(err, repository.ErrFacilityNotFound) {
			return nil, &Error{Reason: ReasonUnknownFacility}
		}
		return nil, fmt.Errorf("load facility config: %w", err)
	}

	slug := slotkey.Normalize(resourceName)
	var res *model.Resource
	for i := range fac.Resources {
		if slotkey.Normalize(fac.Resources[i].Name) == slug {
			res = &fac.Resources[i]
			break
		}
	}
	if res == nil {
		return nil, &Error{Reason: ReasonUnknownResource}
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, &Error{Reason: ReasonInvalidDate}
	}
	minutes, err := parseClock(clock)
	if err != nil {
		return nil, &Error{Reason: ReasonInvalidTime}
	}

	// Facility-local civil time with a fixed offset; no DST rules.
	loc := time.FixedZone("facility", fac.UTCOffsetMinutes*60)
	start := time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)
	if !start.After(v.now()) {
		return nil, &Error{Reason: ReasonSlotInPast}
	}

	window := fac.DefaultWindow
	if w, ok := fac.Hours[strings.ToLower(start.Weekday().String())]; ok {
		window = w
	}
	ok, err := windowContains(window, minutes)
	if err != nil {
		return nil, fmt.Errorf("facility %q opening hours: %w", facilityID, err)
	}
	if !ok {
		return nil, &Error{Reason: ReasonOutsideHours}
	}
	return res, nil
}

// windowContains reports whether a slot starting at the given minute of
// the day falls within the window.  Open > close means the window
// spans midnight; equal endpoints mean open all day.
func windowContains(w model.Window, minute int) (bool, error) {
	open, err := parseClock(w.Open)
	if err != nil {
		return false, fmt.Errorf("bad open %q: %w", w.Open, err)
	}
	close, err := parseClock(w.Close)
	if err != nil {
		return false, fmt.Errorf("bad close %q: %w", w.Close, err)
	}
	switch {
	case open == close:
		return true, nil
	case open < close:
		return minute >= open && minute < close, nil
	default: // wraps past midnight
		return minute >= open || minute < close, nil
	}
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

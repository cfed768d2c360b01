// Package slotkey derives the canonical identifier for one bookable
// time unit.  Cosmetic variants of a resource name ("Cancha 1",
// "cancha-1", "CANCHÁ 1") intentionally collide on the same key so
// that presentation skew can never yield two records for one slot.
package slotkey

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Sections of a key are joined with "-".  Normalized sections contain
// only [a-z0-9], so the dashes inside the date section cannot be
// confused with separators by the fixed-format pattern below.
var keyPattern = regexp.MustCompile(`^([a-z0-9]+)-([a-z0-9]+)-(\d{4}-\d{2}-\d{2})-(\d{2}:\d{2})$`)

// Parts is the decomposition of a well-formed slot key.
type Parts struct {
	FacilityID   string // normalized facility identifier
	ResourceSlug string // normalized resource name
	Date         string // ISO date, YYYY-MM-DD
	Time         string // HH:MM in facility-local time
}

// Normalize lowercases the name, strips diacritics via Unicode
// decomposition and drops everything outside [a-z0-9].  It is
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(name string) string {
	decomposed := norm.NFD.String(strings.ToLower(name))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark left over from decomposition
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Derive builds the canonical key for a (facility, resource, date,
// time) tuple.  It is a pure function: equal inputs always produce the
// same key, and resource names that normalize identically collide.
// The date must be formatted YYYY-MM-DD and the time HH:MM; Derive
// does not validate them, Parse simply rejects malformed output.
func Derive(facilityID, resourceName, date, clock string) string {
	return fmt.Sprintf("%s-%s-%s-%s", Normalize(facilityID), Normalize(resourceName), date, clock)
}

// Parse is the inverse of Derive.  It returns nil for any string that
// does not match the fixed key format; callers treat nil as
// "unresolvable, skip" rather than as an error.
func Parse(key string) *Parts {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return nil
	}
	return &Parts{FacilityID: m[1], ResourceSlug: m[2], Date: m[3], Time: m[4]}
}

package slotkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("Lowercase And Strip", func(t *testing.T) {
		assert.Equal(t, "cancha1", Normalize("Cancha 1"))
		assert.Equal(t, "cancha1", Normalize("  cancha-1  "))
		assert.Equal(t, "cancha1", Normalize("CANCHÁ 1"))
	})

	t.Run("Diacritics", func(t *testing.T) {
		assert.Equal(t, "futbol5", Normalize("Fútbol 5"))
		assert.Equal(t, "padelnino", Normalize("Pádel Niño"))
	})

	t.Run("Idempotent", func(t *testing.T) {
		for _, s := range []string{"Cancha 1", "Fútbol 5", "", "ya-normalized", "___"} {
			once := Normalize(s)
			assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", s)
		}
	})

	t.Run("Empty Result", func(t *testing.T) {
		assert.Equal(t, "", Normalize("¡¡¡---!!!"))
	})
}

func TestDerive(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		a := Derive("club-a", "Cancha 1", "2024-05-01", "20:00")
		b := Derive("club-a", "Cancha 1", "2024-05-01", "20:00")
		assert.Equal(t, a, b)
	})

	t.Run("Cosmetic Variants Collide", func(t *testing.T) {
		a := Derive("A", "Cancha 1", "2024-05-01", "20:00")
		b := Derive("a", "CANCHÁ-1", "2024-05-01", "20:00")
		assert.Equal(t, a, b, "names differing only by case/accents/whitespace must map to one key")
	})

	t.Run("Distinct Slots Differ", func(t *testing.T) {
		a := Derive("a", "cancha1", "2024-05-01", "20:00")
		b := Derive("a", "cancha1", "2024-05-01", "21:00")
		c := Derive("a", "cancha2", "2024-05-01", "20:00")
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, a, c)
	})
}

func TestParse(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		key := Derive("Club A", "Cancha 1", "2024-05-01", "20:00")
		p := Parse(key)
		if assert.NotNil(t, p) {
			assert.Equal(t, "cluba", p.FacilityID)
			assert.Equal(t, "cancha1", p.ResourceSlug)
			assert.Equal(t, "2024-05-01", p.Date)
			assert.Equal(t, "20:00", p.Time)
		}
	})

	t.Run("Malformed Returns Nil", func(t *testing.T) {
		for _, key := range []string{
			"",
			"just-a-string",
			"a-cancha1-2024-05-01",       // missing time
			"a-cancha1-20240501-20:00",   // bad date format
			"a-cancha1-2024-05-01-2000",  // bad time format
			"A-cancha1-2024-05-01-20:00", // non-normalized section
		} {
			assert.Nil(t, Parse(key), "expected nil for %q", key)
		}
	})
}

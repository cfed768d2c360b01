package hold

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/store"
)

const testKey = "cluba-cancha1-2024-05-01-20:00"

func newTestManager(s store.Store, now time.Time) *Manager {
	m := NewManager(s, 10*time.Minute, time.Minute)
	m.now = func() time.Time { return now }
	return m
}

func TestTryHold(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)

	t.Run("Grants On Free Slot", func(t *testing.T) {
		m := newTestManager(store.NewMemoryStore(), now)
		rec, err := m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a", CustomerName: "Ana"})
		require.NoError(t, err)
		assert.Equal(t, model.StatusHold, rec.Status)
		require.NotNil(t, rec.HoldExpiresAt)
		assert.Equal(t, now.Add(10*time.Minute), *rec.HoldExpiresAt)
	})

	t.Run("Denies Second Hold", func(t *testing.T) {
		m := newTestManager(store.NewMemoryStore(), now)
		_, err := m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a"})
		require.NoError(t, err)
		_, err = m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a"})
		assert.ErrorIs(t, err, ErrSlotTaken)
	})

	t.Run("Denies On Terminal Records", func(t *testing.T) {
		for _, status := range []model.ReservationStatus{model.StatusApproved, model.StatusManual, model.StatusBlocked} {
			s := store.NewMemoryStore()
			_, err := s.CreateIfAbsent(ctx, testKey, &model.ReservationRecord{Status: status, FacilityID: "club-a"})
			require.NoError(t, err)
			m := newTestManager(s, now)
			_, err = m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a"})
			assert.ErrorIs(t, err, ErrSlotTaken, "status %s must deny", status)
		}
	})

	t.Run("Expired Hold Is Free", func(t *testing.T) {
		s := store.NewMemoryStore()
		m := newTestManager(s, now)
		_, err := m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a", CustomerName: "Ana"})
		require.NoError(t, err)

		later := newTestManager(s, now.Add(11*time.Minute))
		rec, err := later.TryHold(ctx, testKey, Metadata{FacilityID: "club-a", CustomerName: "Bruno"})
		require.NoError(t, err, "an expired hold must be indistinguishable from a free slot")
		assert.Equal(t, "Bruno", rec.CustomerName)
	})

	t.Run("Expired Pending Is Free", func(t *testing.T) {
		s := store.NewMemoryStore()
		expired := now.Add(-time.Minute)
		_, err := s.CreateIfAbsent(ctx, testKey, &model.ReservationRecord{
			Status:        model.StatusPending,
			HoldExpiresAt: &expired,
			FacilityID:    "club-a",
		})
		require.NoError(t, err)

		m := newTestManager(s, now)
		_, err = m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a"})
		assert.NoError(t, err)
	})

	t.Run("Exactly One Of N Concurrent Wins", func(t *testing.T) {
		m := newTestManager(store.NewMemoryStore(), now)
		const n = 32
		var wg sync.WaitGroup
		granted := make(chan struct{}, n)
		denied := make(chan struct{}, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a"}); err == nil {
					granted <- struct{}{}
				} else {
					denied <- struct{}{}
				}
			}()
		}
		wg.Wait()
		assert.Len(t, granted, 1, "exactly one concurrent tryHold must be granted")
		assert.Len(t, denied, n-1)
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)

	t.Run("Frees Held Slot Immediately", func(t *testing.T) {
		s := store.NewMemoryStore()
		m := newTestManager(s, now)
		_, err := m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a"})
		require.NoError(t, err)

		require.NoError(t, m.Release(ctx, testKey))
		_, err = s.Get(ctx, testKey)
		assert.ErrorIs(t, err, store.ErrNotFound, "release must remove the record, not wait for the sweep")

		// The slot is immediately claimable again.
		_, err = m.TryHold(ctx, testKey, Metadata{FacilityID: "club-a"})
		assert.NoError(t, err)
	})

	t.Run("Leaves Terminal Records", func(t *testing.T) {
		s := store.NewMemoryStore()
		_, err := s.CreateIfAbsent(ctx, testKey, &model.ReservationRecord{Status: model.StatusApproved, FacilityID: "club-a"})
		require.NoError(t, err)
		m := newTestManager(s, now)
		require.NoError(t, m.Release(ctx, testKey))
		rec, err := s.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, model.StatusApproved, rec.Status)
	})

	t.Run("NoOp On Free Slot", func(t *testing.T) {
		m := newTestManager(store.NewMemoryStore(), now)
		assert.NoError(t, m.Release(ctx, testKey))
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)

	t.Run("Removes Only Expired Holds", func(t *testing.T) {
		s := store.NewMemoryStore()
		expired := now.Add(-time.Minute)
		live := now.Add(5 * time.Minute)
		seed := map[string]*model.ReservationRecord{
			"k-expired-2024-05-01-10:00":  {Status: model.StatusHold, HoldExpiresAt: &expired},
			"k-live-2024-05-01-11:00":     {Status: model.StatusHold, HoldExpiresAt: &live},
			"k-pending-2024-05-01-12:00":  {Status: model.StatusPending, HoldExpiresAt: &expired},
			"k-approved-2024-05-01-13:00": {Status: model.StatusApproved},
			"k-blocked-2024-05-01-14:00":  {Status: model.StatusBlocked},
		}
		for k, r := range seed {
			_, err := s.CreateIfAbsent(ctx, k, r)
			require.NoError(t, err)
		}

		m := newTestManager(s, now)
		require.NoError(t, m.SweepExpired(ctx))

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.NotContains(t, all, "k-expired-2024-05-01-10:00")
		assert.Contains(t, all, "k-live-2024-05-01-11:00")
		assert.Contains(t, all, "k-pending-2024-05-01-12:00", "pending records are the reconciler's to clean up")
		assert.Contains(t, all, "k-approved-2024-05-01-13:00")
		assert.Contains(t, all, "k-blocked-2024-05-01-14:00")
	})
}

package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/store/memstore"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestCoordinator(st *memstore.Store) *Coordinator {
	c := NewCoordinator(st, 15*time.Minute, 90*24*time.Hour, observability.NewLogger())
	c.now = func() time.Time { return baseTime }
	return c
}

func seedOpenSlot(st *memstore.Store, providerID uuid.UUID, start time.Time) domain.Slot {
	slot := domain.Slot{
		ID:         domain.SlotID(providerID, start),
		ProviderID: providerID,
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Status:     domain.SlotOpen,
	}
	st.Seed(slot)
	return slot
}

func holdReq(providerID uuid.UUID, start time.Time) HoldRequest {
	return HoldRequest{
		BookingID:       uuid.New(),
		ClientID:        uuid.New(),
		ProviderID:      providerID,
		StartTime:       start,
		DurationMinutes: 60,
		Price:           30000,
		Currency:        "aed",
	}
}

func TestHoldHappyPath(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)

	provider := uuid.New()
	start := baseTime.Add(time.Hour)
	slot := seedOpenSlot(st, provider, start)

	booking, err := c.Hold(ctx, holdReq(provider, start))
	require.NoError(t, err)
	require.Equal(t, domain.BookingPending, booking.Status)
	require.Equal(t, domain.PaymentPending, booking.Payment.Status)
	require.Equal(t, slot.ID, booking.SlotID)
	require.Equal(t, slot.StartTime, booking.StartTime)
	require.Equal(t, slot.EndTime, booking.EndTime)

	got, err := st.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SlotHeld, got.Status)
	require.NotNil(t, got.HoldExpiresAt)
	require.Equal(t, baseTime.Add(15*time.Minute), *got.HoldExpiresAt)
}

func TestHoldValidation(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)
	provider := uuid.New()
	start := baseTime.Add(time.Hour)
	seedOpenSlot(st, provider, start)

	req := holdReq(provider, start)
	req.Price = 0
	_, err := c.Hold(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidPrice)

	req = holdReq(provider, baseTime.Add(-time.Hour))
	_, err = c.Hold(ctx, req)
	require.ErrorIs(t, err, domain.ErrStartInPast)

	req = holdReq(provider, baseTime)
	_, err = c.Hold(ctx, req)
	require.ErrorIs(t, err, domain.ErrStartInPast)

	req = holdReq(provider, baseTime.Add(91*24*time.Hour))
	_, err = c.Hold(ctx, req)
	require.ErrorIs(t, err, domain.ErrStartTooFar)

	// No store mutation happened for any rejected request.
	got, err := st.GetSlot(ctx, domain.SlotID(provider, start))
	require.NoError(t, err)
	require.Equal(t, domain.SlotOpen, got.Status)
}

func TestHoldSlotNotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(memstore.New())

	_, err := c.Hold(ctx, holdReq(uuid.New(), baseTime.Add(time.Hour)))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHoldSecondCallerLoses(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)
	provider := uuid.New()
	start := baseTime.Add(time.Hour)
	seedOpenSlot(st, provider, start)

	_, err := c.Hold(ctx, holdReq(provider, start))
	require.NoError(t, err)

	_, err = c.Hold(ctx, holdReq(provider, start))
	var su *domain.SlotUnavailableError
	require.ErrorAs(t, err, &su)
	require.Equal(t, domain.SlotHeld, su.Status)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestHoldIdempotentRetry(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)
	provider := uuid.New()
	start := baseTime.Add(time.Hour)
	seedOpenSlot(st, provider, start)

	req := holdReq(provider, start)
	first, err := c.Hold(ctx, req)
	require.NoError(t, err)

	second, err := c.Hold(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestHoldBookingIDConflict(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)
	provider := uuid.New()
	startA := baseTime.Add(time.Hour)
	startB := baseTime.Add(2 * time.Hour)
	seedOpenSlot(st, provider, startA)
	seedOpenSlot(st, provider, startB)

	req := holdReq(provider, startA)
	_, err := c.Hold(ctx, req)
	require.NoError(t, err)

	// Same booking id against a different slot.
	req.StartTime = startB
	_, err = c.Hold(ctx, req)
	require.ErrorIs(t, err, domain.ErrBookingConflict)
}

func TestHoldReclaimsExpiredHold(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)
	provider := uuid.New()
	start := baseTime.Add(time.Hour)

	expired := baseTime.Add(-time.Minute)
	slot := domain.Slot{
		ID:            domain.SlotID(provider, start),
		ProviderID:    provider,
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Status:        domain.SlotHeld,
		HoldExpiresAt: &expired,
	}
	st.Seed(slot)

	booking, err := c.Hold(ctx, holdReq(provider, start))
	require.NoError(t, err)
	require.Equal(t, domain.BookingPending, booking.Status)

	got, err := st.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SlotHeld, got.Status)
	require.True(t, got.HoldExpiresAt.After(baseTime))
}

func TestHoldConcurrentExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)
	provider := uuid.New()
	start := baseTime.Add(time.Hour)
	seedOpenSlot(st, provider, start)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Hold(ctx, holdReq(provider, start))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	require.Equal(t, 1, wins)

	got, err := st.GetSlot(ctx, domain.SlotID(provider, start))
	require.NoError(t, err)
	require.Equal(t, domain.SlotHeld, got.Status)
}

func TestHoldOutboxEvent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)
	provider := uuid.New()
	start := baseTime.Add(time.Hour)
	seedOpenSlot(st, provider, start)

	booking, err := c.Hold(ctx, holdReq(provider, start))
	require.NoError(t, err)

	events := st.Outbox()
	require.Len(t, events, 1)
	require.Equal(t, "booking.held", events[0].EventType)
	require.Equal(t, booking.ID, events[0].AggregateID)
}

func TestProvisionAndReleaseExpired(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := newTestCoordinator(st)
	provider := uuid.New()
	start := baseTime.Add(time.Hour)

	slot, err := c.Provision(ctx, provider, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.SlotID(provider, start), slot.ID)

	_, err = c.Provision(ctx, provider, start, start.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = c.Hold(ctx, holdReq(provider, start))
	require.NoError(t, err)

	// Hold still live: nothing to release.
	released, err := c.ReleaseExpired(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, released)

	c.now = func() time.Time { return baseTime.Add(20 * time.Minute) }
	released, err = c.ReleaseExpired(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	got, err := st.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SlotOpen, got.Status)
}

package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/store"
)

func openSlot(start time.Time) domain.Slot {
	provider := uuid.New()
	return domain.Slot{
		ID:         domain.SlotID(provider, start),
		ProviderID: provider,
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Status:     domain.SlotOpen,
	}
}

func TestUpdateSlotConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	slot := openSlot(time.Now().Add(time.Hour))
	s.Seed(slot)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		slot.Status = domain.SlotHeld
		return tx.UpdateSlot(ctx, slot, domain.SlotOpen)
	})
	require.NoError(t, err)

	// Stale expectation must not win.
	err = s.WithTx(ctx, func(tx store.Tx) error {
		slot.Status = domain.SlotBooked
		return tx.UpdateSlot(ctx, slot, domain.SlotOpen)
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	got, err := s.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SlotHeld, got.Status)
}

func TestTxRollbackLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	slot := openSlot(time.Now().Add(time.Hour))
	s.Seed(slot)
	bookingID := uuid.New()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		held := slot
		held.Status = domain.SlotHeld
		if err := tx.UpdateSlot(ctx, held, domain.SlotOpen); err != nil {
			return err
		}
		if err := tx.CreateBooking(ctx, domain.Booking{ID: bookingID, SlotID: slot.ID}); err != nil {
			return err
		}
		return domain.ErrConflict // force rollback
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	got, err := s.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SlotOpen, got.Status)

	_, err = s.GetBooking(ctx, bookingID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkReminderSentOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := domain.Booking{ID: uuid.New(), Status: domain.BookingConfirmed}
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateBooking(ctx, b)
	}))

	flipped, err := s.MarkReminderSent(ctx, b.ID, store.Window24h)
	require.NoError(t, err)
	require.True(t, flipped)

	flipped, err = s.MarkReminderSent(ctx, b.ID, store.Window24h)
	require.NoError(t, err)
	require.False(t, flipped)

	flipped, err = s.MarkReminderSent(ctx, b.ID, store.Window2h)
	require.NoError(t, err)
	require.True(t, flipped)
}

func TestListExpiredHolds(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	expired := now.Add(-time.Minute)
	stale := openSlot(now.Add(time.Hour))
	stale.Status = domain.SlotHeld
	stale.HoldExpiresAt = &expired
	s.Seed(stale)

	live := now.Add(10 * time.Minute)
	fresh := openSlot(now.Add(2 * time.Hour))
	fresh.Status = domain.SlotHeld
	fresh.HoldExpiresAt = &live
	s.Seed(fresh)

	s.Seed(openSlot(now.Add(3 * time.Hour)))

	listed, err := s.ListExpiredHolds(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, stale.ID, listed[0].ID)
}

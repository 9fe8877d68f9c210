// Package store defines the transactional boundary over the slot and
// booking collections. The production implementation runs SERIALIZABLE
// transactions against CockroachDB (internal/adapters/crdb); memstore is
// the in-memory equivalent used by the unit suites.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ramzeth/bookslot/internal/domain"
)

type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	DedupeKey     string
}

// Tx is the set of operations available inside one atomic transaction.
// Every write validates the state it depends on: updates carry the status
// the caller last read, and fail with domain.ErrConflict when the stored
// row no longer matches.
type Tx interface {
	GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error)
	CreateSlot(ctx context.Context, s domain.Slot) error
	// UpdateSlot writes the slot conditionally on its current status.
	UpdateSlot(ctx context.Context, s domain.Slot, expect domain.SlotStatus) error

	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	CreateBooking(ctx context.Context, b domain.Booking) error
	// UpdateBooking writes the booking conditionally on its current
	// payment status, the reconciler's idempotency boundary.
	UpdateBooking(ctx context.Context, b domain.Booking, expect domain.PaymentStatus) error

	InsertOutbox(ctx context.Context, rec OutboxEvent) error
}

type Store interface {
	// WithTx runs fn as one atomic unit. Contention surfaces as
	// domain.ErrSerializationFailure, which callers may retry.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error)
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)

	// ListRemindable returns confirmed, paid bookings starting inside
	// [from, to).
	ListRemindable(ctx context.Context, from, to time.Time) ([]domain.Booking, error)

	// MarkReminderSent flips one reminder flag from false to true. It
	// reports false when the flag was already set, which is what makes a
	// sweep running twice over the same window send nothing twice.
	MarkReminderSent(ctx context.Context, bookingID uuid.UUID, window ReminderWindow) (bool, error)

	// ListExpiredHolds returns held slots whose expiry has passed. The
	// release itself runs through WithTx so the caller can re-check the
	// expiry against current state.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Slot, error)
}

type ReminderWindow string

const (
	Window24h ReminderWindow = "24h"
	Window2h  ReminderWindow = "2h"
)

// Package memstore is an in-memory store.Store. A single mutex serializes
// transactions, which gives the same exactly-one-winner behavior the
// SERIALIZABLE database provides in production. Writes are staged per
// transaction and only merged on commit, so a failed fn leaves nothing
// behind.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/store"
)

type Store struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]domain.Slot
	bookings map[uuid.UUID]domain.Booking
	outbox   []store.OutboxEvent
}

func New() *Store {
	return &Store{
		slots:    make(map[uuid.UUID]domain.Slot),
		bookings: make(map[uuid.UUID]domain.Booking),
	}
}

// Seed inserts a slot outside any transaction, standing in for the
// out-of-band provisioning process.
func (s *Store) Seed(slot domain.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID] = slot
}

// Outbox returns a copy of everything inserted so far.
func (s *Store) Outbox() []store.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.OutboxEvent, len(s.outbox))
	copy(out, s.outbox)
	return out
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		base:     s,
		slots:    make(map[uuid.UUID]domain.Slot),
		bookings: make(map[uuid.UUID]domain.Booking),
	}
	if err := fn(t); err != nil {
		return err
	}
	for id, slot := range t.slots {
		s.slots[id] = slot
	}
	for id, b := range t.bookings {
		s.bookings[id] = b
	}
	s.outbox = append(s.outbox, t.outbox...)
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return domain.Slot{}, domain.ErrNotFound
	}
	return slot, nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListRemindable(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.Status != domain.BookingConfirmed || b.Payment.Status != domain.PaymentPaid {
			continue
		}
		if b.StartTime.Before(from) || !b.StartTime.Before(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) MarkReminderSent(ctx context.Context, bookingID uuid.UUID, window store.ReminderWindow) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return false, domain.ErrNotFound
	}
	switch window {
	case store.Window24h:
		if b.Sent24h {
			return false, nil
		}
		b.Sent24h = true
	case store.Window2h:
		if b.Sent2h {
			return false, nil
		}
		b.Sent2h = true
	default:
		return false, domain.ErrInvalidInput
	}
	s.bookings[bookingID] = b
	return true, nil
}

func (s *Store) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Slot
	for _, slot := range s.slots {
		if slot.Status != domain.SlotHeld || slot.HoldExpiresAt == nil || slot.HoldExpiresAt.After(now) {
			continue
		}
		out = append(out, slot)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type tx struct {
	base     *Store
	slots    map[uuid.UUID]domain.Slot
	bookings map[uuid.UUID]domain.Booking
	outbox   []store.OutboxEvent
}

func (t *tx) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	if slot, ok := t.slots[id]; ok {
		return slot, nil
	}
	slot, ok := t.base.slots[id]
	if !ok {
		return domain.Slot{}, domain.ErrNotFound
	}
	return slot, nil
}

func (t *tx) CreateSlot(ctx context.Context, s domain.Slot) error {
	if _, err := t.GetSlot(ctx, s.ID); err == nil {
		return domain.ErrConflict
	}
	t.slots[s.ID] = s
	return nil
}

func (t *tx) UpdateSlot(ctx context.Context, s domain.Slot, expect domain.SlotStatus) error {
	cur, err := t.GetSlot(ctx, s.ID)
	if err != nil {
		return err
	}
	if cur.Status != expect {
		return domain.ErrConflict
	}
	t.slots[s.ID] = s
	return nil
}

func (t *tx) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		return b, nil
	}
	b, ok := t.base.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (t *tx) CreateBooking(ctx context.Context, b domain.Booking) error {
	if _, err := t.GetBooking(ctx, b.ID); err == nil {
		return domain.ErrConflict
	}
	t.bookings[b.ID] = b
	return nil
}

func (t *tx) UpdateBooking(ctx context.Context, b domain.Booking, expect domain.PaymentStatus) error {
	cur, err := t.GetBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	if cur.Payment.Status != expect {
		return domain.ErrConflict
	}
	t.bookings[b.ID] = b
	return nil
}

func (t *tx) InsertOutbox(ctx context.Context, rec store.OutboxEvent) error {
	t.outbox = append(t.outbox, rec)
	return nil
}

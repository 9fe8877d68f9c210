// Package reservation orchestrates the atomic "hold slot + draft booking"
// operation. The coordinator is the only writer of the open->held and
// held->booked transitions on slots.
package reservation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/store"
)

type HoldRequest struct {
	BookingID       uuid.UUID
	ClientID        uuid.UUID
	ProviderID      uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Price           int64
	Currency        string
}

type Coordinator struct {
	store     store.Store
	holdTTL   time.Duration
	lookAhead time.Duration
	logger    observability.Logger
	now       func() time.Time
}

func NewCoordinator(st store.Store, holdTTL, lookAhead time.Duration, logger observability.Logger) *Coordinator {
	return &Coordinator{
		store:     st,
		holdTTL:   holdTTL,
		lookAhead: lookAhead,
		logger:    logger,
		now:       time.Now,
	}
}

// Hold claims the slot keyed by (provider, start time) and drafts a pending
// booking for it, as one transaction. Retrying the same booking id against
// the same slot returns the existing pending booking unchanged.
func (c *Coordinator) Hold(ctx context.Context, req HoldRequest) (domain.Booking, error) {
	now := c.now()

	if req.Price <= 0 {
		return domain.Booking{}, domain.ErrInvalidPrice
	}
	if req.DurationMinutes <= 0 {
		return domain.Booking{}, domain.ErrInvalidInput
	}
	if !req.StartTime.After(now) {
		return domain.Booking{}, domain.ErrStartInPast
	}
	if req.StartTime.After(now.Add(c.lookAhead)) {
		return domain.Booking{}, domain.ErrStartTooFar
	}

	slotID := domain.SlotID(req.ProviderID, req.StartTime)

	var booking domain.Booking
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetBooking(ctx, req.BookingID)
		if err == nil {
			if existing.SlotID == slotID && existing.Status == domain.BookingPending {
				// Client-side retry of the same request.
				booking = existing
				return nil
			}
			return domain.ErrBookingConflict
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if eff := slot.EffectiveStatus(now); eff != domain.SlotOpen {
			return &domain.SlotUnavailableError{Status: eff}
		}

		prevStatus := slot.Status
		expiry := now.Add(c.holdTTL)
		slot.Status = domain.SlotHeld
		slot.HoldExpiresAt = &expiry
		if err := tx.UpdateSlot(ctx, slot, prevStatus); err != nil {
			return err
		}

		booking = domain.Booking{
			ID:         req.BookingID,
			ClientID:   req.ClientID,
			ProviderID: req.ProviderID,
			SlotID:     slotID,
			StartTime:  slot.StartTime,
			EndTime:    slot.EndTime,
			Status:     domain.BookingPending,
			Payment: domain.Payment{
				Status:   domain.PaymentPending,
				Amount:   req.Price,
				Currency: req.Currency,
			},
			CreatedAt: now,
		}
		if err := tx.CreateBooking(ctx, booking); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"booking_id": booking.ID,
			"slot_id":    slotID,
			"expires_at": expiry.Format(time.RFC3339),
		})
		return tx.InsertOutbox(ctx, store.OutboxEvent{
			ID:            uuid.New(),
			AggregateType: "booking",
			AggregateID:   booking.ID,
			EventType:     "booking.held",
			Payload:       payload,
			DedupeKey:     uuid.New().String(),
		})
	})
	if err != nil {
		observability.HoldsTotal.WithLabelValues(holdOutcome(err)).Inc()
		return domain.Booking{}, err
	}

	observability.HoldsTotal.WithLabelValues("ok").Inc()
	return booking, nil
}

// Provision inserts an open slot. Slot creation is normally driven by an
// external provisioning flow; this is its entry point into the store.
func (c *Coordinator) Provision(ctx context.Context, providerID uuid.UUID, start, end time.Time) (domain.Slot, error) {
	if !end.After(start) {
		return domain.Slot{}, domain.ErrInvalidInput
	}
	slot := domain.Slot{
		ID:         domain.SlotID(providerID, start),
		ProviderID: providerID,
		StartTime:  start,
		EndTime:    end,
		Status:     domain.SlotOpen,
	}
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateSlot(ctx, slot)
	})
	if err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

// ReleaseExpired sweeps held slots whose expiry has passed back to open.
// Lazy expiry already keeps holds correct without this; the sweep exists so
// expired holds do not linger in listings. Each release re-checks the
// expiry inside its own transaction, so a hold refreshed between the list
// and the flip is left alone.
func (c *Coordinator) ReleaseExpired(ctx context.Context, limit int) (int, error) {
	now := c.now()
	candidates, err := c.store.ListExpiredHolds(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, candidate := range candidates {
		var ok bool
		err := c.store.WithTx(ctx, func(tx store.Tx) error {
			ok = false
			slot, err := tx.GetSlot(ctx, candidate.ID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if slot.Status != domain.SlotHeld || slot.HoldExpiresAt == nil || slot.HoldExpiresAt.After(now) {
				return nil
			}

			expiredAt := *slot.HoldExpiresAt
			slot.Status = domain.SlotOpen
			slot.HoldExpiresAt = nil
			if err := tx.UpdateSlot(ctx, slot, domain.SlotHeld); err != nil {
				return err
			}

			payload, _ := json.Marshal(map[string]interface{}{
				"slot_id":    slot.ID,
				"expired_at": expiredAt.Format(time.RFC3339),
			})
			if err := tx.InsertOutbox(ctx, store.OutboxEvent{
				ID:            uuid.New(),
				AggregateType: "slot",
				AggregateID:   slot.ID,
				EventType:     "hold.expired",
				Payload:       payload,
				DedupeKey:     slot.ID.String() + ":expired:" + expiredAt.Format(time.RFC3339),
			}); err != nil {
				return err
			}
			ok = true
			return nil
		})
		if err != nil {
			c.logger.WithField("slot_id", candidate.ID.String()).Error("release expired hold", err)
			continue
		}
		if ok {
			released++
		}
	}
	return released, nil
}

func holdOutcome(err error) string {
	var su *domain.SlotUnavailableError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "slot_not_found"
	case errors.Is(err, domain.ErrBookingConflict):
		return "booking_conflict"
	case errors.As(err, &su):
		return "slot_not_open"
	default:
		return "error"
	}
}

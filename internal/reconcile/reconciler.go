// Package reconcile applies settlement and refund events to bookings
// exactly once. The booking's payment status is the idempotency boundary:
// whatever channel an event arrives through, and however many times, the
// first applied write wins and the rest are no-ops.
package reconcile

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/notify"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/policy"
	"github.com/ramzeth/bookslot/internal/store"
)

type Reconciler struct {
	store               store.Store
	notifier            notify.Notifier
	refunds             policy.RefundTable
	meetingBaseURL      string
	releaseSlotOnRefund bool
	logger              observability.Logger
}

func NewReconciler(st store.Store, notifier notify.Notifier, refunds policy.RefundTable, meetingBaseURL string, releaseSlotOnRefund bool, logger observability.Logger) *Reconciler {
	return &Reconciler{
		store:               st,
		notifier:            notifier,
		refunds:             refunds,
		meetingBaseURL:      meetingBaseURL,
		releaseSlotOnRefund: releaseSlotOnRefund,
		logger:              logger,
	}
}

// ApplySettlement marks the booking paid, confirms it, books its slot and
// attaches the meeting link, all in one transaction. Unknown bookings and
// already-settled bookings are no-ops: never fabricate a booking from a
// payment event, never move payment state backward.
func (r *Reconciler) ApplySettlement(ctx context.Context, ev domain.SettlementConfirmed) error {
	var (
		applied bool
		booking domain.Booking
	)
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		applied = false

		b, err := tx.GetBooking(ctx, ev.BookingID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if b.Payment.Status != domain.PaymentPending {
			return nil
		}

		b.Payment.Status = domain.PaymentPaid
		b.Payment.GatewayRef = ev.GatewayRef
		if ev.Amount > 0 {
			b.Payment.Amount = ev.Amount
		}
		if ev.Currency != "" {
			b.Payment.Currency = ev.Currency
		}
		if b.Status == domain.BookingPending {
			b.Status = domain.BookingConfirmed
		}
		if b.MeetingLink == "" {
			b.MeetingLink = r.meetingBaseURL + domain.MeetingToken(b.ID)
		}
		if err := tx.UpdateBooking(ctx, b, domain.PaymentPending); err != nil {
			return err
		}

		if b.SlotID != uuid.Nil {
			slot, err := tx.GetSlot(ctx, b.SlotID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			// Tolerate a slot already flipped by a redundant path.
			if err == nil && slot.Status != domain.SlotBooked {
				prev := slot.Status
				slot.Status = domain.SlotBooked
				slot.HoldExpiresAt = nil
				if err := tx.UpdateSlot(ctx, slot, prev); err != nil {
					return err
				}
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"booking_id":  b.ID,
			"gateway_ref": ev.GatewayRef,
			"amount":      b.Payment.Amount,
			"currency":    b.Payment.Currency,
		})
		if err := tx.InsertOutbox(ctx, store.OutboxEvent{
			ID:            uuid.New(),
			AggregateType: "booking",
			AggregateID:   b.ID,
			EventType:     "booking.confirmed",
			Payload:       payload,
			DedupeKey:     b.ID.String() + ":settled",
		}); err != nil {
			return err
		}

		applied = true
		booking = b
		return nil
	})
	if err != nil {
		observability.SettlementsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !applied {
		observability.SettlementsTotal.WithLabelValues("noop").Inc()
		return nil
	}
	observability.SettlementsTotal.WithLabelValues("applied").Inc()

	// Best-effort, outside the transaction. A dispatch failure is logged
	// and never unwinds the payment state.
	n := notify.Notification{
		Kind:        notify.KindConfirmation,
		BookingID:   booking.ID,
		ClientID:    booking.ClientID,
		ProviderID:  booking.ProviderID,
		StartTime:   booking.StartTime,
		EndTime:     booking.EndTime,
		MeetingLink: booking.MeetingLink,
		Attachment:  notify.BuildICS(booking.ID, booking.StartTime, booking.EndTime, booking.MeetingLink),
	}
	if err := r.notifier.Send(ctx, n); err != nil {
		r.logger.WithField("booking_id", booking.ID.String()).Error("confirmation dispatch failed", err)
	}
	return nil
}

// ApplyRefund moves a paid booking to refunded, computing the amount from
// the policy table unless an operator override is supplied. Repeats on an
// already-refunded booking return the recorded refund; a booking that was
// never paid is rejected.
func (r *Reconciler) ApplyRefund(ctx context.Context, ev domain.RefundConfirmed) (policy.Refund, error) {
	var refund policy.Refund
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		b, err := tx.GetBooking(ctx, ev.BookingID)
		if err != nil {
			return err
		}

		switch b.Payment.Status {
		case domain.PaymentRefunded:
			refund = policy.Refund{Amount: b.Payment.RefundAmount, Note: b.Payment.RefundNote}
			return nil
		case domain.PaymentPending:
			return domain.ErrNoPaidPayment
		}

		if ev.Override != nil {
			refund = policy.ComputeOverride(b.Payment.Amount, *ev.Override)
		} else {
			refund = policy.ComputeRefund(b.Payment.Amount, ev.Reason, r.refunds)
		}

		b.Payment.Status = domain.PaymentRefunded
		b.Payment.RefundAmount = refund.Amount
		b.Payment.RefundNote = refund.Note
		b.Status = domain.BookingCancelled
		if err := tx.UpdateBooking(ctx, b, domain.PaymentPaid); err != nil {
			return err
		}

		if r.releaseSlotOnRefund && b.SlotID != uuid.Nil {
			slot, err := tx.GetSlot(ctx, b.SlotID)
			if err == nil && slot.Status == domain.SlotBooked {
				slot.Status = domain.SlotOpen
				slot.HoldExpiresAt = nil
				if err := tx.UpdateSlot(ctx, slot, domain.SlotBooked); err != nil {
					return err
				}
			} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"booking_id":    b.ID,
			"refund_amount": refund.Amount,
			"reason":        ev.Reason,
		})
		return tx.InsertOutbox(ctx, store.OutboxEvent{
			ID:            uuid.New(),
			AggregateType: "booking",
			AggregateID:   b.ID,
			EventType:     "booking.refunded",
			Payload:       payload,
			DedupeKey:     b.ID.String() + ":refunded",
		})
	})
	if err != nil {
		observability.RefundsTotal.WithLabelValues("rejected").Inc()
		return policy.Refund{}, err
	}
	observability.RefundsTotal.WithLabelValues("ok").Inc()
	return refund, nil
}

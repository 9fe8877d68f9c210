package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Payment is the booking's payment sub-record. Status only ever moves
// forward: PENDING -> PAID -> REFUNDED. PAID and REFUNDED absorb repeats of
// their own event type.
type Payment struct {
	Status       PaymentStatus
	Amount       int64 // minor units
	Currency     string
	GatewayRef   string
	RefundAmount int64
	RefundNote   string
}

type Booking struct {
	ID         uuid.UUID
	ClientID   uuid.UUID
	ProviderID uuid.UUID
	SlotID     uuid.UUID
	// Time range is copied from the slot at creation so the booking stays
	// historically correct even if the slot is mutated later.
	StartTime   time.Time
	EndTime     time.Time
	Status      BookingStatus
	Payment     Payment
	MeetingLink string
	Sent24h     bool
	Sent2h      bool
	CreatedAt   time.Time
}

var meetingNamespace = uuid.MustParse("b1e4f6a2-31c8-4c8f-9d7e-2a54c0de8f11")

// MeetingToken derives the meeting-room token from the booking id, so
// retried confirmations can never mint two different links for one booking.
func MeetingToken(bookingID uuid.UUID) string {
	return uuid.NewSHA1(meetingNamespace, bookingID[:]).String()
}

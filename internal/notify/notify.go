// Package notify is the outbound notification capability. The core treats
// it as fire-and-forget: a Send error is logged by the caller and never
// rolls anything back.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindReminder24h  Kind = "reminder_24h"
	KindReminder2h   Kind = "reminder_2h"
	KindRefund       Kind = "refund"
)

type Notification struct {
	Kind        Kind      `json:"kind"`
	BookingID   uuid.UUID `json:"booking_id"`
	ClientID    uuid.UUID `json:"client_id"`
	ProviderID  uuid.UUID `json:"provider_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	MeetingLink string    `json:"meeting_link,omitempty"`
	// Attachment carries the iCalendar text on confirmations.
	Attachment string `json:"attachment,omitempty"`
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

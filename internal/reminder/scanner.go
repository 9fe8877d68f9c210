// Package reminder sweeps confirmed bookings and dispatches at most one
// 24-hour and one 2-hour reminder per booking.
package reminder

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/notify"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/store"
)

// The sweep runs on a coarse period, so each reminder fires inside a
// tolerance window around its nominal offset rather than at an instant.
const (
	window24hLow  = 23.83
	window24hHigh = 24.17
	window2hLow   = 1.8
	window2hHigh  = 2.2

	dispatchConcurrency = 8
)

type Counts struct {
	Sent24h int `json:"sent_24h"`
	Sent2h  int `json:"sent_2h"`
}

type Scanner struct {
	store    store.Store
	notifier notify.Notifier
	logger   observability.Logger
	now      func() time.Time
}

func NewScanner(st store.Store, notifier notify.Notifier, logger observability.Logger) *Scanner {
	return &Scanner{store: st, notifier: notifier, logger: logger, now: time.Now}
}

// Sweep walks confirmed, paid bookings starting within the next ~25 hours.
// The flag write is a conditional single-field update; only the caller that
// actually flips it dispatches, so overlapping sweeps cannot double-fire.
// A dispatch failure is logged per booking and never aborts the sweep.
func (s *Scanner) Sweep(ctx context.Context) (Counts, error) {
	now := s.now()

	bookings, err := s.store.ListRemindable(ctx, now, now.Add(26*time.Hour))
	if err != nil {
		return Counts{}, err
	}

	var counts Counts
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dispatchConcurrency)
	results := make(chan store.ReminderWindow, len(bookings)*2)

	for _, b := range bookings {
		b := b
		hoursUntil := b.StartTime.Sub(now).Hours()

		if hoursUntil > window24hLow && hoursUntil < window24hHigh && !b.Sent24h {
			g.Go(func() error {
				if s.fire(gctx, b, store.Window24h, notify.KindReminder24h) {
					results <- store.Window24h
				}
				return nil
			})
		}
		if hoursUntil > window2hLow && hoursUntil < window2hHigh && !b.Sent2h {
			g.Go(func() error {
				if s.fire(gctx, b, store.Window2h, notify.KindReminder2h) {
					results <- store.Window2h
				}
				return nil
			})
		}
	}

	_ = g.Wait()
	close(results)
	for w := range results {
		switch w {
		case store.Window24h:
			counts.Sent24h++
		case store.Window2h:
			counts.Sent2h++
		}
	}
	return counts, nil
}

func (s *Scanner) fire(ctx context.Context, b domain.Booking, window store.ReminderWindow, kind notify.Kind) bool {
	flipped, err := s.store.MarkReminderSent(ctx, b.ID, window)
	if err != nil {
		s.logger.WithField("booking_id", b.ID.String()).Error("mark reminder sent", err)
		return false
	}
	if !flipped {
		return false
	}

	n := notify.Notification{
		Kind:        kind,
		BookingID:   b.ID,
		ClientID:    b.ClientID,
		ProviderID:  b.ProviderID,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		MeetingLink: b.MeetingLink,
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		// At-most-once: the flag stays set, the miss is reported.
		s.logger.
			WithField("booking_id", b.ID.String()).
			WithField("window", string(window)).
			Error("reminder dispatch failed", err)
	}
	observability.RemindersSent.WithLabelValues(string(window)).Inc()
	return true
}

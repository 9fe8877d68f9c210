package notify

import (
	"context"

	"github.com/ramzeth/bookslot/internal/observability"
)

// LogNotifier writes notifications to the structured log. Used when no
// delivery channel is configured and in the worker binaries' dry runs.
type LogNotifier struct {
	logger observability.Logger
}

func NewLogNotifier(logger observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Send(ctx context.Context, n Notification) error {
	l.logger.
		WithField("kind", string(n.Kind)).
		WithField("booking_id", n.BookingID.String()).
		WithField("start_time", n.StartTime).
		Info("notification dispatched")
	return nil
}

package rabbit

import (
	"context"

	"github.com/ramzeth/bookslot/internal/notify"
)

// Notifier publishes notifications onto the events exchange, where the
// delivery service picks them up. Satisfies notify.Notifier.
type Notifier struct {
	pub *Publisher
}

func NewNotifier(pub *Publisher) *Notifier {
	return &Notifier{pub: pub}
}

func (n *Notifier) Send(ctx context.Context, notification notify.Notification) error {
	return n.pub.PublishJSON(ctx, "notify."+string(notification.Kind), notification)
}

// Package outbox drains the transactional outbox into RabbitMQ. Events are
// written in the same transaction as the state change they describe, so
// nothing is ever published for a change that did not commit.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ramzeth/bookslot/internal/adapters/crdb"
	"github.com/ramzeth/bookslot/internal/adapters/rabbit"
	"github.com/ramzeth/bookslot/internal/observability"
)

type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, batch)
		}
	}
}

func (p *Publisher) drain(ctx context.Context, batch int) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batch)
	if err != nil {
		p.logger.Error("fetch unpublished outbox", err)
		return
	}
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithField("event_type", rec.EventType).Error("publish outbox event", err)
			continue
		}
		now := time.Now()
		observability.OutboxLag.Set(now.Sub(rec.CreatedAt).Seconds())
		if err := p.repo.MarkPublished(ctx, rec.ID, now); err != nil {
			p.logger.Error("mark outbox published", err)
		}
	}
}

package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/observability"
)

// AuditLogger records every state transition the engine applies. The trail
// is what manual reconciliation reads when settlement channels disagree.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	BookingID uuid.UUID `bson:"booking_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, bookingID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		BookingID: bookingID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogHold(ctx context.Context, b domain.Booking) error {
	data := map[string]interface{}{
		"slot_id":     b.SlotID,
		"client_id":   b.ClientID,
		"provider_id": b.ProviderID,
		"start_time":  b.StartTime.Format(time.RFC3339),
		"amount":      b.Payment.Amount,
		"currency":    b.Payment.Currency,
	}
	return a.LogEvent(ctx, "booking.held", b.ID, data)
}

func (a *AuditLogger) LogSettlement(ctx context.Context, ev domain.SettlementConfirmed) error {
	data := map[string]interface{}{
		"gateway_ref": ev.GatewayRef,
		"amount":      ev.Amount,
		"currency":    ev.Currency,
	}
	return a.LogEvent(ctx, "payment.settled", ev.BookingID, data)
}

func (a *AuditLogger) LogRefund(ctx context.Context, bookingID uuid.UUID, reason string, amount int64) error {
	data := map[string]interface{}{
		"reason": reason,
		"amount": amount,
	}
	return a.LogEvent(ctx, "payment.refunded", bookingID, data)
}

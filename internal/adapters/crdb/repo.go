package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/store"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	started := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(started).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(&txRunner{tx: tx}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}
	return nil
}

type txRunner struct {
	tx pgx.Tx
}

func (t *txRunner) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	return scanSlot(t.tx.QueryRow(ctx, `
		SELECT id, provider_id, start_time, end_time, status, hold_expires_at
		FROM slots WHERE id = $1
	`, id))
}

func (t *txRunner) CreateSlot(ctx context.Context, s domain.Slot) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO slots (id, provider_id, start_time, end_time, status, hold_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.ProviderID, s.StartTime, s.EndTime, s.Status, s.HoldExpiresAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
		return domain.ErrConflict
	}
	return err
}

func (t *txRunner) UpdateSlot(ctx context.Context, s domain.Slot, expect domain.SlotStatus) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE slots SET status = $2, hold_expires_at = $3
		WHERE id = $1 AND status = $4
	`, s.ID, s.Status, s.HoldExpiresAt, expect)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (t *txRunner) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return scanBooking(t.tx.QueryRow(ctx, bookingSelect+` WHERE id = $1`, id))
}

func (t *txRunner) CreateBooking(ctx context.Context, b domain.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (
			id, client_id, provider_id, slot_id, start_time, end_time, status,
			pay_status, pay_amount, pay_currency, pay_gateway_ref,
			refund_amount, refund_note, meeting_link, sent_24h, sent_2h, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, b.ID, b.ClientID, b.ProviderID, b.SlotID, b.StartTime, b.EndTime, b.Status,
		b.Payment.Status, b.Payment.Amount, b.Payment.Currency, b.Payment.GatewayRef,
		b.Payment.RefundAmount, b.Payment.RefundNote, b.MeetingLink, b.Sent24h, b.Sent2h, b.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
		return domain.ErrConflict
	}
	return err
}

func (t *txRunner) UpdateBooking(ctx context.Context, b domain.Booking, expect domain.PaymentStatus) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings SET
			status = $2, pay_status = $3, pay_amount = $4, pay_currency = $5,
			pay_gateway_ref = $6, refund_amount = $7, refund_note = $8,
			meeting_link = $9, sent_24h = $10, sent_2h = $11
		WHERE id = $1 AND pay_status = $12
	`, b.ID, b.Status, b.Payment.Status, b.Payment.Amount, b.Payment.Currency,
		b.Payment.GatewayRef, b.Payment.RefundAmount, b.Payment.RefundNote,
		b.MeetingLink, b.Sent24h, b.Sent2h, expect)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (t *txRunner) InsertOutbox(ctx context.Context, rec store.OutboxEvent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, rec.Payload, rec.DedupeKey)
	return err
}

func (r *Repository) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	return scanSlot(r.pool.QueryRow(ctx, `
		SELECT id, provider_id, start_time, end_time, status, hold_expires_at
		FROM slots WHERE id = $1
	`, id))
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, bookingSelect+` WHERE id = $1`, id))
}

func (r *Repository) ListRemindable(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, bookingSelect+`
		WHERE status = $1 AND pay_status = $2 AND start_time >= $3 AND start_time < $4
	`, domain.BookingConfirmed, domain.PaymentPaid, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *Repository) MarkReminderSent(ctx context.Context, bookingID uuid.UUID, window store.ReminderWindow) (bool, error) {
	col := "sent_24h"
	if window == store.Window2h {
		col = "sent_2h"
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE bookings SET `+col+` = TRUE WHERE id = $1 AND `+col+` = FALSE
	`, bookingID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, start_time, end_time, status, hold_expires_at
		FROM slots WHERE status = $1 AND hold_expires_at <= $2
		ORDER BY hold_expires_at ASC LIMIT $3
	`, domain.SlotHeld, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

const bookingSelect = `
	SELECT id, client_id, provider_id, slot_id, start_time, end_time, status,
		pay_status, pay_amount, pay_currency, pay_gateway_ref,
		refund_amount, refund_note, meeting_link, sent_24h, sent_2h, created_at
	FROM bookings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (domain.Slot, error) {
	var s domain.Slot
	err := row.Scan(&s.ID, &s.ProviderID, &s.StartTime, &s.EndTime, &s.Status, &s.HoldExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Slot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Slot{}, err
	}
	return s, nil
}

func scanBooking(row rowScanner) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.ClientID, &b.ProviderID, &b.SlotID, &b.StartTime, &b.EndTime, &b.Status,
		&b.Payment.Status, &b.Payment.Amount, &b.Payment.Currency, &b.Payment.GatewayRef,
		&b.Payment.RefundAmount, &b.Payment.RefundNote, &b.MeetingLink, &b.Sent24h, &b.Sent2h, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/notify"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/store"
	"github.com/ramzeth/bookslot/internal/store/memstore"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	fail error
}

func (n *recordingNotifier) Send(ctx context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) kinds() map[notify.Kind]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[notify.Kind]int)
	for _, msg := range n.sent {
		out[msg.Kind]++
	}
	return out
}

var sweepNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestScanner(st *memstore.Store, n notify.Notifier) *Scanner {
	s := NewScanner(st, n, observability.NewLogger())
	s.now = func() time.Time { return sweepNow }
	return s
}

func confirmedBooking(st *memstore.Store, startsIn time.Duration) domain.Booking {
	b := domain.Booking{
		ID:         uuid.New(),
		ClientID:   uuid.New(),
		ProviderID: uuid.New(),
		StartTime:  sweepNow.Add(startsIn),
		EndTime:    sweepNow.Add(startsIn + time.Hour),
		Status:     domain.BookingConfirmed,
		Payment:    domain.Payment{Status: domain.PaymentPaid, Amount: 10000, Currency: "aed"},
	}
	_ = st.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateBooking(context.Background(), b)
	})
	return b
}

func TestSweepFiresInsideWindows(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	n := &recordingNotifier{}
	s := newTestScanner(st, n)

	in24h := confirmedBooking(st, 24*time.Hour)
	in2h := confirmedBooking(st, 2*time.Hour)
	confirmedBooking(st, 10*time.Hour) // between windows, untouched

	counts, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, Counts{Sent24h: 1, Sent2h: 1}, counts)

	kinds := n.kinds()
	require.Equal(t, 1, kinds[notify.KindReminder24h])
	require.Equal(t, 1, kinds[notify.KindReminder2h])

	got, _ := st.GetBooking(ctx, in24h.ID)
	require.True(t, got.Sent24h)
	require.False(t, got.Sent2h)

	got, _ = st.GetBooking(ctx, in2h.ID)
	require.True(t, got.Sent2h)
	require.False(t, got.Sent24h)
}

func TestSweepTwiceDoesNotDoubleFire(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	n := &recordingNotifier{}
	s := newTestScanner(st, n)

	confirmedBooking(st, 2*time.Hour)

	counts, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Sent2h)

	counts, err = s.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.Sent2h)
	require.Len(t, n.sent, 1)
}

func TestSweepSkipsWindowEdges(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	n := &recordingNotifier{}
	s := newTestScanner(st, n)

	confirmedBooking(st, 25*time.Hour)   // past the 24h window
	confirmedBooking(st, 90*time.Minute) // short of the 2h window
	confirmedBooking(st, 30*time.Minute)

	counts, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, Counts{}, counts)
	require.Empty(t, n.sent)
}

func TestSweepIgnoresUnsettledBookings(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	n := &recordingNotifier{}
	s := newTestScanner(st, n)

	pending := confirmedBooking(st, 2*time.Hour)
	pending.Status = domain.BookingPending
	pending.Payment.Status = domain.PaymentPending
	_ = st.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpdateBooking(ctx, pending, domain.PaymentPaid)
	})

	counts, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, Counts{}, counts)
}

func TestSweepDispatchFailureStillCounts(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	n := &recordingNotifier{fail: errors.New("smtp down")}
	s := newTestScanner(st, n)

	b := confirmedBooking(st, 2*time.Hour)

	counts, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Sent2h)

	// At-most-once: the flag stays set and a later sweep does not retry.
	got, _ := st.GetBooking(ctx, b.ID)
	require.True(t, got.Sent2h)

	n.fail = nil
	counts, err = s.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.Sent2h)
	require.Empty(t, n.sent)
}

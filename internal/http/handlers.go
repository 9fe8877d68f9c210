package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mongoadapter "github.com/ramzeth/bookslot/internal/adapters/mongo"
	redisadapter "github.com/ramzeth/bookslot/internal/adapters/redis"
	"github.com/ramzeth/bookslot/internal/config"
	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/idempotency"
	"github.com/ramzeth/bookslot/internal/reconcile"
	"github.com/ramzeth/bookslot/internal/reminder"
	"github.com/ramzeth/bookslot/internal/reservation"
	"github.com/ramzeth/bookslot/internal/store"
)

const slotCacheTTL = 10 * time.Second

type Handlers struct {
	cfg         *config.Config
	coordinator *reservation.Coordinator
	reconciler  *reconcile.Reconciler
	scanner     *reminder.Scanner
	store       store.Store
	cache       *redisadapter.Cache
	idemp       *idempotency.Idempotency
	audit       *mongoadapter.AuditLogger
}

func NewHandlers(cfg *config.Config, coordinator *reservation.Coordinator, reconciler *reconcile.Reconciler, scanner *reminder.Scanner, st store.Store, cache *redisadapter.Cache, idemp *idempotency.Idempotency, audit *mongoadapter.AuditLogger) *Handlers {
	return &Handlers{
		cfg:         cfg,
		coordinator: coordinator,
		reconciler:  reconciler,
		scanner:     scanner,
		store:       st,
		cache:       cache,
		idemp:       idemp,
		audit:       audit,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

type holdRequest struct {
	BookingID       uuid.UUID `json:"booking_id"`
	ClientID        uuid.UUID `json:"client_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           int64     `json:"price"`
	Currency        string    `json:"currency"`
}

func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.BookingID == uuid.Nil || req.ClientID == uuid.Nil || req.ProviderID == uuid.Nil ||
		req.StartTime == "" || req.DurationMinutes <= 0 || req.Currency == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	booking, err := h.coordinator.Hold(r.Context(), reservation.HoldRequest{
		BookingID:       req.BookingID,
		ClientID:        req.ClientID,
		ProviderID:      req.ProviderID,
		StartTime:       start,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Currency:        req.Currency,
	})
	if err != nil {
		var su *domain.SlotUnavailableError
		switch {
		case errors.Is(err, domain.ErrInvalidPrice):
			writeError(w, http.StatusBadRequest, "invalid_price")
		case errors.Is(err, domain.ErrStartInPast):
			writeError(w, http.StatusBadRequest, "start_in_past")
		case errors.Is(err, domain.ErrStartTooFar):
			writeError(w, http.StatusBadRequest, "start_too_far")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "slot_not_found")
		case errors.As(err, &su):
			writeError(w, http.StatusConflict, "slot_not_open:"+string(su.Status))
		case errors.Is(err, domain.ErrBookingConflict):
			writeError(w, http.StatusConflict, "booking_conflict")
		case errors.Is(err, domain.ErrSerializationFailure):
			writeError(w, http.StatusConflict, "conflict_retry")
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if h.audit != nil {
		_ = h.audit.LogHold(r.Context(), booking)
	}

	data := writeJSON(w, http.StatusCreated, bookingResponse(booking))
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) ApplySettlement(w http.ResponseWriter, r *http.Request) {
	var ev domain.SettlementConfirmed
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if ev.BookingID == uuid.Nil || ev.GatewayRef == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if err := h.reconciler.ApplySettlement(r.Context(), ev); err != nil {
		// Transient; the event source retries.
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.audit != nil {
		_ = h.audit.LogSettlement(r.Context(), ev)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *Handlers) ApplyRefund(w http.ResponseWriter, r *http.Request) {
	var ev domain.RefundConfirmed
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if ev.BookingID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	refund, err := h.reconciler.ApplyRefund(r.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "booking_not_found")
		case errors.Is(err, domain.ErrNoPaidPayment):
			writeError(w, http.StatusConflict, "no_paid_payment")
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if h.audit != nil {
		_ = h.audit.LogRefund(r.Context(), ev.BookingID, ev.Reason, refund.Amount)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refund_amount": refund.Amount,
		"note":          refund.Note,
	})
}

func (h *Handlers) SweepReminders(w http.ResponseWriter, r *http.Request) {
	if h.cfg.SweepToken != "" && r.Header.Get("Authorization") != "Bearer "+h.cfg.SweepToken {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	counts, err := h.scanner.Sweep(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type provisionRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
}

func (h *Handlers) ProvisionSlot(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	start, err1 := time.Parse(time.RFC3339, req.StartTime)
	end, err2 := time.Parse(time.RFC3339, req.EndTime)
	if req.ProviderID == uuid.Nil || err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	slot, err := h.coordinator.Provision(r.Context(), req.ProviderID, start, end)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "missing_fields")
		case errors.Is(err, domain.ErrConflict):
			writeError(w, http.StatusConflict, "slot_exists")
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, slotResponse(slot))
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	booking, err := h.store.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking_not_found")
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bookingResponse(booking))
}

func (h *Handlers) GetSlot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	cacheKey := "slot:" + id.String()
	if h.cache != nil {
		var cached map[string]any
		if ok, err := h.cache.GetJSON(r.Context(), cacheKey, &cached); err == nil && ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	slot, err := h.store.GetSlot(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "slot_not_found")
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := slotResponse(slot)
	if h.cache != nil {
		_ = h.cache.SetJSON(r.Context(), cacheKey, resp, slotCacheTTL)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func bookingResponse(b domain.Booking) map[string]any {
	return map[string]any{
		"booking_id":   b.ID,
		"client_id":    b.ClientID,
		"provider_id":  b.ProviderID,
		"slot_id":      b.SlotID,
		"start_time":   b.StartTime.Format(time.RFC3339),
		"end_time":     b.EndTime.Format(time.RFC3339),
		"status":       b.Status,
		"pay_status":   b.Payment.Status,
		"amount":       b.Payment.Amount,
		"currency":     b.Payment.Currency,
		"meeting_link": b.MeetingLink,
	}
}

func slotResponse(s domain.Slot) map[string]any {
	resp := map[string]any{
		"slot_id":     s.ID,
		"provider_id": s.ProviderID,
		"start_time":  s.StartTime.Format(time.RFC3339),
		"end_time":    s.EndTime.Format(time.RFC3339),
		"status":      s.Status,
	}
	if s.HoldExpiresAt != nil {
		resp["hold_expires_at"] = s.HoldExpiresAt.Format(time.RFC3339)
	}
	return resp
}

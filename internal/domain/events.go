package domain

import "github.com/google/uuid"

// Normalized gateway events. The translation layer that understands the
// gateway's raw schema produces exactly these two shapes; everything past
// that point works on the closed union.

type SettlementConfirmed struct {
	BookingID  uuid.UUID `json:"booking_id"`
	GatewayRef string    `json:"gateway_ref"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
}

type RefundConfirmed struct {
	BookingID uuid.UUID `json:"booking_id"`
	Reason    string    `json:"reason"`
	// Override, when set, is an operator-supplied refund amount that
	// bypasses the policy table (still clamped to the paid amount).
	Override *int64 `json:"override,omitempty"`
}

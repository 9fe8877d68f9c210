package domain

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotOpen   SlotStatus = "OPEN"
	SlotHeld   SlotStatus = "HELD"
	SlotBooked SlotStatus = "BOOKED"
)

// slotNamespace seeds the deterministic slot id. Two holds targeting the
// same (provider, start time) always compute the same id, so they can never
// race under different keys.
var slotNamespace = uuid.MustParse("7c9e6579-7425-40de-944b-e07fc1f90ae7")

type Slot struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	Status        SlotStatus
	HoldExpiresAt *time.Time
}

// SlotID derives the slot key from the provider and start time.
func SlotID(providerID uuid.UUID, start time.Time) uuid.UUID {
	return uuid.NewSHA1(slotNamespace, []byte(providerID.String()+"|"+start.UTC().Format(time.RFC3339)))
}

// EffectiveStatus treats a held slot whose hold has expired as open again.
// Nothing has to actively release it; the next hold attempt reclaims it.
func (s Slot) EffectiveStatus(now time.Time) SlotStatus {
	if s.Status == SlotHeld && s.HoldExpiresAt != nil && !s.HoldExpiresAt.After(now) {
		return SlotOpen
	}
	return s.Status
}

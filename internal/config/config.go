package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ramzeth/bookslot/internal/policy"
)

type Config struct {
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":8080"`
	CRDBDSN      string `envconfig:"CRDB_DSN"`
	MongoURI     string `envconfig:"MONGO_URI"`
	RedisAddr    string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RabbitURL    string `envconfig:"RABBIT_URL"`
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// HoldTTL is how long a hold keeps a slot off the market while the
	// client pays.
	HoldTTL time.Duration `envconfig:"HOLD_TTL" default:"15m"`
	// LookAhead bounds how far in the future a hold may target. Anything
	// beyond it is rejected before touching the store.
	LookAhead time.Duration `envconfig:"HOLD_LOOKAHEAD" default:"2160h"`

	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"`
	SweepToken     string        `envconfig:"SWEEP_TOKEN"`
	MeetingBaseURL string        `envconfig:"MEETING_BASE_URL" default:"https://meet.bookslot.dev/"`

	// ReleaseSlotOnRefund reopens the refunded booking's slot. Off by
	// default: a refunded slot normally goes through re-provisioning.
	ReleaseSlotOnRefund bool `envconfig:"RELEASE_SLOT_ON_REFUND" default:"false"`

	CancelEarlyPct    int `envconfig:"REFUND_CANCEL_EARLY_PCT" default:"100"`
	CancelLatePct     int `envconfig:"REFUND_CANCEL_LATE_PCT" default:"50"`
	ProviderCancelPct int `envconfig:"REFUND_PROVIDER_CANCEL_PCT" default:"100"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RefundTable builds the immutable policy table handed to the reconciler.
func (c *Config) RefundTable() policy.RefundTable {
	return policy.RefundTable{
		"client_cancel_early": c.CancelEarlyPct,
		"client_cancel_late":  c.CancelLatePct,
		"provider_cancel":     c.ProviderCancelPct,
		"no_show":             0,
	}
}

package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
)

type ServerConfig struct {
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	PostgresDSN  string `env:"POSTGRES_DSN"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	RoomsConfigPath string `env:"ROOMS_CONFIG_PATH"`

	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5s"`
	AutoLockLead    time.Duration `env:"AUTO_LOCK_LEAD" envDefault:"10s"`
	AutoReveal      bool          `env:"AUTO_REVEAL" envDefault:"true"`
	RevealDelay     time.Duration `env:"REVEAL_DELAY" envDefault:"3s"`
	RoundRetention  time.Duration `env:"ROUND_RETENTION" envDefault:"168h"`

	TransferMaxAge      time.Duration `env:"TRANSFER_MAX_AGE" envDefault:"15m"`
	ExternalCallTimeout time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"10s"`

	PayoutWorkers      int           `env:"PAYOUT_WORKERS" envDefault:"2"`
	PayoutMaxAttempts  int           `env:"PAYOUT_MAX_ATTEMPTS" envDefault:"5"`
	PayoutRetryBase    time.Duration `env:"PAYOUT_RETRY_BASE" envDefault:"2s"`
	PayoutBreakerFails int           `env:"PAYOUT_BREAKER_FAILS" envDefault:"5"`
	PayoutBreakerOpen  time.Duration `env:"PAYOUT_BREAKER_OPEN" envDefault:"1m"`

	OpsAlertEnabled    bool   `env:"OPS_ALERT_ENABLED" envDefault:"false"`
	OpsAlertConfigPath string `env:"OPS_ALERT_CONFIG_PATH"`
	OpsAlertConfigJSON string `env:"OPS_ALERT_CONFIG_JSON"`

	MCPEnabled bool `env:"MCP_ENABLED" envDefault:"true"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}

func (c ServerConfig) Validate() error {
	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendPostgres:
		if c.PostgresDSN == "" {
			return &ConfigurationError{Field: "POSTGRES_DSN", Reason: "required when STORE_BACKEND=postgres"}
		}
	default:
		return &ConfigurationError{Field: "STORE_BACKEND", Reason: "must be memory or postgres"}
	}
	if c.JanitorInterval <= 0 {
		return &ConfigurationError{Field: "JANITOR_INTERVAL", Reason: "must be positive"}
	}
	if c.PayoutMaxAttempts < 1 {
		return &ConfigurationError{Field: "PAYOUT_MAX_ATTEMPTS", Reason: "must be at least 1"}
	}
	return nil
}

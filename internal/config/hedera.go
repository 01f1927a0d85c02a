package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
)

const (
	LedgerBackendMemory = "memory"
	LedgerBackendHedera = "hedera"
)

type HederaConfig struct {
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"memory"`
	Network       string `env:"HEDERA_NETWORK" envDefault:"testnet"`
	// Operator signs payouts and refunds; it is the pool account.
	OperatorID  string `env:"HEDERA_OPERATOR_ID"`
	OperatorKey string `env:"HEDERA_OPERATOR_KEY"`
	// PoolAccountID, when set, must name the operator account.
	PoolAccountID string `env:"POOL_ACCOUNT_ID"`
	// TokenID empty means stakes are paid in HBAR.
	TokenID       string `env:"TOKEN_ID"`
	TokenDecimals int32  `env:"TOKEN_DECIMALS" envDefault:"8"`
	TopicID       string `env:"HCS_TOPIC_ID"`
	MirrorNodeURL string `env:"MIRROR_NODE_URL" envDefault:"https://testnet.mirrornode.hedera.com"`
}

func LoadHedera() (HederaConfig, error) {
	var cfg HederaConfig
	err := env.Parse(&cfg)
	return cfg, err
}

// Pool returns the account stakes are paid into.
func (c HederaConfig) Pool() string {
	if c.PoolAccountID != "" {
		return c.PoolAccountID
	}
	return c.OperatorID
}

func (c HederaConfig) Validate() error {
	switch c.LedgerBackend {
	case LedgerBackendMemory:
		return nil
	case LedgerBackendHedera:
	default:
		return &ConfigurationError{Field: "LEDGER_BACKEND", Reason: "must be memory or hedera"}
	}
	var errs []error
	if c.OperatorID == "" {
		errs = append(errs, &ConfigurationError{Field: "HEDERA_OPERATOR_ID", Reason: "required"})
	}
	if c.PoolAccountID != "" && c.PoolAccountID != c.OperatorID {
		errs = append(errs, &ConfigurationError{Field: "POOL_ACCOUNT_ID", Reason: "must equal HEDERA_OPERATOR_ID; payouts are signed and debited by the operator"})
	}
	if c.OperatorKey == "" {
		errs = append(errs, &ConfigurationError{Field: "HEDERA_OPERATOR_KEY", Reason: "pool signing key is required"})
	}
	if c.TopicID == "" {
		errs = append(errs, &ConfigurationError{Field: "HCS_TOPIC_ID", Reason: "required"})
	}
	if c.MirrorNodeURL == "" {
		errs = append(errs, &ConfigurationError{Field: "MIRROR_NODE_URL", Reason: "required"})
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 18 {
		errs = append(errs, &ConfigurationError{Field: "TOKEN_DECIMALS", Reason: "must be within 0..18"})
	}
	switch c.Network {
	case "mainnet", "testnet", "previewnet", "local":
	default:
		errs = append(errs, &ConfigurationError{Field: "HEDERA_NETWORK", Reason: "unknown network " + c.Network})
	}
	return errors.Join(errs...)
}

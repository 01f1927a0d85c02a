package config

import "errors"

type AppConfig struct {
	Server ServerConfig
	Hedera HederaConfig
	Log    LogConfig
	Rooms  []RoomPreset
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	hederaCfg, err := LoadHedera()
	if err != nil {
		return AppConfig{}, err
	}
	rooms, err := LoadRooms(serverCfg.RoomsConfigPath)
	if err != nil {
		return AppConfig{}, err
	}
	cfg := AppConfig{
		Server: serverCfg,
		Hedera: hederaCfg,
		Log:    logCfg,
		Rooms:  rooms,
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate reports every setting that must be fixed before the service can start.
func (c AppConfig) Validate() error {
	var errs []error
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Hedera.Validate(); err != nil {
		errs = append(errs, err)
	}
	// Admin routes move real money on the hedera backend.
	if c.Hedera.LedgerBackend == LedgerBackendHedera && c.Server.AdminAPIKey == "" {
		errs = append(errs, &ConfigurationError{Field: "ADMIN_API_KEY", Reason: "required when LEDGER_BACKEND=hedera"})
	}
	return errors.Join(errs...)
}

// ConfigurationError is fatal: the service refuses to start until it is fixed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}

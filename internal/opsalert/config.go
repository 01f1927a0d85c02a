package opsalert

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"round-settlement/internal/config"
)

func ConfigFromServer(cfg config.ServerConfig) (Config, error) {
	out := Config{
		Enabled:             cfg.OpsAlertEnabled,
		ConfigPath:          strings.TrimSpace(cfg.OpsAlertConfigPath),
		ConfigReload:        5 * time.Second,
		Workers:             2,
		RetryMax:            3,
		RetryBase:           500 * time.Millisecond,
		FailureThreshold:    3,
		CircuitOpenDuration: 30 * time.Second,
		RequestTimeout:      5 * time.Second,
		DispatchBuffer:      256,
	}
	if !out.Enabled {
		return out, nil
	}

	jsonRaw, err := loadTargetsConfigJSON(cfg)
	if err != nil {
		return Config{}, err
	}
	if jsonRaw == "" {
		return out, nil
	}
	targets, err := parseTargetsJSON(jsonRaw)
	if err != nil {
		return Config{}, err
	}
	out.Targets = targets
	return out, nil
}

func loadTargetsConfigJSON(cfg config.ServerConfig) (string, error) {
	path := strings.TrimSpace(cfg.OpsAlertConfigPath)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read ops alert config path %q: %w", path, err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return strings.TrimSpace(cfg.OpsAlertConfigJSON), nil
}

func parseTargetsJSON(jsonRaw string) ([]Target, error) {
	var targets []Target
	if err := json.Unmarshal([]byte(jsonRaw), &targets); err != nil {
		return nil, fmt.Errorf("parse ops alert targets: %w", err)
	}
	filtered := make([]Target, 0, len(targets))
	for _, target := range targets {
		target.Platform = strings.ToLower(strings.TrimSpace(target.Platform))
		target.ScopeType = strings.ToLower(strings.TrimSpace(target.ScopeType))
		if target.ScopeType == "" {
			target.ScopeType = "all"
		}
		if target.ScopeType != "room" && target.ScopeType != "round" && target.ScopeType != "all" {
			continue
		}
		target.Endpoint = strings.TrimSpace(target.Endpoint)
		if target.Endpoint == "" || !target.Enabled {
			continue
		}
		for i := range target.EventAllowlist {
			target.EventAllowlist[i] = strings.TrimSpace(strings.ToLower(target.EventAllowlist[i]))
		}
		filtered = append(filtered, target)
	}
	return filtered, nil
}

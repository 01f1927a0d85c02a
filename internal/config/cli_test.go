package config

import "testing"

func TestLoadCLIDefaults(t *testing.T) {
	cfg, err := LoadCLI()
	if err != nil {
		t.Fatalf("LoadCLI() error = %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Fatalf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.WSURL != "ws://localhost:8080/ws/rounds" {
		t.Fatalf("WSURL = %q", cfg.WSURL)
	}
}

func TestLoadCLIOverrides(t *testing.T) {
	t.Setenv("ROUNDCTL_SERVER", "http://10.0.0.2:9000")
	t.Setenv("ROUNDCTL_WS_URL", "ws://10.0.0.2:9000/ws/rounds")

	cfg, err := LoadCLI()
	if err != nil {
		t.Fatalf("LoadCLI() error = %v", err)
	}
	if cfg.ServerURL != "http://10.0.0.2:9000" || cfg.WSURL != "ws://10.0.0.2:9000/ws/rounds" {
		t.Fatalf("unexpected cli config: %+v", cfg)
	}
}

package config

import "github.com/caarlos0/env/v11"

type CLIConfig struct {
	ServerURL string `env:"ROUNDCTL_SERVER" envDefault:"http://localhost:8080"`
	WSURL     string `env:"ROUNDCTL_WS_URL" envDefault:"ws://localhost:8080/ws/rounds"`
}

func LoadCLI() (CLIConfig, error) {
	var cfg CLIConfig
	err := env.Parse(&cfg)
	return cfg, err
}

package config

import (
	"errors"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads AppConfig from an optional YAML file at path, then lets
// environment variables (the INCIDENTPULSE_* keys declared on
// AppConfig) override it, matching the teacher's cleanenv-based loader.
// Outside development it rejects a signing secret shorter than 32 bytes.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	loaded := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, err
			}
			loaded = true
		}
	}
	if !loaded {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.IsDevelopment() && len(cfg.SigningSecret) < 32 {
		return nil, errors.New("config: signing_secret must be at least 32 bytes outside development")
	}
	return &cfg, nil
}

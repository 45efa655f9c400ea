package config

import (
	"time"

	"github.com/wendychen0731/chat-app/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server"`
	History HistoryConfig  `json:"history" yaml:"history"`
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host" envconfig:"HOST"`
	Port         int           `json:"port" yaml:"port" envconfig:"PORT" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gte=0"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gte=0"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gte=0"`
	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval" envconfig:"PING_INTERVAL" validate:"gt=0"`
}

// HistoryConfig represents transcript storage configuration
type HistoryConfig struct {
	Path        string `json:"path" yaml:"path" envconfig:"PATH" validate:"required"`
	ReplayLimit int    `json:"replay_limit" yaml:"replay_limit" envconfig:"REPLAY_LIMIT" validate:"gt=0"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8081,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
			PingInterval: 30 * time.Second,
		},
		History: HistoryConfig{
			Path:        "data/chat",
			ReplayLimit: 50,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

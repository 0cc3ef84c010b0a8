// Package config loads server configuration from the environment into a
// typed struct. Values not set in the environment fall back to defaults
// suitable for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable for the support chat server.
type Config struct {
	// ListenAddr is the address the combined HTTP/WebSocket listener binds to.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Admin credentials checked by POST /login/admin and the dashboard.
	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin123"`

	// BannedTerms is the soft-filter term list. Matching is case-insensitive
	// substring; a hit flags the message but never blocks delivery.
	BannedTerms []string `env:"BANNED_TERMS" envSeparator:"," envDefault:"idiot,stupid,kill,hate,die"`

	// QuickReplies are canned one-click messages served by GET /config.
	// Pipe-separated because the texts themselves contain commas.
	QuickReplies []string `env:"QUICK_REPLIES" envSeparator:"|" envDefault:"I hear you.|That sounds really hard.|You are not alone in this.|Take your time."`

	// HelplineContact is shown to users alongside the chat UI.
	HelplineContact string `env:"HELPLINE_CONTACT" envDefault:"help@haven.example"`

	// WebSocket transport tuning.
	WorkerPoolSize int           `env:"WORKER_POOL_SIZE" envDefault:"256"`
	MaxConnections int           `env:"MAX_CONNECTIONS" envDefault:"10000"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	// Per-connection message throttling: sustained rate (messages/second)
	// and burst allowance.
	MessageRate  float64 `env:"MESSAGE_RATE" envDefault:"2"`
	MessageBurst int     `env:"MESSAGE_BURST" envDefault:"5"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: LISTEN_ADDR must not be empty")
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return fmt.Errorf("config: admin credentials must not be empty")
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("config: WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: MAX_CONNECTIONS must be positive, got %d", c.MaxConnections)
	}
	if c.MessageRate <= 0 {
		return fmt.Errorf("config: MESSAGE_RATE must be positive, got %g", c.MessageRate)
	}
	if c.MessageBurst <= 0 {
		return fmt.Errorf("config: MESSAGE_BURST must be positive, got %d", c.MessageBurst)
	}
	return nil
}

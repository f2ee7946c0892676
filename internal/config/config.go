package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file values.
// RENTAL_TRUST__LATE_CANCEL_PENALTY maps to trust.late_cancel_penalty.
const EnvPrefix = "RENTAL_"

type Config struct {
	Server  ServerConfig  `json:"server"`
	Trust   TrustConfig   `json:"trust"`
	Auction AuctionConfig `json:"auction"`
	Logging LoggingConfig `json:"logging"`
}

type ServerConfig struct {
	Address string `json:"address"`
}

// TrustConfig holds the thresholds consumed by the trust engine and the booking coordinator.
type TrustConfig struct {
	// TrustThreshold is the minimum snapshot for trust-weighted auction scoring.
	TrustThreshold float64 `json:"trust_threshold"`
	// AutoRejectThreshold rejects booking requests from users scoring below it.
	AutoRejectThreshold float64 `json:"auto_reject_threshold"`
	// AutoBlockThreshold latches IsBlocked when a score falls below it.
	AutoBlockThreshold float64 `json:"auto_block_threshold"`

	LateCancelPenalty     float64 `json:"late_cancel_penalty"`
	LateCancelWindowHours int     `json:"late_cancel_window_hours"`
}

// LateCancelWindow returns the period before start in which cancelling a confirmed booking is penalized.
func (c TrustConfig) LateCancelWindow() time.Duration {
	return time.Duration(c.LateCancelWindowHours) * time.Hour
}

type AuctionConfig struct {
	DurationHours        int `json:"duration_hours"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// Duration returns how long a newly created auction accepts bids.
func (c AuctionConfig) Duration() time.Duration {
	return time.Duration(c.DurationHours) * time.Hour
}

// SweepInterval returns how often expired auctions are closed.
func (c AuctionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

type LoggingConfig struct {
	Level string `json:"level"`
}

// Default returns the configuration used when no file or override is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{Address: ":8080"},
		Trust: TrustConfig{
			TrustThreshold:        30,
			AutoRejectThreshold:   10,
			AutoBlockThreshold:    0,
			LateCancelPenalty:     5,
			LateCancelWindowHours: 24,
		},
		Auction: AuctionConfig{
			DurationHours:        24,
			SweepIntervalSeconds: 60,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the optional configuration file at path and applies environment overrides.
// An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills settings that must never be zero.
func (c *Config) SetDefaults() {
	def := Default()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Trust.LateCancelWindowHours == 0 {
		c.Trust.LateCancelWindowHours = def.Trust.LateCancelWindowHours
	}
	if c.Auction.DurationHours == 0 {
		c.Auction.DurationHours = def.Auction.DurationHours
	}
	if c.Auction.SweepIntervalSeconds == 0 {
		c.Auction.SweepIntervalSeconds = def.Auction.SweepIntervalSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

// Validate checks the thresholds are usable together.
func (c Config) Validate() error {
	if c.Trust.LateCancelPenalty < 0 {
		return errors.New("trust.late_cancel_penalty must not be negative")
	}
	if c.Trust.LateCancelWindowHours < 0 {
		return errors.New("trust.late_cancel_window_hours must not be negative")
	}
	if c.Trust.AutoRejectThreshold < c.Trust.AutoBlockThreshold {
		return fmt.Errorf("trust.auto_reject_threshold (%.2f) must be >= trust.auto_block_threshold (%.2f)",
			c.Trust.AutoRejectThreshold, c.Trust.AutoBlockThreshold)
	}
	if c.Auction.DurationHours < 0 {
		return errors.New("auction.duration_hours must not be negative")
	}
	if c.Auction.SweepIntervalSeconds < 0 {
		return errors.New("auction.sweep_interval_seconds must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported logging.level: %s", c.Logging.Level)
	}
	return nil
}

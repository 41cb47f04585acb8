// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-threshold-kms.
//
// go-threshold-kms is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads the service configuration from file, environment,
// and defaults, in that order of increasing precedence for the
// environment overrides.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Wrapping ciphers.
const (
	CipherAESGCM    = "aesgcm"
	CipherXChaCha20 = "xchacha20"
)

// Config is the complete service configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Wrapping WrappingConfig `mapstructure:"wrapping"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the SQLite database path; ignored by the memory driver.
	Path string `mapstructure:"path"`
}

// WrappingConfig selects the at-rest wrapping cipher and master key.
type WrappingConfig struct {
	Cipher string `mapstructure:"cipher"`
	// MasterKey is hex-encoded; 32 bytes once decoded. Prefer setting
	// it through TKMS_WRAPPING_MASTER_KEY over the config file.
	MasterKey string `mapstructure:"master_key"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load reads configuration from path (optional), then applies TKMS_*
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "tkms.db")
	v.SetDefault("wrapping.cipher", CipherAESGCM)
	// Registered empty so the env override is visible to Unmarshal.
	v.SetDefault("wrapping.master_key", "")
	v.SetDefault("logging.debug", false)

	v.SetEnvPrefix("TKMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else {
		v.SetConfigName(".tkms")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config file is fine; env and defaults apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		return fmt.Errorf("config: sqlite driver requires storage.path")
	}
	switch c.Wrapping.Cipher {
	case CipherAESGCM, CipherXChaCha20:
	default:
		return fmt.Errorf("config: unknown wrapping cipher %q", c.Wrapping.Cipher)
	}
	if c.Wrapping.MasterKey != "" {
		if _, err := c.DecodeMasterKey(); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMasterKey returns the raw master key bytes from the hex-encoded
// configuration value.
func (c *Config) DecodeMasterKey() ([]byte, error) {
	key, err := hex.DecodeString(c.Wrapping.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("config: master key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

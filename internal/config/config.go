// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authflow.
//
// go-authflow is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads the CLI configuration from a yaml file with
// AUTHFLOW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the CLI/SDK configuration.
type Config struct {
	API      APIConfig      `yaml:"api" json:"api" mapstructure:"api"`
	Storage  StorageConfig  `yaml:"storage" json:"storage" mapstructure:"storage"`
	Webauthn WebauthnConfig `yaml:"webauthn" json:"webauthn" mapstructure:"webauthn"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// APIConfig locates the identity API.
type APIConfig struct {
	// BaseURL is the identity API base URL (required).
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`

	// Timeout bounds each request. Zero selects the transport default.
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	// CookieName is the session cookie name.
	CookieName string `yaml:"cookie_name" json:"cookie_name" mapstructure:"cookie_name"`
}

// StorageConfig selects where per-user ceremony state persists.
type StorageConfig struct {
	// Path is a file used for persistence. Empty selects the in-memory
	// backend (state lost on exit).
	Path string `yaml:"path" json:"path" mapstructure:"path"`

	// Key is the storage key holding the encoded state document.
	Key string `yaml:"key" json:"key" mapstructure:"key"`
}

// WebauthnConfig configures the software authenticator used for
// passkey ceremonies. All three fields must be set to enable it.
type WebauthnConfig struct {
	RPID   string `yaml:"rp_id" json:"rp_id" mapstructure:"rp_id"`
	RPName string `yaml:"rp_name" json:"rp_name" mapstructure:"rp_name"`
	Origin string `yaml:"origin" json:"origin" mapstructure:"origin"`
}

// Enabled reports whether the software authenticator is configured.
func (c *WebauthnConfig) Enabled() bool {
	return c.RPID != "" && c.Origin != ""
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required")
	}
	return nil
}

// Load reads the configuration from path, falling back to
// $HOME/.authflow.yaml, with environment variables (AUTHFLOW_ prefix,
// dots replaced by underscores) overriding file values. A missing file
// is not an error; flags and environment can carry everything.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so environment-only values survive
	// Unmarshal.
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 0)
	v.SetDefault("api.cookie_name", "authflow")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.key", "authflow_state")
	v.SetDefault("webauthn.rp_id", "")
	v.SetDefault("webauthn.rp_name", "")
	v.SetDefault("webauthn.origin", "")
	v.SetDefault("debug", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".authflow")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AUTHFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %q: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

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

package transport

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-authflow/pkg/logging"
)

const (
	// DefaultTimeout bounds every identity API request.
	DefaultTimeout = 13 * time.Second

	// DefaultAuthCookieName is the cookie carrying the session token.
	DefaultAuthCookieName = "authflow"
)

// Config configures the identity API transport.
type Config struct {
	// BaseURL is the identity API base URL (required).
	// Example: "https://auth.example.com"
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`

	// Timeout bounds every request. Default: 13 seconds.
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	// AuthCookieName is the name of the cookie holding the session
	// token. Default: "authflow".
	AuthCookieName string `yaml:"auth_cookie_name" json:"auth_cookie_name" mapstructure:"auth_cookie_name"`

	// RequestsPerSecond enables a client-side request limiter when
	// greater than zero. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst allows short bursts above the sustained rate.
	// Defaults to 5 when limiting is enabled.
	Burst int `yaml:"burst" json:"burst" mapstructure:"burst"`

	// Logger receives transport debug output. Defaults to the package
	// default logger.
	Logger *logging.Logger `yaml:"-" json:"-" mapstructure:"-"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("transport: base URL is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("transport: timeout must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("transport: requests per second must not be negative")
	}
	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.AuthCookieName == "" {
		c.AuthCookieName = DefaultAuthCookieName
	}
	if c.RequestsPerSecond > 0 && c.Burst == 0 {
		c.Burst = 5
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
}

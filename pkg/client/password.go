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

package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-authflow/pkg/autherr"
	"github.com/jeremyhahn/go-authflow/pkg/logging"
	"github.com/jeremyhahn/go-authflow/pkg/state"
	"github.com/jeremyhahn/go-authflow/pkg/transport"
)

// PasswordClient performs password login and password updates.
type PasswordClient struct {
	transport *transport.Client
	state     *state.Manager
	logger    *logging.Logger
}

// NewPasswordClient creates a password client.
func NewPasswordClient(params Params) (*PasswordClient, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &PasswordClient{
		transport: params.Transport,
		state:     params.State,
		logger:    params.Logger,
	}, nil
}

// Login verifies a password for a user. A rate-limited attempt records
// the lockout window in the persisted store before failing, so the
// retry countdown survives restarts.
func (c *PasswordClient) Login(ctx context.Context, userID, password string) error {
	resp, err := c.transport.Post(ctx, "/password/login", map[string]string{
		"user_id":  userID,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("password login: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return autherr.ErrInvalidPassword
	case resp.StatusCode == http.StatusTooManyRequests:
		seconds := resp.RetryAfterSeconds()
		store := c.state.Read()
		c.state.SetPasswordRetryAfter(store, userID, seconds)
		if err := c.state.Write(store); err != nil {
			c.logger.Warn("failed to persist password lockout", "error", err)
		}
		return autherr.NewTooManyRequests(time.Duration(seconds) * time.Second)
	case !resp.Ok():
		return autherr.Technical(fmt.Errorf("password login: status %d", resp.StatusCode))
	}
	return nil
}

// Update sets a new password for the authenticated user.
func (c *PasswordClient) Update(ctx context.Context, userID, password string) error {
	resp, err := c.transport.Put(ctx, "/password", map[string]string{
		"user_id":  userID,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("password update: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return autherr.ErrUnauthorized
	case !resp.Ok():
		return autherr.Technical(fmt.Errorf("password update: status %d", resp.StatusCode))
	}
	return nil
}

// RetryAfterSeconds returns the remaining password lockout window for a
// user, recomputed from the persisted absolute deadline.
func (c *PasswordClient) RetryAfterSeconds(userID string) int {
	return c.state.PasswordRetryAfter(c.state.Read(), userID)
}

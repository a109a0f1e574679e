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
	"github.com/jeremyhahn/go-authflow/pkg/types"
)

// PasscodeClient requests and verifies email one-time codes. The
// persisted store tracks the single active passcode per user and its
// TTL/resend windows as absolute deadlines.
type PasscodeClient struct {
	transport *transport.Client
	state     *state.Manager
	logger    *logging.Logger
}

// NewPasscodeClient creates a passcode client.
func NewPasscodeClient(params Params) (*PasscodeClient, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &PasscodeClient{
		transport: params.Transport,
		state:     params.State,
		logger:    params.Logger,
	}, nil
}

// Initialize requests a new passcode for a user and records it as the
// user's single active passcode. A rate-limited request records the
// resend window before failing.
func (c *PasscodeClient) Initialize(ctx context.Context, userID string) (*types.Passcode, error) {
	resp, err := c.transport.Post(ctx, "/passcode/login/initialize", map[string]string{
		"user_id": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("passcode initialize: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		seconds := resp.RetryAfterSeconds()
		store := c.state.Read()
		c.state.SetPasscodeResendAfter(store, userID, seconds)
		if err := c.state.Write(store); err != nil {
			c.logger.Warn("failed to persist resend window", "error", err)
		}
		return nil, autherr.NewTooManyRequests(time.Duration(seconds) * time.Second)
	case !resp.Ok():
		return nil, autherr.Technical(fmt.Errorf("passcode initialize: status %d", resp.StatusCode))
	}

	var passcode types.Passcode
	if err := resp.JSON(&passcode); err != nil {
		return nil, autherr.Technical(fmt.Errorf("parse passcode: %w", err))
	}

	// A new initialize replaces any previous active passcode.
	store := c.state.Read()
	c.state.SetActivePasscode(store, userID, passcode.ID)
	c.state.SetPasscodeTTL(store, userID, passcode.TTL)
	if err := c.state.Write(store); err != nil {
		c.logger.Warn("failed to persist active passcode", "error", err)
	}
	return &passcode, nil
}

// Finalize submits the code the user received for the active passcode.
// A passcode whose TTL has already run out locally fails without a
// round trip. Consumed or vanished passcodes clear the active state and
// fail with the max-attempts error; a wrong code leaves the passcode
// active for another try.
func (c *PasscodeClient) Finalize(ctx context.Context, userID, code string) error {
	store := c.state.Read()
	passcodeID := c.state.ActivePasscode(store, userID)
	if passcodeID == "" {
		return autherr.Technical(fmt.Errorf("no active passcode for user"))
	}
	if c.state.PasscodeTTL(store, userID) <= 0 {
		return autherr.ErrPasscodeExpired
	}

	resp, err := c.transport.Post(ctx, "/passcode/login/finalize", map[string]string{
		"id":   passcodeID,
		"code": code,
	})
	if err != nil {
		return fmt.Errorf("passcode finalize: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return autherr.ErrInvalidPasscode
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		c.clearActive(userID)
		return autherr.ErrMaxAttemptsReached
	case !resp.Ok():
		return autherr.Technical(fmt.Errorf("passcode finalize: status %d", resp.StatusCode))
	}

	c.clearActive(userID)
	return nil
}

// TTLSeconds returns the remaining lifetime of the active passcode.
func (c *PasscodeClient) TTLSeconds(userID string) int {
	return c.state.PasscodeTTL(c.state.Read(), userID)
}

// ResendAfterSeconds returns the remaining resend cooldown.
func (c *PasscodeClient) ResendAfterSeconds(userID string) int {
	return c.state.PasscodeResendAfter(c.state.Read(), userID)
}

func (c *PasscodeClient) clearActive(userID string) {
	store := c.state.Read()
	c.state.ClearActivePasscode(store, userID)
	if err := c.state.Write(store); err != nil {
		c.logger.Warn("failed to clear active passcode", "error", err)
	}
}

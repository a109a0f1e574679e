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
	"net/url"

	"github.com/jeremyhahn/go-authflow/pkg/autherr"
	"github.com/jeremyhahn/go-authflow/pkg/transport"
	"github.com/jeremyhahn/go-authflow/pkg/types"
)

// UserClient resolves and creates identities.
type UserClient struct {
	transport *transport.Client
}

// NewUserClient creates a user client.
func NewUserClient(params Params) (*UserClient, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &UserClient{transport: params.Transport}, nil
}

// GetInfo resolves the identity and verification state for an email
// address. Unknown emails fail with the not-found error, which the flow
// uses to branch into registration.
func (c *UserClient) GetInfo(ctx context.Context, email string) (*types.UserInfo, error) {
	resp, err := c.transport.Post(ctx, "/user", map[string]string{"email": email})
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, autherr.ErrNotFound
	case !resp.Ok():
		return nil, autherr.Technical(fmt.Errorf("get user info: status %d", resp.StatusCode))
	}

	var info types.UserInfo
	if err := resp.JSON(&info); err != nil {
		return nil, autherr.Technical(fmt.Errorf("parse user info: %w", err))
	}
	return &info, nil
}

// Create registers a new identity for an email address. An already
// registered email fails with the conflict error.
func (c *UserClient) Create(ctx context.Context, email string) (*types.User, error) {
	resp, err := c.transport.Post(ctx, "/users", map[string]string{"email": email})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, autherr.ErrConflict
	case !resp.Ok():
		return nil, autherr.Technical(fmt.Errorf("create user: status %d", resp.StatusCode))
	}

	var user types.User
	if err := resp.JSON(&user); err != nil {
		return nil, autherr.Technical(fmt.Errorf("parse user: %w", err))
	}
	return &user, nil
}

// GetCurrent resolves the currently authenticated identity. Any failure
// to do so reads as an invalid session.
func (c *UserClient) GetCurrent(ctx context.Context) (*types.User, error) {
	resp, err := c.transport.Get(ctx, "/me")
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	if unauthorized(resp) {
		return nil, autherr.ErrUnauthorized
	}
	if !resp.Ok() {
		return nil, autherr.Technical(fmt.Errorf("get current user: status %d", resp.StatusCode))
	}

	var me struct {
		ID string `json:"id"`
	}
	if err := resp.JSON(&me); err != nil {
		return nil, autherr.Technical(fmt.Errorf("parse session: %w", err))
	}

	resp, err = c.transport.Get(ctx, "/users/"+url.PathEscape(me.ID))
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	if unauthorized(resp) {
		return nil, autherr.ErrUnauthorized
	}
	if !resp.Ok() {
		return nil, autherr.Technical(fmt.Errorf("get current user: status %d", resp.StatusCode))
	}

	var user types.User
	if err := resp.JSON(&user); err != nil {
		return nil, autherr.Technical(fmt.Errorf("parse user: %w", err))
	}
	return &user, nil
}

// unauthorized reports whether the response reads as a missing or
// invalid session.
func unauthorized(resp *transport.Response) bool {
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound:
		return true
	}
	return false
}

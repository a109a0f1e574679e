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

	"github.com/jeremyhahn/go-authflow/pkg/autherr"
	"github.com/jeremyhahn/go-authflow/pkg/transport"
	"github.com/jeremyhahn/go-authflow/pkg/types"
)

// ConfigClient fetches the server-advertised feature configuration.
type ConfigClient struct {
	transport *transport.Client
}

// NewConfigClient creates a config client.
func NewConfigClient(params Params) (*ConfigClient, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &ConfigClient{transport: params.Transport}, nil
}

// Get fetches the feature configuration.
func (c *ConfigClient) Get(ctx context.Context) (*types.Config, error) {
	resp, err := c.transport.Get(ctx, "/.well-known/config")
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	if !resp.Ok() {
		return nil, autherr.Technical(fmt.Errorf("get config: status %d", resp.StatusCode))
	}

	var config types.Config
	if err := resp.JSON(&config); err != nil {
		return nil, autherr.Technical(fmt.Errorf("parse config: %w", err))
	}
	return &config, nil
}

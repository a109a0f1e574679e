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

// Package client provides the domain clients for the identity API: one
// per ceremony family (user, password, passcode, config). Each client
// composes the shared transport and the persisted state store, and
// translates HTTP statuses into the autherr taxonomy at this boundary;
// callers above never see a status code.
package client

import (
	"fmt"

	"github.com/jeremyhahn/go-authflow/pkg/logging"
	"github.com/jeremyhahn/go-authflow/pkg/state"
	"github.com/jeremyhahn/go-authflow/pkg/transport"
)

// Params contains the shared dependencies for the domain clients.
type Params struct {
	// Transport is the identity API transport (required).
	Transport *transport.Client

	// State is the persisted state manager (required).
	State *state.Manager

	// Logger is optional and defaults to the package default logger.
	Logger *logging.Logger
}

// validate fills defaults and rejects missing dependencies.
func (p *Params) validate() error {
	if p.Transport == nil {
		return fmt.Errorf("client: transport is required")
	}
	if p.State == nil {
		return fmt.Errorf("client: state manager is required")
	}
	if p.Logger == nil {
		p.Logger = logging.DefaultLogger()
	}
	return nil
}

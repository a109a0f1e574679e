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

package webauthn

import "errors"

// Sentinel errors produced by authenticators. The ceremony client maps
// these onto the autherr taxonomy at its boundary.
var (
	// ErrCancelled is returned when the user or device rejects the
	// credential operation.
	ErrCancelled = errors.New("webauthn: operation cancelled")

	// ErrNoCredential is returned when the authenticator holds no
	// credential satisfying the request.
	ErrNoCredential = errors.New("webauthn: no matching credential")

	// ErrNotSupported is returned when no platform authenticator is
	// available.
	ErrNotSupported = errors.New("webauthn: not supported")

	// ErrInvalidOptions is returned when ceremony options cannot be
	// parsed.
	ErrInvalidOptions = errors.New("webauthn: invalid ceremony options")
)

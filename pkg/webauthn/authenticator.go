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

import "context"

// Authenticator abstracts the platform credential API. Options and
// responses cross this boundary as the raw JSON shapes of the WebAuthn
// wire format, so implementations can hand them to whatever credential
// provider backs them.
//
// Both operations block until the ceremony completes and must honor
// context cancellation: a ceremony is bounded only by user interaction,
// and the caller cancels superseded ceremonies through the context.
type Authenticator interface {
	// Supported reports whether this authenticator can run ceremonies
	// at all.
	Supported() bool

	// SupportsConditionalMediation reports whether discoverable
	// (autofill-assisted) login is available.
	SupportsConditionalMediation() bool

	// Create runs the credential creation ceremony for the given
	// PublicKeyCredentialCreationOptions JSON and returns the
	// attestation response JSON.
	Create(ctx context.Context, optionsJSON []byte) ([]byte, error)

	// Get runs the assertion ceremony for the given
	// PublicKeyCredentialRequestOptions JSON and returns the assertion
	// response JSON. When discoverable is true an empty allow-list is
	// satisfied by any resident credential.
	Get(ctx context.Context, optionsJSON []byte, discoverable bool) ([]byte, error)
}

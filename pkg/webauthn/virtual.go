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

import (
	"context"
	"fmt"
	"sync"

	"github.com/descope/virtualwebauthn"
)

// VirtualAuthenticator is a software authenticator backed by
// virtualwebauthn. It produces valid attestation and assertion
// responses for the configured relying party, holds its credentials in
// memory, and approves every ceremony without user interaction. Used by
// the CLI on hosts without platform credentials, and by tests.
type VirtualAuthenticator struct {
	rp   virtualwebauthn.RelyingParty
	mu   sync.Mutex
	auth virtualwebauthn.Authenticator
}

// NewVirtualAuthenticator creates a software authenticator for the
// given relying party.
func NewVirtualAuthenticator(rpID, rpName, origin string) *VirtualAuthenticator {
	return &VirtualAuthenticator{
		rp: virtualwebauthn.RelyingParty{
			ID:     rpID,
			Name:   rpName,
			Origin: origin,
		},
		auth: virtualwebauthn.NewAuthenticator(),
	}
}

// Supported always reports true; the software authenticator needs no
// platform support.
func (v *VirtualAuthenticator) Supported() bool {
	return true
}

// SupportsConditionalMediation reports true; resident credentials are
// the default for the software authenticator.
func (v *VirtualAuthenticator) SupportsConditionalMediation() bool {
	return true
}

// Create runs the credential creation ceremony and registers the new
// credential with the authenticator.
func (v *VirtualAuthenticator) Create(ctx context.Context, optionsJSON []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}

	options, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	response := virtualwebauthn.CreateAttestationResponse(v.rp, v.auth, credential, *options)
	v.auth.AddCredential(credential)

	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}
	return []byte(response), nil
}

// Get runs the assertion ceremony using a credential matching the
// allow-list, or any resident credential when the list is empty and
// discoverable mode is requested.
func (v *VirtualAuthenticator) Get(ctx context.Context, optionsJSON []byte, discoverable bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}

	options, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var credential *virtualwebauthn.Credential
	if len(options.AllowCredentials) > 0 {
		credential = v.auth.FindAllowedCredential(*options)
	} else if discoverable && len(v.auth.Credentials) > 0 {
		credential = &v.auth.Credentials[0]
	}
	if credential == nil {
		return nil, ErrNoCredential
	}

	response := virtualwebauthn.CreateAssertionResponse(v.rp, v.auth, *credential, *options)

	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}
	return []byte(response), nil
}

// CredentialCount returns the number of credentials the authenticator
// holds.
func (v *VirtualAuthenticator) CredentialCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.auth.Credentials)
}

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

// Package webauthn drives WebAuthn ceremonies against the identity API:
// it fetches challenge options over the transport, runs the platform
// credential operation, posts the result back for verification, and
// records verified credential IDs in the persisted state store. At most
// one ceremony is pending per client; starting a new one cancels the
// previous platform prompt.
package webauthn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-authflow/pkg/autherr"
	"github.com/jeremyhahn/go-authflow/pkg/logging"
	"github.com/jeremyhahn/go-authflow/pkg/metrics"
	"github.com/jeremyhahn/go-authflow/pkg/state"
	"github.com/jeremyhahn/go-authflow/pkg/transport"
	"github.com/jeremyhahn/go-authflow/pkg/types"
)

// Client orchestrates WebAuthn login and registration ceremonies.
type Client struct {
	transport     *transport.Client
	state         *state.Manager
	authenticator Authenticator
	logger        *logging.Logger

	mu      sync.Mutex
	pending *ceremony
}

// ceremony identifies one pending platform credential operation.
type ceremony struct {
	cancel context.CancelFunc
}

// ClientParams contains dependencies for creating a ceremony client.
type ClientParams struct {
	// Transport is the identity API transport (required).
	Transport *transport.Client

	// State is the persisted state manager (required).
	State *state.Manager

	// Authenticator is the platform credential provider. Optional; a
	// nil authenticator disables ceremonies and ShouldOffer reports
	// false.
	Authenticator Authenticator

	// Logger is optional and defaults to the package default logger.
	Logger *logging.Logger
}

// NewClient creates a new ceremony client with the provided dependencies.
func NewClient(params ClientParams) (*Client, error) {
	if params.Transport == nil {
		return nil, fmt.Errorf("webauthn: transport is required")
	}
	if params.State == nil {
		return nil, fmt.Errorf("webauthn: state manager is required")
	}
	if params.Logger == nil {
		params.Logger = logging.DefaultLogger()
	}

	return &Client{
		transport:     params.Transport,
		state:         params.State,
		authenticator: params.Authenticator,
		logger:        params.Logger,
	}, nil
}

// Login runs the assertion ceremony. A non-empty userID scopes the
// challenge to that user's credentials (allow-listed login); an empty
// userID with discoverable set requests a resident-credential login.
// On success the verified credential ID is recorded for the returned
// user in the persisted store.
func (c *Client) Login(ctx context.Context, userID string, discoverable bool) error {
	if c.authenticator == nil || !c.authenticator.Supported() {
		return autherr.ErrTechnical.WithCause(ErrNotSupported)
	}

	body := map[string]any{}
	if userID != "" {
		body["user_id"] = userID
	}
	resp, err := c.transport.Post(ctx, "/webauthn/login/initialize", body)
	if err != nil {
		return fmt.Errorf("webauthn login initialize: %w", err)
	}
	if !resp.Ok() {
		return autherr.Technical(fmt.Errorf("webauthn login initialize: status %d", resp.StatusCode))
	}

	var assertion protocol.CredentialAssertion
	if err := resp.JSON(&assertion); err != nil {
		return autherr.Technical(fmt.Errorf("parse assertion options: %w", err))
	}
	optionsJSON, err := json.Marshal(assertion.Response)
	if err != nil {
		return autherr.Technical(err)
	}

	ceremonyCtx, release := c.claimCeremony(ctx)
	defer release()

	assertionResponse, err := c.authenticator.Get(ceremonyCtx, optionsJSON, discoverable)
	if err != nil {
		return c.mapCeremonyError(metrics.CeremonyLogin, ceremonyCtx, err)
	}

	resp, err = c.transport.Post(ctx, "/webauthn/login/finalize", json.RawMessage(assertionResponse))
	if err != nil {
		return fmt.Errorf("webauthn login finalize: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		metrics.RecordCeremony(metrics.CeremonyLogin, metrics.StatusError)
		return autherr.ErrInvalidWebauthnCredential
	case !resp.Ok():
		metrics.RecordCeremony(metrics.CeremonyLogin, metrics.StatusError)
		return autherr.Technical(fmt.Errorf("webauthn login finalize: status %d", resp.StatusCode))
	}

	metrics.RecordCeremony(metrics.CeremonyLogin, metrics.StatusSuccess)
	return c.recordCredential(resp)
}

// Register runs the credential creation ceremony for the currently
// authenticated user. On success the new credential ID is recorded in
// the persisted store.
func (c *Client) Register(ctx context.Context) error {
	if c.authenticator == nil || !c.authenticator.Supported() {
		return autherr.ErrTechnical.WithCause(ErrNotSupported)
	}

	resp, err := c.transport.Post(ctx, "/webauthn/registration/initialize", nil)
	if err != nil {
		return fmt.Errorf("webauthn registration initialize: %w", err)
	}
	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return autherr.ErrUnauthorized.WithCause(
			fmt.Errorf("webauthn registration initialize: status %d", resp.StatusCode))
	case !resp.Ok():
		return autherr.Technical(fmt.Errorf("webauthn registration initialize: status %d", resp.StatusCode))
	}

	var creation protocol.CredentialCreation
	if err := resp.JSON(&creation); err != nil {
		return autherr.Technical(fmt.Errorf("parse creation options: %w", err))
	}
	optionsJSON, err := json.Marshal(creation.Response)
	if err != nil {
		return autherr.Technical(err)
	}

	ceremonyCtx, release := c.claimCeremony(ctx)
	defer release()

	attestationResponse, err := c.authenticator.Create(ceremonyCtx, optionsJSON)
	if err != nil {
		return c.mapCeremonyError(metrics.CeremonyRegistration, ceremonyCtx, err)
	}

	resp, err = c.transport.Post(ctx, "/webauthn/registration/finalize",
		json.RawMessage(patchTransports(attestationResponse)))
	if err != nil {
		return fmt.Errorf("webauthn registration finalize: %w", err)
	}
	if !resp.Ok() {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusError)
		return autherr.Technical(fmt.Errorf("webauthn registration finalize: status %d", resp.StatusCode))
	}

	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusSuccess)
	return c.recordCredential(resp)
}

// ShouldOffer reports whether passkey enrollment should be offered for
// the user: the platform must support ceremonies and none of the user's
// server-known credentials may already be bound to this device.
func (c *Client) ShouldOffer(user *types.User) bool {
	if user == nil || c.authenticator == nil || !c.authenticator.Supported() {
		return false
	}

	store := c.state.Read()
	matched := c.state.MatchCredentialIDs(store, user.ID, user.CredentialIDs())
	return len(matched) == 0
}

// Supported reports whether this device can perform ceremonies at all.
func (c *Client) Supported() bool {
	return c.authenticator != nil && c.authenticator.Supported()
}

// SupportsConditionalMediation reports whether discoverable (autofill
// assisted) login is available on this device.
func (c *Client) SupportsConditionalMediation() bool {
	return c.authenticator != nil && c.authenticator.Supported() &&
		c.authenticator.SupportsConditionalMediation()
}

// claimCeremony registers a new pending ceremony, cancelling any prior
// one so the platform never holds two concurrent prompts for this
// client.
func (c *Client) claimCeremony(ctx context.Context) (context.Context, context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.pending.cancel()
	}

	ceremonyCtx, cancel := context.WithCancel(ctx)
	claimed := &ceremony{cancel: cancel}
	c.pending = claimed

	release := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		cancel()
		// Only clear the slot if it still belongs to this ceremony.
		if c.pending == claimed {
			c.pending = nil
		}
	}
	return ceremonyCtx, release
}

// recordCredential persists the verified credential ID for the user the
// server resolved.
func (c *Client) recordCredential(resp *transport.Response) error {
	var finalized types.WebauthnFinalized
	if err := resp.JSON(&finalized); err != nil {
		return autherr.Technical(fmt.Errorf("parse finalize response: %w", err))
	}
	if finalized.UserID == "" || finalized.CredentialID == "" {
		return nil
	}

	store := c.state.Read()
	c.state.AddCredentialID(store, finalized.UserID, finalized.CredentialID)
	if err := c.state.Write(store); err != nil {
		// State is advisory; a failed write must not fail the ceremony.
		c.logger.Warn("failed to persist credential id", "error", err)
	}
	return nil
}

// mapCeremonyError translates authenticator failures onto the taxonomy.
// Cancellation, a missing credential, and supersession by a newer
// ceremony all surface as the soft cancelled error.
func (c *Client) mapCeremonyError(ceremony string, ceremonyCtx context.Context, err error) error {
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrNoCredential) ||
		errors.Is(err, context.Canceled) || ceremonyCtx.Err() == context.Canceled {
		metrics.RecordCeremony(ceremony, metrics.StatusCancelled)
		return autherr.ErrWebauthnCancelled.WithCause(err)
	}
	metrics.RecordCeremony(ceremony, metrics.StatusError)
	return autherr.Technical(err)
}

// patchTransports lifts the attestation response's nested transport
// list to the top level, the shape the server expects. Browsers report
// transports on the authenticator response object rather than on the
// credential itself.
func patchTransports(attestation []byte) []byte {
	var m map[string]any
	if err := json.Unmarshal(attestation, &m); err != nil {
		return attestation
	}
	response, ok := m["response"].(map[string]any)
	if !ok {
		return attestation
	}
	transports, ok := response["transports"]
	if !ok {
		return attestation
	}
	m["transports"] = transports

	patched, err := json.Marshal(m)
	if err != nil {
		return attestation
	}
	return patched
}

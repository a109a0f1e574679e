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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-authflow/pkg/autherr"
	"github.com/jeremyhahn/go-authflow/pkg/state"
	"github.com/jeremyhahn/go-authflow/pkg/storage"
	"github.com/jeremyhahn/go-authflow/pkg/transport"
	"github.com/jeremyhahn/go-authflow/pkg/types"
)

// fakeRelyingParty is a minimal identity API backend for ceremony
// tests. It issues real challenge options and structurally verifies
// the attestation/assertion payloads the client posts back.
type fakeRelyingParty struct {
	mu sync.Mutex

	userID      string
	credentials map[string]bool // credential ID (base64url) -> registered

	requireAuthForRegistration bool

	// captured state for assertions
	lastRegistrationBody map[string]any
}

func newFakeRelyingParty(userID string) *fakeRelyingParty {
	return &fakeRelyingParty{
		userID:      userID,
		credentials: make(map[string]bool),
	}
}

func (f *fakeRelyingParty) router() chi.Router {
	router := chi.NewRouter()
	router.Post("/webauthn/login/initialize", f.loginInitialize)
	router.Post("/webauthn/login/finalize", f.loginFinalize)
	router.Post("/webauthn/registration/initialize", f.registrationInitialize)
	router.Post("/webauthn/registration/finalize", f.registrationFinalize)
	return router
}

func (f *fakeRelyingParty) loginInitialize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	challenge, err := protocol.CreateChallenge()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	options := protocol.PublicKeyCredentialRequestOptions{
		Challenge:        challenge,
		RelyingPartyID:   "localhost",
		Timeout:          60000,
		UserVerification: protocol.VerificationPreferred,
	}

	// A user-scoped login carries an allow-list of that user's
	// registered credentials; a discoverable login does not.
	if body.UserID != "" {
		f.mu.Lock()
		for id := range f.credentials {
			raw, err := base64.RawURLEncoding.DecodeString(id)
			if err != nil {
				continue
			}
			options.AllowedCredentials = append(options.AllowedCredentials, protocol.CredentialDescriptor{
				Type:         protocol.PublicKeyCredentialType,
				CredentialID: raw,
			})
		}
		f.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, protocol.CredentialAssertion{Response: options})
}

func (f *fakeRelyingParty) loginFinalize(w http.ResponseWriter, r *http.Request) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	registered := f.credentials[parsed.ID]
	f.mu.Unlock()
	if !registered {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, types.WebauthnFinalized{
		UserID:       f.userID,
		CredentialID: parsed.ID,
	})
}

func (f *fakeRelyingParty) registrationInitialize(w http.ResponseWriter, r *http.Request) {
	if f.requireAuthForRegistration && r.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	challenge, err := protocol.CreateChallenge()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	creation := protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			Challenge: challenge,
			RelyingParty: protocol.RelyingPartyEntity{
				ID:               "localhost",
				CredentialEntity: protocol.CredentialEntity{Name: "Test RP"},
			},
			User: protocol.UserEntity{
				ID:               protocol.URLEncodedBase64(f.userID),
				DisplayName:      "Test User",
				CredentialEntity: protocol.CredentialEntity{Name: "test@example.com"},
			},
			Parameters: []protocol.CredentialParameter{
				{Type: protocol.PublicKeyCredentialType, Algorithm: -7},
			},
			Timeout: 60000,
		},
	}
	writeJSON(w, http.StatusOK, creation)
}

func (f *fakeRelyingParty) registrationFinalize(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(raw))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.credentials[parsed.ID] = true
	f.lastRegistrationBody = body
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, types.WebauthnFinalized{
		UserID:       f.userID,
		CredentialID: parsed.ID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newCeremonyClient wires a ceremony client against the fake relying
// party with a fresh in-memory state store.
func newCeremonyClient(t *testing.T, rp *fakeRelyingParty, authenticator Authenticator) (*Client, *state.Manager) {
	t.Helper()

	server := httptest.NewServer(rp.router())
	t.Cleanup(server.Close)

	tc, err := transport.NewClient(&transport.Config{BaseURL: server.URL})
	require.NoError(t, err)

	manager, err := state.NewManager(storage.NewMemory())
	require.NoError(t, err)

	client, err := NewClient(ClientParams{
		Transport:     tc,
		State:         manager,
		Authenticator: authenticator,
	})
	require.NoError(t, err)
	return client, manager
}

func TestRegisterThenLogin(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	authenticator := NewVirtualAuthenticator("localhost", "Test RP", "http://localhost")
	client, manager := newCeremonyClient(t, rp, authenticator)
	ctx := context.Background()

	// Registration creates a credential and records its ID locally.
	require.NoError(t, client.Register(ctx))
	assert.Equal(t, 1, authenticator.CredentialCount())

	store := manager.Read()
	credentialIDs := manager.CredentialIDs(store, "u1")
	require.Len(t, credentialIDs, 1)

	// The registration payload carries the transports list at the top
	// level, lifted out of the nested authenticator response.
	if nested, ok := rp.lastRegistrationBody["response"].(map[string]any); ok {
		if transports, ok := nested["transports"]; ok {
			assert.Equal(t, transports, rp.lastRegistrationBody["transports"])
		}
	}

	// An allow-listed login for the same user succeeds with the
	// registered credential.
	require.NoError(t, client.Login(ctx, "u1", false))

	// The known credential set did not shrink or duplicate.
	store = manager.Read()
	assert.Equal(t, credentialIDs, manager.CredentialIDs(store, "u1"))
}

func TestDiscoverableLogin(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	authenticator := NewVirtualAuthenticator("localhost", "Test RP", "http://localhost")
	client, _ := newCeremonyClient(t, rp, authenticator)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx))

	// No user ID: resident-credential login.
	require.NoError(t, client.Login(ctx, "", true))
}

func TestLoginWithoutCredentialIsCancelled(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	authenticator := NewVirtualAuthenticator("localhost", "Test RP", "http://localhost")
	client, _ := newCeremonyClient(t, rp, authenticator)

	// The authenticator holds no credentials, so the platform op ends
	// without a usable credential. That is a soft cancellation, not a
	// server error.
	err := client.Login(context.Background(), "u1", false)
	assert.ErrorIs(t, err, autherr.ErrWebauthnCancelled)
	assert.True(t, autherr.IsSoft(err))
}

func TestLoginServerRejection(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	authenticator := NewVirtualAuthenticator("localhost", "Test RP", "http://localhost")
	client, _ := newCeremonyClient(t, rp, authenticator)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx))

	// Wipe the server-side registration; the assertion now verifies
	// against nothing and the server rejects it.
	rp.mu.Lock()
	rp.credentials = make(map[string]bool)
	rp.mu.Unlock()

	err := client.Login(ctx, "", true)
	assert.ErrorIs(t, err, autherr.ErrInvalidWebauthnCredential)
	assert.False(t, autherr.IsSoft(err))
}

func TestRegisterUnauthorized(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	rp.requireAuthForRegistration = true
	authenticator := NewVirtualAuthenticator("localhost", "Test RP", "http://localhost")
	client, _ := newCeremonyClient(t, rp, authenticator)

	err := client.Register(context.Background())
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)
}

func TestCancelledAuthenticatorMapsToSoftError(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	client, _ := newCeremonyClient(t, rp, &stubAuthenticator{getErr: ErrCancelled})

	err := client.Login(context.Background(), "u1", false)
	assert.ErrorIs(t, err, autherr.ErrWebauthnCancelled)
}

func TestNilAuthenticator(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	client, _ := newCeremonyClient(t, rp, nil)

	assert.ErrorIs(t, client.Login(context.Background(), "u1", false), autherr.ErrTechnical)
	assert.ErrorIs(t, client.Register(context.Background()), autherr.ErrTechnical)
	assert.False(t, client.SupportsConditionalMediation())
	assert.False(t, client.ShouldOffer(&types.User{ID: "u1"}))
}

func TestSecondLoginCancelsFirst(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	blocking := newBlockingAuthenticator()
	client, _ := newCeremonyClient(t, rp, blocking)

	firstResult := make(chan error, 1)
	go func() {
		firstResult <- client.Login(context.Background(), "u1", false)
	}()

	// Wait for the first ceremony to reach the platform prompt.
	select {
	case <-blocking.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first ceremony never started")
	}

	secondResult := make(chan error, 1)
	go func() {
		secondResult <- client.Login(context.Background(), "u1", false)
	}()

	// The first ceremony must reject with cancellation, never with a
	// server-derived error.
	select {
	case err := <-firstResult:
		assert.ErrorIs(t, err, autherr.ErrWebauthnCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("first ceremony was not cancelled")
	}

	// Let the second ceremony finish (cancelled by its own context is
	// fine; it must not deadlock).
	select {
	case <-blocking.started:
		blocking.releaseAll()
	default:
		blocking.releaseAll()
	}
	select {
	case <-secondResult:
	case <-time.After(5 * time.Second):
		t.Fatal("second ceremony never finished")
	}
}

func TestShouldOffer(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	authenticator := NewVirtualAuthenticator("localhost", "Test RP", "http://localhost")
	client, manager := newCeremonyClient(t, rp, authenticator)

	user := &types.User{ID: "u1", WebauthnCredentials: []types.Credential{{ID: "c1"}}}

	// No locally known credentials yet: offer enrollment.
	assert.True(t, client.ShouldOffer(user))

	// Device already holds a matching credential: nothing to offer.
	store := manager.Read()
	manager.AddCredentialID(store, "u1", "c1")
	require.NoError(t, manager.Write(store))
	assert.False(t, client.ShouldOffer(user))

	// A credential for a different user does not suppress the offer.
	other := &types.User{ID: "u2", WebauthnCredentials: []types.Credential{{ID: "c9"}}}
	assert.True(t, client.ShouldOffer(other))
}

func TestShouldOfferAfterRegistration(t *testing.T) {
	rp := newFakeRelyingParty("u1")
	authenticator := NewVirtualAuthenticator("localhost", "Test RP", "http://localhost")
	client, manager := newCeremonyClient(t, rp, authenticator)

	require.NoError(t, client.Register(context.Background()))

	store := manager.Read()
	ids := manager.CredentialIDs(store, "u1")
	require.Len(t, ids, 1)

	user := &types.User{ID: "u1", WebauthnCredentials: []types.Credential{{ID: ids[0]}}}
	assert.False(t, client.ShouldOffer(user))
}

func TestPatchTransports(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		check func(t *testing.T, out map[string]any)
	}{
		{
			name: "nested transports lifted",
			in:   `{"id":"abc","response":{"transports":["internal","hybrid"]}}`,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, []any{"internal", "hybrid"}, out["transports"])
			},
		},
		{
			name: "no nested transports",
			in:   `{"id":"abc","response":{}}`,
			check: func(t *testing.T, out map[string]any) {
				assert.NotContains(t, out, "transports")
			},
		},
		{
			name: "no response object",
			in:   `{"id":"abc"}`,
			check: func(t *testing.T, out map[string]any) {
				assert.NotContains(t, out, "transports")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			patched := patchTransports([]byte(tc.in))
			var out map[string]any
			require.NoError(t, json.Unmarshal(patched, &out))
			tc.check(t, out)
		})
	}
}

func TestPatchTransportsInvalidJSON(t *testing.T) {
	in := []byte("not json")
	assert.Equal(t, in, patchTransports(in))
}

// stubAuthenticator fails operations with fixed errors.
type stubAuthenticator struct {
	getErr    error
	createErr error
}

func (s *stubAuthenticator) Supported() bool                    { return true }
func (s *stubAuthenticator) SupportsConditionalMediation() bool { return false }

func (s *stubAuthenticator) Create(ctx context.Context, optionsJSON []byte) ([]byte, error) {
	return nil, s.createErr
}

func (s *stubAuthenticator) Get(ctx context.Context, optionsJSON []byte, discoverable bool) ([]byte, error) {
	return nil, s.getErr
}

// blockingAuthenticator blocks every Get until its context is cancelled
// or the test releases it, signaling each ceremony start.
type blockingAuthenticator struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingAuthenticator() *blockingAuthenticator {
	return &blockingAuthenticator{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingAuthenticator) Supported() bool                    { return true }
func (b *blockingAuthenticator) SupportsConditionalMediation() bool { return false }

func (b *blockingAuthenticator) Create(ctx context.Context, optionsJSON []byte) ([]byte, error) {
	return nil, ErrCancelled
}

func (b *blockingAuthenticator) Get(ctx context.Context, optionsJSON []byte, discoverable bool) ([]byte, error) {
	b.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return nil, ErrCancelled
	}
}

func (b *blockingAuthenticator) releaseAll() {
	close(b.release)
}

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

package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-authflow/pkg/storage"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(storage.NewMemory(), opts...)
	require.NoError(t, err)
	return m
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	store := NewStore()
	store.setUserState("u1", UserState{
		Passcode: PasscodeState{ActiveID: "p-1", ExpiresAt: 1700000300, ResendAfterAt: 1700000060},
		Password: PasswordState{RetryAfterAt: 1700000600},
		Webauthn: WebauthnState{CredentialIDs: []string{"c1", "c2"}},
	})
	// Arbitrary unicode in identifiers must survive the escaping.
	store.setUserState("üser@exämple.com", UserState{
		Webauthn: WebauthnState{CredentialIDs: []string{"кредо-1", "凭证=2&x"}},
	})

	blob, err := Encode(store)
	require.NoError(t, err)

	decoded := Decode(blob)
	assert.Equal(t, store, decoded)
}

func TestDecodeCorruptBlobYieldsEmptyStore(t *testing.T) {
	blobs := [][]byte{
		nil,
		[]byte(""),
		[]byte("not base64 !!!"),
		[]byte("aGVsbG8="),                 // base64 of non-JSON
		[]byte("JTft"),                     // base64 of an invalid escape sequence
		[]byte("WyJub3QiLCAibWFwIl0="),     // base64 of a JSON array
		[]byte("eyJ1c2VycyI6IDEyM30="),     // users is not an object
		{0xff, 0xfe, 0x00},                 // raw bytes
		[]byte("====="),                    // padding only
	}

	for _, blob := range blobs {
		decoded := Decode(blob)
		require.NotNil(t, decoded, "blob %q", blob)
		assert.NotNil(t, decoded.Users, "blob %q", blob)
		assert.Empty(t, decoded.Users, "blob %q", blob)
	}
}

func TestManagerReadMissingAndCorrupt(t *testing.T) {
	backend := storage.NewMemory()
	m, err := NewManager(backend)
	require.NoError(t, err)

	// Missing entry reads as empty.
	store := m.Read()
	assert.Empty(t, store.Users)

	// Tampered entry reads as empty.
	require.NoError(t, backend.Set(DefaultStorageKey, []byte("tampered")))
	store = m.Read()
	assert.Empty(t, store.Users)
}

func TestManagerWriteRead(t *testing.T) {
	m := newTestManager(t)

	store := m.Read()
	m.SetActivePasscode(store, "u1", "p-1")
	m.AddCredentialID(store, "u1", "c1")
	require.NoError(t, m.Write(store))

	reloaded := m.Read()
	assert.Equal(t, "p-1", m.ActivePasscode(reloaded, "u1"))
	assert.Equal(t, []string{"c1"}, m.CredentialIDs(reloaded, "u1"))
}

func TestDeadlineWindows(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := newTestManager(t, WithClock(func() time.Time { return now }))
	store := m.Read()

	tests := []struct {
		name string
		set  func(seconds int)
		get  func() int
	}{
		{
			name: "passcode ttl",
			set:  func(s int) { m.SetPasscodeTTL(store, "u1", s) },
			get:  func() int { return m.PasscodeTTL(store, "u1") },
		},
		{
			name: "passcode resend",
			set:  func(s int) { m.SetPasscodeResendAfter(store, "u1", s) },
			get:  func() int { return m.PasscodeResendAfter(store, "u1") },
		},
		{
			name: "password retry",
			set:  func(s int) { m.SetPasswordRetryAfter(store, "u1", s) },
			get:  func() int { return m.PasswordRetryAfter(store, "u1") },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Unset windows report zero.
			assert.Equal(t, 0, tc.get())

			tc.set(180)
			got := tc.get()
			assert.GreaterOrEqual(t, got, 179)
			assert.LessOrEqual(t, got, 180)

			// Expired deadlines clamp at zero.
			now = now.Add(181 * time.Second)
			assert.Equal(t, 0, tc.get())
			now = time.Unix(1700000000, 0)
		})
	}
}

func TestWindowsSurviveReload(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	backend := storage.NewMemory()
	m, err := NewManager(backend, WithClock(clock))
	require.NoError(t, err)

	store := m.Read()
	m.SetPasscodeTTL(store, "u1", 300)
	require.NoError(t, m.Write(store))

	// A "reload" constructs a fresh manager over the same backend 40
	// seconds later; the countdown continues from the absolute deadline.
	now = now.Add(40 * time.Second)
	reloaded, err := NewManager(backend, WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, 260, reloaded.PasscodeTTL(reloaded.Read(), "u1"))
}

func TestAtMostOneActivePasscode(t *testing.T) {
	m := newTestManager(t)
	store := m.Read()

	m.SetActivePasscode(store, "u1", "first")
	m.SetActivePasscode(store, "u1", "second")
	assert.Equal(t, "second", m.ActivePasscode(store, "u1"))

	m.ClearActivePasscode(store, "u1")
	assert.Empty(t, m.ActivePasscode(store, "u1"))
	assert.Equal(t, 0, m.PasscodeTTL(store, "u1"))
}

func TestCredentialIDsGrowMonotonically(t *testing.T) {
	m := newTestManager(t)
	store := m.Read()

	m.AddCredentialID(store, "u1", "c1")
	m.AddCredentialID(store, "u1", "c2")
	m.AddCredentialID(store, "u1", "c1") // duplicate ignored
	m.AddCredentialID(store, "u2", "c3") // other users don't interfere

	assert.Equal(t, []string{"c1", "c2"}, m.CredentialIDs(store, "u1"))
	assert.Equal(t, []string{"c3"}, m.CredentialIDs(store, "u2"))
}

func TestMatchCredentialIDs(t *testing.T) {
	m := newTestManager(t)
	store := m.Read()

	m.AddCredentialID(store, "u1", "c1")
	m.AddCredentialID(store, "u1", "c3")

	assert.Equal(t, []string{"c1", "c3"}, m.MatchCredentialIDs(store, "u1", []string{"c1", "c2", "c3"}))
	assert.Equal(t, []string{"c3", "c1"}, m.MatchCredentialIDs(store, "u1", []string{"c3", "c2", "c1"}))
	assert.Empty(t, m.MatchCredentialIDs(store, "u1", []string{"c9"}))
	assert.Empty(t, m.MatchCredentialIDs(store, "unknown", []string{"c1"}))
}

func TestUserStateDoesNotMutateStore(t *testing.T) {
	m := newTestManager(t)
	store := m.Read()

	us := store.UserState("ghost")
	assert.Empty(t, us.Passcode.ActiveID)
	assert.NotContains(t, store.Users, "ghost")

	// Reads over the fresh value go through the manager unchanged.
	assert.Equal(t, 0, m.PasscodeTTL(store, "ghost"))
	assert.NotContains(t, store.Users, "ghost")
}

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
	"fmt"
	"time"

	"github.com/jeremyhahn/go-authflow/pkg/storage"
)

// DefaultStorageKey is the storage slot the persisted store lives in.
const DefaultStorageKey = "authflow_state"

// Manager binds the persisted store to a storage backend and provides
// the mutation helpers. Helpers transform a store value in place;
// nothing is auto-saved. Callers follow read-modify-write:
//
//	store := mgr.Read()
//	mgr.SetPasscodeTTL(store, userID, 300)
//	mgr.Write(store)
type Manager struct {
	backend storage.Backend
	key     string
	now     func() time.Time
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithStorageKey overrides the storage slot used for the store.
func WithStorageKey(key string) ManagerOption {
	return func(m *Manager) {
		m.key = key
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a state manager over the given backend.
func NewManager(backend storage.Backend, opts ...ManagerOption) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("state: storage backend is required")
	}

	m := &Manager{
		backend: backend,
		key:     DefaultStorageKey,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Read loads the persisted store. It never fails: a missing, corrupt,
// or unreadable entry yields an empty store.
func (m *Manager) Read() *Store {
	blob, err := m.backend.Get(m.key)
	if err != nil {
		return NewStore()
	}
	return Decode(blob)
}

// Write serializes the store and overwrites the storage slot.
func (m *Manager) Write(s *Store) error {
	blob, err := Encode(s)
	if err != nil {
		return fmt.Errorf("state: encode store: %w", err)
	}
	if err := m.backend.Set(m.key, blob); err != nil {
		return fmt.Errorf("state: write store: %w", err)
	}
	return nil
}

// SetActivePasscode records the server-issued ID of the newly active
// passcode for a user, replacing any previous one.
func (m *Manager) SetActivePasscode(s *Store, userID, passcodeID string) {
	us := s.UserState(userID)
	us.Passcode.ActiveID = passcodeID
	s.setUserState(userID, us)
}

// ActivePasscode returns the active passcode ID for a user, or empty.
func (m *Manager) ActivePasscode(s *Store, userID string) string {
	return s.UserState(userID).Passcode.ActiveID
}

// ClearActivePasscode removes the active passcode and its TTL.
func (m *Manager) ClearActivePasscode(s *Store, userID string) {
	us := s.UserState(userID)
	us.Passcode.ActiveID = ""
	us.Passcode.ExpiresAt = 0
	s.setUserState(userID, us)
}

// SetPasscodeTTL records the active passcode's remaining lifetime as an
// absolute deadline.
func (m *Manager) SetPasscodeTTL(s *Store, userID string, seconds int) {
	us := s.UserState(userID)
	us.Passcode.ExpiresAt = m.deadline(seconds)
	s.setUserState(userID, us)
}

// PasscodeTTL returns the seconds until the active passcode expires,
// clamped at zero.
func (m *Manager) PasscodeTTL(s *Store, userID string) int {
	return m.remaining(s.UserState(userID).Passcode.ExpiresAt)
}

// SetPasscodeResendAfter records the resend cooldown as an absolute
// deadline.
func (m *Manager) SetPasscodeResendAfter(s *Store, userID string, seconds int) {
	us := s.UserState(userID)
	us.Passcode.ResendAfterAt = m.deadline(seconds)
	s.setUserState(userID, us)
}

// PasscodeResendAfter returns the seconds until a new passcode may be
// requested, clamped at zero.
func (m *Manager) PasscodeResendAfter(s *Store, userID string) int {
	return m.remaining(s.UserState(userID).Passcode.ResendAfterAt)
}

// SetPasswordRetryAfter records the password lockout as an absolute
// deadline.
func (m *Manager) SetPasswordRetryAfter(s *Store, userID string, seconds int) {
	us := s.UserState(userID)
	us.Password.RetryAfterAt = m.deadline(seconds)
	s.setUserState(userID, us)
}

// PasswordRetryAfter returns the seconds until a password login may be
// retried, clamped at zero.
func (m *Manager) PasswordRetryAfter(s *Store, userID string) int {
	return m.remaining(s.UserState(userID).Password.RetryAfterAt)
}

// AddCredentialID appends a WebAuthn credential ID to the set known for
// a user on this device. Existing IDs are never removed.
func (m *Manager) AddCredentialID(s *Store, userID, credentialID string) {
	us := s.UserState(userID)
	for _, id := range us.Webauthn.CredentialIDs {
		if id == credentialID {
			return
		}
	}
	us.Webauthn.CredentialIDs = append(us.Webauthn.CredentialIDs, credentialID)
	s.setUserState(userID, us)
}

// CredentialIDs returns the WebAuthn credential IDs known for a user on
// this device.
func (m *Manager) CredentialIDs(s *Store, userID string) []string {
	return s.UserState(userID).Webauthn.CredentialIDs
}

// MatchCredentialIDs intersects the candidate IDs with the locally
// known set, preserving candidate order.
func (m *Manager) MatchCredentialIDs(s *Store, userID string, candidates []string) []string {
	known := make(map[string]bool)
	for _, id := range s.UserState(userID).Webauthn.CredentialIDs {
		known[id] = true
	}

	var matched []string
	for _, id := range candidates {
		if known[id] {
			matched = append(matched, id)
		}
	}
	return matched
}

// deadline converts a relative window into an absolute unix timestamp.
func (m *Manager) deadline(seconds int) int64 {
	if seconds <= 0 {
		return 0
	}
	return m.now().Unix() + int64(seconds)
}

// remaining converts an absolute deadline back into seconds, clamped at
// zero so expired deadlines never report negative windows.
func (m *Manager) remaining(at int64) int {
	if at == 0 {
		return 0
	}
	left := at - m.now().Unix()
	if left < 0 {
		return 0
	}
	return int(left)
}

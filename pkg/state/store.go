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

// Package state holds the locally persisted per-user ceremony state:
// the active passcode and its TTL/resend windows, the password lockout
// window, and the WebAuthn credential IDs known to this device. The
// whole document serializes into a single storage entry so state
// survives restarts, and all deadlines are absolute timestamps so
// countdowns are recomputed rather than persisted.
package state

// PasscodeState tracks the at-most-one active passcode for a user.
type PasscodeState struct {
	// ActiveID is the server-issued ID of the active passcode, empty
	// when no passcode is pending.
	ActiveID string `json:"id,omitempty"`

	// ExpiresAt is the unix timestamp after which the active passcode
	// is no longer valid.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// ResendAfterAt is the unix timestamp after which a new passcode
	// may be requested.
	ResendAfterAt int64 `json:"resend_after_at,omitempty"`
}

// PasswordState tracks the password login lockout window for a user.
type PasswordState struct {
	// RetryAfterAt is the unix timestamp after which a password login
	// may be retried. Zero means not locked out.
	RetryAfterAt int64 `json:"retry_after_at,omitempty"`
}

// WebauthnState tracks the WebAuthn credentials previously bound to a
// user on this device. The list only ever grows.
type WebauthnState struct {
	CredentialIDs []string `json:"credential_ids,omitempty"`
}

// UserState is the ceremony state for a single user.
type UserState struct {
	Passcode PasscodeState `json:"passcode,omitempty"`
	Password PasswordState `json:"password,omitempty"`
	Webauthn WebauthnState `json:"webauthn,omitempty"`
}

// Store is the full persisted document, keyed by user ID. Entries are
// created lazily on first write and never deleted; stale entries only
// affect timer and credential-matching heuristics.
type Store struct {
	Users map[string]UserState `json:"users"`
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{Users: make(map[string]UserState)}
}

// UserState returns the state for userID, or a fresh zero value if none
// exists. The store is not mutated; write helpers create entries.
func (s *Store) UserState(userID string) UserState {
	if s.Users == nil {
		return UserState{}
	}
	return s.Users[userID]
}

// setUserState installs the state for userID, creating the map lazily.
func (s *Store) setUserState(userID string, us UserState) {
	if s.Users == nil {
		s.Users = make(map[string]UserState)
	}
	s.Users[userID] = us
}

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

// Package types defines the identity API data shapes shared by the
// domain clients, the WebAuthn ceremony client, and the flow.
package types

// User is the identity API's user representation.
type User struct {
	ID                  string       `json:"id"`
	Email               string       `json:"email"`
	Verified            bool         `json:"verified"`
	WebauthnCredentials []Credential `json:"webauthn_credentials,omitempty"`
}

// Credential is a server-known WebAuthn credential reference.
type Credential struct {
	ID string `json:"id"`
}

// CredentialIDs extracts the credential ID list from a user.
func (u *User) CredentialIDs() []string {
	ids := make([]string, 0, len(u.WebauthnCredentials))
	for _, cred := range u.WebauthnCredentials {
		ids = append(ids, cred.ID)
	}
	return ids
}

// UserInfo is the pre-login identity resolution for an email address.
type UserInfo struct {
	ID                    string `json:"id"`
	EmailID               string `json:"email_id,omitempty"`
	Verified              bool   `json:"verified"`
	HasWebauthnCredential bool   `json:"has_webauthn_credential"`
}

// Passcode is a server-issued one-time code handle. The code itself is
// delivered out of band (email); the client only ever sees the ID and
// the remaining lifetime.
type Passcode struct {
	ID  string `json:"id"`
	TTL int    `json:"ttl"`
}

// Config is the server-advertised feature configuration.
type Config struct {
	Password PasswordConfig `json:"password"`
}

// PasswordConfig advertises whether password login is enabled.
type PasswordConfig struct {
	Enabled           bool `json:"enabled"`
	MinPasswordLength int  `json:"min_password_length,omitempty"`
}

// WebauthnFinalized is the identity API's response to a successful
// WebAuthn login or registration finalization.
type WebauthnFinalized struct {
	UserID       string `json:"user_id"`
	CredentialID string `json:"credential_id"`
}

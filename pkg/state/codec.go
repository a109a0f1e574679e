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
	"encoding/base64"
	"encoding/json"
	"net/url"
)

// Encode serializes the store into its storage representation: base64
// over a URL-escaped JSON document. The escaping keeps the payload
// ASCII-safe regardless of the emails and credential IDs it contains.
func Encode(s *Store) ([]byte, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	escaped := url.QueryEscape(string(doc))
	return []byte(base64.StdEncoding.EncodeToString([]byte(escaped))), nil
}

// Decode parses a storage blob back into a store. Any decoding failure
// is swallowed and yields an empty store: corrupt or tampered state is
// treated as no prior state, never as an error.
func Decode(blob []byte) *Store {
	raw, err := base64.StdEncoding.DecodeString(string(blob))
	if err != nil {
		return NewStore()
	}

	doc, err := url.QueryUnescape(string(raw))
	if err != nil {
		return NewStore()
	}

	var s Store
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		return NewStore()
	}
	if s.Users == nil {
		s.Users = make(map[string]UserState)
	}
	return &s
}

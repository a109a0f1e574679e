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

package transport

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpired reports whether a session token is a JWT whose expiry
// has passed. The signature is NOT verified; this is a UX heuristic to
// skip doomed requests, never an authorization decision. Opaque tokens
// and JWTs without an exp claim are treated as live and sent to the
// server, which remains the authority.
func tokenExpired(token string, now time.Time) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(now)
}

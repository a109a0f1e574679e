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
	"encoding/json"
	"net/http"
	"strconv"
)

// Retry-after headers recognized on rate-limited responses.
const (
	RetryAfterHeader  = "Retry-After"
	XRetryAfterHeader = "X-Retry-After"
)

// Response is the normalized shape of an identity API response: status,
// headers, and the fully read body. The body is buffered so it can be
// decoded more than once.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Ok reports whether the response status is 2xx.
func (r *Response) Ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the buffered body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// RetryAfterSeconds parses the retry-after window from the response
// headers, preferring X-Retry-After. Returns zero when absent or
// unparseable.
func (r *Response) RetryAfterSeconds() int {
	for _, name := range []string{XRetryAfterHeader, RetryAfterHeader} {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds < 0 {
			continue
		}
		return seconds
	}
	return 0
}

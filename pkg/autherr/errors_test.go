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

package autherr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelCodesAreUnique(t *testing.T) {
	sentinels := []*Error{
		ErrTechnical,
		ErrRequestTimeout,
		ErrConflict,
		ErrNotFound,
		ErrUnauthorized,
		ErrInvalidPassword,
		ErrInvalidPasscode,
		ErrMaxAttemptsReached,
		ErrPasscodeExpired,
		ErrInvalidWebauthnCredential,
		ErrWebauthnCancelled,
		ErrTooManyRequests,
	}

	seen := make(map[string]bool)
	for _, s := range sentinels {
		require.NotEmpty(t, s.Code)
		assert.False(t, seen[s.Code], "duplicate code %q", s.Code)
		seen[s.Code] = true
	}
}

func TestWithCauseMatchesSentinel(t *testing.T) {
	cause := errors.New("socket closed")
	err := ErrTechnical.WithCause(cause)

	assert.ErrorIs(t, err, ErrTechnical)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "socket closed")

	// The sentinel itself must stay pristine.
	assert.Nil(t, ErrTechnical.Cause)
}

func TestWithCauseDoesNotMatchOtherKinds(t *testing.T) {
	err := ErrInvalidPasscode.WithCause(errors.New("401"))
	assert.NotErrorIs(t, err, ErrInvalidPassword)
	assert.NotErrorIs(t, err, ErrTechnical)
}

func TestNewTooManyRequests(t *testing.T) {
	err := NewTooManyRequests(180 * time.Second)

	assert.ErrorIs(t, err, ErrTooManyRequests)
	assert.Equal(t, 180*time.Second, RetryAfterOf(err))

	// Wrapping must preserve the retry-after window.
	wrapped := fmt.Errorf("initialize passcode: %w", err)
	assert.Equal(t, 180*time.Second, RetryAfterOf(wrapped))
	assert.Equal(t, "tooManyRequests", CodeOf(wrapped))
}

func TestCodeOfFallsBackToTechnical(t *testing.T) {
	assert.Equal(t, "somethingWentWrong", CodeOf(errors.New("boom")))
	assert.Equal(t, "requestTimeout", CodeOf(ErrRequestTimeout))
}

func TestIsSoft(t *testing.T) {
	assert.True(t, IsSoft(ErrWebauthnCancelled))
	assert.True(t, IsSoft(fmt.Errorf("login: %w", ErrWebauthnCancelled)))
	assert.False(t, IsSoft(ErrInvalidWebauthnCredential))
	assert.False(t, IsSoft(ErrTechnical))
	assert.False(t, IsSoft(nil))
}

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

package flow

// Countdown identifies a timer window surfaced to the embedder.
type Countdown string

const (
	// CountdownPasscodeTTL is the remaining lifetime of the active
	// passcode.
	CountdownPasscodeTTL Countdown = "passcode_ttl"

	// CountdownPasscodeResend is the cooldown before another passcode
	// may be requested.
	CountdownPasscodeResend Countdown = "passcode_resend"

	// CountdownPasswordRetry is the password lockout window.
	CountdownPasswordRetry Countdown = "password_retry"
)

// Events are the callbacks a flow delivers to its embedder. All fields
// are optional; nil callbacks are skipped. Callbacks are invoked
// without the flow lock held, so they may call back into the flow.
type Events struct {
	// OnStep fires on every step change.
	OnStep func(step Step)

	// OnError fires for every surfaced error. Soft errors (ceremony
	// cancellations) are never surfaced here.
	OnError func(err error)

	// OnSuccess fires exactly once, when the flow reaches
	// StepLoginFinished.
	OnSuccess func()

	// OnCountdown fires once per second for each running countdown
	// with the remaining seconds, including a final zero.
	OnCountdown func(kind Countdown, remaining int)
}

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

import "time"

// Countdown timers recompute remaining seconds from the absolute
// deadlines in the persisted store once per second, so they stay
// correct across restarts without persisting any timer state.

// startTimers arms the countdowns for the step being entered. Lock
// must be held.
func (f *Flow) startTimers(step Step) {
	if f.events.OnCountdown == nil {
		return
	}

	userID := f.userID
	switch step {
	case StepLoginPasscode:
		f.startCountdown(CountdownPasscodeTTL, func() int {
			return f.passcodes.TTLSeconds(userID)
		})
		f.startCountdown(CountdownPasscodeResend, func() int {
			return f.passcodes.ResendAfterSeconds(userID)
		})
	case StepLoginPassword:
		f.startCountdown(CountdownPasswordRetry, func() int {
			return f.passwords.RetryAfterSeconds(userID)
		})
	}
}

// startCountdown runs one ticker until the window closes, the step
// changes, or the timers are refreshed. Lock must be held.
func (f *Flow) startCountdown(kind Countdown, remaining func() int) {
	if remaining() <= 0 {
		return
	}
	if f.timerStop == nil {
		f.timerStop = make(chan struct{})
	}
	stop := f.timerStop
	cb := f.events.OnCountdown

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				left := remaining()
				cb(kind, left)
				if left <= 0 {
					return
				}
			}
		}
	}()
}

// stopTimers stops every running countdown. Lock must be held.
func (f *Flow) stopTimers() {
	if f.timerStop != nil {
		close(f.timerStop)
		f.timerStop = nil
	}
}

// refreshTimers restarts the countdowns for the current step, picking
// up deadlines persisted after the step was entered. Lock must be
// held.
func (f *Flow) refreshTimers() {
	f.stopTimers()
	f.startTimers(f.current)
}

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

// Step identifies the authentication step the flow is currently on.
// Step is never persisted; a fresh flow always starts at
// StepInitializing and the persisted store resupplies timers and
// credential matching.
type Step string

const (
	StepInitializing          Step = "initializing"
	StepLoginEmail            Step = "login_email"
	StepRegisterConfirm       Step = "register_confirm"
	StepLoginPasscode         Step = "login_passcode"
	StepLoginPassword         Step = "login_password"
	StepWebauthnAutoLogin     Step = "webauthn_auto_login"
	StepRegisterPassword      Step = "register_password"
	StepRegisterAuthenticator Step = "register_authenticator"
	StepLoginFinished         Step = "login_finished"
	StepError                 Step = "error"
)

// transitions is the step graph expressed as data: the set of steps
// each step may hand off to. StepError is reachable from every
// non-terminal step and recovers only through StepInitializing.
var transitions = map[Step][]Step{
	StepInitializing: {
		StepLoginEmail, StepLoginFinished, StepError,
	},
	StepLoginEmail: {
		StepRegisterConfirm, StepLoginPasscode, StepLoginPassword,
		StepWebauthnAutoLogin, StepRegisterAuthenticator,
		StepLoginFinished, StepError,
	},
	StepWebauthnAutoLogin: {
		StepLoginPasscode, StepLoginPassword,
		StepRegisterAuthenticator, StepLoginFinished, StepError,
	},
	StepRegisterConfirm: {
		StepLoginPasscode, StepRegisterPassword,
		StepRegisterAuthenticator, StepLoginFinished, StepError,
	},
	StepLoginPasscode: {
		StepRegisterPassword, StepRegisterAuthenticator,
		StepLoginFinished, StepError,
	},
	StepLoginPassword: {
		StepLoginPasscode, StepRegisterAuthenticator,
		StepLoginFinished, StepError,
	},
	StepRegisterPassword: {
		StepRegisterAuthenticator, StepLoginFinished, StepError,
	},
	StepRegisterAuthenticator: {
		StepLoginFinished, StepError,
	},
	StepLoginFinished: {},
	StepError: {
		StepInitializing,
	},
}

// canTransition reports whether the step graph allows moving from one
// step to another.
func canTransition(from, to Step) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

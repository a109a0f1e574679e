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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-authflow/pkg/autherr"
	"github.com/jeremyhahn/go-authflow/pkg/flow"
)

// journey drives one interactive authentication flow from start to the
// terminal step, prompting at each step. Soft failures and wrong
// inputs keep their step; only unrecoverable failures end the loop.
type journey struct {
	flow    *flow.Flow
	prompt  *prompter
	out     io.Writer
	email   string
	confirm bool
}

// journeyEvents prints step changes and surfaced errors as they
// happen.
func journeyEvents(out io.Writer) flow.Events {
	return flow.Events{
		OnStep: func(step flow.Step) {
			fmt.Fprintf(out, "-- %s\n", step)
		},
		OnError: func(err error) {
			fmt.Fprintf(out, "!! %v\n", err)
		},
		OnSuccess: func() {
			fmt.Fprintln(out, "Authentication succeeded.")
		},
		OnCountdown: func(kind flow.Countdown, remaining int) {
			if remaining > 0 && remaining%30 == 0 {
				fmt.Fprintf(out, "   (%s: %ds remaining)\n", kind, remaining)
			}
		},
	}
}

// run loops until the flow reaches a terminal outcome.
func (j *journey) run(ctx context.Context) error {
	if err := j.flow.Start(ctx); err != nil {
		// The error step offers a retry below.
		fmt.Fprintf(j.out, "initialization failed: %v\n", err)
	}

	for {
		switch j.flow.Step() {
		case flow.StepLoginEmail:
			if err := j.stepEmail(ctx); err != nil {
				return err
			}
		case flow.StepRegisterConfirm:
			if err := j.stepRegisterConfirm(ctx); err != nil {
				return err
			}
		case flow.StepLoginPasscode:
			if err := j.stepPasscode(ctx); err != nil {
				return err
			}
		case flow.StepLoginPassword:
			if err := j.stepPassword(ctx); err != nil {
				return err
			}
		case flow.StepRegisterPassword:
			if err := j.stepSetPassword(ctx); err != nil {
				return err
			}
		case flow.StepRegisterAuthenticator:
			if err := j.stepEnroll(ctx); err != nil {
				return err
			}
		case flow.StepLoginFinished:
			return nil
		case flow.StepError:
			retry, err := j.prompt.confirm("Something went wrong. Retry?")
			if err != nil || !retry {
				return fmt.Errorf("flow aborted")
			}
			if err := j.flow.Retry(ctx); err != nil {
				fmt.Fprintf(j.out, "retry failed: %v\n", err)
			}
		default:
			return fmt.Errorf("unexpected step %q", j.flow.Step())
		}
	}
}

func (j *journey) stepEmail(ctx context.Context) error {
	email := j.email
	if email == "" {
		var err error
		if email, err = j.prompt.line("Email"); err != nil {
			return err
		}
	}
	j.email = ""
	if err := j.flow.SubmitEmail(ctx, email); err != nil && j.flow.Step() == flow.StepLoginEmail {
		fmt.Fprintf(j.out, "could not resolve email: %v\n", err)
	}
	return nil
}

func (j *journey) stepRegisterConfirm(ctx context.Context) error {
	if !j.confirm {
		ok, err := j.prompt.confirm(
			fmt.Sprintf("No account for %s. Create one?", j.flow.Email()))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("registration declined")
		}
	}
	if err := j.flow.ConfirmRegistration(ctx); err != nil {
		// Conflicts keep the step; anything else lands on the error
		// step and is handled there.
		fmt.Fprintf(j.out, "registration failed: %v\n", err)
		if j.flow.Step() == flow.StepRegisterConfirm {
			return fmt.Errorf("registration failed: %w", err)
		}
	}
	return nil
}

func (j *journey) stepPasscode(ctx context.Context) error {
	code, err := j.prompt.line("Passcode (or \"resend\")")
	if err != nil {
		return err
	}
	if code == "resend" {
		if err := j.flow.ResendPasscode(ctx); err != nil {
			fmt.Fprintf(j.out, "resend failed: %v\n", err)
		}
		return nil
	}
	if err := j.flow.SubmitPasscode(ctx, code); err != nil {
		switch {
		case errors.Is(err, autherr.ErrMaxAttemptsReached):
			fmt.Fprintln(j.out, "Passcode consumed; request a new one with \"resend\".")
		case errors.Is(err, autherr.ErrPasscodeExpired):
			fmt.Fprintln(j.out, "Passcode expired; request a new one with \"resend\".")
		}
	}
	return nil
}

func (j *journey) stepPassword(ctx context.Context) error {
	password, err := j.prompt.secret("Password")
	if err != nil {
		return err
	}
	if err := j.flow.SubmitPassword(ctx, password); err != nil {
		if retry := autherr.RetryAfterOf(err); retry > 0 {
			fmt.Fprintf(j.out, "Locked out; retry in %s.\n", retry)
		}
	}
	return nil
}

func (j *journey) stepSetPassword(ctx context.Context) error {
	password, err := j.prompt.secret("New password")
	if err != nil {
		return err
	}
	if minLen := j.flow.Config().Password.MinPasswordLength; len(password) < minLen {
		fmt.Fprintf(j.out, "Password must be at least %d characters.\n", minLen)
		return nil
	}
	if err := j.flow.SetPassword(ctx, password); err != nil {
		fmt.Fprintf(j.out, "could not set password: %v\n", err)
	}
	return nil
}

func (j *journey) stepEnroll(ctx context.Context) error {
	enroll, err := j.prompt.confirm("Register a passkey on this device?")
	if err != nil {
		return err
	}
	if !enroll {
		return j.flow.SkipPasskey()
	}
	if err := j.flow.EnrollPasskey(ctx); err != nil {
		fmt.Fprintf(j.out, "enrollment failed: %v\n", err)
	}
	return nil
}

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

// Package flow sequences the authentication ceremonies into multi-step
// login and registration journeys. The flow holds the current step,
// drives the domain clients, and emits step/error/success events to
// the embedder. Step state is never persisted; the persisted store
// resupplies countdown deadlines and credential matching after a
// restart.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-authflow/pkg/autherr"
	"github.com/jeremyhahn/go-authflow/pkg/client"
	"github.com/jeremyhahn/go-authflow/pkg/logging"
	"github.com/jeremyhahn/go-authflow/pkg/state"
	"github.com/jeremyhahn/go-authflow/pkg/types"
	"github.com/jeremyhahn/go-authflow/pkg/webauthn"
)

// Params contains the dependencies for creating a Flow.
type Params struct {
	// Users, Passwords, Passcodes and Configs are the domain clients
	// (all required).
	Users     *client.UserClient
	Passwords *client.PasswordClient
	Passcodes *client.PasscodeClient
	Configs   *client.ConfigClient

	// Webauthn drives passkey ceremonies. Optional; a nil client
	// disables the webauthn branches of the flow.
	Webauthn *webauthn.Client

	// State is the persisted state manager (required).
	State *state.Manager

	// Logger is optional and defaults to the package default logger.
	Logger *logging.Logger

	// Events are the embedder callbacks.
	Events Events
}

// Flow is the authentication step state machine. Methods are safe for
// concurrent use; results of calls that outlive a step change are
// discarded silently.
type Flow struct {
	users     *client.UserClient
	passwords *client.PasswordClient
	passcodes *client.PasscodeClient
	configs   *client.ConfigClient
	webauthn  *webauthn.Client
	state     *state.Manager
	logger    *logging.Logger
	events    Events

	mu          sync.Mutex
	current     Step
	gen         uint64
	queued      []func()
	timerStop   chan struct{}
	config      types.Config
	email       string
	userID      string
	registering bool
	succeeded   bool
}

// New creates a flow positioned at StepInitializing.
func New(params Params) (*Flow, error) {
	if params.Users == nil || params.Passwords == nil ||
		params.Passcodes == nil || params.Configs == nil {
		return nil, fmt.Errorf("flow: all domain clients are required")
	}
	if params.State == nil {
		return nil, fmt.Errorf("flow: state manager is required")
	}
	if params.Logger == nil {
		params.Logger = logging.DefaultLogger()
	}
	return &Flow{
		users:     params.Users,
		passwords: params.Passwords,
		passcodes: params.Passcodes,
		configs:   params.Configs,
		webauthn:  params.Webauthn,
		state:     params.State,
		logger:    params.Logger,
		events:    params.Events,
		current:   StepInitializing,
	}, nil
}

// Step returns the current step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Email returns the email the flow is operating on, once submitted.
func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// UserID returns the resolved user id, once known.
func (f *Flow) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

// Config returns the server-advertised configuration fetched during
// initialization.
func (f *Flow) Config() types.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

// Start runs the Initializing step: fetch the server configuration,
// detect an existing session, and land on StepLoginEmail (or finish
// immediately when already authenticated).
func (f *Flow) Start(ctx context.Context) error {
	gen, err := f.begin(StepInitializing)
	if err != nil {
		return err
	}
	return f.initialize(ctx, gen)
}

// Retry recovers from StepError by re-running initialization.
func (f *Flow) Retry(ctx context.Context) error {
	gen, err := f.begin(StepError)
	if err != nil {
		return err
	}
	if !f.apply(gen, func() { f.transition(StepInitializing) }) {
		return nil
	}
	gen, err = f.begin(StepInitializing)
	if err != nil {
		return err
	}
	return f.initialize(ctx, gen)
}

// SubmitEmail resolves an email on StepLoginEmail and routes the flow:
// unknown emails go to registration, unverified users to the
// verification passcode, verified users to a webauthn attempt when a
// matching local credential exists, otherwise to password or passcode
// login depending on server configuration.
func (f *Flow) SubmitEmail(ctx context.Context, email string) error {
	gen, err := f.begin(StepLoginEmail)
	if err != nil {
		return err
	}

	info, err := f.users.GetInfo(ctx, email)
	if errors.Is(err, autherr.ErrNotFound) {
		f.apply(gen, func() {
			f.email = email
			f.transition(StepRegisterConfirm)
		})
		return nil
	}
	if err != nil {
		f.apply(gen, func() { f.fail(err) })
		return err
	}

	if !info.Verified {
		// Route through the verification passcode.
		f.applySet(gen, email, info.ID)
		return f.startPasscode(ctx, gen, info.ID)
	}

	if f.webauthnReady() && info.HasWebauthnCredential && f.hasLocalCredential(info.ID) {
		if !f.apply(gen, func() {
			f.email = email
			f.userID = info.ID
			f.transition(StepWebauthnAutoLogin)
		}) {
			return nil
		}
		return f.attemptWebauthnLogin(ctx)
	}

	if f.passwordEnabled() {
		f.apply(gen, func() {
			f.email = email
			f.userID = info.ID
			f.transition(StepLoginPassword)
		})
		return nil
	}

	f.applySet(gen, email, info.ID)
	return f.startPasscode(ctx, gen, info.ID)
}

// ConfirmRegistration creates the identity on StepRegisterConfirm.
// Unverified identities proceed to the verification passcode; verified
// ones continue straight to credential setup.
func (f *Flow) ConfirmRegistration(ctx context.Context) error {
	gen, err := f.begin(StepRegisterConfirm)
	if err != nil {
		return err
	}

	user, err := f.users.Create(ctx, f.Email())
	switch {
	case errors.Is(err, autherr.ErrConflict):
		// Someone claimed the email since the lookup; stay and let the
		// embedder surface it.
		f.apply(gen, func() { f.surface(err) })
		return err
	case err != nil:
		f.apply(gen, func() { f.fail(err) })
		return err
	}

	if !user.Verified {
		f.apply(gen, func() {
			f.registering = true
			f.userID = user.ID
		})
		return f.startPasscode(ctx, gen, user.ID)
	}

	if !f.apply(gen, func() {
		f.registering = true
		f.userID = user.ID
	}) {
		return nil
	}
	return f.continueRegistration(ctx, gen)
}

// SubmitPasscode finalizes the active passcode on StepLoginPasscode. A
// wrong or expired code keeps the step for another try or a resend; a
// consumed passcode surfaces the max-attempts error with the active
// state already cleared.
func (f *Flow) SubmitPasscode(ctx context.Context, code string) error {
	gen, err := f.begin(StepLoginPasscode)
	if err != nil {
		return err
	}

	err = f.passcodes.Finalize(ctx, f.UserID(), code)
	switch {
	case err == nil:
		if f.isRegistering() && f.passwordEnabled() {
			f.apply(gen, func() { f.transition(StepRegisterPassword) })
			return nil
		}
		return f.completeLogin(ctx, gen)
	case errors.Is(err, autherr.ErrInvalidPasscode),
		errors.Is(err, autherr.ErrPasscodeExpired),
		errors.Is(err, autherr.ErrMaxAttemptsReached):
		f.apply(gen, func() { f.surface(err) })
		return err
	default:
		f.apply(gen, func() { f.fail(err) })
		return err
	}
}

// ResendPasscode requests a fresh passcode for the current user on
// StepLoginPasscode and restarts the countdowns.
func (f *Flow) ResendPasscode(ctx context.Context) error {
	gen, err := f.begin(StepLoginPasscode)
	if err != nil {
		return err
	}

	_, err = f.passcodes.Initialize(ctx, f.UserID())
	switch {
	case err == nil:
		f.apply(gen, func() { f.refreshTimers() })
		return nil
	case errors.Is(err, autherr.ErrTooManyRequests):
		f.apply(gen, func() {
			f.surface(err)
			f.refreshTimers()
		})
		return err
	default:
		f.apply(gen, func() { f.fail(err) })
		return err
	}
}

// SubmitPassword attempts a password login on StepLoginPassword. Wrong
// passwords and rate limits keep the step; the lockout countdown is
// restarted from the persisted deadline.
func (f *Flow) SubmitPassword(ctx context.Context, password string) error {
	gen, err := f.begin(StepLoginPassword)
	if err != nil {
		return err
	}

	err = f.passwords.Login(ctx, f.UserID(), password)
	switch {
	case err == nil:
		return f.completeLogin(ctx, gen)
	case errors.Is(err, autherr.ErrInvalidPassword):
		f.apply(gen, func() { f.surface(err) })
		return err
	case errors.Is(err, autherr.ErrTooManyRequests):
		f.apply(gen, func() {
			f.surface(err)
			f.refreshTimers()
		})
		return err
	default:
		f.apply(gen, func() { f.fail(err) })
		return err
	}
}

// SetPassword sets the initial password on StepRegisterPassword and
// continues to opportunistic passkey enrollment.
func (f *Flow) SetPassword(ctx context.Context, password string) error {
	gen, err := f.begin(StepRegisterPassword)
	if err != nil {
		return err
	}

	if err := f.passwords.Update(ctx, f.UserID(), password); err != nil {
		f.apply(gen, func() { f.fail(err) })
		return err
	}
	return f.completeLogin(ctx, gen)
}

// EnrollPasskey runs the registration ceremony on
// StepRegisterAuthenticator. Cancelling the platform prompt counts as
// a skip; only server-side rejections surface.
func (f *Flow) EnrollPasskey(ctx context.Context) error {
	gen, err := f.begin(StepRegisterAuthenticator)
	if err != nil {
		return err
	}
	if f.webauthn == nil {
		f.apply(gen, func() { f.finish() })
		return nil
	}

	err = f.webauthn.Register(ctx)
	switch {
	case err == nil, autherr.IsSoft(err):
		f.apply(gen, func() { f.finish() })
		return nil
	default:
		f.apply(gen, func() { f.fail(err) })
		return err
	}
}

// SkipPasskey declines enrollment on StepRegisterAuthenticator and
// finishes the flow.
func (f *Flow) SkipPasskey() error {
	gen, err := f.begin(StepRegisterAuthenticator)
	if err != nil {
		return err
	}
	f.apply(gen, func() { f.finish() })
	return nil
}

// SignInWithPasskey runs an explicit discoverable-credential login as
// the secondary action on the email or password step. A cancelled
// prompt is silent; a server rejection surfaces on the current step.
func (f *Flow) SignInWithPasskey(ctx context.Context) error {
	gen, err := f.begin(StepLoginEmail, StepLoginPassword)
	if err != nil {
		return err
	}
	if !f.webauthnReady() {
		return autherr.ErrTechnical.WithCause(webauthn.ErrNotSupported)
	}

	err = f.webauthn.Login(ctx, "", true)
	switch {
	case err == nil:
		return f.completeLogin(ctx, gen)
	case autherr.IsSoft(err):
		return nil
	case errors.Is(err, autherr.ErrInvalidWebauthnCredential):
		f.apply(gen, func() { f.surface(err) })
		return err
	default:
		f.apply(gen, func() { f.fail(err) })
		return err
	}
}

// initialize fetches the server configuration and detects an existing
// session, then lands on the email step. Reaching the email step arms
// conditional (autofill assisted) passkey login in the background when
// the device supports it.
func (f *Flow) initialize(ctx context.Context, gen uint64) error {
	cfg, err := f.configs.Get(ctx)
	if err != nil {
		f.apply(gen, func() { f.fail(err) })
		return err
	}

	user, err := f.users.GetCurrent(ctx)
	switch {
	case err == nil:
		f.apply(gen, func() {
			f.config = *cfg
			f.userID = user.ID
			f.finish()
		})
		return nil
	case errors.Is(err, autherr.ErrUnauthorized):
		f.apply(gen, func() {
			f.config = *cfg
			f.transition(StepLoginEmail)
			f.armConditionalLogin(ctx)
		})
		return nil
	default:
		f.apply(gen, func() { f.fail(err) })
		return err
	}
}

// attemptWebauthnLogin runs the allow-listed ceremony entered from the
// email step. A user-cancelled prompt falls back silently to the
// alternate login method; a server rejection is a real failure.
func (f *Flow) attemptWebauthnLogin(ctx context.Context) error {
	gen, err := f.begin(StepWebauthnAutoLogin)
	if err != nil {
		return err
	}

	err = f.webauthn.Login(ctx, f.UserID(), false)
	switch {
	case err == nil:
		return f.completeLogin(ctx, gen)
	case autherr.IsSoft(err):
		if f.passwordEnabled() {
			f.apply(gen, func() { f.transition(StepLoginPassword) })
			return nil
		}
		return f.startPasscode(ctx, gen, f.UserID())
	default:
		f.apply(gen, func() { f.fail(err) })
		return err
	}
}

// armConditionalLogin starts the background discoverable login that
// supersedes the email-first path if it completes. Lock must be held.
// All of its failures are silent; the explicit paths stay available.
func (f *Flow) armConditionalLogin(ctx context.Context) {
	if f.webauthn == nil || !f.webauthn.SupportsConditionalMediation() {
		return
	}
	gen := f.gen
	go func() {
		if err := f.webauthn.Login(ctx, "", true); err != nil {
			f.logger.Debug("conditional login did not complete", "error", err)
			return
		}
		if err := f.completeLogin(ctx, gen); err != nil {
			f.logger.Debug("conditional login completion failed", "error", err)
		}
	}()
}

// startPasscode requests a passcode for the user and enters the
// passcode step. A rate-limited request still enters the step; the
// persisted resend window drives the cooldown countdown there.
func (f *Flow) startPasscode(ctx context.Context, gen uint64, userID string) error {
	_, err := f.passcodes.Initialize(ctx, userID)
	if err != nil && !errors.Is(err, autherr.ErrTooManyRequests) {
		f.apply(gen, func() { f.fail(err) })
		return err
	}

	f.apply(gen, func() {
		f.userID = userID
		f.transition(StepLoginPasscode)
		if err != nil {
			f.surface(err)
		}
	})
	return nil
}

// completeLogin follows any successful authentication: re-evaluate
// whether this device should enroll a passkey now, then either offer
// enrollment or finish. Enrollment is opportunistic; a failure to
// resolve the user never blocks completion.
func (f *Flow) completeLogin(ctx context.Context, gen uint64) error {
	user, err := f.users.GetCurrent(ctx)
	if err != nil {
		f.logger.Debug("post-login user lookup failed", "error", err)
		f.apply(gen, func() { f.finish() })
		return nil
	}

	if f.webauthn != nil && f.webauthn.ShouldOffer(user) {
		f.apply(gen, func() {
			f.userID = user.ID
			f.transition(StepRegisterAuthenticator)
		})
		return nil
	}

	f.apply(gen, func() {
		f.userID = user.ID
		f.finish()
	})
	return nil
}

// continueRegistration routes a freshly verified registration through
// password setup when the server has password auth enabled, otherwise
// straight to passkey enrollment.
func (f *Flow) continueRegistration(ctx context.Context, gen uint64) error {
	if f.passwordEnabled() {
		f.apply(gen, func() { f.transition(StepRegisterPassword) })
		return nil
	}
	return f.completeLogin(ctx, gen)
}

// begin validates that the flow sits on one of the given steps and
// captures the generation for later stale-result checks.
func (f *Flow) begin(steps ...Step) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range steps {
		if f.current == s {
			return f.gen, nil
		}
	}
	return 0, fmt.Errorf("flow: action not available on step %q", f.current)
}

// apply runs fn under the lock unless the flow has moved on since gen
// was captured, then delivers the events fn queued. Stale results are
// dropped silently.
func (f *Flow) apply(gen uint64, fn func()) bool {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return false
	}
	fn()
	queued := f.queued
	f.queued = nil
	f.mu.Unlock()
	for _, e := range queued {
		e()
	}
	return true
}

// applySet records the email and user id without changing step.
func (f *Flow) applySet(gen uint64, email, userID string) {
	f.apply(gen, func() {
		f.email = email
		f.userID = userID
	})
}

// transition moves to the next step, invalidating outstanding results
// and restarting countdowns. Lock must be held.
func (f *Flow) transition(to Step) {
	if f.current == to {
		return
	}
	if !canTransition(f.current, to) {
		f.logger.Warn("illegal step transition", "from", f.current, "to", to)
		return
	}
	f.stopTimers()
	f.gen++
	f.current = to
	if cb := f.events.OnStep; cb != nil {
		step := to
		f.queued = append(f.queued, func() { cb(step) })
	}
	f.startTimers(to)
}

// surface queues an error for the embedder without leaving the current
// step. Lock must be held.
func (f *Flow) surface(err error) {
	if cb := f.events.OnError; cb != nil {
		e := err
		f.queued = append(f.queued, func() { cb(e) })
	}
}

// fail surfaces an error and moves to the global error step. Lock must
// be held.
func (f *Flow) fail(err error) {
	f.surface(err)
	f.transition(StepError)
}

// finish reaches the terminal step and fires the one-shot success
// signal. Lock must be held.
func (f *Flow) finish() {
	f.transition(StepLoginFinished)
	if f.succeeded {
		return
	}
	f.succeeded = true
	if cb := f.events.OnSuccess; cb != nil {
		f.queued = append(f.queued, cb)
	}
}

func (f *Flow) passwordEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config.Password.Enabled
}

func (f *Flow) isRegistering() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registering
}

func (f *Flow) webauthnReady() bool {
	return f.webauthn != nil && f.webauthn.Supported()
}

// hasLocalCredential reports whether this device has any credential
// recorded for the user.
func (f *Flow) hasLocalCredential(userID string) bool {
	store := f.state.Read()
	return len(f.state.CredentialIDs(store, userID)) > 0
}

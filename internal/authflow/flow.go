// Package authflow drives the sign-in modal: password login, sign-up,
// two-factor verification and federated sign-in with account type selection.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
)

var (
	ErrInvalidCode       = errors.New("verification code must be 6 digits")
	ErrMalformedToken    = errors.New("malformed identity token")
	ErrIllegalTransition = errors.New("illegal auth transition")
)

// Banner texts used when the backend gives no message.
const (
	fallbackLogin    = "Login failed. Please try again."
	fallbackSignup   = "Registration failed. Please try again."
	fallbackCode     = "Verification failed. Please try again."
	fallbackResend   = "Could not resend the code. Please try again."
	fallbackIdentity = "Google sign-in failed. Please try again."
)

// VendorSetupSection is the dashboard section opened for new vendors.
const VendorSetupSection = "vendor-setup"

// DefaultVendorSetupDelay is how long after sign-in the vendor setup
// dashboard is requested.
const DefaultVendorSetupDelay = 500 * time.Millisecond

// View is the modal's current screen.
type View int

const (
	ViewLogin View = iota
	ViewSignup
	ViewTwoFA
	ViewGoogleAccountType
	ViewLoggedIn
)

func (v View) String() string {
	switch v {
	case ViewLogin:
		return "login"
	case ViewSignup:
		return "signup"
	case ViewTwoFA:
		return "twofa"
	case ViewGoogleAccountType:
		return "googleAccountType"
	case ViewLoggedIn:
		return "loggedIn"
	}
	return fmt.Sprintf("View(%d)", int(v))
}

// MarshalText encodes the view by name.
func (v View) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a view name written by MarshalText.
func (v *View) UnmarshalText(text []byte) error {
	for _, candidate := range []View{ViewLogin, ViewSignup, ViewTwoFA, ViewGoogleAccountType, ViewLoggedIn} {
		if candidate.String() == string(text) {
			*v = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown auth view %q", text)
}

// API is the subset of the backend client used by the flow.
type API interface {
	Login(ctx context.Context, email, password string) (*api.AuthResponse, error)
	Register(ctx context.Context, in api.Registration) (*api.AuthResponse, error)
	SocialLogin(ctx context.Context, in api.SocialLogin) (*api.AuthResponse, error)
	VerifyTwoFactor(ctx context.Context, email, code string) (*api.AuthResponse, error)
	ResendTwoFactor(ctx context.Context, email string) error
}

// Sessions is where a successful sign-in is recorded.
type Sessions interface {
	session.Provider
	Set(token string, user *models.User)
}

// State is a snapshot of the modal.
type State struct {
	View         View   `json:"view"`
	PendingEmail string `json:"pendingEmail,omitempty"`
	Banner       string `json:"banner,omitempty"`
}

// Flow is the auth modal state machine. It is safe for concurrent use.
type Flow struct {
	api        API
	sessions   Sessions
	bus        events.Bus
	setupDelay time.Duration
	log        *observability.Logger

	mu            sync.Mutex
	view          View
	pendingEmail  string
	pendingSocial *api.SocialLogin
	banner        string
	setupTimer    *time.Timer
}

// NewFlow creates a Flow on the login screen. bus may be nil.
func NewFlow(client API, sessions Sessions, bus events.Bus, setupDelay time.Duration) *Flow {
	if setupDelay <= 0 {
		setupDelay = DefaultVendorSetupDelay
	}
	return &Flow{
		api:        client,
		sessions:   sessions,
		bus:        bus,
		setupDelay: setupDelay,
		log:        observability.GlobalLogger,
	}
}

// State returns the current screen, pending email and banner.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{View: f.view, PendingEmail: f.pendingEmail, Banner: f.banner}
}

// Open shows the modal: signed-in viewers land on LoggedIn, everyone else on Login.
func (f *Flow) Open() View {
	_, signedIn := f.sessions.User()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banner = ""
	if signedIn {
		f.view = ViewLoggedIn
	} else {
		f.resetLocked()
	}
	return f.view
}

// Close dismisses the modal and cancels a pending vendor setup request.
// Without a session the flow returns to Login.
func (f *Flow) Close() {
	_, signedIn := f.sessions.User()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setupTimer != nil {
		f.setupTimer.Stop()
		f.setupTimer = nil
	}
	f.banner = ""
	if !signedIn {
		f.resetLocked()
	}
}

func (f *Flow) resetLocked() {
	f.view = ViewLogin
	f.pendingEmail = ""
	f.pendingSocial = nil
}

// ShowSignup switches from Login to Signup.
func (f *Flow) ShowSignup() error {
	return f.move(ViewLogin, ViewSignup)
}

// ShowLogin switches from Signup back to Login.
func (f *Flow) ShowLogin() error {
	return f.move(ViewSignup, ViewLogin)
}

func (f *Flow) move(from, to View) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.view != from {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, f.view, to)
	}
	f.view = to
	f.banner = ""
	return nil
}

// begin checks the current view and clears the banner for a user action.
func (f *Flow) begin(want View) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.view != want {
		return State{}, fmt.Errorf("%w: expected %s, in %s", ErrIllegalTransition, want, f.view)
	}
	f.banner = ""
	return State{View: f.view, PendingEmail: f.pendingEmail}, nil
}

// fail records a banner for err and returns it.
func (f *Flow) fail(ctx context.Context, action string, err error, fallback string) error {
	f.log.WarnContext(ctx, "auth action failed", "action", action, "error", err)
	f.mu.Lock()
	f.banner = models.UserMessage(err, fallback)
	f.mu.Unlock()
	return err
}

// SubmitLogin checks credentials. When the backend asks for a second factor
// the flow moves to TwoFA and keeps the email for verification and resend.
func (f *Flow) SubmitLogin(ctx context.Context, email, password string) error {
	if _, err := f.begin(ViewLogin); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return f.fail(ctx, "login", models.NewValidationError("Email and password are required."), fallbackLogin)
	}

	resp, err := f.api.Login(ctx, email, password)
	if err != nil {
		return f.fail(ctx, "login", err, fallbackLogin)
	}
	if resp.TwoFactorRequired {
		pending := resp.Email
		if pending == "" {
			pending = email
		}
		f.mu.Lock()
		f.view = ViewTwoFA
		f.pendingEmail = pending
		f.mu.Unlock()
		return nil
	}
	return f.complete(ctx, "login", resp, fallbackLogin)
}

// ValidCode reports whether code is exactly six ASCII digits.
func ValidCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// VerifyCode submits a two-factor code for the pending email.
func (f *Flow) VerifyCode(ctx context.Context, code string) error {
	st, err := f.begin(ViewTwoFA)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return f.fail(ctx, "verify", ErrInvalidCode, "Please enter the 6-digit code.")
	}
	resp, err := f.api.VerifyTwoFactor(ctx, st.PendingEmail, code)
	if err != nil {
		return f.fail(ctx, "verify", err, fallbackCode)
	}
	return f.complete(ctx, "verify", resp, fallbackCode)
}

// ResendCode asks the backend to send a new code to the pending email.
func (f *Flow) ResendCode(ctx context.Context) error {
	st, err := f.begin(ViewTwoFA)
	if err != nil {
		return err
	}
	if err := f.api.ResendTwoFactor(ctx, st.PendingEmail); err != nil {
		return f.fail(ctx, "resend", err, fallbackResend)
	}
	return nil
}

// SubmitSignup registers a new account and signs it in.
func (f *Flow) SubmitSignup(ctx context.Context, reg api.Registration) error {
	if _, err := f.begin(ViewSignup); err != nil {
		return err
	}
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.AccountType == "" {
		reg.AccountType = models.AccountClient
	}
	switch {
	case reg.Email == "" || reg.Password == "":
		return f.fail(ctx, "signup", models.NewValidationError("Email and password are required."), fallbackSignup)
	case !reg.AccountType.Valid():
		return f.fail(ctx, "signup", models.NewValidationError("Please choose client or vendor."), fallbackSignup)
	}

	resp, err := f.api.Register(ctx, reg)
	if err != nil {
		return f.fail(ctx, "signup", err, fallbackSignup)
	}
	return f.complete(ctx, "signup", resp, fallbackSignup)
}

// HandleIdentityToken continues a federated sign-in from the identity
// provider's credential. Known emails sign in directly; new ones move to
// GoogleAccountType. A token that cannot be decoded returns to Login.
func (f *Flow) HandleIdentityToken(ctx context.Context, credential string) error {
	identity, err := DecodeIdentity(credential)
	if err != nil {
		f.mu.Lock()
		f.resetLocked()
		f.mu.Unlock()
		return f.fail(ctx, "identity", err, fallbackIdentity)
	}
	f.mu.Lock()
	f.banner = ""
	f.mu.Unlock()

	req := api.SocialLogin{Email: identity.Email, Name: identity.Name, Avatar: identity.Picture, Credential: credential}
	resp, err := f.api.SocialLogin(ctx, req)
	if err != nil {
		return f.fail(ctx, "identity", err, fallbackIdentity)
	}
	if resp.IsNewUser {
		f.mu.Lock()
		f.view = ViewGoogleAccountType
		f.pendingEmail = identity.Email
		f.pendingSocial = &req
		f.mu.Unlock()
		return nil
	}
	return f.complete(ctx, "identity", resp, fallbackIdentity)
}

// ChooseAccountType finishes a federated registration as client or vendor.
func (f *Flow) ChooseAccountType(ctx context.Context, accountType models.AccountType) error {
	if _, err := f.begin(ViewGoogleAccountType); err != nil {
		return err
	}
	if !accountType.Valid() {
		return f.fail(ctx, "account_type", models.NewValidationError("Please choose client or vendor."), fallbackSignup)
	}
	f.mu.Lock()
	pending := f.pendingSocial
	f.mu.Unlock()
	if pending == nil {
		return f.fail(ctx, "account_type", ErrIllegalTransition, fallbackIdentity)
	}

	req := *pending
	req.AccountType = accountType
	resp, err := f.api.SocialLogin(ctx, req)
	if err != nil {
		return f.fail(ctx, "account_type", err, fallbackSignup)
	}
	return f.complete(ctx, "account_type", resp, fallbackSignup)
}

// complete records the session and enters LoggedIn. First-time vendors get
// a delayed request to open the setup section of the dashboard.
func (f *Flow) complete(ctx context.Context, action string, resp *api.AuthResponse, fallback string) error {
	if resp == nil || resp.Token == "" || resp.User == nil {
		return f.fail(ctx, action, errors.New("sign-in response has no session"), fallback)
	}
	f.sessions.Set(resp.Token, resp.User)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.view = ViewLoggedIn
	f.pendingEmail = ""
	f.pendingSocial = nil
	f.banner = ""
	if resp.User.IsFirstLogin && resp.User.Vendor() {
		f.scheduleVendorSetupLocked()
	}
	return nil
}

func (f *Flow) scheduleVendorSetupLocked() {
	if f.setupTimer != nil {
		f.setupTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(f.setupDelay, func() {
		f.mu.Lock()
		current := f.setupTimer == timer
		if current {
			f.setupTimer = nil
		}
		f.mu.Unlock()
		if !current {
			return
		}
		ctx := context.Background()
		if err := events.Emit(ctx, f.bus, events.OpenDashboard, events.OpenDashboardDetail{Section: VendorSetupSection}); err != nil {
			f.log.WarnContext(ctx, "failed to request vendor setup", "error", err)
		}
	})
	f.setupTimer = timer
}

package api

import (
	"context"
	"net/http"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
)

// AuthResponse is returned by the login, registration and 2FA endpoints.
type AuthResponse struct {
	Token             string       `json:"token"`
	User              *models.User `json:"user"`
	TwoFactorRequired bool         `json:"twoFactorRequired"`
	Email             string       `json:"email"`
	IsNewUser         bool         `json:"isNewUser"`
}

// Registration is the payload for POST /users/register.
type Registration struct {
	FirstName   string             `json:"firstName"`
	LastName    string             `json:"lastName"`
	Email       string             `json:"email"`
	Password    string             `json:"password"`
	AccountType models.AccountType `json:"accountType"`
}

// SocialLogin is the payload for POST /users/social-login. AccountType is
// empty on the first attempt; the backend answers isNewUser for unknown emails.
type SocialLogin struct {
	Email       string             `json:"email"`
	Name        string             `json:"name,omitempty"`
	Avatar      string             `json:"avatar,omitempty"`
	Credential  string             `json:"credential,omitempty"`
	AccountType models.AccountType `json:"accountType,omitempty"`
}

// Login calls POST /users/login.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	in := map[string]string{"email": email, "password": password}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/users/login", "/users/login", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register calls POST /users/register.
func (c *Client) Register(ctx context.Context, in Registration) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/users/register", "/users/register", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SocialLogin calls POST /users/social-login.
func (c *Client) SocialLogin(ctx context.Context, in SocialLogin) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/users/social-login", "/users/social-login", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTwoFactor calls POST /auth/verify-2fa.
func (c *Client) VerifyTwoFactor(ctx context.Context, email, code string) (*AuthResponse, error) {
	in := map[string]string{"email": email, "code": code}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/verify-2fa", "/auth/verify-2fa", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResendTwoFactor calls POST /auth/resend-2fa.
func (c *Client) ResendTwoFactor(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/resend-2fa", "/auth/resend-2fa", map[string]string{"email": email}, nil)
}

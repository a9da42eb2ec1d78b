// Package session holds the authenticated viewer for the current page context.
// It is passed explicitly to every component that needs the current user.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned when an operation requires a signed-in viewer.
var ErrNoSession = errors.New("no authenticated session")

// Provider exposes the current viewer to components.
type Provider interface {
	User() (*models.User, bool)
	Token() string
}

// Notifier is a Provider that reports sign-in and sign-out.
type Notifier interface {
	Provider
	OnChange(fn func(*models.User))
}

// Store is a concurrency-safe Provider that can be updated by the auth flow.
type Store struct {
	mu        sync.RWMutex
	token     string
	user      *models.User
	listeners []func(*models.User)
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// User returns a copy of the signed-in user.
func (s *Store) User() (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

// Token returns the bearer token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set records a new session and notifies listeners.
func (s *Store) Set(token string, user *models.User) {
	var u *models.User
	if user != nil {
		cp := *user
		u = &cp
	}
	s.mu.Lock()
	s.token = token
	s.user = u
	listeners := append([]func(*models.User){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(u)
	}
}

// Clear signs the viewer out.
func (s *Store) Clear() {
	s.Set("", nil)
}

// OnChange registers fn to run after every Set or Clear.
func (s *Store) OnChange(fn func(*models.User)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// RequireUser returns the signed-in user or ErrNoSession.
func RequireUser(p Provider) (*models.User, error) {
	if p == nil {
		return nil, ErrNoSession
	}
	u, ok := p.User()
	if !ok || u == nil || u.ID.IsZero() {
		return nil, ErrNoSession
	}
	return u, nil
}

// tokenClaims is the subset of the backend session token we read.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID      models.ID          `json:"id"`
	Email       string             `json:"email"`
	AccountType models.AccountType `json:"accountType"`
	IsVendor    bool               `json:"isVendor"`
}

// UserFromToken reads the viewer from a backend-issued session token without
// verifying its signature; the backend remains the authority on validity.
func UserFromToken(token string) (*models.User, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("decode session token: %w", err)
	}
	id := claims.UserID
	if id.IsZero() {
		id = models.ID(claims.Subject)
	}
	if id.IsZero() {
		return nil, errors.New("decode session token: missing user id")
	}
	return &models.User{
		ID:          id,
		Email:       claims.Email,
		AccountType: claims.AccountType,
		IsVendor:    claims.IsVendor,
	}, nil
}

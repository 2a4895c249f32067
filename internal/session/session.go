// Package session tracks the signed-in operator of the console and hands out
// bearer tokens for backend calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"fpconsole/internal/apperr"
	"fpconsole/internal/logger"
	"fpconsole/internal/metrics"
)

// refreshLeeway is how close to expiry a token gets refreshed.
const refreshLeeway = time.Minute

// Session wraps an identity provider for a single operator.
type Session struct {
	provider Provider
	validate *validator.Validate

	mu    sync.Mutex
	creds *Credentials

	subMu   sync.Mutex
	subs    map[int]func(*User)
	nextSub int

	now func() time.Time
}

// New creates a signed-out session.
func New(provider Provider) *Session {
	return &Session{
		provider: provider,
		validate: validator.New(),
		subs:     make(map[int]func(*User)),
		now:      time.Now,
	}
}

// CurrentUser returns the signed-in operator, if any.
func (s *Session) CurrentUser() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return User{}, false
	}
	return s.creds.User, true
}

// SignIn authenticates with email and password. Failures are *SignInError.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		metrics.SignIns.WithLabelValues(string(InvalidEmail)).Inc()
		return signInErr(InvalidEmail, err)
	}

	creds, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		var serr *SignInError
		if !errors.As(err, &serr) {
			serr = &SignInError{Code: Unknown, Err: err}
		}
		metrics.SignIns.WithLabelValues(string(serr.Code)).Inc()
		logger.LogWarn("sign-in failed", "email", email, "code", serr.Code, "error", serr.Err)
		return serr
	}

	s.mu.Lock()
	s.creds = &creds
	s.mu.Unlock()

	metrics.SignIns.WithLabelValues("ok").Inc()
	logger.LogInfo("operator signed in", "email", creds.User.Email)
	user := creds.User
	s.notify(&user)
	return nil
}

// SignOut clears the session. A provider failure is logged and ignored.
func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	creds := s.creds
	s.creds = nil
	s.mu.Unlock()

	if creds == nil {
		return
	}
	if err := s.provider.SignOut(ctx, *creds); err != nil {
		logger.LogError("error signing out", err, "email", creds.User.Email)
	}
	logger.LogInfo("operator signed out", "email", creds.User.Email)
	s.notify(nil)
}

// Token returns a bearer token for the current operator, refreshing it when
// it is about to expire. The provider call runs unlocked; if the session
// changed meanwhile the refreshed credentials are dropped.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	cur := s.creds
	if cur == nil {
		s.mu.Unlock()
		return "", apperr.ErrUnauthenticated
	}
	now := s.now()
	if cur.ExpiresAt.IsZero() || cur.ExpiresAt.Sub(now) > refreshLeeway {
		s.mu.Unlock()
		return cur.IDToken, nil
	}
	s.mu.Unlock()

	fresh, err := s.provider.Refresh(ctx, *cur)

	s.mu.Lock()
	if s.creds != cur {
		latest := s.creds
		s.mu.Unlock()
		if latest == nil {
			return "", apperr.ErrUnauthenticated
		}
		return latest.IDToken, nil
	}
	if err == nil {
		s.creds = &fresh
		s.mu.Unlock()
		return fresh.IDToken, nil
	}
	if now.Before(cur.ExpiresAt) {
		s.mu.Unlock()
		logger.LogWarn("token refresh failed, using current token", "error", err)
		return cur.IDToken, nil
	}
	s.creds = nil
	s.mu.Unlock()

	logger.LogError("token refresh failed, session cleared", err, "email", cur.User.Email)
	s.notify(nil)
	return "", fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
}

// Subscribe registers fn for sign-in (user set) and sign-out (nil) events.
func (s *Session) Subscribe(fn func(*User)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify(u *User) {
	s.subMu.Lock()
	fns := make([]func(*User), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

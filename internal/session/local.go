package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fpconsole/internal/auth"
	"fpconsole/internal/httpmiddleware"
)

var (
	errRevoked  = errors.New("refresh token revoked")
	errNotAdmin = errors.New("account is not an administrator")
)

// Account is an administrator known to the LocalProvider.
type Account struct {
	UID          string
	Email        string
	PasswordHash []byte
	Disabled     bool
}

// LocalProvider signs administrators in against a configured account list
// and issues HS256 tokens the simulated backend accepts.
type LocalProvider struct {
	issuer  *auth.Issuer
	limiter *httpmiddleware.TokenBucket
	cost    int

	mu       sync.Mutex
	accounts map[string]Account
	revoked  map[string]time.Time
}

// NewLocalProvider creates a provider. limiter may be nil to disable throttling.
func NewLocalProvider(issuer *auth.Issuer, limiter *httpmiddleware.TokenBucket) *LocalProvider {
	return &LocalProvider{
		issuer:   issuer,
		limiter:  limiter,
		cost:     bcrypt.DefaultCost,
		accounts: make(map[string]Account),
		revoked:  make(map[string]time.Time),
	}
}

// AddAccount hashes password and registers the account.
func (p *LocalProvider) AddAccount(email, password string, disabled bool) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return err
	}
	key := strings.ToLower(email)
	p.mu.Lock()
	p.accounts[key] = Account{UID: uuid.NewString(), Email: email, PasswordHash: hash, Disabled: disabled}
	p.mu.Unlock()
	return nil
}

// SignIn checks the password and issues tokens.
func (p *LocalProvider) SignIn(_ context.Context, email, password string) (Credentials, error) {
	key := strings.ToLower(email)
	if p.limiter != nil && !p.limiter.Allow(key) {
		return Credentials{}, signInErr(RateLimited, nil)
	}

	p.mu.Lock()
	acct, ok := p.accounts[key]
	p.mu.Unlock()
	if !ok {
		return Credentials{}, signInErr(UserNotFound, nil)
	}
	if acct.Disabled {
		return Credentials{}, signInErr(UserDisabled, nil)
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return Credentials{}, signInErr(WrongPassword, err)
	}
	if p.limiter != nil {
		p.limiter.Reset(key)
	}
	return p.issue(acct)
}

// Refresh exchanges a live refresh token for a new pair.
func (p *LocalProvider) Refresh(_ context.Context, creds Credentials) (Credentials, error) {
	claims, err := p.issuer.Parse(creds.RefreshToken, auth.KindRefresh)
	if err != nil {
		return Credentials{}, err
	}
	p.mu.Lock()
	_, revoked := p.revoked[claims.ID]
	acct, ok := p.accounts[strings.ToLower(claims.Email)]
	p.mu.Unlock()
	if revoked {
		return Credentials{}, errRevoked
	}
	if !ok || acct.Disabled {
		return Credentials{}, errNotAdmin
	}
	return p.issue(acct)
}

// SignOut revokes the refresh token of creds.
func (p *LocalProvider) SignOut(_ context.Context, creds Credentials) error {
	claims, err := p.issuer.Parse(creds.RefreshToken, auth.KindRefresh)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for id, exp := range p.revoked {
		if exp.Before(now) {
			delete(p.revoked, id)
		}
	}
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	return nil
}

func (p *LocalProvider) issue(acct Account) (Credentials, error) {
	pair, err := p.issuer.Issue(acct.UID, acct.Email, "admin")
	if err != nil {
		return Credentials{}, signInErr(Unknown, err)
	}
	return Credentials{
		User:         User{UID: acct.UID, Email: acct.Email},
		IDToken:      pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExp,
	}, nil
}

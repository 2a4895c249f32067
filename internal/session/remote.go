package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RemoteProvider talks to an Identity Toolkit style REST identity service.
type RemoteProvider struct {
	IdentityURL    string
	SecureTokenURL string
	APIKey         string
	HTTP           *http.Client
	now            func() time.Time
}

// NewRemoteProvider creates a provider. secureTokenURL defaults to identityURL.
func NewRemoteProvider(identityURL, secureTokenURL, apiKey string) *RemoteProvider {
	if secureTokenURL == "" {
		secureTokenURL = identityURL
	}
	return &RemoteProvider{
		IdentityURL:    strings.TrimRight(identityURL, "/"),
		SecureTokenURL: strings.TrimRight(secureTokenURL, "/"),
		APIKey:         apiKey,
		HTTP:           &http.Client{Timeout: 10 * time.Second},
		now:            time.Now,
	}
}

type identityError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn calls accounts:signInWithPassword.
func (p *RemoteProvider) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	body, _ := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	endpoint := p.IdentityURL + "/v1/accounts:signInWithPassword?key=" + url.QueryEscape(p.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Credentials{}, signInErr(Unknown, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return Credentials{}, signInErr(Unknown, fmt.Errorf("identity service request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var ie identityError
		_ = json.Unmarshal(bodyBytes, &ie)
		return Credentials{}, signInErr(codeFor(ie.Error.Message), fmt.Errorf("identity service error %s: %s", resp.Status, string(bodyBytes)))
	}

	var out struct {
		LocalID      string `json:"localId"`
		Email        string `json:"email"`
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credentials{}, signInErr(Unknown, fmt.Errorf("failed to decode response: %w", err))
	}
	return Credentials{
		User:         User{UID: out.LocalID, Email: out.Email},
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    p.expiry(out.ExpiresIn),
	}, nil
}

// Refresh exchanges the refresh token at the secure token endpoint.
func (p *RemoteProvider) Refresh(ctx context.Context, creds Credentials) (Credentials, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {creds.RefreshToken},
	}
	endpoint := p.SecureTokenURL + "/v1/token?key=" + url.QueryEscape(p.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("secure token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return Credentials{}, fmt.Errorf("secure token error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
		UserID       string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode response: %w", err)
	}
	fresh := creds
	fresh.IDToken = out.IDToken
	fresh.RefreshToken = out.RefreshToken
	fresh.ExpiresAt = p.expiry(out.ExpiresIn)
	if out.UserID != "" {
		fresh.User.UID = out.UserID
	}
	return fresh, nil
}

// SignOut is local only: ID tokens are stateless and expire on their own.
func (p *RemoteProvider) SignOut(context.Context, Credentials) error {
	return nil
}

func (p *RemoteProvider) expiry(expiresIn string) time.Time {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	return p.now().Add(time.Duration(secs) * time.Second)
}

// codeFor maps identity service error strings such as
// "TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled" to a code.
func codeFor(message string) ErrorCode {
	head, _, _ := strings.Cut(message, " ")
	switch head {
	case "INVALID_EMAIL":
		return InvalidEmail
	case "USER_DISABLED":
		return UserDisabled
	case "EMAIL_NOT_FOUND":
		return UserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return WrongPassword
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return RateLimited
	}
	return Unknown
}

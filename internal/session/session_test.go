package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fpconsole/internal/apperr"
	"fpconsole/internal/auth"
	"fpconsole/internal/httpmiddleware"
	"fpconsole/internal/logger"
)

func init() {
	logger.InitWithWriter(io.Discard, slog.LevelError)
}

func newLocal(t *testing.T, limiter *httpmiddleware.TokenBucket) *LocalProvider {
	t.Helper()
	p := NewLocalProvider(auth.NewIssuer("fpconsole", "secret", 15*time.Minute, time.Hour), limiter)
	p.cost = bcrypt.MinCost
	if err := p.AddAccount("admin@example.com", "s3cret", false); err != nil {
		t.Fatalf("AddAccount() failed: %v", err)
	}
	if err := p.AddAccount("old@example.com", "s3cret", true); err != nil {
		t.Fatalf("AddAccount() failed: %v", err)
	}
	return p
}

func codeOf(t *testing.T, err error) ErrorCode {
	t.Helper()
	var serr *SignInError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SignInError, got %v", err)
	}
	return serr.Code
}

func TestSignInErrorCodes(t *testing.T) {
	s := New(newLocal(t, nil))
	ctx := context.Background()

	cases := []struct {
		email, password string
		want            ErrorCode
		message         string
	}{
		{"not-an-email", "x", InvalidEmail, "Invalid email format."},
		{"nobody@example.com", "x", UserNotFound, "No account found with this email."},
		{"old@example.com", "s3cret", UserDisabled, "This account has been disabled."},
		{"admin@example.com", "wrong", WrongPassword, "Incorrect password."},
	}
	for _, tc := range cases {
		err := s.SignIn(ctx, tc.email, tc.password)
		if got := codeOf(t, err); got != tc.want {
			t.Fatalf("%s: code = %s, want %s", tc.email, got, tc.want)
		}
		if err.Error() != tc.message {
			t.Fatalf("%s: message = %q", tc.email, err.Error())
		}
	}
	if _, ok := s.CurrentUser(); ok {
		t.Fatalf("failed sign-ins left a user behind")
	}
}

func TestSignInRateLimited(t *testing.T) {
	s := New(newLocal(t, httpmiddleware.NewTokenBucket(2, 2)))
	ctx := context.Background()
	_ = s.SignIn(ctx, "admin@example.com", "wrong")
	_ = s.SignIn(ctx, "admin@example.com", "wrong")
	err := s.SignIn(ctx, "admin@example.com", "s3cret")
	if got := codeOf(t, err); got != RateLimited {
		t.Fatalf("code = %s, want %s", got, RateLimited)
	}
}

func TestSignInTokenAndSubscribers(t *testing.T) {
	s := New(newLocal(t, nil))
	var events []string
	unsubscribe := s.Subscribe(func(u *User) {
		if u == nil {
			events = append(events, "out")
			return
		}
		events = append(events, "in:"+u.Email)
	})
	defer unsubscribe()

	ctx := context.Background()
	if _, err := s.Token(ctx); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("Token() before sign-in: %v", err)
	}
	if err := s.SignIn(ctx, "admin@example.com", "s3cret"); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	user, ok := s.CurrentUser()
	if !ok || user.Email != "admin@example.com" {
		t.Fatalf("CurrentUser() = %+v, %v", user, ok)
	}
	token, err := s.Token(ctx)
	if err != nil || token == "" {
		t.Fatalf("Token() = %q, %v", token, err)
	}

	s.SignOut(ctx)
	if _, ok := s.CurrentUser(); ok {
		t.Fatalf("user still present after sign-out")
	}
	if len(events) != 2 || events[0] != "in:admin@example.com" || events[1] != "out" {
		t.Fatalf("events = %v", events)
	}
}

type failingSignOut struct {
	Provider
	called bool
}

func (f *failingSignOut) SignOut(context.Context, Credentials) error {
	f.called = true
	return errors.New("identity service unreachable")
}

func TestSignOutClearsSessionWhenProviderFails(t *testing.T) {
	p := &failingSignOut{Provider: newLocal(t, nil)}
	s := New(p)
	ctx := context.Background()
	if err := s.SignIn(ctx, "admin@example.com", "s3cret"); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	s.SignOut(ctx)
	if !p.called {
		t.Fatalf("provider sign-out not attempted")
	}
	if _, err := s.Token(ctx); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("Token() after sign-out: %v", err)
	}
}

func TestTokenRefreshNearExpiry(t *testing.T) {
	p := newLocal(t, nil)
	s := New(p)
	ctx := context.Background()
	if err := s.SignIn(ctx, "admin@example.com", "s3cret"); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	first, _ := s.Token(ctx)

	s.now = func() time.Time { return time.Now().Add(14*time.Minute + 30*time.Second) }
	second, err := s.Token(ctx)
	if err != nil {
		t.Fatalf("Token() refresh failed: %v", err)
	}
	if second == first {
		t.Fatalf("token was not refreshed")
	}
}

// slowRefresh holds Refresh until released.
type slowRefresh struct {
	*LocalProvider
	entered chan struct{}
	release chan struct{}
}

func (p *slowRefresh) Refresh(ctx context.Context, creds Credentials) (Credentials, error) {
	close(p.entered)
	<-p.release
	return p.LocalProvider.Refresh(ctx, creds)
}

func TestTokenRefreshDoesNotBlockCurrentUser(t *testing.T) {
	p := &slowRefresh{LocalProvider: newLocal(t, nil), entered: make(chan struct{}), release: make(chan struct{})}
	s := New(p)
	ctx := context.Background()
	if err := s.SignIn(ctx, "admin@example.com", "s3cret"); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	first, _ := s.Token(ctx)
	s.now = func() time.Time { return time.Now().Add(14*time.Minute + 30*time.Second) }

	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		tok, err := s.Token(ctx)
		done <- result{tok, err}
	}()
	<-p.entered

	got := make(chan bool, 1)
	go func() {
		_, ok := s.CurrentUser()
		got <- ok
	}()
	select {
	case ok := <-got:
		if !ok {
			t.Fatalf("CurrentUser() reported signed out during refresh")
		}
	case <-time.After(time.Second):
		t.Fatalf("CurrentUser() blocked behind the token refresh")
	}

	close(p.release)
	res := <-done
	if res.err != nil || res.token == "" || res.token == first {
		t.Fatalf("Token() = %q, %v", res.token, res.err)
	}
}

func TestTokenRefreshAfterSignOutIsDropped(t *testing.T) {
	p := &slowRefresh{LocalProvider: newLocal(t, nil), entered: make(chan struct{}), release: make(chan struct{})}
	s := New(p)
	ctx := context.Background()
	if err := s.SignIn(ctx, "admin@example.com", "s3cret"); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	s.now = func() time.Time { return time.Now().Add(14*time.Minute + 30*time.Second) }

	done := make(chan error, 1)
	go func() {
		_, err := s.Token(ctx)
		done <- err
	}()
	<-p.entered
	s.SignOut(ctx)
	close(p.release)

	if err := <-done; !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("Token() after sign-out = %v", err)
	}
	if _, ok := s.CurrentUser(); ok {
		t.Fatalf("refresh signed the operator back in")
	}
}

func TestLocalRefreshAfterSignOutIsRevoked(t *testing.T) {
	p := newLocal(t, nil)
	ctx := context.Background()
	creds, err := p.SignIn(ctx, "admin@example.com", "s3cret")
	if err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	if err := p.SignOut(ctx, creds); err != nil {
		t.Fatalf("SignOut() failed: %v", err)
	}
	if _, err := p.Refresh(ctx, creds); !errors.Is(err, errRevoked) {
		t.Fatalf("Refresh() after sign-out: %v", err)
	}
}

func TestRemoteProviderMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "api-key" {
			t.Errorf("api key not sent")
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account has been temporarily disabled"}}`))
	}))
	defer srv.Close()

	s := New(NewRemoteProvider(srv.URL, "", "api-key"))
	err := s.SignIn(context.Background(), "admin@example.com", "pw")
	if got := codeOf(t, err); got != RateLimited {
		t.Fatalf("code = %s", got)
	}
}

func TestRemoteProviderSignInAndRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/accounts:signInWithPassword":
			_, _ = w.Write([]byte(`{"localId":"u1","email":"admin@example.com","idToken":"id-1","refreshToken":"r-1","expiresIn":"30"}`))
		case "/v1/token":
			if err := r.ParseForm(); err != nil || r.PostForm.Get("refresh_token") != "r-1" {
				t.Errorf("unexpected refresh form: %v", r.PostForm)
			}
			_, _ = w.Write([]byte(`{"id_token":"id-2","refresh_token":"r-2","expires_in":"3600","user_id":"u1"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := New(NewRemoteProvider(srv.URL, srv.URL, "k"))
	ctx := context.Background()
	if err := s.SignIn(ctx, "admin@example.com", "pw"); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	token, err := s.Token(ctx)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	if token != "id-2" {
		t.Fatalf("token = %q, want refreshed id-2", token)
	}
}

func TestCodeFor(t *testing.T) {
	cases := map[string]ErrorCode{
		"INVALID_EMAIL":             InvalidEmail,
		"USER_DISABLED":             UserDisabled,
		"EMAIL_NOT_FOUND":           UserNotFound,
		"INVALID_PASSWORD":          WrongPassword,
		"INVALID_LOGIN_CREDENTIALS": WrongPassword,
		"WEAK_PASSWORD : too short": Unknown,
		"":                          Unknown,
	}
	for in, want := range cases {
		if got := codeFor(in); got != want {
			t.Fatalf("codeFor(%q) = %s, want %s", in, got, want)
		}
	}
}

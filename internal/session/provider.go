package session

import (
	"context"
	"time"
)

// User is the signed-in operator.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Credentials is what a provider returns on sign-in and refresh.
type Credentials struct {
	User         User
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Provider is the identity provider behind a Session.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Credentials, error)
	Refresh(ctx context.Context, creds Credentials) (Credentials, error)
	SignOut(ctx context.Context, creds Credentials) error
}

// ErrorCode classifies a failed sign-in.
type ErrorCode string

const (
	InvalidEmail  ErrorCode = "auth/invalid-email"
	UserDisabled  ErrorCode = "auth/user-disabled"
	UserNotFound  ErrorCode = "auth/user-not-found"
	WrongPassword ErrorCode = "auth/wrong-password"
	RateLimited   ErrorCode = "auth/too-many-requests"
	Unknown       ErrorCode = "auth/unknown"
)

// Message is the text shown on the login screen.
func (c ErrorCode) Message() string {
	switch c {
	case InvalidEmail:
		return "Invalid email format."
	case UserDisabled:
		return "This account has been disabled."
	case UserNotFound:
		return "No account found with this email."
	case WrongPassword:
		return "Incorrect password."
	case RateLimited:
		return "Too many login attempts. Please try again later."
	default:
		return "Authentication error. Please try again."
	}
}

// SignInError is returned by SignIn.
type SignInError struct {
	Code ErrorCode
	Err  error
}

func (e *SignInError) Error() string {
	return e.Code.Message()
}

func (e *SignInError) Unwrap() error {
	return e.Err
}

func signInErr(code ErrorCode, err error) error {
	return &SignInError{Code: code, Err: err}
}

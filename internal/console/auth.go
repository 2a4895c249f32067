package console

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fpconsole/internal/auth"
	"fpconsole/internal/session"
)

// sessionCookie carries the console credential for browsers.
const sessionCookie = "fpconsole_session"

const loginHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>Fingerprint Attendance Admin</title></head>
<body>
<form method="post" action="/login">
<label>Email <input type="email" name="email" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
</body></html>`

func (s *Server) loginPage(c *gin.Context) {
	if _, ok := s.authenticate(c); ok {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loginHTML))
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.d.Session.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		var serr *session.SignInError
		if !errors.As(err, &serr) {
			serr = &session.SignInError{Code: session.Unknown, Err: err}
		}
		c.JSON(signInStatus(serr.Code), gin.H{"error": serr.Code.Message(), "code": serr.Code})
		return
	}
	user, _ := s.d.Session.CurrentUser()
	token, claims, err := s.issueCredential(user)
	if err != nil {
		s.d.Session.SignOut(c.Request.Context())
		fail(c, err)
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookie, token, int(s.d.Tokens.AccessTTL.Seconds()), "/", "", s.d.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"access_token": token,
		"expires_at":   claims.ExpiresAt.Unix(),
	})
}

// issueCredential signs a console token for user and makes it the only one
// accepted, revoking whatever an earlier sign-in handed out.
func (s *Server) issueCredential(user session.User) (string, auth.Claims, error) {
	pair, err := s.d.Tokens.Issue(user.UID, user.Email, "operator")
	if err != nil {
		return "", auth.Claims{}, err
	}
	claims, err := s.d.Tokens.Parse(pair.AccessToken, auth.KindAccess)
	if err != nil {
		return "", auth.Claims{}, err
	}
	s.setTokenID(claims.ID)
	return pair.AccessToken, claims, nil
}

func signInStatus(code session.ErrorCode) int {
	switch code {
	case session.InvalidEmail:
		return http.StatusBadRequest
	case session.UserDisabled:
		return http.StatusForbidden
	case session.RateLimited:
		return http.StatusTooManyRequests
	case session.Unknown:
		return http.StatusBadGateway
	}
	return http.StatusUnauthorized
}

func (s *Server) logout(c *gin.Context) {
	s.d.Session.SignOut(c.Request.Context())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", s.d.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

func (s *Server) me(c *gin.Context) {
	user, _ := s.d.Session.CurrentUser()
	c.JSON(http.StatusOK, gin.H{"user": user})
}

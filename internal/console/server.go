// Package console is the admin console HTTP layer. One operator signs in and
// drives the fingerprint workflows and the record screens through JSON
// endpoints.
package console

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/apperr"
	"fpconsole/internal/audit"
	"fpconsole/internal/auth"
	"fpconsole/internal/enrollment"
	"fpconsole/internal/httpmiddleware"
	"fpconsole/internal/removal"
	"fpconsole/internal/sensor"
	"fpconsole/internal/session"
	"fpconsole/internal/views"
)

// Backend is the part of the API client the record screens use.
type Backend interface {
	views.Backend
	CreateStudent(ctx context.Context, in apiclient.StudentInput) (string, error)
	UpdateStudent(ctx context.Context, id string, in apiclient.StudentInput) error
	DeleteStudent(ctx context.Context, id string) error
	CreateClass(ctx context.Context, in apiclient.ClassInput) (string, error)
	UpdateClass(ctx context.Context, id string, in apiclient.ClassInput) error
	DeleteClass(ctx context.Context, id string) error
	EnrollInClass(ctx context.Context, classID, studentID string) error
	RecordManualAttendance(ctx context.Context, in apiclient.ManualAttendance) (apiclient.ManualAttendanceResult, error)
	RecordAttendanceByFingerprint(ctx context.Context, fingerprintID int, at time.Time) (apiclient.ScanResult, error)
	StudentByFingerprint(ctx context.Context, fingerprintID int) (apiclient.Student, error)
	ClassReport(ctx context.Context, classID string, date time.Time) (apiclient.ClassReport, error)
	StudentSummary(ctx context.Context, studentID string) (apiclient.StudentSummary, error)
}

// Deps wires a Server. Audit, Limiter and Health are optional.
type Deps struct {
	Session    *session.Session
	API        Backend
	Enrollment *enrollment.Workflow
	Removal    *removal.Workflow
	Monitor    *sensor.Monitor
	Views      *views.Refresher
	Audit      *audit.Repository
	Limiter    *httpmiddleware.TokenBucket
	Origins    []string
	// Health reports dependency checks for /healthz.
	Health func(ctx context.Context) map[string]bool

	// Tokens signs the console credential handed to the browser at sign-in.
	Tokens *auth.Issuer
	// SecureCookie marks the session cookie Secure (HTTPS only).
	SecureCookie bool
}

// Server binds the workflows to HTTP.
type Server struct {
	d        Deps
	validate *validator.Validate
	now      func() time.Time

	// tokenID is the jti of the only console credential currently accepted.
	mu      sync.Mutex
	tokenID string
}

// New creates a server. Signing out discards any active enrollment attempt
// and signing in reloads the dropdowns. Either revokes the console credential.
func New(d Deps) *Server {
	s := &Server{d: d, validate: validator.New(), now: time.Now}
	d.Session.Subscribe(func(u *session.User) {
		s.setTokenID("")
		if u == nil {
			d.Enrollment.Discard()
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			d.Views.Invalidate(ctx)
		}()
	})
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	origins := s.d.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(securityHeaders())
	if s.d.Limiter != nil {
		r.Use(s.d.Limiter.GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	r.GET("/login", s.loginPage)
	r.POST("/login", s.login)

	p := r.Group("/", s.requireSession())
	p.POST("/logout", s.logout)
	p.GET("/me", s.me)
	p.GET("/dashboard", s.dashboard)

	p.GET("/students", s.listStudents)
	p.POST("/students", s.createStudent)
	p.POST("/students/import", s.importStudents)
	p.GET("/students/fingerprint/:fid", s.studentByFingerprint)
	p.PUT("/students/:id", s.updateStudent)
	p.DELETE("/students/:id", s.deleteStudent)

	p.GET("/classes", s.listClasses)
	p.POST("/classes", s.createClass)
	p.PUT("/classes/:id", s.updateClass)
	p.DELETE("/classes/:id", s.deleteClass)
	p.POST("/classes/:id/enroll/:studentId", s.enrollInClass)

	p.POST("/attendance/manual", s.manualAttendance)
	p.POST("/attendance/scan", s.scanAttendance)
	p.GET("/reports/class/:id", s.classReport)
	p.GET("/reports/class/:id/export", s.exportClassReport)
	p.GET("/reports/student/:id", s.studentSummary)

	p.GET("/fingerprints/status", s.sensorStatus)
	p.GET("/fingerprints/options", s.fingerprintOptions)
	p.POST("/fingerprints/enroll", s.startEnrollment)
	p.GET("/fingerprints/enroll", s.currentEnrollment)
	p.DELETE("/fingerprints/enroll", s.discardEnrollment)
	p.POST("/fingerprints/remove", s.removeFingerprint)
	p.GET("/audit", s.auditEntries)

	return r
}

// requireSession admits only the client holding the credential issued at the
// last sign-in. Others are sent to the login screen (browsers) or get 401.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := s.authenticate(c); ok {
			c.Set(auth.ClaimsKey, claims)
			c.Next()
			return
		}
		if strings.Contains(c.GetHeader("Accept"), "text/html") {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.ErrUnauthenticated.Error()})
	}
}

// authenticate reads the console credential from the bearer header or the
// session cookie.
func (s *Server) authenticate(c *gin.Context) (auth.Claims, bool) {
	token := auth.BearerToken(c.Request)
	if token == "" {
		token, _ = c.Cookie(sessionCookie)
	}
	if token == "" {
		return auth.Claims{}, false
	}
	claims, err := s.d.Tokens.Parse(token, auth.KindAccess)
	if err != nil {
		return auth.Claims{}, false
	}
	s.mu.Lock()
	current := s.tokenID
	s.mu.Unlock()
	if current == "" || claims.ID != current {
		return auth.Claims{}, false
	}
	if _, ok := s.d.Session.CurrentUser(); !ok {
		return auth.Claims{}, false
	}
	return claims, true
}

func (s *Server) setTokenID(id string) {
	s.mu.Lock()
	s.tokenID = id
	s.mu.Unlock()
}

func (s *Server) healthz(c *gin.Context) {
	checks := map[string]bool{}
	if s.d.Health != nil {
		checks = s.d.Health(c.Request.Context())
	}
	status := http.StatusOK
	for _, ok := range checks {
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

// fail answers with the operator-facing message of err.
func fail(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
}

// bind decodes a JSON body and validates it before any backend call.
func (s *Server) bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apperr.Validation("body", "Invalid request body: %v", err)
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Validation(fe.Field(), "%s is invalid (%s)", fe.Field(), fe.Tag())
		}
		return apperr.Validation("body", "%v", err)
	}
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

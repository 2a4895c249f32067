package console

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fpconsole/internal/apperr"
	"fpconsole/internal/audit"
	"fpconsole/internal/enrollment"
	"fpconsole/internal/removal"
	"fpconsole/internal/sensor"
)

// maxWait bounds the long poll of GET /fingerprints/enroll.
const maxWait = 30 * time.Second

func (s *Server) sensorStatus(c *gin.Context) {
	st := s.d.Monitor.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": st, "alert": sensor.Render(st)})
}

func (s *Server) fingerprintOptions(c *gin.Context) {
	opts, err := s.d.Views.Reload(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

type enrollRequest struct {
	StudentID string `json:"student_id"`
}

func (s *Server) startEnrollment(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validation("student_id", "Please select a student"))
		return
	}
	a, err := s.d.Enrollment.Submit(c.Request.Context(), req.StudentID)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err), "attempt": a, "alert": enrollment.Render(a)})
		return
	}
	status := http.StatusAccepted
	if a.State == enrollment.Failed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"attempt": a, "alert": enrollment.Render(a)})
}

// currentEnrollment returns the attempt. With ?wait=<duration> it blocks
// until the attempt is no longer active or the wait elapses.
func (s *Server) currentEnrollment(c *gin.Context) {
	if v := c.Query("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			fail(c, apperr.Validation("wait", "Invalid wait duration"))
			return
		}
		if d > maxWait {
			d = maxWait
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		_, _ = s.d.Enrollment.Wait(ctx)
	}
	a := s.d.Enrollment.Current()
	body := gin.H{"attempt": a, "alert": enrollment.Render(a)}
	if a.State == enrollment.Succeeded {
		if opts, err := s.d.Views.Options(); err == nil {
			body["options"] = opts
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) discardEnrollment(c *gin.Context) {
	s.d.Enrollment.Discard()
	c.JSON(http.StatusOK, gin.H{"attempt": s.d.Enrollment.Current()})
}

type removeRequest struct {
	FingerprintID int  `json:"fingerprint_id"`
	Confirmed     bool `json:"confirmed"`
}

// removeFingerprint sends the removal only when the body carries
// confirmed=true. Otherwise the confirmation prompt is returned and nothing
// is sent.
func (s *Server) removeFingerprint(c *gin.Context) {
	var req removeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validation("fingerprint_id", "Please select a fingerprint ID"))
		return
	}
	res, err := s.d.Removal.Submit(c.Request.Context(), req.FingerprintID, removal.Answered(req.Confirmed))
	if err != nil {
		fail(c, err)
		return
	}
	body := gin.H{"result": res, "alert": removal.Render(res)}
	if res.Outcome == removal.Cancelled {
		body["confirm"] = removal.ConfirmPrompt(req.FingerprintID)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) auditEntries(c *gin.Context) {
	if s.d.Audit == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []audit.Entry{}})
		return
	}
	var q struct {
		StudentID     string `form:"student_id"`
		FingerprintID int    `form:"fingerprint_id"`
		Limit         int    `form:"limit"`
		Offset        int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, apperr.Validation("query", "Invalid query: %v", err))
		return
	}
	entries, err := s.d.Audit.ListEntries(c.Request.Context(), audit.Filter{
		StudentID:     q.StudentID,
		FingerprintID: q.FingerprintID,
		Limit:         q.Limit,
		Offset:        q.Offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

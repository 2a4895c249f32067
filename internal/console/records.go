package console

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/apperr"
	"fpconsole/internal/logger"
	"fpconsole/internal/roster"
	"fpconsole/internal/views"
)

func (s *Server) dashboard(c *gin.Context) {
	d, err := views.LoadDashboard(c.Request.Context(), s.d.API, s.now())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) listStudents(c *gin.Context) {
	students, err := s.d.API.ListStudents(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (s *Server) createStudent(c *gin.Context) {
	var in apiclient.StudentInput
	if err := s.bind(c, &in); err != nil {
		fail(c, err)
		return
	}
	id, err := s.d.API.CreateStudent(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	s.reloadOptions(c)
	c.JSON(http.StatusCreated, gin.H{"student_id": id, "message": "Student created successfully"})
}

func (s *Server) updateStudent(c *gin.Context) {
	var in apiclient.StudentInput
	if err := s.bind(c, &in); err != nil {
		fail(c, err)
		return
	}
	if err := s.d.API.UpdateStudent(c.Request.Context(), c.Param("id"), in); err != nil {
		fail(c, err)
		return
	}
	s.reloadOptions(c)
	c.JSON(http.StatusOK, gin.H{"message": "Student updated successfully"})
}

func (s *Server) deleteStudent(c *gin.Context) {
	if err := s.d.API.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	s.reloadOptions(c)
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted successfully"})
}

type importFailure struct {
	Line    int    `json:"line"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// importStudents creates one student per roster row and enrolls it in the
// listed classes. Rows fail independently.
func (s *Server) importStudents(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, apperr.Validation("file", "Please choose an .xlsx file"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	rows, bad, err := roster.ImportStudents(f)
	if err != nil {
		fail(c, apperr.Validation("file", "%v", err))
		return
	}
	failures := make([]importFailure, 0, len(bad))
	for _, b := range bad {
		failures = append(failures, importFailure{Line: b.Line, Message: b.Message})
	}

	ctx := c.Request.Context()
	imported := 0
	for _, row := range rows {
		id, err := s.d.API.CreateStudent(ctx, apiclient.StudentInput{Name: row.Name, FingerprintID: row.FingerprintID})
		if err != nil {
			failures = append(failures, importFailure{Line: row.Line, Name: row.Name, Message: apperr.Message(err)})
			continue
		}
		imported++
		for _, classID := range row.Classes {
			if err := s.d.API.EnrollInClass(ctx, classID, id); err != nil {
				failures = append(failures, importFailure{
					Line:    row.Line,
					Name:    row.Name,
					Message: fmt.Sprintf("class %s: %s", classID, apperr.Message(err)),
				})
			}
		}
	}
	logger.LogInfo("roster imported", "file", fh.Filename, "imported", imported, "failed", len(failures))
	s.reloadOptions(c)
	c.JSON(http.StatusOK, gin.H{"imported": imported, "failures": failures})
}

func (s *Server) listClasses(c *gin.Context) {
	classes, err := s.d.API.ListClasses(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (s *Server) createClass(c *gin.Context) {
	var in apiclient.ClassInput
	if err := s.bind(c, &in); err != nil {
		fail(c, err)
		return
	}
	id, err := s.d.API.CreateClass(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"class_id": id, "message": "Class created successfully"})
}

func (s *Server) updateClass(c *gin.Context) {
	var in apiclient.ClassInput
	if err := s.bind(c, &in); err != nil {
		fail(c, err)
		return
	}
	if err := s.d.API.UpdateClass(c.Request.Context(), c.Param("id"), in); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Class updated successfully"})
}

func (s *Server) deleteClass(c *gin.Context) {
	if err := s.d.API.DeleteClass(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Class deleted successfully"})
}

func (s *Server) enrollInClass(c *gin.Context) {
	if err := s.d.API.EnrollInClass(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student enrolled successfully"})
}

type manualAttendanceRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	ClassID   string    `json:"class_id" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) manualAttendance(c *gin.Context) {
	var req manualAttendanceRequest
	if err := s.bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = s.now()
	}
	res, err := s.d.API.RecordManualAttendance(c.Request.Context(), apiclient.ManualAttendance{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type scanRequest struct {
	FingerprintID int    `json:"fingerprint_id" validate:"gt=0"`
	Timestamp     string `json:"timestamp"`
}

// scanAttendance forwards a sensor match, as when a student puts a finger on
// the reader at the classroom door.
func (s *Server) scanAttendance(c *gin.Context) {
	var req scanRequest
	if err := s.bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	var at time.Time
	if req.Timestamp != "" {
		parsed, err := time.ParseInLocation(apiclient.ScanTimeLayout, req.Timestamp, time.Local)
		if err != nil {
			fail(c, apperr.Validation("timestamp", "Invalid timestamp format. Use YYYY-MM-DD HH:MM:SS"))
			return
		}
		at = parsed
	}
	res, err := s.d.API.RecordAttendanceByFingerprint(c.Request.Context(), req.FingerprintID, at)
	if err != nil {
		fail(c, err)
		return
	}
	logger.LogInfo("attendance scanned", "fingerprint_id", req.FingerprintID, "student_id", res.StudentID, "class_id", res.ClassID)
	c.JSON(http.StatusOK, gin.H{
		"result":  res,
		"message": fmt.Sprintf("Attendance recorded for %s in %s", res.Name, res.ClassName),
	})
}

func (s *Server) studentByFingerprint(c *gin.Context) {
	fid, err := strconv.Atoi(c.Param("fid"))
	if err != nil || fid <= 0 {
		fail(c, apperr.Validation("fingerprint_id", "Please select a fingerprint ID"))
		return
	}
	student, err := s.d.API.StudentByFingerprint(c.Request.Context(), fid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": student})
}

// reportDate reads ?date=YYYY-MM-DD, defaulting to today.
func (s *Server) reportDate(c *gin.Context) (time.Time, error) {
	v := c.Query("date")
	if v == "" {
		return s.now(), nil
	}
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, apperr.Validation("date", "Invalid date format. Use YYYY-MM-DD")
	}
	return d, nil
}

func (s *Server) classReport(c *gin.Context) {
	date, err := s.reportDate(c)
	if err != nil {
		fail(c, err)
		return
	}
	report, err := s.d.API.ClassReport(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) exportClassReport(c *gin.Context) {
	date, err := s.reportDate(c)
	if err != nil {
		fail(c, err)
		return
	}
	report, err := s.d.API.ClassReport(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		fail(c, err)
		return
	}
	name := fmt.Sprintf("attendance-%s-%s.xlsx", c.Param("id"), date.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := roster.WriteClassReport(c.Writer, report); err != nil {
		logger.LogError("write report workbook", err, "class_id", c.Param("id"))
	}
}

func (s *Server) studentSummary(c *gin.Context) {
	sum, err := s.d.API.StudentSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) reloadOptions(c *gin.Context) {
	if _, err := s.d.Views.Reload(c.Request.Context()); err != nil {
		logger.LogWarn("reload fingerprint options", "error", err)
	}
}

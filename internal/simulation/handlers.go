package simulation

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/auth"
)

// Router exposes the backend REST API.
func (b *Backend) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	if b.opts.Issuer != nil {
		api.Use(auth.BearerAuth(b.opts.Issuer))
	}

	api.GET("/students", b.listStudents)
	api.POST("/students", b.createStudent)
	api.GET("/students/:id", b.getStudent)
	api.GET("/students/fingerprint/:fingerprintId", b.studentByFingerprint)
	api.PUT("/students/:id", b.updateStudent)
	api.DELETE("/students/:id", b.deleteStudent)

	api.GET("/classes", b.listClasses)
	api.POST("/classes", b.createClass)
	api.PUT("/classes/:id", b.updateClass)
	api.DELETE("/classes/:id", b.deleteClass)
	api.POST("/classes/:id/enroll/:studentId", b.enrollStudent)

	api.GET("/attendance/record/:fingerprintId", b.recordScanHandler)
	api.POST("/attendance/manual", b.manualAttendance)
	api.GET("/attendance/report/:classId", b.classReportHandler)
	api.GET("/attendance/student/:studentId", b.studentSummaryHandler)

	api.GET("/fingerprints/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, b.status())
	})
	api.POST("/fingerprints/enroll", b.enrollFingerprint)
	api.POST("/fingerprints/remove", b.removeFingerprint)

	return r
}

func detail(c *gin.Context, status int, format string, args ...any) {
	c.JSON(status, gin.H{"detail": fmt.Sprintf(format, args...)})
}

// bind decodes and validates a JSON body, answering 422 on failure.
func (b *Backend) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid request body: %v", err)
		return false
	}
	if err := b.validate.Struct(v); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid request body: %v", err)
		return false
	}
	return true
}

func (b *Backend) listStudents(c *gin.Context) {
	b.mu.Lock()
	out := make(map[string]apiclient.Student, len(b.students))
	for id, s := range b.students {
		out[id] = snapshotStudent(s)
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"students": out})
}

func (b *Backend) getStudent(c *gin.Context) {
	id := c.Param("id")
	b.mu.Lock()
	s, ok := b.students[id]
	var cp apiclient.Student
	if ok {
		cp = snapshotStudent(s)
	}
	b.mu.Unlock()
	if !ok {
		detail(c, http.StatusNotFound, "Student with ID %s not found", id)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (b *Backend) studentByFingerprint(c *gin.Context) {
	fid, ok := fingerprintParam(c)
	if !ok {
		return
	}
	b.mu.Lock()
	s := b.fingerprintOwner(fid)
	var cp apiclient.Student
	if s != nil {
		cp = snapshotStudent(s)
	}
	b.mu.Unlock()
	if s == nil {
		detail(c, http.StatusNotFound, "No student found with fingerprint ID %d", fid)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func fingerprintParam(c *gin.Context) (int, bool) {
	fid, err := strconv.Atoi(c.Param("fingerprintId"))
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "fingerprint_id must be an integer")
		return 0, false
	}
	return fid, true
}

func (b *Backend) createStudent(c *gin.Context) {
	var in apiclient.StudentInput
	if !b.bind(c, &in) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if in.FingerprintID > 0 && (b.fingerprintOwner(in.FingerprintID) != nil || b.reserved[in.FingerprintID] != "") {
		detail(c, http.StatusBadRequest, "Fingerprint ID %d is already registered", in.FingerprintID)
		return
	}
	id := uuid.NewString()
	b.students[id] = &apiclient.Student{ID: id, Name: in.Name, FingerprintID: in.FingerprintID}
	if in.FingerprintID > 0 {
		b.templates[in.FingerprintID] = true
	}
	c.JSON(http.StatusOK, gin.H{"student_id": id, "message": "Student created successfully"})
}

func (b *Backend) updateStudent(c *gin.Context) {
	id := c.Param("id")
	var in apiclient.StudentInput
	if !b.bind(c, &in) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.students[id]
	if !ok {
		detail(c, http.StatusNotFound, "Student with ID %s not found", id)
		return
	}
	if in.FingerprintID != s.FingerprintID {
		if _, busy := b.pending[id]; busy {
			detail(c, http.StatusConflict, "%s", errInProgress.Error())
			return
		}
		if in.FingerprintID > 0 {
			if owner := b.fingerprintOwner(in.FingerprintID); owner != nil || b.reserved[in.FingerprintID] != "" {
				detail(c, http.StatusBadRequest, "Fingerprint ID %d is already registered to another student", in.FingerprintID)
				return
			}
		}
		if s.FingerprintID > 0 {
			delete(b.templates, s.FingerprintID)
		}
		if in.FingerprintID > 0 {
			b.templates[in.FingerprintID] = true
		}
	}
	s.Name = in.Name
	s.FingerprintID = in.FingerprintID
	c.JSON(http.StatusOK, gin.H{"message": "Student updated successfully"})
}

func (b *Backend) deleteStudent(c *gin.Context) {
	id := c.Param("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.students[id]
	if !ok {
		detail(c, http.StatusNotFound, "Student with ID %s not found", id)
		return
	}
	if t, busy := b.pending[id]; busy {
		t.Stop()
		delete(b.pending, id)
	}
	for fid, owner := range b.reserved {
		if owner == id {
			delete(b.reserved, fid)
		}
	}
	for _, classID := range s.EnrolledClasses {
		if cl, ok := b.classes[classID]; ok {
			cl.EnrolledStudents = without(cl.EnrolledStudents, id)
		}
	}
	delete(b.templates, s.FingerprintID)
	delete(b.students, id)
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted successfully"})
}

func (b *Backend) listClasses(c *gin.Context) {
	b.mu.Lock()
	out := make(map[string]apiclient.Class, len(b.classes))
	for id, cl := range b.classes {
		out[id] = snapshotClass(cl)
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"classes": out})
}

func (b *Backend) createClass(c *gin.Context) {
	var in apiclient.ClassInput
	if !b.bind(c, &in) {
		return
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.classes[id] = &apiclient.Class{ID: id, ClassName: in.ClassName, Lecturer: in.Lecturer, Schedules: in.Schedules}
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"class_id": id, "message": "Class created successfully"})
}

func (b *Backend) updateClass(c *gin.Context) {
	id := c.Param("id")
	var in apiclient.ClassInput
	if !b.bind(c, &in) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cl, ok := b.classes[id]
	if !ok {
		detail(c, http.StatusNotFound, "Class with ID %s not found", id)
		return
	}
	cl.ClassName = in.ClassName
	cl.Lecturer = in.Lecturer
	cl.Schedules = in.Schedules
	c.JSON(http.StatusOK, gin.H{"message": "Class updated successfully"})
}

func (b *Backend) deleteClass(c *gin.Context) {
	id := c.Param("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	cl, ok := b.classes[id]
	if !ok {
		detail(c, http.StatusNotFound, "Class with ID %s not found", id)
		return
	}
	for _, sid := range cl.EnrolledStudents {
		if s, ok := b.students[sid]; ok {
			s.EnrolledClasses = without(s.EnrolledClasses, id)
		}
	}
	delete(b.classes, id)
	c.JSON(http.StatusOK, gin.H{"message": "Class deleted successfully"})
}

func (b *Backend) enrollStudent(c *gin.Context) {
	b.mu.Lock()
	ok := b.enrollInClass(c.Param("id"), c.Param("studentId"))
	b.mu.Unlock()
	if !ok {
		detail(c, http.StatusBadRequest, "Class or student not found or already enrolled")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student enrolled successfully"})
}

// recordScanHandler is what the sensor loop calls when a finger matches a
// stored template.
func (b *Backend) recordScanHandler(c *gin.Context) {
	fid, ok := fingerprintParam(c)
	if !ok {
		return
	}
	ts := b.now()
	if v := c.Query("timestamp"); v != "" {
		parsed, err := time.Parse(apiclient.ScanTimeLayout, v)
		if err != nil {
			detail(c, http.StatusBadRequest, "Invalid timestamp format. Use YYYY-MM-DD HH:MM:SS")
			return
		}
		ts = parsed
	}
	res, err := b.recordScan(fid, ts)
	if err != nil {
		detail(c, http.StatusBadRequest, "%s", err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (b *Backend) manualAttendance(c *gin.Context) {
	var in apiclient.ManualAttendance
	if !b.bind(c, &in) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.students[in.StudentID]
	if !ok {
		detail(c, http.StatusNotFound, "Student with ID %s not found", in.StudentID)
		return
	}
	cl, ok := b.classes[in.ClassID]
	if !ok {
		detail(c, http.StatusNotFound, "Class with ID %s not found", in.ClassID)
		return
	}
	enrolled := false
	for _, id := range s.EnrolledClasses {
		enrolled = enrolled || id == in.ClassID
	}
	if !enrolled {
		detail(c, http.StatusBadRequest, "Student %s is not enrolled in class %s", s.Name, cl.ClassName)
		return
	}
	id := b.recordAttendance(in.StudentID, in.ClassID, in.Timestamp)
	c.JSON(http.StatusOK, apiclient.ManualAttendanceResult{
		AttendanceID: id,
		Message:      "Attendance recorded successfully",
		StudentName:  s.Name,
		ClassName:    cl.ClassName,
		Timestamp:    in.Timestamp.Format(time.RFC3339),
	})
}

func (b *Backend) classReportHandler(c *gin.Context) {
	classID := c.Param("classId")
	date := c.Query("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		detail(c, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}
	r, ok := b.classReport(classID, date)
	if !ok {
		detail(c, http.StatusBadRequest, "No class found with ID: %s", classID)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (b *Backend) studentSummaryHandler(c *gin.Context) {
	id := c.Param("studentId")
	sum, ok := b.studentSummary(id)
	if !ok {
		detail(c, http.StatusBadRequest, "No student found with ID: %s", id)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (b *Backend) enrollFingerprint(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" validate:"required"`
	}
	if !b.bind(c, &req) {
		return
	}
	data, err := b.startEnrollment(req.StudentID)
	switch {
	case errors.Is(err, errStudentNotFound):
		detail(c, http.StatusNotFound, "%s", err.Error())
		return
	case errors.Is(err, errAlreadyEnrolled), errors.Is(err, errInProgress):
		detail(c, http.StatusConflict, "%s", err.Error())
		return
	case errors.Is(err, errSensorOffline):
		detail(c, http.StatusServiceUnavailable, "%s", err.Error())
		return
	case err != nil:
		detail(c, http.StatusInternalServerError, "Enrollment error: %v", err)
		return
	}
	c.JSON(http.StatusOK, apiclient.EnrollResponse{
		Status:  apiclient.EnrollStatusPending,
		Message: "Fingerprint enrollment initiated. Please place finger on the sensor.",
		Data:    &data,
	})
}

func (b *Backend) removeFingerprint(c *gin.Context) {
	var req struct {
		FingerprintID int `json:"fingerprint_id" validate:"gt=0"`
	}
	if !b.bind(c, &req) {
		return
	}
	s, err := b.removeTemplate(req.FingerprintID)
	if err != nil {
		detail(c, http.StatusNotFound, "%s", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Fingerprint ID %d removed successfully", req.FingerprintID),
		"data":    gin.H{"student_id": s.ID, "student_name": s.Name},
	})
}

// without returns a new slice; snapshots taken under b.mu may share the old one.
func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

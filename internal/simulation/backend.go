// Package simulation is an in-memory stand-in for the attendance REST backend
// and its fingerprint sensor, used for offline development and tests.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/auth"
	"fpconsole/internal/logger"
)

// SensorType is reported while the simulated sensor is connected.
const SensorType = "R30X Optical Sensor (Simulation Mode)"

var (
	errStudentNotFound = errors.New("Student not found")
	errAlreadyEnrolled = errors.New("student already enrolled")
	errInProgress      = errors.New("enrollment already in progress for this student")
	errSensorOffline   = errors.New("Fingerprint sensor is not connected")
	errNoSuchTemplate  = errors.New("No student found with this fingerprint ID")
	errNoClassNow      = errors.New("No class scheduled for the student at this time")
)

// Options configures a Backend.
type Options struct {
	// Issuer verifies bearer tokens. Nil disables authentication.
	Issuer *auth.Issuer
	// CompleteAfter is how long an enrollment stays pending before the
	// template is stored.
	CompleteAfter time.Duration
	// Seed loads the sample students and classes.
	Seed bool
}

type attendanceRecord struct {
	ID        string
	StudentID string
	ClassID   string
	Date      string
	Timestamp time.Time
}

// Backend holds the simulated state. All methods are safe for concurrent use.
type Backend struct {
	opts     Options
	validate *validator.Validate
	now      func() time.Time

	mu         sync.Mutex
	students   map[string]*apiclient.Student
	classes    map[string]*apiclient.Class
	attendance []attendanceRecord
	templates  map[int]bool
	pending    map[string]*time.Timer // student id -> completion
	reserved   map[int]string         // fingerprint id -> student id
	sensor     string
	sensorMsg  string
}

// New creates a backend with a connected sensor.
func New(opts Options) *Backend {
	if opts.CompleteAfter <= 0 {
		opts.CompleteAfter = 3 * time.Second
	}
	b := &Backend{
		opts:      opts,
		validate:  validator.New(),
		now:       time.Now,
		students:  map[string]*apiclient.Student{},
		classes:   map[string]*apiclient.Class{},
		templates: map[int]bool{},
		pending:   map[string]*time.Timer{},
		reserved:  map[int]string{},
		sensor:    apiclient.SensorConnected,
	}
	if opts.Seed {
		b.seed()
	}
	return b
}

// SetSensor changes what the status endpoint reports. message is used for
// the error state.
func (b *Backend) SetSensor(status, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sensor = status
	b.sensorMsg = message
}

// TemplateCount returns the number of stored templates.
func (b *Backend) TemplateCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.templates)
}

// Close stops pending enrollments.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.pending {
		t.Stop()
		delete(b.pending, id)
	}
	b.reserved = map[int]string{}
}

// Listen serves the backend on addr until the returned shutdown func is
// called. It returns the base URL to reach it.
func (b *Backend) Listen(addr string) (string, func(ctx context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("simulation listen: %w", err)
	}
	srv := &http.Server{
		Handler:      b.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("simulated backend stopped", err)
		}
	}()
	shutdown := func(ctx context.Context) error {
		b.Close()
		return srv.Shutdown(ctx)
	}
	return "http://" + ln.Addr().String(), shutdown, nil
}

func (b *Backend) seed() {
	classes := []apiclient.Class{
		{ID: "C001", ClassName: "Mathematics 101", Lecturer: "Dr. Smith", Schedules: []apiclient.Schedule{
			{DayOfWeek: "Monday", StartTime: "09:00", EndTime: "11:00", RoomNumber: "A101"},
			{DayOfWeek: "Wednesday", StartTime: "09:00", EndTime: "11:00", RoomNumber: "A101"},
		}},
		{ID: "C002", ClassName: "Computer Science 202", Lecturer: "Prof. Johnson", Schedules: []apiclient.Schedule{
			{DayOfWeek: "Tuesday", StartTime: "13:00", EndTime: "15:00", RoomNumber: "B205"},
			{DayOfWeek: "Thursday", StartTime: "13:00", EndTime: "15:00", RoomNumber: "B205"},
		}},
		{ID: "C003", ClassName: "Physics 120", Lecturer: "Dr. Lee", Schedules: []apiclient.Schedule{
			{DayOfWeek: "Monday", StartTime: "14:00", EndTime: "16:00", RoomNumber: "C310"},
			{DayOfWeek: "Friday", StartTime: "10:00", EndTime: "12:00", RoomNumber: "C310"},
		}},
	}
	students := []apiclient.Student{
		{ID: "S001", Name: "John Doe", FingerprintID: 1},
		{ID: "S002", Name: "Jane Smith", FingerprintID: 2},
		{ID: "S003", Name: "Robert Johnson", FingerprintID: 3},
		{ID: "S004", Name: "Emily Davis"},
		{ID: "S005", Name: "Michael Wilson"},
	}
	for i := range classes {
		c := classes[i]
		b.classes[c.ID] = &c
	}
	for i := range students {
		s := students[i]
		b.students[s.ID] = &s
		if s.FingerprintID > 0 {
			b.templates[s.FingerprintID] = true
		}
	}
	for _, s := range students {
		b.enrollInClass("C001", s.ID)
	}
	for _, id := range []string{"S001", "S002", "S003"} {
		b.enrollInClass("C002", id)
	}
	for _, id := range []string{"S003", "S004", "S005"} {
		b.enrollInClass("C003", id)
	}

	now := b.now()
	yesterday := now.AddDate(0, 0, -1)
	for _, id := range []string{"S001", "S002", "S004"} {
		b.recordAttendance(id, "C001", yesterday)
	}
	for _, id := range []string{"S001", "S003"} {
		b.recordAttendance(id, "C002", now)
	}
}

// enrollInClass links a student and a class. Callers hold b.mu.
func (b *Backend) enrollInClass(classID, studentID string) bool {
	c, ok := b.classes[classID]
	if !ok {
		return false
	}
	s, ok := b.students[studentID]
	if !ok {
		return false
	}
	for _, id := range s.EnrolledClasses {
		if id == classID {
			return false
		}
	}
	s.EnrolledClasses = append(s.EnrolledClasses, classID)
	c.EnrolledStudents = append(c.EnrolledStudents, studentID)
	return true
}

// recordAttendance stores a present mark. Callers hold b.mu.
func (b *Backend) recordAttendance(studentID, classID string, ts time.Time) string {
	rec := attendanceRecord{
		ID:        uuid.NewString(),
		StudentID: studentID,
		ClassID:   classID,
		Date:      ts.Format("2006-01-02"),
		Timestamp: ts,
	}
	b.attendance = append(b.attendance, rec)
	return rec.ID
}

// snapshotStudent copies s, slices included, for use after b.mu is released.
func snapshotStudent(s *apiclient.Student) apiclient.Student {
	cp := *s
	cp.EnrolledClasses = slices.Clone(s.EnrolledClasses)
	return cp
}

func snapshotClass(c *apiclient.Class) apiclient.Class {
	cp := *c
	cp.Schedules = slices.Clone(c.Schedules)
	cp.EnrolledStudents = slices.Clone(c.EnrolledStudents)
	return cp
}

// fingerprintOwner returns the student holding fid. Callers hold b.mu.
func (b *Backend) fingerprintOwner(fid int) *apiclient.Student {
	for _, s := range b.students {
		if s.FingerprintID == fid {
			return s
		}
	}
	return nil
}

// nextFingerprintID is the smallest id neither stored nor reserved. Callers hold b.mu.
func (b *Backend) nextFingerprintID() int {
	id := 1
	for b.fingerprintOwner(id) != nil || b.templates[id] || b.reserved[id] != "" {
		id++
	}
	return id
}

// startEnrollment reserves a fingerprint id for the student and schedules
// completion.
func (b *Backend) startEnrollment(studentID string) (apiclient.EnrollData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sensor != apiclient.SensorConnected {
		return apiclient.EnrollData{}, errSensorOffline
	}
	s, ok := b.students[studentID]
	if !ok {
		return apiclient.EnrollData{}, errStudentNotFound
	}
	if s.FingerprintID > 0 {
		return apiclient.EnrollData{}, errAlreadyEnrolled
	}
	if _, busy := b.pending[studentID]; busy {
		return apiclient.EnrollData{}, errInProgress
	}

	fid := b.nextFingerprintID()
	b.reserved[fid] = studentID
	b.pending[studentID] = time.AfterFunc(b.opts.CompleteAfter, func() {
		b.completeEnrollment(studentID, fid)
	})
	logger.LogInfo("simulated enrollment started", "student_id", studentID, "fingerprint_id", fid)
	return apiclient.EnrollData{StudentID: studentID, StudentName: s.Name, FingerprintID: fid}, nil
}

func (b *Backend) completeEnrollment(studentID string, fid int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reserved[fid] != studentID {
		return
	}
	delete(b.reserved, fid)
	delete(b.pending, studentID)
	s, ok := b.students[studentID]
	if !ok {
		return
	}
	s.FingerprintID = fid
	b.templates[fid] = true
	logger.LogInfo("simulated enrollment stored", "student_id", studentID, "fingerprint_id", fid)
}

func (b *Backend) removeTemplate(fid int) (*apiclient.Student, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.fingerprintOwner(fid)
	if s == nil {
		return nil, errNoSuchTemplate
	}
	s.FingerprintID = 0
	delete(b.templates, fid)
	cp := snapshotStudent(s)
	return &cp, nil
}

// recordScan marks the owner of fid present in the first enrolled class
// whose schedule covers ts.
func (b *Backend) recordScan(fid int, ts time.Time) (apiclient.ScanResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.fingerprintOwner(fid)
	if s == nil {
		return apiclient.ScanResult{}, fmt.Errorf("No student found with fingerprint ID: %d", fid)
	}
	day := ts.Weekday().String()
	clock := ts.Format("15:04")
	for _, classID := range s.EnrolledClasses {
		c, ok := b.classes[classID]
		if !ok {
			continue
		}
		for _, sch := range c.Schedules {
			if sch.DayOfWeek != day || sch.StartTime == "" || sch.EndTime == "" {
				continue
			}
			if sch.StartTime <= clock && clock <= sch.EndTime {
				id := b.recordAttendance(s.ID, classID, ts)
				logger.LogInfo("simulated scan recorded", "fingerprint_id", fid, "student_id", s.ID, "class_id", classID)
				return apiclient.ScanResult{
					AttendanceID: id,
					StudentID:    s.ID,
					Name:         s.Name,
					ClassID:      classID,
					ClassName:    c.ClassName,
					Timestamp:    ts.Format(apiclient.ScanTimeLayout),
				}, nil
			}
		}
	}
	return apiclient.ScanResult{}, errNoClassNow
}

func (b *Backend) status() apiclient.StatusResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.sensor {
	case apiclient.SensorConnected:
		return apiclient.StatusResponse{
			Status:  apiclient.SensorConnected,
			Message: "Fingerprint sensor is connected and operational",
			Data:    &apiclient.SensorData{SensorType: SensorType, TemplateCount: len(b.templates)},
		}
	case apiclient.SensorDisconnected:
		return apiclient.StatusResponse{
			Status:  apiclient.SensorDisconnected,
			Message: "Fingerprint sensor is not connected or not responding",
		}
	}
	return apiclient.StatusResponse{
		Status:  apiclient.SensorError,
		Message: "Error checking fingerprint sensor: " + b.sensorMsg,
	}
}

func (b *Backend) classReport(classID, date string) (apiclient.ClassReport, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.classes[classID]
	if !ok {
		return apiclient.ClassReport{}, false
	}
	present := map[string]bool{}
	for _, rec := range b.attendance {
		if rec.ClassID == classID && rec.Date == date {
			present[rec.StudentID] = true
		}
	}
	r := apiclient.ClassReport{
		ClassName:      c.ClassName,
		Date:           date,
		TotalStudents:  len(c.EnrolledStudents),
		AttendanceList: []apiclient.ReportEntry{},
	}
	for _, id := range c.EnrolledStudents {
		s, ok := b.students[id]
		if !ok {
			continue
		}
		status := "absent"
		if present[id] {
			status = "present"
			r.PresentStudents++
		}
		r.AttendanceList = append(r.AttendanceList, apiclient.ReportEntry{Name: s.Name, Status: status})
	}
	sort.Slice(r.AttendanceList, func(i, j int) bool { return r.AttendanceList[i].Name < r.AttendanceList[j].Name })
	r.AbsentStudents = r.TotalStudents - r.PresentStudents
	return r, true
}

// studentSummary counts, per enrolled class, the days the class met (any
// attendance recorded) and the days the student was present.
func (b *Backend) studentSummary(studentID string) (apiclient.StudentSummary, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.students[studentID]
	if !ok {
		return apiclient.StudentSummary{}, false
	}
	sum := apiclient.StudentSummary{
		StudentName:       s.Name,
		TotalClasses:      len(s.EnrolledClasses),
		AttendanceByClass: map[string]apiclient.ClassAttendance{},
	}
	for _, classID := range s.EnrolledClasses {
		c, ok := b.classes[classID]
		if !ok {
			continue
		}
		sessions := map[string]bool{}
		attended := map[string]bool{}
		for _, rec := range b.attendance {
			if rec.ClassID != classID {
				continue
			}
			sessions[rec.Date] = true
			if rec.StudentID == studentID {
				attended[rec.Date] = true
			}
		}
		sum.AttendanceByClass[c.ClassName] = apiclient.ClassAttendance{TotalSessions: len(sessions), Attended: len(attended)}
		sum.ClassesAttended += len(attended)
	}
	return sum, true
}

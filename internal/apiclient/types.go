package apiclient

import "time"

// Student is a backend student record.
type Student struct {
	ID              string   `json:"student_id"`
	Name            string   `json:"name"`
	FingerprintID   int      `json:"fingerprint_id"`
	EnrolledClasses []string `json:"enrolled_classes"`
}

// Enrolled reports whether a fingerprint template is assigned.
func (s Student) Enrolled() bool { return s.FingerprintID > 0 }

// StudentInput is the body of create and update calls.
type StudentInput struct {
	Name          string `json:"name" validate:"required"`
	FingerprintID int    `json:"fingerprint_id" validate:"gte=0"`
}

// Schedule is one weekly slot of a class.
type Schedule struct {
	DayOfWeek  string `json:"day_of_week" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time" validate:"required"`
	RoomNumber string `json:"room_number" validate:"required"`
}

// Class is a backend class record.
type Class struct {
	ID               string     `json:"class_id"`
	ClassName        string     `json:"class_name"`
	Lecturer         string     `json:"lecturer"`
	Schedules        []Schedule `json:"schedules"`
	EnrolledStudents []string   `json:"enrolled_students"`
}

// ClassInput is the body of class create and update calls.
type ClassInput struct {
	ClassName string     `json:"class_name" validate:"required"`
	Lecturer  string     `json:"lecturer" validate:"required"`
	Schedules []Schedule `json:"schedules" validate:"dive"`
}

// ManualAttendance is the body of POST /api/attendance/manual.
type ManualAttendance struct {
	StudentID string    `json:"student_id" validate:"required"`
	ClassID   string    `json:"class_id" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// ManualAttendanceResult is the backend answer to a manual record.
type ManualAttendanceResult struct {
	AttendanceID string `json:"attendance_id"`
	Message      string `json:"message"`
	StudentName  string `json:"student_name"`
	ClassName    string `json:"class_name"`
	Timestamp    string `json:"timestamp"`
}

// ScanTimeLayout is the timestamp format of fingerprint attendance scans.
const ScanTimeLayout = "2006-01-02 15:04:05"

// ScanResult is the backend answer to a fingerprint scan: the student was
// marked present in the class scheduled at that time.
type ScanResult struct {
	AttendanceID string `json:"attendance_id"`
	StudentID    string `json:"student_id"`
	Name         string `json:"name"`
	ClassID      string `json:"class_id"`
	ClassName    string `json:"class_name"`
	Timestamp    string `json:"timestamp"`
}

// ReportEntry is one line of a class report.
type ReportEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ClassReport is the server-computed attendance of a class on one day.
type ClassReport struct {
	ClassName       string        `json:"class_name"`
	Date            string        `json:"date"`
	TotalStudents   int           `json:"total_students"`
	PresentStudents int           `json:"present_students"`
	AbsentStudents  int           `json:"absent_students"`
	AttendanceList  []ReportEntry `json:"attendance_list"`
}

// ClassAttendance is the per-class part of a student summary.
type ClassAttendance struct {
	TotalSessions int `json:"total_sessions"`
	Attended      int `json:"attended"`
}

// StudentSummary is the server-computed attendance of one student.
type StudentSummary struct {
	StudentName       string                     `json:"student_name"`
	TotalClasses      int                        `json:"total_classes"`
	ClassesAttended   int                        `json:"classes_attended"`
	AttendanceByClass map[string]ClassAttendance `json:"attendance_by_class"`
}

// Sensor status values reported by GET /api/fingerprints/status.
const (
	SensorConnected    = "connected"
	SensorDisconnected = "disconnected"
	SensorError        = "error"
)

// SensorData is present when the sensor is connected.
type SensorData struct {
	SensorType    string `json:"sensor_type"`
	TemplateCount int    `json:"template_count"`
}

// StatusResponse is the raw answer of the status endpoint.
type StatusResponse struct {
	Status  string      `json:"status"`
	Data    *SensorData `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// EnrollStatusPending is the only accepted status of an enroll answer.
const EnrollStatusPending = "pending"

// EnrollData describes the accepted enrollment.
type EnrollData struct {
	StudentID     string `json:"student_id"`
	StudentName   string `json:"student_name"`
	FingerprintID int    `json:"fingerprint_id"`
}

// EnrollResponse is the answer of POST /api/fingerprints/enroll.
type EnrollResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    *EnrollData `json:"data"`
}

// RemoveResponse is the answer of POST /api/fingerprints/remove.
type RemoveResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

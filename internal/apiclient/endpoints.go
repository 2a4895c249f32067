package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// ListStudents returns all students sorted by name.
func (c *Client) ListStudents(ctx context.Context) ([]Student, error) {
	var out struct {
		Students map[string]Student `json:"students"`
	}
	if err := c.do(ctx, "/api/students", http.MethodGet, "/api/students", nil, &out); err != nil {
		return nil, err
	}
	students := make([]Student, 0, len(out.Students))
	for id, s := range out.Students {
		if s.ID == "" {
			s.ID = id
		}
		students = append(students, s)
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Name == students[j].Name {
			return students[i].ID < students[j].ID
		}
		return students[i].Name < students[j].Name
	})
	return students, nil
}

// GetStudent returns one student.
func (c *Client) GetStudent(ctx context.Context, id string) (Student, error) {
	var s Student
	err := c.do(ctx, "/api/students/{id}", http.MethodGet, "/api/students/"+url.PathEscape(id), nil, &s)
	if s.ID == "" {
		s.ID = id
	}
	return s, err
}

// StudentByFingerprint returns the student holding a fingerprint template.
func (c *Client) StudentByFingerprint(ctx context.Context, fingerprintID int) (Student, error) {
	var s Student
	path := "/api/students/fingerprint/" + strconv.Itoa(fingerprintID)
	err := c.do(ctx, "/api/students/fingerprint/{fingerprintId}", http.MethodGet, path, nil, &s)
	return s, err
}

// CreateStudent creates a student and returns its id.
func (c *Client) CreateStudent(ctx context.Context, in StudentInput) (string, error) {
	var out struct {
		StudentID string `json:"student_id"`
	}
	if err := c.do(ctx, "/api/students", http.MethodPost, "/api/students", in, &out); err != nil {
		return "", err
	}
	return out.StudentID, nil
}

// UpdateStudent replaces a student's fields.
func (c *Client) UpdateStudent(ctx context.Context, id string, in StudentInput) error {
	return c.do(ctx, "/api/students/{id}", http.MethodPut, "/api/students/"+url.PathEscape(id), in, nil)
}

// DeleteStudent removes a student.
func (c *Client) DeleteStudent(ctx context.Context, id string) error {
	return c.do(ctx, "/api/students/{id}", http.MethodDelete, "/api/students/"+url.PathEscape(id), nil, nil)
}

// ListClasses returns all classes sorted by name.
func (c *Client) ListClasses(ctx context.Context) ([]Class, error) {
	var out struct {
		Classes map[string]Class `json:"classes"`
	}
	if err := c.do(ctx, "/api/classes", http.MethodGet, "/api/classes", nil, &out); err != nil {
		return nil, err
	}
	classes := make([]Class, 0, len(out.Classes))
	for id, cl := range out.Classes {
		if cl.ID == "" {
			cl.ID = id
		}
		classes = append(classes, cl)
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].ClassName == classes[j].ClassName {
			return classes[i].ID < classes[j].ID
		}
		return classes[i].ClassName < classes[j].ClassName
	})
	return classes, nil
}

// CreateClass creates a class and returns its id.
func (c *Client) CreateClass(ctx context.Context, in ClassInput) (string, error) {
	var out struct {
		ClassID string `json:"class_id"`
	}
	if err := c.do(ctx, "/api/classes", http.MethodPost, "/api/classes", in, &out); err != nil {
		return "", err
	}
	return out.ClassID, nil
}

// UpdateClass replaces a class's fields.
func (c *Client) UpdateClass(ctx context.Context, id string, in ClassInput) error {
	return c.do(ctx, "/api/classes/{id}", http.MethodPut, "/api/classes/"+url.PathEscape(id), in, nil)
}

// DeleteClass removes a class.
func (c *Client) DeleteClass(ctx context.Context, id string) error {
	return c.do(ctx, "/api/classes/{id}", http.MethodDelete, "/api/classes/"+url.PathEscape(id), nil, nil)
}

// EnrollInClass adds a student to a class.
func (c *Client) EnrollInClass(ctx context.Context, classID, studentID string) error {
	path := "/api/classes/" + url.PathEscape(classID) + "/enroll/" + url.PathEscape(studentID)
	return c.do(ctx, "/api/classes/{id}/enroll/{studentId}", http.MethodPost, path, nil, nil)
}

// RecordManualAttendance records a present mark entered by the operator.
func (c *Client) RecordManualAttendance(ctx context.Context, in ManualAttendance) (ManualAttendanceResult, error) {
	var out ManualAttendanceResult
	err := c.do(ctx, "/api/attendance/manual", http.MethodPost, "/api/attendance/manual", in, &out)
	return out, err
}

// RecordAttendanceByFingerprint reports a sensor match. The backend marks the
// owner of the template present in the class scheduled at the given time; a
// zero time lets the backend use its own clock.
func (c *Client) RecordAttendanceByFingerprint(ctx context.Context, fingerprintID int, at time.Time) (ScanResult, error) {
	var out ScanResult
	path := "/api/attendance/record/" + strconv.Itoa(fingerprintID)
	if !at.IsZero() {
		path += "?" + url.Values{"timestamp": {at.Format(ScanTimeLayout)}}.Encode()
	}
	err := c.do(ctx, "/api/attendance/record/{fingerprintId}", http.MethodGet, path, nil, &out)
	return out, err
}

// ClassReport fetches the report of a class for the calendar day of date.
func (c *Client) ClassReport(ctx context.Context, classID string, date time.Time) (ClassReport, error) {
	var out ClassReport
	q := url.Values{"date": {date.Format("2006-01-02")}}
	path := "/api/attendance/report/" + url.PathEscape(classID) + "?" + q.Encode()
	err := c.do(ctx, "/api/attendance/report/{classId}", http.MethodGet, path, nil, &out)
	return out, err
}

// StudentSummary fetches the attendance summary of a student.
func (c *Client) StudentSummary(ctx context.Context, studentID string) (StudentSummary, error) {
	var out StudentSummary
	err := c.do(ctx, "/api/attendance/student/{studentId}", http.MethodGet, "/api/attendance/student/"+url.PathEscape(studentID), nil, &out)
	return out, err
}

// FingerprintStatus queries sensor connectivity and template count.
func (c *Client) FingerprintStatus(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, "/api/fingerprints/status", http.MethodGet, "/api/fingerprints/status", nil, &out)
	return out, err
}

// EnrollFingerprint starts a fingerprint enrollment for a student.
func (c *Client) EnrollFingerprint(ctx context.Context, studentID string) (EnrollResponse, error) {
	var out EnrollResponse
	body := map[string]string{"student_id": studentID}
	err := c.do(ctx, "/api/fingerprints/enroll", http.MethodPost, "/api/fingerprints/enroll", body, &out)
	return out, err
}

// RemoveFingerprint deletes a stored template.
func (c *Client) RemoveFingerprint(ctx context.Context, fingerprintID int) (RemoveResponse, error) {
	var out RemoveResponse
	body := map[string]int{"fingerprint_id": fingerprintID}
	err := c.do(ctx, "/api/fingerprints/remove", http.MethodPost, "/api/fingerprints/remove", body, &out)
	return out, err
}


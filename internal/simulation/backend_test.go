package simulation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/apperr"
	"fpconsole/internal/auth"
	"fpconsole/internal/enrollment"
	"fpconsole/internal/logger"
	"fpconsole/internal/removal"
	"fpconsole/internal/sensor"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.InitWithWriter(io.Discard, slog.LevelError)
}

type tokenFunc func(context.Context) (string, error)

func (f tokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

func newClient(t *testing.T, b *Backend, issuer *auth.Issuer) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(b.Router())
	t.Cleanup(srv.Close)
	t.Cleanup(b.Close)
	pair, err := issuer.Issue("admin", "admin@example.com", "admin")
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	return apiclient.New(srv.URL, tokenFunc(func(context.Context) (string, error) {
		return pair.AccessToken, nil
	}), 5*time.Second)
}

func testIssuer() *auth.Issuer {
	return auth.NewIssuer("fpconsole-test", "test-signing-key", time.Hour, 24*time.Hour)
}

func TestEnrollThenStatusCountsOneMoreTemplate(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, CompleteAfter: 20 * time.Millisecond, Seed: true})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	monitor := sensor.NewMonitor(client)
	before := monitor.Refresh(ctx)
	if before.State != sensor.Connected || before.SensorType != SensorType {
		t.Fatalf("initial status = %+v", before)
	}

	signal := enrollment.Chain{
		enrollment.DefaultScript(time.Millisecond),
		enrollment.PollingSignal{Students: client, Interval: 5 * time.Millisecond},
	}
	w := enrollment.NewWorkflow(client, signal, enrollment.Options{Timeout: 2 * time.Second})
	a, err := w.Submit(ctx, "S004")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if a.State != enrollment.Pending || a.StudentName != "Emily Davis" || a.FingerprintID != 4 {
		t.Fatalf("pending attempt = %+v", a)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	final, err := w.Wait(waitCtx)
	if err != nil || final.State != enrollment.Succeeded {
		t.Fatalf("final = %+v (%v)", final, err)
	}

	after := monitor.Refresh(ctx)
	if after.TemplateCount != before.TemplateCount+1 {
		t.Fatalf("template_count %d -> %d, want +1", before.TemplateCount, after.TemplateCount)
	}
}

func TestEnrollAlreadyEnrolledConflict(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, Seed: true})
	client := newClient(t, b, issuer)

	_, err := client.EnrollFingerprint(context.Background(), "S001")
	var aerr *apperr.APIError
	if !errors.As(err, &aerr) || aerr.Status != http.StatusConflict || aerr.Detail != "student already enrolled" {
		t.Fatalf("EnrollFingerprint() error = %v", err)
	}
}

func TestEnrollUnknownStudent(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, Seed: true})
	client := newClient(t, b, issuer)

	_, err := client.EnrollFingerprint(context.Background(), "nope")
	var aerr *apperr.APIError
	if !errors.As(err, &aerr) || aerr.Status != http.StatusNotFound {
		t.Fatalf("EnrollFingerprint() error = %v", err)
	}
}

func TestEnrollAssignsSmallestFreeID(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, CompleteAfter: time.Hour, Seed: true})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	if _, err := client.RemoveFingerprint(ctx, 2); err != nil {
		t.Fatalf("RemoveFingerprint() failed: %v", err)
	}
	first, err := client.EnrollFingerprint(ctx, "S004")
	if err != nil {
		t.Fatalf("EnrollFingerprint() failed: %v", err)
	}
	second, err := client.EnrollFingerprint(ctx, "S005")
	if err != nil {
		t.Fatalf("EnrollFingerprint() failed: %v", err)
	}
	if first.Data.FingerprintID != 2 || second.Data.FingerprintID != 4 {
		t.Fatalf("assigned ids = %d, %d; want 2, 4", first.Data.FingerprintID, second.Data.FingerprintID)
	}
	if _, err := client.EnrollFingerprint(ctx, "S004"); err == nil {
		t.Fatalf("second enrollment for a pending student should be rejected")
	}
}

func TestRemoveThroughWorkflow(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, Seed: true})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	monitor := sensor.NewMonitor(client)
	refreshes := 0
	inv := invalidatorFunc(func(ctx context.Context) {
		refreshes++
		monitor.Refresh(ctx)
	})
	w := removal.NewWorkflow(client, removal.Options{Invalidator: inv})

	res, err := w.Submit(ctx, 3, removal.Answered(true))
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if res.Outcome != removal.Removed || res.Message != "Fingerprint ID 3 removed successfully" {
		t.Fatalf("result = %+v", res)
	}
	if refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", refreshes)
	}
	if st, _ := monitor.Last(); st.TemplateCount != 2 {
		t.Fatalf("template_count = %d, want 2", st.TemplateCount)
	}

	res, err = w.Submit(ctx, 3, removal.Answered(true))
	if err != nil || res.Outcome != removal.Failed || res.Error != "No student found with this fingerprint ID" {
		t.Fatalf("second removal = %+v (%v)", res, err)
	}
}

type invalidatorFunc func(ctx context.Context)

func (f invalidatorFunc) Invalidate(ctx context.Context) { f(ctx) }

func TestSensorStates(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	b.SetSensor(apiclient.SensorDisconnected, "")
	if st := sensor.NewMonitor(client).Refresh(ctx); st.State != sensor.Disconnected {
		t.Fatalf("status = %+v", st)
	}
	b.SetSensor(apiclient.SensorError, "checksum mismatch")
	if st := sensor.NewMonitor(client).Refresh(ctx); st.State != sensor.Error || st.Message != "Error checking fingerprint sensor: checksum mismatch" {
		t.Fatalf("status = %+v", st)
	}
	if _, err := client.EnrollFingerprint(ctx, "S001"); err == nil {
		t.Fatalf("enrollment with the sensor offline should fail")
	}
}

func TestRequiresBearerToken(t *testing.T) {
	b := New(Options{Issuer: testIssuer(), Seed: true})
	srv := httptest.NewServer(b.Router())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/students")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestReportsAndManualAttendance(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, Seed: true})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	day := time.Date(2020, 1, 6, 9, 5, 0, 0, time.UTC)
	res, err := client.RecordManualAttendance(ctx, apiclient.ManualAttendance{StudentID: "S005", ClassID: "C001", Timestamp: day})
	if err != nil {
		t.Fatalf("RecordManualAttendance() failed: %v", err)
	}
	if res.StudentName != "Michael Wilson" || res.ClassName != "Mathematics 101" {
		t.Fatalf("result = %+v", res)
	}

	report, err := client.ClassReport(ctx, "C001", day)
	if err != nil {
		t.Fatalf("ClassReport() failed: %v", err)
	}
	if report.TotalStudents != 5 || report.PresentStudents != 1 || report.AbsentStudents != 4 {
		t.Fatalf("report = %+v", report)
	}

	_, err = client.RecordManualAttendance(ctx, apiclient.ManualAttendance{StudentID: "S005", ClassID: "C002", Timestamp: day})
	var aerr *apperr.APIError
	if !errors.As(err, &aerr) || aerr.Status != http.StatusBadRequest {
		t.Fatalf("attendance for a class the student is not in: %v", err)
	}

	sum, err := client.StudentSummary(ctx, "S005")
	if err != nil {
		t.Fatalf("StudentSummary() failed: %v", err)
	}
	if sum.TotalClasses != 2 || sum.ClassesAttended != 1 || sum.AttendanceByClass["Mathematics 101"].Attended != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestStudentAndClassCRUD(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	sid, err := client.CreateStudent(ctx, apiclient.StudentInput{Name: "Ada Lovelace"})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	cid, err := client.CreateClass(ctx, apiclient.ClassInput{ClassName: "Logic", Lecturer: "Dr. Boole"})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	if err := client.EnrollInClass(ctx, cid, sid); err != nil {
		t.Fatalf("EnrollInClass() failed: %v", err)
	}
	if err := client.UpdateStudent(ctx, sid, apiclient.StudentInput{Name: "Ada King"}); err != nil {
		t.Fatalf("UpdateStudent() failed: %v", err)
	}
	s, err := client.GetStudent(ctx, sid)
	if err != nil || s.Name != "Ada King" || len(s.EnrolledClasses) != 1 {
		t.Fatalf("GetStudent() = %+v, %v", s, err)
	}
	if err := client.DeleteClass(ctx, cid); err != nil {
		t.Fatalf("DeleteClass() failed: %v", err)
	}
	if err := client.DeleteStudent(ctx, sid); err != nil {
		t.Fatalf("DeleteStudent() failed: %v", err)
	}
	students, err := client.ListStudents(ctx)
	if err != nil || len(students) != 0 {
		t.Fatalf("ListStudents() = %v, %v", students, err)
	}
}

func TestFingerprintScanMarksPresent(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, Seed: true})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	owner, err := client.StudentByFingerprint(ctx, 2)
	if err != nil || owner.ID != "S002" || owner.Name != "Jane Smith" {
		t.Fatalf("StudentByFingerprint(2) = %+v, %v", owner, err)
	}

	monday := time.Date(2020, 1, 6, 10, 0, 0, 0, time.UTC)
	res, err := client.RecordAttendanceByFingerprint(ctx, 2, monday)
	if err != nil {
		t.Fatalf("RecordAttendanceByFingerprint() failed: %v", err)
	}
	if res.ClassID != "C001" || res.Name != "Jane Smith" || res.Timestamp != "2020-01-06 10:00:00" {
		t.Fatalf("scan result = %+v", res)
	}

	report, err := client.ClassReport(ctx, "C001", monday)
	if err != nil {
		t.Fatalf("ClassReport() failed: %v", err)
	}
	status := ""
	for _, e := range report.AttendanceList {
		if e.Name == "Jane Smith" {
			status = e.Status
		}
	}
	if status != "present" || report.PresentStudents != 1 {
		t.Fatalf("report after scan = %+v", report)
	}

	var aerr *apperr.APIError
	_, err = client.RecordAttendanceByFingerprint(ctx, 2, monday.Add(2*time.Hour))
	if !errors.As(err, &aerr) || aerr.Status != http.StatusBadRequest || aerr.Detail != errNoClassNow.Error() {
		t.Fatalf("scan outside any class: %v", err)
	}
	_, err = client.RecordAttendanceByFingerprint(ctx, 42, monday)
	if !errors.As(err, &aerr) || aerr.Status != http.StatusBadRequest {
		t.Fatalf("scan of an unknown template: %v", err)
	}
	_, err = client.StudentByFingerprint(ctx, 42)
	if !errors.As(err, &aerr) || aerr.Status != http.StatusNotFound {
		t.Fatalf("StudentByFingerprint(42): %v", err)
	}
}

func TestUpdateStudentMovesTemplate(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, CompleteAfter: time.Hour, Seed: true})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	if err := client.UpdateStudent(ctx, "S004", apiclient.StudentInput{Name: "Emily Davis", FingerprintID: 9}); err != nil {
		t.Fatalf("UpdateStudent(S004) failed: %v", err)
	}
	if got := b.TemplateCount(); got != 4 {
		t.Fatalf("template count after assigning 9 = %d, want 4", got)
	}
	if err := client.UpdateStudent(ctx, "S001", apiclient.StudentInput{Name: "John Doe", FingerprintID: 7}); err != nil {
		t.Fatalf("UpdateStudent(S001) failed: %v", err)
	}
	if got := b.TemplateCount(); got != 4 {
		t.Fatalf("template count after moving 1 -> 7 = %d, want 4", got)
	}

	// id 1 is free again and gets reserved by the next enrollment.
	resp, err := client.EnrollFingerprint(ctx, "S005")
	if err != nil || resp.Data == nil || resp.Data.FingerprintID != 1 {
		t.Fatalf("EnrollFingerprint(S005) = %+v, %v", resp, err)
	}
	var aerr *apperr.APIError
	err = client.UpdateStudent(ctx, "S004", apiclient.StudentInput{Name: "Emily Davis", FingerprintID: 1})
	if !errors.As(err, &aerr) || aerr.Status != http.StatusBadRequest {
		t.Fatalf("assigning a reserved id: %v", err)
	}
	err = client.UpdateStudent(ctx, "S005", apiclient.StudentInput{Name: "Michael Wilson", FingerprintID: 11})
	if !errors.As(err, &aerr) || aerr.Status != http.StatusConflict {
		t.Fatalf("changing the id of a student being enrolled: %v", err)
	}
	if got := b.TemplateCount(); got != 4 {
		t.Fatalf("template count after rejected updates = %d, want 4", got)
	}
}

func TestSnapshotsSurviveDeletes(t *testing.T) {
	b := New(Options{Seed: true})
	defer b.Close()
	router := b.Router()

	b.mu.Lock()
	class := snapshotClass(b.classes["C001"])
	student := snapshotStudent(b.students["S003"])
	b.mu.Unlock()

	for _, path := range []string{"/api/students/S002", "/api/classes/C002"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("DELETE %s = %d %s", path, w.Code, w.Body.String())
		}
	}

	if want := []string{"S001", "S002", "S003", "S004", "S005"}; !slices.Equal(class.EnrolledStudents, want) {
		t.Fatalf("class snapshot changed: %v", class.EnrolledStudents)
	}
	if want := []string{"C001", "C002", "C003"}; !slices.Equal(student.EnrolledClasses, want) {
		t.Fatalf("student snapshot changed: %v", student.EnrolledClasses)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if got := b.students["S003"].EnrolledClasses; !slices.Equal(got, []string{"C001", "C003"}) {
		t.Fatalf("S003 classes after delete = %v", got)
	}
}

func TestConcurrentListsAndDeletes(t *testing.T) {
	issuer := testIssuer()
	b := New(Options{Issuer: issuer, Seed: true})
	client := newClient(t, b, issuer)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = client.ListStudents(ctx)
		}()
		go func() {
			defer wg.Done()
			_, _ = client.ListClasses(ctx)
		}()
	}
	for _, id := range []string{"C001", "C002", "C003"} {
		if err := client.DeleteClass(ctx, id); err != nil {
			t.Fatalf("DeleteClass(%s) failed: %v", id, err)
		}
	}
	wg.Wait()
}

package views

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/logger"
)

func init() {
	logger.InitWithWriter(io.Discard, slog.LevelError)
}

type fakeBackend struct {
	students    []apiclient.Student
	classes     []apiclient.Class
	studentsErr error
	classesErr  error
	listCalls   int
}

func (f *fakeBackend) ListStudents(context.Context) ([]apiclient.Student, error) {
	f.listCalls++
	return f.students, f.studentsErr
}

func (f *fakeBackend) ListClasses(context.Context) ([]apiclient.Class, error) {
	return f.classes, f.classesErr
}

var sample = []apiclient.Student{
	{ID: "S1", Name: "Emily Davis", FingerprintID: 4},
	{ID: "S2", Name: "Jane Smith", FingerprintID: 2},
	{ID: "S3", Name: "John Doe"},
}

func TestBuildOptions(t *testing.T) {
	opts := BuildOptions(sample)
	if len(opts.Students) != 3 {
		t.Fatalf("students = %v", opts.Students)
	}
	want := []Option{{Value: "2", Label: "2 - Jane Smith"}, {Value: "4", Label: "4 - Emily Davis"}}
	if len(opts.Fingerprints) != len(want) {
		t.Fatalf("fingerprints = %v", opts.Fingerprints)
	}
	for i := range want {
		if opts.Fingerprints[i] != want[i] {
			t.Fatalf("fingerprints = %v, want %v", opts.Fingerprints, want)
		}
	}
}

func TestRefresherInvalidate(t *testing.T) {
	api := &fakeBackend{students: sample}
	sensorCalls := 0
	r := NewRefresher(api, func(context.Context) { sensorCalls++ })

	r.Invalidate(context.Background())
	opts, err := r.Options()
	if err != nil || len(opts.Fingerprints) != 2 {
		t.Fatalf("Options() = %v, %v", opts, err)
	}
	if sensorCalls != 1 || api.listCalls != 1 {
		t.Fatalf("sensor refreshes = %d, list calls = %d", sensorCalls, api.listCalls)
	}
}

func TestRefresherKeepsOptionsOnFailure(t *testing.T) {
	api := &fakeBackend{students: sample}
	r := NewRefresher(api, nil)
	if _, err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	api.studentsErr = errors.New("backend down")
	r.Invalidate(context.Background())
	opts, err := r.Options()
	if err == nil || len(opts.Students) != 3 {
		t.Fatalf("Options() = %v, %v", opts, err)
	}
}

func TestLoadDashboard(t *testing.T) {
	monday := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	api := &fakeBackend{
		students: sample,
		classes: []apiclient.Class{
			{ID: "C1", ClassName: "Physics", Lecturer: "Dr. Brown", Schedules: []apiclient.Schedule{
				{DayOfWeek: "Monday", StartTime: "13:00", EndTime: "14:30", RoomNumber: "B2"},
				{DayOfWeek: "Wednesday", StartTime: "09:00", EndTime: "10:30", RoomNumber: "B2"},
			}},
			{ID: "C2", ClassName: "Mathematics", Lecturer: "Dr. Green", Schedules: []apiclient.Schedule{
				{DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:30", RoomNumber: "A1"},
			}},
		},
	}
	d, err := LoadDashboard(context.Background(), api, monday)
	if err != nil {
		t.Fatalf("LoadDashboard() failed: %v", err)
	}
	if d.TotalStudents != 3 || d.TotalClasses != 2 || d.EnrolledPrints != 2 || d.Day != "Monday" {
		t.Fatalf("dashboard = %+v", d)
	}
	if len(d.TodaysClasses) != 2 || d.TodaysClasses[0].ClassName != "Mathematics" || d.TodaysClasses[1].RoomNumber != "B2" {
		t.Fatalf("today = %+v", d.TodaysClasses)
	}
}

func TestLoadDashboardFailsWhole(t *testing.T) {
	api := &fakeBackend{students: sample, classesErr: errors.New("classes unavailable")}
	if _, err := LoadDashboard(context.Background(), api, time.Now()); err == nil {
		t.Fatalf("LoadDashboard() should fail when one region fails")
	}
}

func TestTodaysClassesEmpty(t *testing.T) {
	if got := TodaysClasses(nil, time.Sunday); got == nil || len(got) != 0 {
		t.Fatalf("TodaysClasses(nil) = %#v", got)
	}
}

package views

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"fpconsole/internal/apiclient"
)

// ClassLister lists classes.
type ClassLister interface {
	ListClasses(ctx context.Context) ([]apiclient.Class, error)
}

// Backend is what the dashboard reads.
type Backend interface {
	StudentLister
	ClassLister
}

// ScheduledClass is one class meeting on the dashboard day.
type ScheduledClass struct {
	ClassID    string `json:"class_id"`
	ClassName  string `json:"class_name"`
	Lecturer   string `json:"lecturer"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	RoomNumber string `json:"room_number"`
}

// Dashboard is the landing screen.
type Dashboard struct {
	TotalStudents  int              `json:"total_students"`
	TotalClasses   int              `json:"total_classes"`
	EnrolledPrints int              `json:"enrolled_fingerprints"`
	TodaysClasses  []ScheduledClass `json:"todays_classes"`
	Day            string           `json:"day"`
}

// LoadDashboard fetches students and classes concurrently. Either failure
// fails the whole load so no half-filled dashboard is shown.
func LoadDashboard(ctx context.Context, api Backend, now time.Time) (Dashboard, error) {
	var (
		students []apiclient.Student
		classes  []apiclient.Class
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = api.ListStudents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		classes, err = api.ListClasses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		TotalStudents: len(students),
		TotalClasses:  len(classes),
		Day:           now.Weekday().String(),
		TodaysClasses: TodaysClasses(classes, now.Weekday()),
	}
	for _, s := range students {
		if s.Enrolled() {
			d.EnrolledPrints++
		}
	}
	return d, nil
}

// TodaysClasses lists the meetings on day, ordered by start time.
func TodaysClasses(classes []apiclient.Class, day time.Weekday) []ScheduledClass {
	out := []ScheduledClass{}
	for _, c := range classes {
		for _, s := range c.Schedules {
			if s.DayOfWeek != day.String() {
				continue
			}
			out = append(out, ScheduledClass{
				ClassID:    c.ID,
				ClassName:  c.ClassName,
				Lecturer:   c.Lecturer,
				StartTime:  s.StartTime,
				EndTime:    s.EndTime,
				RoomNumber: s.RoomNumber,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

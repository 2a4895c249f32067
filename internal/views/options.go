// Package views builds the data regions of the console screens: dropdowns,
// the dashboard, and the refresh that follows a fingerprint change.
package views

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/logger"
)

// Option is one dropdown entry.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options holds the dropdowns of the fingerprint screen.
type Options struct {
	Students     []Option `json:"students"`
	Fingerprints []Option `json:"fingerprints"`
}

// FingerprintLabel is the text of an enrolled fingerprint entry.
func FingerprintLabel(s apiclient.Student) string {
	return fmt.Sprintf("%d - %s", s.FingerprintID, s.Name)
}

// BuildOptions projects students into the two dropdowns. Only students with a
// stored template appear in the fingerprint list, ordered by id.
func BuildOptions(students []apiclient.Student) Options {
	opts := Options{
		Students:     make([]Option, 0, len(students)),
		Fingerprints: []Option{},
	}
	enrolled := make([]apiclient.Student, 0, len(students))
	for _, s := range students {
		opts.Students = append(opts.Students, Option{Value: s.ID, Label: s.Name})
		if s.Enrolled() {
			enrolled = append(enrolled, s)
		}
	}
	sort.Slice(enrolled, func(i, j int) bool { return enrolled[i].FingerprintID < enrolled[j].FingerprintID })
	for _, s := range enrolled {
		opts.Fingerprints = append(opts.Fingerprints, Option{Value: fmt.Sprint(s.FingerprintID), Label: FingerprintLabel(s)})
	}
	return opts
}

// StudentLister lists students.
type StudentLister interface {
	ListStudents(ctx context.Context) ([]apiclient.Student, error)
}

// Refresher re-fetches the regions that depend on enrolled fingerprints. It
// satisfies the Invalidator of both workflows.
type Refresher struct {
	students StudentLister
	sensor   func(ctx context.Context)

	mu      sync.RWMutex
	options Options
	err     error
}

// NewRefresher creates a Refresher. sensor may be nil.
func NewRefresher(students StudentLister, sensor func(ctx context.Context)) *Refresher {
	return &Refresher{students: students, sensor: sensor}
}

// Invalidate re-fetches the dropdowns and the sensor status. Each region is
// replaced whole; a failed fetch keeps the previous options and records the error.
func (r *Refresher) Invalidate(ctx context.Context) {
	if _, err := r.Reload(ctx); err != nil {
		logger.LogWarn("reload fingerprint options", "error", err)
	}
	if r.sensor != nil {
		r.sensor(ctx)
	}
}

// Reload re-fetches the dropdowns only.
func (r *Refresher) Reload(ctx context.Context) (Options, error) {
	students, err := r.students.ListStudents(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.err = err
		return r.options, err
	}
	r.options = BuildOptions(students)
	r.err = nil
	return r.options, nil
}

// Options returns the last loaded dropdowns and the error of the last reload.
func (r *Refresher) Options() (Options, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.options, r.err
}

package enrollment

import (
	"context"
	"errors"
	"time"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/apperr"
	"fpconsole/internal/logger"
)

// CompletionSignal observes the out-of-band completion of a pending attempt.
// Await returns nil once the template is stored, or an error when the
// enrollment failed. progress may be called with scan stages while waiting.
// Implementations must return promptly when ctx is done.
type CompletionSignal interface {
	Await(ctx context.Context, a Attempt, progress func(State)) error
}

// StudentGetter reads one student record.
type StudentGetter interface {
	GetStudent(ctx context.Context, id string) (apiclient.Student, error)
}

// PollingSignal polls the student record until the assigned fingerprint id
// shows up on it.
type PollingSignal struct {
	Students StudentGetter
	Interval time.Duration
}

// Await implements CompletionSignal.
func (p PollingSignal) Await(ctx context.Context, a Attempt, _ func(State)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		s, err := p.Students.GetStudent(ctx, a.StudentID)
		if err != nil {
			var aerr *apperr.APIError
			if errors.As(err, &aerr) && aerr.Status >= 400 && aerr.Status < 500 {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.LogWarn("enrollment poll failed", "attempt", a.ID, "error", err)
			continue
		}
		if s.FingerprintID == a.FingerprintID {
			return nil
		}
	}
}

// Step is one entry of a scripted enrollment: wait Delay, then report Stage
// if it is set.
type Step struct {
	Delay time.Duration
	Stage State
}

// ScriptedSignal plays a fixed timed script. It stands in for the sensor in
// simulation mode and in tests.
type ScriptedSignal struct {
	Steps []Step
	// Fail, when set, is returned after the script has played.
	Fail error
}

// DefaultScript mirrors the sensor prompts: place finger, first scan done,
// place the same finger again, stored.
func DefaultScript(stepDelay time.Duration) ScriptedSignal {
	return ScriptedSignal{Steps: []Step{
		{Stage: AwaitingFirstScan},
		{Delay: stepDelay, Stage: AwaitingSecondScan},
		{Delay: 2 * stepDelay},
	}}
}

// Await implements CompletionSignal.
func (s ScriptedSignal) Await(ctx context.Context, _ Attempt, progress func(State)) error {
	for _, step := range s.Steps {
		if step.Delay > 0 {
			t := time.NewTimer(step.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if step.Stage != "" && progress != nil {
			progress(step.Stage)
		}
	}
	return s.Fail
}

// Chain runs signals one after another; the first error wins.
type Chain []CompletionSignal

// Await implements CompletionSignal.
func (c Chain) Await(ctx context.Context, a Attempt, progress func(State)) error {
	for _, sig := range c {
		if err := sig.Await(ctx, a, progress); err != nil {
			return err
		}
	}
	return nil
}

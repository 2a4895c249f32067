// Package enrollment drives fingerprint enrollment attempts: submit, wait for
// the sensor to store the template, and report the outcome.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/apperr"
	"fpconsole/internal/logger"
	"fpconsole/internal/metrics"
	"fpconsole/internal/queue"
)

// Enroller starts an enrollment on the backend.
type Enroller interface {
	EnrollFingerprint(ctx context.Context, studentID string) (apiclient.EnrollResponse, error)
}

// Invalidator refreshes the views that depend on enrolled fingerprints.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Options tunes a Workflow. Zero values are usable.
type Options struct {
	// Timeout bounds the wait for completion once the attempt is pending.
	Timeout     time.Duration
	Invalidator Invalidator
	Events      queue.Publisher
	// Operator is recorded on published events.
	Operator func() string
}

// Event is the body of enrollment events on the queue.
type Event struct {
	Attempt
	Operator string `json:"operator,omitempty"`
}

// Workflow owns the enrollment attempt of one console session. At most one
// attempt is active at a time.
type Workflow struct {
	api    Enroller
	signal CompletionSignal
	opts   Options
	now    func() time.Time

	mu        sync.Mutex
	current   Attempt
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	observers []func(Attempt)
}

// NewWorkflow creates an idle workflow.
func NewWorkflow(api Enroller, signal CompletionSignal, opts Options) *Workflow {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Events == nil {
		opts.Events = queue.Discard{}
	}
	return &Workflow{
		api:     api,
		signal:  signal,
		opts:    opts,
		now:     time.Now,
		current: Attempt{State: Idle},
	}
}

// OnTransition registers fn to be called with every new attempt state.
// fn runs with the workflow locked and must not call back into it.
func (w *Workflow) OnTransition(fn func(Attempt)) {
	w.mu.Lock()
	w.observers = append(w.observers, fn)
	w.mu.Unlock()
}

// Current returns a snapshot of the attempt.
func (w *Workflow) Current() Attempt {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Submit starts an attempt for studentID. It returns a ValidationError when
// no student is given or another attempt is active; the active attempt is not
// touched. Backend failures do not produce an error: they are recorded on the
// returned attempt, which is then Failed.
func (w *Workflow) Submit(ctx context.Context, studentID string) (Attempt, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return w.Current(), apperr.Validation("student_id", "Please select a student")
	}

	w.mu.Lock()
	if w.current.Active() {
		active := w.current
		w.mu.Unlock()
		return active, apperr.Validation("student_id", "An enrollment is already in progress for student %s", active.StudentID)
	}
	now := w.now()
	w.gen++
	gen := w.gen
	w.finish()
	w.done = make(chan struct{})
	w.current = Attempt{
		ID:        uuid.NewString(),
		StudentID: studentID,
		State:     Submitted,
		StartedAt: now,
		UpdatedAt: now,
	}
	w.emit()
	w.mu.Unlock()

	logger.LogInfo("enrollment submitted", "student_id", studentID)
	resp, err := w.api.EnrollFingerprint(ctx, studentID)
	if err != nil {
		return w.fail(gen, err), nil
	}
	if resp.Status != apiclient.EnrollStatusPending || resp.Data == nil || resp.Data.FingerprintID <= 0 {
		msg := resp.Message
		if msg == "" {
			msg = "no fingerprint id assigned"
		}
		return w.fail(gen, fmt.Errorf("unexpected response: %s", msg)), nil
	}

	w.mu.Lock()
	if gen != w.gen {
		snapshot := w.current
		w.mu.Unlock()
		return snapshot, nil
	}
	w.current.State = Pending
	w.current.FingerprintID = resp.Data.FingerprintID
	w.current.StudentName = resp.Data.StudentName
	w.current.Message = resp.Message
	w.current.UpdatedAt = w.now()
	waitCtx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
	w.cancel = cancel
	w.emit()
	snapshot := w.current
	w.mu.Unlock()

	go w.await(waitCtx, cancel, gen, snapshot)
	return snapshot, nil
}

// Wait blocks until the current attempt leaves the active states or ctx is
// done. After a success it also waits for the Invalidator to finish.
func (w *Workflow) Wait(ctx context.Context) (Attempt, error) {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return w.Current(), ctx.Err()
		}
	}
	return w.Current(), nil
}

// Discard drops the attempt, as when the operator navigates away. No
// cancellation call is made to the backend; a template the sensor stores
// afterwards shows up on the next refresh.
func (w *Workflow) Discard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current.State == Idle {
		return
	}
	if w.current.Active() {
		logger.LogInfo("enrollment discarded", "attempt", w.current.ID, "state", w.current.State)
	}
	w.gen++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.current = Attempt{State: Idle, UpdatedAt: w.now()}
	w.finish()
	w.emit()
}

func (w *Workflow) await(ctx context.Context, cancel context.CancelFunc, gen uint64, a Attempt) {
	defer cancel()
	err := w.signal.Await(ctx, a, func(s State) { w.advance(gen, s) })
	switch {
	case err == nil:
		w.succeed(gen)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		w.fail(gen, apperr.ErrTimeout)
	case errors.Is(ctx.Err(), context.Canceled):
		// discarded
	default:
		w.fail(gen, err)
	}
}

func (w *Workflow) advance(gen uint64, s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		return
	}
	switch {
	case s == AwaitingFirstScan && w.current.State == Pending,
		s == AwaitingSecondScan && (w.current.State == Pending || w.current.State == AwaitingFirstScan):
		w.current.State = s
		w.current.UpdatedAt = w.now()
		w.emit()
	}
}

func (w *Workflow) succeed(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || !w.current.Active() {
		w.mu.Unlock()
		return
	}
	if w.current.FingerprintID <= 0 {
		w.mu.Unlock()
		w.fail(gen, errors.New("enrollment completed without a fingerprint id"))
		return
	}
	w.current.State = Succeeded
	w.current.UpdatedAt = w.now()
	w.cancel = nil
	w.emit()
	snapshot := w.current
	done := w.done
	w.mu.Unlock()

	metrics.EnrollmentOutcomes.WithLabelValues(string(Succeeded)).Inc()
	logger.LogInfo("fingerprint enrolled", "student_id", snapshot.StudentID, "fingerprint_id", snapshot.FingerprintID)
	w.publish(queue.EnrollmentSucceeded, snapshot)

	if w.opts.Invalidator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		w.opts.Invalidator.Invalidate(ctx)
		cancel()
	}

	// Waiters are released once the views show the new template. A Discard
	// or a new Submit in the meantime has already closed done.
	w.mu.Lock()
	if w.done == done {
		w.finish()
	}
	w.mu.Unlock()
}

func (w *Workflow) fail(gen uint64, err error) Attempt {
	w.mu.Lock()
	if gen != w.gen || !w.current.Active() {
		snapshot := w.current
		w.mu.Unlock()
		return snapshot
	}
	w.current.State = Failed
	w.current.Error = apperr.Message(err)
	w.current.UpdatedAt = w.now()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.finish()
	w.emit()
	snapshot := w.current
	w.mu.Unlock()

	metrics.EnrollmentOutcomes.WithLabelValues(string(Failed)).Inc()
	logger.LogError("fingerprint enrollment failed", err, "student_id", snapshot.StudentID)
	w.publish(queue.EnrollmentFailed, snapshot)
	return snapshot
}

// finish releases Wait callers. Callers hold w.mu.
func (w *Workflow) finish() {
	if w.done != nil {
		close(w.done)
		w.done = nil
	}
}

// emit notifies observers. Callers hold w.mu.
func (w *Workflow) emit() {
	for _, fn := range w.observers {
		fn(w.current)
	}
}

func (w *Workflow) publish(eventType string, a Attempt) {
	evt := Event{Attempt: a}
	if w.opts.Operator != nil {
		evt.Operator = w.opts.Operator()
	}
	msg, err := queue.NewMessage(eventType, evt)
	if err != nil {
		logger.LogError("encode enrollment event", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.opts.Events.Publish(ctx, msg); err != nil {
		logger.LogError("publish enrollment event", err, "type", eventType)
	}
}

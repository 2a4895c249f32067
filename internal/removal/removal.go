// Package removal deletes a stored fingerprint template after the operator
// confirms it.
package removal

import (
	"context"
	"fmt"
	"time"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/apperr"
	"fpconsole/internal/logger"
	"fpconsole/internal/metrics"
	"fpconsole/internal/queue"
	"fpconsole/internal/render"
)

// Remover sends the removal request.
type Remover interface {
	RemoveFingerprint(ctx context.Context, fingerprintID int) (apiclient.RemoveResponse, error)
}

// Invalidator refreshes the views that depend on enrolled fingerprints.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Confirmer blocks until the operator accepts or declines prompt.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Answered is a Confirmer whose answer was collected beforehand, as with the
// confirmed flag of a form post.
type Answered bool

// Confirm implements Confirmer.
func (a Answered) Confirm(context.Context, string) (bool, error) {
	return bool(a), nil
}

// Request is one removal. It is never sent unless Confirmed.
type Request struct {
	FingerprintID int  `json:"fingerprint_id"`
	Confirmed     bool `json:"confirmed"`
}

// Outcome of a removal.
type Outcome string

const (
	Removed   Outcome = "removed"
	Cancelled Outcome = "cancelled"
	Failed    Outcome = "failed"
)

// Result is what the operator sees after a removal.
type Result struct {
	FingerprintID int     `json:"fingerprint_id"`
	Outcome       Outcome `json:"outcome"`
	Message       string  `json:"message,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Options tunes a Workflow.
type Options struct {
	Invalidator Invalidator
	Events      queue.Publisher
	Operator    func() string
}

// Workflow runs confirm, request, result.
type Workflow struct {
	api  Remover
	opts Options
}

// NewWorkflow creates a removal workflow.
func NewWorkflow(api Remover, opts Options) *Workflow {
	if opts.Events == nil {
		opts.Events = queue.Discard{}
	}
	return &Workflow{api: api, opts: opts}
}

// ConfirmPrompt is the question put to the operator.
func ConfirmPrompt(fingerprintID int) string {
	return fmt.Sprintf("Are you sure you want to remove fingerprint ID %d?", fingerprintID)
}

// Submit asks confirm and, if accepted, sends the removal. A declined prompt
// yields a Cancelled result without any network call.
func (w *Workflow) Submit(ctx context.Context, fingerprintID int, confirm Confirmer) (Result, error) {
	if fingerprintID <= 0 {
		return Result{}, apperr.Validation("fingerprint_id", "Please select a fingerprint ID")
	}
	ok, err := confirm.Confirm(ctx, ConfirmPrompt(fingerprintID))
	if err != nil {
		return Result{}, fmt.Errorf("confirm removal: %w", err)
	}
	if !ok {
		metrics.RemovalOutcomes.WithLabelValues(string(Cancelled)).Inc()
		return Result{FingerprintID: fingerprintID, Outcome: Cancelled}, nil
	}
	return w.Send(ctx, Request{FingerprintID: fingerprintID, Confirmed: true})
}

// Send issues the request. Unconfirmed or invalid requests are rejected with
// a ValidationError. A backend failure is reported on the result, not as an
// error, and leaves the dependent views alone.
func (w *Workflow) Send(ctx context.Context, req Request) (Result, error) {
	if req.FingerprintID <= 0 {
		return Result{}, apperr.Validation("fingerprint_id", "Please select a fingerprint ID")
	}
	if !req.Confirmed {
		return Result{}, apperr.Validation("confirmed", "Removal of fingerprint ID %d was not confirmed", req.FingerprintID)
	}

	res := Result{FingerprintID: req.FingerprintID}
	resp, err := w.api.RemoveFingerprint(ctx, req.FingerprintID)
	if err != nil {
		res.Outcome = Failed
		res.Error = apperr.Message(err)
		metrics.RemovalOutcomes.WithLabelValues(string(Failed)).Inc()
		logger.LogError("fingerprint removal failed", err, "fingerprint_id", req.FingerprintID)
		w.publish(queue.RemovalFailed, res)
		return res, nil
	}

	res.Outcome = Removed
	res.Message = resp.Message
	if res.Message == "" {
		res.Message = fmt.Sprintf("Fingerprint ID %d removed successfully", req.FingerprintID)
	}
	metrics.RemovalOutcomes.WithLabelValues(string(Removed)).Inc()
	logger.LogInfo("fingerprint removed", "fingerprint_id", req.FingerprintID)
	w.publish(queue.RemovalSucceeded, res)

	if w.opts.Invalidator != nil {
		w.opts.Invalidator.Invalidate(ctx)
	}
	return res, nil
}

// Event is the body of removal events on the queue.
type Event struct {
	Result
	Operator string `json:"operator,omitempty"`
}

func (w *Workflow) publish(eventType string, res Result) {
	evt := Event{Result: res}
	if w.opts.Operator != nil {
		evt.Operator = w.opts.Operator()
	}
	msg, err := queue.NewMessage(eventType, evt)
	if err != nil {
		logger.LogError("encode removal event", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.opts.Events.Publish(ctx, msg); err != nil {
		logger.LogError("publish removal event", err, "type", eventType)
	}
}

// Render projects a result onto the status box under the remove form.
func Render(res Result) render.Alert {
	switch res.Outcome {
	case Removed:
		return render.New(render.Success, res.Message)
	case Failed:
		return render.New(render.Danger, "Failed to remove fingerprint: "+res.Error)
	}
	return render.Alert{}
}

package removal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/apperr"
	"fpconsole/internal/logger"
	"fpconsole/internal/queue"
	"fpconsole/internal/render"
)

func init() {
	logger.InitWithWriter(io.Discard, slog.LevelError)
}

type fakeRemover struct {
	calls []int
	resp  apiclient.RemoveResponse
	err   error
}

func (f *fakeRemover) RemoveFingerprint(_ context.Context, id int) (apiclient.RemoveResponse, error) {
	f.calls = append(f.calls, id)
	return f.resp, f.err
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) { c.n++ }

func TestRemovalConfirmedSuccess(t *testing.T) {
	api := &fakeRemover{resp: apiclient.RemoveResponse{Status: "success", Message: "Fingerprint ID 4 removed successfully"}}
	inv := &countingInvalidator{}
	events := queue.NewInMemory(2)
	w := NewWorkflow(api, Options{Invalidator: inv, Events: events})

	var prompt string
	res, err := w.Submit(context.Background(), 4, ConfirmFunc(func(_ context.Context, p string) (bool, error) {
		prompt = p
		return true, nil
	}))
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if prompt != "Are you sure you want to remove fingerprint ID 4?" {
		t.Fatalf("prompt = %q", prompt)
	}
	if res.Outcome != Removed || res.Message != "Fingerprint ID 4 removed successfully" {
		t.Fatalf("result = %+v", res)
	}
	if len(api.calls) != 1 || api.calls[0] != 4 {
		t.Fatalf("remove calls = %v", api.calls)
	}
	if inv.n != 1 {
		t.Fatalf("Invalidate() calls = %d, want 1", inv.n)
	}
	box := Render(res)
	if box.Level != render.Success || box.Lines[0] != res.Message {
		t.Fatalf("render = %+v", box)
	}
}

func TestRemovalDeclinedSendsNothing(t *testing.T) {
	api := &fakeRemover{}
	inv := &countingInvalidator{}
	w := NewWorkflow(api, Options{Invalidator: inv})

	res, err := w.Submit(context.Background(), 4, Answered(false))
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if res.Outcome != Cancelled || len(api.calls) != 0 || inv.n != 0 {
		t.Fatalf("declined removal: result %+v, calls %v, invalidations %d", res, api.calls, inv.n)
	}
	if !Render(res).Empty() {
		t.Fatalf("cancelled removal should render nothing")
	}
}

func TestRemovalUnconfirmedSendRejected(t *testing.T) {
	api := &fakeRemover{}
	w := NewWorkflow(api, Options{})
	_, err := w.Send(context.Background(), Request{FingerprintID: 4})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Send() error = %v, want ValidationError", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("unconfirmed request reached the backend")
	}
}

func TestRemovalRequiresID(t *testing.T) {
	api := &fakeRemover{}
	w := NewWorkflow(api, Options{})
	_, err := w.Submit(context.Background(), 0, Answered(true))
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) || verr.Field != "fingerprint_id" {
		t.Fatalf("Submit(0) error = %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("invalid id reached the backend")
	}
}

func TestRemovalBackendFailure(t *testing.T) {
	api := &fakeRemover{err: &apperr.APIError{Status: 404, Detail: "Fingerprint ID 9 not found"}}
	inv := &countingInvalidator{}
	w := NewWorkflow(api, Options{Invalidator: inv})

	res, err := w.Submit(context.Background(), 9, Answered(true))
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if res.Outcome != Failed || res.Error != "Fingerprint ID 9 not found" {
		t.Fatalf("result = %+v", res)
	}
	if inv.n != 0 {
		t.Fatalf("failed removal invalidated views")
	}
	if len(api.calls) != 1 {
		t.Fatalf("remove calls = %d, want exactly 1", len(api.calls))
	}
	if box := Render(res); box.Level != render.Danger {
		t.Fatalf("render = %+v", box)
	}
}

func TestRemovalConfirmError(t *testing.T) {
	api := &fakeRemover{}
	w := NewWorkflow(api, Options{})
	_, err := w.Submit(context.Background(), 3, ConfirmFunc(func(ctx context.Context, _ string) (bool, error) {
		return false, context.Canceled
	}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("request sent without an answer")
	}
}

// Package audit records fingerprint workflow outcomes taken from the event
// queue.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fpconsole/internal/enrollment"
	"fpconsole/internal/logger"
	"fpconsole/internal/queue"
	"fpconsole/internal/removal"
)

// Entry is one recorded outcome.
type Entry struct {
	ID            string    `json:"id"`
	EventType     string    `json:"event_type"`
	RefID         string    `json:"ref_id,omitempty"`
	StudentID     string    `json:"student_id,omitempty"`
	FingerprintID int       `json:"fingerprint_id,omitempty"`
	Outcome       string    `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	Operator      string    `json:"operator,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Service turns queue messages into entries.
type Service struct {
	repo *Repository
	now  func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Decode maps a workflow event onto an entry.
func Decode(msg queue.Message) (Entry, error) {
	e := Entry{EventType: msg.Type}
	switch msg.Type {
	case queue.EnrollmentSucceeded, queue.EnrollmentFailed:
		var evt enrollment.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return Entry{}, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		e.RefID = evt.ID
		e.StudentID = evt.StudentID
		e.FingerprintID = evt.FingerprintID
		e.Outcome = string(evt.State)
		e.Detail = evt.Error
		if e.Detail == "" {
			e.Detail = evt.StudentName
		}
		e.Operator = evt.Operator
		e.OccurredAt = evt.UpdatedAt
	case queue.RemovalSucceeded, queue.RemovalFailed:
		var evt removal.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return Entry{}, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		e.FingerprintID = evt.FingerprintID
		e.Outcome = string(evt.Outcome)
		e.Detail = evt.Error
		if e.Detail == "" {
			e.Detail = evt.Message
		}
		e.Operator = evt.Operator
	default:
		return Entry{}, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return e, nil
}

// Handle records one message.
func (s *Service) Handle(ctx context.Context, msg queue.Message) (Entry, error) {
	e, err := Decode(msg)
	if err != nil {
		return Entry{}, err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	e.OccurredAt = e.OccurredAt.UTC()
	return s.repo.InsertEntry(ctx, e)
}

// Run consumes q until ctx is done. Bad messages are logged and skipped.
func (s *Service) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	logger.LogInfo("audit consumer started")
	for msg := range messages {
		e, err := s.Handle(ctx, msg)
		if err != nil {
			logger.LogError("audit entry not recorded", err, "type", msg.Type)
			continue
		}
		logger.LogDebug("audit entry recorded", "id", e.ID, "type", e.EventType)
	}
	logger.LogInfo("audit consumer stopped")
	return nil
}

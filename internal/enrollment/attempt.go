package enrollment

import "time"

// State is the lifecycle state of an enrollment attempt.
type State string

const (
	// Idle means no attempt exists for the session.
	Idle State = "idle"
	// Submitted means the enroll request is in flight.
	Submitted State = "submitted"
	// Pending means the backend accepted the request and assigned an id;
	// the attempt waits for the completion signal.
	Pending State = "pending"
	// AwaitingFirstScan and AwaitingSecondScan are scan stages reported by the
	// completion signal while pending.
	AwaitingFirstScan  State = "awaiting_first_scan"
	AwaitingSecondScan State = "awaiting_second_scan"
	// Succeeded is terminal. The attempt always carries a positive fingerprint id.
	Succeeded State = "succeeded"
	// Failed is terminal. Error holds the message shown to the operator.
	Failed State = "failed"
)

// Active reports whether s blocks another submission.
func (s State) Active() bool {
	switch s {
	case Submitted, Pending, AwaitingFirstScan, AwaitingSecondScan:
		return true
	}
	return false
}

// Terminal reports whether s is Succeeded or Failed.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Attempt is a single fingerprint enrollment.
type Attempt struct {
	ID            string    `json:"id,omitempty"`
	StudentID     string    `json:"student_id,omitempty"`
	StudentName   string    `json:"student_name,omitempty"`
	FingerprintID int       `json:"assigned_fingerprint_id,omitempty"`
	State         State     `json:"status"`
	Message       string    `json:"message,omitempty"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Active reports whether the attempt blocks another submission.
func (a Attempt) Active() bool {
	return a.State.Active()
}

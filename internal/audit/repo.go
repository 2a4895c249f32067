package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fpconsole/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS fingerprint_audit (
	id             TEXT PRIMARY KEY,
	event_type     TEXT NOT NULL,
	ref_id         TEXT NOT NULL DEFAULT '',
	student_id     TEXT NOT NULL DEFAULT '',
	fingerprint_id INTEGER NOT NULL DEFAULT 0,
	outcome        TEXT NOT NULL,
	detail         TEXT NOT NULL DEFAULT '',
	operator       TEXT NOT NULL DEFAULT '',
	occurred_at    TIMESTAMP NOT NULL
)`

// Repository persists audit entries in Postgres or sqlite.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.Client.ExecContext(ctx, schema)
	return err
}

// InsertEntry writes a new entry.
func (r *Repository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO fingerprint_audit (id, event_type, ref_id, student_id, fingerprint_id, outcome, detail, operator, occurred_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`), e.ID, e.EventType, e.RefID, e.StudentID, e.FingerprintID, e.Outcome, e.Detail, e.Operator, e.OccurredAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Filter narrows ListEntries.
type Filter struct {
	StudentID     string
	FingerprintID int
	Limit         int
	Offset        int
}

// ListEntries returns entries newest first.
func (r *Repository) ListEntries(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT id, event_type, ref_id, student_id, fingerprint_id, outcome, detail, operator, occurred_at FROM fingerprint_audit`
	args := []any{}
	clauses := []string{}
	if f.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.FingerprintID > 0 {
		clauses = append(clauses, "fingerprint_id = ?")
		args = append(args, f.FingerprintID)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY occurred_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventType, &e.RefID, &e.StudentID, &e.FingerprintID, &e.Outcome, &e.Detail, &e.Operator, &e.OccurredAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

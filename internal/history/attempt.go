package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase is the orchestrator pass an attempt belongs to.
type Phase string

const (
	PhaseRecord  Phase = "record"
	PhaseProcess Phase = "process"
)

// Outcome is how an attempt ended.
type Outcome string

const (
	OutcomeCompatible   Outcome = "compatible"
	OutcomeIncompatible Outcome = "incompatible"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeSetupFailed  Outcome = "setup_failed"
	OutcomeRecorded     Outcome = "recorded"
	OutcomeRecordFailed Outcome = "record_failed"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompatible, OutcomeIncompatible, OutcomeTimeout,
		OutcomeSetupFailed, OutcomeRecorded, OutcomeRecordFailed:
		return true
	}
	return false
}

// Attempt is one row of the log. ConsumerVersion is empty for record attempts.
type Attempt struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	Phase           Phase     `json:"phase"`
	ProducerVersion string    `json:"producer_version"`
	ConsumerVersion string    `json:"consumer_version,omitempty"`
	Outcome         Outcome   `json:"outcome"`
	ExitCode        int       `json:"exit_code"`
	DurationMS      int64     `json:"duration_ms"`
	Output          string    `json:"output,omitempty"`
	Seq             int64     `json:"seq"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Filter narrows List. Zero fields match everything; Limit 0 means no limit.
type Filter struct {
	RunID    string
	Producer string
	Consumer string
	Outcome  Outcome
	Limit    int
}

// ErrNoRuns is returned by LatestRunID on an empty log.
var ErrNoRuns = errors.New("no runs recorded")

// Append inserts an attempt and returns it with Seq filled in. Writing the
// same ID twice is a no-op that returns the stored row.
func (s *Store) Append(ctx context.Context, a Attempt) (Attempt, error) {
	if a.ID == "" {
		return Attempt{}, fmt.Errorf("append attempt: empty id")
	}
	if a.RunID == "" {
		return Attempt{}, fmt.Errorf("append attempt %s: empty run id", a.ID)
	}
	if !a.Outcome.Valid() {
		return Attempt{}, fmt.Errorf("append attempt %s: unknown outcome %q", a.ID, a.Outcome)
	}
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts
		(id, run_id, phase, producer_version, consumer_version, outcome,
		 exit_code, duration_ms, output, seq, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
		        (SELECT COALESCE(MAX(seq), 0) + 1 FROM attempts), ?)
		ON CONFLICT(id) DO NOTHING
	`,
		a.ID,
		a.RunID,
		string(a.Phase),
		a.ProducerVersion,
		a.ConsumerVersion,
		string(a.Outcome),
		a.ExitCode,
		a.DurationMS,
		a.Output,
		a.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Attempt{}, fmt.Errorf("append attempt %s: %w", a.ID, err)
	}

	return s.Get(ctx, a.ID)
}

// Get returns the attempt with the given id, or sql.ErrNoRows wrapped.
func (s *Store) Get(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, phase, producer_version, consumer_version, outcome,
		       exit_code, duration_ms, output, seq, recorded_at
		FROM attempts
		WHERE id = ?
	`, id)
	a, err := scanAttempt(row)
	if err != nil {
		return Attempt{}, fmt.Errorf("get attempt %s: %w", id, err)
	}
	return a, nil
}

// List returns attempts matching f in log order.
func (s *Store) List(ctx context.Context, f Filter) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Producer != "" {
		where = append(where, "producer_version = ?")
		args = append(args, f.Producer)
	}
	if f.Consumer != "" {
		where = append(where, "consumer_version = ?")
		args = append(args, f.Consumer)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(f.Outcome))
	}

	query := `
		SELECT id, run_id, phase, producer_version, consumer_version, outcome,
		       exit_code, duration_ms, output, seq, recorded_at
		FROM attempts`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY seq ASC, id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// LatestRunID returns the run of the most recently appended attempt.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id FROM attempts ORDER BY seq DESC LIMIT 1
	`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return runID, nil
}

// Summary counts the attempts of a run by outcome.
func (s *Store) Summary(ctx context.Context, runID string) (map[Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM attempts
		WHERE run_id = ?
		GROUP BY outcome
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("summarise run %s: %w", runID, err)
	}
	defer rows.Close()

	counts := map[Outcome]int{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (Attempt, error) {
	var (
		a          Attempt
		phase      string
		outcome    string
		recordedAt string
	)
	err := row.Scan(
		&a.ID,
		&a.RunID,
		&phase,
		&a.ProducerVersion,
		&a.ConsumerVersion,
		&outcome,
		&a.ExitCode,
		&a.DurationMS,
		&a.Output,
		&a.Seq,
		&recordedAt,
	)
	if err != nil {
		return Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	a.Phase = Phase(phase)
	a.Outcome = Outcome(outcome)
	a.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return Attempt{}, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
	}
	return a, nil
}

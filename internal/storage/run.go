package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

// RunStatus is the outcome of a recorded run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run represents a cross-validation run in the history
type Run struct {
	ID        string
	UserID    string
	Status    RunStatus
	Error     string
	Stats     models.RunStats
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunRepository defines the interface for run history storage.
// Claim records id as a running run of userID unless the id is already
// taken, and returns whichever run holds the id afterwards. The owner of a
// run never changes once claimed.
type RunRepository interface {
	Claim(ctx context.Context, id, userID string) (*Run, error)
	Save(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id string) (*Run, error)
	GetByUserID(ctx context.Context, userID string) ([]*Run, error)
}

func stampRun(run *Run) {
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
}

// PostgresRunRepository implements RunRepository using PostgreSQL
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository creates a new PostgresRunRepository
func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// Save inserts a run, or updates it when the ID is already recorded
func (r *PostgresRunRepository) Save(ctx context.Context, run *Run) error {
	stampRun(run)

	query := `
		INSERT INTO cross_validation_runs (
			id, user_id, status, error, documents, valid_documents,
			group_count, findings, discrepancies, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			error = EXCLUDED.error,
			documents = EXCLUDED.documents,
			valid_documents = EXCLUDED.valid_documents,
			group_count = EXCLUDED.group_count,
			findings = EXCLUDED.findings,
			discrepancies = EXCLUDED.discrepancies,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.UserID,
		string(run.Status),
		run.Error,
		run.Stats.Documents,
		run.Stats.ValidDocuments,
		run.Stats.Groups,
		run.Stats.Findings,
		run.Stats.Discrepancies,
		run.CreatedAt,
		run.UpdatedAt,
	)

	return err
}

// Claim inserts a running run for id unless one exists, then reads back the
// holder. The conflicting insert waits for a concurrent claim to commit, so
// the read sees the winner.
func (r *PostgresRunRepository) Claim(ctx context.Context, id, userID string) (*Run, error) {
	now := time.Now()

	query := `
		INSERT INTO cross_validation_runs (id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, id, userID, string(RunRunning), now); err != nil {
		return nil, fmt.Errorf("failed to claim run %s: %w", id, err)
	}

	run, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s vanished after claim", id)
	}
	return run, nil
}

const runColumns = `id, user_id, status, error, documents, valid_documents,
		group_count, findings, discrepancies, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var status string
	err := s.Scan(
		&run.ID,
		&run.UserID,
		&status,
		&run.Error,
		&run.Stats.Documents,
		&run.Stats.ValidDocuments,
		&run.Stats.Groups,
		&run.Stats.Findings,
		&run.Stats.Discrepancies,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	return run, nil
}

// GetByID retrieves a run by its ID
func (r *PostgresRunRepository) GetByID(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM cross_validation_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// GetByUserID retrieves all runs of a user, newest first
func (r *PostgresRunRepository) GetByUserID(ctx context.Context, userID string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM cross_validation_runs WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

var (
	ErrInvalidRunID = errors.New("invalid run id")
	ErrNoArtifacts  = errors.New("no artifacts to save")
)

// ArtifactRepository persists the artifacts of cross-validation runs.
// SaveAll stores a run's artifacts as one unit: readers see all of them or
// none, and a later save for the same run and format replaces the earlier one.
type ArtifactRepository interface {
	SaveAll(ctx context.Context, runID string, artifacts []models.Artifact) error
	Get(ctx context.Context, runID string, format models.ArtifactFormat) (*models.Artifact, error)
	List(ctx context.Context, runID string) ([]models.ArtifactDescriptor, error)
}

func checkBatch(runID string, artifacts []models.Artifact) error {
	if !models.IsValidRunID(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	if len(artifacts) == 0 {
		return ErrNoArtifacts
	}
	for _, a := range artifacts {
		if a.Descriptor.RunID != runID {
			return fmt.Errorf("artifact %s belongs to run %q, not %q", a.Descriptor.Filename, a.Descriptor.RunID, runID)
		}
	}
	return nil
}

// PostgresArtifactRepository implements ArtifactRepository using PostgreSQL
type PostgresArtifactRepository struct {
	db *sql.DB
}

// NewPostgresArtifactRepository creates a new PostgresArtifactRepository
func NewPostgresArtifactRepository(db *sql.DB) *PostgresArtifactRepository {
	return &PostgresArtifactRepository{db: db}
}

// SaveAll upserts every artifact of the run in a single transaction
func (r *PostgresArtifactRepository) SaveAll(ctx context.Context, runID string, artifacts []models.Artifact) error {
	if err := checkBatch(runID, artifacts); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cross_validation_artifacts (run_id, format, filename, content, size, sha256, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, format) DO UPDATE
		SET filename = EXCLUDED.filename,
			content = EXCLUDED.content,
			size = EXCLUDED.size,
			sha256 = EXCLUDED.sha256,
			created_at = EXCLUDED.created_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare artifact upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range artifacts {
		d := a.Descriptor
		_, err := stmt.ExecContext(ctx,
			runID,
			string(d.Format),
			d.Filename,
			a.Content,
			d.Size,
			d.SHA256,
			d.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save %s artifact: %w", d.Format, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artifacts: %w", err)
	}
	return nil
}

// Get retrieves one artifact of a run, nil when it does not exist
func (r *PostgresArtifactRepository) Get(ctx context.Context, runID string, format models.ArtifactFormat) (*models.Artifact, error) {
	query := `
		SELECT run_id, format, filename, content, size, sha256, created_at
		FROM cross_validation_artifacts
		WHERE run_id = $1 AND format = $2
	`

	a := &models.Artifact{}
	var f string
	err := r.db.QueryRowContext(ctx, query, runID, string(format)).Scan(
		&a.Descriptor.RunID,
		&f,
		&a.Descriptor.Filename,
		&a.Content,
		&a.Descriptor.Size,
		&a.Descriptor.SHA256,
		&a.Descriptor.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.Descriptor.Format = models.ArtifactFormat(f)
	return a, nil
}

// List retrieves the descriptors of a run's artifacts in emission order
func (r *PostgresArtifactRepository) List(ctx context.Context, runID string) ([]models.ArtifactDescriptor, error) {
	query := `
		SELECT run_id, format, filename, size, sha256, created_at
		FROM cross_validation_artifacts
		WHERE run_id = $1
		ORDER BY CASE format WHEN 'json' THEN 0 WHEN 'csv' THEN 1 ELSE 2 END
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	descriptors := make([]models.ArtifactDescriptor, 0, 3)
	for rows.Next() {
		var (
			d models.ArtifactDescriptor
			f string
		)
		if err := rows.Scan(&d.RunID, &f, &d.Filename, &d.Size, &d.SHA256, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Format = models.ArtifactFormat(f)
		descriptors = append(descriptors, d)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return descriptors, nil
}

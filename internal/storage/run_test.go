package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

var runRowColumns = []string{
	"id", "user_id", "status", "error", "documents", "valid_documents",
	"group_count", "findings", "discrepancies", "created_at", "updated_at",
}

func TestPostgresRunRepository_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	run := &Run{
		ID:     "run-1",
		UserID: "user-1",
		Status: RunCompleted,
		Stats:  models.RunStats{Documents: 3, ValidDocuments: 2, Groups: 1, Findings: 1, Discrepancies: 2},
	}

	mock.ExpectExec("INSERT INTO cross_validation_runs").
		WithArgs("run-1", "user-1", "completed", "", 3, 2, 1, 1, 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), run); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if run.CreatedAt.IsZero() || run.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRunRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRunRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(runRowColumns).
		AddRow("run-1", "user-1", "failed", "disk full", 2, 2, 1, 1, 1, now, now)

	mock.ExpectQuery("SELECT (.+) FROM cross_validation_runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := repo.GetByID(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if run == nil {
		t.Fatal("expected run to be returned")
	}
	if run.Status != RunFailed || run.Error != "disk full" || run.Stats.Groups != 1 {
		t.Errorf("unexpected run %+v", run)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRunRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM cross_validation_runs WHERE id").
		WithArgs("nonexistent").
		WillReturnError(sql.ErrNoRows)

	run, err := repo.GetByID(context.Background(), "nonexistent")
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if run != nil {
		t.Error("expected nil run")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRunRepository_GetByUserID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRunRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(runRowColumns).
		AddRow("run-2", "user-1", "completed", "", 2, 2, 1, 0, 0, now, now).
		AddRow("run-1", "user-1", "completed", "", 2, 2, 1, 1, 1, now.Add(-time.Hour), now.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM cross_validation_runs WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(rows)

	runs, err := repo.GetByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Errorf("unexpected runs %+v", runs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMemoryRunRepository(t *testing.T) {
	repo := NewMemoryRunRepository()
	ctx := context.Background()

	first := &Run{ID: "run-1", UserID: "user-1", Status: RunFailed, CreatedAt: time.Now().Add(-time.Minute)}
	second := &Run{ID: "run-2", UserID: "user-1", Status: RunCompleted}
	other := &Run{ID: "run-3", UserID: "user-2", Status: RunCompleted}
	for _, r := range []*Run{first, second, other} {
		if err := repo.Save(ctx, r); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	retry := &Run{ID: "run-1", UserID: "user-1", Status: RunCompleted}
	if err := repo.Save(ctx, retry); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !retry.CreatedAt.Equal(first.CreatedAt) {
		t.Error("expected re-saving a run to keep its creation time")
	}

	runs, err := repo.GetByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].Status != RunCompleted {
		t.Errorf("unexpected runs %+v", runs)
	}

	missing, err := repo.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for a missing run, got %v, %v", missing, err)
	}
}

func TestPostgresRunRepository_Claim(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRunRepository(db)
	now := time.Now()

	// user-2 loses: the insert is skipped and the read returns user-1's run
	mock.ExpectExec("INSERT INTO cross_validation_runs (.+) ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("run-1", "user-2", "running", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM cross_validation_runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow("run-1", "user-1", "running", "", 0, 0, 0, 0, 0, now, now))

	run, err := repo.Claim(context.Background(), "run-1", "user-2")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if run.UserID != "user-1" || run.Status != RunRunning {
		t.Errorf("expected the existing holder, got %+v", run)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMemoryRunRepository_ClaimIsExclusive(t *testing.T) {
	repo := NewMemoryRunRepository()
	ctx := context.Background()

	const claimers = 20
	owners := make([]string, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := repo.Claim(ctx, "shared", fmt.Sprintf("user-%d", i))
			if err != nil {
				t.Errorf("expected no error, got %v", err)
				return
			}
			owners[i] = run.UserID
		}(i)
	}
	wg.Wait()

	for i, owner := range owners {
		if owner != owners[0] {
			t.Fatalf("claimer %d saw owner %s, claimer 0 saw %s", i, owner, owners[0])
		}
	}

	// a later save by another user does not take the run over
	if err := repo.Save(ctx, &Run{ID: "shared", UserID: "intruder", Status: RunCompleted}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	run, err := repo.GetByID(ctx, "shared")
	if err != nil || run == nil {
		t.Fatalf("expected the run, got %v %v", run, err)
	}
	if run.UserID != owners[0] {
		t.Errorf("expected owner %s to be kept, got %s", owners[0], run.UserID)
	}
}

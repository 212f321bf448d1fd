package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

// MemoryArtifactRepository implements ArtifactRepository in process memory
type MemoryArtifactRepository struct {
	mu   sync.RWMutex
	runs map[string]map[models.ArtifactFormat]models.Artifact
}

// NewMemoryArtifactRepository creates a new MemoryArtifactRepository
func NewMemoryArtifactRepository() *MemoryArtifactRepository {
	return &MemoryArtifactRepository{runs: make(map[string]map[models.ArtifactFormat]models.Artifact)}
}

// SaveAll stores the artifacts of a run under a single lock
func (r *MemoryArtifactRepository) SaveAll(ctx context.Context, runID string, artifacts []models.Artifact) error {
	if err := checkBatch(runID, artifacts); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byFormat, ok := r.runs[runID]
	if !ok {
		byFormat = make(map[models.ArtifactFormat]models.Artifact, len(artifacts))
		r.runs[runID] = byFormat
	}
	for _, a := range artifacts {
		content := make([]byte, len(a.Content))
		copy(content, a.Content)
		byFormat[a.Descriptor.Format] = models.Artifact{Descriptor: a.Descriptor, Content: content}
	}
	return nil
}

// Get retrieves one artifact of a run, nil when it does not exist
func (r *MemoryArtifactRepository) Get(ctx context.Context, runID string, format models.ArtifactFormat) (*models.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.runs[runID][format]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// List retrieves the descriptors of a run's artifacts in emission order
func (r *MemoryArtifactRepository) List(ctx context.Context, runID string) ([]models.ArtifactDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]models.ArtifactDescriptor, 0, 3)
	for _, format := range models.ArtifactFormats() {
		if a, ok := r.runs[runID][format]; ok {
			descriptors = append(descriptors, a.Descriptor)
		}
	}
	return descriptors, nil
}

// MemoryRunRepository implements RunRepository in process memory
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewMemoryRunRepository creates a new MemoryRunRepository
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]Run)}
}

// Claim records a running run for id unless the id is taken, and returns
// the run holding it
func (r *MemoryRunRepository) Claim(ctx context.Context, id, userID string) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		run = Run{ID: id, UserID: userID, Status: RunRunning}
		stampRun(&run)
		r.runs[id] = run
	}
	return &run, nil
}

// Save inserts or replaces a run. The owner of a claimed run is kept.
func (r *MemoryRunRepository) Save(ctx context.Context, run *Run) error {
	stampRun(run)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.runs[run.ID]; ok {
		run.CreatedAt = existing.CreatedAt
		run.UserID = existing.UserID
	}
	r.runs[run.ID] = *run
	return nil
}

// GetByID retrieves a run by its ID, nil when it does not exist
func (r *MemoryRunRepository) GetByID(ctx context.Context, id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

// GetByUserID retrieves the runs of a user, newest first
func (r *MemoryRunRepository) GetByUserID(ctx context.Context, userID string) ([]*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var runs []*Run
	for _, run := range r.runs {
		if run.UserID == userID {
			run := run
			runs = append(runs, &run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

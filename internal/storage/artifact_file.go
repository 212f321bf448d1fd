package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

const manifestName = "manifest.json"

// FileArtifactRepository keeps each run's artifacts in <dir>/<runID>/ next
// to a manifest of their descriptors.
type FileArtifactRepository struct {
	dir string
}

// NewFileArtifactRepository creates a new FileArtifactRepository rooted at dir
func NewFileArtifactRepository(dir string) *FileArtifactRepository {
	return &FileArtifactRepository{dir: dir}
}

// Dir returns the directory holding the artifacts of runID
func (r *FileArtifactRepository) Dir(runID string) string {
	return filepath.Join(r.dir, runID)
}

// SaveAll writes the artifacts into a staging directory and swaps it in
// place of the run directory, so a run is either fully present or absent.
func (r *FileArtifactRepository) SaveAll(ctx context.Context, runID string, artifacts []models.Artifact) error {
	if err := checkBatch(runID, artifacts); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}

	staging, err := os.MkdirTemp(r.dir, "."+runID+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	manifest := make([]models.ArtifactDescriptor, 0, len(artifacts))
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := a.Descriptor.Filename
		if name == "" || name != filepath.Base(name) || name == manifestName {
			return fmt.Errorf("invalid artifact filename %q", name)
		}
		if err := writeFileSync(filepath.Join(staging, name), a.Content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		manifest = append(manifest, a.Descriptor)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := writeFileSync(filepath.Join(staging, manifestName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	final := r.Dir(runID)
	previous := ""
	if _, err := os.Stat(final); err == nil {
		previous = staging + ".old"
		if err := os.Rename(final, previous); err != nil {
			return fmt.Errorf("failed to move previous artifacts aside: %w", err)
		}
	}

	if err := os.Rename(staging, final); err != nil {
		if previous != "" {
			_ = os.Rename(previous, final)
		}
		return fmt.Errorf("failed to publish artifacts: %w", err)
	}
	if previous != "" {
		_ = os.RemoveAll(previous)
	}

	return syncDir(r.dir)
}

// Get retrieves one artifact of a run, nil when it does not exist
func (r *FileArtifactRepository) Get(ctx context.Context, runID string, format models.ArtifactFormat) (*models.Artifact, error) {
	descriptors, err := r.List(ctx, runID)
	if err != nil {
		return nil, err
	}

	for _, d := range descriptors {
		if d.Format != format {
			continue
		}
		content, err := os.ReadFile(filepath.Join(r.Dir(runID), d.Filename))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", d.Filename, err)
		}
		return &models.Artifact{Descriptor: d, Content: content}, nil
	}

	return nil, nil
}

// List retrieves the descriptors of a run's artifacts in emission order
func (r *FileArtifactRepository) List(ctx context.Context, runID string) ([]models.ArtifactDescriptor, error) {
	if !models.IsValidRunID(runID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	data, err := os.ReadFile(filepath.Join(r.Dir(runID), manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return []models.ArtifactDescriptor{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var descriptors []models.ArtifactDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return descriptors, nil
}

func writeFileSync(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems do not support fsync on directories.
	_ = d.Sync()
	return nil
}

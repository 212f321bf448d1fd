// Package crossval correlates line items of independently submitted fiscal
// documents and flags attribute values that diverge between them.
package crossval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/todmy/fiscal-crossval/internal/artifacts"
	"github.com/todmy/fiscal-crossval/pkg/models"
)

var (
	ErrInvalidRunID        = errors.New("invalid run id")
	ErrArtifactPersistence = errors.New("artifact persistence failed")
)

// Logger is the logging surface the engine writes to. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// ArtifactStore persists the artifacts of a run as one unit.
type ArtifactStore interface {
	SaveAll(ctx context.Context, runID string, artifacts []models.Artifact) error
}

// Config holds engine configuration. Non-positive tolerances and workers
// mean unset and take the defaults.
type Config struct {
	Tolerance            Tolerance
	Workers              int
	Clock                func() time.Time
	SkipSchemaValidation bool
	Logger               Logger
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Tolerance: DefaultTolerance(),
		Workers:   1,
		Clock:     time.Now,
		Logger:    log.Default(),
	}
}

// Engine runs deterministic cross-validation over a report
type Engine struct {
	config    Config
	rules     []Rule
	generator *artifacts.Generator
	store     ArtifactStore
}

// NewEngine creates a new Engine persisting artifacts to store
func NewEngine(config Config, store ArtifactStore) *Engine {
	defaults := DefaultConfig()
	if config.Tolerance.Absolute <= 0 {
		config.Tolerance.Absolute = defaults.Tolerance.Absolute
	}
	if config.Tolerance.Relative <= 0 {
		config.Tolerance.Relative = defaults.Tolerance.Relative
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Engine{
		config: config,
		rules:  Rules(),
		generator: artifacts.NewGenerator(artifacts.Config{
			Clock:                config.Clock,
			SkipSchemaValidation: config.SkipSchemaValidation,
		}),
		store: store,
	}
}

// ValidateRunID checks that runID is usable inside artifact file names.
func ValidateRunID(runID string) error {
	if !models.IsValidRunID(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return nil
}

// Evaluation is the in-memory outcome of a run, before artifacts exist.
type Evaluation struct {
	Findings []models.Finding
	Stats    models.RunStats
}

// Evaluate groups and compares the documents without producing artifacts.
func (e *Engine) Evaluate(ctx context.Context, docs []models.DocumentResult) (*Evaluation, error) {
	valid, excluded := ValidDocuments(docs)
	for _, ex := range excluded {
		e.config.Logger.Printf("[INFO] document %q skipped: %s", ex.Document, ex.Reason)
	}

	groups, dropped := ComparableGroups(BuildGroups(valid))
	for _, g := range dropped {
		e.config.Logger.Printf("[INFO] group %q skipped: present in a single document", g.Key)
	}

	findings, err := e.compareGroups(ctx, groups)
	if err != nil {
		return nil, err
	}

	stats := models.RunStats{
		Documents:      len(docs),
		ValidDocuments: len(valid),
		Groups:         len(groups),
		Findings:       len(findings),
	}
	for _, f := range findings {
		stats.Discrepancies += len(f.Discrepancies)
	}

	return &Evaluation{Findings: findings, Stats: stats}, nil
}

// Run evaluates report, renders the artifacts and persists them under runID.
// A persistence failure fails the run.
func (e *Engine) Run(ctx context.Context, report models.Report, runID string) (*models.Result, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}

	eval, err := e.Evaluate(ctx, report.Documents)
	if err != nil {
		return nil, err
	}

	rendered, err := e.generator.Generate(runID, eval.Findings)
	if err != nil {
		return nil, fmt.Errorf("failed to generate artifacts: %w", err)
	}

	if err := e.store.SaveAll(ctx, runID, rendered); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactPersistence, err)
	}

	if len(eval.Findings) == 0 {
		e.config.Logger.Printf("[INFO] run %s: no material inconsistencies found", runID)
	} else {
		e.config.Logger.Printf("[INFO] run %s: %d findings, %d discrepancies", runID, eval.Stats.Findings, eval.Stats.Discrepancies)
	}

	return &models.Result{
		RunID:     runID,
		Findings:  eval.Findings,
		Artifacts: artifacts.Descriptors(rendered),
		Stats:     eval.Stats,
	}, nil
}

// compareGroups runs CompareGroup over groups, on a bounded pool when more
// than one worker is configured. Output order is group order, then rule order.
func (e *Engine) compareGroups(ctx context.Context, groups []Group) ([]models.Finding, error) {
	perGroup := make([][]models.Finding, len(groups))

	if e.config.Workers <= 1 || len(groups) < 2 {
		for i, g := range groups {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			perGroup[i] = CompareGroup(g, e.rules, e.config.Tolerance)
		}
	} else {
		sem := make(chan struct{}, e.config.Workers)
		var wg sync.WaitGroup
		for i, g := range groups {
			sem <- struct{}{}
			wg.Add(1)
			go func(i int, g Group) {
				defer wg.Done()
				defer func() { <-sem }()
				perGroup[i] = CompareGroup(g, e.rules, e.config.Tolerance)
			}(i, g)
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	findings := make([]models.Finding, 0)
	for _, fs := range perGroup {
		findings = append(findings, fs...)
	}
	return findings, nil
}

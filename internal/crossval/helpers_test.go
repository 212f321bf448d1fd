package crossval

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

var fixedNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func item(ncm, cfop, issuer, recipient, date, product string) models.LineItem {
	return models.LineItem{
		NCM:            ncm,
		CFOP:           cfop,
		IssuerTaxID:    issuer,
		RecipientTaxID: recipient,
		IssueDate:      date,
		ProductName:    product,
	}
}

// notebook is the canonical line item used across the scenarios.
func notebook(total float64) models.LineItem {
	li := item("84715010", "5102", "11111111000111", "22222222000122", "2024-03-15T10:30:00-03:00", "Notebook")
	li.TotalValue = models.Amount(total)
	return li
}

func doc(name string, items ...models.LineItem) models.DocumentResult {
	return models.DocumentResult{Name: name, Status: models.StatusSuccess, Data: items}
}

type recordingStore struct {
	calls     int
	runID     string
	artifacts []models.Artifact
	err       error
}

func (s *recordingStore) SaveAll(ctx context.Context, runID string, artifacts []models.Artifact) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.runID = runID
	s.artifacts = artifacts
	return nil
}

func newTestEngine(store ArtifactStore, workers int) *Engine {
	return NewEngine(Config{
		Workers: workers,
		Clock:   fixedClock,
		Logger:  quietLogger(),
	}, store)
}

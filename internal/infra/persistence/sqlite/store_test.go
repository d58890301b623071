package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"labcore/pkg/domain"
)

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labcore.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	var project domain.Project
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if project, err = tx.CreateProject(domain.Project{Name: "Alpha"}); err != nil {
			return err
		}
		if _, err = tx.CreateResultSchema(domain.ResultSchema{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: domain.ValueQuantitative}); err != nil {
			return err
		}
		_, err = tx.CreateExperiment(domain.Experiment{
			ProjectID:    project.ID,
			Name:         "Batch A",
			ResultValues: map[string]any{"ph": 6.8},
		})
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	restored, ok := reopened.GetProject(project.ID)
	if !ok {
		t.Fatalf("expected project to survive reload")
	}
	if restored.Name != "Alpha" {
		t.Fatalf("unexpected project %+v", restored)
	}
	experiments := reopened.ListExperiments(project.ID)
	if len(experiments) != 1 {
		t.Fatalf("expected 1 experiment after reload, got %d", len(experiments))
	}
	if got := experiments[0].ResultValues["ph"].(float64); got != 6.8 {
		t.Fatalf("expected result values to survive reload, got %#v", experiments[0].ResultValues)
	}
	schemas := reopened.ListResultSchemas(project.ID)
	if len(schemas) != 1 || schemas[0].Key != "ph" {
		t.Fatalf("expected schema row after reload, got %+v", schemas)
	}
}

func TestFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labcore.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProject(domain.Project{Name: "Alpha"}); err != nil {
			return err
		}
		return context.Canceled
	}); err == nil {
		t.Fatalf("expected error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if got := len(reopened.ListProjects()); got != 0 {
		t.Fatalf("expected no persisted projects, got %d", got)
	}
}

func TestDefaultPathFallback(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "dir", "labcore.db"), nil)
	if err != nil {
		t.Fatalf("expected nested directories to be created: %v", err)
	}
	_ = store.Close()
}

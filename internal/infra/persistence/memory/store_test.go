package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"labcore/pkg/domain"
)

func TestTransactionCommitAndRollback(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	var created Project
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateProject(Project{Name: "Alpha"})
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok := store.GetProject(created.ID); !ok {
		t.Fatalf("expected committed project to be readable")
	}

	boom := errors.New("boom")
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProject(Project{Name: "Beta"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if got := len(store.ListProjects()); got != 1 {
		t.Fatalf("expected rollback to discard writes, got %d projects", got)
	}
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	store := NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProject(Project{Name: "Alpha"})
		return err
	})
	var rverr domain.RuleViolationError
	if !errors.As(err, &rverr) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if got := len(store.ListProjects()); got != 0 {
		t.Fatalf("expected blocked commit to discard state, got %d projects", got)
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: "block_all", Severity: domain.SeverityBlock, Message: "nope"})
	}
	return res, nil
}

func TestDeleteProjectCascades(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	var project Project
	var experiment Experiment
	var schema ResultSchema
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if project, err = tx.CreateProject(Project{Name: "Alpha"}); err != nil {
			return err
		}
		if experiment, err = tx.CreateExperiment(Experiment{ProjectID: project.ID, Name: "Batch A"}); err != nil {
			return err
		}
		if schema, err = tx.CreateResultSchema(ResultSchema{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: domain.ValueQuantitative}); err != nil {
			return err
		}
		_, err = tx.PutOutputConfig(OutputConfig{ProjectID: project.ID, IncludedKeys: []string{"ph"}})
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteProject(project.ID)
	}); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	if _, ok := store.GetExperiment(experiment.ID); ok {
		t.Fatalf("expected cascade to remove experiment")
	}
	if _, ok := store.GetResultSchema(schema.ID); ok {
		t.Fatalf("expected cascade to remove schema")
	}
	if _, ok := store.GetOutputConfig(project.ID); ok {
		t.Fatalf("expected cascade to remove output config")
	}
}

func TestClonedReadsDoNotAliasState(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	var experiment Experiment
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		project, err := tx.CreateProject(Project{Name: "Alpha"})
		if err != nil {
			return err
		}
		experiment, err = tx.CreateExperiment(Experiment{
			ProjectID:    project.ID,
			Name:         "Batch A",
			ResultValues: map[string]any{"ph": 6.8, "series": []float64{1, 2}},
		})
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	read, _ := store.GetExperiment(experiment.ID)
	read.ResultValues["ph"] = 99.0
	read.ResultValues["series"].([]float64)[0] = 99

	again, _ := store.GetExperiment(experiment.ID)
	if got := again.ResultValues["ph"].(float64); got != 6.8 {
		t.Fatalf("expected stored value isolated from caller mutation, got %v", got)
	}
	if got := again.ResultValues["series"].([]float64)[0]; got != 1 {
		t.Fatalf("expected stored sequence isolated from caller mutation, got %v", got)
	}
}

func TestSnapshotRoundTripAndMigration(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var project Project
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if project, err = tx.CreateProject(Project{Name: "Alpha"}); err != nil {
			return err
		}
		if _, err = tx.CreateExperiment(Experiment{ProjectID: project.ID, Name: "Batch A"}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	snapshot := store.ExportState()
	// orphan row referencing a vanished project must be dropped on import
	snapshot.Experiments["orphan"] = Experiment{Base: domain.Base{ID: "orphan"}, ProjectID: "gone", Name: "Orphan"}

	restored := NewStore(nil)
	restored.ImportState(snapshot)
	if got := len(restored.ListProjects()); got != 1 {
		t.Fatalf("expected 1 restored project, got %d", got)
	}
	if got := len(restored.ListExperiments(project.ID)); got != 1 {
		t.Fatalf("expected 1 restored experiment, got %d", got)
	}
	if _, ok := restored.GetExperiment("orphan"); ok {
		t.Fatalf("expected orphan experiment to be dropped")
	}
}

func TestListOrdering(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	store.SetNowFunc(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	})

	var project Project
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		project, err = tx.CreateProject(Project{Name: "Alpha"})
		return err
	}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("exp-%d", i)
		key := fmt.Sprintf("key_%d", i)
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, err := tx.CreateExperiment(Experiment{ProjectID: project.ID, Name: name}); err != nil {
				return err
			}
			_, err := tx.CreateResultSchema(ResultSchema{ProjectID: project.ID, Key: key, Label: key, ValueType: domain.ValueQuantitative})
			return err
		}); err != nil {
			t.Fatalf("create row %d: %v", i, err)
		}
	}

	experiments := store.ListExperiments(project.ID)
	if experiments[0].Name != "exp-2" || experiments[2].Name != "exp-0" {
		t.Fatalf("expected newest-first experiments, got %v", []string{experiments[0].Name, experiments[1].Name, experiments[2].Name})
	}
	schemas := store.ListResultSchemas(project.ID)
	if schemas[0].Key != "key_0" || schemas[2].Key != "key_2" {
		t.Fatalf("expected creation-order schemas, got %v", []string{schemas[0].Key, schemas[1].Key, schemas[2].Key})
	}
}

func TestUpdatePreservesImmutableFields(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	var schema ResultSchema
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		project, err := tx.CreateProject(Project{Name: "Alpha"})
		if err != nil {
			return err
		}
		schema, err = tx.CreateResultSchema(ResultSchema{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: domain.ValueQuantitative})
		return err
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateResultSchema(schema.ID, func(r *ResultSchema) error {
			r.Key = "hijacked"
			r.Label = "Acidity"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	updated, _ := store.GetResultSchema(schema.ID)
	if updated.Key != "ph" {
		t.Fatalf("expected key to stay immutable, got %s", updated.Key)
	}
	if updated.Label != "Acidity" {
		t.Fatalf("expected label update, got %s", updated.Label)
	}
	if !updated.CreatedAt.Equal(schema.CreatedAt) {
		t.Fatalf("expected created_at preserved")
	}
}

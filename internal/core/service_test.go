package core

import (
	"context"
	"errors"
	"testing"

	"labcore/pkg/domain"
)

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	return NewInMemoryService(NewDefaultRulesEngine(), opts...)
}

func mustCreateProject(t *testing.T, svc *Service, name string) Project {
	t.Helper()
	project, _, err := svc.CreateProject(context.Background(), Project{Name: name})
	if err != nil {
		t.Fatalf("create project %s: %v", name, err)
	}
	return project
}

func mustCreateSchema(t *testing.T, svc *Service, schema ResultSchema) ResultSchema {
	t.Helper()
	created, _, err := svc.CreateResultSchema(context.Background(), schema)
	if err != nil {
		t.Fatalf("create schema %s: %v", schema.Key, err)
	}
	return created
}

func TestCreateProjectDefaults(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")
	if project.ID == "" {
		t.Fatalf("expected generated id")
	}
	if project.Type != domain.ProjectTypeRegular {
		t.Fatalf("expected default type REGULAR, got %s", project.Type)
	}
	if project.Status != domain.ProjectStatusOngoing {
		t.Fatalf("expected default status ONGOING, got %s", project.Status)
	}
	if project.CreatedAt.IsZero() || project.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}
}

func TestDuplicateProjectNameBlocked(t *testing.T) {
	svc := newTestService(t)
	mustCreateProject(t, svc, "Alpha")
	_, _, err := svc.CreateProject(context.Background(), Project{Name: "Alpha"})
	var rverr RuleViolationError
	if !errors.As(err, &rverr) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if rverr.Result.Violations[0].Rule != "project_name_unique" {
		t.Fatalf("unexpected rule %s", rverr.Result.Violations[0].Rule)
	}
	if got := len(svc.ListProjects()); got != 1 {
		t.Fatalf("expected blocked commit to leave 1 project, got %d", got)
	}
}

func TestCreateSchemaValidation(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")

	_, _, err := svc.CreateResultSchema(context.Background(), ResultSchema{
		ProjectID: project.ID, Key: "bad key!", Label: "Bad", ValueType: ValueQuantitative,
	})
	var badKey ErrInvalidSchemaKey
	if !errors.As(err, &badKey) {
		t.Fatalf("expected invalid key error, got %v", err)
	}

	_, _, err = svc.CreateResultSchema(context.Background(), ResultSchema{
		ProjectID: project.ID, Key: "ok", Label: "Ok", ValueType: "exotic",
	})
	if err == nil {
		t.Fatalf("expected unknown value type error")
	}

	_, _, err = svc.CreateResultSchema(context.Background(), ResultSchema{
		ProjectID: project.ID, Key: "appearance", Label: "Appearance", ValueType: ValueCategorical,
	})
	var rverr RuleViolationError
	if !errors.As(err, &rverr) {
		t.Fatalf("expected rule violation for options-less categorical, got %v", err)
	}
	if rverr.Result.Violations[0].Rule != "categorical_options_required" {
		t.Fatalf("unexpected rule %s", rverr.Result.Violations[0].Rule)
	}

	_, _, err = svc.CreateResultSchema(context.Background(), ResultSchema{
		ProjectID: "missing", Key: "ph", Label: "pH", ValueType: ValueQuantitative,
	})
	var nf ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != EntityProject {
		t.Fatalf("expected project not found, got %v", err)
	}
}

func TestDuplicateSchemaKeyBlocked(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")
	mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: ValueQuantitative})
	_, _, err := svc.CreateResultSchema(context.Background(), ResultSchema{
		ProjectID: project.ID, Key: "ph", Label: "pH again", ValueType: ValueQuantitative,
	})
	var rverr RuleViolationError
	if !errors.As(err, &rverr) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if rverr.Result.Violations[0].Rule != "schema_key_unique" {
		t.Fatalf("unexpected rule %s", rverr.Result.Violations[0].Rule)
	}
	// same key under a different project is fine
	other := mustCreateProject(t, svc, "Beta")
	mustCreateSchema(t, svc, ResultSchema{ProjectID: other.ID, Key: "ph", Label: "pH", ValueType: ValueQuantitative})
}

func TestCreateExperimentNormalizesValues(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")
	mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "temperature", Label: "Temperature", ValueType: ValueQuantitative})
	mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "appearance", Label: "Appearance", ValueType: ValueCategorical, Options: []string{"clear", "cloudy"}})

	created, _, err := svc.CreateExperiment(context.Background(), Experiment{
		ProjectID: project.ID,
		Name:      "Batch A",
		Author:    "imai",
		ResultValues: map[string]any{
			"temperature": "23.5",
			"appearance":  "clear",
			"unplanned":   true,
		},
	})
	if err != nil {
		t.Fatalf("create experiment: %v", err)
	}
	if got, ok := created.ResultValues["temperature"].(float64); !ok || got != 23.5 {
		t.Fatalf("expected temperature normalized to 23.5, got %#v", created.ResultValues["temperature"])
	}
	if _, ok := created.ResultValues["unplanned"]; ok {
		t.Fatalf("expected unknown key to be dropped")
	}
}

func TestCreateExperimentRejectsInvalidValues(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")
	mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "appearance", Label: "Appearance", ValueType: ValueCategorical, Options: []string{"clear", "cloudy"}})

	_, _, err := svc.CreateExperiment(context.Background(), Experiment{
		ProjectID:    project.ID,
		Name:         "Batch A",
		ResultValues: map[string]any{"appearance": "sparkly"},
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Kind != domain.ValidationInvalidOption {
		t.Fatalf("unexpected kind %s", verr.Kind)
	}
	if experiments, _ := svc.ListExperiments(project.ID); len(experiments) != 0 {
		t.Fatalf("expected rejected experiment not to persist")
	}
}

func TestCreateExperimentMaterialValidation(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")

	cases := []struct {
		name string
		line MaterialLine
	}{
		{"empty name", MaterialLine{Amount: 1, Unit: domain.UnitGram, Ratio: 50}},
		{"zero amount", MaterialLine{Name: "resin", Unit: domain.UnitGram, Ratio: 50}},
		{"bad unit", MaterialLine{Name: "resin", Amount: 1, Unit: "lb", Ratio: 50}},
		{"ratio out of range", MaterialLine{Name: "resin", Amount: 1, Unit: domain.UnitGram, Ratio: 101}},
	}
	for _, tc := range cases {
		_, _, err := svc.CreateExperiment(context.Background(), Experiment{
			ProjectID: project.ID,
			Name:      "Batch",
			Materials: []MaterialLine{tc.line},
		})
		var merr ErrInvalidMaterial
		if !errors.As(err, &merr) {
			t.Fatalf("%s: expected material error, got %v", tc.name, err)
		}
	}
}

func TestUpdateExperimentPatchSemantics(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")
	mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: ValueQuantitative})

	created, _, err := svc.CreateExperiment(context.Background(), Experiment{
		ProjectID:    project.ID,
		Name:         "Batch A",
		Author:       "imai",
		ResultValues: map[string]any{"ph": 6.8},
	})
	if err != nil {
		t.Fatalf("create experiment: %v", err)
	}

	author := "sato"
	updated, _, err := svc.UpdateExperiment(context.Background(), created.ID, ExperimentPatch{Author: &author})
	if err != nil {
		t.Fatalf("patch author: %v", err)
	}
	if updated.Author != "sato" || updated.Name != "Batch A" {
		t.Fatalf("unexpected patched experiment %+v", updated)
	}
	if got := updated.ResultValues["ph"].(float64); got != 6.8 {
		t.Fatalf("expected stored values untouched, got %#v", updated.ResultValues)
	}

	updated, _, err = svc.UpdateExperiment(context.Background(), created.ID, ExperimentPatch{
		ResultValues: map[string]any{"ph": "7.2"},
	})
	if err != nil {
		t.Fatalf("patch values: %v", err)
	}
	if got := updated.ResultValues["ph"].(float64); got != 7.2 {
		t.Fatalf("expected re-validated value 7.2, got %#v", updated.ResultValues["ph"])
	}

	_, _, err = svc.UpdateExperiment(context.Background(), created.ID, ExperimentPatch{
		ResultValues: map[string]any{"ph": "basic"},
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	current, _ := svc.GetExperiment(created.ID)
	if got := current.ResultValues["ph"].(float64); got != 7.2 {
		t.Fatalf("expected failed patch to leave stored value, got %#v", current.ResultValues["ph"])
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")
	mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: ValueQuantitative})
	created, _, err := svc.CreateExperiment(context.Background(), Experiment{ProjectID: project.ID, Name: "Batch A"})
	if err != nil {
		t.Fatalf("create experiment: %v", err)
	}
	if _, _, err := svc.PutOutputConfig(context.Background(), project.ID, []string{"ph"}); err != nil {
		t.Fatalf("put output config: %v", err)
	}

	if _, err := svc.DeleteProject(context.Background(), project.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, ok := svc.GetExperiment(created.ID); ok {
		t.Fatalf("expected experiments to be removed with project")
	}
	var nf ErrNotFound
	if _, err := svc.ListResultSchemas(project.ID); !errors.As(err, &nf) {
		t.Fatalf("expected not found after cascade, got %v", err)
	}
}

func TestOutputConfigFiltersUnknownKeys(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")
	mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: ValueQuantitative})
	mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "notes", Label: "Notes", ValueType: ValueQualitative})

	saved, _, err := svc.PutOutputConfig(context.Background(), project.ID, []string{"ph", "bogus", "notes", "ph"})
	if err != nil {
		t.Fatalf("put output config: %v", err)
	}
	if len(saved.IncludedKeys) != 2 || saved.IncludedKeys[0] != "ph" || saved.IncludedKeys[1] != "notes" {
		t.Fatalf("expected filtered deduped keys [ph notes], got %v", saved.IncludedKeys)
	}

	// replacing keeps the same config row
	again, _, err := svc.PutOutputConfig(context.Background(), project.ID, []string{"notes"})
	if err != nil {
		t.Fatalf("replace output config: %v", err)
	}
	if again.ID != saved.ID {
		t.Fatalf("expected upsert to keep config id")
	}
}

func TestSchemaDeleteYieldsOutputConfigWarning(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Alpha")
	schema := mustCreateSchema(t, svc, ResultSchema{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: ValueQuantitative})
	if _, _, err := svc.PutOutputConfig(context.Background(), project.ID, []string{"ph"}); err != nil {
		t.Fatalf("put output config: %v", err)
	}

	res, err := svc.DeleteResultSchema(context.Background(), schema.ID)
	if err != nil {
		t.Fatalf("expected warn violation not to block delete, got %v", err)
	}
	found := false
	for _, v := range res.Violations {
		if v.Rule == "output_config_keys_known" && v.Severity == SeverityWarn {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected output_config_keys_known warning, got %+v", res.Violations)
	}
}

func TestSeedIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if err := Seed(ctx, svc); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := Seed(ctx, svc); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	projects := svc.ListProjects()
	if len(projects) != 1 || projects[0].Name != "Adhesive Optimization" {
		t.Fatalf("unexpected seeded projects %+v", projects)
	}
	schemas, err := svc.ListResultSchemas(projects[0].ID)
	if err != nil {
		t.Fatalf("list schemas: %v", err)
	}
	if len(schemas) != 5 {
		t.Fatalf("expected 5 seeded schemas, got %d", len(schemas))
	}
	experiments, err := svc.ListExperiments(projects[0].ID)
	if err != nil {
		t.Fatalf("list experiments: %v", err)
	}
	if len(experiments) != 3 {
		t.Fatalf("expected 3 seeded experiments, got %d", len(experiments))
	}
}

func TestServiceObservability(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	svc := newTestService(t, WithMetricsRecorder(rec), WithTracer(tracer))

	mustCreateProject(t, svc, "Alpha")
	_, _, _ = svc.CreateProject(context.Background(), Project{Name: "Alpha"}) // duplicate

	snap := rec.Snapshot()
	if snap.Results["create_project"]["success"] != 1 {
		t.Fatalf("expected one successful create_project, got %+v", snap.Results)
	}
	if snap.Results["create_project"]["error"] != 1 {
		t.Fatalf("expected one failed create_project, got %+v", snap.Results)
	}
	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 trace entries, got %d", len(entries))
	}
	if entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("expected error span, got %+v", entries[1])
	}
}

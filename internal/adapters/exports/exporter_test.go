package exports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"labcore/internal/blob"
	"labcore/internal/core"
	"labcore/pkg/domain"
)

func newFixture(t *testing.T) (*core.Service, string) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	ctx := context.Background()

	project, _, err := svc.CreateProject(ctx, core.Project{Name: "Alpha"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	for _, schema := range []core.ResultSchema{
		{ProjectID: project.ID, Key: "notes", Label: "Notes", ValueType: domain.ValueQualitative},
		{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: domain.ValueQuantitative},
	} {
		if _, _, err := svc.CreateResultSchema(ctx, schema); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	if _, _, err := svc.CreateExperiment(ctx, core.Experiment{
		ProjectID:    project.ID,
		Name:         "Batch A",
		Author:       "imai",
		ResultValues: map[string]any{"ph": 6.8, "notes": "ok"},
	}); err != nil {
		t.Fatalf("create experiment: %v", err)
	}
	return svc, project.ID
}

func waitForExport(t *testing.T, w *Worker, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.Get(id)
		if !ok {
			t.Fatalf("export %s vanished", id)
		}
		if record.Status == ExportStatusSucceeded || record.Status == ExportStatusFailed {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return ExportRecord{}
}

func TestExportRendersArtifacts(t *testing.T) {
	svc, projectID := newFixture(t)
	store := blob.NewMemory()
	worker := NewWorker(svc, store)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	record, err := worker.Enqueue(context.Background(), ExportInput{ProjectID: projectID})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if record.Status != ExportStatusQueued || len(record.Formats) != 2 {
		t.Fatalf("unexpected queued record %+v", record)
	}

	done := waitForExport(t, worker, record.ID)
	if done.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", done.Error)
	}
	if len(done.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(done.Artifacts))
	}

	var csvArtifact ExportArtifact
	for _, artifact := range done.Artifacts {
		if artifact.Format == FormatCSV {
			csvArtifact = artifact
		}
	}
	_, rc, err := store.Get(context.Background(), csvArtifact.Key)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	defer func() { _ = rc.Close() }()
	rows, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d rows", len(rows))
	}
	header := strings.Join(rows[0], ",")
	if header != "experiment,author,created_at,notes,ph" {
		t.Fatalf("unexpected header %s", header)
	}
	if rows[1][0] != "Batch A" || rows[1][3] != "ok" || rows[1][4] != "6.8" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}

func TestExportHonorsOutputConfig(t *testing.T) {
	svc, projectID := newFixture(t)
	if _, _, err := svc.PutOutputConfig(context.Background(), projectID, []string{"notes"}); err != nil {
		t.Fatalf("put output config: %v", err)
	}
	store := blob.NewMemory()
	worker := NewWorker(svc, store)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	record, err := worker.Enqueue(context.Background(), ExportInput{ProjectID: projectID, Formats: []ExportFormat{FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitForExport(t, worker, record.ID)
	if done.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", done.Error)
	}

	_, rc, err := store.Get(context.Background(), done.Artifacts[0].Key)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	_ = rc.Close()
	var table struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(payload, &table); err != nil {
		t.Fatalf("decode json artifact: %v", err)
	}
	want := []string{"experiment", "author", "created_at", "notes"}
	if strings.Join(table.Columns, ",") != strings.Join(want, ",") {
		t.Fatalf("expected columns %v, got %v", want, table.Columns)
	}
	if len(table.Rows) != 1 || table.Rows[0]["notes"] != "ok" {
		t.Fatalf("unexpected rows %+v", table.Rows)
	}
	if _, ok := table.Rows[0]["ph"]; ok {
		t.Fatalf("expected excluded key to be absent")
	}
}

func TestEnqueueValidation(t *testing.T) {
	svc, _ := newFixture(t)
	worker := NewWorker(svc, blob.NewMemory())

	if _, err := worker.Enqueue(context.Background(), ExportInput{}); err == nil {
		t.Fatalf("expected missing project id error")
	}

	var nf core.ErrNotFound
	if _, err := worker.Enqueue(context.Background(), ExportInput{ProjectID: "missing"}); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEnqueueRejectsUnknownFormat(t *testing.T) {
	svc, projectID := newFixture(t)
	worker := NewWorker(svc, blob.NewMemory())
	if _, err := worker.Enqueue(context.Background(), ExportInput{ProjectID: projectID, Formats: []ExportFormat{"parquet"}}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"clear", "clear"},
		{6.8, "6.8"},
		{[]float64{1, 2.5}, "1;2.5"},
		{[]any{"a", 2.0}, "a;2"},
		{true, "true"},
	}
	for _, tc := range cases {
		if got := formatValue(tc.in); got != tc.want {
			t.Fatalf("formatValue(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

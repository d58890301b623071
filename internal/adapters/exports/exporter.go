// Package exports renders project experiment tables into the blob store as
// asynchronous jobs.
package exports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"labcore/internal/blob"
	"labcore/internal/core"
)

// ExportFormat identifies a renderable artifact format.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures a stored artifact.
type ExportArtifact struct {
	ID          string       `json:"id"`
	Key         string       `json:"key"`
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	URL         string       `json:"url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"project_id"`
	Formats     []ExportFormat   `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func (r ExportRecord) copy() ExportRecord {
	cp := r
	cp.Formats = append([]ExportFormat(nil), r.Formats...)
	cp.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		done := *r.CompletedAt
		cp.CompletedAt = &done
	}
	return cp
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	ProjectID   string
	Formats     []ExportFormat
	RequestedBy string
}

// Worker executes experiment-table exports asynchronously. One goroutine
// drains a bounded queue; job records stay in memory for status lookups.
type Worker struct {
	svc   *core.Service
	store blob.Store

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id        string
	projectID string
}

// NewWorker constructs an export worker over the service and blob store.
func NewWorker(svc *core.Service, store blob.Store) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		svc:    svc,
		store:  store,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// Enqueue schedules an export job and returns the queued record.
func (w *Worker) Enqueue(_ context.Context, input ExportInput) (ExportRecord, error) {
	if strings.TrimSpace(input.ProjectID) == "" {
		return ExportRecord{}, fmt.Errorf("project id required")
	}
	if _, ok := w.svc.GetProject(input.ProjectID); !ok {
		return ExportRecord{}, core.ErrNotFound{Entity: core.EntityProject, ID: input.ProjectID}
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []ExportFormat{FormatCSV, FormatJSON}
	}
	uniq := make([]ExportFormat, 0, len(formats))
	seen := make(map[ExportFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if format != FormatCSV && format != FormatJSON {
			return ExportRecord{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		ProjectID:   input.ProjectID,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- exportTask{id: id, projectID: input.ProjectID}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return ExportRecord{}, fmt.Errorf("export queue full")
	}

	log.Debugf("queued export %s for project %s", id, input.ProjectID)
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	w.updateStatus(task.id, ExportStatusRunning, "")

	table, err := w.buildTable(task.projectID)
	if err != nil {
		w.fail(task.id, err.Error())
		return
	}

	w.mu.RLock()
	record, ok := w.jobs[task.id]
	var formats []ExportFormat
	if ok {
		formats = append(formats, record.Formats...)
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	artifacts := make([]ExportArtifact, 0, len(formats))
	for _, format := range formats {
		payload, contentType, err := renderTable(format, table)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		artifact := ExportArtifact{
			ID:          newID(),
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			CreatedAt:   time.Now().UTC(),
		}
		artifact.Key = fmt.Sprintf("exports/%s/%s.%s", task.id, artifact.ID, format)
		if w.store != nil {
			info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(payload), blob.PutOptions{ContentType: contentType})
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact: %v", err))
				return
			}
			if url, err := w.store.PresignURL(w.ctx, artifact.Key, blob.SignedURLOptions{}); err == nil {
				artifact.URL = url
			}
			if info.Size > 0 {
				artifact.SizeBytes = info.Size
			}
		}
		artifacts = append(artifacts, artifact)
	}

	w.complete(task.id, artifacts)
}

// exportTable is the rendered intermediate: one row per experiment, one
// column per selected result field plus the fixed experiment columns.
type exportTable struct {
	Columns []string         `json:"columns"`
	Rows    [][]string       `json:"-"`
	Records []map[string]any `json:"rows"`
}

var fixedColumns = []string{"experiment", "author", "created_at"}

func (w *Worker) buildTable(projectID string) (exportTable, error) {
	schemas, err := w.svc.ListResultSchemas(projectID)
	if err != nil {
		return exportTable{}, err
	}
	keys := make([]string, 0, len(schemas))
	if config, ok, err := w.svc.GetOutputConfig(projectID); err != nil {
		return exportTable{}, err
	} else if ok && len(config.IncludedKeys) > 0 {
		keys = append(keys, config.IncludedKeys...)
	} else {
		for _, schema := range schemas {
			keys = append(keys, schema.Key)
		}
	}

	experiments, err := w.svc.ListExperiments(projectID)
	if err != nil {
		return exportTable{}, err
	}

	table := exportTable{Columns: append(append([]string{}, fixedColumns...), keys...)}
	for _, experiment := range experiments {
		row := []string{experiment.Name, experiment.Author, experiment.CreatedAt.UTC().Format(time.RFC3339)}
		record := map[string]any{
			"experiment": experiment.Name,
			"author":     experiment.Author,
			"created_at": experiment.CreatedAt.UTC().Format(time.RFC3339),
		}
		for _, key := range keys {
			value, ok := experiment.ResultValues[key]
			row = append(row, formatValue(value))
			if ok {
				record[key] = value
			} else {
				record[key] = nil
			}
		}
		table.Rows = append(table.Rows, row)
		table.Records = append(table.Records, record)
	}
	return table, nil
}

func renderTable(format ExportFormat, table exportTable) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		cw := csv.NewWriter(&buf)
		if err := cw.Write(table.Columns); err != nil {
			return nil, "", fmt.Errorf("write csv header: %w", err)
		}
		for _, row := range table.Rows {
			if err := cw.Write(row); err != nil {
				return nil, "", fmt.Errorf("write csv row: %w", err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	case FormatJSON:
		payload, err := json.Marshal(table)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %s", format)
	}
}

// formatValue renders a normalized result value as a CSV cell.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []float64:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.Join(parts, ";")
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatValue(e)
		}
		return strings.Join(parts, ";")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	log.Debugf("export %s succeeded with %d artifacts", id, len(artifacts))
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	log.Warnf("export %s failed: %s", id, reason)
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

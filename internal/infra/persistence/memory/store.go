// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"labcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Project aliases domain.Project for in-memory persistence operations.
	Project = domain.Project
	// Experiment aliases domain.Experiment.
	Experiment = domain.Experiment
	// ResultSchema aliases domain.ResultSchema.
	ResultSchema = domain.ResultSchema
	// OutputConfig aliases domain.OutputConfig.
	OutputConfig = domain.OutputConfig
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	projects    map[string]Project
	experiments map[string]Experiment
	schemas     map[string]ResultSchema
	outputs     map[string]OutputConfig // keyed by project id, one per project
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Projects    map[string]Project      `json:"projects"`
	Experiments map[string]Experiment   `json:"experiments"`
	Schemas     map[string]ResultSchema `json:"result_schemas"`
	Outputs     map[string]OutputConfig `json:"output_configs"`
}

func newMemoryState() memoryState {
	return memoryState{
		projects:    make(map[string]Project),
		experiments: make(map[string]Experiment),
		schemas:     make(map[string]ResultSchema),
		outputs:     make(map[string]OutputConfig),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Projects:    make(map[string]Project, len(state.projects)),
		Experiments: make(map[string]Experiment, len(state.experiments)),
		Schemas:     make(map[string]ResultSchema, len(state.schemas)),
		Outputs:     make(map[string]OutputConfig, len(state.outputs)),
	}
	for k, v := range state.projects {
		s.Projects[k] = cloneProject(v)
	}
	for k, v := range state.experiments {
		s.Experiments[k] = cloneExperiment(v)
	}
	for k, v := range state.schemas {
		s.Schemas[k] = cloneSchema(v)
	}
	for k, v := range state.outputs {
		s.Outputs[k] = cloneOutputConfig(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range s.Experiments {
		state.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.Schemas {
		state.schemas[k] = cloneSchema(v)
	}
	for k, v := range s.Outputs {
		state.outputs[k] = cloneOutputConfig(v)
	}
	return state
}

// migrateSnapshot repairs snapshots from older deployments: nil maps are
// initialized and rows whose owning project vanished are dropped so a
// hydrated store never violates referential invariants.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]Project{}
	}
	if snapshot.Experiments == nil {
		snapshot.Experiments = map[string]Experiment{}
	}
	if snapshot.Schemas == nil {
		snapshot.Schemas = map[string]ResultSchema{}
	}
	if snapshot.Outputs == nil {
		snapshot.Outputs = map[string]OutputConfig{}
	}

	projectExists := func(id string) bool {
		_, ok := snapshot.Projects[id]
		return ok
	}

	for id, experiment := range snapshot.Experiments {
		if experiment.ProjectID == "" || !projectExists(experiment.ProjectID) {
			delete(snapshot.Experiments, id)
			continue
		}
		if experiment.ResultValues == nil {
			experiment.ResultValues = map[string]any{}
		}
		if experiment.Materials == nil {
			experiment.Materials = []domain.MaterialLine{}
		}
		snapshot.Experiments[id] = experiment
	}

	for id, schema := range snapshot.Schemas {
		if schema.ProjectID == "" || !projectExists(schema.ProjectID) {
			delete(snapshot.Schemas, id)
			continue
		}
		snapshot.Schemas[id] = schema
	}

	for projectID := range snapshot.Outputs {
		if !projectExists(projectID) {
			delete(snapshot.Outputs, projectID)
		}
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.experiments {
		cloned.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.schemas {
		cloned.schemas[k] = cloneSchema(v)
	}
	for k, v := range s.outputs {
		cloned.outputs[k] = cloneOutputConfig(v)
	}
	return cloned
}

func cloneProject(p Project) Project {
	cp := p
	if p.ExpectedEndDate != nil {
		end := *p.ExpectedEndDate
		cp.ExpectedEndDate = &end
	}
	return cp
}

func cloneExperiment(e Experiment) Experiment {
	cp := e
	if e.Materials != nil {
		cp.Materials = append([]domain.MaterialLine(nil), e.Materials...)
	}
	if e.ResultValues != nil {
		cp.ResultValues = make(map[string]any, len(e.ResultValues))
		for k, v := range e.ResultValues {
			cp.ResultValues[k] = cloneValue(v)
		}
	}
	return cp
}

// cloneValue deep-copies the shapes a normalized result value can take.
func cloneValue(v any) any {
	switch vv := v.(type) {
	case []float64:
		return append([]float64(nil), vv...)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func cloneSchema(r ResultSchema) ResultSchema {
	cp := r
	if r.Unit != nil {
		u := *r.Unit
		cp.Unit = &u
	}
	if r.Description != nil {
		d := *r.Description
		cp.Description = &d
	}
	if r.Options != nil {
		cp.Options = append([]string(nil), r.Options...)
	}
	return cp
}

func cloneOutputConfig(c OutputConfig) OutputConfig {
	cp := c
	if c.IncludedKeys != nil {
		cp.IncludedKeys = append([]string(nil), c.IncludedKeys...)
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the store clock; tests use it to pin timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListProjects returns all projects in the snapshot, newest first.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	sortProjects(out)
	return out
}

// ListExperiments returns the experiments of one project, newest first.
func (v transactionView) ListExperiments(projectID string) []Experiment {
	var out []Experiment
	for _, e := range v.state.experiments {
		if e.ProjectID == projectID {
			out = append(out, cloneExperiment(e))
		}
	}
	sortExperiments(out)
	return out
}

// ListResultSchemas returns the schema rows of one project in creation order.
func (v transactionView) ListResultSchemas(projectID string) []ResultSchema {
	var out []ResultSchema
	for _, r := range v.state.schemas {
		if r.ProjectID == projectID {
			out = append(out, cloneSchema(r))
		}
	}
	sortSchemas(out)
	return out
}

// FindProject retrieves a project by ID from the snapshot.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindExperiment retrieves an experiment by ID from the snapshot.
func (v transactionView) FindExperiment(id string) (Experiment, bool) {
	e, ok := v.state.experiments[id]
	if !ok {
		return Experiment{}, false
	}
	return cloneExperiment(e), true
}

// FindResultSchema retrieves a schema row by ID from the snapshot.
func (v transactionView) FindResultSchema(id string) (ResultSchema, bool) {
	r, ok := v.state.schemas[id]
	if !ok {
		return ResultSchema{}, false
	}
	return cloneSchema(r), true
}

// FindOutputConfig retrieves a project's output configuration from the snapshot.
func (v transactionView) FindOutputConfig(projectID string) (OutputConfig, bool) {
	c, ok := v.state.outputs[projectID]
	if !ok {
		return OutputConfig{}, false
	}
	return cloneOutputConfig(c), true
}

func sortProjects(projects []Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].ID < projects[j].ID
		}
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
}

func sortExperiments(experiments []Experiment) {
	sort.SliceStable(experiments, func(i, j int) bool {
		if experiments[i].CreatedAt.Equal(experiments[j].CreatedAt) {
			return experiments[i].ID < experiments[j].ID
		}
		return experiments[i].CreatedAt.After(experiments[j].CreatedAt)
	})
}

func sortSchemas(schemas []ResultSchema) {
	sort.SliceStable(schemas, func(i, j int) bool {
		if schemas[i].CreatedAt.Equal(schemas[j].CreatedAt) {
			return schemas[i].Key < schemas[j].Key
		}
		return schemas[i].CreatedAt.Before(schemas[j].CreatedAt)
	})
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindProject exposes project lookup within the transaction scope.
func (tx *transaction) FindProject(id string) (Project, bool) {
	p, ok := tx.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindExperiment exposes experiment lookup within the transaction scope.
func (tx *transaction) FindExperiment(id string) (Experiment, bool) {
	e, ok := tx.state.experiments[id]
	if !ok {
		return Experiment{}, false
	}
	return cloneExperiment(e), true
}

// FindResultSchema exposes schema lookup within the transaction scope.
func (tx *transaction) FindResultSchema(id string) (ResultSchema, bool) {
	r, ok := tx.state.schemas[id]
	if !ok {
		return ResultSchema{}, false
	}
	return cloneSchema(r), true
}

// FindOutputConfig exposes output-config lookup within the transaction scope.
func (tx *transaction) FindOutputConfig(projectID string) (OutputConfig, bool) {
	c, ok := tx.state.outputs[projectID]
	if !ok {
		return OutputConfig{}, false
	}
	return cloneOutputConfig(c), true
}

// ListResultSchemas exposes a project's schema rows within the transaction scope.
func (tx *transaction) ListResultSchemas(projectID string) []ResultSchema {
	return newTransactionView(&tx.state).ListResultSchemas(projectID)
}

// CreateProject stores a new project within the transaction.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	if p.Type == "" {
		p.Type = domain.ProjectTypeRegular
	}
	if p.Status == "" {
		p.Status = domain.ProjectStatusOngoing
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates a project using the provided mutator function.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %q not found", id)
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// DeleteProject removes a project and cascades to its experiments, schema
// rows, and output configuration.
func (tx *transaction) DeleteProject(id string) error {
	current, ok := tx.state.projects[id]
	if !ok {
		return fmt.Errorf("project %q not found", id)
	}
	for eid, experiment := range tx.state.experiments {
		if experiment.ProjectID == id {
			delete(tx.state.experiments, eid)
			tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionDelete, Before: cloneExperiment(experiment)})
		}
	}
	for sid, schema := range tx.state.schemas {
		if schema.ProjectID == id {
			delete(tx.state.schemas, sid)
			tx.recordChange(Change{Entity: domain.EntityResultSchema, Action: domain.ActionDelete, Before: cloneSchema(schema)})
		}
	}
	if output, ok := tx.state.outputs[id]; ok {
		delete(tx.state.outputs, id)
		tx.recordChange(Change{Entity: domain.EntityOutputConfig, Action: domain.ActionDelete, Before: cloneOutputConfig(output)})
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: cloneProject(current)})
	return nil
}

// CreateExperiment stores a new experiment within the transaction.
func (tx *transaction) CreateExperiment(e Experiment) (Experiment, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.experiments[e.ID]; exists {
		return Experiment{}, fmt.Errorf("experiment %q already exists", e.ID)
	}
	if _, ok := tx.state.projects[e.ProjectID]; !ok {
		return Experiment{}, fmt.Errorf("project %q not found", e.ProjectID)
	}
	if e.Materials == nil {
		e.Materials = []domain.MaterialLine{}
	}
	if e.ResultValues == nil {
		e.ResultValues = map[string]any{}
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.experiments[e.ID] = cloneExperiment(e)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionCreate, After: cloneExperiment(e)})
	return cloneExperiment(e), nil
}

// UpdateExperiment mutates an experiment using the provided mutator function.
func (tx *transaction) UpdateExperiment(id string, mutator func(*Experiment) error) (Experiment, error) {
	current, ok := tx.state.experiments[id]
	if !ok {
		return Experiment{}, fmt.Errorf("experiment %q not found", id)
	}
	before := cloneExperiment(current)
	if err := mutator(&current); err != nil {
		return Experiment{}, err
	}
	current.ID = id
	current.ProjectID = before.ProjectID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.experiments[id] = cloneExperiment(current)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionUpdate, Before: before, After: cloneExperiment(current)})
	return cloneExperiment(current), nil
}

// DeleteExperiment removes an experiment from the transaction state.
func (tx *transaction) DeleteExperiment(id string) error {
	current, ok := tx.state.experiments[id]
	if !ok {
		return fmt.Errorf("experiment %q not found", id)
	}
	delete(tx.state.experiments, id)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionDelete, Before: cloneExperiment(current)})
	return nil
}

// CreateResultSchema stores a new result-field schema row.
func (tx *transaction) CreateResultSchema(r ResultSchema) (ResultSchema, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.schemas[r.ID]; exists {
		return ResultSchema{}, fmt.Errorf("result schema %q already exists", r.ID)
	}
	if _, ok := tx.state.projects[r.ProjectID]; !ok {
		return ResultSchema{}, fmt.Errorf("project %q not found", r.ProjectID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.schemas[r.ID] = cloneSchema(r)
	tx.recordChange(Change{Entity: domain.EntityResultSchema, Action: domain.ActionCreate, After: cloneSchema(r)})
	return cloneSchema(r), nil
}

// UpdateResultSchema mutates a schema row using the provided mutator function.
func (tx *transaction) UpdateResultSchema(id string, mutator func(*ResultSchema) error) (ResultSchema, error) {
	current, ok := tx.state.schemas[id]
	if !ok {
		return ResultSchema{}, fmt.Errorf("result schema %q not found", id)
	}
	before := cloneSchema(current)
	if err := mutator(&current); err != nil {
		return ResultSchema{}, err
	}
	current.ID = id
	current.ProjectID = before.ProjectID
	current.Key = before.Key
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.schemas[id] = cloneSchema(current)
	tx.recordChange(Change{Entity: domain.EntityResultSchema, Action: domain.ActionUpdate, Before: before, After: cloneSchema(current)})
	return cloneSchema(current), nil
}

// DeleteResultSchema removes a schema row from the transaction state.
func (tx *transaction) DeleteResultSchema(id string) error {
	current, ok := tx.state.schemas[id]
	if !ok {
		return fmt.Errorf("result schema %q not found", id)
	}
	delete(tx.state.schemas, id)
	tx.recordChange(Change{Entity: domain.EntityResultSchema, Action: domain.ActionDelete, Before: cloneSchema(current)})
	return nil
}

// PutOutputConfig inserts or replaces the output configuration of a project.
func (tx *transaction) PutOutputConfig(c OutputConfig) (OutputConfig, error) {
	if _, ok := tx.state.projects[c.ProjectID]; !ok {
		return OutputConfig{}, fmt.Errorf("project %q not found", c.ProjectID)
	}
	if c.IncludedKeys == nil {
		c.IncludedKeys = []string{}
	}
	existing, exists := tx.state.outputs[c.ProjectID]
	if exists {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = tx.now
		tx.state.outputs[c.ProjectID] = cloneOutputConfig(c)
		tx.recordChange(Change{Entity: domain.EntityOutputConfig, Action: domain.ActionUpdate, Before: cloneOutputConfig(existing), After: cloneOutputConfig(c)})
		return cloneOutputConfig(c), nil
	}
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.outputs[c.ProjectID] = cloneOutputConfig(c)
	tx.recordChange(Change{Entity: domain.EntityOutputConfig, Action: domain.ActionCreate, After: cloneOutputConfig(c)})
	return cloneOutputConfig(c), nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListProjects()
}

// GetExperiment retrieves an experiment by ID.
func (s *Store) GetExperiment(id string) (Experiment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.experiments[id]
	if !ok {
		return Experiment{}, false
	}
	return cloneExperiment(e), true
}

// ListExperiments returns a project's experiments, newest first.
func (s *Store) ListExperiments(projectID string) []Experiment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListExperiments(projectID)
}

// GetResultSchema retrieves a schema row by ID.
func (s *Store) GetResultSchema(id string) (ResultSchema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.schemas[id]
	if !ok {
		return ResultSchema{}, false
	}
	return cloneSchema(r), true
}

// ListResultSchemas returns a project's schema rows in creation order.
func (s *Store) ListResultSchemas(projectID string) []ResultSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListResultSchemas(projectID)
}

// GetOutputConfig retrieves a project's output configuration.
func (s *Store) GetOutputConfig(projectID string) (OutputConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.outputs[projectID]
	if !ok {
		return OutputConfig{}, false
	}
	return cloneOutputConfig(c), true
}

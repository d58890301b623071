package core

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"labcore/pkg/domain"
)

// schemaKeyPattern constrains result-field keys to stable machine identifiers.
var schemaKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Service exposes transactional CRUD operations over the notebook entities.
// Experiment writes validate result values against the project's schema rows
// read within the same transaction.
type Service struct {
	store   domain.PersistentStore
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithMetricsRecorder attaches a metrics recorder to the service.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer attaches a tracer to the service.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrInvalidSchemaKey reports a result-field key outside the allowed pattern.
type ErrInvalidSchemaKey struct {
	Key string
}

func (e ErrInvalidSchemaKey) Error() string {
	return fmt.Sprintf("invalid field key %q: must match %s", e.Key, schemaKeyPattern.String())
}

// ErrInvalidMaterial reports a malformed material line on an experiment.
type ErrInvalidMaterial struct {
	Index  int
	Reason string
}

func (e ErrInvalidMaterial) Error() string {
	return fmt.Sprintf("material line %d: %s", e.Index, e.Reason)
}

func validateMaterials(lines []MaterialLine) error {
	for i, line := range lines {
		switch {
		case line.Name == "":
			return ErrInvalidMaterial{Index: i, Reason: "name must not be empty"}
		case line.Amount <= 0:
			return ErrInvalidMaterial{Index: i, Reason: "amount must be positive"}
		case line.Unit != domain.UnitGram && line.Unit != domain.UnitKilogram:
			return ErrInvalidMaterial{Index: i, Reason: fmt.Sprintf("unit must be %s or %s", domain.UnitGram, domain.UnitKilogram)}
		case line.Ratio < 0 || line.Ratio > 100:
			return ErrInvalidMaterial{Index: i, Reason: "ratio must be within 0..100"}
		}
	}
	return nil
}

// CreateProject persists a new project.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	var created Project
	var res Result
	err := s.instrument(ctx, "create_project", func(ctx context.Context) error {
		if project.Name == "" {
			return fmt.Errorf("project name must not be empty")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			created, err = tx.CreateProject(project)
			return err
		})
		return err
	})
	return created, res, err
}

// ProjectPatch carries the mutable project fields; nil pointers are untouched.
type ProjectPatch struct {
	Name            *string
	Type            *domain.ProjectType
	Status          *domain.ProjectStatus
	ExpectedEndDate *time.Time
}

// UpdateProject applies a partial update to a project.
func (s *Service) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (Project, Result, error) {
	var updated Project
	var res Result
	err := s.instrument(ctx, "update_project", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindProject(id); !ok {
				return ErrNotFound{Entity: EntityProject, ID: id}
			}
			updated, err = tx.UpdateProject(id, func(p *Project) error {
				if patch.Name != nil {
					if *patch.Name == "" {
						return fmt.Errorf("project name must not be empty")
					}
					p.Name = *patch.Name
				}
				if patch.Type != nil {
					p.Type = *patch.Type
				}
				if patch.Status != nil {
					p.Status = *patch.Status
				}
				if patch.ExpectedEndDate != nil {
					end := *patch.ExpectedEndDate
					p.ExpectedEndDate = &end
				}
				return nil
			})
			return err
		})
		return err
	})
	return updated, res, err
}

// DeleteProject removes a project and all records it owns.
func (s *Service) DeleteProject(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_project", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindProject(id); !ok {
				return ErrNotFound{Entity: EntityProject, ID: id}
			}
			return tx.DeleteProject(id)
		})
		return err
	})
	return res, err
}

// GetProject retrieves a project by ID.
func (s *Service) GetProject(id string) (Project, bool) {
	return s.store.GetProject(id)
}

// ListProjects returns all projects, newest first.
func (s *Service) ListProjects() []Project {
	return s.store.ListProjects()
}

// CreateExperiment persists a new experiment after validating its material
// lines and result values against the project's current schema rows.
func (s *Service) CreateExperiment(ctx context.Context, experiment Experiment) (Experiment, Result, error) {
	var created Experiment
	var res Result
	err := s.instrument(ctx, "create_experiment", func(ctx context.Context) error {
		if experiment.Name == "" {
			return fmt.Errorf("experiment name must not be empty")
		}
		if err := validateMaterials(experiment.Materials); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindProject(experiment.ProjectID); !ok {
				return ErrNotFound{Entity: EntityProject, ID: experiment.ProjectID}
			}
			index := domain.NewSchemaIndex(tx.ListResultSchemas(experiment.ProjectID))
			normalized, err := domain.ValidateResultValues(index, experiment.ResultValues, domain.UnknownFieldIgnore)
			if err != nil {
				return err
			}
			experiment.ResultValues = normalized
			created, err = tx.CreateExperiment(experiment)
			return err
		})
		return err
	})
	return created, res, err
}

// ExperimentPatch carries the mutable experiment fields; nil pointers are
// untouched. ResultValues nil means "not provided"; a non-nil map replaces the
// stored values after validation.
type ExperimentPatch struct {
	Name         *string
	Author       *string
	Purpose      *string
	Materials    *[]MaterialLine
	ResultValues map[string]any
}

// UpdateExperiment applies a partial update, re-validating result values only
// when the patch supplies them.
func (s *Service) UpdateExperiment(ctx context.Context, id string, patch ExperimentPatch) (Experiment, Result, error) {
	var updated Experiment
	var res Result
	err := s.instrument(ctx, "update_experiment", func(ctx context.Context) error {
		if patch.Materials != nil {
			if err := validateMaterials(*patch.Materials); err != nil {
				return err
			}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindExperiment(id)
			if !ok {
				return ErrNotFound{Entity: EntityExperiment, ID: id}
			}
			var normalized map[string]any
			if patch.ResultValues != nil {
				index := domain.NewSchemaIndex(tx.ListResultSchemas(current.ProjectID))
				normalized, err = domain.ValidateResultValues(index, patch.ResultValues, domain.UnknownFieldIgnore)
				if err != nil {
					return err
				}
			}
			updated, err = tx.UpdateExperiment(id, func(e *Experiment) error {
				if patch.Name != nil {
					if *patch.Name == "" {
						return fmt.Errorf("experiment name must not be empty")
					}
					e.Name = *patch.Name
				}
				if patch.Author != nil {
					e.Author = *patch.Author
				}
				if patch.Purpose != nil {
					e.Purpose = *patch.Purpose
				}
				if patch.Materials != nil {
					e.Materials = append([]MaterialLine(nil), (*patch.Materials)...)
				}
				if patch.ResultValues != nil {
					e.ResultValues = normalized
				}
				return nil
			})
			return err
		})
		return err
	})
	return updated, res, err
}

// DeleteExperiment removes an experiment record.
func (s *Service) DeleteExperiment(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_experiment", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindExperiment(id); !ok {
				return ErrNotFound{Entity: EntityExperiment, ID: id}
			}
			return tx.DeleteExperiment(id)
		})
		return err
	})
	return res, err
}

// GetExperiment retrieves an experiment by ID.
func (s *Service) GetExperiment(id string) (Experiment, bool) {
	return s.store.GetExperiment(id)
}

// ListExperiments returns a project's experiments, newest first. The project
// must exist.
func (s *Service) ListExperiments(projectID string) ([]Experiment, error) {
	if _, ok := s.store.GetProject(projectID); !ok {
		return nil, ErrNotFound{Entity: EntityProject, ID: projectID}
	}
	return s.store.ListExperiments(projectID), nil
}

// CreateResultSchema persists a new result-field definition.
func (s *Service) CreateResultSchema(ctx context.Context, schema ResultSchema) (ResultSchema, Result, error) {
	var created ResultSchema
	var res Result
	err := s.instrument(ctx, "create_result_schema", func(ctx context.Context) error {
		if !schemaKeyPattern.MatchString(schema.Key) {
			return ErrInvalidSchemaKey{Key: schema.Key}
		}
		if !domain.KnownValueType(schema.ValueType) {
			return fmt.Errorf("unknown value type %q", schema.ValueType)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindProject(schema.ProjectID); !ok {
				return ErrNotFound{Entity: EntityProject, ID: schema.ProjectID}
			}
			created, err = tx.CreateResultSchema(schema)
			return err
		})
		return err
	})
	return created, res, err
}

// SchemaPatch carries the mutable schema fields; nil pointers are untouched.
// The key is immutable once created (stored values reference it).
type SchemaPatch struct {
	Label       *string
	ValueType   *ValueType
	Unit        *string
	Description *string
	Options     *[]string
}

// UpdateResultSchema applies a partial update to a schema row.
func (s *Service) UpdateResultSchema(ctx context.Context, id string, patch SchemaPatch) (ResultSchema, Result, error) {
	var updated ResultSchema
	var res Result
	err := s.instrument(ctx, "update_result_schema", func(ctx context.Context) error {
		if patch.ValueType != nil && !domain.KnownValueType(*patch.ValueType) {
			return fmt.Errorf("unknown value type %q", *patch.ValueType)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindResultSchema(id); !ok {
				return ErrNotFound{Entity: EntityResultSchema, ID: id}
			}
			updated, err = tx.UpdateResultSchema(id, func(r *ResultSchema) error {
				if patch.Label != nil {
					r.Label = *patch.Label
				}
				if patch.ValueType != nil {
					r.ValueType = *patch.ValueType
				}
				if patch.Unit != nil {
					unit := *patch.Unit
					r.Unit = &unit
				}
				if patch.Description != nil {
					desc := *patch.Description
					r.Description = &desc
				}
				if patch.Options != nil {
					r.Options = append([]string(nil), (*patch.Options)...)
				}
				return nil
			})
			return err
		})
		return err
	})
	return updated, res, err
}

// DeleteResultSchema removes a schema row. Stored experiment values keyed by
// the deleted field remain untouched.
func (s *Service) DeleteResultSchema(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_result_schema", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindResultSchema(id); !ok {
				return ErrNotFound{Entity: EntityResultSchema, ID: id}
			}
			return tx.DeleteResultSchema(id)
		})
		return err
	})
	return res, err
}

// GetResultSchema retrieves a schema row by ID.
func (s *Service) GetResultSchema(id string) (ResultSchema, bool) {
	return s.store.GetResultSchema(id)
}

// ListResultSchemas returns a project's schema rows in creation order. The
// project must exist.
func (s *Service) ListResultSchemas(projectID string) ([]ResultSchema, error) {
	if _, ok := s.store.GetProject(projectID); !ok {
		return nil, ErrNotFound{Entity: EntityProject, ID: projectID}
	}
	return s.store.ListResultSchemas(projectID), nil
}

// PutOutputConfig inserts or replaces a project's output configuration.
// Included keys are filtered to the project's currently known schema keys,
// preserving submission order.
func (s *Service) PutOutputConfig(ctx context.Context, projectID string, includedKeys []string) (OutputConfig, Result, error) {
	var saved OutputConfig
	var res Result
	err := s.instrument(ctx, "put_output_config", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindProject(projectID); !ok {
				return ErrNotFound{Entity: EntityProject, ID: projectID}
			}
			known := make(map[string]struct{})
			for _, schema := range tx.ListResultSchemas(projectID) {
				known[schema.Key] = struct{}{}
			}
			filtered := make([]string, 0, len(includedKeys))
			seen := make(map[string]struct{})
			for _, key := range includedKeys {
				if _, ok := known[key]; !ok {
					continue
				}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				filtered = append(filtered, key)
			}
			saved, err = tx.PutOutputConfig(OutputConfig{ProjectID: projectID, IncludedKeys: filtered})
			return err
		})
		return err
	})
	return saved, res, err
}

// GetOutputConfig retrieves a project's output configuration. The project must
// exist; a project without a saved configuration yields ok=false.
func (s *Service) GetOutputConfig(projectID string) (OutputConfig, bool, error) {
	if _, ok := s.store.GetProject(projectID); !ok {
		return OutputConfig{}, false, ErrNotFound{Entity: EntityProject, ID: projectID}
	}
	config, ok := s.store.GetOutputConfig(projectID)
	return config, ok, nil
}

package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	CreateExperiment(Experiment) (Experiment, error)
	UpdateExperiment(id string, mutator func(*Experiment) error) (Experiment, error)
	DeleteExperiment(id string) error
	CreateResultSchema(ResultSchema) (ResultSchema, error)
	UpdateResultSchema(id string, mutator func(*ResultSchema) error) (ResultSchema, error)
	DeleteResultSchema(id string) error
	PutOutputConfig(OutputConfig) (OutputConfig, error)
	FindProject(id string) (Project, bool)
	FindExperiment(id string) (Experiment, bool)
	FindResultSchema(id string) (ResultSchema, bool)
	FindOutputConfig(projectID string) (OutputConfig, bool)
	ListResultSchemas(projectID string) []ResultSchema
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListProjects() []Project
	ListExperiments(projectID string) []Experiment
	ListResultSchemas(projectID string) []ResultSchema
	FindProject(id string) (Project, bool)
	FindExperiment(id string) (Experiment, bool)
	FindResultSchema(id string) (ResultSchema, bool)
	FindOutputConfig(projectID string) (OutputConfig, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetExperiment(id string) (Experiment, bool)
	ListExperiments(projectID string) []Experiment
	GetResultSchema(id string) (ResultSchema, bool)
	ListResultSchemas(projectID string) []ResultSchema
	GetOutputConfig(projectID string) (OutputConfig, bool)
}

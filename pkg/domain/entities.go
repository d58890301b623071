// Package domain defines the core persistent entities, value types, the
// result-value validation engine, and rule evaluation primitives used by
// labcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntityExperiment identifies an experiment record.
	EntityExperiment EntityType = "experiment"
	// EntityResultSchema identifies a result-field schema record.
	EntityResultSchema EntityType = "result_schema"
	// EntityOutputConfig identifies an output configuration record.
	EntityOutputConfig EntityType = "output_config"
)

// ProjectType distinguishes customer-voice projects from regular research projects.
type ProjectType string

// Canonical project types.
const (
	ProjectTypeVOC     ProjectType = "VOC"
	ProjectTypeRegular ProjectType = "REGULAR"
)

// ProjectStatus enumerates project lifecycle states.
type ProjectStatus string

// Canonical project statuses.
const (
	ProjectStatusOngoing ProjectStatus = "ONGOING"
	ProjectStatusClosed  ProjectStatus = "CLOSED"
)

// ValueType declares how a result field's values are validated. The set is
// closed; the validator dispatches exhaustively over it.
type ValueType string

// Supported result-field value types.
const (
	// ValueQuantitative accepts numeric scalars or sequences of numerics.
	ValueQuantitative ValueType = "quantitative"
	// ValueQualitative accepts free-form text.
	ValueQualitative ValueType = "qualitative"
	// ValueCategorical accepts one string out of a declared option set.
	ValueCategorical ValueType = "categorical"
)

// KnownValueType reports whether t is one of the supported value types.
func KnownValueType(t ValueType) bool {
	switch t {
	case ValueQuantitative, ValueQualitative, ValueCategorical:
		return true
	}
	return false
}

// MaterialUnit enumerates accepted material amount units.
type MaterialUnit string

// Accepted material units.
const (
	UnitGram     MaterialUnit = "g"
	UnitKilogram MaterialUnit = "kg"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project captures a named research effort owning experiments, result
// schemas, and one output configuration.
type Project struct {
	Base
	Name            string        `json:"name"`
	Type            ProjectType   `json:"project_type"`
	Status          ProjectStatus `json:"status"`
	ExpectedEndDate *time.Time    `json:"expected_end_date"`
}

// MaterialLine records one material input of an experiment.
type MaterialLine struct {
	Name   string       `json:"name"`
	Amount float64      `json:"amount"`
	Unit   MaterialUnit `json:"unit"`
	Ratio  float64      `json:"ratio"`
}

// Experiment records one trial within a project: material inputs plus the
// result-value map validated against the project's schema rows.
type Experiment struct {
	Base
	ProjectID    string         `json:"project_id"`
	Name         string         `json:"name"`
	Author       string         `json:"author"`
	Purpose      string         `json:"purpose"`
	Materials    []MaterialLine `json:"materials"`
	ResultValues map[string]any `json:"result_values"`
}

// ResultSchema declares one result field of a project: a stable key, a
// display label, the value type, and (for categorical fields) the allowed
// options in display order.
type ResultSchema struct {
	Base
	ProjectID   string    `json:"project_id"`
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	ValueType   ValueType `json:"value_type"`
	Unit        *string   `json:"unit"`
	Description *string   `json:"description"`
	Options     []string  `json:"options"`
}

// OutputConfig selects which result-field keys appear in exported tables.
// At most one exists per project.
type OutputConfig struct {
	Base
	ProjectID    string   `json:"project_id"`
	IncludedKeys []string `json:"included_keys"`
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

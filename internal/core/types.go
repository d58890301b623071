package core

import "labcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	ValueType          = domain.ValueType
	Severity           = domain.Severity
	Base               = domain.Base
	Project            = domain.Project
	Experiment         = domain.Experiment
	ResultSchema       = domain.ResultSchema
	OutputConfig       = domain.OutputConfig
	MaterialLine       = domain.MaterialLine
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
)

const (
	EntityProject      = domain.EntityProject
	EntityExperiment   = domain.EntityExperiment
	EntityResultSchema = domain.EntityResultSchema
	EntityOutputConfig = domain.EntityOutputConfig
)

const (
	ValueQuantitative = domain.ValueQuantitative
	ValueQualitative  = domain.ValueQualitative
	ValueCategorical  = domain.ValueCategorical
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

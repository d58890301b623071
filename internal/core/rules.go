package core

import (
	"context"
	"fmt"
	"strings"

	"labcore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewProjectNameUniqueRule())
	engine.Register(NewSchemaKeyUniqueRule())
	engine.Register(NewCategoricalOptionsRule())
	engine.Register(NewOutputConfigKeysRule())
	return engine
}

// NewProjectNameUniqueRule returns the rule rejecting duplicate project names.
func NewProjectNameUniqueRule() domain.Rule {
	return projectNameUniqueRule{}
}

type projectNameUniqueRule struct{}

func (projectNameUniqueRule) Name() string { return "project_name_unique" }

func (projectNameUniqueRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	seen := make(map[string]string)
	res := domain.Result{}
	for _, project := range view.ListProjects() {
		if firstID, ok := seen[project.Name]; ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "project_name_unique",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("project name %q already used by project %s", project.Name, firstID),
				Entity:   domain.EntityProject,
				EntityID: project.ID,
			})
			continue
		}
		seen[project.Name] = project.ID
	}
	return res, nil
}

// NewSchemaKeyUniqueRule returns the rule rejecting duplicate result-field
// keys within one project.
func NewSchemaKeyUniqueRule() domain.Rule {
	return schemaKeyUniqueRule{}
}

type schemaKeyUniqueRule struct{}

func (schemaKeyUniqueRule) Name() string { return "schema_key_unique" }

func (schemaKeyUniqueRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, project := range view.ListProjects() {
		seen := make(map[string]string)
		for _, schema := range view.ListResultSchemas(project.ID) {
			if firstID, ok := seen[schema.Key]; ok {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "schema_key_unique",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("result field key %q already defined by schema %s in project %s", schema.Key, firstID, project.ID),
					Entity:   domain.EntityResultSchema,
					EntityID: schema.ID,
				})
				continue
			}
			seen[schema.Key] = schema.ID
		}
	}
	return res, nil
}

// NewCategoricalOptionsRule returns the rule requiring categorical schema rows
// to declare at least one option.
func NewCategoricalOptionsRule() domain.Rule {
	return categoricalOptionsRule{}
}

type categoricalOptionsRule struct{}

func (categoricalOptionsRule) Name() string { return "categorical_options_required" }

func (categoricalOptionsRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, project := range view.ListProjects() {
		for _, schema := range view.ListResultSchemas(project.ID) {
			if schema.ValueType == domain.ValueCategorical && len(schema.Options) == 0 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "categorical_options_required",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("categorical field %q requires at least one option", schema.Key),
					Entity:   domain.EntityResultSchema,
					EntityID: schema.ID,
				})
			}
		}
	}
	return res, nil
}

// NewOutputConfigKeysRule returns the advisory rule flagging output
// configurations that reference keys with no matching schema row. This can
// arise legitimately when a schema row is deleted after the config was saved,
// so the severity is warn, not block.
func NewOutputConfigKeysRule() domain.Rule {
	return outputConfigKeysRule{}
}

type outputConfigKeysRule struct{}

func (outputConfigKeysRule) Name() string { return "output_config_keys_known" }

func (outputConfigKeysRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, project := range view.ListProjects() {
		config, ok := view.FindOutputConfig(project.ID)
		if !ok {
			continue
		}
		known := make(map[string]struct{})
		for _, schema := range view.ListResultSchemas(project.ID) {
			known[schema.Key] = struct{}{}
		}
		var stale []string
		for _, key := range config.IncludedKeys {
			if _, ok := known[key]; !ok {
				stale = append(stale, key)
			}
		}
		if len(stale) > 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "output_config_keys_known",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("output config of project %s references unknown keys: %s", project.ID, strings.Join(stale, ", ")),
				Entity:   domain.EntityOutputConfig,
				EntityID: config.ID,
			})
		}
	}
	return res, nil
}

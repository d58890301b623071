package core

import (
	"context"
	"fmt"
	"time"

	"labcore/pkg/domain"
)

// Seed installs the demo dataset when the store holds no projects. Repeated
// calls are no-ops, so startup can invoke it unconditionally.
func Seed(ctx context.Context, svc *Service) error {
	if len(svc.ListProjects()) > 0 {
		return nil
	}

	end := time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)
	project, _, err := svc.CreateProject(ctx, Project{
		Name:            "Adhesive Optimization",
		Type:            domain.ProjectTypeVOC,
		Status:          domain.ProjectStatusOngoing,
		ExpectedEndDate: &end,
	})
	if err != nil {
		return fmt.Errorf("seed project: %w", err)
	}

	mpas := "mPa·s"
	schemas := []ResultSchema{
		{ProjectID: project.ID, Key: "viscosity_cps", Label: "Viscosity", ValueType: ValueQuantitative, Unit: &mpas},
		{ProjectID: project.ID, Key: "ph", Label: "pH", ValueType: ValueQuantitative},
		{ProjectID: project.ID, Key: "peel_strength", Label: "Peel Strength", ValueType: ValueQuantitative},
		{ProjectID: project.ID, Key: "appearance", Label: "Appearance", ValueType: ValueCategorical, Options: []string{"clear", "cloudy", "opaque"}},
		{ProjectID: project.ID, Key: "notes", Label: "Notes", ValueType: ValueQualitative},
	}
	keys := make([]string, 0, len(schemas))
	for _, schema := range schemas {
		if _, _, err := svc.CreateResultSchema(ctx, schema); err != nil {
			return fmt.Errorf("seed schema %s: %w", schema.Key, err)
		}
		keys = append(keys, schema.Key)
	}

	if _, _, err := svc.PutOutputConfig(ctx, project.ID, keys); err != nil {
		return fmt.Errorf("seed output config: %w", err)
	}

	experiments := []Experiment{
		{
			ProjectID: project.ID,
			Name:      "Batch A",
			Author:    "imai",
			Purpose:   "baseline formulation",
			Materials: []MaterialLine{
				{Name: "resin", Amount: 120, Unit: domain.UnitGram, Ratio: 60},
				{Name: "hardener", Amount: 80, Unit: domain.UnitGram, Ratio: 40},
			},
			ResultValues: map[string]any{
				"viscosity_cps": 3200.0,
				"ph":            6.8,
				"peel_strength": 14.2,
				"appearance":    "clear",
				"notes":         "smooth application, no bubbles",
			},
		},
		{
			ProjectID: project.ID,
			Name:      "Batch B",
			Author:    "imai",
			Purpose:   "increase hardener ratio",
			Materials: []MaterialLine{
				{Name: "resin", Amount: 100, Unit: domain.UnitGram, Ratio: 50},
				{Name: "hardener", Amount: 100, Unit: domain.UnitGram, Ratio: 50},
			},
			ResultValues: map[string]any{
				"viscosity_cps": 4100.0,
				"ph":            6.5,
				"peel_strength": 16.9,
				"appearance":    "cloudy",
				"notes":         "slightly faster cure",
			},
		},
		{
			ProjectID: project.ID,
			Name:      "Batch C",
			Author:    "sato",
			Purpose:   "low-viscosity variant",
			Materials: []MaterialLine{
				{Name: "resin", Amount: 1.2, Unit: domain.UnitKilogram, Ratio: 70},
				{Name: "diluent", Amount: 0.5, Unit: domain.UnitKilogram, Ratio: 30},
			},
			ResultValues: map[string]any{
				"viscosity_cps": 1800.0,
				"ph":            7.1,
				"appearance":    "clear",
			},
		},
	}
	for _, experiment := range experiments {
		if _, _, err := svc.CreateExperiment(ctx, experiment); err != nil {
			return fmt.Errorf("seed experiment %s: %w", experiment.Name, err)
		}
	}

	log.Infof("seeded demo project %s with %d schema rows and %d experiments", project.ID, len(schemas), len(experiments))
	return nil
}

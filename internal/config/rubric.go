package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/autograde/internal/models"
)

//go:embed rubric.schema.json
var rubricSchema string

// Rubric is a decoded rubric file.
type Rubric struct {
	Criteria   models.GradingCriteria
	Assignment *models.AssignmentContext
	// Warnings are problems that do not prevent grading.
	Warnings []string
}

type rubricFile struct {
	Name       string                    `json:"name" yaml:"name"`
	Assignment *models.AssignmentContext `json:"assignment" yaml:"assignment"`
	Criteria   []models.Criterion        `json:"criteria" yaml:"criteria"`
}

// LoadRubric reads a YAML or JSON rubric. Files ending in .json are decoded
// as JSON; everything else as YAML.
func LoadRubric(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}
	asJSON := strings.EqualFold(filepath.Ext(path), ".json")
	r, err := ParseRubric(data, asJSON)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseRubric validates and decodes rubric data.
func ParseRubric(data []byte, asJSON bool) (*Rubric, error) {
	var doc any
	var err error
	if asJSON {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}
	if err := validateRubric(doc); err != nil {
		return nil, err
	}

	var f rubricFile
	if asJSON {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode rubric: %w", err)
	}

	seen := make(map[string]bool, len(f.Criteria))
	for _, c := range f.Criteria {
		if seen[c.ID] {
			return nil, fmt.Errorf("rubric validation failed: duplicate criterion id %q", c.ID)
		}
		seen[c.ID] = true
	}

	return &Rubric{
		Criteria:   models.GradingCriteria{Name: f.Name, Items: f.Criteria},
		Assignment: f.Assignment,
		Warnings:   rubricWarnings(f.Criteria),
	}, nil
}

func validateRubric(doc any) error {
	if doc == nil {
		return fmt.Errorf("rubric validation failed: document is empty")
	}
	schemaLoader := gojsonschema.NewStringLoader(rubricSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("rubric schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	sort.Strings(errs)
	return fmt.Errorf("rubric validation failed: %s", strings.Join(errs, "; "))
}

func rubricWarnings(items []models.Criterion) []string {
	var warnings []string
	for _, c := range items {
		if !c.RatingsMonotonic() {
			warnings = append(warnings, fmt.Sprintf("criterion %q: ratings are not ordered from highest to lowest points", c.ID))
		}
		for _, r := range c.Ratings {
			if r.Points > c.Points {
				warnings = append(warnings, fmt.Sprintf("criterion %q: rating %q awards %g points, more than the criterion's %g", c.ID, r.Name, r.Points, c.Points))
			}
		}
	}
	return warnings
}

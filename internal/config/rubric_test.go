package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlRubric = `
name: Roll-a-ball
assignment:
  name: Lab 3
  instructions: Build a rolling ball game with collectibles.
criteria:
  - id: movement
    name: Player movement
    points: 40
    ratings:
      - name: Full
        points: 40
      - name: Partial
        points: 20
      - name: None
        points: 0
  - id: ui
    name: Score display
    points: 10
`

func TestParseRubric_YAML(t *testing.T) {
	r, err := ParseRubric([]byte(yamlRubric), false)
	require.NoError(t, err)

	assert.Equal(t, "Roll-a-ball", r.Criteria.Name)
	require.Len(t, r.Criteria.Items, 2)
	assert.Equal(t, 50.0, r.Criteria.TotalPoints())
	require.NotNil(t, r.Assignment)
	assert.Equal(t, "Lab 3", r.Assignment.Name)
	assert.Empty(t, r.Warnings)
}

func TestLoadRubric_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.json")
	data := `{"criteria":[{"id":"a","name":"A","points":5},{"id":"b","name":"B","points":2.5}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	r, err := LoadRubric(path)
	require.NoError(t, err)
	assert.Equal(t, 7.5, r.Criteria.TotalPoints())
	assert.Nil(t, r.Assignment)
}

func TestParseRubric_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty"},
		{"no criteria", "name: x\n", "criteria"},
		{"empty criteria", "criteria: []\n", "criteria"},
		{"missing points", "criteria:\n  - id: a\n    name: A\n", "points"},
		{"negative points", "criteria:\n  - id: a\n    name: A\n    points: -1\n", "points"},
		{"unknown field", "criteria:\n  - id: a\n    name: A\n    points: 1\n    weight: 2\n", "weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRubric([]byte(tt.doc), false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRubric_DuplicateID(t *testing.T) {
	doc := "criteria:\n  - id: a\n    name: A\n    points: 1\n  - id: a\n    name: B\n    points: 2\n"
	_, err := ParseRubric([]byte(doc), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseRubric_Warnings(t *testing.T) {
	doc := `
criteria:
  - id: a
    name: A
    points: 10
    ratings:
      - name: Low
        points: 2
      - name: High
        points: 12
`
	r, err := ParseRubric([]byte(doc), false)
	require.NoError(t, err)
	require.Len(t, r.Warnings, 2)
	assert.Contains(t, r.Warnings[0], "not ordered")
	assert.Contains(t, r.Warnings[1], "High")
}

func TestLoadRubric_Missing(t *testing.T) {
	_, err := LoadRubric(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

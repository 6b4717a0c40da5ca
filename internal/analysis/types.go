package analysis

import "github.com/joescharf/autograde/internal/project"

// Unknown marks a project-level fact that could not be determined.
const Unknown = "unknown"

// TypeDecl is a lexically extracted type declaration.
type TypeDecl struct {
	Kind     string   `json:"kind"` // class, struct, interface or enum
	Name     string   `json:"name"`
	Access   string   `json:"access,omitempty"`
	Inherits []string `json:"inherits,omitempty"`
}

// MemberDecl is a lexically extracted method-like member declaration.
type MemberDecl struct {
	Access     string `json:"access,omitempty"`
	ReturnType string `json:"return_type"`
	Name       string `json:"name"`
}

// PatternCounts counts recognized engine API usages.
type PatternCounts struct {
	MonoBehaviour   int `json:"monobehaviour"`
	VectorUsage     int `json:"vector_usage"`
	TransformAccess int `json:"transform_access"`
	PhysicsUsage    int `json:"physics_usage"`
	Coroutines      int `json:"coroutines"`
	Events          int `json:"events"`
}

// Add sums o into p.
func (p *PatternCounts) Add(o PatternCounts) {
	p.MonoBehaviour += o.MonoBehaviour
	p.VectorUsage += o.VectorUsage
	p.TransformAccess += o.TransformAccess
	p.PhysicsUsage += o.PhysicsUsage
	p.Coroutines += o.Coroutines
	p.Events += o.Events
}

// Total returns the sum of all pattern counts.
func (p PatternCounts) Total() int {
	return p.MonoBehaviour + p.VectorUsage + p.TransformAccess + p.PhysicsUsage + p.Coroutines + p.Events
}

// ConceptEvidence holds literal source snippets grouped by concept.
// Snippets are neither deduplicated nor truncated.
type ConceptEvidence struct {
	VectorOperations   []string `json:"vector_operations"`
	RotationOperations []string `json:"rotation_operations"`
	TransformMutations []string `json:"transform_mutations"`
	PhysicsForces      []string `json:"physics_forces"`
	Trigonometry       []string `json:"trigonometry"`
	Interpolation      []string `json:"interpolation"`
}

// Append concatenates o onto e.
func (e *ConceptEvidence) Append(o ConceptEvidence) {
	e.VectorOperations = append(e.VectorOperations, o.VectorOperations...)
	e.RotationOperations = append(e.RotationOperations, o.RotationOperations...)
	e.TransformMutations = append(e.TransformMutations, o.TransformMutations...)
	e.PhysicsForces = append(e.PhysicsForces, o.PhysicsForces...)
	e.Trigonometry = append(e.Trigonometry, o.Trigonometry...)
	e.Interpolation = append(e.Interpolation, o.Interpolation...)
}

// ConceptCategory is a named view of one evidence list.
type ConceptCategory struct {
	Name     string
	Evidence []string
}

// Categories returns the evidence lists in a fixed order.
func (e ConceptEvidence) Categories() []ConceptCategory {
	return []ConceptCategory{
		{"Vector operations", e.VectorOperations},
		{"Rotation operations", e.RotationOperations},
		{"Transform mutations", e.TransformMutations},
		{"Physics and forces", e.PhysicsForces},
		{"Trigonometry", e.Trigonometry},
		{"Interpolation", e.Interpolation},
	}
}

// CodeQuality summarizes comment density and organizational markers.
type CodeQuality struct {
	TotalLines    int     `json:"total_lines"`
	NonEmptyLines int     `json:"non_empty_lines"`
	CommentLines  int     `json:"comment_lines"`
	CommentRatio  float64 `json:"comment_ratio"`
	HasRegions    bool    `json:"has_regions"`
	HasUsings     bool    `json:"has_usings"`
	HasNamespace  bool    `json:"has_namespace"`
}

// FileAnalysis holds the facts extracted from one source file. A file that
// could not be read or decoded has Error set and zero-valued metrics.
type FileAnalysis struct {
	Path     string          `json:"path"`
	Lines    int             `json:"lines"`
	Bytes    int64           `json:"bytes"`
	Types    []TypeDecl      `json:"types,omitempty"`
	Members  []MemberDecl    `json:"members,omitempty"`
	Patterns PatternCounts   `json:"patterns"`
	Concepts ConceptEvidence `json:"concepts"`
	Quality  CodeQuality     `json:"quality"`
	Error    string          `json:"error,omitempty"`
}

// ProjectAnalysis aggregates FileAnalysis entries and project-level facts.
type ProjectAnalysis struct {
	ProjectPath string `json:"project_path"`

	TotalFiles   int   `json:"total_files"`
	ErroredFiles int   `json:"errored_files"`
	TotalLines   int   `json:"total_lines"`
	TotalTypes   int   `json:"total_types"`
	TotalMembers int   `json:"total_members"`
	SourceBytes  int64 `json:"source_bytes"`

	Patterns PatternCounts   `json:"patterns"`
	Concepts ConceptEvidence `json:"concepts"`
	Quality  CodeQuality     `json:"quality"`

	EngineVersion      string                 `json:"engine_version"`
	SceneCount         int                    `json:"scene_count"` // -1 when the scan failed
	HasScenes          bool                   `json:"has_scenes"`
	ManifestFound      bool                   `json:"manifest_found"`
	ThirdPartyPackages []string               `json:"third_party_packages"`
	Structure          project.StructureFlags `json:"structure"`

	Files []FileAnalysis `json:"files"`
}

// Types returns every extracted type declaration in file order.
func (p *ProjectAnalysis) Types() []TypeDecl {
	var out []TypeDecl
	for _, f := range p.Files {
		out = append(out, f.Types...)
	}
	return out
}

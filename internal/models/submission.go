package models

import "time"

// SubmissionStatus is the terminal state of a recorded pipeline run.
type SubmissionStatus string

const (
	SubmissionStatusGraded   SubmissionStatus = "graded"
	SubmissionStatusAnalyzed SubmissionStatus = "analyzed" // success without a grade
	SubmissionStatusFailed   SubmissionStatus = "failed"
)

// Submission is a persisted record of one grading pipeline invocation.
type Submission struct {
	ID               string           `json:"id"`
	Student          string           `json:"student,omitempty"`
	Assignment       string           `json:"assignment,omitempty"`
	RepoURL          string           `json:"repo_url"`
	Status           SubmissionStatus `json:"status"`
	ErrorKind        string           `json:"error_kind,omitempty"`
	Message          string           `json:"message,omitempty"`
	NeedsHumanReview bool             `json:"needs_human_review"`
	Grade            *float64         `json:"grade,omitempty"`
	FinalGrade       *float64         `json:"final_grade,omitempty"`
	MaxPoints        float64          `json:"max_points,omitempty"`
	Backend          string           `json:"backend,omitempty"`
	ResultJSON       string           `json:"-"` // encoded GradeResult
	AnalysisJSON     string           `json:"-"` // encoded ProjectAnalysis
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

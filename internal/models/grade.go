package models

// CriterionScore is the backend's score and rationale for one rubric item.
type CriterionScore struct {
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"max_score,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
}

// GradeResult is the structured outcome of grading one submission.
type GradeResult struct {
	Grade          float64                   `json:"grade"`
	MaxPoints      float64                   `json:"max_points"`
	Feedback       string                    `json:"feedback,omitempty"`
	CriteriaScores map[string]CriterionScore `json:"criteria_scores"`

	// RawResponse is kept when the backend output could not be decoded.
	RawResponse string `json:"raw_response,omitempty"`
	ParseFailed bool   `json:"parse_failed,omitempty"`

	// Penalty is set once a late penalty has been applied to Grade.
	Penalty *AppliedPenalty `json:"penalty,omitempty"`
}

// FinalGrade returns the adjusted grade when a penalty was applied, otherwise Grade.
func (r *GradeResult) FinalGrade() float64 {
	if r.Penalty != nil {
		return r.Penalty.AdjustedGrade
	}
	return r.Grade
}

// PenaltyInfo holds computed lateness facts before they are applied to a grade.
type PenaltyInfo struct {
	IsLate            bool    `json:"is_late"`
	HoursLate         float64 `json:"hours_late"`
	DaysLate          int     `json:"days_late"`
	PenaltyPercentage float64 `json:"penalty_percentage"`
}

// AppliedPenalty records a grade adjustment alongside the pre-penalty grade.
type AppliedPenalty struct {
	OriginalGrade     float64 `json:"original_grade"`
	AdjustedGrade     float64 `json:"adjusted_grade"`
	PenaltyPoints     float64 `json:"penalty_points"`
	PenaltyPercentage float64 `json:"penalty_percentage"`
	DaysLate          int     `json:"days_late"`
}

package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joescharf/autograde/internal/models"
)

// Record converts an outcome into a submission row. Student, assignment and
// backend are caller metadata the pipeline does not track.
func (o Outcome) Record(req Request, student, assignment, backend string) (*models.Submission, error) {
	sub := &models.Submission{
		Student:     student,
		Assignment:  assignment,
		RepoURL:     req.RepoURL,
		SubmittedAt: req.SubmittedAt,
		MaxPoints:   req.Criteria.TotalPoints(),
		CreatedAt:   time.Now().UTC(),
	}

	switch {
	case o.Failure != nil:
		sub.Status = models.SubmissionStatusFailed
		sub.ErrorKind = string(o.Failure.Kind)
		sub.Message = o.Failure.Message
		sub.NeedsHumanReview = o.Failure.NeedsHumanReview
	case o.Grade != nil:
		sub.Status = models.SubmissionStatusGraded
		sub.Backend = backend
		grade := o.Grade.Grade
		if o.Grade.Penalty != nil {
			grade = o.Grade.Penalty.OriginalGrade
		}
		final := o.Grade.FinalGrade()
		sub.Grade = &grade
		sub.FinalGrade = &final
		if o.Grade.MaxPoints > 0 {
			sub.MaxPoints = o.Grade.MaxPoints
		}
		sub.NeedsHumanReview = o.Grade.ParseFailed
		data, err := json.Marshal(o.Grade)
		if err != nil {
			return nil, fmt.Errorf("encode grade: %w", err)
		}
		sub.ResultJSON = string(data)
	default:
		sub.Status = models.SubmissionStatusAnalyzed
	}

	if o.Analysis != nil {
		data, err := json.Marshal(o.Analysis)
		if err != nil {
			return nil, fmt.Errorf("encode analysis: %w", err)
		}
		sub.AnalysisJSON = string(data)
	}
	return sub, nil
}

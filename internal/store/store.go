package store

import (
	"context"
	"errors"

	"github.com/joescharf/autograde/internal/models"
)

// ErrNotFound is returned when a submission does not exist.
var ErrNotFound = errors.New("not found")

// SubmissionListFilter specifies filters for listing submissions.
type SubmissionListFilter struct {
	Student     string
	Assignment  string
	Status      models.SubmissionStatus
	NeedsReview bool
	Limit       int
}

// Store defines the persistence interface for autograde.
type Store interface {
	// Submissions
	CreateSubmission(ctx context.Context, sub *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionListFilter) ([]*models.Submission, error)
	DeleteSubmission(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

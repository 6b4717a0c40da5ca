package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/autograde/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSubmissionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	submitted := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	sub := &models.Submission{
		Student:     "ada",
		Assignment:  "lab3",
		RepoURL:     "https://github.com/ada/roll-a-ball",
		Status:      models.SubmissionStatusGraded,
		Grade:       ptr(80.0),
		FinalGrade:  ptr(60.0),
		MaxPoints:   100,
		Backend:     "anthropic",
		ResultJSON:  `{"grade":80}`,
		SubmittedAt: &submitted,
	}
	require.NoError(t, s.CreateSubmission(ctx, sub))
	assert.NotEmpty(t, sub.ID)
	assert.False(t, sub.CreatedAt.IsZero())

	got, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Student)
	assert.Equal(t, models.SubmissionStatusGraded, got.Status)
	require.NotNil(t, got.Grade)
	assert.Equal(t, 80.0, *got.Grade)
	require.NotNil(t, got.FinalGrade)
	assert.Equal(t, 60.0, *got.FinalGrade)
	require.NotNil(t, got.SubmittedAt)
	assert.True(t, submitted.Equal(*got.SubmittedAt))
	assert.Equal(t, `{"grade":80}`, got.ResultJSON)

	require.NoError(t, s.DeleteSubmission(ctx, sub.ID))
	_, err = s.GetSubmission(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSubmission(ctx, sub.ID), ErrNotFound)
}

func TestCreateSubmission_FailureHasNoGrade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := &models.Submission{
		RepoURL:          "https://github.com/ada/private",
		Status:           models.SubmissionStatusFailed,
		ErrorKind:        "private_or_inaccessible",
		Message:          "private",
		NeedsHumanReview: true,
	}
	require.NoError(t, s.CreateSubmission(ctx, sub))

	got, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Grade)
	assert.Nil(t, got.FinalGrade)
	assert.Nil(t, got.SubmittedAt)
	assert.True(t, got.NeedsHumanReview)
	assert.Equal(t, "private_or_inaccessible", got.ErrorKind)
}

func TestListSubmissions_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*models.Submission{
		{Student: "ada", Assignment: "lab1", RepoURL: "u1", Status: models.SubmissionStatusGraded},
		{Student: "ada", Assignment: "lab2", RepoURL: "u2", Status: models.SubmissionStatusFailed, NeedsHumanReview: true},
		{Student: "bob", Assignment: "lab1", RepoURL: "u3", Status: models.SubmissionStatusAnalyzed},
	}
	for i, r := range rows {
		r.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.CreateSubmission(ctx, r))
	}

	all, err := s.ListSubmissions(ctx, SubmissionListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "u3", all[0].RepoURL, "newest first")

	tests := []struct {
		name   string
		filter SubmissionListFilter
		want   []string
	}{
		{"student", SubmissionListFilter{Student: "ada"}, []string{"u2", "u1"}},
		{"assignment", SubmissionListFilter{Assignment: "lab1"}, []string{"u3", "u1"}},
		{"status", SubmissionListFilter{Status: models.SubmissionStatusFailed}, []string{"u2"}},
		{"needs review", SubmissionListFilter{NeedsReview: true}, []string{"u2"}},
		{"limit", SubmissionListFilter{Limit: 1}, []string{"u3"}},
		{"none", SubmissionListFilter{Student: "eve"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListSubmissions(ctx, tt.filter)
			require.NoError(t, err)
			var urls []string
			for _, g := range got {
				urls = append(urls, g.RepoURL)
			}
			assert.Equal(t, tt.want, urls)
		})
	}
}

func TestNewULID_Sorted(t *testing.T) {
	prev := newULID()
	for range 100 {
		next := newULID()
		assert.Greater(t, next, prev)
		prev = next
	}
}

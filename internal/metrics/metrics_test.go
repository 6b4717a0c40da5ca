package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/pipeline"
)

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.OnTransition(pipeline.StateValidatingReference, pipeline.StateCheckingExistence)
	m.Observe(pipeline.Outcome{Success: true, Stage: pipeline.StateDone, Grade: &models.GradeResult{}, Duration: 2 * time.Second})
	m.Observe(pipeline.Outcome{Stage: pipeline.StateFailed, Failure: &pipeline.Failure{Kind: pipeline.KindNotFound}})
	m.Observe(pipeline.Outcome{Success: true, Stage: pipeline.StateDone})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `autograde_runs_total{error_kind="",result="graded"} 1`)
	assert.Contains(t, text, `autograde_runs_total{error_kind="not_found",result="failed"} 1`)
	assert.Contains(t, text, `autograde_runs_total{error_kind="",result="analyzed"} 1`)
	assert.Contains(t, text, `autograde_stage_entries_total{stage="checking_existence"} 1`)
	assert.Contains(t, text, "autograde_run_duration_seconds_count 3")
}

package penalty

import (
	"errors"
	"math"
	"time"

	"github.com/joescharf/autograde/internal/models"
)

// ErrAlreadyApplied is returned when a penalty is applied to a result that already carries one.
var ErrAlreadyApplied = errors.New("late penalty already applied")

// Policy holds the late-submission policy parameters.
type Policy struct {
	PerDayRate float64 `json:"per_day_rate" mapstructure:"per_day_rate"` // percent per day late
	CapRate    float64 `json:"cap_rate" mapstructure:"cap_rate"`         // maximum percent
	GraceHours float64 `json:"grace_hours" mapstructure:"grace_hours"`
}

// DefaultPolicy returns 10% per day capped at 50%, no grace period.
func DefaultPolicy() Policy {
	return Policy{PerDayRate: 10, CapRate: 50}
}

// Compute derives lateness and the penalty percentage for a submission.
func Compute(dueAt, submittedAt time.Time, p Policy) models.PenaltyInfo {
	grace := time.Duration(p.GraceHours * float64(time.Hour))
	late := submittedAt.Sub(dueAt) - grace
	if late <= 0 {
		return models.PenaltyInfo{}
	}

	hours := late.Hours()
	days := int(math.Ceil(hours / 24))
	pct := float64(days) * p.PerDayRate
	if pct > p.CapRate {
		pct = p.CapRate
	}

	return models.PenaltyInfo{
		IsLate:            true,
		HoursLate:         round2(hours),
		DaysLate:          days,
		PenaltyPercentage: pct,
	}
}

// Apply converts the penalty percentage into points and subtracts it from the grade.
// The adjusted grade never drops below zero.
func Apply(originalGrade, maxPoints float64, info models.PenaltyInfo) models.AppliedPenalty {
	points := maxPoints * info.PenaltyPercentage / 100
	adjusted := originalGrade - points
	if adjusted < 0 {
		adjusted = 0
	}
	return models.AppliedPenalty{
		OriginalGrade:     originalGrade,
		AdjustedGrade:     round2(adjusted),
		PenaltyPoints:     round2(points),
		PenaltyPercentage: info.PenaltyPercentage,
		DaysLate:          info.DaysLate,
	}
}

// ApplyToResult stores the adjusted grade on r, keeping the original in r.Grade.
// A result can carry at most one penalty; call Restore before re-applying.
func ApplyToResult(r *models.GradeResult, info models.PenaltyInfo) error {
	if r.Penalty != nil {
		return ErrAlreadyApplied
	}
	if !info.IsLate {
		return nil
	}
	applied := Apply(r.Grade, r.MaxPoints, info)
	r.Penalty = &applied
	return nil
}

// Restore removes an applied penalty so the result reflects the original grade.
func Restore(r *models.GradeResult) {
	if r.Penalty != nil {
		r.Grade = r.Penalty.OriginalGrade
		r.Penalty = nil
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

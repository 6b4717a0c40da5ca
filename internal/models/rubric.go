package models

// Rating is one level of a rubric criterion.
type Rating struct {
	Name        string  `json:"name" yaml:"name"`
	Points      float64 `json:"points" yaml:"points"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Criterion is a single rubric item.
type Criterion struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Points      float64  `json:"points" yaml:"points"`
	Ratings     []Rating `json:"ratings,omitempty" yaml:"ratings,omitempty"`
}

// RatingsMonotonic reports whether the rating levels are ordered from the
// highest to the lowest points. Criteria without ratings are monotonic.
func (c Criterion) RatingsMonotonic() bool {
	for i := 1; i < len(c.Ratings); i++ {
		if c.Ratings[i].Points > c.Ratings[i-1].Points {
			return false
		}
	}
	return true
}

// GradingCriteria is the ordered rubric used to grade a submission.
type GradingCriteria struct {
	Name  string      `json:"name,omitempty" yaml:"name,omitempty"`
	Items []Criterion `json:"criteria" yaml:"criteria"`
}

// TotalPoints sums the point values of all rubric items.
func (g GradingCriteria) TotalPoints() float64 {
	var total float64
	for _, c := range g.Items {
		total += c.Points
	}
	return total
}

// Find returns the criterion with the given ID.
func (g GradingCriteria) Find(id string) (Criterion, bool) {
	for _, c := range g.Items {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// AssignmentContext carries optional assignment metadata rendered into the grading prompt.
type AssignmentContext struct {
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

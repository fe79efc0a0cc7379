package domain

import (
	"errors"
	"time"
)

// MaxDescriptionLength is the longest description, in characters, accepted
// for experiments and time points.
const MaxDescriptionLength = 255

var (
	// ErrNotFound is returned when no experiment exists for an id.
	ErrNotFound = errors.New("experiment not found")
	// ErrMissingID is returned when an operation needs a persisted experiment.
	ErrMissingID = errors.New("experiment id is required")
)

// TimePoint is a named, timestamped sub-event owned by one experiment.
type TimePoint struct {
	Name        string
	Description string
	Time        time.Time
}

// Experiment is a recorded trial with an ordered list of time points.
type Experiment struct {
	ID          string
	Name        string
	Description string
	StartTime   time.Time
	FinishTime  *time.Time
	TimePoints  []TimePoint
}

// Clone returns a deep copy so callers can mutate the result freely.
func (e Experiment) Clone() Experiment {
	out := e
	if e.FinishTime != nil {
		t := *e.FinishTime
		out.FinishTime = &t
	}
	if e.TimePoints != nil {
		out.TimePoints = make([]TimePoint, len(e.TimePoints))
		copy(out.TimePoints, e.TimePoints)
	}
	return out
}

// AppendTimePoints adds points after the existing ones, keeping both orders.
// The receiver's slice is never shared with the result.
func (e *Experiment) AppendTimePoints(points []TimePoint) {
	if len(e.TimePoints) == 0 {
		e.TimePoints = append([]TimePoint(nil), points...)
		return
	}
	merged := make([]TimePoint, 0, len(e.TimePoints)+len(points))
	merged = append(merged, e.TimePoints...)
	merged = append(merged, points...)
	e.TimePoints = merged
}

// ReplaceFields copies every user-editable field from src, leaving ID alone.
func (e *Experiment) ReplaceFields(src Experiment) {
	c := src.Clone()
	e.Name = c.Name
	e.Description = c.Description
	e.StartTime = c.StartTime
	e.FinishTime = c.FinishTime
	e.TimePoints = c.TimePoints
}

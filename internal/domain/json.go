package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the wire format: millisecond precision, numeric offset
// ("Z" for UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a time that encodes with TimestampLayout.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp accepts the wire layout and any RFC 3339 variant.
// Precision beyond milliseconds is dropped.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, expected yyyy-MM-ddTHH:mm:ss.SSS+hh:mm", s)
	}
	return t.Truncate(time.Millisecond), nil
}

// FormatTimestamp renders t in the wire layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

type timePointJSON struct {
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	DateTime    *Timestamp `json:"date_time,omitempty"`
}

type experimentJSON struct {
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name,omitempty"`
	Description    string          `json:"description,omitempty"`
	DateTimeStart  *Timestamp      `json:"date_time_start,omitempty"`
	DateTimeFinish *Timestamp      `json:"date_time_finish,omitempty"`
	TimePoints     []timePointJSON `json:"time_points,omitempty"`
}

func stamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	return &Timestamp{Time: t}
}

func unstamp(t *Timestamp) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}

func (p TimePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(timePointJSON{
		Name:        p.Name,
		Description: p.Description,
		DateTime:    stamp(p.Time),
	})
}

func (p *TimePoint) UnmarshalJSON(data []byte) error {
	var w timePointJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = TimePoint{
		Name:        w.Name,
		Description: w.Description,
		Time:        unstamp(w.DateTime),
	}
	return nil
}

func (e Experiment) MarshalJSON() ([]byte, error) {
	w := experimentJSON{
		ID:            e.ID,
		Name:          e.Name,
		Description:   e.Description,
		DateTimeStart: stamp(e.StartTime),
	}
	if e.FinishTime != nil {
		w.DateTimeFinish = stamp(*e.FinishTime)
	}
	if len(e.TimePoints) > 0 {
		w.TimePoints = make([]timePointJSON, len(e.TimePoints))
		for i, p := range e.TimePoints {
			w.TimePoints[i] = timePointJSON{
				Name:        p.Name,
				Description: p.Description,
				DateTime:    stamp(p.Time),
			}
		}
	}
	return json.Marshal(w)
}

func (e *Experiment) UnmarshalJSON(data []byte) error {
	var w experimentJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Experiment{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		StartTime:   unstamp(w.DateTimeStart),
	}
	if w.DateTimeFinish != nil && !w.DateTimeFinish.IsZero() {
		t := w.DateTimeFinish.Time
		out.FinishTime = &t
	}
	if len(w.TimePoints) > 0 {
		out.TimePoints = make([]TimePoint, len(w.TimePoints))
		for i, p := range w.TimePoints {
			out.TimePoints[i] = TimePoint{
				Name:        p.Name,
				Description: p.Description,
				Time:        unstamp(p.DateTime),
			}
		}
	}
	*e = out
	return nil
}

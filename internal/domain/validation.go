package domain

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Validation messages, kept identical for experiments and time points.
const (
	msgNameRequired    = "Name must not be empty"
	msgDescriptionLong = "Description should not exceed 255 characters"
	msgTimeRequired    = "Date and time cannot be null"
)

// ValidationError holds one message per violated field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type violations map[string]string

func (v violations) add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Fields: v}
}

// ValidateExperiment checks an experiment and all of its time points.
func ValidateExperiment(e Experiment) error {
	v := violations{}
	checkNamed(v, "", e.Name, e.Description)
	checkPoints(v, "time_points", e.TimePoints)
	return v.err()
}

// ValidateTimePoints checks a batch of points submitted for appending.
func ValidateTimePoints(points []TimePoint) error {
	v := violations{}
	checkPoints(v, "", points)
	return v.err()
}

func checkPoints(v violations, prefix string, points []TimePoint) {
	for i, p := range points {
		field := fmt.Sprintf("[%d]", i)
		if prefix != "" {
			field = prefix + field
		}
		checkNamed(v, field+".", p.Name, p.Description)
		if p.Time.IsZero() {
			v.add(field+".date_time", msgTimeRequired)
		}
	}
}

func checkNamed(v violations, prefix, name, description string) {
	if name == "" {
		v.add(prefix+"name", msgNameRequired)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		v.add(prefix+"description", msgDescriptionLong)
	}
}

// internal/config/types.go
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (JSON strings, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// PlanReviewAction selects what happens when plan revisions run out without approval.
type PlanReviewAction string

const (
	// PlanReviewAbort raises a fatal error.
	PlanReviewAbort PlanReviewAction = "abort"
	// PlanReviewSkip proceeds with the last plan.
	PlanReviewSkip PlanReviewAction = "skip_and_continue"
	// PlanReviewLowerThreshold proceeds unless the last score is a hard reject.
	PlanReviewLowerThreshold PlanReviewAction = "lower_threshold"
)

// Valid reports whether a is a known action.
func (a PlanReviewAction) Valid() bool {
	switch a {
	case PlanReviewAbort, PlanReviewSkip, PlanReviewLowerThreshold:
		return true
	}
	return false
}

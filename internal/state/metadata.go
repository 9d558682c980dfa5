package state

import (
	"errors"
	"fmt"
	"strings"
)

// Well-known task metadata keys.
const (
	MetaReplanEvaluated      = "replanEvaluated"
	MetaVerificationCriteria = "verificationCriteria"
	MetaComplexity           = "complexity"
	MetaFilesModified        = "filesModified"
	MetaFailureReason        = "failureReason"
)

// Complexity grades how hard a task is expected to be.
type Complexity string

// Task complexities.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// TaskMetadata is the typed view of a task's well-known metadata keys.
// Producers validate it before writing; the store keeps the generic map.
type TaskMetadata struct {
	ReplanEvaluated      bool
	VerificationCriteria []string
	Complexity           Complexity
	FilesModified        []string
	FailureReason        string
}

// Validate checks the shape of m.
func (m TaskMetadata) Validate() error {
	var errs []error
	switch m.Complexity {
	case "", ComplexityLow, ComplexityMedium, ComplexityHigh:
	default:
		errs = append(errs, fmt.Errorf("%w: complexity %q", ErrInvalidTaskMeta, m.Complexity))
	}
	for i, c := range m.VerificationCriteria {
		if strings.TrimSpace(c) == "" {
			errs = append(errs, fmt.Errorf("%w: verification criterion %d is empty", ErrInvalidTaskMeta, i))
		}
	}
	for i, f := range m.FilesModified {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, fmt.Errorf("%w: modified file %d is empty", ErrInvalidTaskMeta, i))
		}
	}
	return errors.Join(errs...)
}

// Map returns the non-zero fields keyed by their metadata names.
func (m TaskMetadata) Map() map[string]any {
	out := map[string]any{}
	if m.ReplanEvaluated {
		out[MetaReplanEvaluated] = true
	}
	if len(m.VerificationCriteria) > 0 {
		out[MetaVerificationCriteria] = append([]string(nil), m.VerificationCriteria...)
	}
	if m.Complexity != "" {
		out[MetaComplexity] = string(m.Complexity)
	}
	if len(m.FilesModified) > 0 {
		out[MetaFilesModified] = append([]string(nil), m.FilesModified...)
	}
	if m.FailureReason != "" {
		out[MetaFailureReason] = m.FailureReason
	}
	return out
}

// TaskMetadataOf reads the well-known keys from md. It accepts both the
// in-memory shapes and the shapes produced by decoding a snapshot.
func TaskMetadataOf(md map[string]any) TaskMetadata {
	var m TaskMetadata
	if v, ok := md[MetaReplanEvaluated].(bool); ok {
		m.ReplanEvaluated = v
	}
	m.VerificationCriteria = stringSlice(md[MetaVerificationCriteria])
	if v, ok := md[MetaComplexity].(string); ok {
		m.Complexity = Complexity(v)
	}
	m.FilesModified = stringSlice(md[MetaFilesModified])
	if v, ok := md[MetaFailureReason].(string); ok {
		m.FailureReason = v
	}
	return m
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return nil
}

package decision

import (
	"regexp"
	"strings"
)

// Diagnosis is the supervisor's call on a failed task.
type Diagnosis string

// The complete diagnosis space.
const (
	DiagnosisRetry      Diagnosis = "retry"
	DiagnosisReplan     Diagnosis = "replan"
	DiagnosisImpossible Diagnosis = "impossible"
)

// DiagnosisResult is a diagnosis with its reasoning.
type DiagnosisResult struct {
	Decision Diagnosis `json:"decision"`
	Reason   string    `json:"reason,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
}

// NormalizeDiagnosis maps s into the diagnosis space. Anything that is not
// retry or impossible, including the retired pivot and clarify, is replan.
func NormalizeDiagnosis(s string) Diagnosis {
	switch Diagnosis(strings.ToLower(strings.TrimSpace(s))) {
	case DiagnosisRetry:
		return DiagnosisRetry
	case DiagnosisImpossible:
		return DiagnosisImpossible
	}
	return DiagnosisReplan
}

var (
	decisionLine = regexp.MustCompile(`(?i)\b(?:decision|diagnosis|verdict)\b\s*[:=]\s*"?([a-z_]+)`)
	impossibleRe = regexp.MustCompile(`(?i)\bimpossible\b`)
	retryRe      = regexp.MustCompile(`(?i)\bretry\b`)
)

// ParseDiagnosisFallback recovers a diagnosis from free text. An explicit
// "decision: X" line wins; otherwise impossible beats retry, and replan is
// the default.
func ParseDiagnosisFallback(text string) DiagnosisResult {
	res := DiagnosisResult{Decision: DiagnosisReplan, Reason: strings.TrimSpace(text), Fallback: true}
	if m := decisionLine.FindStringSubmatch(text); m != nil {
		res.Decision = NormalizeDiagnosis(m[1])
		return res
	}
	switch {
	case impossibleRe.MatchString(text):
		res.Decision = DiagnosisImpossible
	case retryRe.MatchString(text):
		res.Decision = DiagnosisRetry
	}
	return res
}

// Package decision turns fuzzy agent judgments into control-flow decisions.
//
// Everything here is a pure function over primitive inputs: escalation level
// from a score and issue list, recommendation thresholds, fallback parsing of
// free-text verdicts and diagnoses, deterministic pre-checks on outputs and
// plans, and the retry/replan thresholds.
//
// # Escalation
//
// The first matching rule wins:
//
//	issues >= 5                ABORT
//	issues >= 4                CRITICAL
//	score < 30 or issues >= 3  REFOCUS
//	score < 50 or issues >= 2  CORRECT
//	score < 70                 REMIND
//	otherwise                  NONE
//
// # Fallback parsing
//
// When a judging agent returns no structured output, ParseVerdictFallback
// extracts what it can from text but never grants approval.
package decision

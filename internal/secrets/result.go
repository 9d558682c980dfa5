package secrets

import (
	"maps"
	"slices"
)

// Result is the outcome of scrubbing one text.
type Result struct {
	Scrubbed      string         `json:"scrubbed"`
	Findings      []Finding      `json:"findings,omitempty"`
	TotalFindings int            `json:"totalFindings"`
	ByRule        map[string]int `json:"byRule,omitempty"`
}

// Finding locates a detected secret. The matched value is never kept.
type Finding struct {
	RuleID     string `json:"ruleId"`
	Severity   string `json:"severity"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
	Line       int    `json:"line"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// RuleIDs returns the matched rule ids, sorted.
func (r *Result) RuleIDs() []string {
	return slices.Sorted(maps.Keys(r.ByRule))
}

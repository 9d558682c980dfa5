package decision

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/conductor/internal/state"
)

// Severity grades a pre-check finding.
type Severity string

// Severities. A VIOLATION blocks; a WARNING is advisory.
const (
	SeverityWarning   Severity = "WARNING"
	SeverityViolation Severity = "VIOLATION"
)

// FindingType categorizes pre-check findings.
type FindingType string

// Finding types.
const (
	FindingNoFilesModified    FindingType = "no_files_modified"
	FindingTestCountMismatch  FindingType = "test_count_mismatch"
	FindingNoTestsRun         FindingType = "no_tests_run"
	FindingHelpAsVerification FindingType = "help_as_verification"
	FindingMissingCriteria    FindingType = "missing_verification_criteria"
	FindingVagueCriteria      FindingType = "vague_verification_criteria"
	FindingTaskIncomplete     FindingType = "task_incomplete"
	FindingEmptyPlan          FindingType = "empty_plan"
)

// Finding is one deterministic pre-check result.
type Finding struct {
	Type        FindingType `json:"type"`
	Severity    Severity    `json:"severity"`
	Subject     string      `json:"subject,omitempty"`
	Description string      `json:"description"`
}

func (f Finding) String() string {
	if f.Subject == "" {
		return fmt.Sprintf("%s: %s", f.Severity, f.Description)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Severity, f.Description, f.Subject)
}

// HasViolation reports whether any finding blocks.
func HasViolation(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityViolation {
			return true
		}
	}
	return false
}

// Violations returns only the blocking findings.
func Violations(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == SeverityViolation {
			out = append(out, f)
		}
	}
	return out
}

// OutputKind distinguishes implementation outputs from test reports.
type OutputKind string

// Output kinds.
const (
	OutputImplementation OutputKind = "implementation"
	OutputTestReport     OutputKind = "test_report"
)

// Output statuses reported by agents.
const (
	StatusComplete = "complete"
	StatusPassed   = "passed"
	StatusFailed   = "failed"
	StatusBlocked  = "blocked"
	StatusPartial  = "partial"
)

// OutputReport is the part of an agent output the pre-checks inspect.
type OutputReport struct {
	Kind          OutputKind
	Status        string
	FilesModified []string
	TestsRun      int
	TestsPassed   int
	TestsFailed   int
	RawOutput     string
}

// CheckOutput validates an implementation output or test report.
func CheckOutput(out OutputReport) []Finding {
	var findings []Finding
	status := strings.ToLower(out.Status)

	if out.Kind == OutputImplementation && status == StatusComplete && len(out.FilesModified) == 0 {
		findings = append(findings, Finding{
			Type:        FindingNoFilesModified,
			Severity:    SeverityViolation,
			Description: "output claims completion but lists no modified files",
		})
	}

	if out.Kind == OutputTestReport {
		if out.TestsRun != out.TestsPassed+out.TestsFailed {
			findings = append(findings, Finding{
				Type:     FindingTestCountMismatch,
				Severity: SeverityViolation,
				Description: fmt.Sprintf("tests run (%d) does not equal passed (%d) plus failed (%d)",
					out.TestsRun, out.TestsPassed, out.TestsFailed),
			})
		}
		if (status == StatusPassed || status == StatusComplete) && out.TestsRun == 0 {
			findings = append(findings, Finding{
				Type:        FindingNoTestsRun,
				Severity:    SeverityViolation,
				Description: "report passes without running any tests",
			})
		}
		if isHelpOutput(out.RawOutput) {
			findings = append(findings, Finding{
				Type:        FindingHelpAsVerification,
				Severity:    SeverityWarning,
				Description: "test output looks like --help text rather than a test run",
			})
		}
	}

	return findings
}

// vagueCriteria are verification criteria too loose to check.
var vagueCriteria = []string{
	"works correctly",
	"works as expected",
	"works properly",
	"is correct",
	"functions correctly",
	"functions properly",
	"no errors",
	"looks good",
	"is implemented",
	"everything works",
}

// CheckPlan validates plan tasks before review.
func CheckPlan(tasks []*state.Task) []Finding {
	if len(tasks) == 0 {
		return []Finding{{
			Type:        FindingEmptyPlan,
			Severity:    SeverityWarning,
			Description: "plan has no tasks",
		}}
	}

	var findings []Finding
	for _, t := range tasks {
		criteria := t.Meta().VerificationCriteria
		if len(criteria) == 0 {
			findings = append(findings, Finding{
				Type:        FindingMissingCriteria,
				Severity:    SeverityWarning,
				Subject:     t.Description,
				Description: "task has no verification criteria",
			})
			continue
		}
		for _, c := range criteria {
			if isVague(c) {
				findings = append(findings, Finding{
					Type:        FindingVagueCriteria,
					Severity:    SeverityWarning,
					Subject:     t.Description,
					Description: fmt.Sprintf("verification criterion %q is too vague to check", c),
				})
			}
		}
	}
	return findings
}

func isVague(criterion string) bool {
	lower := strings.ToLower(strings.TrimSpace(criterion))
	for _, v := range vagueCriteria {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// CheckGoalCompletion requires every task of a goal to be completed. Blocked
// parents whose subtasks all completed are completed by the store, so a
// remaining blocked task is open work.
func CheckGoalCompletion(tasks []*state.Task) []Finding {
	var findings []Finding
	for _, t := range tasks {
		if t.Status == state.TaskCompleted {
			continue
		}
		findings = append(findings, Finding{
			Type:        FindingTaskIncomplete,
			Severity:    SeverityViolation,
			Subject:     t.Description,
			Description: fmt.Sprintf("task is %s, not completed", t.Status),
		})
	}
	return findings
}

var testResultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(pass|fail|error).*\d+`),
	regexp.MustCompile(`(?i)test.*\([\d.]+s\)`),
	regexp.MustCompile(`✓|✗`),
	regexp.MustCompile(`(?i)ok\s+\S+\s+[\d.]+s`),
	regexp.MustCompile(`(?i)test suites?:\s*\d+`),
}

var helpPatterns = []string{
	"usage:",
	"--help",
	"-h, --help",
	"show help",
	"show this help",
	"options:",
}

// isHelpOutput detects --help text offered as test evidence.
func isHelpOutput(output string) bool {
	if output == "" {
		return false
	}
	for _, re := range testResultPatterns {
		if re.MatchString(output) {
			return false
		}
	}
	lower := strings.ToLower(output)
	hits := 0
	for _, p := range helpPatterns {
		if strings.Contains(lower, p) {
			hits++
		}
	}
	return hits >= 2
}

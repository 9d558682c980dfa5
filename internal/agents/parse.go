package agents

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/executor"
	"github.com/fyrsmithlabs/conductor/internal/state"
)

type plannedTask struct {
	Description          string           `json:"description"`
	Complexity           state.Complexity `json:"complexity"`
	VerificationCriteria []string         `json:"verificationCriteria"`
}

type planOutput struct {
	Tasks []plannedTask `json:"tasks"`
}

// parsePlan reads {"tasks":[...]} or, failing that, the list items of the
// response.
func parsePlan(res *executor.Result) []plannedTask {
	var out planOutput
	if res.Decode(&out) && len(out.Tasks) > 0 {
		return slices.DeleteFunc(out.Tasks, func(t plannedTask) bool {
			return strings.TrimSpace(t.Description) == ""
		})
	}
	var tasks []plannedTask
	for _, item := range decision.ExtractIssues(res.Response) {
		tasks = append(tasks, plannedTask{Description: item})
	}
	return tasks
}

type implementationOutput struct {
	Status        string   `json:"status"`
	FilesModified []string `json:"filesModified"`
	Summary       string   `json:"summary"`
}

var (
	blockedPattern = regexp.MustCompile(`(?i)\bblocked\b|\bcannot proceed\b|\bunable to proceed\b`)
	// negatedPattern matches a negation ending the text before a blocked
	// phrase, allowing one word in between ("not currently blocked").
	negatedPattern = regexp.MustCompile(`(?i)\b(?:not|no longer|never|isn't|wasn't|aren't|weren't|nothing)\s+(?:\w+\s+)?$`)
	filePattern    = regexp.MustCompile(`(?:^|[\s"'(` + "`" + `])((?:[\w.-]+/)*[\w-]+\.(?:go|mod|py|js|ts|tsx|jsx|rs|java|rb|c|h|cpp|md|json|ya?ml|toml|sql|sh|css|html))\b`)
)

// parseImplementation reads a coder response into an output report.
func parseImplementation(res *executor.Result) decision.OutputReport {
	report := decision.OutputReport{Kind: decision.OutputImplementation, RawOutput: res.Response}
	var out implementationOutput
	if res.Decode(&out) && out.Status != "" {
		report.Status = strings.ToLower(out.Status)
		report.FilesModified = cleanList(out.FilesModified)
		return report
	}

	report.Status = decision.StatusComplete
	if reportsBlocked(res.Response) {
		report.Status = decision.StatusBlocked
	}
	for _, m := range filePattern.FindAllStringSubmatch(res.Response, -1) {
		if !slices.Contains(report.FilesModified, m[1]) {
			report.FilesModified = append(report.FilesModified, m[1])
		}
	}
	return report
}

// reportsBlocked reports whether text says the work is blocked. Negated
// mentions such as "no longer blocked" do not count.
func reportsBlocked(text string) bool {
	for _, loc := range blockedPattern.FindAllStringIndex(text, -1) {
		if !negatedPattern.MatchString(text[max(0, loc[0]-40):loc[0]]) {
			return true
		}
	}
	return false
}

type testOutput struct {
	Status      string   `json:"status"`
	TestsRun    int      `json:"testsRun"`
	TestsPassed int      `json:"testsPassed"`
	TestsFailed int      `json:"testsFailed"`
	Failures    []string `json:"failures"`
}

var (
	passedPattern = regexp.MustCompile(`(?i)(\d+)\s+(?:tests?\s+)?pass(?:ed|ing)?\b`)
	failedPattern = regexp.MustCompile(`(?i)(\d+)\s+(?:tests?\s+)?fail(?:ed|ing|ures?)?\b`)
	failWord      = regexp.MustCompile(`(?i)\bfail(?:ed|ing|ure|ures)?\b`)
)

// parseTestReport reads a tester response. The fallback counts "N passed"
// and "N failed"; without counts the wording decides.
func parseTestReport(res *executor.Result) (decision.OutputReport, []string) {
	report := decision.OutputReport{Kind: decision.OutputTestReport, RawOutput: res.Response}
	var out testOutput
	if res.Decode(&out) && out.Status != "" {
		report.Status = strings.ToLower(out.Status)
		report.TestsRun = out.TestsRun
		report.TestsPassed = out.TestsPassed
		report.TestsFailed = out.TestsFailed
		return report, cleanList(out.Failures)
	}

	passed, hasPassed := firstInt(passedPattern, res.Response)
	failed, hasFailed := firstInt(failedPattern, res.Response)
	report.TestsPassed, report.TestsFailed = passed, failed
	report.TestsRun = passed + failed
	switch {
	case hasPassed || hasFailed:
		report.Status = decision.StatusPassed
		if failed > 0 {
			report.Status = decision.StatusFailed
		}
	case failWord.MatchString(res.Response):
		report.Status = decision.StatusFailed
	default:
		report.Status = decision.StatusPassed
	}
	var failures []string
	if report.Status == decision.StatusFailed {
		failures = decision.ExtractIssues(res.Response)
	}
	return report, failures
}

type verdictOutput struct {
	Score          *int     `json:"score"`
	Approved       bool     `json:"approved"`
	Recommendation string   `json:"recommendation"`
	Issues         []string `json:"issues"`
	Feedback       string   `json:"feedback"`
}

// parseVerdict reads a supervisor judgment. A structured verdict is approved
// only when it says so and its score reaches threshold; a fallback verdict is
// never approved.
func parseVerdict(res *executor.Result, threshold int) decision.Verdict {
	var out verdictOutput
	if !res.Decode(&out) || out.Score == nil {
		return decision.ParseVerdictFallback(res.Response)
	}
	v := decision.Verdict{
		Score:          *out.Score,
		Approved:       out.Approved,
		Recommendation: decision.Recommendation(strings.ToLower(out.Recommendation)),
		Issues:         cleanList(out.Issues),
		Feedback:       out.Feedback,
	}.Normalize()
	v.Approved = v.Approved && v.Score >= threshold
	return v
}

type diagnosisOutput struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func parseDiagnosis(res *executor.Result) decision.DiagnosisResult {
	var out diagnosisOutput
	if res.Decode(&out) && out.Decision != "" {
		return decision.DiagnosisResult{Decision: decision.NormalizeDiagnosis(out.Decision), Reason: out.Reason}
	}
	return decision.ParseDiagnosisFallback(res.Response)
}

func firstInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

func cleanList(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

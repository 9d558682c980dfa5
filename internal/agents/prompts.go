package agents

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/state"
)

const (
	planShape      = `{"tasks":[{"description":"...","complexity":"low|medium|high","verificationCriteria":["..."]}]}`
	implShape      = `{"status":"complete|blocked|partial","filesModified":["path"],"summary":"..."}`
	testShape      = `{"status":"passed|failed","testsRun":0,"testsPassed":0,"testsFailed":0,"failures":["..."]}`
	verdictShape   = `{"score":0,"approved":false,"recommendation":"approve|revise|reject","issues":["..."],"feedback":"..."}`
	diagnosisShape = `{"decision":"retry|replan|impossible","reason":"..."}`
)

type prompt struct {
	strings.Builder
}

func (p *prompt) line(format string, args ...any) {
	fmt.Fprintf(&p.Builder, format, args...)
	p.WriteByte('\n')
}

func (p *prompt) section(title string) {
	p.WriteByte('\n')
	p.line("## %s", title)
}

func (p *prompt) respond(shape string) string {
	p.section("Response")
	p.line("Reply with a single JSON object:")
	p.line("%s", shape)
	return p.String()
}

func (p *prompt) failures(patterns []state.FailurePattern) {
	if len(patterns) == 0 {
		return
	}
	p.section("Similar past failures")
	for _, fp := range patterns {
		if fp.Resolution != "" {
			p.line("- %s: %s (resolved: %s)", fp.TaskDescription, fp.FailurePattern, fp.Resolution)
			continue
		}
		p.line("- %s: %s", fp.TaskDescription, fp.FailurePattern)
	}
}

func (p *prompt) task(t *state.Task) {
	p.section("Task")
	p.line("%s", t.Description)
	if criteria := t.Meta().VerificationCriteria; len(criteria) > 0 {
		p.section("Done when")
		for _, c := range criteria {
			p.line("- %s", c)
		}
	}
}

func (p *prompt) tasks(tasks []*state.Task) {
	p.section("Plan")
	for i, t := range tasks {
		m := t.Meta()
		p.line("%d. [%s] %s (complexity: %s, criteria: %s)", i+1, t.Status, t.Description,
			orDash(string(m.Complexity)), orDash(strings.Join(m.VerificationCriteria, "; ")))
	}
}

func (p *prompt) findings(findings []decision.Finding) {
	if len(findings) == 0 {
		return
	}
	p.section("Automated checks")
	for _, f := range findings {
		p.line("- %s", f)
	}
}

func planPrompt(goal, feedback string, hints []state.FailurePattern) string {
	var p prompt
	p.line("Break the goal into an ordered list of small, independently testable tasks.")
	p.section("Goal")
	p.line("%s", goal)
	if feedback != "" {
		p.section("Reviewer feedback on the previous plan")
		p.line("%s", feedback)
	}
	p.failures(hints)
	return p.respond(planShape)
}

func replanPrompt(t *state.Task, reason string, diag decision.DiagnosisResult, hints []state.FailurePattern) string {
	var p prompt
	p.line("The task below failed. Replace it with smaller subtasks that avoid the failure.")
	p.task(t)
	p.section("Failure")
	p.line("%s", reason)
	if diag.Reason != "" {
		p.section("Supervisor diagnosis")
		p.line("%s", diag.Reason)
	}
	p.failures(hints)
	return p.respond(planShape)
}

func implementPrompt(t *state.Task, hints []state.FailurePattern) string {
	var p prompt
	p.line("Implement the task. Say \"blocked\" if it cannot be done without outside input.")
	p.task(t)
	p.failures(hints)
	return p.respond(implShape)
}

func fixPrompt(t *state.Task, report decision.OutputReport, failures []string) string {
	var p prompt
	p.line("The tests for this task failed. Fix the implementation.")
	p.task(t)
	p.section("Test results")
	p.line("run %d, passed %d, failed %d", report.TestsRun, report.TestsPassed, report.TestsFailed)
	for _, f := range failures {
		p.line("- %s", f)
	}
	return p.respond(implShape)
}

func testPrompt(t *state.Task, impl decision.OutputReport) string {
	var p prompt
	p.line("Run the tests that verify this task and report the real results.")
	p.task(t)
	if len(impl.FilesModified) > 0 {
		p.section("Files changed")
		for _, f := range impl.FilesModified {
			p.line("- %s", f)
		}
	}
	return p.respond(testShape)
}

func reviewPrompt(goal string, tasks []*state.Task, findings []decision.Finding) string {
	var p prompt
	p.line("Score this plan from 0 to 100 for how well it achieves the goal.")
	p.section("Goal")
	p.line("%s", goal)
	p.tasks(tasks)
	p.findings(findings)
	return p.respond(verdictShape)
}

func verifyPrompt(goal string, tasks []*state.Task, stats string, findings []decision.Finding) string {
	var p prompt
	p.line("Decide whether the goal has been achieved. Score the result from 0 to 100.")
	p.section("Goal")
	p.line("%s", goal)
	p.tasks(tasks)
	p.section("Agent statistics")
	p.WriteString(stats)
	p.findings(findings)
	return p.respond(verdictShape)
}

func diagnosePrompt(t *state.Task, reason string, hints []state.FailurePattern) string {
	var p prompt
	p.line("A task failed. Decide whether to retry it as is, replan it into subtasks, or give it up as impossible.")
	p.task(t)
	p.section("Failure")
	p.line("%s (attempts: %d)", reason, t.Attempts)
	p.failures(hints)
	return p.respond(diagnosisShape)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package agents

import (
	"testing"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/executor"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(text string) *executor.Result {
	res := &executor.Result{Response: text}
	if raw, ok := executor.ExtractJSON(text); ok {
		res.StructuredOutput = raw
	}
	return res
}

func TestParsePlan(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		got := parsePlan(result(`{"tasks":[
			{"description":"add parser","complexity":"low","verificationCriteria":["go test ./parser passes"]},
			{"description":"  "},
			{"description":"wire cli"}]}`))
		require.Len(t, got, 2)
		assert.Equal(t, "add parser", got[0].Description)
		assert.Equal(t, state.ComplexityLow, got[0].Complexity)
		assert.Equal(t, []string{"go test ./parser passes"}, got[0].VerificationCriteria)
		assert.Equal(t, "wire cli", got[1].Description)
	})

	t.Run("list fallback", func(t *testing.T) {
		got := parsePlan(result("Plan:\n1. add parser\n2. wire cli\n- document"))
		require.Len(t, got, 3)
		assert.Equal(t, "document", got[2].Description)
	})

	t.Run("nothing usable", func(t *testing.T) {
		assert.Empty(t, parsePlan(result("I need more information.")))
	})
}

func TestParseImplementation(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		got := parseImplementation(result(`{"status":"COMPLETE","filesModified":["main.go"," "],"summary":"done"}`))
		assert.Equal(t, decision.StatusComplete, got.Status)
		assert.Equal(t, []string{"main.go"}, got.FilesModified)
		assert.Equal(t, decision.OutputImplementation, got.Kind)
	})

	t.Run("fallback finds files", func(t *testing.T) {
		got := parseImplementation(result("Updated cmd/app/main.go and internal/x/x.go, then main.go again."))
		assert.Equal(t, decision.StatusComplete, got.Status)
		assert.Equal(t, []string{"cmd/app/main.go", "internal/x/x.go", "main.go"}, got.FilesModified)
	})

	t.Run("fallback blocked", func(t *testing.T) {
		got := parseImplementation(result("I am blocked: the API key is missing."))
		assert.Equal(t, decision.StatusBlocked, got.Status)
	})

	t.Run("negated blocked is not blocked", func(t *testing.T) {
		got := parseImplementation(result("Done. The build is no longer blocked and main.go compiles."))
		assert.Equal(t, decision.StatusComplete, got.Status)
	})
}

func TestReportsBlocked(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I am blocked: the API key is missing.", true},
		{"Cannot proceed without database credentials.", true},
		{"I was unable to proceed.", true},
		{"The task is not blocked.", false},
		{"It is not currently blocked by anything.", false},
		{"Nothing blocked the change.", false},
		{"The linter isn't blocked, but the tests are blocked on fixtures.", true},
		{"All done.", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, reportsBlocked(tt.text))
		})
	}
}

func TestParseTestReport(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		status       string
		run, passed  int
		wantFailures bool
	}{
		{name: "structured", text: `{"status":"failed","testsRun":4,"testsPassed":3,"testsFailed":1,"failures":["TestX"]}`, status: decision.StatusFailed, run: 4, passed: 3, wantFailures: true},
		{name: "counts passing", text: "12 passed, 0 failed", status: decision.StatusPassed, run: 12, passed: 12},
		{name: "counts failing", text: "10 passed, 2 failed\n- TestA\n- TestB", status: decision.StatusFailed, run: 12, passed: 10, wantFailures: true},
		{name: "wording only", text: "The build failed.", status: decision.StatusFailed},
		{name: "no signal", text: "Looks fine.", status: decision.StatusPassed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, failures := parseTestReport(result(tt.text))
			assert.Equal(t, decision.OutputTestReport, report.Kind)
			assert.Equal(t, tt.status, report.Status)
			assert.Equal(t, tt.run, report.TestsRun)
			assert.Equal(t, tt.passed, report.TestsPassed)
			assert.Equal(t, tt.wantFailures, len(failures) > 0)
		})
	}
}

func TestParseVerdict(t *testing.T) {
	t.Run("approved above threshold", func(t *testing.T) {
		v := parseVerdict(result(`{"score":85,"approved":true,"issues":[]}`), 70)
		assert.True(t, v.Approved)
		assert.Equal(t, decision.RecommendApprove, v.Recommendation)
		assert.Equal(t, decision.EscalationNone, v.Escalation)
		assert.False(t, v.Fallback)
	})

	t.Run("approved below threshold is not approved", func(t *testing.T) {
		v := parseVerdict(result(`{"score":72,"approved":true}`), 80)
		assert.False(t, v.Approved)
	})

	t.Run("score is clamped", func(t *testing.T) {
		v := parseVerdict(result(`{"score":140,"approved":true}`), 70)
		assert.Equal(t, 100, v.Score)
	})

	t.Run("fallback never approves", func(t *testing.T) {
		v := parseVerdict(result("Approved! Score: 95/100. Great work."), 70)
		assert.False(t, v.Approved)
		assert.True(t, v.Fallback)
		assert.Equal(t, 95, v.Score)
	})

	t.Run("json without score falls back", func(t *testing.T) {
		v := parseVerdict(result(`{"approved":true}`), 70)
		assert.False(t, v.Approved)
		assert.Equal(t, decision.DefaultFallbackScore, v.Score)
	})
}

func TestParseDiagnosis(t *testing.T) {
	assert.Equal(t, decision.DiagnosisRetry, parseDiagnosis(result(`{"decision":"retry","reason":"flaky"}`)).Decision)
	assert.Equal(t, decision.DiagnosisReplan, parseDiagnosis(result(`{"decision":"pivot"}`)).Decision)

	got := parseDiagnosis(result("This is impossible without network access."))
	assert.Equal(t, decision.DiagnosisImpossible, got.Decision)
	assert.True(t, got.Fallback)
}

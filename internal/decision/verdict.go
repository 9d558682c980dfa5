package decision

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultFallbackScore is used when free text carries no score. It sits
// below ReviseThreshold.
const DefaultFallbackScore = 35

// Verdict is a judging agent's assessment of a plan or a goal.
type Verdict struct {
	Score          int            `json:"score"`
	Approved       bool           `json:"approved"`
	Recommendation Recommendation `json:"recommendation"`
	Issues         []string       `json:"issues,omitempty"`
	Feedback       string         `json:"feedback,omitempty"`
	Escalation     Escalation     `json:"escalation"`

	// Fallback marks a verdict recovered from free text.
	Fallback bool `json:"fallback,omitempty"`
}

var (
	scorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bscore\b["']?\s*(?:of|is|[:=])?\s*(\d{1,3})`),
		regexp.MustCompile(`\b(\d{1,3})\s*/\s*100\b`),
		regexp.MustCompile(`\b(\d{1,3})\s*%`),
	}
	bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
)

// ParseVerdictFallback recovers a verdict from free text. The score defaults
// to DefaultFallbackScore and Approved is always false, even when the text
// reads as an approval; Recommendation still follows the score.
func ParseVerdictFallback(text string) Verdict {
	score, ok := ExtractScore(text)
	if !ok {
		score = DefaultFallbackScore
	}
	issues := ExtractIssues(text)
	return Verdict{
		Score:          score,
		Approved:       false,
		Recommendation: RecommendationFor(score),
		Issues:         issues,
		Feedback:       strings.TrimSpace(text),
		Escalation:     DetermineEscalation(score, issues),
		Fallback:       true,
	}
}

// ExtractScore finds the first 0-100 score in text.
func ExtractScore(text string) (int, bool) {
	for _, re := range scorePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n > 100 {
			continue
		}
		return n, true
	}
	return 0, false
}

// ExtractIssues returns bullet and numbered list items from text.
func ExtractIssues(text string) []string {
	var issues []string
	for _, line := range strings.Split(text, "\n") {
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			if item := strings.TrimSpace(m[1]); item != "" {
				issues = append(issues, item)
			}
		}
	}
	return issues
}

// Normalize fills derived fields of a structured verdict: the score is
// clamped, the recommendation follows the score when missing, and the
// escalation is recomputed.
func (v Verdict) Normalize() Verdict {
	v.Score = ClampScore(v.Score)
	switch v.Recommendation {
	case RecommendApprove, RecommendRevise, RecommendReject:
	default:
		v.Recommendation = RecommendationFor(v.Score)
	}
	v.Escalation = DetermineEscalation(v.Score, v.Issues)
	return v
}

package decision

// Escalation is how forcefully the supervisor intervenes.
type Escalation string

// Escalation levels, mildest first.
const (
	EscalationNone     Escalation = "none"
	EscalationRemind   Escalation = "remind"
	EscalationCorrect  Escalation = "correct"
	EscalationRefocus  Escalation = "refocus"
	EscalationCritical Escalation = "critical"
	EscalationAbort    Escalation = "abort"
)

// Quality thresholds on the 0-100 score scale.
const (
	ApproveThreshold = 70
	ReviseThreshold  = 50
	RejectThreshold  = 30
)

// DetermineEscalation maps a score and issue list to an escalation level.
// A nil issue list counts as zero issues.
func DetermineEscalation(score int, issues []string) Escalation {
	n := len(issues)
	switch {
	case n >= 5:
		return EscalationAbort
	case n >= 4:
		return EscalationCritical
	case score < RejectThreshold || n >= 3:
		return EscalationRefocus
	case score < ReviseThreshold || n >= 2:
		return EscalationCorrect
	case score < ApproveThreshold:
		return EscalationRemind
	}
	return EscalationNone
}

// Recommendation is the action a score suggests.
type Recommendation string

// Recommendations.
const (
	RecommendApprove Recommendation = "approve"
	RecommendRevise  Recommendation = "revise"
	RecommendReject  Recommendation = "reject"
)

// RecommendationFor maps a score onto the quality thresholds.
func RecommendationFor(score int) Recommendation {
	switch {
	case score >= ApproveThreshold:
		return RecommendApprove
	case score >= ReviseThreshold:
		return RecommendRevise
	}
	return RecommendReject
}

// IsHardReject reports whether score falls below the reject threshold.
func IsHardReject(score int) bool {
	return score < RejectThreshold
}

// ClampScore bounds a score to 0-100.
func ClampScore(score int) int {
	return max(0, min(100, score))
}

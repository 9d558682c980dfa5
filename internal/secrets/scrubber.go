package secrets

import (
	"cmp"
	"slices"
	"strings"
)

// Scrubber redacts secrets from text. Implementations are safe for
// concurrent use.
type Scrubber interface {
	Scrub(content string) *Result
}

// Redact returns content with secrets replaced. A nil scrubber returns
// content unchanged.
func Redact(s Scrubber, content string) string {
	if s == nil || content == "" {
		return content
	}
	return s.Scrub(content).Scrubbed
}

type scrubber struct {
	config *Config
}

type span struct {
	start, end int
}

// New builds a Scrubber. A nil cfg selects DefaultConfig.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &scrubber{config: cfg}, nil
}

// MustNew is New that panics on an invalid configuration.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *scrubber) Scrub(content string) *Result {
	result := &Result{Scrubbed: content, ByRule: map[string]int{}}
	if !s.config.Enabled || content == "" {
		return result
	}

	var spans []span
	for _, rule := range s.config.compiledRules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				RuleID:     rule.ID,
				Severity:   rule.Severity,
				StartIndex: m[0],
				EndIndex:   m[1],
				Line:       strings.Count(content[:m[0]], "\n") + 1,
			})
			result.ByRule[rule.ID]++
			spans = append(spans, span{start: m[0], end: m[1]})
		}
	}
	slices.SortStableFunc(result.Findings, func(a, b Finding) int {
		return cmp.Compare(a.StartIndex, b.StartIndex)
	})
	result.TotalFindings = len(result.Findings)
	if len(spans) == 0 {
		return result
	}

	var b strings.Builder
	prev := 0
	for _, sp := range mergeSpans(spans) {
		b.WriteString(content[prev:sp.start])
		b.WriteString(s.config.Redaction)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	result.Scrubbed = b.String()
	return result
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *scrubber) allowed(match string) bool {
	for _, re := range s.config.compiledAllowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// mergeSpans sorts spans and joins overlapping or touching ones.
func mergeSpans(spans []span) []span {
	slices.SortFunc(spans, func(a, b span) int { return cmp.Compare(a.start, b.start) })
	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			last.end = max(last.end, cur.end)
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Noop leaves content untouched.
type Noop struct{}

// Scrub returns content unchanged.
func (Noop) Scrub(content string) *Result {
	return &Result{Scrubbed: content}
}

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = Noop{}
)

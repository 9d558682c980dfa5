package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Category tells the retry policy what to do with a failure.
type Category string

// Failure categories.
const (
	CategoryTransient Category = "TRANSIENT"
	CategoryPermanent Category = "PERMANENT"
	CategoryTimeout   Category = "TIMEOUT"
	CategoryUnknown   Category = "UNKNOWN"
)

// Retryable reports whether another attempt may succeed.
func (c Category) Retryable() bool {
	return c != CategoryPermanent
}

// Error is a categorized executor failure.
type Error struct {
	Category Category
	Agent    string
	ExitCode int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "executor %s", strings.ToLower(string(e.Category)))
	if e.Agent != "" {
		fmt.Fprintf(&b, " (%s)", e.Agent)
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " exit %d", e.ExitCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CategoryOf extracts the category of err. Deadline errors are timeouts and
// anything uncategorized is unknown.
func CategoryOf(err error) Category {
	var e *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &e):
		return e.Category
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	}
	return CategoryUnknown
}

var (
	transientMarkers = []string{
		"rate limit", "rate_limit", "429", "overloaded", "529", "503", "502",
		"temporarily unavailable", "connection reset", "connection refused",
		"econnreset", "broken pipe", "try again",
	}
	timeoutMarkers = []string{
		"timed out", "timeout", "deadline exceeded",
	}
	permanentMarkers = []string{
		"unauthorized", "401", "403", "invalid api key", "invalid x-api-key",
		"authentication", "permission denied", "invalid model", "model not found",
		"unknown option", "invalid_request", "credit balance",
	}
)

// Classify categorizes a failed CLI run from its exit code and stderr.
// Exit 126 and 127 mean the command could not run at all.
func Classify(exitCode int, stderr string) Category {
	if exitCode == 126 || exitCode == 127 {
		return CategoryPermanent
	}
	msg := strings.ToLower(stderr)
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return CategoryPermanent
		}
	}
	for _, m := range timeoutMarkers {
		if strings.Contains(msg, m) {
			return CategoryTimeout
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return CategoryTransient
		}
	}
	return CategoryUnknown
}

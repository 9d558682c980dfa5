package monitor

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/state"
)

// FormatCost formats a dollar amount as "$X.XXXX".
func FormatCost(usd float64) string {
	return fmt.Sprintf("$%.4f", usd)
}

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatDuration formats d as "Xh Ym", "Xm Ys" or "Xs".
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// FormatTaskCounts formats counts as "done/total done, N failed".
func FormatTaskCounts(c state.TaskCounts) string {
	s := fmt.Sprintf("%d/%d done", c.Completed, c.Total())
	if c.Failed > 0 {
		s += fmt.Sprintf(", %d failed", c.Failed)
	}
	return s
}

// taskIcon returns the status glyph shown next to a task.
func taskIcon(s state.TaskStatus) string {
	switch s {
	case state.TaskCompleted:
		return "✓"
	case state.TaskFailed:
		return "✗"
	case state.TaskInProgress:
		return "▶"
	case state.TaskBlocked:
		return "⏸"
	default:
		return "·"
	}
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i != -1 {
		s = s[:i]
	}
	return s
}

func removeIDs(order, ids []string) []string {
	return slices.DeleteFunc(order, func(id string) bool {
		return slices.Contains(ids, id)
	})
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

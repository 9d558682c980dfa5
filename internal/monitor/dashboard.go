package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/conductor/internal/state"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	activitySize    = 8
	taskRows        = 12
	descWidth       = 60
)

// Model is the BubbleTea dashboard. It reads store events from a channel and
// never touches the store itself.
type Model struct {
	events  <-chan state.Event
	onAbort func()
	now     func() time.Time

	goal     string
	phase    state.Phase
	status   state.WorkflowStatus
	result   *state.WorkflowResult
	started  time.Time
	tasks    map[string]*taskRow
	order    []string
	agents   map[string]string // agent -> last activity
	activity []string

	cost        float64
	invocations int
	errors      int
	costHistory []float64

	feedClosed bool
	quitting   bool
	aborting   bool

	spinner  spinner.Model
	progress progress.Model
}

type taskRow struct {
	desc     string
	status   state.TaskStatus
	attempts int
	depth    int
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard reading events. onAbort is called once when
// the user quits while the workflow is still running.
func NewModel(events <-chan state.Event, onAbort func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = sparklineStyle

	return Model{
		events:      events,
		onAbort:     onAbort,
		now:         time.Now,
		tasks:       make(map[string]*taskRow),
		agents:      make(map[string]string),
		costHistory: make([]float64, 0, historySize),
		spinner:     s,
		progress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
	}
}

// Message types
type eventMsg state.Event
type feedClosedMsg struct{}

// waitForEvent blocks on the channel inside the BubbleTea command goroutine.
func waitForEvent(events <-chan state.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(e)
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.running() && !m.aborting && m.onAbort != nil {
				m.aborting = true
				m.onAbort()
			}
			return m, tea.Quit
		}

	case eventMsg:
		m.apply(state.Event(msg))
		return m, waitForEvent(m.events)

	case feedClosedMsg:
		// The workflow is over; leave its final frame on screen.
		m.feedClosed = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) running() bool {
	return !m.feedClosed && m.status == state.WorkflowRunning
}

// apply folds one event into the view model.
func (m *Model) apply(e state.Event) {
	switch p := e.Payload.(type) {
	case state.WorkflowPayload:
		m.goal = p.Workflow.Goal
		m.status = p.Workflow.Status
		m.result = p.Workflow.Result
		if e.Kind == state.EventWorkflowStarted && m.started.IsZero() {
			m.started = e.Timestamp
		}
	case state.PhasePayload:
		m.phase = p.To
		m.addActivity(e, fmt.Sprintf("phase %s", phaseName(p.To)))
	case state.TaskPayload:
		row, ok := m.tasks[p.Task.ID]
		if !ok {
			row = &taskRow{}
			if parent, ok := m.tasks[p.Task.ParentTaskID]; ok {
				row.depth = parent.depth + 1
			}
			m.tasks[p.Task.ID] = row
			m.order = append(m.order, p.Task.ID)
		}
		row.desc = p.Task.Description
		row.status = p.Task.Status
		row.attempts = p.Task.Attempts
		if e.Kind == state.EventTaskCompleted || e.Kind == state.EventTaskFailed {
			m.addActivity(e, fmt.Sprintf("%s %s", taskIcon(p.Task.Status), p.Task.Description))
		}
	case state.TasksRemovedPayload:
		for _, id := range p.TaskIDs {
			delete(m.tasks, id)
		}
		m.order = removeIDs(m.order, p.TaskIDs)
		m.addActivity(e, fmt.Sprintf("removed %d tasks: %s", len(p.TaskIDs), p.Reason))
	case state.InvocationPayload:
		inv := p.Invocation
		m.invocations++
		m.cost += inv.CostUSD
		m.costHistory = appendToHistory(m.costHistory, m.cost)
		m.agents[inv.AgentName] = fmt.Sprintf("%s %s", inv.Model, FormatDuration(time.Duration(inv.DurationMS)*time.Millisecond))
		if inv.Status == state.InvocationError {
			m.errors++
			m.addActivity(e, fmt.Sprintf("%s error (%s)", inv.AgentName, inv.ErrorCategory))
		}
	case state.OutputPayload:
		m.addActivity(e, fmt.Sprintf("%s: %s", e.Source, firstLine(p.Output.Content)))
	case state.FailurePatternPayload:
		m.addActivity(e, "pattern: "+p.Pattern.FailurePattern)
	case state.LoadedPayload:
		m.addActivity(e, fmt.Sprintf("resumed from %s", p.SavedAt.Format("15:04:05")))
	}
}

func (m *Model) addActivity(e state.Event, line string) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = m.now()
	}
	m.activity = append(m.activity, ts.Format("15:04:05")+" "+truncate(line, descWidth))
	if len(m.activity) > activitySize {
		m.activity = m.activity[len(m.activity)-activitySize:]
	}
}

func (m Model) counts() state.TaskCounts {
	var c state.TaskCounts
	for _, id := range m.order {
		c.Add(m.tasks[id].status)
	}
	return c
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	spark.PushAll(data)
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// statusBadge returns the workflow badge.
func statusBadge(s state.WorkflowStatus, r *state.WorkflowResult) string {
	switch s {
	case state.WorkflowCompleted:
		if r != nil && !r.Success {
			return errorStyle.Render("✗ REJECTED")
		}
		return healthyStyle.Render("✓ COMPLETED")
	case state.WorkflowFailed:
		return errorStyle.Render("✗ FAILED")
	case state.WorkflowAborted:
		return warningStyle.Render("⚠ ABORTED")
	case state.WorkflowRunning:
		return healthyStyle.Render("● RUNNING")
	}
	return dimStyle.Render("○ WAITING")
}

func taskStyle(s state.TaskStatus) lipgloss.Style {
	switch s {
	case state.TaskCompleted:
		return healthyStyle
	case state.TaskFailed:
		return errorStyle
	case state.TaskInProgress, state.TaskBlocked:
		return warningStyle
	}
	return dimStyle
}

func phaseName(p state.Phase) string {
	if p == state.PhaseIdle {
		return "idle"
	}
	return string(p)
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	elapsed := "-"
	if !m.started.IsZero() {
		elapsed = FormatDuration(m.now().Sub(m.started))
	}
	phase := phaseName(m.phase)
	if m.running() {
		phase = m.spinner.View() + " " + phase
	}
	b.WriteString(headerStyle.Render(" conductor ") + "\n")
	fmt.Fprintf(&b, "%s   %s %s   %s %s\n",
		statusBadge(m.status, m.result),
		dimStyle.Render("Phase:"), valueStyle.Render(phase),
		dimStyle.Render("Elapsed:"), valueStyle.Render(elapsed))
	if m.goal != "" {
		b.WriteString(labelStyle.Render("  Goal: ") + valueStyle.Render(truncate(m.goal, descWidth)) + "\n")
	}

	counts := m.counts()
	b.WriteString("\n" + sectionStyle.Render("┃ Tasks") + "\n")
	ratio := 0.0
	if counts.Total() > 0 {
		ratio = float64(counts.Completed) / float64(counts.Total())
	}
	b.WriteString(labelStyle.Render("  Progress: ") + m.progress.ViewAs(ratio) +
		" " + dimStyle.Render(FormatTaskCounts(counts)) + "\n")
	start := max(len(m.order)-taskRows, 0)
	for _, id := range m.order[start:] {
		row := m.tasks[id]
		line := fmt.Sprintf("  %s%s %s", strings.Repeat("  ", row.depth), taskIcon(row.status), truncate(row.desc, descWidth))
		if row.attempts > 1 {
			line += dimStyle.Render(fmt.Sprintf(" (attempt %d)", row.attempts))
		}
		b.WriteString(taskStyle(row.status).Render(line) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Executor") + "\n")
	b.WriteString(labelStyle.Render("  Cost: ") + valueStyle.Render(FormatCost(m.cost)) +
		"   " + createSparkline(m.costHistory) + "\n")
	b.WriteString(labelStyle.Render("  Calls: ") + valueStyle.Render(fmt.Sprintf("%d", m.invocations)))
	if m.errors > 0 {
		b.WriteString("  " + errorStyle.Render(fmt.Sprintf("%d errors", m.errors)))
	}
	b.WriteString("\n")
	for _, name := range sortedKeys(m.agents) {
		b.WriteString(labelStyle.Render("  "+name+": ") + dimStyle.Render(m.agents[name]) + "\n")
	}

	if len(m.activity) > 0 {
		b.WriteString("\n" + sectionStyle.Render("┃ Activity") + "\n")
		for _, line := range m.activity {
			b.WriteString(dimStyle.Render("  "+line) + "\n")
		}
	}

	if m.result != nil && m.result.Summary != "" {
		b.WriteString("\n" + labelStyle.Render("  Result: ") + valueStyle.Render(truncate(m.result.Summary, descWidth)) + "\n")
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit")
	if m.running() {
		footer = footerKeyStyle.Render("[q]") + footerStyle.Render(" abort and quit")
	}
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"go.uber.org/zap"
)

const (
	// maxStderr bounds how much stderr is kept in an error message.
	maxStderr = 2048

	// waitDelay bounds the wait for output pipes after the CLI is killed.
	waitDelay = 2 * time.Second
)

// Subprocess runs the model CLI once per call: the prompt goes to stdin and
// a JSON result is read from stdout. With a docker container configured the
// CLI runs inside it through `docker exec -i`.
type Subprocess struct {
	Command         string
	Args            []string
	Timeout         time.Duration
	DockerContainer string
	WorkDir         string

	logger *logging.Logger
}

// NewSubprocess builds a Subprocess from configuration.
func NewSubprocess(cfg config.ExecutorConfig, logger *logging.Logger) *Subprocess {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Subprocess{
		Command:         cfg.Command,
		Args:            cfg.Args,
		Timeout:         cfg.Timeout.Duration(),
		DockerContainer: cfg.DockerContainer,
		WorkDir:         cfg.WorkDir,
		logger:          logger.Named("subprocess"),
	}
}

// cliOutput is the result object printed by `claude -p --output-format json`.
type cliOutput struct {
	Type             string          `json:"type"`
	Subtype          string          `json:"subtype"`
	IsError          bool            `json:"is_error"`
	Result           string          `json:"result"`
	SessionID        string          `json:"session_id"`
	TotalCostUSD     float64         `json:"total_cost_usd"`
	DurationMS       int64           `json:"duration_ms"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	Usage            struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	ToolCalls []state.ToolCall `json:"tool_calls"`
}

// command returns the program and arguments for one call.
func (s *Subprocess) command(opts Options) (string, []string) {
	args := append([]string{}, s.Args...)
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}
	if s.DockerContainer == "" {
		return s.Command, args
	}
	docker := []string{"exec", "-i"}
	if s.WorkDir != "" {
		docker = append(docker, "-w", s.WorkDir)
	}
	docker = append(docker, s.DockerContainer, s.Command)
	return "docker", append(docker, args...)
}

// Execute runs the CLI.
func (s *Subprocess) Execute(ctx context.Context, agent, prompt string, opts Options) (*Result, error) {
	if s.Command == "" {
		return nil, &Error{Category: CategoryPermanent, Agent: agent, Message: "executor command is required"}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = s.Timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	name, args := s.command(opts)
	cmd := exec.CommandContext(callCtx, name, args...)
	if s.WorkDir != "" && s.DockerContainer == "" {
		cmd.Dir = s.WorkDir
	}
	cmd.WaitDelay = waitDelay
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug(ctx, "running agent",
		zap.String("agent", agent),
		zap.String("command", name),
		zap.String("model", opts.Model),
		zap.Bool("resume", opts.SessionID != ""),
	)
	start := time.Now()
	runErr := cmd.Run()
	took := time.Since(start)

	if runErr != nil {
		return nil, s.classifyRunError(ctx, callCtx, agent, timeout, runErr, stderr.String())
	}
	res := parseOutput(stdout.Bytes())
	if res.DurationMS == 0 {
		res.DurationMS = took.Milliseconds()
	}
	if res.isError {
		return nil, &Error{Category: Classify(0, res.Response), Agent: agent, Message: truncate(res.Response)}
	}
	return &res.Result, nil
}

func (s *Subprocess) classifyRunError(ctx, callCtx context.Context, agent string, timeout time.Duration, runErr error, stderr string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &Error{Category: CategoryTimeout, Agent: agent, Message: "no result within " + timeout.String(), Err: callCtx.Err()}
	}
	if errors.Is(runErr, exec.ErrNotFound) {
		return &Error{Category: CategoryPermanent, Agent: agent, Err: runErr}
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		return &Error{Category: Classify(code, stderr), Agent: agent, ExitCode: code, Message: truncate(stderr)}
	}
	return &Error{Category: CategoryUnknown, Agent: agent, Err: runErr}
}

type parsed struct {
	Result
	isError bool
}

// parseOutput reads the CLI result object. Plain text output is kept as the
// response so non-JSON CLIs still work.
func parseOutput(stdout []byte) parsed {
	text := strings.TrimSpace(string(stdout))
	var out cliOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil || (out.Type == "" && out.Result == "") {
		p := parsed{Result: Result{Response: text}}
		p.StructuredOutput, _ = ExtractJSON(text)
		return p
	}

	p := parsed{
		Result: Result{
			Response:         out.Result,
			StructuredOutput: out.StructuredOutput,
			ToolCalls:        out.ToolCalls,
			SessionID:        out.SessionID,
			CostUSD:          out.TotalCostUSD,
			TokensIn:         out.Usage.InputTokens,
			TokensOut:        out.Usage.OutputTokens,
			DurationMS:       out.DurationMS,
		},
		isError: out.IsError,
	}
	if len(p.StructuredOutput) == 0 || string(p.StructuredOutput) == "null" {
		p.StructuredOutput, _ = ExtractJSON(out.Result)
	}
	return p
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[:maxStderr] + "..."
	}
	return s
}

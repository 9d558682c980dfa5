// Package config provides configuration loading for conductor.
//
// Configuration is read from configuration.json, overridden by CONDUCTOR_*
// environment variables, and completed with defaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Agent role names. They double as the default agent names.
const (
	RolePlanner    = "planner"
	RoleCoder      = "coder"
	RoleTester     = "tester"
	RoleSupervisor = "supervisor"
)

// Config holds the complete conductor configuration.
type Config struct {
	Agents            map[string]AgentConfig  `koanf:"agents" json:"agents"`
	Execution         ExecutionConfig         `koanf:"execution" json:"execution"`
	PlanReviewFailure PlanReviewFailureConfig `koanf:"planReviewFailure" json:"planReviewFailure"`
	Supervisor        SupervisorConfig        `koanf:"supervisor" json:"supervisor"`
	Executor          ExecutorConfig          `koanf:"executor" json:"executor"`
	State             StateConfig             `koanf:"state" json:"state"`

	// Warnings collects recoverable problems found while loading, such as an
	// unreadable configuration file that was replaced by defaults.
	Warnings []string `koanf:"-" json:"-"`
}

// AgentConfig configures one agent role.
type AgentConfig struct {
	Model         string   `koanf:"model" json:"model"`
	FallbackModel string   `koanf:"fallbackModel" json:"fallbackModel"`
	SubscribesTo  []string `koanf:"subscribesTo" json:"subscribesTo"`
	Tools         []string `koanf:"tools" json:"tools"`
}

// ExecutionConfig bounds the execution phase.
type ExecutionConfig struct {
	MaxFixCycles         int   `koanf:"maxFixCycles" json:"maxFixCycles"`
	MaxPlanRevisions     int   `koanf:"maxPlanRevisions" json:"maxPlanRevisions"`
	MaxGoalIterations    int   `koanf:"maxGoalIterations" json:"maxGoalIterations"`
	TimeLimitMS          int64 `koanf:"timeLimit" json:"timeLimit"` // milliseconds, 0 = unlimited
	RequirePrePlanReview bool  `koanf:"requirePrePlanReview" json:"requirePrePlanReview"`
	VerifyAllOutputs     bool  `koanf:"verifyAllOutputs" json:"verifyAllOutputs"`
}

// TimeLimit returns the execution time budget.
func (e ExecutionConfig) TimeLimit() time.Duration {
	return time.Duration(e.TimeLimitMS) * time.Millisecond
}

// PlanReviewFailureConfig selects the behavior when plan review never approves.
type PlanReviewFailureConfig struct {
	Action PlanReviewAction `koanf:"action" json:"action"`
}

// SupervisorConfig tunes supervisor judgments.
type SupervisorConfig struct {
	ApproveThreshold int `koanf:"approveThreshold" json:"approveThreshold"`
}

// ExecutorConfig configures the subprocess executor and its retry policy.
type ExecutorConfig struct {
	Command         string   `koanf:"command" json:"command"`
	Args            []string `koanf:"args" json:"args"`
	Timeout         Duration `koanf:"timeout" json:"timeout"`
	MaxRetries      int      `koanf:"maxRetries" json:"maxRetries"`
	BaseDelay       Duration `koanf:"baseDelay" json:"baseDelay"`
	MaxDelay        Duration `koanf:"maxDelay" json:"maxDelay"`
	DockerContainer string   `koanf:"dockerContainer" json:"dockerContainer"`
	WorkDir         string   `koanf:"workDir" json:"workDir"`
}

// StateConfig locates the snapshot file.
type StateConfig struct {
	Path           string `koanf:"path" json:"path"`
	MaxInvocations int    `koanf:"maxInvocations" json:"maxInvocations"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		Agents: map[string]AgentConfig{
			RolePlanner: {
				Model:         "sonnet",
				FallbackModel: "haiku",
				SubscribesTo:  []string{RoleSupervisor, RoleTester},
			},
			RoleCoder: {
				Model:         "sonnet",
				FallbackModel: "haiku",
				SubscribesTo:  []string{RolePlanner, RoleTester},
			},
			RoleTester: {
				Model:         "sonnet",
				FallbackModel: "haiku",
				SubscribesTo:  []string{RoleCoder},
			},
			RoleSupervisor: {
				Model:         "opus",
				FallbackModel: "sonnet",
				SubscribesTo:  []string{RolePlanner, RoleCoder, RoleTester},
			},
		},
		Execution: ExecutionConfig{
			MaxFixCycles:         3,
			MaxPlanRevisions:     3,
			MaxGoalIterations:    3,
			TimeLimitMS:          int64((2 * time.Hour) / time.Millisecond),
			RequirePrePlanReview: true,
			VerifyAllOutputs:     true,
		},
		PlanReviewFailure: PlanReviewFailureConfig{Action: PlanReviewAbort},
		Supervisor:        SupervisorConfig{ApproveThreshold: 70},
		Executor: ExecutorConfig{
			Command:    "claude",
			Args:       []string{"-p", "--output-format", "json"},
			Timeout:    Duration(10 * time.Minute),
			MaxRetries: 3,
			BaseDelay:  Duration(2 * time.Second),
			MaxDelay:   Duration(time.Minute),
		},
		State: StateConfig{Path: "state.json"},
	}
}

// Agent returns the configuration for the named agent, or the role default.
func (c *Config) Agent(name string) AgentConfig {
	if ac, ok := c.Agents[name]; ok {
		return ac
	}
	return Default().Agents[name]
}

// Validate validates the configuration.
//
// Returns an error if:
//   - any execution bound is negative or the iteration bounds are zero
//   - the plan review failure action is unknown
//   - the supervisor threshold is outside 0-100
//   - the executor command or state path is empty
func (c *Config) Validate() error {
	var errs []error

	if c.Execution.MaxFixCycles < 0 {
		errs = append(errs, fmt.Errorf("execution.maxFixCycles must be >= 0, got %d", c.Execution.MaxFixCycles))
	}
	if c.Execution.MaxPlanRevisions < 1 {
		errs = append(errs, fmt.Errorf("execution.maxPlanRevisions must be >= 1, got %d", c.Execution.MaxPlanRevisions))
	}
	if c.Execution.MaxGoalIterations < 1 {
		errs = append(errs, fmt.Errorf("execution.maxGoalIterations must be >= 1, got %d", c.Execution.MaxGoalIterations))
	}
	if c.Execution.TimeLimitMS < 0 {
		errs = append(errs, fmt.Errorf("execution.timeLimit must be >= 0, got %d", c.Execution.TimeLimitMS))
	}
	if !c.PlanReviewFailure.Action.Valid() {
		errs = append(errs, fmt.Errorf("planReviewFailure.action %q is not one of abort, skip_and_continue, lower_threshold", c.PlanReviewFailure.Action))
	}
	if c.Supervisor.ApproveThreshold < 0 || c.Supervisor.ApproveThreshold > 100 {
		errs = append(errs, fmt.Errorf("supervisor.approveThreshold must be 0-100, got %d", c.Supervisor.ApproveThreshold))
	}
	if c.Executor.Command == "" {
		errs = append(errs, errors.New("executor.command is required"))
	}
	if c.Executor.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("executor.maxRetries must be >= 0, got %d", c.Executor.MaxRetries))
	}
	if c.State.Path == "" {
		errs = append(errs, errors.New("state.path is required"))
	}

	return errors.Join(errs...)
}

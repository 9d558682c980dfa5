package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/secrets"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"go.uber.org/zap"
)

// Recorder receives one audit record per attempt. *state.Store satisfies it.
type Recorder interface {
	RecordInvocation(inv state.Invocation) state.Invocation
}

// RetryPolicy bounds retries.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns three retries starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
}

// Delay returns the wait before the given retry (1-based):
// base * 2^(retry-1) * (0.5 + 0.5*jitter), capped at MaxDelay.
func (p RetryPolicy) Delay(retry int, jitter float64) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(retry-1)) * (0.5 + 0.5*jitter)
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// ModelRoute names an agent's primary and fallback models.
type ModelRoute struct {
	Model         string
	FallbackModel string
}

// Retrying wraps an Executor with categorized retries. Permanent failures
// stop immediately; the fallback model takes over from the second retry on.
// Every attempt is recorded, with prompt, response and error scrubbed.
type Retrying struct {
	next     Executor
	recorder Recorder
	sessions *Sessions
	scrubber secrets.Scrubber
	policy   RetryPolicy
	routes   map[string]ModelRoute
	logger   *logging.Logger
	jitter   func() float64
	sleep    func(context.Context, time.Duration) error
}

// RetryOption configures Retrying.
type RetryOption func(*Retrying)

// WithPolicy sets the retry bounds.
func WithPolicy(p RetryPolicy) RetryOption {
	return func(r *Retrying) { r.policy = p }
}

// WithRoutes sets per-agent models.
func WithRoutes(routes map[string]ModelRoute) RetryOption {
	return func(r *Retrying) { r.routes = routes }
}

// WithSessions shares a session registry.
func WithSessions(s *Sessions) RetryOption {
	return func(r *Retrying) { r.sessions = s }
}

// WithScrubber sets the scrubber applied to audit records.
func WithScrubber(s secrets.Scrubber) RetryOption {
	return func(r *Retrying) { r.scrubber = s }
}

// WithRetryLogger sets the logger.
func WithRetryLogger(l *logging.Logger) RetryOption {
	return func(r *Retrying) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithJitter replaces the random source used for backoff.
func WithJitter(fn func() float64) RetryOption {
	return func(r *Retrying) { r.jitter = fn }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(context.Context, time.Duration) error) RetryOption {
	return func(r *Retrying) { r.sleep = fn }
}

// NewRetrying wraps next. A nil recorder disables the audit trail.
func NewRetrying(next Executor, recorder Recorder, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:     next,
		recorder: recorder,
		sessions: NewSessions(),
		scrubber: secrets.MustNew(nil),
		policy:   DefaultRetryPolicy(),
		logger:   logging.Nop(),
		jitter:   rand.Float64,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("executor")
	return r
}

// Sessions returns the session registry.
func (r *Retrying) Sessions() *Sessions {
	return r.sessions
}

// Execute runs prompt, retrying retryable failures.
func (r *Retrying) Execute(ctx context.Context, agent, prompt string, opts Options) (*Result, error) {
	route := r.routes[agent]
	model := opts.Model
	if model == "" {
		model = route.Model
	}
	if opts.SessionID == "" {
		opts.SessionID = r.sessions.Get(agent)
	}
	ctx = logging.WithAgent(ctx, agent)

	attempts := r.policy.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		retry := attempt - 1
		if retry > 0 {
			delay := r.policy.Delay(retry, r.jitter())
			r.logger.Warn(ctx, "retrying executor call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.String("category", string(CategoryOf(lastErr))),
				zap.Error(lastErr),
			)
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if retry == 2 && route.FallbackModel != "" && route.FallbackModel != model {
			r.logger.Info(ctx, "switching to fallback model",
				zap.String("from", model),
				zap.String("to", route.FallbackModel),
			)
			model = route.FallbackModel
		}

		call := opts
		call.Model = model
		start := time.Now()
		res, err := r.next.Execute(ctx, agent, prompt, call)
		r.record(agent, prompt, call, attempt, time.Since(start), res, err)

		if err == nil {
			if res.SessionID != "" {
				r.sessions.Set(agent, res.SessionID)
			}
			if res.Model == "" {
				res.Model = model
			}
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cat := CategoryOf(err); !cat.Retryable() {
			r.logger.Error(ctx, "permanent executor failure", zap.Error(err))
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", agent, attempts, lastErr)
}

func (r *Retrying) record(agent, prompt string, opts Options, attempt int, took time.Duration, res *Result, err error) {
	if r.recorder == nil {
		return
	}
	inv := state.Invocation{
		AgentName:  agent,
		Model:      opts.Model,
		Prompt:     secrets.Redact(r.scrubber, prompt),
		SessionID:  opts.SessionID,
		Attempt:    attempt,
		DurationMS: took.Milliseconds(),
		Status:     state.InvocationSuccess,
	}
	if res != nil {
		inv.Response = secrets.Redact(r.scrubber, res.Response)
		inv.ToolCalls = res.ToolCalls
		inv.CostUSD = res.CostUSD
		inv.TokensIn = res.TokensIn
		inv.TokensOut = res.TokensOut
		if res.SessionID != "" {
			inv.SessionID = res.SessionID
		}
		if res.DurationMS > 0 {
			inv.DurationMS = res.DurationMS
		}
	}
	if err != nil {
		inv.Status = state.InvocationError
		inv.ErrorCategory = string(CategoryOf(err))
		inv.Error = secrets.Redact(r.scrubber, err.Error())
	}
	r.recorder.RecordInvocation(inv)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsPermanent reports whether err is a permanent executor failure.
func IsPermanent(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == CategoryPermanent
}

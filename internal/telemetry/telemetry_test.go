package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "conductor", cfg.ServiceName)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "disabled skips checks", mutate: func(c *Config) { c.Endpoint = "" }},
		{name: "enabled local", mutate: func(c *Config) { c.Enabled = true }},
		{name: "missing endpoint", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "" }, wantErr: "endpoint is required"},
		{name: "missing service name", mutate: func(c *Config) { c.Enabled = true; c.ServiceName = "" }, wantErr: "serviceName"},
		{name: "bad protocol", mutate: func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, wantErr: "protocol"},
		{name: "insecure remote", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, wantErr: "insecure"},
		{name: "secure remote", mutate: func(c *Config) {
			c.Enabled = true
			c.Endpoint = "https://otel.example.com"
			c.Insecure = false
		}},
		{name: "sampling out of range", mutate: func(c *Config) { c.Enabled = true; c.Sampling.Rate = 1.5 }, wantErr: "sampling.rate"},
		{name: "zero export interval", mutate: func(c *Config) { c.Enabled = true; c.Metrics.ExportInterval = 0 }, wantErr: "exportInterval"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Enabled = true; c.Shutdown.Timeout = config.Duration(0) }, wantErr: "shutdown.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	for endpoint, want := range map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4317":        true,
		"http://localhost:4318": true,
		"[::1]:4317":            true,
		"collector:4317":        false,
		"https://otel.io":       false,
	} {
		cfg := &Config{Endpoint: endpoint}
		assert.Equal(t, want, cfg.isLocalEndpoint(), endpoint)
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLE", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", ProtocolHTTP)
	t.Setenv("OTEL_SERVICE_NAME", "conductor-test")

	cfg := NewDefaultConfig()
	cfg.ApplyEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "conductor-test", cfg.ServiceName)

	t.Setenv("OTEL_ENABLE", "not-a-bool")
	cfg = NewDefaultConfig()
	cfg.ApplyEnv()
	assert.False(t, cfg.Enabled)
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestNew_InvalidConfig(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: true}, logging.Nop())
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledLazyExporters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)

	// OTLP exporters connect lazily, so construction succeeds without a collector.
	tel, err := New(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())
	assert.False(t, tel.Health().Degraded)
	_ = tel.Shutdown(context.Background())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "phase.planning")
	span.SetAttributes(attribute.String("goal", "g"), attribute.Int("tasks", 3))
	span.End()

	tt.AssertSpanExists(t, "phase.planning")
	tt.AssertSpanAttribute(t, "phase.planning", "goal", "g")
	tt.AssertSpanAttribute(t, "phase.planning", "tasks", int64(3))
	assert.Nil(t, tt.SpanByName("missing"))
	assert.Equal(t, []string{"phase.planning"}, tt.SpanNames())

	counter, err := tt.Meter("test").Int64Counter("tasks.completed")
	require.NoError(t, err)
	counter.Add(ctx, 2)
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", "coder")))
	assert.Equal(t, int64(3), tt.Counter(t, "tasks.completed"))
	assert.Equal(t, int64(-1), tt.Counter(t, "never.recorded"))
}

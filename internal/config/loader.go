package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CONDUCTOR_"
)

// Load loads configuration from a JSON file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CONDUCTOR_EXECUTION_MAXFIXCYCLES, CONDUCTOR_AGENTS_CODER_MODEL, ...)
//  2. configuration.json
//  3. Hardcoded defaults
//
// The file is parsed with the koanf YAML parser; JSON is a subset of YAML so
// configuration.json needs no dedicated parser.
//
// A missing file is not an error. A file that cannot be read or parsed is
// replaced by defaults and reported in Config.Warnings rather than failing the
// run. Only a configuration that fails Validate is returned as an error.
//
// # Environment Variable Mapping
//
// Variables are matched case-insensitively against known keys, underscores
// acting as the path separator:
//
//	CONDUCTOR_EXECUTION_MAXFIXCYCLES -> execution.maxFixCycles
//	CONDUCTOR_AGENTS_CODER_MODEL     -> agents.coder.model
//	CONDUCTOR_STATE_PATH             -> state.path
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")
	var warnings []string

	defaults, err := json.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		content, err := readConfigFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults only
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("ignoring %s: %v", configPath, err))
		default:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				warnings = append(warnings, fmt.Sprintf("ignoring malformed %s: %v", configPath, err))
			}
		}
	}

	known := k.Keys()
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envKey(s, known)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Warnings = warnings

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// readConfigFile reads the file through one descriptor and enforces the size limit.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return io.ReadAll(f)
}

// envKey maps CONDUCTOR_SECTION_FIELD onto an existing koanf key, or returns ""
// so the provider skips the variable.
func envKey(name string, known []string) string {
	path := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	path = strings.ReplaceAll(path, "_", ".")
	for _, key := range known {
		if strings.EqualFold(key, path) {
			return key
		}
	}
	return ""
}

// applyDefaults fills zero values that a partial file may have cleared.
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Agents == nil {
		cfg.Agents = def.Agents
	}
	for role, ac := range def.Agents {
		if _, ok := cfg.Agents[role]; !ok {
			cfg.Agents[role] = ac
		}
	}
	if cfg.PlanReviewFailure.Action == "" {
		cfg.PlanReviewFailure.Action = def.PlanReviewFailure.Action
	}
	if cfg.Executor.Command == "" {
		cfg.Executor.Command = def.Executor.Command
	}
	if cfg.Executor.Timeout == 0 {
		cfg.Executor.Timeout = def.Executor.Timeout
	}
	if cfg.Executor.BaseDelay == 0 {
		cfg.Executor.BaseDelay = def.Executor.BaseDelay
	}
	if cfg.Executor.MaxDelay == 0 {
		cfg.Executor.MaxDelay = def.Executor.MaxDelay
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/me/worksizing/internal/predicate"
	"github.com/me/worksizing/internal/scheduler"
	"github.com/me/worksizing/pkg/model"
	"gopkg.in/yaml.v3"
)

// SearchConfig holds the settings of one search run. The same fields are read
// from config files, command-line flags and API request bodies.
type SearchConfig struct {
	BlockSize  int64   `yaml:"block_size" json:"block_size"`   // Candidates per block (default 100)
	MaxWorkers int     `yaml:"max_workers" json:"max_workers"` // Concurrent searches (default 20)
	MaxJobs    int     `yaml:"max_jobs" json:"max_jobs"`       // Outstanding blocks, 0 = max_workers
	Timeout    float64 `yaml:"timeout" json:"timeout"`         // Poll timeout in seconds (default 0.1)
	Verbose    bool    `yaml:"verbose" json:"verbose"`
	Unordered  bool    `yaml:"unordered" json:"unordered"` // First report wins instead of smallest value
	Wait       string  `yaml:"wait" json:"wait"`           // Poll mode: first, all
	Limit      int64   `yaml:"limit" json:"limit"`         // Largest candidate searched, 0 = unbounded
	Deadline   string  `yaml:"deadline" json:"deadline"`   // Wall-clock cap as a Go duration, "" = none
	Rule       string  `yaml:"rule" json:"rule"`           // JavaScript divisor expression over n and i
}

// DefaultSearchConfig returns the command-line defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		BlockSize:  100,
		MaxWorkers: 20,
		MaxJobs:    0,
		Timeout:    0.1,
		Wait:       string(model.WaitFirstCompleted),
	}
}

// Validate checks the configuration for a search with bound n and reports
// every problem at once.
func (c SearchConfig) Validate(n int64) error {
	_, err := c.Prepare(n)
	return err
}

// Prepare validates the configuration like Validate and returns the compiled
// rule, so a script is compiled once per run. The rule is nil, selecting the
// built-in modulo rule, when none is set.
func (c SearchConfig) Prepare(n int64) (predicate.Rule, error) {
	var details []model.FieldError
	add := func(field, msg string) {
		details = append(details, model.FieldError{Field: field, Message: msg})
	}

	if n < 1 {
		add("n", "must be at least 1")
	}
	if c.BlockSize <= 0 {
		add("block_size", "must be positive")
	}
	if c.MaxWorkers <= 0 {
		add("max_workers", "must be positive")
	}
	if c.MaxJobs < 0 {
		add("max_jobs", "must not be negative")
	}
	if c.Timeout <= 0 {
		add("timeout", "must be positive")
	}
	if c.Limit < 0 {
		add("limit", "must not be negative")
	}
	if c.Wait != "" && !model.WaitMode(c.Wait).Valid() {
		add("wait", fmt.Sprintf("must be %q or %q", model.WaitFirstCompleted, model.WaitAllCompleted))
	}
	if _, err := c.DeadlineDuration(); err != nil {
		add("deadline", err.Error())
	}
	var rule predicate.Rule
	if c.Rule != "" {
		compiled, err := predicate.CompileScript(c.Rule)
		if err != nil {
			add("rule", err.Error())
		} else {
			rule = compiled
		}
	}

	if len(details) > 0 {
		return nil, model.NewValidationError("invalid search configuration", details...)
	}
	return rule, nil
}

// ResolvedMaxJobs returns max_jobs with 0 resolved to max_workers.
func (c SearchConfig) ResolvedMaxJobs() int {
	if c.MaxJobs == 0 {
		return c.MaxWorkers
	}
	return c.MaxJobs
}

// PollTimeout returns the poll timeout as a duration.
func (c SearchConfig) PollTimeout() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}

// DeadlineDuration parses the deadline. An empty deadline is zero.
func (c SearchConfig) DeadlineDuration() (time.Duration, error) {
	if c.Deadline == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Deadline)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// SchedulerConfig converts the settings into the scheduler's configuration.
func (c SearchConfig) SchedulerConfig() scheduler.Config {
	wait := model.WaitMode(c.Wait)
	if wait == "" {
		wait = model.WaitFirstCompleted
	}
	return scheduler.Config{
		BlockSize:  c.BlockSize,
		MaxWorkers: c.MaxWorkers,
		MaxJobs:    c.ResolvedMaxJobs(),
		Timeout:    c.PollTimeout(),
		WaitMode:   wait,
		Ordered:    !c.Unordered,
		Limit:      c.Limit,
	}
}

// ServerConfig holds configuration for the search API server.
type ServerConfig struct {
	Addr          string `yaml:"addr" json:"addr"`                     // Listen address (default ":8080")
	LogLevel      string `yaml:"log_level" json:"log_level"`           // Log level: debug, info, warn, error
	LogFormat     string `yaml:"log_format" json:"log_format"`         // Log format: text, json
	MaxBound      int64  `yaml:"max_bound" json:"max_bound"`           // Largest n accepted (default 24)
	MaxConcurrent int    `yaml:"max_concurrent" json:"max_concurrent"` // Searches run at once (default 4)
	MaxWorkers    int    `yaml:"max_workers" json:"max_workers"`       // Largest max_workers accepted (default 64)
	MaxJobs       int    `yaml:"max_jobs" json:"max_jobs"`             // Largest resolved max_jobs accepted (default 256)
	SearchTimeout string `yaml:"search_timeout" json:"search_timeout"` // Per-request cap (default "30s")
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:          ":8080",
		LogLevel:      "info",
		LogFormat:     "text",
		MaxBound:      24,
		MaxConcurrent: 4,
		MaxWorkers:    64,
		MaxJobs:       256,
		SearchTimeout: "30s",
	}
}

// CheckLimits reports the request settings that exceed the server's
// ceilings. A ceiling of zero or less is not enforced.
func (c ServerConfig) CheckLimits(n int64, search SearchConfig) []model.FieldError {
	var details []model.FieldError
	if c.MaxBound > 0 && n > c.MaxBound {
		details = append(details, model.FieldError{Field: "n", Message: fmt.Sprintf("must be at most %d", c.MaxBound)})
	}
	if c.MaxWorkers > 0 && search.MaxWorkers > c.MaxWorkers {
		details = append(details, model.FieldError{Field: "max_workers", Message: fmt.Sprintf("must be at most %d", c.MaxWorkers)})
	}
	if c.MaxJobs > 0 && search.ResolvedMaxJobs() > c.MaxJobs {
		details = append(details, model.FieldError{Field: "max_jobs", Message: fmt.Sprintf("must be at most %d", c.MaxJobs)})
	}
	return details
}

// SearchTimeoutDuration parses the per-request search cap.
func (c ServerConfig) SearchTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.SearchTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid search_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("search_timeout must be positive")
	}
	return d, nil
}

// FileConfig is the layout of a config file. Both sections are optional.
type FileConfig struct {
	Search SearchConfig `yaml:"search" json:"search"`
	Server ServerConfig `yaml:"server" json:"server"`
}

// LoadFile reads a YAML or JSON config file, chosen by extension. Fields the
// file omits keep their defaults.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := FileConfig{
		Search: DefaultSearchConfig(),
		Server: DefaultServerConfig(),
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %q", ext)
	}

	return &cfg, nil
}

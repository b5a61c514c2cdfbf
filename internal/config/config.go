// Package config loads velora's run configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables, command-line flags. The merged value is checked against an
// embedded CUE schema before anything runs, and is then passed by value:
// no component reads the environment or the file itself.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/llm"
)

// DefaultFile is the configuration file looked up when none is named.
const DefaultFile = "velora.yaml"

// Config is the merged run configuration.
type Config struct {
	Source      SourceConfig  `yaml:"source"`
	Mode        ir.UpdateMode `yaml:"mode"`
	PolicyLabel string        `yaml:"policy_label"`
	Concurrency int           `yaml:"concurrency"`
	Run         RunConfig     `yaml:"run"`
	Template    ir.Template   `yaml:"template"`
	LLM         LLMConfig     `yaml:"llm"`
	Mapping     MappingConfig `yaml:"mapping"`
	Cache       CacheConfig   `yaml:"cache"`
	Output      OutputConfig  `yaml:"output"`
	Log         LogConfig     `yaml:"log"`
}

// SourceConfig locates the requirement document.
type SourceConfig struct {
	Path string `yaml:"path"`
}

// RunConfig bounds a single reconciliation run.
type RunConfig struct {
	// Timeout caps the wall time of a run. Requirements not generated when it
	// expires are recorded as cancelled. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig selects the model provider and bounds its calls.
// API keys come from the environment only.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	MaxRetries  int           `yaml:"max_retries"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	// Judge enables the model-backed materiality judge in intelligent mode;
	// otherwise a lexical comparison is used.
	Judge bool `yaml:"judge"`

	GeminiAPIKey string `yaml:"-"`
	OpenAIAPIKey string `yaml:"-"`
}

// Settings returns the call bounds for llm.Generator.
func (c LLMConfig) Settings() llm.Settings {
	return llm.Settings{
		MaxRetries:  c.MaxRetries,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
	}
}

// MappingConfig selects the mapping store backend.
type MappingConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Path    string `yaml:"path"`
}

// CacheConfig configures the generation cache tiers.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// Remote is "none", "sqlite" (the mapping database), "badger" or "upstash".
	Remote    string        `yaml:"remote"`
	BadgerDir string        `yaml:"badger_dir"`
	RemoteTTL time.Duration `yaml:"remote_ttl"`

	UpstashURL   string `yaml:"-"`
	UpstashToken string `yaml:"-"`
}

// OutputConfig names the files a run writes.
type OutputConfig struct {
	Result  string `yaml:"result"`
	Metrics string `yaml:"metrics"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	s := llm.DefaultSettings()
	return Config{
		Source:      SourceConfig{Path: "requirements.md"},
		Mode:        ir.ModeIntelligent,
		PolicyLabel: "v1",
		Concurrency: 4,
		Template:    ir.DefaultTemplate(),
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			MaxRetries:  s.MaxRetries,
			Temperature: s.Temperature,
			MaxTokens:   s.MaxTokens,
			Timeout:     s.Timeout,
			Judge:       true,
		},
		Mapping: MappingConfig{Backend: "file", Path: ".velora/mapping.json"},
		Cache: CacheConfig{
			TTL:       0,
			Remote:    "none",
			BadgerDir: ".velora/cache",
			RemoteTTL: 30 * 24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides from
// lookup (os.LookupEnv when nil) and validates the result. A missing file is
// not an error unless mustExist is set.
func Load(path string, mustExist bool, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && !mustExist:
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(bytes.NewReader(data), &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// PolicyVersion derives the generation policy version from the label, the
// template and the model.
func (c Config) PolicyVersion() (string, error) {
	return ir.PolicyVersion(c.PolicyLabel, c.Template, c.LLM.Provider+":"+c.LLM.Model)
}

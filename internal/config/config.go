// Package config loads runtime configuration for a review run. Environment
// variables are the primary source (the CI contract), with an optional
// grippy.yaml for defaults and a .dev.vars file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/grippy/grippy/internal/agent"
	"github.com/grippy/grippy/pkg/errors"
	"github.com/grippy/grippy/pkg/logger"
)

// Defaults for the OpenAI-compatible endpoint.
const (
	DefaultBaseURL        = "http://localhost:1234/v1"
	DefaultModelID        = "devstral-small-2-24b-instruct-2512"
	DefaultEmbeddingModel = "text-embedding-qwen3-embedding-4b"
	DefaultDataDir        = "./grippy-data"
	DefaultTimeoutSeconds = 300
)

// Config holds everything a review run needs.
type Config struct {
	// GitHub
	GitHubToken string `yaml:"-"`
	EventPath   string `yaml:"-"`
	Repository  string `yaml:"-"`
	Workspace   string `yaml:"-"`
	OutputPath  string `yaml:"-"`

	// Model endpoint
	BaseURL        string `yaml:"base_url"`
	ModelID        string `yaml:"model_id"`
	EmbeddingModel string `yaml:"embedding_model"`
	Transport      string `yaml:"transport"`
	APIKey         string `yaml:"-"`

	// Pipeline
	Mode           string `yaml:"mode"`
	DataDir        string `yaml:"data_dir"`
	PromptsDir     string `yaml:"prompts_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	Logger logger.Config `yaml:"logger"`
}

// Load builds a Config from grippy.yaml (when present) overlaid with
// environment variables. Env always wins.
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:        DefaultBaseURL,
		ModelID:        DefaultModelID,
		EmbeddingModel: DefaultEmbeddingModel,
		Mode:           agent.ModePRReview,
		DataDir:        DefaultDataDir,
		PromptsDir:     "prompts",
		TimeoutSeconds: DefaultTimeoutSeconds,
	}

	if data, err := os.ReadFile("grippy.yaml"); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to parse grippy.yaml", err)
		}
	}

	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	cfg.EventPath = os.Getenv("GITHUB_EVENT_PATH")
	cfg.Repository = os.Getenv("GITHUB_REPOSITORY")
	cfg.Workspace = os.Getenv("GITHUB_WORKSPACE")
	cfg.OutputPath = os.Getenv("GITHUB_OUTPUT")
	cfg.APIKey = os.Getenv("GRIPPY_API_KEY")

	overlay(&cfg.BaseURL, "GRIPPY_BASE_URL")
	overlay(&cfg.ModelID, "GRIPPY_MODEL_ID")
	overlay(&cfg.EmbeddingModel, "GRIPPY_EMBEDDING_MODEL")
	overlay(&cfg.Transport, "GRIPPY_TRANSPORT")
	overlay(&cfg.Mode, "GRIPPY_MODE")
	overlay(&cfg.DataDir, "GRIPPY_DATA_DIR")
	overlay(&cfg.PromptsDir, "GRIPPY_PROMPTS_DIR")

	if v := os.Getenv("GRIPPY_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "GRIPPY_TIMEOUT must be an integer, got: "+v)
		}
		cfg.TimeoutSeconds = secs
	}

	return cfg, nil
}

func overlay(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Timeout converts the configured seconds into a duration. Zero or
// negative means no timeout.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveTransport decides between "openai" and "local". Explicit config
// wins; otherwise OPENAI_API_KEY presence selects openai, with a notice,
// and local is the fallback.
func (c *Config) ResolveTransport() (string, error) {
	switch c.Transport {
	case agent.TransportOpenAI, agent.TransportLocal:
		return c.Transport, nil
	case "":
		if os.Getenv("OPENAI_API_KEY") != "" {
			logger.Info("Transport inferred from OPENAI_API_KEY", zap.String("transport", agent.TransportOpenAI))
			return agent.TransportOpenAI, nil
		}
		return agent.TransportLocal, nil
	default:
		return "", errors.ErrTransport(c.Transport)
	}
}

// LoadDevVars reads KEY=VALUE lines from a .dev.vars file and sets any
// variable not already present in the environment. Missing file is fine.
func LoadDevVars(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

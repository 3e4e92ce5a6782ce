package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grippy/grippy/internal/agent"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GITHUB_TOKEN", "GITHUB_EVENT_PATH", "GITHUB_REPOSITORY",
		"GITHUB_WORKSPACE", "GITHUB_OUTPUT", "OPENAI_API_KEY",
		"GRIPPY_BASE_URL", "GRIPPY_MODEL_ID", "GRIPPY_EMBEDDING_MODEL",
		"GRIPPY_TRANSPORT", "GRIPPY_API_KEY", "GRIPPY_MODE",
		"GRIPPY_DATA_DIR", "GRIPPY_PROMPTS_DIR", "GRIPPY_TIMEOUT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultModelID, cfg.ModelID)
	assert.Equal(t, DefaultEmbeddingModel, cfg.EmbeddingModel)
	assert.Equal(t, agent.ModePRReview, cfg.Mode)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, 300, cfg.TimeoutSeconds)
	assert.Equal(t, 5*time.Minute, cfg.Timeout())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grippy.yaml"), []byte(
		"model_id: yaml-model\nbase_url: http://yaml:1/v1\ntimeout_seconds: 60\n",
	), 0644))

	t.Setenv("GRIPPY_MODEL_ID", "env-model")
	t.Setenv("GRIPPY_TIMEOUT", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.ModelID)
	assert.Equal(t, "http://yaml:1/v1", cfg.BaseURL)
	assert.Equal(t, 0, cfg.TimeoutSeconds)
	assert.Zero(t, cfg.Timeout(), "zero means no deadline")
}

func TestLoad_BadTimeout(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("GRIPPY_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestResolveTransport(t *testing.T) {
	clearEnv(t)

	cfg := &Config{Transport: agent.TransportLocal}
	tr, err := cfg.ResolveTransport()
	require.NoError(t, err)
	assert.Equal(t, agent.TransportLocal, tr)

	cfg = &Config{}
	tr, err = cfg.ResolveTransport()
	require.NoError(t, err)
	assert.Equal(t, agent.TransportLocal, tr, "no key means local")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	tr, err = cfg.ResolveTransport()
	require.NoError(t, err)
	assert.Equal(t, agent.TransportOpenAI, tr, "key presence infers openai")

	cfg = &Config{Transport: "carrier-pigeon"}
	_, err = cfg.ResolveTransport()
	assert.Error(t, err)
}

func TestLoadDevVars(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".dev.vars")
	require.NoError(t, os.WriteFile(path, []byte(
		"# local dev\nGRIPPY_MODEL_ID=dev-model\n\nGRIPPY_BASE_URL = http://dev:9/v1\nmalformed line\n",
	), 0644))

	t.Setenv("GRIPPY_MODEL_ID", "already-set")
	LoadDevVars(path)

	assert.Equal(t, "already-set", os.Getenv("GRIPPY_MODEL_ID"), "existing env wins")
	assert.Equal(t, "http://dev:9/v1", os.Getenv("GRIPPY_BASE_URL"))

	LoadDevVars(filepath.Join(t.TempDir(), "missing")) // no panic
}

package kuyo_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/kuyotest"
)

func TestHostingFromEnv(t *testing.T) {
	t.Setenv("VERCEL_ENV", "")
	t.Setenv("NEXT_PUBLIC_VERCEL_ENV", "preview")
	t.Setenv("VERCEL_REGION", "iad1")
	t.Setenv("VERCEL_GIT_COMMIT_SHA", "abc123")

	h := kuyo.HostingFromEnv()

	assert.Equal(t, "preview", h.Env, "falls back to the public variant")
	assert.Equal(t, "iad1", h.Region)
	assert.Equal(t, "abc123", h.CommitSHA)
	assert.Empty(t, h.DeploymentID)
}

func TestHostingFromEnv_DefaultEnv(t *testing.T) {
	t.Setenv("VERCEL_ENV", "")
	t.Setenv("NEXT_PUBLIC_VERCEL_ENV", "")
	os.Unsetenv("VERCEL_ENV")
	os.Unsetenv("NEXT_PUBLIC_VERCEL_ENV")

	assert.Equal(t, "development", kuyo.HostingFromEnv().Env)
}

func TestDefaultConfig(t *testing.T) {
	cfg := kuyo.DefaultConfig()

	assert.Equal(t, kuyo.EnvironmentProduction, cfg.Environment)
	assert.Equal(t, kuyo.DefaultEndpoint, cfg.Endpoint)
	assert.Empty(t, cfg.APIKey)
	assert.False(t, cfg.Debug)
}

func TestNew_MergesConfigOverDefaults(t *testing.T) {
	t.Setenv("VERCEL_REGION", "fra1")

	e := kuyo.New(kuyo.Config{
		APIKey:      "k1",
		Environment: "qa",
		Hosting:     kuyo.HostingConfig{CommitRef: "main"},
	}, kuyo.WithTransport(kuyotest.NewRecorder()), kuyo.WithSessionStore(kuyo.NewMemoryStore()))

	cfg := e.Config()
	assert.Equal(t, "k1", cfg.APIKey)
	assert.Equal(t, kuyo.EnvironmentProduction, cfg.Environment, "unknown labels resolve to production")
	assert.Equal(t, kuyo.DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, "main", cfg.Hosting.CommitRef)
	assert.Equal(t, "fra1", cfg.Hosting.Region, "unset hosting fields come from the environment")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kuyo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: file-key
environment: staging
debug: true
endpoint: http://collector:4009/api/events
hosting:
  region: sfo1
`), 0o644))
	t.Setenv("KUYO_API_KEY", "env-key")

	cfg, err := kuyo.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.APIKey, "KUYO_ variables override the file")
	assert.Equal(t, kuyo.EnvironmentStaging, cfg.Environment)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "http://collector:4009/api/events", cfg.Endpoint)
	assert.Equal(t, "sfo1", cfg.Hosting.Region)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := kuyo.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchConfig_RotatesAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kuyo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: k1\n"), 0o644))

	factory := &kuyotest.Factory{}
	e := kuyo.New(kuyo.Config{APIKey: "k1"},
		kuyo.WithTransportFactory(factory.Build),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
	)
	require.NoError(t, kuyo.WatchConfig(e, path))

	require.NoError(t, os.WriteFile(path, []byte("api_key: k2\n"), 0o644))

	require.Eventually(t, func() bool {
		return e.Config().APIKey == "k2"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "k2", factory.Last().APIKey())
}

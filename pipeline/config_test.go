package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, 10, cfg.MaxArticlesPerRun)
	assert.Equal(t, 7, cfg.LookbackDays)
	assert.Equal(t, DefaultFeeds, cfg.RSSFeeds)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: openai
max_articles_per_run: 3
lookback_days: 2
rss_feeds:
  - name: Only Feed
    url: https://example.com/feed
`), 0o644))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 3, cfg.MaxArticlesPerRun)
	assert.Equal(t, 2, cfg.LookbackDays)
	require.Len(t, cfg.RSSFeeds, 1)
	assert.Equal(t, "Only Feed", cfg.RSSFeeds[0].Name)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: openai\nanthropic_api_key: from-file\n"), 0o644))

	t.Setenv("NEWSGRAPH_PROVIDER", "google")
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "google", cfg.Provider)
	assert.Equal(t, "from-env", cfg.AnthropicAPIKey)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0o644))

	_, err := LoadConfig(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Feed is one RSS/Atom source the scraper polls.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Config holds pipeline settings, loaded from a YAML file with
// environment-variable overrides for secrets.
type Config struct {
	// Provider selects the LLM backend: "anthropic", "openai" or "google".
	Provider string `yaml:"provider"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	GoogleAPIKey    string `yaml:"google_api_key"`

	// ModelClassifier handles cheap classification calls; ModelSummarizer
	// handles summarization and social drafts. Empty uses provider
	// defaults.
	ModelClassifier string `yaml:"model_classifier"`
	ModelSummarizer string `yaml:"model_summarizer"`

	TavilyAPIKey string `yaml:"tavily_api_key"`
	SerperAPIKey string `yaml:"serper_api_key"`
	ResendAPIKey string `yaml:"resend_api_key"`

	// LinkedIn Posts API credentials; both must be set to enable
	// publishing to the feed.
	LinkedInAccessToken string `yaml:"linkedin_access_token"`
	LinkedInAuthorURN   string `yaml:"linkedin_author_urn"`

	RSSFeeds []Feed `yaml:"rss_feeds"`

	// MaxArticlesPerRun caps how many ranked articles reach the
	// summarizer.
	MaxArticlesPerRun int `yaml:"max_articles_per_run"`

	// LookbackDays filters out articles older than this.
	LookbackDays int `yaml:"lookback_days"`

	DatabasePath string `yaml:"database_path"`
	OutputDir    string `yaml:"output_dir"`

	EmailFrom string `yaml:"email_from"`
	EmailTo   string `yaml:"email_to"`

	LogLevel string `yaml:"log_level"`
}

// DefaultFeeds is the curated AI/ML feed list used when the config file
// names none.
var DefaultFeeds = []Feed{
	{Name: "TechCrunch AI", URL: "https://techcrunch.com/category/artificial-intelligence/feed/"},
	{Name: "VentureBeat AI", URL: "https://venturebeat.com/category/ai/feed/"},
	{Name: "The Verge AI", URL: "https://www.theverge.com/rss/ai-artificial-intelligence/index.xml"},
	{Name: "MIT Tech Review", URL: "https://www.technologyreview.com/feed/"},
	{Name: "Google AI Blog", URL: "https://blog.google/technology/ai/rss/"},
}

// DefaultConfig returns a Config with development defaults.
func DefaultConfig() Config {
	return Config{
		Provider:          "anthropic",
		RSSFeeds:          DefaultFeeds,
		MaxArticlesPerRun: 10,
		LookbackDays:      7,
		DatabasePath:      "./newsgraph.db",
		OutputDir:         "./output",
		EmailFrom:         "news@example.com",
		EmailTo:           "you@example.com",
		LogLevel:          "info",
	}
}

// LoadConfig reads a YAML config file and applies environment overrides.
// A missing file is not an error; defaults plus environment apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if len(cfg.RSSFeeds) == 0 {
		cfg.RSSFeeds = DefaultFeeds
	}
	if cfg.MaxArticlesPerRun <= 0 {
		cfg.MaxArticlesPerRun = 10
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	return cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv() {
	envOverride(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&c.GoogleAPIKey, "GOOGLE_API_KEY")
	envOverride(&c.TavilyAPIKey, "TAVILY_API_KEY")
	envOverride(&c.SerperAPIKey, "SERPER_API_KEY")
	envOverride(&c.ResendAPIKey, "RESEND_API_KEY")
	envOverride(&c.LinkedInAccessToken, "LINKEDIN_ACCESS_TOKEN")
	envOverride(&c.LinkedInAuthorURN, "LINKEDIN_AUTHOR_URN")
	envOverride(&c.Provider, "NEWSGRAPH_PROVIDER")
	envOverride(&c.DatabasePath, "NEWSGRAPH_DB")
	envOverride(&c.LogLevel, "NEWSGRAPH_LOG_LEVEL")
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

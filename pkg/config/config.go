package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/groundchat/pkg/adapter"
	"github.com/zen-systems/groundchat/pkg/citation"
	"github.com/zen-systems/groundchat/pkg/conversation"
	"github.com/zen-systems/groundchat/pkg/grounding"
)

// SettingsFile is the settings file name inside the config directory.
const SettingsFile = "settings.yaml"

// Config holds the application configuration. It is read once by Load and
// treated as immutable afterwards.
type Config struct {
	Grounding Grounding       `yaml:"grounding"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Google    GoogleConfig    `yaml:"google"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	LogLevel  string          `yaml:"log_level"`

	// Path is the settings file that was read, empty when none existed.
	Path      string `yaml:"-"`
	ConfigDir string `yaml:"-"`
}

// Grounding holds the settings shared by every bot.
type Grounding struct {
	PromptBehavior                string  `yaml:"prompt_behavior"`
	PromptExtractParams           string  `yaml:"prompt_extract_params"`
	CitationRegex                 string  `yaml:"citation_regex"`
	CitationThreshold             float64 `yaml:"citation_threshold"`
	CitationField                 string  `yaml:"citation_field"`
	FilterRepliesWithoutCitations bool    `yaml:"filter_replies_without_citations"`
	ErrorMessageNoCitation        string  `yaml:"error_message_no_citation"`
	ErrorMessageGeneral           string  `yaml:"error_message_general"`
	StagingPolicy                 string  `yaml:"staging_policy"`
	DatabasePath                  string  `yaml:"database_path"`
	MaxCandidates                 int     `yaml:"max_candidates"`
}

// OpenAIConfig configures the openai and openai-fc bots.
type OpenAIConfig struct {
	APIType              string  `yaml:"api_type"`
	APIKey               string  `yaml:"api_key"`
	APIBase              string  `yaml:"api_base"`
	APIVersion           string  `yaml:"api_version"`
	DeploymentID         string  `yaml:"deployment_id"`
	LLMName              string  `yaml:"llm_name"`
	LLMFCName            string  `yaml:"llm_fc_name"`
	TemperatureLLM       float64 `yaml:"temperature_llm"`
	TemperatureFunctions float64 `yaml:"temperature_functions"`
	RequestsPerMinute    int     `yaml:"requests_per_minute"`
}

// GoogleConfig configures the google bot.
type GoogleConfig struct {
	APIKey               string  `yaml:"api_key"`
	ProjectID            string  `yaml:"project_id"`
	Location             string  `yaml:"location"`
	BaseURL              string  `yaml:"base_url"`
	TextLLMName          string  `yaml:"text_llm_name"`
	ChatLLMName          string  `yaml:"chat_llm_name"`
	TemperatureLLM       float64 `yaml:"temperature_llm"`
	TemperatureFunctions float64 `yaml:"temperature_functions"`
	// StagingPolicy overrides the grounding staging policy for this bot.
	StagingPolicy     string `yaml:"staging_policy"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// AnthropicConfig configures the anthropic bot.
type AnthropicConfig struct {
	APIKey               string  `yaml:"api_key"`
	BaseURL              string  `yaml:"base_url"`
	LLMName              string  `yaml:"llm_name"`
	MaxTokens            int64   `yaml:"max_tokens"`
	TemperatureLLM       float64 `yaml:"temperature_llm"`
	TemperatureFunctions float64 `yaml:"temperature_functions"`
	RequestsPerMinute    int     `yaml:"requests_per_minute"`
}

// Default returns the configuration used when no settings file exists.
func Default() *Config {
	return &Config{
		Grounding: Grounding{
			PromptBehavior:                adapter.DefaultBehaviorPrompt,
			PromptExtractParams:           adapter.DefaultExtractPrompt,
			CitationRegex:                 citation.DefaultPattern,
			CitationThreshold:             citation.DefaultThreshold,
			CitationField:                 citation.DefaultField,
			FilterRepliesWithoutCitations: true,
			ErrorMessageNoCitation:        grounding.DefaultNoCitationMessage,
			ErrorMessageGeneral:           grounding.DefaultGeneralMessage,
			StagingPolicy:                 string(conversation.Replace),
			DatabasePath:                  "catalog.json",
		},
		OpenAI: OpenAIConfig{
			APIType:              adapter.APITypeOpenAI,
			APIVersion:           "2024-06-01",
			LLMName:              "gpt-4o-mini",
			LLMFCName:            "gpt-4o-mini",
			TemperatureLLM:       0.5,
			TemperatureFunctions: 0.5,
		},
		Google: GoogleConfig{
			Location:             "us-central1",
			TextLLMName:          "gemini-2.0-flash",
			ChatLLMName:          "gemini-2.0-flash",
			TemperatureLLM:       0.5,
			TemperatureFunctions: 0.2,
		},
		Anthropic: AnthropicConfig{
			LLMName:              "claude-sonnet-4-20250514",
			MaxTokens:            1024,
			TemperatureLLM:       0.5,
			TemperatureFunctions: 0.2,
		},
		LogLevel: "info",
	}
}

// Load reads the settings file and applies environment overrides.
// Environment variables take precedence over file configuration. An empty
// path selects the settings file in the config directory, which may be
// missing; an explicit path must exist.
func Load(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir, SettingsFile)
	}

	cfg := Default()
	cfg.ConfigDir = configDir

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.OpenAI.APIKey = getEnvOrDefault("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.APIType = getEnvOrDefault("OPENAI_API_TYPE", c.OpenAI.APIType)
	c.OpenAI.APIBase = getEnvOrDefault("OPENAI_API_BASE", c.OpenAI.APIBase)
	c.OpenAI.APIVersion = getEnvOrDefault("OPENAI_API_VERSION", c.OpenAI.APIVersion)
	c.OpenAI.DeploymentID = getEnvOrDefault("OPENAI_DEPLOYMENT_ID", c.OpenAI.DeploymentID)
	c.Google.APIKey = getEnvOrDefault("GOOGLE_API_KEY", c.Google.APIKey)
	c.Google.ProjectID = getEnvOrDefault("GOOGLE_CLOUD_PROJECT", c.Google.ProjectID)
	c.Google.Location = getEnvOrDefault("GOOGLE_CLOUD_LOCATION", c.Google.Location)
	c.Anthropic.APIKey = getEnvOrDefault("ANTHROPIC_API_KEY", c.Anthropic.APIKey)
}

// Validate checks the values that would otherwise fail at first use.
// The citation threshold is deliberately left unchecked.
func (c *Config) Validate() error {
	var errs []error
	if _, err := regexp.Compile(c.Grounding.CitationRegex); err != nil {
		errs = append(errs, fmt.Errorf("grounding.citation_regex: %w", err))
	}
	if c.Grounding.CitationField == "" {
		errs = append(errs, errors.New("grounding.citation_field is required"))
	}
	if c.Grounding.MaxCandidates < 0 {
		errs = append(errs, errors.New("grounding.max_candidates must not be negative"))
	}
	if _, err := conversation.ParseStagingPolicy(c.Grounding.StagingPolicy); err != nil {
		errs = append(errs, fmt.Errorf("grounding.staging_policy: %w", err))
	}
	if _, err := conversation.ParseStagingPolicy(c.Google.StagingPolicy); err != nil {
		errs = append(errs, fmt.Errorf("google.staging_policy: %w", err))
	}
	switch c.OpenAI.APIType {
	case "", adapter.APITypeOpenAI, adapter.APITypeAzure:
	default:
		errs = append(errs, fmt.Errorf("openai.api_type: unknown value %q", c.OpenAI.APIType))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// StagingPolicy returns the staging policy for a bot, honouring the
// per-provider override.
func (c *Config) StagingPolicy(bot string) conversation.StagingPolicy {
	name := c.Grounding.StagingPolicy
	if bot == "google" && c.Google.StagingPolicy != "" {
		name = c.Google.StagingPolicy
	}
	policy, err := conversation.ParseStagingPolicy(name)
	if err != nil {
		return conversation.Replace
	}
	return policy
}

// HasProvider returns true if the credentials for the given bot are
// configured.
func (c *Config) HasProvider(name string) bool {
	switch name {
	case "openai", "openai-fc":
		return c.OpenAI.APIKey != ""
	case "google":
		return c.Google.APIKey != "" || c.Google.ProjectID != ""
	case "anthropic":
		return c.Anthropic.APIKey != ""
	case "mock":
		return true
	default:
		return false
	}
}

// DatabasePath resolves the catalog path relative to the settings file.
func (c *Config) DatabasePath() string {
	p := c.Grounding.DatabasePath
	if p == "" || filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	if dir := os.Getenv("GROUNDCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".groundchat"), nil
}

// Package config loads meetsense configuration via viper.
// Values come from (in order of precedence) environment variables with the
// MEETSENSE_ prefix, an optional meetsense.yaml in the working directory,
// and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LLMConfig configures the chat-completion endpoint.
type LLMConfig struct {
	Provider string        `mapstructure:"provider"` // openai, anthropic
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Thresholds holds the confidence gates of the decision layer.
//
// Validation and Interpretation are deliberately separate knobs: the first
// governs when a deterministic match is double-checked, the second when an
// LLM interpretation is trusted enough to drive execution.
type Thresholds struct {
	// Validation: deterministic results below this confidence are sent
	// through LLM validation.
	Validation float64 `mapstructure:"validation"`

	// Interpretation: LLM interpretations at or above this confidence may
	// be executed; below it the outcome is always a clarification.
	Interpretation float64 `mapstructure:"interpretation"`

	// PartialAnswer: minimum interpretation confidence for including a
	// partial answer in a clarification message.
	PartialAnswer float64 `mapstructure:"partial_answer"`

	// MeetingPopulation: aggregate questions with no time range and more
	// candidate meetings than this block on a time-range clarification.
	MeetingPopulation int `mapstructure:"meeting_population"`
}

// Config is the root configuration.
type Config struct {
	LLM        LLMConfig     `mapstructure:"llm"`
	Thresholds Thresholds    `mapstructure:"thresholds"`
	EntityTTL  time.Duration `mapstructure:"entity_ttl"`
	Debug      bool          `mapstructure:"debug"`
}

// DefaultThresholds returns the stock confidence gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Validation:        0.88,
		Interpretation:    0.6,
		PartialAnswer:     0.5,
		MeetingPopulation: 100,
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "") // registered so AutomaticEnv can bind it
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("thresholds.validation", 0.88)
	v.SetDefault("thresholds.interpretation", 0.6)
	v.SetDefault("thresholds.partial_answer", 0.5)
	v.SetDefault("thresholds.meeting_population", 100)
	v.SetDefault("entity_ttl", "5m")
	v.SetDefault("debug", false)

	v.SetConfigName("meetsense")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.meetsense")

	v.SetEnvPrefix("MEETSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; everything has a default.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks threshold sanity.
func (c *Config) Validate() error {
	t := c.Thresholds
	if t.Validation <= 0 || t.Validation > 1 {
		return fmt.Errorf("thresholds.validation must be in (0,1], got %v", t.Validation)
	}
	if t.Interpretation <= 0 || t.Interpretation > 1 {
		return fmt.Errorf("thresholds.interpretation must be in (0,1], got %v", t.Interpretation)
	}
	if t.MeetingPopulation < 0 {
		return fmt.Errorf("thresholds.meeting_population must be >= 0, got %d", t.MeetingPopulation)
	}
	if c.EntityTTL <= 0 {
		return fmt.Errorf("entity_ttl must be positive, got %v", c.EntityTTL)
	}
	return nil
}

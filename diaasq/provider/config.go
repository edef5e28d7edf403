package provider

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries the settings for the language-model collaborator.
type Config struct {
	APIKey    string `env:"OPENAI_API_KEY"`
	BaseURL   string `env:"OPENAI_BASE_URL"`
	Model     string `env:"DIAASQ_MODEL" envDefault:"gpt-4o-mini"`
	MaxTokens int64  `env:"DIAASQ_MAX_TOKENS" envDefault:"1583"`

	// StructuredOutput requests a strict JSON schema response format.
	StructuredOutput bool `env:"DIAASQ_STRUCTURED_OUTPUT" envDefault:"false"`
}

// LoadConfig reads Config from the environment. The given dotenv files (default: .env)
// are loaded first when present; variables already set in the environment win.
func LoadConfig(dotenvFiles ...string) (Config, error) {
	_ = godotenv.Load(dotenvFiles...) //nolint:errcheck // .env file is optional

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("missing OPENAI_API_KEY (or pass -api-key)")
	}
	if c.Model == "" {
		return errors.New("missing model")
	}
	if c.MaxTokens < 0 {
		return errors.New("max-tokens must be >= 0")
	}
	return nil
}

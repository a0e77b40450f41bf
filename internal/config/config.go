package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL   string `env:"DATABASE_URL,required"`
	OpenRouterKey string `env:"OPENROUTER_API_KEY,required"`

	// Model
	Model       string  `env:"CHAT_MODEL" envDefault:"openai/gpt-4o-mini"`
	Temperature float64 `env:"CHAT_TEMPERATURE" envDefault:"0.2"`

	// Sharing
	ShareBaseURL string `env:"SHARE_BASE_URL" envDefault:"https://plausch.app"`

	// Behavior
	FetchPageTitles bool `env:"FETCH_PAGE_TITLES" envDefault:"true"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/subosito/gotenv"
)

type Config struct {
	ConfigPath      string        `env:"CONFIG_PATH"      envDefault:"feeds.yaml"`
	EnvFile         string        `env:"ENV_FILE"         envDefault:".env"`
	LogPath         string        `env:"LOG_PATH"`
	LogLevel        slog.Level    `env:"LOG_LEVEL"        envDefault:"INFO"`
	DBPath          string        `env:"DB_PATH"          envDefault:"db.sqlite"`
	DelayAfterFeed  time.Duration `env:"DELAY_AFTER_FEED" envDefault:"10s"`
	Proxy           string        `env:"PROXY"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT"     envDefault:"30s"`
	BrowserHeadless bool          `env:"BROWSER_HEADLESS" envDefault:"true"`
	Schedule        string        `env:"SCHEDULE"`
	RunTimeout      time.Duration `env:"RUN_TIMEOUT"      envDefault:"1h"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
}

// LoadConfig reads the process settings from the environment. Variables from
// the env file fill in what the environment does not set; a missing file is
// fine.
func LoadConfig() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

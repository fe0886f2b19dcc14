package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	API     APIConfig
	Poll    PollConfig
	Chat    ChatConfig
	Storage StorageConfig
	Log     LogConfig
}

type APIConfig struct {
	// BaseURL is the bakery resource-management API.
	BaseURL string
	// InferenceURL serves OpenAI-compatible chat completions for baked
	// models.
	InferenceURL string
	// Key is the bearer credential, read from BREAD_API_KEY only.
	Key string
}

type PollConfig struct {
	MaxAttempts int
	// Interval between status checks, as a duration string ("5s").
	Interval string
}

type ChatConfig struct {
	Model       string
	Temperature float64
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:      "https://api.bread.com.ai",
			InferenceURL: "http://bapi.bread.com.ai",
		},
		Poll: PollConfig{
			MaxAttempts: 120,
			Interval:    "5s",
		},
		Chat: ChatConfig{
			Temperature: 0.7,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file (if present), the JSON config
// file at $XDG_CONFIG_HOME/bakectl/config.json, and BAKECTL_* environment
// variables, in ascending precedence. The API key comes from BREAD_API_KEY
// (env or .env) only and is required.
func Load() (Config, error) {
	godotenv.Load()
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	cfg.API.Key = os.Getenv("BREAD_API_KEY")
	if cfg.API.Key == "" {
		return Config{}, fmt.Errorf("missing required config: API key. " +
			"Set BREAD_API_KEY in your environment or .env file")
	}

	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "bakectl-data"
		}
	}
	return filepath.Join(dir, "bakectl")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "bakectl", "config.json")
}

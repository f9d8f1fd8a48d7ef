package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Provider names
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBluesky   = "bluesky"
)

// Config holds all application configuration
type Config struct {
	Version     int               `toml:"version"`
	Source      SourceConfig      `toml:"source"`
	Scratch     ScratchConfig     `toml:"scratch"`
	Inference   InferenceConfig   `toml:"inference"`
	Post        PostConfig        `toml:"post"`
	Credentials CredentialsConfig `toml:"credentials"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	HTTP        HTTPConfig        `toml:"http"`
}

type SourceConfig struct {
	URL string `toml:"url"`
}

type ScratchConfig struct {
	Dir      string `toml:"dir"`
	FileName string `toml:"file_name"`
}

// InferenceConfig selects the description provider. An empty Endpoint uses
// the provider's public API.
type InferenceConfig struct {
	Provider  string `toml:"provider"`
	Endpoint  string `toml:"endpoint"`
	Model     string `toml:"model"`
	Detail    string `toml:"detail"`
	MaxTokens int    `toml:"max_tokens"`
}

type PostConfig struct {
	Provider     string   `toml:"provider"`
	Host         string   `toml:"host"`
	CharCap      int      `toml:"char_cap"`
	AspectWidth  int      `toml:"aspect_width"`
	AspectHeight int      `toml:"aspect_height"`
	Languages    []string `toml:"languages"`
}

// CredentialsConfig names the environment variables secrets are read from.
// Secrets themselves never go in the config file.
type CredentialsConfig struct {
	EnvFile         string `toml:"env_file"`
	InferenceKeyEnv string `toml:"inference_key_env"`
	IdentifierEnv   string `toml:"identifier_env"`
	SecretEnv       string `toml:"secret_env"`
}

type PipelineConfig struct {
	HaltOnFailure bool `toml:"halt_on_failure"`
}

type ScheduleConfig struct {
	Cron              string `toml:"cron"`
	Timezone          string `toml:"timezone"`
	JobTimeoutMinutes int    `toml:"job_timeout_minutes"`
}

type HTTPConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Source: SourceConfig{
			URL: "https://cwwp2.dot.ca.gov/data/d4/cctv/image/tvd32i80baybridgesaspanwest/tvd32i80baybridgesaspanwest.jpg",
		},
		Scratch: ScratchConfig{
			Dir:      "images",
			FileName: "snapshot.jpg",
		},
		Inference: InferenceConfig{
			Provider:  ProviderOpenAI,
			Endpoint:  "",
			Model:     "gpt-4o-mini",
			Detail:    "low",
			MaxTokens: 300,
		},
		Post: PostConfig{
			Provider:     ProviderBluesky,
			Host:         "https://bsky.social",
			CharCap:      300,
			AspectWidth:  1000,
			AspectHeight: 500,
			Languages:    []string{"en"},
		},
		Credentials: CredentialsConfig{
			EnvFile:         ".env",
			InferenceKeyEnv: "OPENAI_API_KEY",
			IdentifierEnv:   "BLUESKY_IDENTIFIER",
			SecretEnv:       "BLUESKY_PASSWORD",
		},
		Pipeline: PipelineConfig{
			HaltOnFailure: false,
		},
		Schedule: ScheduleConfig{
			Cron:              "0 * * * *",
			Timezone:          "America/Los_Angeles",
			JobTimeoutMinutes: 10,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 60,
		},
	}
}

// SnapshotPath returns where the camera image is written
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Scratch.Dir, c.Scratch.FileName)
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "camposter"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from the default location
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from path. Keys missing from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Post.CharCap < 0 {
		return fmt.Errorf("post.char_cap must not be negative, got %d", c.Post.CharCap)
	}
	if c.Post.AspectWidth <= 0 || c.Post.AspectHeight <= 0 {
		return fmt.Errorf("post.aspect_width and post.aspect_height must be positive, got %dx%d",
			c.Post.AspectWidth, c.Post.AspectHeight)
	}
	if c.Schedule.JobTimeoutMinutes <= 0 {
		return fmt.Errorf("schedule.job_timeout_minutes must be positive, got %d", c.Schedule.JobTimeoutMinutes)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be positive, got %d", c.HTTP.TimeoutSeconds)
	}
	return nil
}

// SaveTo writes config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"assistdojo/internal/grading"
	"assistdojo/internal/telemetry"
)

const EnvPrefix = "ASSISTDOJO_"

const (
	RenderAuto     = "auto"
	RenderMarkdown = "markdown"
	RenderPlain    = "plain"
)

// Config controls runtime behavior for the tutor.
type Config struct {
	DataDir           string `env:"DATA_DIR"`
	LogPath           string `env:"LOG_PATH"`
	LogFormat         string `env:"LOG_FORMAT"`
	Debug             bool   `env:"DEBUG"`
	CatalogDir        string `env:"CATALOG_DIR"`
	Seed              uint64 `env:"SEED"`
	ResponseDelayMS   int    `env:"RESPONSE_DELAY_MS"`
	ExactThreshold    int    `env:"EXACT_THRESHOLD"`
	FreeformThreshold int    `env:"FREEFORM_THRESHOLD"`
	Ephemeral         bool   `env:"EPHEMERAL"`
	Render            string `env:"RENDER"`
	LearnerID         string `env:"LEARNER_ID"`

	// Version gates catalog definitions with a min_app_version.
	Version string
}

func DefaultConfig() Config {
	return Config{
		LogFormat:         telemetry.FormatJSON,
		ExactThreshold:    grading.DefaultExactThreshold,
		FreeformThreshold: grading.DefaultFreeformThreshold,
		Render:            RenderAuto,
		Version:           "dev",
	}
}

// LoadConfig overlays ASSISTDOJO_* environment variables on base.
func LoadConfig(base Config) (Config, error) {
	cfg := base
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LogFormat {
	case "":
		c.LogFormat = telemetry.FormatJSON
	case telemetry.FormatJSON, telemetry.FormatText:
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	switch c.Render {
	case "":
		c.Render = RenderAuto
	case RenderAuto, RenderMarkdown, RenderPlain:
	default:
		return fmt.Errorf("invalid render mode %q", c.Render)
	}
	if c.ExactThreshold == 0 {
		c.ExactThreshold = grading.DefaultExactThreshold
	}
	if c.FreeformThreshold == 0 {
		c.FreeformThreshold = grading.DefaultFreeformThreshold
	}
	if c.ExactThreshold < 1 || c.ExactThreshold > 100 {
		return fmt.Errorf("exact threshold must be 1..100, got %d", c.ExactThreshold)
	}
	if c.FreeformThreshold < 1 || c.FreeformThreshold > 100 {
		return fmt.Errorf("freeform threshold must be 1..100, got %d", c.FreeformThreshold)
	}
	if c.ResponseDelayMS < 0 {
		return fmt.Errorf("response delay must be >= 0, got %d", c.ResponseDelayMS)
	}
	c.LearnerID = strings.TrimSpace(c.LearnerID)

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.New("cannot resolve user home directory")
		}
		c.DataDir = filepath.Join(home, ".local", "share", "assistdojo")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(c.DataDir, "assistdojo.log")
	}
	return nil
}

// Package config loads the launcher configuration.
//
// Values are layered with koanf: built-in defaults, then a trainlaunch.yaml
// file, then TRAINLAUNCH_* environment variables, then explicitly set
// command-line flags. Training options live at the top level next to the
// launcher's own keys, so a config file can pin hyperparameters as well as
// the runner.
package config

import (
	"time"

	"github.com/leapstack-labs/trainlaunch/internal/training"
)

// Config holds all CLI configuration options.
type Config struct {
	Runner           string        `koanf:"runner"`
	Python           string        `koanf:"python"`
	Yolo             string        `koanf:"yolo"`
	LinePrefix       string        `koanf:"line_prefix"`
	LogLevel         string        `koanf:"log_level"`
	OutputFormat     string        `koanf:"output"`
	HistoryPath      string        `koanf:"history_path"`
	NoHistory        bool          `koanf:"no_history"`
	HistoryRetention time.Duration `koanf:"history_retention"`

	// Training is decoded from the same top-level keys.
	Training training.Options `koanf:"-"`
}

// Default configuration values.
const (
	DefaultRunner           = training.RunnerPython
	DefaultYolo             = "yolo"
	DefaultLogLevel         = "warn"
	DefaultOutput           = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultHistoryPath      = ".trainlaunch/history.db"
	DefaultHistoryRetention = 30 * 24 * time.Hour
)

// ConfigFileNames are searched in the working directory, in order.
var ConfigFileNames = []string{"trainlaunch.yaml", "trainlaunch.yml"}

// EnvPrefix is the prefix of environment variables read as config keys.
const EnvPrefix = "TRAINLAUNCH_"

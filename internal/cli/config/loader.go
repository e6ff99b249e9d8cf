package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/trainlaunch/internal/training"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// skippedFlags never become config keys. TorchLocation is consumed by the
// bootstrap phase, which runs before any configuration is loaded.
var skippedFlags = map[string]bool{
	"config":        true,
	"help":          true,
	"version":       true,
	"TorchLocation": true,
}

var (
	configFileUsed string
	currentConfig  *Config
)

// ResetConfig clears package state. Used for testing.
func ResetConfig() {
	configFileUsed = ""
	currentConfig = nil
}

// defaults returns every key with its built-in value.
func defaults() map[string]any {
	m := training.Defaults()
	m["runner"] = DefaultRunner
	m["python"] = ""
	m["yolo"] = DefaultYolo
	m["line_prefix"] = ""
	m["log_level"] = DefaultLogLevel
	m["output"] = DefaultOutput
	m["history_path"] = DefaultHistoryPath
	m["no_history"] = false
	m["history_retention"] = DefaultHistoryRetention.String()
	return m
}

// findConfigFile finds the config file to use.
// Priority: explicit path > trainlaunch.yaml > trainlaunch.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// FlagKey converts a flag name to its config key.
func FlagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// user holds every value that did not come from the defaults.
	user := koanf.New(".")

	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := user.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// Transform: TRAINLAUNCH_HISTORY_PATH -> history_path
	if err := user.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := user.Load(posflag.ProviderWithFlag(flags, ".", user, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed || skippedFlags[f.Name] {
				return "", nil
			}
			return FlagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Merge(user); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	var cfg Config
	if err := unmarshal(k, &cfg); err != nil {
		return nil, err
	}
	if err := unmarshal(k, &cfg.Training); err != nil {
		return nil, err
	}

	cfg.Training.Explicit = make(map[string]bool)
	for key := range training.Defaults() {
		if user.Exists(key) {
			cfg.Training.Explicit[key] = true
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

func unmarshal(k *koanf.Koanf, out any) error {
	err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           out,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	return nil
}

// Validate checks the launcher settings. Training options are validated by
// the commands that use them.
func (c *Config) Validate() error {
	switch c.Runner {
	case training.RunnerPython, training.RunnerCLI:
	default:
		return fmt.Errorf("invalid runner %q (choose from %s, %s)", c.Runner, training.RunnerPython, training.RunnerCLI)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("history_retention must not be negative")
	}
	return nil
}

// ParseLogLevel maps a level name onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/trainlaunch/internal/bootstrap"
	"github.com/leapstack-labs/trainlaunch/internal/cli/config"
	"github.com/leapstack-labs/trainlaunch/internal/cli/output"
	"github.com/leapstack-labs/trainlaunch/internal/state"
	"github.com/leapstack-labs/trainlaunch/internal/training"
)

// RunnerFactory builds the runner named by the configuration.
type RunnerFactory func(name, python, yolo string, logger *slog.Logger) (training.Runner, error)

// Environment carries the process-level state resolved before the command
// tree runs.
type Environment struct {
	// Runtime is the result of the bootstrap phase.
	Runtime bootstrap.Runtime
	// Base is the launcher's own environment, before bootstrap.
	Base []string
	GOOS string
	// NewRunner defaults to training.NewRunner.
	NewRunner RunnerFactory
}

// environmentKey is used to store the Environment in context.
type environmentKey struct{}

// WithEnvironment returns a context carrying env.
func WithEnvironment(ctx context.Context, env *Environment) context.Context {
	return context.WithValue(ctx, environmentKey{}, env)
}

// EnvironmentFrom returns the Environment stored in ctx. Without one, the
// bootstrap is composed from the current process without registering any
// library directory.
func EnvironmentFrom(ctx context.Context) *Environment {
	if ctx != nil {
		if env, ok := ctx.Value(environmentKey{}).(*Environment); ok {
			return env
		}
	}
	base := os.Environ()
	e := bootstrap.NewEnv(base, runtime.GOOS == "windows")
	location, _ := e.Get(bootstrap.LocationEnv)
	bundle, _ := e.Get(bootstrap.BundleDirEnv)
	rt, _ := bootstrap.Apply(bootstrap.Resolve(os.Args, location, bundle, os.Getwd), runtime.GOOS, e, nil)
	return &Environment{Runtime: rt, Base: base, GOOS: runtime.GOOS}
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Env      *Environment
}

// NewCommandContext creates a CommandContext for cmd.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
		Env:      EnvironmentFrom(cmd.Context()),
	}, nil
}

// getConfig returns the current configuration, loading defaults, file and
// environment when the root command did not run.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", nil)
}

// newRunner builds the configured runner. The python runner needs an
// interpreter; it is looked up on PATH when not configured.
func (cc *CommandContext) newRunner() (training.Runner, error) {
	factory := cc.Env.NewRunner
	if factory == nil {
		factory = training.NewRunner
	}
	python := cc.Cfg.Python
	if cc.Cfg.Runner == training.RunnerPython {
		interp, err := training.FindInterpreter(python)
		if err != nil {
			return nil, err
		}
		python = interp
	}
	return factory(cc.Cfg.Runner, python, cc.Cfg.Yolo, cc.Logger)
}

// openHistory opens and migrates the launch ledger.
func (cc *CommandContext) openHistory() (*state.SQLiteStore, error) {
	path := cc.Cfg.HistoryPath
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(cc.Logger)
	if err := store.Open(path); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// AddTrainingFlags registers the training options on fs. Flag names keep
// the framework's spelling so they map 1:1 onto its keyword arguments.
func AddTrainingFlags(fs *pflag.FlagSet) {
	d := training.Defaults()

	fs.String("task", d["task"].(string), "Task type: detect, segment, classify")
	fs.String("model", "", "Path to the model weights or config file (required)")
	fs.String("data", "", "Path to the dataset descriptor YAML (required)")
	fs.String("pretrained", "", "Pretrained weights to start from")
	fs.Int("epochs", d["epochs"].(int), "Number of training epochs")
	fs.Int("batch", d["batch"].(int), "Batch size")
	fs.Int("imgsz", d["imgsz"].(int), "Input image size")
	fs.String("device", d["device"].(string), "Device to train on, e.g. 0, 0,1 or cpu")
	fs.Bool("val", false, "Validate during training")
	fs.String("project", d["project"].(string), "Project directory for results")
	fs.String("name", d["name"].(string), "Run name inside the project directory")
	fs.Bool("exist_ok", false, "Allow overwriting an existing run directory")
	fs.Int("workers", d["workers"].(int), "Number of data loader workers")
	fs.Bool("rect", false, "Rectangular training")
	fs.Bool("single_cls", false, "Treat all classes as one")
	fs.Bool("multi_scale", false, "Multi-scale training")
	fs.Bool("amp", false, "Automatic mixed precision")
	fs.String("optimizer", d["optimizer"].(string), "Optimizer name")
	fs.Int("patience", d["patience"].(int), "Epochs without improvement before early stop")
	fs.Bool("verbose", false, "Verbose framework output and debug logging")
	fs.Float64("shear", 0, "Shear augmentation")
	fs.Float64("degrees", 0, "Rotation augmentation in degrees")
	fs.Float64("bgr", 0, "BGR channel swap probability")
	fs.Float64("mixup", 0, "Mixup augmentation probability")
	fs.Bool("plots", false, "Save training plots")
	fs.String("split", "", "Dataset split to use")
}

// AddRunnerFlags registers the flags selecting how training is delegated.
func AddRunnerFlags(fs *pflag.FlagSet) {
	fs.String("runner", "", "Training runner: python (embedded driver) or cli (yolo executable)")
	fs.String("python", "", "Python interpreter (default: python3 or python on PATH)")
	fs.String("yolo", "", "Framework CLI executable for the cli runner")
	fs.String("line-prefix", "", "Prefix written before every line of training output")
}

// registerTrainingCompletions adds shell completion for enumerated flags.
func registerTrainingCompletions(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("task", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return training.Tasks, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("runner", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{training.RunnerPython, training.RunnerCLI}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.MarkFlagFilename("data", "yaml", "yml")
}

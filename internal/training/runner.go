package training

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/leapstack-labs/trainlaunch/internal/stream"
	"github.com/leapstack-labs/trainlaunch/internal/worker"
)

//go:embed scripts/driver.py
var driverScript string

// Runner names.
const (
	RunnerPython = "python"
	RunnerCLI    = "cli"
)

// Job is a single delegated training call.
type Job struct {
	RunID  string
	Task   string
	Kwargs Kwargs
	// Env is the complete environment for the child process.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
	// LinePrefix is written before every output line when non-empty.
	LinePrefix string
}

// Runner delegates a training job to the external framework.
type Runner interface {
	Name() string
	Train(ctx context.Context, job Job) error
}

// TrainingError reports a framework process that exited unsuccessfully.
type TrainingError struct {
	Runner   string
	ExitCode int
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed: %s runner exited with status %d", e.Runner, e.ExitCode)
}

// commandFunc builds the child process; replaced in tests.
type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// execRunner runs a child process with the job's environment and relays its
// output through line writers.
type execRunner struct {
	name    string
	logger  *slog.Logger
	command commandFunc
}

func (r *execRunner) run(ctx context.Context, job Job, exe string, args []string) error {
	cmd := r.command(ctx, exe, args...)
	cmd.Env = append(append([]string{}, job.Env...), worker.Environ())

	var opts []stream.Option
	if job.LinePrefix != "" {
		opts = append(opts, stream.WithPrefix(job.LinePrefix))
	}
	stdout := stream.NewLineWriter(job.Stdout, opts...)
	stderr := stream.NewLineWriter(job.Stderr, opts...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("starting training process",
		slog.String("runner", r.name),
		slog.String("run_id", job.RunID),
		slog.String("executable", exe))

	err := cmd.Run()
	_ = stdout.Flush()
	_ = stderr.Flush()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &TrainingError{Runner: r.name, ExitCode: exitErr.ExitCode()}
	}
	return fmt.Errorf("failed to run %s: %w", exe, err)
}

// PythonRunner runs the embedded driver script in a Python interpreter, which
// loads the model and calls its train method with the job's kwargs.
type PythonRunner struct {
	execRunner
	Interpreter string
}

// NewPythonRunner creates a runner for the given interpreter.
func NewPythonRunner(interpreter string, logger *slog.Logger) *PythonRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PythonRunner{
		execRunner:  execRunner{name: RunnerPython, logger: logger, command: exec.CommandContext},
		Interpreter: interpreter,
	}
}

// Name implements Runner.
func (r *PythonRunner) Name() string { return RunnerPython }

// Args returns the interpreter arguments for job.
func (r *PythonRunner) Args(job Job) ([]string, error) {
	payload, err := job.Kwargs.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode training arguments: %w", err)
	}
	return []string{"-u", "-c", driverScript, string(payload)}, nil
}

// Train implements Runner.
func (r *PythonRunner) Train(ctx context.Context, job Job) error {
	args, err := r.Args(job)
	if err != nil {
		return err
	}
	return r.run(ctx, job, r.Interpreter, args)
}

// CLIRunner invokes the framework's command-line entry point as
// "<exe> <task> train key=value ...".
type CLIRunner struct {
	execRunner
	Executable string
}

// NewCLIRunner creates a runner for the given executable.
func NewCLIRunner(executable string, logger *slog.Logger) *CLIRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CLIRunner{
		execRunner: execRunner{name: RunnerCLI, logger: logger, command: exec.CommandContext},
		Executable: executable,
	}
}

// Name implements Runner.
func (r *CLIRunner) Name() string { return RunnerCLI }

// Args returns the command-line arguments for job.
func (r *CLIRunner) Args(job Job) []string {
	args := []string{job.Task, "train"}
	for _, arg := range job.Kwargs.CLIArgs() {
		if strings.HasPrefix(arg, "task=") {
			continue
		}
		args = append(args, arg)
	}
	return args
}

// Train implements Runner.
func (r *CLIRunner) Train(ctx context.Context, job Job) error {
	return r.run(ctx, job, r.Executable, r.Args(job))
}

// NewRunner returns the runner registered under name.
func NewRunner(name, python, yolo string, logger *slog.Logger) (Runner, error) {
	switch name {
	case "", RunnerPython:
		return NewPythonRunner(python, logger), nil
	case RunnerCLI:
		return NewCLIRunner(yolo, logger), nil
	default:
		return nil, fmt.Errorf("unknown runner %q (choose from %s, %s)", name, RunnerPython, RunnerCLI)
	}
}

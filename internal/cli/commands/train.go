package commands

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/trainlaunch/internal/state"
	"github.com/leapstack-labs/trainlaunch/internal/training"
)

// NewTrainCommand creates the train command.
func NewTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Launch a training run",
		Long: `Validate the model and dataset paths, then hand the training options to the
framework. The framework's output is streamed as it is produced.

The native runtime located by --TorchLocation (or TRAINLAUNCH_TORCH_LOCATION,
the bundle directory or the working directory) is placed on the interpreter's search paths first.`,
		Example: `  # Train a detector for 100 epochs
  trainlaunch train --model yolov8n.pt --data coco8.yaml --epochs 100

  # Use the framework CLI instead of the embedded driver
  trainlaunch train --runner cli --model yolov8n-seg.pt --data seg.yaml --task segment`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return RunTrain(cmd)
		},
	}

	AddTrainingFlags(cmd.Flags())
	AddRunnerFlags(cmd.Flags())
	registerTrainingCompletions(cmd)

	return cmd
}

// RunTrain validates the options, checks the inputs and delegates training.
// It also backs the root command.
func RunTrain(cmd *cobra.Command) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	opts := cc.Cfg.Training

	if err := opts.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := training.CheckInputs(out, cc.Logger, &opts); err != nil {
		return err
	}

	runner, err := cc.newRunner()
	if err != nil {
		return err
	}

	kwargs := opts.Kwargs()
	launch := newLaunch(&opts, runner.Name(), kwargs)

	var history *state.SQLiteStore
	if !cc.Cfg.NoHistory {
		history, err = cc.openHistory()
		if err != nil {
			cc.Logger.Warn("launch history unavailable", slog.String("path", cc.Cfg.HistoryPath), slog.String("error", err.Error()))
			history = nil
		}
	}
	if history != nil {
		defer func() { _ = history.Close() }()
		if err := history.CreateLaunch(ctx, launch); err != nil {
			cc.Logger.Warn("failed to record launch", slog.String("error", err.Error()))
			history = nil
		}
	}

	job := training.Job{
		RunID:      launch.ID,
		Task:       opts.Task,
		Kwargs:     kwargs,
		Env:        cc.Env.Runtime.Env.Environ(),
		Stdout:     out,
		Stderr:     cmd.ErrOrStderr(),
		LinePrefix: cc.Cfg.LinePrefix,
	}

	cc.Logger.Info("starting training",
		slog.String("run_id", launch.ID),
		slog.String("runner", runner.Name()),
		slog.String("task", opts.Task),
		slog.String("runtime", cc.Env.Runtime.Base.Dir))

	start := time.Now()
	trainErr := runner.Train(ctx, job)
	elapsed := time.Since(start)

	if history != nil {
		status, code, msg := launchOutcome(trainErr)
		if err := history.CompleteLaunch(ctx, launch.ID, status, code, msg); err != nil {
			cc.Logger.Warn("failed to record launch outcome", slog.String("run_id", launch.ID), slog.String("error", err.Error()))
		}
	}

	if trainErr != nil {
		return trainErr
	}

	cc.Logger.Info("training finished",
		slog.String("run_id", launch.ID),
		slog.Duration("elapsed", elapsed.Round(time.Millisecond)))
	return nil
}

func newLaunch(opts *training.Options, runner string, kwargs training.Kwargs) *state.Launch {
	encoded, err := json.Marshal(kwargs)
	if err != nil {
		encoded = []byte("{}")
	}
	return &state.Launch{
		Task:    opts.Task,
		Model:   opts.Model,
		Data:    opts.Data,
		Project: opts.Project,
		Name:    opts.Name,
		Device:  opts.Device,
		Epochs:  opts.Epochs,
		Runner:  runner,
		Kwargs:  string(encoded),
	}
}

// launchOutcome maps a runner result onto the ledger columns. Failures that
// never produced an exit status are recorded as -1.
func launchOutcome(err error) (state.LaunchStatus, int, string) {
	if err == nil {
		return state.LaunchStatusCompleted, 0, ""
	}
	var te *training.TrainingError
	if errors.As(err, &te) {
		return state.LaunchStatusFailed, te.ExitCode, err.Error()
	}
	return state.LaunchStatusFailed, -1, err.Error()
}

package commands

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/trainlaunch/internal/cli/output"
	"github.com/leapstack-labs/trainlaunch/internal/training"
)

// CheckOutput is the JSON output for the check command.
type CheckOutput struct {
	Model       string          `json:"model"`
	ModelSize   int64           `json:"model_size"`
	Data        string          `json:"data"`
	DataSize    int64           `json:"data_size"`
	DatasetKeys []string        `json:"dataset_keys"`
	Kwargs      training.Kwargs `json:"kwargs"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate training inputs without training",
		Long: `Run the same validation as train: required options, model and dataset
paths, and the dataset descriptor. Prints the keyword arguments that would be
passed to the framework.`,
		Example: `  trainlaunch check --model yolov8n.pt --data coco8.yaml --epochs 10
  trainlaunch check --model yolov8n.pt --data coco8.yaml -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd)
		},
	}

	AddTrainingFlags(cmd.Flags())
	registerTrainingCompletions(cmd)

	return cmd
}

func runCheck(cmd *cobra.Command) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cc.Renderer
	opts := cc.Cfg.Training

	if err := opts.Validate(); err != nil {
		return err
	}

	// JSON output must stay parseable, so progress goes to stderr.
	var progress io.Writer = r.Writer()
	if r.EffectiveMode() == output.ModeJSON {
		progress = r.ErrWriter()
	}

	report, err := training.CheckInputs(progress, cc.Logger, &opts)
	if err != nil {
		return err
	}
	kwargs := opts.Kwargs()

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(CheckOutput{
			Model:       opts.Model,
			ModelSize:   report.ModelSize,
			Data:        opts.Data,
			DataSize:    report.DataSize,
			DatasetKeys: report.DatasetKeys,
			Kwargs:      kwargs,
		})
	}

	r.Println("")
	r.Header(2, "Training arguments")
	rows := make([][]string, 0, len(kwargs))
	for _, kw := range kwargs {
		rows = append(rows, []string{kw.Key, training.FormatValue(kw.Value)})
	}
	r.Table([]string{"Key", "Value"}, rows)
	r.Success("Inputs are valid")
	return nil
}

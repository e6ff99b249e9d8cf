package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/trainlaunch/internal/cli/output"
	"github.com/leapstack-labs/trainlaunch/internal/state"
	"github.com/leapstack-labs/trainlaunch/internal/training"
)

// LaunchOutput is the JSON form of a recorded launch.
type LaunchOutput struct {
	ID          string          `json:"id"`
	Task        string          `json:"task"`
	Model       string          `json:"model"`
	Data        string          `json:"data"`
	Project     string          `json:"project"`
	Name        string          `json:"name"`
	Device      string          `json:"device"`
	Epochs      int             `json:"epochs"`
	Runner      string          `json:"runner"`
	Status      string          `json:"status"`
	ExitCode    *int            `json:"exit_code,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Kwargs      json.RawMessage `json:"kwargs,omitempty"`
}

func toLaunchOutput(l *state.Launch) LaunchOutput {
	out := LaunchOutput{
		ID:          l.ID,
		Task:        l.Task,
		Model:       l.Model,
		Data:        l.Data,
		Project:     l.Project,
		Name:        l.Name,
		Device:      l.Device,
		Epochs:      l.Epochs,
		Runner:      l.Runner,
		Status:      string(l.Status),
		ExitCode:    l.ExitCode,
		Error:       l.Error,
		StartedAt:   l.StartedAt,
		CompletedAt: l.CompletedAt,
	}
	if json.Valid([]byte(l.Kwargs)) {
		out.Kwargs = json.RawMessage(l.Kwargs)
	}
	return out
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded training launches",
		Long: `Every launch is recorded in a local SQLite database (--history-path) with its
options, runner and outcome. Use the subcommands to list, inspect and prune
those records.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent launches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cc.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			launches, err := store.ListLaunches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderLaunchList(cc.Renderer, launches)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of launches to show (0 for all)")
	return cmd
}

func renderLaunchList(r *output.Renderer, launches []*state.Launch) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]LaunchOutput, 0, len(launches))
		for _, l := range launches {
			out = append(out, toLaunchOutput(l))
		}
		return r.JSON(out)
	}

	if len(launches) == 0 {
		r.Println("No launches recorded")
		return nil
	}

	titleCaser := cases.Title(language.English)
	rows := make([][]string, 0, len(launches))
	for _, l := range launches {
		rows = append(rows, []string{
			shortID(l.ID),
			l.StartedAt.Local().Format("2006-01-02 15:04:05"),
			l.Task,
			l.Name,
			titleCaser.String(string(l.Status)),
			formatDuration(l),
		})
	}
	r.Table([]string{"ID", "Started", "Task", "Name", "Status", "Duration"}, rows)
	return nil
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one launch",
		Long:  `Show a recorded launch. The ID may be abbreviated to any unique prefix.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cc.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			launch, err := store.GetLaunch(cmd.Context(), args[0])
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("no launch matches %q", args[0])
			}
			if err != nil {
				return err
			}
			return renderLaunch(cc.Renderer, launch)
		},
	}
}

func renderLaunch(r *output.Renderer, l *state.Launch) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(toLaunchOutput(l))
	}

	r.Header(2, "Launch "+r.ID(l.ID))
	r.KeyValue("Status", cases.Title(language.English).String(string(l.Status)))
	if l.ExitCode != nil {
		r.KeyValue("Exit code", *l.ExitCode)
	}
	if l.Error != "" {
		r.KeyValue("Error", l.Error)
	}
	r.KeyValue("Runner", l.Runner)
	r.KeyValue("Started", l.StartedAt.Local().Format(time.RFC3339))
	if l.CompletedAt != nil {
		r.KeyValue("Duration", formatDuration(l))
	}
	r.Println("")

	r.Header(3, "Arguments")
	rows, err := kwargRows(l.Kwargs)
	if err != nil {
		r.Println(l.Kwargs)
		return nil //nolint:nilerr // fall back to the raw JSON
	}
	r.Table([]string{"Key", "Value"}, rows)
	return nil
}

// kwargRows decodes the stored kwargs object keeping its key order.
func kwargRows(raw string) ([][]string, error) {
	var kw training.Kwargs
	if err := json.Unmarshal([]byte(raw), &kw); err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(kw))
	for _, k := range kw {
		rows = append(rows, []string{k.Key, training.FormatValue(k.Value)})
	}
	return rows, nil
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished launches older than the retention period",
		Long: `Delete completed and failed launches that started before the retention
period (history_retention, default 30 days). Running launches are kept.`,
		Example: `  trainlaunch history prune
  trainlaunch history prune --older-than 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			retention := cc.Cfg.HistoryRetention
			if cmd.Flags().Changed("older-than") {
				retention = olderThan
			}
			if retention < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}

			store, err := cc.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.PruneBefore(cmd.Context(), time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if cc.Renderer.EffectiveMode() == output.ModeJSON {
				return cc.Renderer.JSON(map[string]int64{"removed": n})
			}
			cc.Renderer.Success(fmt.Sprintf("Removed %d launch(es)", n))
			cc.Renderer.Printf("History: %s\n", cc.Renderer.Muted(store.Path()))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Retention period (default: history_retention)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(l *state.Launch) string {
	if l.CompletedAt == nil {
		return "-"
	}
	return l.Duration().Round(time.Second).String()
}

package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/trainlaunch/internal/bootstrap"
	"github.com/leapstack-labs/trainlaunch/internal/cli/output"
)

// EnvOutput is the JSON output for the env command.
type EnvOutput struct {
	Base       string            `json:"base"`
	Source     string            `json:"source"`
	PythonDir  string            `json:"python_dir"`
	LibDir     string            `json:"lib_dir"`
	PythonOK   bool              `json:"python_dir_exists"`
	LibOK      bool              `json:"lib_dir_exists"`
	Registered bool              `json:"registered"`
	Changes    map[string]string `json:"changes"`
}

// NewEnvCommand creates the env command.
func NewEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the resolved runtime location and environment",
		Long: `Show where the native runtime was found and which environment variables are
changed for the training interpreter.

The base directory is taken from --TorchLocation, then TRAINLAUNCH_TORCH_LOCATION,
then the bundle extraction directory, then the working directory.`,
		Example: `  trainlaunch env
  trainlaunch env --TorchLocation /opt/libtorch -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEnv(cmd)
		},
	}
}

func runEnv(cmd *cobra.Command) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cc.Renderer
	env := cc.Env
	rt := env.Runtime

	base := bootstrap.NewEnv(env.Base, env.GOOS == "windows")
	changes := make(map[string]string)
	keys := rt.Env.Diff(base)
	for _, k := range keys {
		v, _ := rt.Env.Get(k)
		changes[k] = v
	}

	out := EnvOutput{
		Base:       rt.Base.Dir,
		Source:     string(rt.Base.Source),
		PythonDir:  rt.Layout.PythonDir,
		LibDir:     rt.Layout.LibDir,
		PythonOK:   dirExists(rt.Layout.PythonDir),
		LibOK:      dirExists(rt.Layout.LibDir),
		Registered: rt.Registered,
		Changes:    changes,
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(2, "Runtime")
	r.KeyValue("Base", out.Base+" "+r.Muted("("+out.Source+")"))
	r.KeyValue("Python packages", out.PythonDir+" "+existsNote(r, out.PythonOK))
	r.KeyValue("Native libraries", out.LibDir+" "+existsNote(r, out.LibOK))
	if env.GOOS == "windows" {
		r.KeyValue("Registered with loader", out.Registered)
	}
	r.Println("")

	r.Header(2, "Environment changes")
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, changes[k]})
	}
	r.Table([]string{"Variable", "Value"}, rows)
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func existsNote(r *output.Renderer, ok bool) string {
	if ok {
		return r.Muted("(found)")
	}
	return r.Muted("(missing)")
}

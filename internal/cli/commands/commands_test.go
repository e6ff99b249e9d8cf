package commands

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/trainlaunch/internal/cli/config"
	"github.com/leapstack-labs/trainlaunch/internal/cli/testutil"
	"github.com/leapstack-labs/trainlaunch/internal/state"
	"github.com/leapstack-labs/trainlaunch/internal/training"
)

func TestTrainingFlagsMatchDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	AddTrainingFlags(fs)

	for key, want := range training.Defaults() {
		t.Run(key, func(t *testing.T) {
			f := fs.Lookup(key)
			require.NotNil(t, f, "flag for %s", key)
			assert.Equal(t, key, config.FlagKey(f.Name))
			assert.Equal(t, training.FormatValue(want), f.DefValue)
		})
	}
}

func TestLaunchOutcome(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus state.LaunchStatus
		wantCode   int
	}{
		{"success", nil, state.LaunchStatusCompleted, 0},
		{"exit status", &training.TrainingError{Runner: "python", ExitCode: 3}, state.LaunchStatusFailed, 3},
		{"start failure", errors.New("failed to run python: not found"), state.LaunchStatusFailed, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, msg := launchOutcome(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
			if tt.err == nil {
				assert.Empty(t, msg)
			} else {
				assert.Equal(t, tt.err.Error(), msg)
			}
		})
	}
}

func TestNewLaunch(t *testing.T) {
	opts := &training.Options{Task: "segment", Model: "m.pt", Data: "d.yaml", Epochs: 5, Name: "run", Project: "p", Device: "cpu"}
	l := newLaunch(opts, training.RunnerPython, opts.Kwargs())

	assert.Equal(t, "segment", l.Task)
	assert.Equal(t, 5, l.Epochs)
	assert.Equal(t, training.RunnerPython, l.Runner)
	assert.True(t, json.Valid([]byte(l.Kwargs)))
	assert.Contains(t, l.Kwargs, `"task":"segment"`)
}

func TestKwargRowsKeepOrder(t *testing.T) {
	rows, err := kwargRows(`{"task":"detect","epochs":50,"pretrained":null,"rect":false,"mixup":0.5}`)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"task", "detect"},
		{"epochs", "50"},
		{"pretrained", "None"},
		{"rect", "false"},
		{"mixup", "0.5"},
	}, rows)

	_, err = kwargRows("not json")
	assert.Error(t, err)
}

func TestSortChecks(t *testing.T) {
	checks := []DoctorCheck{{Name: "Framework"}, {Name: "Interpreter"}, {Name: "Runtime libraries"}, {Name: "Runtime packages"}}
	sortChecks(checks)
	assert.Equal(t, "Runtime packages", checks[0].Name)
	assert.Equal(t, "Runtime libraries", checks[1].Name)
	assert.Equal(t, "Interpreter", checks[2].Name)
	assert.Equal(t, "Framework", checks[3].Name)
}

func TestAddImportChecks(t *testing.T) {
	rep := &report{}
	addImportChecks(rep, &training.RuntimeImports{Torch: "2.3.0", CUDAAvailable: false, UltralyticsError: "No module named 'ultralytics'"})

	require.Len(t, rep.out.Checks, 3)
	assert.Equal(t, DoctorCheck{Name: "Torch", Status: StatusOK, Detail: "2.3.0"}, rep.out.Checks[0])
	assert.Equal(t, StatusWarn, rep.out.Checks[1].Status)
	assert.Equal(t, StatusFail, rep.out.Checks[2].Status)
}

func TestRenderDoctorHost(t *testing.T) {
	tests := []struct {
		name  string
		host  HostInfo
		wants []string
		skip  string
	}{
		{
			name:  "memory in binary units",
			host:  HostInfo{OS: "linux", Arch: "amd64", LogicalCPUs: 8, MemoryTotal: 16 << 30, MemoryFree: 1536 << 20},
			wants: []string{"- **Memory**: 1.5 GiB available of 16 GiB", "- **CPU**: 8 logical"},
		},
		{
			name:  "unknown memory omitted",
			host:  HostInfo{OS: "darwin", Arch: "arm64", CPUModel: "Apple M2", LogicalCPUs: 8},
			wants: []string{"- **CPU**: Apple M2 (8 logical)"},
			skip:  "Memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testutil.NewTestRendererMarkdown()
			renderDoctor(tr.Renderer, &DoctorOutput{Host: tt.host, Checks: []DoctorCheck{{Name: "Interpreter", Status: StatusOK}}})
			for _, want := range tt.wants {
				assert.Contains(t, tr.Output(), want)
			}
			if tt.skip != "" {
				assert.NotContains(t, tr.Output(), tt.skip)
			}
			assert.Contains(t, tr.Output(), "Ready to train")
		})
	}
}

func TestRenderLaunchList(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	done := started.Add(90 * time.Second)
	code := 0
	launches := []*state.Launch{{
		ID: "0123456789abcdef", Task: "detect", Name: "ADSTraining",
		Status: state.LaunchStatusCompleted, ExitCode: &code,
		StartedAt: started, CompletedAt: &done, Kwargs: `{"task":"detect"}`,
	}}

	tr := testutil.NewTestRendererMarkdown()
	require.NoError(t, renderLaunchList(tr.Renderer, launches))
	testutil.AssertNoANSI(t, tr.Output())
	assert.Contains(t, tr.Output(), "| 01234567 |")
	assert.Contains(t, tr.Output(), "Completed")
	assert.Contains(t, tr.Output(), "1m30s")

	tr = testutil.NewTestRendererJSON()
	require.NoError(t, renderLaunchList(tr.Renderer, launches))
	var out []LaunchOutput
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &out))
	require.Len(t, out, 1)
	assert.JSONEq(t, `{"task":"detect"}`, string(out[0].Kwargs))

	tr = testutil.NewTestRendererMarkdown()
	require.NoError(t, renderLaunchList(tr.Renderer, nil))
	assert.Equal(t, "No launches recorded\n", tr.Output())
}

func TestEnvironmentFromFallback(t *testing.T) {
	env := EnvironmentFrom(context.Background())
	require.NotNil(t, env)
	require.NotNil(t, env.Runtime.Env)
	assert.NotEmpty(t, env.Runtime.Layout.PythonDir)

	want := &Environment{GOOS: "plan9"}
	assert.Same(t, want, EnvironmentFrom(WithEnvironment(context.Background(), want)))
}

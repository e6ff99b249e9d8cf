package bootstrap

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	dirs []string
	err  error
}

func (f *fakeRegistrar) Register(dir string) error {
	if f.err != nil {
		return f.err
	}
	f.dirs = append(f.dirs, dir)
	return nil
}

func fixedWd(dir string) func() (string, error) {
	return func() (string, error) { return dir, nil }
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		location   string
		bundle     string
		wantDir    string
		wantSource Source
	}{
		{
			name:       "flag with separate value",
			args:       []string{"trainlaunch", "--model", "m.pt", "--TorchLocation", "/opt/torch"},
			bundle:     "/tmp/bundle",
			wantDir:    "/opt/torch",
			wantSource: SourceFlag,
		},
		{
			name:       "flag with equals",
			args:       []string{"trainlaunch", "--TorchLocation=/opt/torch"},
			wantDir:    "/opt/torch",
			wantSource: SourceFlag,
		},
		{
			name:       "flag without value falls back to bundle",
			args:       []string{"trainlaunch", "--TorchLocation"},
			bundle:     "/tmp/bundle",
			wantDir:    "/tmp/bundle",
			wantSource: SourceBundle,
		},
		{
			name:       "flag beats env",
			args:       []string{"trainlaunch", "--TorchLocation", "/opt/torch"},
			location:   "/env/torch",
			wantDir:    "/opt/torch",
			wantSource: SourceFlag,
		},
		{
			name:       "env beats bundle",
			args:       []string{"trainlaunch"},
			location:   "/env/torch",
			bundle:     "/tmp/bundle",
			wantDir:    "/env/torch",
			wantSource: SourceEnv,
		},
		{
			name:       "bundle directory",
			args:       []string{"trainlaunch"},
			bundle:     "/tmp/bundle",
			wantDir:    "/tmp/bundle",
			wantSource: SourceBundle,
		},
		{
			name:       "working directory",
			args:       []string{"trainlaunch", "--epochs", "3"},
			wantDir:    "/work",
			wantSource: SourceCwd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := Resolve(tt.args, tt.location, tt.bundle, fixedWd("/work"))
			assert.Equal(t, tt.wantDir, base.Dir)
			assert.Equal(t, tt.wantSource, base.Source)
		})
	}
}

func TestResolve_GetwdFailure(t *testing.T) {
	base := Resolve(nil, "", "", func() (string, error) { return "", errors.New("gone") })
	assert.Equal(t, ".", base.Dir)
	assert.Equal(t, SourceCwd, base.Source)
}

func TestApply_Unix(t *testing.T) {
	base := Base{Dir: "/opt/torch", Source: SourceFlag}

	t.Run("preserves prior values", func(t *testing.T) {
		env := NewEnv([]string{"LD_LIBRARY_PATH=/usr/local/cuda/lib64", "PYTHONPATH=/site", "HOME=/root"}, false)
		reg := &fakeRegistrar{}

		rt, err := Apply(base, "linux", env, reg)
		require.NoError(t, err)

		libDir := filepath.Join("/opt/torch", "lib")
		got, _ := env.Get("LD_LIBRARY_PATH")
		assert.Equal(t, libDir+":/usr/local/cuda/lib64", got)
		py, _ := env.Get("PYTHONPATH")
		assert.Equal(t, filepath.Join("/opt/torch", "python")+":/site", py)
		assert.Empty(t, reg.dirs, "no loader registration outside windows")
		assert.False(t, rt.Registered)
		assert.Equal(t, libDir, rt.Layout.LibDir)
	})

	t.Run("unset variable keeps trailing separator", func(t *testing.T) {
		env := NewEnv(nil, false)
		_, err := Apply(base, "darwin", env, nil)
		require.NoError(t, err)

		got, ok := env.Get("LD_LIBRARY_PATH")
		require.True(t, ok)
		assert.Equal(t, filepath.Join("/opt/torch", "lib")+":", got)
	})
}

func TestApply_Windows(t *testing.T) {
	base := Base{Dir: `C:\torch`, Source: SourceBundle}
	env := NewEnv([]string{`Path=C:\Windows`}, true)
	reg := &fakeRegistrar{}

	rt, err := Apply(base, "windows", env, reg)
	require.NoError(t, err)

	binDir := filepath.Join(`C:\torch`, "bin")
	assert.Equal(t, []string{binDir}, reg.dirs)
	assert.True(t, rt.Registered)

	path, _ := env.Get("PATH")
	assert.Equal(t, binDir+`;C:\Windows`, path)
	_, hasLD := env.Get("LD_LIBRARY_PATH")
	assert.False(t, hasLD)
}

func TestApply_RegistrationError(t *testing.T) {
	boom := errors.New("access denied")
	_, err := Apply(Base{Dir: "x"}, "windows", NewEnv(nil, true), &fakeRegistrar{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestEnv_Diff(t *testing.T) {
	orig := NewEnv([]string{"A=1", "B=2"}, false)
	env := NewEnv(orig.Environ(), false)
	env.Set("B", "3")
	env.Set("C", "4")

	assert.Equal(t, []string{"B", "C"}, env.Diff(orig))
	assert.Equal(t, []string{"A=1", "B=2"}, orig.Environ(), "original untouched")
}

func TestInit_RunsOnce(t *testing.T) {
	first, err := Init([]string{"x", "--TorchLocation", "/first"}, nil, "linux")
	require.NoError(t, err)
	second, err := Init([]string{"x", "--TorchLocation", "/second"}, nil, "linux")
	require.NoError(t, err)

	assert.Equal(t, "/first", first.Base.Dir)
	assert.Equal(t, first.Base, second.Base)
}

func TestInitialize_ReadsLocationEnv(t *testing.T) {
	environ := []string{LocationEnv + "=/env/torch", BundleDirEnv + "=/tmp/bundle"}

	rt, err := initialize([]string{"x"}, environ, "linux", fixedWd("/work"), nil)
	require.NoError(t, err)
	assert.Equal(t, Base{Dir: "/env/torch", Source: SourceEnv}, rt.Base)

	lib, _ := rt.Env.Get(LibraryPathVar)
	assert.Equal(t, filepath.Join("/env/torch", "lib")+":", lib)

	rt, err = initialize([]string{"x"}, environ[1:], "linux", fixedWd("/work"), nil)
	require.NoError(t, err)
	assert.Equal(t, SourceBundle, rt.Base.Source)
}

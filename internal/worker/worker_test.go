package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSpawnedWorker(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}

	tests := []struct {
		name   string
		args   []string
		getenv func(string) string
		want   bool
	}{
		{"plain invocation", []string{"trainlaunch", "--model", "m.pt"}, env(nil), false},
		{"explicit flag", []string{"trainlaunch", Flag}, env(nil), true},
		{"env marker", []string{"trainlaunch"}, env(map[string]string{EnvVar: "1"}), true},
		{"env marker other value", []string{"trainlaunch"}, env(map[string]string{EnvVar: "0"}), false},
		{"flag as substring only", []string{"trainlaunch", "--name", "x--spawned-worker"}, env(nil), false},
		{"nil getenv", []string{"trainlaunch"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSpawnedWorker(tt.args, tt.getenv))
		})
	}
}

func TestEnviron(t *testing.T) {
	assert.Equal(t, "TRAINLAUNCH_SPAWNED_WORKER=1", Environ())
}

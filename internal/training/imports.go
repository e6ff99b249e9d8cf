package training

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

//go:embed scripts/imports.py
var importsScript string

// DefaultInterpreters are tried in order when no interpreter is configured.
var DefaultInterpreters = []string{"python3", "python"}

// FindInterpreter returns the configured interpreter, or the first default
// found on PATH.
func FindInterpreter(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	for _, name := range DefaultInterpreters {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no python interpreter found (tried %s); set --python", strings.Join(DefaultInterpreters, ", "))
}

// RuntimeImports describes the interpreter's view of the ML runtime.
type RuntimeImports struct {
	Python           string `json:"python"`
	Torch            string `json:"torch,omitempty"`
	TorchError       string `json:"torch_error,omitempty"`
	CUDAAvailable    bool   `json:"cuda_available"`
	CUDAVersion      string `json:"cuda_version,omitempty"`
	Ultralytics      string `json:"ultralytics,omitempty"`
	UltralyticsError string `json:"ultralytics_error,omitempty"`
}

// CheckImports imports the runtime in the interpreter with env and reports
// what it found.
func CheckImports(ctx context.Context, interpreter string, env []string) (*RuntimeImports, error) {
	cmd := exec.CommandContext(ctx, interpreter, "-c", importsScript)
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("runtime import check failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var report RuntimeImports
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &report); err != nil {
		return nil, fmt.Errorf("failed to decode runtime import check output: %w", err)
	}
	return &report, nil
}

package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{"auto tty", ModeAuto, true, ModeText},
		{"auto pipe", ModeAuto, false, ModeMarkdown},
		{"empty pipe", "", false, ModeMarkdown},
		{"explicit json", ModeJSON, true, ModeJSON},
		{"explicit text on pipe", ModeText, false, ModeText},
		{"unknown falls back", Mode("yaml"), true, ModeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.isTTY, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestRendererMarkdown(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRendererWithTTY(out, errOut, false, ModeMarkdown)

	r.Header(2, "Inputs")
	r.KeyValue("model", "yolov8n.pt")
	r.Table([]string{"key", "value"}, [][]string{{"epochs", "50"}})
	r.Warning("history disabled")
	r.Error("Model file not found: m.pt\nFull path: /work/m.pt")
	r.Printf("History: %s\n", "h.db")

	s := out.String()
	assert.Contains(t, s, "## Inputs")
	assert.Contains(t, s, "- **model**: yolov8n.pt")
	assert.Contains(t, s, "| epochs | 50")
	assert.NotContains(t, s, "\x1b[")
	assert.Contains(t, s, "History: h.db\n")
	assert.Equal(t, "Warning: history disabled\nError: Model file not found: m.pt\nFull path: /work/m.pt\n", errOut.String())
}

func TestRendererText(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRendererWithTTY(out, &bytes.Buffer{}, true, ModeText)

	r.Table([]string{"key", "value"}, [][]string{{"batch", "4"}})
	r.Success("done")

	s := out.String()
	assert.Contains(t, s, "┌")
	assert.Contains(t, s, "batch")
	assert.Contains(t, s, "done")
}

func TestRendererJSON(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRendererWithTTY(out, &bytes.Buffer{}, false, ModeJSON)

	require.NoError(t, r.JSON(map[string]int{"epochs": 50}))
	assert.JSONEq(t, `{"epochs": 50}`, out.String())
}

func TestNewRendererDetectsNonTerminal(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

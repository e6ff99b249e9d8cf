package training

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/trainlaunch/internal/testutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCheckInputs(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "yolov8n.pt", "weights")
	data := writeFile(t, dir, "data.yaml", "path: ../datasets/coco8\ntrain: images/train\nval: images/val\nnames:\n  0: person\n")

	var out bytes.Buffer
	logger, logs := testutil.NewCaptureLogger(t)
	report, err := CheckInputs(&out, logger, &Options{Model: model, Data: data})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "dataset descriptor parsed")

	assert.Equal(t, int64(7), report.ModelSize)
	assert.Equal(t, []string{"path", "train", "val", "names"}, report.DatasetKeys)
	assert.Contains(t, out.String(), "Checking model file: "+model)
	assert.Contains(t, out.String(), "File size: 7 bytes")
	assert.Contains(t, out.String(), "YAML file is valid, contains: [path, train, val, names]")
}

func TestCheckInputs_MissingModel(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "data.yaml", "train: a\n")

	var out bytes.Buffer
	_, err := CheckInputs(&out, testutil.NewTestLogger(t), &Options{Model: "missing.pt", Data: data})
	require.Error(t, err)

	var missing *MissingPathError
	require.ErrorAs(t, err, &missing)
	abs, _ := filepath.Abs("missing.pt")
	assert.Equal(t, "Model", missing.Kind)
	assert.Equal(t, abs, missing.Abs)
	assert.Contains(t, err.Error(), "missing.pt")
	assert.Contains(t, err.Error(), abs)
	assert.NotContains(t, out.String(), "Checking data file", "stops at the first missing path")
}

func TestCheckInputs_MissingData(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "m.pt", "w")
	data := filepath.Join(dir, "nope.yaml")

	_, err := CheckInputs(&bytes.Buffer{}, testutil.NewTestLogger(t), &Options{Model: model, Data: data})

	var missing *MissingPathError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Data", missing.Kind)
	assert.Contains(t, err.Error(), "Data file not found: "+data)
	assert.Contains(t, err.Error(), "Full path: "+data)
}

func TestReadDescriptor(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		content   string
		wantKeys  []string
		errSubstr string
	}{
		{name: "mapping", content: "nc: 2\nnames: [a, b]\n", wantKeys: []string{"nc", "names"}},
		{name: "unparsable", content: "train: [unclosed\n", errSubstr: "could not read YAML file"},
		{name: "empty", content: "", errSubstr: "document is empty"},
		{name: "null document", content: "~\n", errSubstr: "top level is null"},
		{name: "sequence", content: "- a\n- b\n", errSubstr: "top level is a sequence"},
		{name: "multi document", content: "nc: 2\n---\nnames: [a]\n", errSubstr: "expected a single document"},
		{name: "duplicate keys", content: "nc: 2\nnames: [a]\nnc: 3\n", wantKeys: []string{"nc", "names"}},
		{
			name:     "merge key",
			content:  "base: &base\n  train: a\n  val: b\nsplit:\n  <<: *base\n  test: c\n",
			wantKeys: []string{"base", "split"},
		},
		{
			name:     "top level merge",
			content:  "defaults: &d {train: a, nc: 1}\n<<: *d\nnc: 2\nnames: [x]\n",
			wantKeys: []string{"train", "nc", "defaults", "names"},
		},
		{name: "quoted merge key is a plain key", content: "'<<': x\nnc: 1\n", wantKeys: []string{"<<", "nc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".yaml", tt.content)
			keys, err := ReadDescriptor(path)
			if tt.errSubstr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantKeys, keys)
				return
			}
			var descErr *DescriptorError
			require.ErrorAs(t, err, &descErr)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

package training

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOptions() *Options {
	return &Options{
		Task:      TaskDetect,
		Model:     "yolov8n.pt",
		Data:      "coco8.yaml",
		Epochs:    50,
		Batch:     4,
		ImgSz:     640,
		Device:    "0",
		Project:   "train",
		Name:      "ADSTraining",
		Workers:   8,
		Optimizer: "auto",
		Patience:  50,
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(o *Options)
		errSubstr string
	}{
		{name: "valid detect", mutate: func(*Options) {}},
		{name: "valid segment", mutate: func(o *Options) { o.Task = TaskSegment }},
		{name: "valid classify", mutate: func(o *Options) { o.Task = TaskClassify }},
		{name: "unknown task", mutate: func(o *Options) { o.Task = "pose" }, errSubstr: `invalid task "pose"`},
		{name: "missing model", mutate: func(o *Options) { o.Model = "" }, errSubstr: "--model"},
		{name: "missing both", mutate: func(o *Options) { o.Model, o.Data = "", "" }, errSubstr: "--model, --data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			tt.mutate(opts)
			err := opts.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestOptions_Kwargs(t *testing.T) {
	kw := defaultOptions().Kwargs()

	assert.Equal(t, []string{
		"task", "model", "data", "epochs", "batch", "imgsz", "device", "pretrained",
		"project", "name", "workers", "rect", "single_cls", "multi_scale", "mixup",
		"optimizer", "patience", "verbose", "val", "split", "plots",
	}, kw.Keys())

	pretrained, ok := kw.Get("pretrained")
	require.True(t, ok)
	assert.Nil(t, pretrained, "unset pretrained is passed as None")

	epochs, _ := kw.Get("epochs")
	assert.Equal(t, 50, epochs)
}

func TestOptions_KwargsExplicitExtras(t *testing.T) {
	opts := defaultOptions()
	opts.AMP = true
	opts.Degrees = 10
	opts.Explicit = map[string]bool{"amp": true, "degrees": true}

	kw := opts.Kwargs()
	keys := kw.Keys()
	assert.Equal(t, []string{"amp", "degrees"}, keys[len(keys)-2:])

	_, hasShear := kw.Get("shear")
	assert.False(t, hasShear, "unset extras stay with framework defaults")
}

func TestKwargs_MarshalJSON(t *testing.T) {
	opts := defaultOptions()
	opts.Split = "val"
	opts.Mixup = 0.25

	payload, err := opts.Kwargs().MarshalJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "detect", decoded["task"])
	assert.Equal(t, "val", decoded["split"])
	assert.Equal(t, 0.25, decoded["mixup"])
	assert.Nil(t, decoded["pretrained"])

	assert.Regexp(t, `^\{"task":"detect","model":"yolov8n.pt","data":"coco8.yaml",`, string(payload))
}

func TestKwargs_UnmarshalJSON(t *testing.T) {
	opts := defaultOptions()
	opts.Split = "val"
	opts.Mixup = 0.25
	opts.Degrees = 10
	opts.Explicit = map[string]bool{"degrees": true}

	want := opts.Kwargs()
	payload, err := json.Marshal(want)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"degrees":10.0`)

	var got Kwargs
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, want, got)

	tests := []struct {
		name      string
		input     string
		want      Kwargs
		errSubstr string
	}{
		{name: "keeps order", input: `{"z":1,"a":"x","m":null}`, want: Kwargs{{"z", 1}, {"a", "x"}, {"m", nil}}},
		{name: "exponent is float", input: `{"lr":1e-3}`, want: Kwargs{{"lr", 0.001}}},
		{name: "null", input: `null`, want: nil},
		{name: "not an object", input: `[1]`, errSubstr: "expected an object"},
		{name: "nested value", input: `{"a":{"b":1}}`, errSubstr: "value must be a scalar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kw Kwargs
			err := json.Unmarshal([]byte(tt.input), &kw)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kw)
		})
	}
}

func TestKwargs_CLIArgs(t *testing.T) {
	kw := Kwargs{
		{"task", "segment"},
		{"pretrained", nil},
		{"rect", true},
		{"mixup", 0.5},
		{"epochs", 3},
	}
	assert.Equal(t, []string{"task=segment", "rect=true", "mixup=0.5", "epochs=3"}, kw.CLIArgs())
}

func TestDefaults_CoverEveryOption(t *testing.T) {
	defaults := Defaults()
	for _, key := range defaultOptions().Kwargs().Keys() {
		_, ok := defaults[key]
		assert.True(t, ok, "missing default for %s", key)
	}
	for _, key := range optionalKwargs {
		_, ok := defaults[key]
		assert.True(t, ok, "missing default for %s", key)
	}
}

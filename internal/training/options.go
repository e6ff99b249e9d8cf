// Package training assembles the training configuration, validates its inputs
// and hands it to the external training framework.
package training

import (
	"fmt"
	"slices"
	"strings"
)

// Supported task types.
const (
	TaskDetect   = "detect"
	TaskSegment  = "segment"
	TaskClassify = "classify"
)

// Tasks lists the accepted values of --task.
var Tasks = []string{TaskDetect, TaskSegment, TaskClassify}

// Options is the flat training configuration parsed from flags, environment
// and config file. It is passed by value to the framework and never mutated
// after validation.
type Options struct {
	Task       string  `koanf:"task"`
	Model      string  `koanf:"model"`
	Data       string  `koanf:"data"`
	Pretrained string  `koanf:"pretrained"`
	Epochs     int     `koanf:"epochs"`
	Batch      int     `koanf:"batch"`
	ImgSz      int     `koanf:"imgsz"`
	Device     string  `koanf:"device"`
	Val        bool    `koanf:"val"`
	Project    string  `koanf:"project"`
	Name       string  `koanf:"name"`
	ExistOK    bool    `koanf:"exist_ok"`
	Workers    int     `koanf:"workers"`
	Rect       bool    `koanf:"rect"`
	SingleCls  bool    `koanf:"single_cls"`
	MultiScale bool    `koanf:"multi_scale"`
	AMP        bool    `koanf:"amp"`
	Optimizer  string  `koanf:"optimizer"`
	Patience   int     `koanf:"patience"`
	Verbose    bool    `koanf:"verbose"`
	Shear      float64 `koanf:"shear"`
	Degrees    float64 `koanf:"degrees"`
	BGR        float64 `koanf:"bgr"`
	Mixup      float64 `koanf:"mixup"`
	Plots      bool    `koanf:"plots"`
	Split      string  `koanf:"split"`

	// Explicit holds the option keys that were set by the user rather than
	// defaulted.
	Explicit map[string]bool `koanf:"-"`
}

// Defaults returns the option defaults as a flat key map.
func Defaults() map[string]any {
	return map[string]any{
		"task":        TaskDetect,
		"model":       "",
		"data":        "",
		"pretrained":  "",
		"epochs":      50,
		"batch":       4,
		"imgsz":       640,
		"device":      "0",
		"val":         false,
		"project":     "train",
		"name":        "ADSTraining",
		"exist_ok":    false,
		"workers":     8,
		"rect":        false,
		"single_cls":  false,
		"multi_scale": false,
		"amp":         false,
		"optimizer":   "auto",
		"patience":    50,
		"verbose":     false,
		"shear":       0.0,
		"degrees":     0.0,
		"bgr":         0.0,
		"mixup":       0.0,
		"plots":       false,
		"split":       "",
	}
}

// Validate checks the task choice and the presence of the required paths.
// Path existence is checked separately by CheckInputs.
func (o *Options) Validate() error {
	if !slices.Contains(Tasks, o.Task) {
		return fmt.Errorf("invalid task %q (choose from %s)", o.Task, strings.Join(Tasks, ", "))
	}
	var missing []string
	if o.Model == "" {
		missing = append(missing, "--model")
	}
	if o.Data == "" {
		missing = append(missing, "--data")
	}
	if len(missing) > 0 {
		return fmt.Errorf("the following arguments are required: %s", strings.Join(missing, ", "))
	}
	return nil
}

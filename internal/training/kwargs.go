package training

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kwarg is one keyword argument of the framework's train call. A nil Value
// is passed as None.
type Kwarg struct {
	Key   string
	Value any
}

// Kwargs is an ordered keyword argument set.
type Kwargs []Kwarg

// optionalKwargs are forwarded only when set explicitly, so the framework's
// own defaults apply otherwise.
var optionalKwargs = []string{"exist_ok", "amp", "shear", "degrees", "bgr"}

// Kwargs maps the options 1:1 onto the framework's train keywords.
func (o *Options) Kwargs() Kwargs {
	kw := Kwargs{
		{"task", o.Task},
		{"model", o.Model},
		{"data", o.Data},
		{"epochs", o.Epochs},
		{"batch", o.Batch},
		{"imgsz", o.ImgSz},
		{"device", o.Device},
		{"pretrained", nullable(o.Pretrained)},
		{"project", o.Project},
		{"name", o.Name},
		{"workers", o.Workers},
		{"rect", o.Rect},
		{"single_cls", o.SingleCls},
		{"multi_scale", o.MultiScale},
		{"mixup", o.Mixup},
		{"optimizer", o.Optimizer},
		{"patience", o.Patience},
		{"verbose", o.Verbose},
		{"val", o.Val},
		{"split", nullable(o.Split)},
		{"plots", o.Plots},
	}

	extra := map[string]any{
		"exist_ok": o.ExistOK,
		"amp":      o.AMP,
		"shear":    o.Shear,
		"degrees":  o.Degrees,
		"bgr":      o.BGR,
	}
	for _, key := range optionalKwargs {
		if o.Explicit[key] {
			kw = append(kw, Kwarg{key, extra[key]})
		}
	}
	return kw
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Get returns the value for key.
func (kw Kwargs) Get(key string) (any, bool) {
	for _, k := range kw {
		if k.Key == key {
			return k.Value, true
		}
	}
	return nil, false
}

// Keys returns the keyword names in order.
func (kw Kwargs) Keys() []string {
	keys := make([]string, len(kw))
	for i, k := range kw {
		keys[i] = k.Key
	}
	return keys
}

// MarshalJSON encodes the set as a JSON object preserving order.
func (kw Kwargs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range kw {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(k.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k.Key, err)
		}
		if _, isFloat := k.Value.(float64); isFloat && !bytes.ContainsAny(val, ".eE") {
			val = append(val, ".0"...)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, keeping key order. Numbers with
// a fraction or exponent become float64, the rest int.
func (kw *Kwargs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*kw = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("kwargs: expected an object, got %v", tok)
	}

	out := Kwargs{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("kwargs: unexpected key %v", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		val, err := kwargValue(tok)
		if err != nil {
			return fmt.Errorf("kwargs: %s: %w", key, err)
		}
		out = append(out, Kwarg{key, val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("kwargs: trailing data after object")
	}
	*kw = out
	return nil
}

func kwargValue(tok json.Token) (any, error) {
	switch v := tok.(type) {
	case nil, string, bool:
		return v, nil
	case json.Number:
		if !strings.ContainsAny(v.String(), ".eE") {
			if n, err := strconv.Atoi(v.String()); err == nil {
				return n, nil
			}
		}
		return v.Float64()
	default:
		return nil, fmt.Errorf("value must be a scalar, got %v", v)
	}
}

// CLIArgs renders the set as key=value arguments, skipping None values.
func (kw Kwargs) CLIArgs() []string {
	args := make([]string, 0, len(kw))
	for _, k := range kw {
		if k.Value == nil {
			continue
		}
		args = append(args, k.Key+"="+FormatValue(k.Value))
	}
	return args
}

// FormatValue renders a scalar kwarg value for display or the CLI.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

package training

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MissingPathError reports a required input path that does not exist.
type MissingPathError struct {
	Kind string // "Model" or "Data"
	Path string
	Abs  string
}

func (e *MissingPathError) Error() string {
	return fmt.Sprintf("%s file not found: %s\nFull path: %s", e.Kind, e.Path, e.Abs)
}

// DescriptorError reports a dataset descriptor that could not be read.
type DescriptorError struct {
	Path string
	Err  error
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("could not read YAML file %s: %v", e.Path, e.Err)
}

func (e *DescriptorError) Unwrap() error { return e.Err }

// ErrEmptyDescriptor is returned for a descriptor with no document.
var ErrEmptyDescriptor = errors.New("document is empty")

// ErrMultipleDocuments is returned for a descriptor with more than one document.
var ErrMultipleDocuments = errors.New("expected a single document in the stream")

// InputReport summarizes the checked inputs.
type InputReport struct {
	ModelSize   int64
	DataSize    int64
	DatasetKeys []string
}

// CheckInputs verifies that the model artifact and dataset descriptor exist
// and that the descriptor parses. Progress lines are written to out.
func CheckInputs(out io.Writer, logger *slog.Logger, opts *Options) (*InputReport, error) {
	report := &InputReport{}

	size, err := checkPath(out, "Model", "model", opts.Model)
	if err != nil {
		return nil, err
	}
	report.ModelSize = size

	size, err = checkPath(out, "Data", "data", opts.Data)
	if err != nil {
		return nil, err
	}
	report.DataSize = size

	keys, err := ReadDescriptor(opts.Data)
	if err != nil {
		return nil, err
	}
	report.DatasetKeys = keys
	_, _ = fmt.Fprintf(out, "YAML file is valid, contains: [%s]\n", strings.Join(keys, ", "))
	logger.Debug("dataset descriptor parsed", slog.String("path", opts.Data), slog.Any("keys", keys))

	return report, nil
}

func checkPath(out io.Writer, kind, label, path string) (int64, error) {
	_, _ = fmt.Fprintf(out, "Checking %s file: %s\n", label, path)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			abs = path
		}
		return 0, &MissingPathError{Kind: kind, Path: path, Abs: abs}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s file %s: %w", label, path, err)
	}

	_, _ = fmt.Fprintf(out, "%s file exists: %s\n", kind, path)
	_, _ = fmt.Fprintf(out, "File size: %d bytes\n", info.Size())
	return info.Size(), nil
}

// ReadDescriptor parses the dataset descriptor and returns its top-level keys
// in document order, without duplicates and with merge keys expanded. The file
// must hold exactly one mapping document; no schema is enforced.
func ReadDescriptor(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DescriptorError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DescriptorError{Path: path, Err: ErrEmptyDescriptor}
		}
		return nil, &DescriptorError{Path: path, Err: err}
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = ErrMultipleDocuments
		}
		return nil, &DescriptorError{Path: path, Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, &DescriptorError{Path: path, Err: ErrEmptyDescriptor}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &DescriptorError{Path: path, Err: fmt.Errorf("top level is %s, expected a mapping", nodeKind(root))}
	}

	keys := []string{}
	seen := make(map[string]bool)
	collectKeys(root, seen, &keys)
	return keys, nil
}

// mergeTag marks an unquoted "<<" key; its mappings contribute their keys first.
const mergeTag = "!!merge"

func collectKeys(m *yaml.Node, seen map[string]bool, keys *[]string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Tag == mergeTag {
			for _, src := range mergeSources(m.Content[i+1]) {
				collectKeys(src, seen, keys)
			}
		}
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i]
		if k.Tag == mergeTag || seen[k.Value] {
			continue
		}
		seen[k.Value] = true
		*keys = append(*keys, k.Value)
	}
}

// mergeSources resolves the value of a merge key to the mappings it names.
func mergeSources(v *yaml.Node) []*yaml.Node {
	if v.Kind == yaml.AliasNode && v.Alias != nil {
		v = v.Alias
	}
	switch v.Kind {
	case yaml.MappingNode:
		return []*yaml.Node{v}
	case yaml.SequenceNode:
		var out []*yaml.Node
		for _, item := range v.Content {
			out = append(out, mergeSources(item)...)
		}
		return out
	}
	return nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "null"
		}
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "unknown"
	}
}

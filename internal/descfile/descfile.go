// Package descfile reads flat graph descriptors from disk.
//
// Three encodings are understood, chosen by file extension:
//
//	.json        the wire form: {"payloads": {...}, "edges": {...}}
//	.yaml .yml   the same shape in YAML; step data may be any mapping
//	.hcl         one `step "<id>"` block per step, successors in `next`
package descfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"

	"github.com/meikuraledutech/workflow"
)

// ErrUnsupportedFormat is returned for file extensions Load does not know.
var ErrUnsupportedFormat = errors.New("descfile: unsupported format")

// Load reads the descriptor at path. The descriptor is decoded only;
// callers validate it through workflow.Materialize.
func Load(path string) (*workflow.Descriptor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml", ".hcl":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("descfile: read %s: %w", path, err)
	}
	switch ext {
	case ".json":
		return DecodeJSON(src)
	case ".hcl":
		return DecodeHCL(path, src)
	default:
		return DecodeYAML(src)
	}
}

// DecodeJSON decodes the wire form.
func DecodeJSON(src []byte) (*workflow.Descriptor, error) {
	d := workflow.NewDescriptor()
	if err := json.Unmarshal(src, d); err != nil {
		return nil, fmt.Errorf("descfile: decode json: %w", err)
	}
	return fill(d), nil
}

type yamlStep struct {
	ID   string         `yaml:"id"`
	Name string         `yaml:"name"`
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data"`
}

type yamlDescriptor struct {
	Payloads map[string]yamlStep `yaml:"payloads"`
	Edges    map[string][]string `yaml:"edges"`
}

// DecodeYAML decodes the wire form written as YAML. Step data is re-encoded as JSON.
func DecodeYAML(src []byte) (*workflow.Descriptor, error) {
	var raw yamlDescriptor
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return nil, fmt.Errorf("descfile: decode yaml: %w", err)
	}

	d := workflow.NewDescriptor()
	for key, s := range raw.Payloads {
		st := workflow.Step{ID: s.ID, Name: s.Name, Type: s.Type}
		if s.Data != nil {
			b, err := json.Marshal(s.Data)
			if err != nil {
				return nil, fmt.Errorf("descfile: step %s data: %w", key, err)
			}
			st.Data = b
		}
		d.Payloads[key] = st
	}
	for key, next := range raw.Edges {
		if next == nil {
			next = []string{}
		}
		d.Edges[key] = next
	}
	return d, nil
}

type hclStep struct {
	ID   string    `hcl:"id,label"`
	Name string    `hcl:"name,optional"`
	Type string    `hcl:"type,optional"`
	Next []string  `hcl:"next,optional"`
	Data cty.Value `hcl:"data,optional"`
}

type hclFile struct {
	Steps []hclStep `hcl:"step,block"`
}

// DecodeHCL decodes step blocks. A step without `next` is a sink.
// filename is only used in diagnostics.
func DecodeHCL(filename string, src []byte) (*workflow.Descriptor, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("descfile: parse hcl %s: %s", filename, diags.Error())
	}

	var f hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return nil, fmt.Errorf("descfile: decode hcl %s: %s", filename, diags.Error())
	}

	d := workflow.NewDescriptor()
	for _, s := range f.Steps {
		if _, dup := d.Payloads[s.ID]; dup {
			return nil, fmt.Errorf("descfile: %s: duplicate step %q", filename, s.ID)
		}
		st := workflow.Step{ID: s.ID, Name: s.Name, Type: s.Type}
		if !s.Data.IsNull() {
			b, err := ctyjson.Marshal(s.Data, s.Data.Type())
			if err != nil {
				return nil, fmt.Errorf("descfile: step %s data: %w", s.ID, err)
			}
			st.Data = b
		}
		d.Payloads[s.ID] = st
		next := s.Next
		if next == nil {
			next = []string{}
		}
		d.Edges[s.ID] = next
	}
	return d, nil
}

func fill(d *workflow.Descriptor) *workflow.Descriptor {
	if d.Payloads == nil {
		d.Payloads = map[string]workflow.Step{}
	}
	if d.Edges == nil {
		d.Edges = map[string][]string{}
	}
	return d
}

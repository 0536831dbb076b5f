package deletespec

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/cascade/internal/specvalidator"
)

const DocumentSchemaV1 = "cascade.specs.v1"

// Document is the on-disk form of a set of delete specifications:
//
//	schema: cascade.specs.v1
//	specs:
//	  - name: ImageDelete
//	    root: Image
//	    entries:
//	      - path: Pixels
//	        spec: PixelsDelete
//	      - path: Annotation
//	      - path: .
type Document struct {
	Schema string    `json:"schema" yaml:"schema"`
	Specs  []SpecDef `json:"specs" yaml:"specs"`
}

type SpecDef struct {
	Name        string     `json:"name" yaml:"name"`
	Root        string     `json:"root" yaml:"root"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Entries     []EntryDoc `json:"entries" yaml:"entries"`
}

type EntryDoc struct {
	Path string `json:"path" yaml:"path"`
	Spec string `json:"spec,omitempty" yaml:"spec,omitempty"`
}

func (d Document) Validate() error {
	issues := &specvalidator.ValidationError{Document: "specs"}
	if strings.TrimSpace(d.Schema) != DocumentSchemaV1 {
		issues.Add(fmt.Sprintf("schema must be %q", DocumentSchemaV1))
	}
	if len(d.Specs) == 0 {
		issues.Add("specs must be non-empty")
	}
	for i, spec := range d.Specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			issues.Add(fmt.Sprintf("specs[%d] name is required", i))
			continue
		}
		if strings.TrimSpace(spec.Root) == "" {
			issues.Add(fmt.Sprintf("spec %s root is required", name))
		}
		if len(spec.Entries) == 0 {
			issues.Add(fmt.Sprintf("spec %s entries must be non-empty", name))
		}
		for j, entry := range spec.Entries {
			if strings.TrimSpace(entry.Path) == "" {
				issues.Add(fmt.Sprintf("spec %s entries[%d] path is required (use \".\" for the root)", name, j))
			}
		}
	}
	return issues.OrNil()
}

// Build defines every specification of the document in a new registry and
// links it.
func (d Document) Build(md Metadata, logger *slog.Logger) (*Registry, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	reg := NewRegistry(md, logger)
	for _, spec := range d.Specs {
		defs := make([]EntryDef, 0, len(spec.Entries))
		for _, entry := range spec.Entries {
			if strings.TrimSpace(entry.Spec) != "" {
				defs = append(defs, Nested(entry.Path, entry.Spec))
				continue
			}
			defs = append(defs, Leaf(entry.Path))
		}
		if _, err := reg.Define(spec.Name, spec.Root, defs...); err != nil {
			return nil, err
		}
	}
	if err := reg.Link(); err != nil {
		return nil, err
	}
	return reg, nil
}

func ParseDocument(input []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(input, &doc); err != nil {
		return Document{}, fmt.Errorf("decode specs: %w", err)
	}
	return doc, nil
}

// LoadRegistry reads, validates and links a specification document.
func LoadRegistry(path string, md Metadata, logger *slog.Logger) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read specs: %w", err)
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	return doc.Build(md, logger)
}

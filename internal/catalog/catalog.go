// Package catalog resolves entity types to tables and answers which
// relationship connects two types. It is loaded once from a YAML document and
// is read-only afterwards.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/cascade/internal/specvalidator"
)

const SchemaV1 = "cascade.catalog.v1"

const defaultIDColumn = "id"

type Document struct {
	Schema string    `json:"schema" yaml:"schema"`
	Types  []TypeDef `json:"types" yaml:"types"`
}

type TypeDef struct {
	Name       string      `json:"name" yaml:"name"`
	Table      string      `json:"table" yaml:"table"`
	IDColumn   string      `json:"id_column,omitempty" yaml:"id_column,omitempty"`
	References []Reference `json:"references,omitempty" yaml:"references,omitempty"`
}

// Reference declares a foreign key held by the enclosing type's table.
// Field names the many-to-one relationship (child to parent); Inverse names
// the one-to-many relationship walked from the parent back to the child.
type Reference struct {
	Field   string `json:"field" yaml:"field"`
	Type    string `json:"type" yaml:"type"`
	Column  string `json:"column" yaml:"column"`
	Inverse string `json:"inverse,omitempty" yaml:"inverse,omitempty"`
}

type Table struct {
	Type     string
	Name     string
	IDColumn string
}

// Relationship is one traversable direction between two types. Rows of To
// join rows of From where To.ToColumn = From.FromColumn.
type Relationship struct {
	Name       string
	From       Table
	To         Table
	FromColumn string
	ToColumn   string
}

// On renders the join condition between the two aliases.
func (r Relationship) On(fromAlias, toAlias string) string {
	return toAlias + "." + r.ToColumn + " = " + fromAlias + "." + r.FromColumn
}

func (r Relationship) String() string {
	return r.From.Type + "." + r.Name + "->" + r.To.Type
}

type Catalog struct {
	tables map[string]Table
	rels   map[string]map[string]Relationship
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(input []byte) (*Catalog, error) {
	var doc Document
	if err := yaml.Unmarshal(input, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc)
}

func New(doc Document) (*Catalog, error) {
	issues := &specvalidator.ValidationError{Document: "catalog"}
	if strings.TrimSpace(doc.Schema) != SchemaV1 {
		issues.Add(fmt.Sprintf("schema must be %q", SchemaV1))
	}
	if len(doc.Types) == 0 {
		issues.Add("types must be non-empty")
		return nil, issues.OrNil()
	}

	c := &Catalog{
		tables: make(map[string]Table, len(doc.Types)),
		rels:   make(map[string]map[string]Relationship, len(doc.Types)),
	}
	for i, def := range doc.Types {
		name := strings.TrimSpace(def.Name)
		if !specvalidator.ValidIdentifier(name) {
			issues.Add(fmt.Sprintf("types[%d] name %q is not a valid identifier", i, def.Name))
			continue
		}
		if _, dup := c.tables[name]; dup {
			issues.Add(fmt.Sprintf("duplicate type %q", name))
			continue
		}
		table := strings.TrimSpace(def.Table)
		if !specvalidator.ValidTableName(table) {
			issues.Add(fmt.Sprintf("type %s table %q is not a valid table name", name, def.Table))
			continue
		}
		idColumn := strings.TrimSpace(def.IDColumn)
		if idColumn == "" {
			idColumn = defaultIDColumn
		}
		if !specvalidator.ValidIdentifier(idColumn) {
			issues.Add(fmt.Sprintf("type %s id_column %q is not a valid identifier", name, def.IDColumn))
			continue
		}
		c.tables[name] = Table{Type: name, Name: table, IDColumn: idColumn}
	}

	for _, def := range doc.Types {
		child, ok := c.tables[strings.TrimSpace(def.Name)]
		if !ok {
			continue
		}
		for j, ref := range def.References {
			parent, ok := c.tables[strings.TrimSpace(ref.Type)]
			if !ok {
				issues.Add(fmt.Sprintf("type %s references[%d] unknown type %q", child.Type, j, ref.Type))
				continue
			}
			column := strings.TrimSpace(ref.Column)
			if !specvalidator.ValidIdentifier(column) {
				issues.Add(fmt.Sprintf("type %s references[%d] column %q is not a valid identifier", child.Type, j, ref.Column))
				continue
			}
			field := strings.TrimSpace(ref.Field)
			if field == "" {
				field = lowerFirst(parent.Type)
			}
			inverse := strings.TrimSpace(ref.Inverse)
			if inverse == "" {
				inverse = lowerFirst(child.Type)
			}
			c.add(issues, Relationship{
				Name:       field,
				From:       child,
				To:         parent,
				FromColumn: column,
				ToColumn:   parent.IDColumn,
			})
			c.add(issues, Relationship{
				Name:       inverse,
				From:       parent,
				To:         child,
				FromColumn: parent.IDColumn,
				ToColumn:   column,
			})
		}
	}

	if err := issues.OrNil(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) add(issues *specvalidator.ValidationError, rel Relationship) {
	byTo, ok := c.rels[rel.From.Type]
	if !ok {
		byTo = map[string]Relationship{}
		c.rels[rel.From.Type] = byTo
	}
	if prev, dup := byTo[rel.To.Type]; dup {
		issues.Add(fmt.Sprintf("ambiguous relationship %s->%s: %s and %s", rel.From.Type, rel.To.Type, prev.Name, rel.Name))
		return
	}
	byTo[rel.To.Type] = rel
}

// Table returns the table backing typeName.
func (c *Catalog) Table(typeName string) (Table, bool) {
	if c == nil {
		return Table{}, false
	}
	t, ok := c.tables[typeName]
	return t, ok
}

// Relationship returns the relationship walked from one type to another.
func (c *Catalog) Relationship(from, to string) (Relationship, bool) {
	if c == nil {
		return Relationship{}, false
	}
	rel, ok := c.rels[from][to]
	return rel, ok
}

// Types lists the declared type names in sorted order.
func (c *Catalog) Types() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.tables))
	for name := range c.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

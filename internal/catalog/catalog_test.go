package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animus-labs/cascade/internal/specvalidator"
)

const imageCatalog = `
schema: cascade.catalog.v1
types:
  - name: Image
    table: image
  - name: Pixels
    table: pixels
    references:
      - field: image
        type: Image
        column: image_id
        inverse: pixels
  - name: Channel
    table: channel
    id_column: channel_id
    references:
      - type: Pixels
        column: pixels_id
  - name: Annotation
    table: annotation
    references:
      - field: image
        type: Image
        column: image_id
        inverse: annotations
`

func TestParseResolvesBothDirections(t *testing.T) {
	c, err := Parse([]byte(imageCatalog))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}

	down, ok := c.Relationship("Image", "Pixels")
	if !ok {
		t.Fatalf("Relationship(Image, Pixels) missing")
	}
	if down.Name != "pixels" {
		t.Fatalf("Name=%q, want pixels", down.Name)
	}
	if got := down.On("ROOT0", "ROOT1"); got != "ROOT1.image_id = ROOT0.id" {
		t.Fatalf("On()=%q", got)
	}

	up, ok := c.Relationship("Channel", "Pixels")
	if !ok {
		t.Fatalf("Relationship(Channel, Pixels) missing")
	}
	if up.Name != "pixels" {
		t.Fatalf("default field Name=%q, want pixels", up.Name)
	}
	if got := up.On("ROOT2", "ROOT1"); got != "ROOT1.id = ROOT2.pixels_id" {
		t.Fatalf("On()=%q", got)
	}

	inv, ok := c.Relationship("Pixels", "Channel")
	if !ok {
		t.Fatalf("Relationship(Pixels, Channel) missing")
	}
	if inv.Name != "channel" {
		t.Fatalf("default inverse Name=%q, want channel", inv.Name)
	}
	if got := inv.On("ROOT1", "ROOT2"); got != "ROOT2.pixels_id = ROOT1.id" {
		t.Fatalf("On()=%q", got)
	}

	if _, ok := c.Relationship("Channel", "Annotation"); ok {
		t.Fatalf("Relationship(Channel, Annotation) should be absent")
	}

	table, ok := c.Table("Channel")
	if !ok || table.Name != "channel" || table.IDColumn != "channel_id" {
		t.Fatalf("Table(Channel)=%+v", table)
	}
	if got := strings.Join(c.Types(), ","); got != "Annotation,Channel,Image,Pixels" {
		t.Fatalf("Types()=%s", got)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{
			name: "wrong schema",
			doc:  Document{Schema: "v0", Types: []TypeDef{{Name: "Image", Table: "image"}}},
			want: "schema must be",
		},
		{
			name: "empty",
			doc:  Document{Schema: SchemaV1},
			want: "types must be non-empty",
		},
		{
			name: "duplicate type",
			doc: Document{Schema: SchemaV1, Types: []TypeDef{
				{Name: "Image", Table: "image"},
				{Name: "Image", Table: "image2"},
			}},
			want: "duplicate type",
		},
		{
			name: "unsafe table",
			doc:  Document{Schema: SchemaV1, Types: []TypeDef{{Name: "Image", Table: "image; drop"}}},
			want: "not a valid table name",
		},
		{
			name: "unknown reference",
			doc: Document{Schema: SchemaV1, Types: []TypeDef{
				{Name: "Pixels", Table: "pixels", References: []Reference{{Type: "Image", Column: "image_id"}}},
			}},
			want: "unknown type",
		},
		{
			name: "ambiguous pair",
			doc: Document{Schema: SchemaV1, Types: []TypeDef{
				{Name: "Image", Table: "image"},
				{Name: "Pixels", Table: "pixels", References: []Reference{
					{Field: "image", Type: "Image", Column: "image_id", Inverse: "pixels"},
					{Field: "thumb", Type: "Image", Column: "thumb_image_id", Inverse: "thumbs"},
				}},
			}},
			want: "ambiguous relationship Pixels->Image",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.doc)
			if err == nil {
				t.Fatalf("New() expected error")
			}
			var verr *specvalidator.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("New() err=%T, want *ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("New() err=%q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(imageCatalog), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if _, ok := c.Table("Image"); !ok {
		t.Fatalf("Table(Image) missing")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load() expected error for missing file")
	}
}

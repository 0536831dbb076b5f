package deletespec

import (
	"context"
	"testing"

	"github.com/animus-labs/cascade/internal/catalog"
)

const testCatalog = `
schema: cascade.catalog.v1
types:
  - name: Project
    table: project
  - name: Dataset
    table: dataset
  - name: ProjectDatasetLink
    table: project_dataset_link
    references:
      - field: parent
        type: Project
        column: parent_id
        inverse: datasetLinks
      - field: child
        type: Dataset
        column: child_id
        inverse: projectLinks
  - name: Image
    table: image
    references:
      - field: dataset
        type: Dataset
        column: dataset_id
        inverse: images
  - name: Pixels
    table: pixels
    references:
      - field: image
        type: Image
        column: image_id
        inverse: pixels
  - name: Channel
    table: channel
    references:
      - field: pixels
        type: Pixels
        column: pixels_id
        inverse: channels
  - name: Annotation
    table: annotation
    references:
      - field: image
        type: Image
        column: image_id
        inverse: annotations
`

func testMetadata(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("catalog.Parse() err=%v", err)
	}
	return c
}

// recordingMetadata logs every relationship lookup and can hide pairs.
type recordingMetadata struct {
	Metadata
	calls  []string
	hidden map[string]bool
}

func (m *recordingMetadata) Relationship(from, to string) (catalog.Relationship, bool) {
	key := from + "->" + to
	m.calls = append(m.calls, key)
	if m.hidden[key] {
		return catalog.Relationship{}, false
	}
	return m.Metadata.Relationship(from, to)
}

type statement struct {
	query string
	args  []any
}

type fakeSession struct {
	execs    []statement
	selects  []statement
	count    int64
	execErr  error
	selectFn func(query string) []int64
}

func (s *fakeSession) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	s.execs = append(s.execs, statement{query: query, args: args})
	if s.execErr != nil {
		return 0, s.execErr
	}
	return s.count, nil
}

func (s *fakeSession) QueryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	s.selects = append(s.selects, statement{query: query, args: args})
	if s.selectFn == nil {
		return nil, nil
	}
	return s.selectFn(query), nil
}

func mustNew(t *testing.T, name, root string, md Metadata, defs ...EntryDef) *Specification {
	t.Helper()
	s, err := New(name, root, defs, WithMetadata(md))
	if err != nil {
		t.Fatalf("New(%s) err=%v", name, err)
	}
	return s
}

// imageTree builds ImageDelete -> [Pixels => PixelsDelete[Channel, .], Annotation, .].
func imageTree(t *testing.T, md Metadata) (*Specification, *Specification) {
	t.Helper()
	pixels := mustNew(t, "PixelsDelete", "Pixels", md, Leaf("Channel"), Leaf("."))
	image := mustNew(t, "ImageDelete", "Image", md, NestedSpec("Pixels", pixels), Leaf("Annotation"), Leaf("."))
	return image, pixels
}

func driveAll(t *testing.T, run *Run, sess *fakeSession, src IDSource) []StepResult {
	t.Helper()
	var out []StepResult
	steps := run.Steps()
	for step := 0; step < steps; step++ {
		res, err := run.Delete(context.Background(), sess, step, src)
		if err != nil {
			t.Fatalf("Delete(%d) err=%v", step, err)
		}
		out = append(out, res)
	}
	return out
}

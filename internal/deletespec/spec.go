// Package deletespec plans and executes cascading deletes over a relational
// object graph.
//
// A Specification is an ordered list of entries rooted at one entity type.
// Each entry either names a leaf type reachable from the root through a
// relationship path, or links to a nested Specification whose own entries
// are executed in its place. Initialize captures the root id of one run and
// returns a Run; the caller then drives Run.Delete for steps 0..Steps()-1,
// inside a transaction it owns. Every delete, however deeply nested, is a
// single statement joined back to the outermost root row.
package deletespec

import (
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/animus-labs/cascade/internal/catalog"
	"github.com/animus-labs/cascade/internal/specvalidator"
)

// Metadata resolves type names to tables and type pairs to relationships.
// *catalog.Catalog implements it.
type Metadata interface {
	Table(typeName string) (catalog.Table, bool)
	Relationship(from, to string) (catalog.Relationship, bool)
}

// EntryDef declares one entry at construction time.
type EntryDef struct {
	Path string
	// Spec names a nested specification, resolved by Registry.Link.
	Spec string

	nested *Specification
}

func Leaf(path string) EntryDef {
	return EntryDef{Path: path}
}

func Nested(path, specName string) EntryDef {
	return EntryDef{Path: path, Spec: specName}
}

// NestedSpec links a nested specification directly, without a registry.
func NestedSpec(path string, spec *Specification) EntryDef {
	def := EntryDef{Path: path, nested: spec}
	if spec != nil {
		def.Spec = spec.name
	}
	return def
}

// Entry is one declared step of a Specification.
type Entry struct {
	owner    *Specification
	path     string
	segments []string
	specName string
	nested   *Specification
}

// RelativePath is the path as declared, relative to the owner's root type.
func (e Entry) RelativePath() string { return e.path }

// NestedName is the declared nested specification name, if any.
func (e Entry) NestedName() string { return e.specName }

// Nested is the linked nested specification, nil for a leaf entry.
func (e Entry) Nested() *Specification { return e.nested }

func (e Entry) Owner() *Specification { return e.owner }

// IsLeaf reports whether executing the entry issues a delete itself.
func (e Entry) IsLeaf() bool { return e.nested == nil }

// FullPath extends superpath (or the owner's root type for a top-level run)
// with the entry's relative path. The result is the join chain from the
// outermost root to the entry's target type.
func (e Entry) FullPath(superpath string) []string {
	prefix, _ := splitPath(superpath)
	if len(prefix) == 0 && e.owner != nil {
		prefix = []string{e.owner.rootType}
	}
	out := make([]string, 0, len(prefix)+len(e.segments))
	out = append(out, prefix...)
	return append(out, e.segments...)
}

// Target is the type deleted by a leaf entry.
func (e Entry) Target(superpath string) string {
	full := e.FullPath(superpath)
	if len(full) == 0 {
		return ""
	}
	return full[len(full)-1]
}

type Option func(*Specification)

func WithMetadata(md Metadata) Option {
	return func(s *Specification) { s.md = md }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Specification) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Specification is structurally immutable once linked. Run state lives in
// the Run returned by Initialize; the Specification itself only records
// whether a top-level run is in flight.
type Specification struct {
	name     string
	rootType string
	entries  []Entry
	md       Metadata
	logger   *slog.Logger

	mu     sync.Mutex
	active bool
}

func New(name, rootType string, defs []EntryDef, opts ...Option) (*Specification, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, structural("", "name is required")
	}
	rootType = strings.TrimSpace(rootType)
	if !specvalidator.ValidIdentifier(rootType) {
		return nil, structural(name, "root type %q is not a valid type name", rootType)
	}
	if len(defs) == 0 {
		return nil, structural(name, "at least one entry is required")
	}
	s := &Specification{
		name:     name,
		rootType: rootType,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	entries := make([]Entry, 0, len(defs))
	for i, def := range defs {
		segments, err := splitPath(def.Path)
		if err != nil {
			return nil, structural(name, "entry %d: %v", i, err)
		}
		path := joinPath(segments)
		if path == "" {
			path = selfPath
		}
		entries = append(entries, Entry{
			owner:    s,
			path:     path,
			segments: segments,
			specName: strings.TrimSpace(def.Spec),
			nested:   def.nested,
		})
	}
	s.entries = entries
	return s, nil
}

func (s *Specification) Name() string { return s.name }

func (s *Specification) RootType() string { return s.rootType }

// Entries returns a snapshot of the declared entries.
func (s *Specification) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Active reports whether a top-level run currently holds this specification.
func (s *Specification) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Specification) String() string {
	return fmt.Sprintf("Specification[%s root=%s entries=%d]", s.name, s.rootType, len(s.entries))
}

// Walk yields every specification reachable through nested entries in
// post-order, ending with s itself.
func (s *Specification) Walk() iter.Seq[*Specification] {
	return func(yield func(*Specification) bool) {
		w := NewWalker(s)
		for {
			next, ok := w.Next()
			if !ok || !yield(next) {
				return
			}
		}
	}
}

// Initialize starts a run rooted at rootID. superpath is empty for a
// top-level run. Every nested specification is initialized first with the
// superpath extended by its parent entry, so the returned Run knows how many
// substeps each entry has. Initialize fails while a previous run of s is
// still in flight; the hold is released by the run's final step or by
// Run.Close.
func (s *Specification) Initialize(rootID int64, superpath string, options map[string]string) (*Run, error) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, structural(s.name, "already initialized: a run is in flight")
	}
	s.active = true
	s.mu.Unlock()

	run, err := s.initialize(rootID, superpath, maps.Clone(options), map[*Specification]bool{})
	if err != nil {
		s.release()
		return nil, err
	}
	run.holdsGuard = true
	return run, nil
}

func (s *Specification) initialize(rootID int64, superpath string, options map[string]string, visiting map[*Specification]bool) (*Run, error) {
	if _, err := splitPath(superpath); err != nil {
		return nil, structural(s.name, "superpath: %v", err)
	}
	if options == nil {
		options = map[string]string{}
	}
	visiting[s] = true
	defer delete(visiting, s)

	run := &Run{
		spec:      s,
		rootID:    rootID,
		hasRoot:   true,
		superpath: strings.Trim(strings.TrimSpace(superpath), pathSeparator),
		options:   options,
		substeps:  make([]int, len(s.entries)),
		nested:    make([]*Run, len(s.entries)),
	}
	for i, entry := range s.entries {
		sub := entry.nested
		if sub == nil {
			if entry.specName != "" {
				return nil, structural(s.name, "entry %d (%s) references unlinked spec %q", i, entry.path, entry.specName)
			}
			continue
		}
		if sub == s {
			return nil, structural(s.name, "entry %d (%s) references its own specification", i, entry.path)
		}
		if visiting[sub] {
			return nil, structural(s.name, "entry %d (%s) closes a cycle through %s", i, entry.path, sub.name)
		}
		full := entry.FullPath(run.superpath)
		if last := full[len(full)-1]; last != sub.rootType {
			return nil, structural(s.name, "entry %d (%s) ends at %s but nested spec %s is rooted at %s", i, entry.path, last, sub.name, sub.rootType)
		}
		child, err := sub.initialize(rootID, joinPath(full), options, visiting)
		if err != nil {
			return nil, err
		}
		run.nested[i] = child
		run.substeps[i] = child.Steps()
	}
	return run, nil
}

func (s *Specification) release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

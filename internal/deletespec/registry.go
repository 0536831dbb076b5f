package deletespec

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry collects named specifications and links nested references in a
// single pass once all of them are defined. After Link the graph is
// read-only.
type Registry struct {
	md     Metadata
	logger *slog.Logger

	mu     sync.RWMutex
	specs  map[string]*Specification
	order  []string
	linked bool
}

func NewRegistry(md Metadata, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		md:     md,
		logger: logger,
		specs:  map[string]*Specification{},
	}
}

// Define constructs a specification bound to the registry's metadata.
// Nested references stay unresolved until Link.
func (r *Registry) Define(name, rootType string, defs ...EntryDef) (*Specification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linked {
		return nil, structural(name, "registry already linked")
	}
	if _, dup := r.specs[strings.TrimSpace(name)]; dup {
		return nil, structural(name, "duplicate specification name")
	}
	s, err := New(name, rootType, defs, WithMetadata(r.md), WithLogger(r.logger.With("spec", strings.TrimSpace(name))))
	if err != nil {
		return nil, err
	}
	r.specs[s.name] = s
	r.order = append(r.order, s.name)
	return s, nil
}

// Link resolves every nested specification name, then checks the graph:
// nested root types must match the entry that reaches them, nested
// references must not form a cycle, and, when metadata is configured, every
// type and relationship along every entry path must exist. All problems are
// returned together.
func (r *Registry) Link() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linked {
		return structural("", "registry already linked")
	}

	var errs []error
	for _, name := range r.order {
		s := r.specs[name]
		for i := range s.entries {
			entry := &s.entries[i]
			if entry.specName == "" {
				continue
			}
			target, ok := r.specs[entry.specName]
			if !ok {
				errs = append(errs, structural(s.name, "entry %d (%s) references unknown spec %q", i, entry.path, entry.specName))
				continue
			}
			entry.nested = target
			full := entry.FullPath("")
			if last := full[len(full)-1]; last != target.rootType {
				errs = append(errs, structural(s.name, "entry %d (%s) ends at %s but nested spec %s is rooted at %s", i, entry.path, last, target.name, target.rootType))
			}
		}
	}
	errs = append(errs, r.findCycles()...)
	if r.md != nil {
		for _, name := range r.order {
			errs = append(errs, r.verifyPaths(r.specs[name])...)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	r.linked = true
	r.logger.Info("delete specifications linked", "count", len(r.order))
	return nil
}

func (r *Registry) findCycles() []error {
	const (
		unvisited = iota
		inProgress
		finished
	)
	state := make(map[*Specification]int, len(r.specs))
	var errs []error
	var stack []string

	var visit func(s *Specification)
	visit = func(s *Specification) {
		state[s] = inProgress
		stack = append(stack, s.name)
		for _, entry := range s.entries {
			next := entry.nested
			if next == nil {
				continue
			}
			switch state[next] {
			case inProgress:
				start := 0
				for i, n := range stack {
					if n == next.name {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), next.name)
				if next == s {
					errs = append(errs, structural(s.name, "entry %s references its own specification", entry.path))
				} else {
					errs = append(errs, structural(s.name, "nested specification cycle: %s", strings.Join(cycle, " -> ")))
				}
			case unvisited:
				visit(next)
			}
		}
		stack = stack[:len(stack)-1]
		state[s] = finished
	}

	for _, name := range r.order {
		if s := r.specs[name]; state[s] == unvisited {
			visit(s)
		}
	}
	return errs
}

// verifyPaths checks each entry's chain as seen from its own root type.
// A nested run prefixes that chain with its parent's, whose pairs are in
// turn checked on the parent, so this covers every chain a run can build.
func (r *Registry) verifyPaths(s *Specification) []error {
	var errs []error
	if _, ok := r.md.Table(s.rootType); !ok {
		errs = append(errs, structural(s.name, "unknown root type %s", s.rootType))
		return errs
	}
	for i, entry := range s.entries {
		full := entry.FullPath("")
		for p, typeName := range full {
			if _, ok := r.md.Table(typeName); !ok {
				errs = append(errs, structural(s.name, "entry %d (%s): unknown type %s", i, entry.path, typeName))
				break
			}
			if p == 0 {
				continue
			}
			if _, ok := r.md.Relationship(full[p-1], typeName); !ok {
				errs = append(errs, structural(s.name, "entry %d (%s): no relationship: %s->%s", i, entry.path, full[p-1], typeName))
				break
			}
		}
	}
	return errs
}

func (r *Registry) Get(name string) (*Specification, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[strings.TrimSpace(name)]
	return s, ok
}

// Names lists the defined specification names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

func (r *Registry) Linked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.linked
}

package deletespec

type frame struct {
	spec *Specification
	next int
}

// Walker iterates the specifications reachable from a start specification
// in post-order: for each entry in declaration order, a nested
// specification is exhausted (its own nested specifications first) before
// the next entry is looked at; the start specification comes last. Leaf
// entries contribute nothing. A Walker is single-use.
type Walker struct {
	stack []frame
}

func NewWalker(start *Specification) *Walker {
	w := &Walker{}
	if start != nil {
		w.stack = append(w.stack, frame{spec: start})
	}
	return w
}

// Next returns the next specification, or false when the walk is over.
// A nested specification already on the stack is skipped, so an unlinked
// cyclic graph still terminates.
func (w *Walker) Next() (*Specification, bool) {
	for len(w.stack) > 0 {
		top := &w.stack[len(w.stack)-1]
		if top.next < len(top.spec.entries) {
			nested := top.spec.entries[top.next].nested
			top.next++
			if nested != nil && !w.onStack(nested) {
				w.stack = append(w.stack, frame{spec: nested})
			}
			continue
		}
		done := top.spec
		w.stack = w.stack[:len(w.stack)-1]
		return done, true
	}
	return nil, false
}

func (w *Walker) onStack(s *Specification) bool {
	for _, f := range w.stack {
		if f.spec == s {
			return true
		}
	}
	return false
}

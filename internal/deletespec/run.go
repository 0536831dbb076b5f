package deletespec

import (
	"context"
	"maps"

	"github.com/animus-labs/cascade/internal/query"
)

// Run is the state of one initialized specification: the outer root id,
// the inherited superpath, the caller's options and the substep count of
// every entry. It is owned by a single caller and is not safe for
// concurrent use.
type Run struct {
	spec       *Specification
	rootID     int64
	hasRoot    bool
	superpath  string
	options    map[string]string
	substeps   []int
	nested     []*Run
	next       int
	done       bool
	holdsGuard bool
}

// StepResult describes one executed step. Nested steps aggregate the rows
// deleted by their substeps.
type StepResult struct {
	Spec       string       `json:"spec"`
	Step       int          `json:"step"`
	Path       string       `json:"path"`
	Type       string       `json:"type,omitempty"`
	Deleted    int64        `json:"deleted"`
	Substeps   []StepResult `json:"substeps,omitempty"`
	Diagnostic string       `json:"diagnostic,omitempty"`
}

func (r *Run) Spec() *Specification { return r.spec }

// Steps is the number of Delete calls the caller must drive.
func (r *Run) Steps() int { return len(r.spec.entries) }

// Substeps returns the step count of the nested specification behind entry
// step, zero for a leaf entry.
func (r *Run) Substeps(step int) int {
	if step < 0 || step >= len(r.substeps) {
		return 0
	}
	return r.substeps[step]
}

// RootID returns the id captured by Initialize. The second result is false
// once the run has finished and its state was cleared.
func (r *Run) RootID() (int64, bool) {
	return r.rootID, r.hasRoot
}

func (r *Run) Superpath() string { return r.superpath }

func (r *Run) Options() map[string]string { return maps.Clone(r.options) }

// Done reports whether the final step has executed or the run was closed.
func (r *Run) Done() bool { return r.done }

// NextStep is the step the run expects next.
func (r *Run) NextStep() int { return r.next }

// Path returns the full type path of entry step.
func (r *Run) Path(step int) []string {
	if step < 0 || step >= len(r.spec.entries) {
		return nil
	}
	return r.spec.entries[step].FullPath(r.superpath)
}

// Delete executes entry step. A nested entry runs all of its nested
// specification's steps in order on the same session; a leaf entry deletes
// either the ids supplied by src or, when src supplies none, every row of
// the leaf type joined back to the root id. Steps must be driven in
// increasing order. Executing the final step, successfully or not, clears
// the run and releases its Specification for the next run.
func (r *Run) Delete(ctx context.Context, sess query.Session, step int, src IDSource) (StepResult, error) {
	if r.done {
		return StepResult{}, structural(r.spec.name, "run already finished")
	}
	if step < 0 || step >= len(r.spec.entries) {
		return StepResult{}, structural(r.spec.name, "step %d out of range [0,%d)", step, len(r.spec.entries))
	}
	if step != r.next {
		return StepResult{}, structural(r.spec.name, "step %d out of order, expected %d", step, r.next)
	}
	if src == nil {
		src = NoIDs
	}
	defer func() {
		r.next++
		if step == len(r.spec.entries)-1 {
			r.finish()
		}
	}()

	entry := r.spec.entries[step]
	full := entry.FullPath(r.superpath)
	res := StepResult{Spec: r.spec.name, Step: step, Path: joinPath(full)}

	if child := r.nested[step]; child != nil {
		for i := 0; i < r.substeps[step]; i++ {
			sub, err := child.Delete(ctx, sess, i, src)
			if err != nil {
				child.Close()
				return res, err
			}
			res.Deleted += sub.Deleted
			res.Substeps = append(res.Substeps, sub)
		}
		return res, nil
	}

	res.Type = full[len(full)-1]
	n, diag, err := r.deleteLeaf(ctx, sess, step, full, src)
	res.Deleted = n
	res.Diagnostic = diag
	return res, err
}

func (r *Run) deleteLeaf(ctx context.Context, sess query.Session, step int, full []string, src IDSource) (int64, string, error) {
	s := r.spec
	path := joinPath(full)
	ids, supplied := src.IDs(r, step)

	if supplied && len(ids) == 0 {
		s.logger.Info("no ids found", "spec", s.name, "path", path, "root_id", r.rootID)
		return 0, "no ids supplied", nil
	}

	build := func() (*query.Builder, error) {
		if supplied {
			q, _, err := s.deleteByIDs(full, ids)
			return q, err
		}
		q, _, err := s.deleteByRoot(full, r.rootID)
		return q, err
	}
	q, err := build()
	if err != nil {
		return 0, "", err
	}

	count, err := q.Exec(ctx, sess)
	if err != nil {
		return 0, "", &ExecutionError{Spec: s.name, Op: "delete", Path: path, RootID: r.rootID, Step: step, Err: err}
	}
	if supplied {
		s.logger.Info("deleted rows", "spec", s.name, "path", path, "count", count, "id_count", len(ids))
	} else {
		s.logger.Info("deleted rows", "spec", s.name, "path", path, "count", count, "root_id", r.rootID)
	}
	return count, "", nil
}

// BackupIDs runs the id-collecting select of every entry, nested entries
// included, without deleting anything. The result has one list per entry.
func (r *Run) BackupIDs(ctx context.Context, sess query.Session) ([][]int64, error) {
	if r.done {
		return nil, structural(r.spec.name, "run already finished")
	}
	out := make([][]int64, len(r.spec.entries))
	for step := range r.spec.entries {
		ids, err := r.selectStep(ctx, sess, step)
		if err != nil {
			return nil, err
		}
		out[step] = ids
	}
	return out, nil
}

func (r *Run) selectStep(ctx context.Context, sess query.Session, step int) ([]int64, error) {
	s := r.spec
	full := r.Path(step)
	q, _, err := s.selectIDs(full)
	if err != nil {
		return nil, err
	}
	ids, err := q.Param(rootIDParam, r.rootID).IDs(ctx, sess)
	if err != nil {
		return nil, &ExecutionError{Spec: s.name, Op: "select", Path: joinPath(full), RootID: r.rootID, Step: step, Err: err}
	}
	s.logger.Info("found ids", "spec", s.name, "path", joinPath(full), "count", len(ids))
	return ids, nil
}

// Close abandons the run. It is a no-op once the final step has executed.
func (r *Run) Close() {
	if r.done {
		return
	}
	for _, child := range r.nested {
		if child != nil {
			child.Close()
		}
	}
	r.finish()
}

func (r *Run) finish() {
	r.done = true
	r.hasRoot = false
	r.rootID = 0
	r.superpath = ""
	r.options = nil
	if r.holdsGuard {
		r.holdsGuard = false
		r.spec.release()
	}
}

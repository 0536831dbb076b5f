package deletespec

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/animus-labs/cascade/internal/query"
)

// IDSource optionally supplies the ids a leaf step should delete. Returning
// false leaves the engine to derive them with a join back to the root.
type IDSource interface {
	IDs(run *Run, step int) ([]int64, bool)
}

type IDSourceFunc func(run *Run, step int) ([]int64, bool)

func (f IDSourceFunc) IDs(run *Run, step int) ([]int64, bool) { return f(run, step) }

type noIDs struct{}

func (noIDs) IDs(*Run, int) ([]int64, bool) { return nil, false }

// NoIDs never supplies ids.
var NoIDs IDSource = noIDs{}

// Snapshot records, before anything is deleted, the ids every leaf step of
// a run tree would delete. Used as an IDSource it makes the deletes hit
// exactly the recorded rows; serialized it is the backup of a run.
type Snapshot struct {
	Spec       string          `json:"spec"`
	RootID     int64           `json:"root_id"`
	CapturedAt time.Time       `json:"captured_at"`
	Steps      []SnapshotEntry `json:"steps"`

	byPath map[string]int
}

type SnapshotEntry struct {
	Path string  `json:"path"`
	Type string  `json:"type"`
	IDs  []int64 `json:"ids"`
}

// CollectSnapshot walks the run tree in execution order and selects the ids
// of every leaf step. The run is left untouched and can be driven next.
func CollectSnapshot(ctx context.Context, sess query.Session, run *Run) (*Snapshot, error) {
	if run == nil {
		return nil, errors.New("run is required")
	}
	rootID, ok := run.RootID()
	if !ok {
		return nil, structural(run.spec.name, "run already finished")
	}
	snap := &Snapshot{
		Spec:       run.spec.name,
		RootID:     rootID,
		CapturedAt: time.Now().UTC(),
		byPath:     map[string]int{},
	}
	if err := snap.collect(ctx, sess, run); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Snapshot) collect(ctx context.Context, sess query.Session, run *Run) error {
	for step := 0; step < run.Steps(); step++ {
		if child := run.nested[step]; child != nil {
			if err := s.collect(ctx, sess, child); err != nil {
				return err
			}
			continue
		}
		full := run.Path(step)
		key := joinPath(full)
		if _, seen := s.byPath[key]; seen {
			continue
		}
		ids, err := run.selectStep(ctx, sess, step)
		if err != nil {
			return err
		}
		s.byPath[key] = len(s.Steps)
		s.Steps = append(s.Steps, SnapshotEntry{Path: key, Type: full[len(full)-1], IDs: ids})
	}
	return nil
}

// IDs implements IDSource. Paths the snapshot never saw are left to the
// engine.
func (s *Snapshot) IDs(run *Run, step int) ([]int64, bool) {
	if s == nil || run == nil {
		return nil, false
	}
	s.index()
	i, ok := s.byPath[joinPath(run.Path(step))]
	if !ok {
		return nil, false
	}
	ids := s.Steps[i].IDs
	if ids == nil {
		ids = []int64{}
	}
	return ids, true
}

// Total is the number of ids across all steps.
func (s *Snapshot) Total() int {
	n := 0
	for _, e := range s.Steps {
		n += len(e.IDs)
	}
	return n
}

func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalSnapshot(raw []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s.index()
	return &s, nil
}

func (s *Snapshot) index() {
	if s.byPath != nil {
		return
	}
	s.byPath = make(map[string]int, len(s.Steps))
	for i, e := range s.Steps {
		s.byPath[e.Path] = i
	}
}

package deletespec

// PlannedStep is one leaf delete of a run tree, in execution order.
// Position is the step index at each nesting level, outermost first.
type PlannedStep struct {
	Position []int  `json:"position"`
	Spec     string `json:"spec"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	SQL      string `json:"sql"`
}

// Plan lists the leaf deletes the run would execute if no ids were
// supplied, with their rendered statements. Nothing is executed.
func (r *Run) Plan() ([]PlannedStep, error) {
	if r.done {
		return nil, structural(r.spec.name, "run already finished")
	}
	var out []PlannedStep
	if err := r.plan(nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Run) plan(prefix []int, out *[]PlannedStep) error {
	for step := range r.spec.entries {
		pos := append(append([]int(nil), prefix...), step)
		if child := r.nested[step]; child != nil {
			if err := child.plan(pos, out); err != nil {
				return err
			}
			continue
		}
		full := r.Path(step)
		q, _, err := r.spec.deleteByRoot(full, r.rootID)
		if err != nil {
			return err
		}
		stmt, _, err := q.SQL()
		if err != nil {
			return structural(r.spec.name, "render step %d: %v", step, err)
		}
		*out = append(*out, PlannedStep{
			Position: pos,
			Spec:     r.spec.name,
			Path:     joinPath(full),
			Type:     full[len(full)-1],
			SQL:      stmt,
		})
	}
	return nil
}

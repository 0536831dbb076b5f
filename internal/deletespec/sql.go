package deletespec

import (
	"github.com/animus-labs/cascade/internal/catalog"
	"github.com/animus-labs/cascade/internal/query"
)

const rootIDParam = "id"

// selectIDs builds the id-collecting join for path:
//
//	SELECT ROOTn.id FROM T0 AS ROOT0
//	JOIN T1 AS ROOT1 ON <rel T0->T1>
//	...
//	WHERE ROOT0.id = :id
//
// Relationships are resolved pair by pair in path order; the first missing
// one aborts before anything is executed.
func (s *Specification) selectIDs(path []string) (*query.Builder, catalog.Table, error) {
	if s.md == nil {
		return nil, catalog.Table{}, structural(s.name, "no metadata configured")
	}
	if len(path) == 0 {
		return nil, catalog.Table{}, structural(s.name, "empty path")
	}
	rels := make([]catalog.Relationship, 0, len(path)-1)
	for p := 1; p < len(path); p++ {
		rel, ok := s.md.Relationship(path[p-1], path[p])
		if !ok {
			return nil, catalog.Table{}, structural(s.name, "no relationship: %s->%s", path[p-1], path[p])
		}
		rels = append(rels, rel)
	}
	root, ok := s.md.Table(path[0])
	if !ok {
		return nil, catalog.Table{}, structural(s.name, "unknown type %s", path[0])
	}
	target := root
	if len(rels) > 0 {
		target = rels[len(rels)-1].To
	}

	last := len(path) - 1
	b := query.Select(rootAlias(last)+"."+target.IDColumn).From(root.Name, rootAlias(0))
	for i, rel := range rels {
		b.Join(rel.To.Name, rootAlias(i+1), rel.On(rootAlias(i), rootAlias(i+1)))
	}
	b.And(rootAlias(0) + "." + root.IDColumn + " = :" + rootIDParam)
	return b, target, nil
}

// deleteByRoot builds "DELETE FROM target WHERE id IN (<selectIDs>)".
func (s *Specification) deleteByRoot(path []string, rootID int64) (*query.Builder, catalog.Table, error) {
	sub, target, err := s.selectIDs(path)
	if err != nil {
		return nil, catalog.Table{}, err
	}
	return query.Delete(target.Name).AndIn(target.IDColumn, sub).Param(rootIDParam, rootID), target, nil
}

// deleteByIDs builds "DELETE FROM target WHERE id = ANY(:ids)" with the
// list bound as a single bigint[] argument.
func (s *Specification) deleteByIDs(path []string, ids []int64) (*query.Builder, catalog.Table, error) {
	if s.md == nil {
		return nil, catalog.Table{}, structural(s.name, "no metadata configured")
	}
	typeName := path[len(path)-1]
	target, ok := s.md.Table(typeName)
	if !ok {
		return nil, catalog.Table{}, structural(s.name, "unknown type %s", typeName)
	}
	return query.Delete(target.Name).And(target.IDColumn+" = ANY(:ids)").Param("ids", ids), target, nil
}

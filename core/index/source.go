package index

import "axiograph/core"

// RelationBySourceIndex maps (from, rel_type) to the ordered list of
// target entity ids (spec.md §4.5).
type RelationBySourceIndex struct {
	m map[uint64]map[string][]uint64
}

func newRelationBySourceIndex() *RelationBySourceIndex {
	return &RelationBySourceIndex{m: map[uint64]map[string][]uint64{}}
}

func (ri *RelationBySourceIndex) add(from uint64, relType string, to uint64) {
	bucket, ok := ri.m[from]
	if !ok {
		bucket = map[string][]uint64{}
		ri.m[from] = bucket
	}
	bucket[relType] = append(bucket[relType], to)
}

// Targets returns the to-ids reachable from an entity via one rel_type hop,
// in insertion order.
func (ri *RelationBySourceIndex) Targets(from uint64, relType string) []uint64 {
	return ri.m[from][relType]
}

// RelTypesFrom returns every rel_type with at least one outgoing edge from
// the given entity.
func (ri *RelationBySourceIndex) RelTypesFrom(from uint64) []string {
	bucket := ri.m[from]
	out := make([]string, 0, len(bucket))
	for r := range bucket {
		out = append(out, r)
	}
	return out
}

func buildRelationBySourceIndex(pdb *core.PathDB) *RelationBySourceIndex {
	ri := newRelationBySourceIndex()
	for _, r := range pdb.Relations() {
		ri.add(r.From, r.RelType, r.To)
	}
	return ri
}

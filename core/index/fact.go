package index

import (
	"sort"

	"axiograph/core"
)

// FactIndex maps a relation name to every fact node materialized for it,
// in insertion order (spec.md §4.5: "enables O(1) lookup of all tuples of
// a relation").
type FactIndex struct {
	byRelation map[string][]uint64
}

func newFactIndex() *FactIndex {
	return &FactIndex{byRelation: map[string][]uint64{}}
}

func (fi *FactIndex) add(relType string, factID uint64) {
	fi.byRelation[relType] = append(fi.byRelation[relType], factID)
}

// Facts returns the fact node ids for a relation, in insertion order.
func (fi *FactIndex) Facts(relType string) []uint64 {
	return fi.byRelation[relType]
}

// Relations returns every relation name with at least one indexed fact.
func (fi *FactIndex) Relations() []string {
	out := make([]string, 0, len(fi.byRelation))
	for r := range fi.byRelation {
		out = append(out, r)
	}
	return out
}

// buildFactIndex walks every entity of pdb and indexes the ones carrying
// an axi_relation attribute, i.e. reified fact nodes (spec.md §4.6 step 3).
func buildFactIndex(pdb *core.PathDB) *FactIndex {
	fi := newFactIndex()
	entities := pdb.Entities()
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	for _, e := range entities {
		relType, ok := e.Attrs["axi_relation"]
		if !ok {
			continue
		}
		fi.add(relType, e.ID)
	}
	return fi
}

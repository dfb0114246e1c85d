package core

import (
	"hash/fnv"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

// canonModule is the RLP-encodable canonical projection of a Module: field
// order is alphabetized and tuple field maps are flattened into sorted
// (key,value) pairs so that two Modules equal up to comment/formatting
// differences and instance-declaration reordering produce byte-identical
// encodings, per spec.md §4.1/§8 ("digest(S) is stable under reordering of
// instances, but not reordering of tuples within a relation").
type canonModule struct {
	Name      string
	Schemas   []canonSchema
	Theories  []canonTheory
	Instances []canonInstance
}

type canonField struct {
	Name, Type  string
	Context     bool
	Temporal    bool
}

type canonRelation struct {
	Name              string
	Fields            []canonField
	SourceTarget      [2]string
}

type canonSchema struct {
	Name      string
	Objects   []string
	Subtypes  [][2]string
	Relations []canonRelation
}

type canonConstraint struct {
	Kind                                   int
	Relation, FuncFrom, FuncTo, TypingRule string
	KeyFields, CarrierFields, ParamFields  []string
	Where                                  string
	OpaqueName, OpaqueBody                 string
}

type canonTheory struct {
	Name, SchemaName string
	Constraints      []canonConstraint
}

type canonKV struct{ K, V string }

type canonTuple struct{ KVs []canonKV }

type canonAssignment struct {
	Name    string
	IsTuple bool
	Objects []string
	Tuples  []canonTuple
}

type canonInstance struct {
	Name, SchemaName string
	Assignments      []canonAssignment
}

// canonicalize projects a Module into its deterministic, order-normalized
// form ahead of RLP encoding.
func canonicalize(m *Module) canonModule {
	cm := canonModule{Name: m.Name}

	schemas := append([]*Schema(nil), m.Schemas...)
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	for _, s := range schemas {
		cs := canonSchema{Name: s.Name, Objects: append([]string(nil), s.Objects...)}
		sort.Strings(cs.Objects)
		for _, st := range s.Subtypes {
			cs.Subtypes = append(cs.Subtypes, [2]string{st.Sub, st.Super})
		}
		sort.Slice(cs.Subtypes, func(i, j int) bool {
			if cs.Subtypes[i][0] != cs.Subtypes[j][0] {
				return cs.Subtypes[i][0] < cs.Subtypes[j][0]
			}
			return cs.Subtypes[i][1] < cs.Subtypes[j][1]
		})
		rels := append([]*Relation(nil), s.Relations...)
		sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })
		for _, r := range rels {
			cr := canonRelation{Name: r.Name, SourceTarget: [2]string{r.SourceField, r.TargetField}}
			for _, f := range r.Fields {
				cr.Fields = append(cr.Fields, canonField{Name: f.Name, Type: f.Type, Context: f.Context, Temporal: f.Temporal})
			}
			cs.Relations = append(cs.Relations, cr)
		}
		cm.Schemas = append(cm.Schemas, cs)
	}

	theories := append([]*Theory(nil), m.Theories...)
	sort.Slice(theories, func(i, j int) bool { return theories[i].Name < theories[j].Name })
	for _, t := range theories {
		ct := canonTheory{Name: t.Name, SchemaName: t.SchemaName}
		for _, c := range t.Constraints {
			cc := canonConstraint{
				Kind: int(c.Kind), Relation: c.Relation, FuncFrom: c.FuncFrom, FuncTo: c.FuncTo,
				TypingRule: c.TypingRule, Where: c.Where, OpaqueName: c.OpaqueName, OpaqueBody: c.OpaqueBody,
				KeyFields: append([]string(nil), c.KeyFields...),
				CarrierFields: append([]string(nil), c.CarrierFields...),
				ParamFields: append([]string(nil), c.ParamFields...),
			}
			ct.Constraints = append(ct.Constraints, cc)
		}
		cm.Theories = append(cm.Theories, ct)
	}

	instances := append([]*Instance(nil), m.Instances...)
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	for _, inst := range instances {
		ci := canonInstance{Name: inst.Name, SchemaName: inst.SchemaName}
		for _, a := range inst.Assignments {
			ca := canonAssignment{Name: a.Name, IsTuple: a.IsTuple, Objects: append([]string(nil), a.Objects...)}
			sort.Strings(ca.Objects)
			for _, tup := range a.Tuples {
				var kvs []canonKV
				for k, v := range tup.Fields {
					kvs = append(kvs, canonKV{K: k, V: v})
				}
				sort.Slice(kvs, func(i, j int) bool { return kvs[i].K < kvs[j].K })
				ca.Tuples = append(ca.Tuples, canonTuple{KVs: kvs})
			}
			ci.Assignments = append(ci.Assignments, ca)
		}
		cm.Instances = append(cm.Instances, ci)
	}
	return cm
}

// Digest computes the module's stable 64-bit axi_digest_v1: canonical RLP
// encoding of the normalized AST, hashed with FNV-1a. Comments and source
// formatting never affect the result because the lexer discards them
// before the AST is built.
func (m *Module) Digest() (uint64, error) {
	enc, err := m.CanonicalBytes()
	if err != nil {
		return 0, err
	}
	return fnv1a64(enc), nil
}

// CanonicalBytes returns the canonical RLP encoding underlying Digest,
// exposed for callers (the snapshot store) that fold it into a larger
// canonical byte string ahead of their own fnv1a64 digest.
func (m *Module) CanonicalBytes() ([]byte, error) {
	return rlp.EncodeToBytes(canonicalize(m))
}

// fnv1a64 is the single hashing primitive used throughout Axiograph for
// non-cryptographic content addressing (module digests, fact ids, and
// snapshot ids) — spec.md §1 explicitly renounces cryptographic content
// addressing, so stdlib's FNV-1a implementation (the exact algorithm
// named by the spec) is used directly rather than reaching for a
// cryptographic or third-party hash.
func fnv1a64(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// Fnv1a64 exposes the shared content-addressing primitive to other
// packages (the snapshot store derives snapshot ids from it the same way
// Digest derives module digests).
func Fnv1a64(b []byte) uint64 { return fnv1a64(b) }

// canonicalTupleBytes RLP-encodes a relation name plus sorted field
// assignments, the shared input to axi_fact_id and to the import
// pipeline's binary-proposal proposals_digest, so identical tuples always
// hash identically across rebuilds.
func canonicalTupleBytes(relation string, fields map[string]string) ([]byte, error) {
	var kvs []canonKV
	for k, v := range fields {
		kvs = append(kvs, canonKV{K: k, V: v})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].K < kvs[j].K })
	return rlp.EncodeToBytes(struct {
		Relation string
		Fields   []canonKV
	}{Relation: relation, Fields: kvs})
}

// FactID derives the stable axi_fact_id for a reified tuple (spec.md §3:
// "a stable axi_fact_id derived from the canonical tuple").
func FactID(relation string, fields map[string]string) (uint64, error) {
	b, err := canonicalTupleBytes(relation, fields)
	if err != nil {
		return 0, err
	}
	return fnv1a64(b), nil
}

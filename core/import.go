package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Materialize implements the import pipeline's steps 1-3: it builds the
// base PathDB for a typechecked module — meta-plane entities for every
// Schema/Theory/Relation/Object, data-plane entities for instance object
// identifiers, and a reified fact node per tuple with one field edge per
// argument, a derived traversal edge when the relation designates
// source/target fields, and an axi_fact_in_context edge for @context
// fields. WAL overlays (steps 4a-4c) are applied afterward with
// ApplyAddChunks/ApplyAddProposals/ApplyAddEmbeddings.
func Materialize(tm *TypedModule, walSnapshotID string) (*PathDB, error) {
	digest, err := tm.Module.Digest()
	if err != nil {
		return nil, fmt.Errorf("axiograph: materialize: %w", err)
	}
	pdb := NewPathDB(digest, walSnapshotID)

	relationSchemas := map[string][]string{}
	for _, s := range tm.Module.Schemas {
		for _, r := range s.Relations {
			relationSchemas[r.Name] = append(relationSchemas[r.Name], s.Name)
		}
	}
	traversalLabel := func(schemaName, relName string) string {
		if len(relationSchemas[relName]) > 1 {
			return schemaName + "." + relName
		}
		return relName
	}

	// Step 1: meta-plane entities.
	for _, s := range tm.Module.Schemas {
		pdb.PutEntity(&Entity{
			ID: EntityID("Schema", s.Name, PlaneMeta, tm.Module.Name), EntityType: "Schema",
			Name: s.Name, Plane: PlaneMeta,
		})
		for _, obj := range s.Objects {
			pdb.PutEntity(&Entity{
				ID: EntityID("Object", obj, PlaneMeta, s.Name), EntityType: "Object",
				Name: obj, Plane: PlaneMeta, Attrs: map[string]string{"axi_schema": s.Name},
			})
		}
		for _, r := range s.Relations {
			pdb.PutEntity(&Entity{
				ID: EntityID("Relation", r.Name, PlaneMeta, s.Name), EntityType: "Relation",
				Name: r.Name, Plane: PlaneMeta, Attrs: map[string]string{"axi_schema": s.Name},
			})
		}
	}
	for _, th := range tm.Module.Theories {
		pdb.PutEntity(&Entity{
			ID: EntityID("Theory", th.Name, PlaneMeta, th.SchemaName), EntityType: "Theory",
			Name: th.Name, Plane: PlaneMeta, Attrs: map[string]string{"axi_schema": th.SchemaName},
		})
	}

	// instObjs tracks the entity id assigned to every (instance, identifier)
	// pair, whether declared explicitly (step 2) or introduced implicitly by
	// a tuple field value (spec.md §4.2 check 3).
	instObjs := map[string]map[string]uint64{}
	objSlot := func(instName string) map[string]uint64 {
		m, ok := instObjs[instName]
		if !ok {
			m = map[string]uint64{}
			instObjs[instName] = m
		}
		return m
	}

	// Step 2: data-plane entities for declared object identifiers.
	for _, inst := range tm.Module.Instances {
		slot := objSlot(inst.Name)
		for _, a := range inst.Assignments {
			if a.IsTuple {
				continue
			}
			for _, objName := range a.Objects {
				id := EntityID(a.Name, objName, PlaneData, inst.Name)
				pdb.PutEntity(&Entity{
					ID: id, EntityType: a.Name, Name: objName, Plane: PlaneData,
					Attrs: map[string]string{"axi_schema": inst.SchemaName, "axi_instance": inst.Name},
				})
				slot[objName] = id
			}
		}
	}

	resolveValue := func(inst *Instance, fieldType, val string) uint64 {
		slot := objSlot(inst.Name)
		if id, ok := slot[val]; ok {
			return id
		}
		id := EntityID(fieldType, val, PlaneData, inst.Name)
		pdb.PutEntity(&Entity{
			ID: id, EntityType: fieldType, Name: val, Plane: PlaneData,
			Attrs: map[string]string{"axi_schema": inst.SchemaName, "axi_instance": inst.Name},
		})
		slot[val] = id
		return id
	}

	// Step 3: fact nodes.
	for _, inst := range tm.Module.Instances {
		schema, ok := tm.SchemaByName(inst.SchemaName)
		if !ok {
			continue
		}
		for _, a := range inst.Assignments {
			if !a.IsTuple {
				continue
			}
			rel, ok := schema.LookupRelation(a.Name)
			if !ok {
				continue
			}
			for _, tup := range a.Tuples {
				if err := materializeFact(pdb, schema, inst, rel, tup, traversalLabel, resolveValue); err != nil {
					return nil, err
				}
			}
		}
	}

	return pdb, nil
}

func fieldByName(rel *Relation, name string) (Field, bool) {
	for _, f := range rel.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func materializeFact(
	pdb *PathDB, schema *Schema, inst *Instance, rel *Relation, tup Tuple,
	traversalLabel func(schemaName, relName string) string,
	resolveValue func(inst *Instance, fieldType, val string) uint64,
) error {
	factID, err := FactID(rel.Name, tup.Fields)
	if err != nil {
		return fmt.Errorf("axiograph: fact id for %s: %w", rel.Name, err)
	}
	pdb.PutEntity(&Entity{
		ID: factID, EntityType: rel.Name + "Fact", Plane: PlaneAccepted,
		Attrs: map[string]string{
			"axi_relation": rel.Name,
			"axi_fact_id":  strconv.FormatUint(factID, 16),
			"axi_schema":   inst.SchemaName,
			"axi_instance": inst.Name,
		},
	})

	var srcVal, tgtVal string
	var ctxFieldName, ctxVal string
	for _, fname := range tup.FieldOrder {
		val := tup.Fields[fname]
		f, ok := fieldByName(rel, fname)
		if !ok {
			continue
		}
		valID := resolveValue(inst, f.Type, val)
		if err := pdb.AddRelation(&RelationEdge{
			From: factID, RelType: fname, To: valID, ConfidenceFP: ConfidenceFull,
			Attrs: map[string]string{"axi_relation": rel.Name},
		}); err != nil {
			return err
		}
		if fname == rel.SourceField {
			srcVal = val
		}
		if fname == rel.TargetField {
			tgtVal = val
		}
		if f.Context {
			ctxFieldName, ctxVal = fname, val
		}
	}

	if rel.SourceField != "" && rel.TargetField != "" {
		srcField, _ := fieldByName(rel, rel.SourceField)
		tgtField, _ := fieldByName(rel, rel.TargetField)
		srcID := resolveValue(inst, srcField.Type, srcVal)
		tgtID := resolveValue(inst, tgtField.Type, tgtVal)
		label := traversalLabel(inst.SchemaName, rel.Name)
		if err := pdb.AddRelation(&RelationEdge{
			From: srcID, RelType: label, To: tgtID, ConfidenceFP: ConfidenceFull,
			Attrs: map[string]string{"axi_relation": rel.Name, "axi_fact_id": strconv.FormatUint(factID, 16)},
		}); err != nil {
			return err
		}
	}

	if ctxFieldName != "" {
		ctxField, _ := fieldByName(rel, ctxFieldName)
		ctxID := resolveValue(inst, ctxField.Type, ctxVal)
		if err := pdb.AddRelation(&RelationEdge{
			From: factID, RelType: "axi_fact_in_context", To: ctxID, ConfidenceFP: ConfidenceFull,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ChunkInput is the import pipeline's view of an add_chunks WAL operation,
// independent of the snapshot package's wire representation.
type ChunkInput struct {
	ID, Text, SearchText, DocumentID string
	MetadataKeys, MetadataValues     []string
}

// ApplyAddChunks implements import pipeline step 4a: create a DocChunk
// entity per chunk with text/search_text/metadata attributes, linked to
// its referenced document (if found by name) via has_doc_chunk /
// document_has_chunk.
func ApplyAddChunks(pdb *PathDB, chunks []ChunkInput) error {
	for _, c := range chunks {
		attrs := map[string]string{"text": c.Text, "search_text": c.SearchText}
		for i, k := range c.MetadataKeys {
			if i < len(c.MetadataValues) {
				attrs[k] = c.MetadataValues[i]
			}
		}
		id := EntityID("DocChunk", c.ID, PlaneEvidence, "")
		pdb.PutEntity(&Entity{ID: id, EntityType: "DocChunk", Name: c.ID, Plane: PlaneEvidence, Attrs: attrs})
		if c.DocumentID == "" {
			continue
		}
		docID, ok := pdb.FindByName(c.DocumentID)
		if !ok {
			continue
		}
		if err := pdb.AddRelation(&RelationEdge{From: docID, RelType: "has_doc_chunk", To: id, ConfidenceFP: ConfidenceFull}); err != nil {
			return err
		}
		if err := pdb.AddRelation(&RelationEdge{From: id, RelType: "document_has_chunk", To: docID, ConfidenceFP: ConfidenceFull}); err != nil {
			return err
		}
	}
	return nil
}

// ProposalInput is the import pipeline's view of one add_proposals entry.
// A proposal with FieldNames set is fact-typed (n-ary, reified as a tuple
// node); otherwise it is a binary Subject/Relation/Object edge proposal.
type ProposalInput struct {
	ID, Subject, Relation, Object string
	FieldNames, FieldValues       []string
	ConfidenceFP                  uint32
	SourceType, SourceLocator     string
}

func proposalValueEntity(pdb *PathDB, entityType, name string) uint64 {
	if id, ok := pdb.FindByName(name); ok {
		return id
	}
	id := EntityID(entityType, name, PlaneData, "")
	pdb.PutEntity(&Entity{ID: id, EntityType: entityType, Name: name, Plane: PlaneData})
	return id
}

// ApplyAddProposals implements import pipeline step 4b.
func ApplyAddProposals(pdb *PathDB, proposals []ProposalInput) error {
	for _, p := range proposals {
		if len(p.FieldNames) > 0 {
			fields := make(map[string]string, len(p.FieldNames))
			for i, k := range p.FieldNames {
				if i < len(p.FieldValues) {
					fields[k] = p.FieldValues[i]
				}
			}
			factID, err := FactID(p.Relation, fields)
			if err != nil {
				return fmt.Errorf("axiograph: proposal fact id for %s: %w", p.Relation, err)
			}
			pdb.PutEntity(&Entity{
				ID: factID, EntityType: p.Relation + "Fact", Plane: PlaneData,
				Attrs: map[string]string{
					"axi_relation":     p.Relation,
					"axi_fact_id":      strconv.FormatUint(factID, 16),
					"proposals_digest": strconv.FormatUint(factID, 16),
					"source_type":      p.SourceType,
					"source_locator":   p.SourceLocator,
				},
			})
			for i, k := range p.FieldNames {
				if i >= len(p.FieldValues) {
					continue
				}
				valID := proposalValueEntity(pdb, p.Relation+"."+k, p.FieldValues[i])
				if err := pdb.AddRelation(&RelationEdge{
					From: factID, RelType: k, To: valID, ConfidenceFP: p.ConfidenceFP,
					Attrs: map[string]string{"axi_relation": p.Relation},
				}); err != nil {
					return err
				}
			}
			continue
		}

		subjID := proposalValueEntity(pdb, "Proposal", p.Subject)
		objID := proposalValueEntity(pdb, "Proposal", p.Object)
		digestBytes, err := canonicalTupleBytes(p.Relation, map[string]string{"subject": p.Subject, "object": p.Object})
		if err != nil {
			return err
		}
		attrs := map[string]string{
			"proposals_digest": strconv.FormatUint(fnv1a64(digestBytes), 16),
			"source_type":      p.SourceType,
			"source_locator":   p.SourceLocator,
		}
		if err := pdb.AddRelation(&RelationEdge{From: subjID, RelType: p.Relation, To: objID, ConfidenceFP: p.ConfidenceFP, Attrs: attrs}); err != nil {
			return err
		}
	}
	return nil
}

// EmbeddingInput is the import pipeline's view of one add_embeddings entry.
// Each vector's float32 components are carried as raw IEEE-754 bits, the
// same convention used for confidence_bits and WAL Vector encoding.
type EmbeddingInput struct {
	Target, Backend, Model string
	Vectors                [][]uint32
}

// ApplyAddEmbeddings implements import pipeline step 4c: attach vector
// attributes to the designated target entity, found by name.
func ApplyAddEmbeddings(pdb *PathDB, embeddings []EmbeddingInput) error {
	for _, e := range embeddings {
		targetID, ok := pdb.FindByName(e.Target)
		if !ok {
			return fmt.Errorf("%w: embedding target %q not found", ErrReplayRejected, e.Target)
		}
		ent, _ := pdb.Entity(targetID)
		if ent.Attrs == nil {
			ent.Attrs = map[string]string{}
		}
		ent.Attrs["embedding_backend"] = e.Backend
		ent.Attrs["embedding_model"] = e.Model
		for i, vec := range e.Vectors {
			parts := make([]string, len(vec))
			for j, bits := range vec {
				parts[j] = strconv.FormatUint(uint64(bits), 16)
			}
			ent.Attrs[fmt.Sprintf("embedding_vector_%d", i)] = strings.Join(parts, ",")
		}
	}
	return nil
}

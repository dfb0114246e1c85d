package core

import (
	"testing"
)

const importTestModule = `module Family

schema People:
  object Person
  object Context
  Parent(a: Person, b: Person, c: Context @context, source=a, target=b)

instance Demo of People:
  Person = {alice, bob}
  Context = {home}
  Parent = {(a=alice, b=bob, c=home)}
`

func mustTypedModule(t *testing.T, src string) *TypedModule {
	t.Helper()
	m, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tm, _, err := Typecheck(m, ProfileStrict)
	if err != nil {
		t.Fatalf("Typecheck: %v", err)
	}
	return tm
}

func TestMaterializeBuildsMetaAndDataPlanes(t *testing.T) {
	tm := mustTypedModule(t, importTestModule)
	pdb, err := Materialize(tm, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	schemaID := EntityID("Schema", "People", PlaneMeta, "Family")
	if _, ok := pdb.Entity(schemaID); !ok {
		t.Fatalf("expected a meta-plane Schema entity for People")
	}
	relID := EntityID("Relation", "Parent", PlaneMeta, "People")
	if _, ok := pdb.Entity(relID); !ok {
		t.Fatalf("expected a meta-plane Relation entity for Parent")
	}

	aliceID, ok := pdb.FindByName("alice")
	if !ok {
		t.Fatalf("expected a data-plane entity named alice")
	}
	alice, _ := pdb.Entity(aliceID)
	if alice.Plane != PlaneData || alice.EntityType != "Person" {
		t.Fatalf("alice entity = %+v, want plane=data type=Person", alice)
	}
}

func TestMaterializeReifiesFactWithFieldEdgesAndTraversalEdge(t *testing.T) {
	tm := mustTypedModule(t, importTestModule)
	pdb, err := Materialize(tm, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	factID, err := FactID("Parent", map[string]string{"a": "alice", "b": "bob", "c": "home"})
	if err != nil {
		t.Fatalf("FactID: %v", err)
	}
	fact, ok := pdb.Entity(factID)
	if !ok {
		t.Fatalf("expected a fact node at the canonical fact id")
	}
	if fact.Attrs["axi_relation"] != "Parent" {
		t.Fatalf("fact attrs = %+v, want axi_relation=Parent", fact.Attrs)
	}

	aliceID, _ := pdb.FindByName("alice")
	bobID, _ := pdb.FindByName("bob")
	homeID, _ := pdb.FindByName("home")

	if edges := pdb.RelationsFrom(factID, "a"); len(edges) != 1 || edges[0].To != aliceID {
		t.Fatalf("field edge 'a' = %v, want -> alice", edges)
	}
	if edges := pdb.RelationsFrom(factID, "b"); len(edges) != 1 || edges[0].To != bobID {
		t.Fatalf("field edge 'b' = %v, want -> bob", edges)
	}
	if edges := pdb.RelationsFrom(factID, "axi_fact_in_context"); len(edges) != 1 || edges[0].To != homeID {
		t.Fatalf("axi_fact_in_context edge = %v, want -> home", edges)
	}

	// Unambiguous relation name (only one schema declares Parent): the
	// derived traversal edge is labeled with the bare relation name.
	if edges := pdb.RelationsFrom(aliceID, "Parent"); len(edges) != 1 || edges[0].To != bobID {
		t.Fatalf("traversal edge alice-Parent->? = %v, want -> bob", edges)
	}
}

func TestApplyAddChunksLinksToDocumentByName(t *testing.T) {
	tm := mustTypedModule(t, importTestModule)
	pdb, err := Materialize(tm, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	err = ApplyAddChunks(pdb, []ChunkInput{{
		ID: "c1", Text: "hello world", SearchText: "hello world", DocumentID: "alice",
		MetadataKeys: []string{"lang"}, MetadataValues: []string{"en"},
	}})
	if err != nil {
		t.Fatalf("ApplyAddChunks: %v", err)
	}
	chunkID, ok := pdb.FindByName("c1")
	if !ok {
		t.Fatalf("expected a DocChunk entity named c1")
	}
	chunk, _ := pdb.Entity(chunkID)
	if chunk.Attrs["text"] != "hello world" || chunk.Attrs["lang"] != "en" {
		t.Fatalf("chunk attrs = %+v", chunk.Attrs)
	}
	aliceID, _ := pdb.FindByName("alice")
	if edges := pdb.RelationsFrom(aliceID, "has_doc_chunk"); len(edges) != 1 || edges[0].To != chunkID {
		t.Fatalf("has_doc_chunk edge = %v, want -> chunk", edges)
	}
	if edges := pdb.RelationsFrom(chunkID, "document_has_chunk"); len(edges) != 1 || edges[0].To != aliceID {
		t.Fatalf("document_has_chunk edge = %v, want -> alice", edges)
	}
}

func TestApplyAddProposalsBinaryAndFactTyped(t *testing.T) {
	tm := mustTypedModule(t, importTestModule)
	pdb, err := Materialize(tm, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	err = ApplyAddProposals(pdb, []ProposalInput{
		{ID: "p1", Subject: "alice", Relation: "Knows", Object: "carol", ConfidenceFP: 800_000, SourceType: "llm", SourceLocator: "doc://1"},
		{ID: "p2", Relation: "Parent", FieldNames: []string{"a", "b"}, FieldValues: []string{"carol", "bob"}, ConfidenceFP: 900_000},
	})
	if err != nil {
		t.Fatalf("ApplyAddProposals: %v", err)
	}
	aliceID, _ := pdb.FindByName("alice")
	edges := pdb.RelationsFrom(aliceID, "Knows")
	if len(edges) != 1 || edges[0].ConfidenceFP != 800_000 || edges[0].Attrs["source_type"] != "llm" {
		t.Fatalf("Knows proposal edge = %+v", edges)
	}

	factID, err := FactID("Parent", map[string]string{"a": "carol", "b": "bob"})
	if err != nil {
		t.Fatalf("FactID: %v", err)
	}
	fact, ok := pdb.Entity(factID)
	if !ok || fact.Plane != PlaneData {
		t.Fatalf("expected a data-plane proposal fact node, got %+v ok=%v", fact, ok)
	}
}

func TestApplyAddEmbeddingsAttachesVectorAttrs(t *testing.T) {
	tm := mustTypedModule(t, importTestModule)
	pdb, err := Materialize(tm, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	err = ApplyAddEmbeddings(pdb, []EmbeddingInput{{
		Target: "alice", Backend: "local", Model: "m1", Vectors: [][]uint32{{1, 2, 3}},
	}})
	if err != nil {
		t.Fatalf("ApplyAddEmbeddings: %v", err)
	}
	aliceID, _ := pdb.FindByName("alice")
	alice, _ := pdb.Entity(aliceID)
	if alice.Attrs["embedding_backend"] != "local" || alice.Attrs["embedding_vector_0"] != "1,2,3" {
		t.Fatalf("alice attrs = %+v", alice.Attrs)
	}

	if err := ApplyAddEmbeddings(pdb, []EmbeddingInput{{Target: "nonexistent"}}); err == nil {
		t.Fatalf("expected an error for an unknown embedding target")
	}
}

func TestMaterializeQualifiesAmbiguousTraversalLabel(t *testing.T) {
	src := `module Ambiguous

schema A:
  object X
  Rel(a: X, b: X, source=a, target=b)

schema B:
  object X
  Rel(a: X, b: X, source=a, target=b)

instance InstA of A:
  X = {x1, x2}
  Rel = {(a=x1, b=x2)}
`
	tm := mustTypedModule(t, src)
	pdb, err := Materialize(tm, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	x1ID, _ := pdb.FindByName("x1")
	x2ID, _ := pdb.FindByName("x2")
	edges := pdb.RelationsFrom(x1ID, "A.Rel")
	if len(edges) != 1 || edges[0].To != x2ID {
		t.Fatalf("expected a single schema-qualified traversal edge x1-A.Rel->x2, got %v", edges)
	}
	if unqualified := pdb.RelationsFrom(x1ID, "Rel"); len(unqualified) != 0 {
		t.Fatalf("did not expect an unqualified traversal edge when Rel is ambiguous, got %v", unqualified)
	}
}

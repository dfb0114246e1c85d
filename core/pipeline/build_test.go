package pipeline

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	"axiograph/core"
	"axiograph/core/index"
	"axiograph/core/snapshot"
)

const testModule = `module Family

schema People:
  object Person
  Parent(a: Person, b: Person, source=a, target=b)

instance Demo of People:
  Person = {alice, bob}
  Parent = {(a=alice, b=bob)}
`

func newTestStore(t *testing.T) *snapshot.Store {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := snapshot.Open(fs, "/store", "", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestBuildPathdbMaterializesFromGenesis(t *testing.T) {
	s := newTestStore(t)
	accepted, err := s.Promote([]byte(testModule), "genesis", core.ProfileStrict)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	walID, err := s.PathdbCommit(accepted, nil, "no overlays")
	if err != nil {
		t.Fatalf("PathdbCommit: %v", err)
	}

	out, err := s.PathdbBuild(context.Background(), walID, BuildPathdb)
	if err != nil {
		t.Fatalf("PathdbBuild: %v", err)
	}
	pdb, err := core.Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := pdb.FindByName("alice"); !ok {
		t.Fatalf("expected a data-plane entity named alice")
	}
	if _, ok := pdb.FindByName("bob"); !ok {
		t.Fatalf("expected a data-plane entity named bob")
	}
}

func TestBuildPathdbReplaysWALOpsOnTopOfMaterialized(t *testing.T) {
	s := newTestStore(t)
	accepted, err := s.Promote([]byte(testModule), "genesis", core.ProfileStrict)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	ops := []snapshot.Op{
		{Kind: snapshot.OpAddChunks, Chunks: []snapshot.Chunk{
			{ID: "c1", Text: "hello", SearchText: "hello", DocumentID: "alice"},
		}},
		{Kind: snapshot.OpAddProposals, Proposals: []snapshot.Proposal{
			{ID: "p1", Subject: "alice", Relation: "Knows", Object: "bob", ConfidenceFP: 750_000, SourceType: "llm"},
		}},
		{Kind: snapshot.OpAddEmbeddings, Embedding: snapshot.EmbeddingSet{
			Target: "alice", Backend: "local", Model: "m1",
			Vectors: []snapshot.Vector{{Bits: []uint32{1, 2, 3}}},
		}},
	}
	walID, err := s.PathdbCommit(accepted, ops, "add overlays")
	if err != nil {
		t.Fatalf("PathdbCommit: %v", err)
	}

	out, err := s.PathdbBuild(context.Background(), walID, BuildPathdb)
	if err != nil {
		t.Fatalf("PathdbBuild: %v", err)
	}
	pdb, err := core.Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	aliceID, ok := pdb.FindByName("alice")
	if !ok {
		t.Fatalf("expected alice entity")
	}
	alice, _ := pdb.Entity(aliceID)
	if alice.Attrs["embedding_backend"] != "local" {
		t.Fatalf("alice attrs = %+v, want embedding_backend=local", alice.Attrs)
	}
	if edges := pdb.RelationsFrom(aliceID, "Knows"); len(edges) != 1 || edges[0].ConfidenceFP != 750_000 {
		t.Fatalf("Knows edge = %v", edges)
	}
	chunkID, ok := pdb.FindByName("c1")
	if !ok {
		t.Fatalf("expected c1 chunk entity")
	}
	if edges := pdb.RelationsFrom(aliceID, "has_doc_chunk"); len(edges) != 1 || edges[0].To != chunkID {
		t.Fatalf("has_doc_chunk edge = %v", edges)
	}
}

func TestBuildIndexHandleProducesQueryableHandle(t *testing.T) {
	s := newTestStore(t)
	accepted, err := s.Promote([]byte(testModule), "genesis", core.ProfileStrict)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	walID, err := s.PathdbCommit(accepted, nil, "no overlays")
	if err != nil {
		t.Fatalf("PathdbCommit: %v", err)
	}

	pdb, handle, err := BuildIndexHandle(context.Background(), s, walID, index.DefaultConfig())
	if err != nil {
		t.Fatalf("BuildIndexHandle: %v", err)
	}
	if handle.SnapshotID != walID {
		t.Fatalf("handle.SnapshotID = %q, want %q", handle.SnapshotID, walID)
	}
	aliceID, ok := pdb.FindByName("alice")
	if !ok {
		t.Fatalf("expected alice entity in decoded pathdb")
	}
	if targets := handle.BySource.Targets(aliceID, "Parent"); len(targets) != 1 {
		t.Fatalf("expected one Parent target from alice via the built index, got %v", targets)
	}
}

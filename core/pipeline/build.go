// Package pipeline wires the snapshot store (C3) to the PathDB model and
// import pipeline (C4/C6): it is the only package under core/ that imports
// both axiograph/core and axiograph/core/snapshot, since core/snapshot already
// imports core for Module/Typecheck and core importing snapshot back
// would cycle.
package pipeline

import (
	"context"
	"fmt"

	"axiograph/core"
	"axiograph/core/index"
	"axiograph/core/snapshot"
)

// BuildPathdb is a snapshot.BuildFunc: it materializes a base PathDB
// (from a checkpoint, or from genesis via the accepted module set) and
// replays the given WAL ops on top, returning the canonical .axpd bytes.
func BuildPathdb(base snapshot.BuildBase, ops []snapshot.Op) ([]byte, error) {
	pdb, err := buildBasePathDB(base)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if err := applyOp(pdb, op); err != nil {
			return nil, err
		}
	}
	return core.Encode(pdb)
}

func buildBasePathDB(base snapshot.BuildBase) (*core.PathDB, error) {
	if base.CheckpointBytes != nil {
		pdb, err := core.Decode(base.CheckpointBytes)
		if err != nil {
			return nil, fmt.Errorf("pipeline: decode checkpoint: %w", err)
		}
		return pdb, nil
	}
	if base.Module == nil {
		return nil, fmt.Errorf("pipeline: build base has neither a checkpoint nor a module")
	}
	tm, _, err := core.Typecheck(base.Module, core.ProfileStrict)
	if err != nil {
		return nil, fmt.Errorf("pipeline: typecheck base module: %w", err)
	}
	pdb, err := core.Materialize(tm, "")
	if err != nil {
		return nil, fmt.Errorf("pipeline: materialize: %w", err)
	}
	return pdb, nil
}

func applyOp(pdb *core.PathDB, op snapshot.Op) error {
	switch op.Kind {
	case snapshot.OpAddChunks:
		return core.ApplyAddChunks(pdb, convertChunks(op.Chunks))
	case snapshot.OpAddProposals:
		return core.ApplyAddProposals(pdb, convertProposals(op.Proposals))
	case snapshot.OpAddEmbeddings:
		return core.ApplyAddEmbeddings(pdb, []core.EmbeddingInput{convertEmbedding(op.Embedding)})
	default:
		return fmt.Errorf("pipeline: unknown WAL op kind %d", op.Kind)
	}
}

func convertChunks(chunks []snapshot.Chunk) []core.ChunkInput {
	out := make([]core.ChunkInput, len(chunks))
	for i, c := range chunks {
		out[i] = core.ChunkInput{
			ID: c.ID, Text: c.Text, SearchText: c.SearchText, DocumentID: c.DocumentID,
			MetadataKeys: c.MetadataKeys, MetadataValues: c.MetadataValues,
		}
	}
	return out
}

func convertProposals(proposals []snapshot.Proposal) []core.ProposalInput {
	out := make([]core.ProposalInput, len(proposals))
	for i, p := range proposals {
		out[i] = core.ProposalInput{
			ID: p.ID, Subject: p.Subject, Relation: p.Relation, Object: p.Object,
			FieldNames: p.FieldNames, FieldValues: p.FieldValues,
			ConfidenceFP: uint32(p.ConfidenceFP), SourceType: p.SourceType, SourceLocator: p.SourceLocator,
		}
	}
	return out
}

func convertEmbedding(e snapshot.EmbeddingSet) core.EmbeddingInput {
	vectors := make([][]uint32, len(e.Vectors))
	for i, v := range e.Vectors {
		vectors[i] = v.Bits
	}
	return core.EmbeddingInput{Target: e.Target, Backend: e.Backend, Model: e.Model, Vectors: vectors}
}

// BuildIndexHandle runs pathdb_build for snapID through the store, decodes
// the resulting .axpd bytes, and builds a fresh index.Handle over it —
// the end-to-end path C7's query executor runs against (spec.md §4.6
// step 5 plus the C5 index build).
func BuildIndexHandle(ctx context.Context, store *snapshot.Store, snapID string, cfg index.Config) (*core.PathDB, *index.Handle, error) {
	data, err := store.PathdbBuild(ctx, snapID, BuildPathdb)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: pathdb build: %w", err)
	}
	pdb, err := core.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: decode built pathdb: %w", err)
	}
	return pdb, index.Build(pdb, snapID, cfg), nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"axiograph/core/snapshot"
)

// opFile is the JSON shape an --ops file is read as: a sequence of
// kind-tagged operations, one of chunks/proposals/embedding populated
// per entry (spec.md §4.3: "ops ∈ {add_chunks(chunks), add_proposals
// (proposals), add_embeddings(target, backend, model, vectors)}").
type opFile struct {
	Kind      string                `json:"kind"`
	Chunks    []snapshot.Chunk      `json:"chunks,omitempty"`
	Proposals []snapshot.Proposal   `json:"proposals,omitempty"`
	Embedding snapshot.EmbeddingSet `json:"embedding,omitempty"`
}

func decodeOps(path string) ([]snapshot.Op, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("axictl: read ops file %s: %w", path, err)
	}
	var entries []opFile
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("axictl: parse ops file %s: %w", path, err)
	}
	ops := make([]snapshot.Op, 0, len(entries))
	for i, e := range entries {
		switch e.Kind {
		case "add_chunks":
			ops = append(ops, snapshot.Op{Kind: snapshot.OpAddChunks, Chunks: e.Chunks})
		case "add_proposals":
			ops = append(ops, snapshot.Op{Kind: snapshot.OpAddProposals, Proposals: e.Proposals})
		case "add_embeddings":
			ops = append(ops, snapshot.Op{Kind: snapshot.OpAddEmbeddings, Embedding: e.Embedding})
		default:
			return nil, fmt.Errorf("axictl: ops file entry %d: unknown kind %q", i, e.Kind)
		}
	}
	return ops, nil
}

var commitMessage string
var commitOpsFile string

var commitCmd = &cobra.Command{
	Use:   "commit [accepted-snapshot-id]",
	Short: "Append a WAL (pathdb-layer) snapshot of ops over an accepted snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ops []snapshot.Op
		if commitOpsFile != "" {
			var err error
			ops, err = decodeOps(commitOpsFile)
			if err != nil {
				return err
			}
		}
		id, err := currentStore().PathdbCommit(args[0], ops, commitMessage)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitMessage, "message", "", "commit message")
	commitCmd.Flags().StringVar(&commitOpsFile, "ops", "", "path to a JSON ops file (empty WAL commit if omitted)")
}

package index

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"axiograph/core"
)

// Handle bundles one consistent, immutable view of all four indexes built
// from a single PathDB snapshot (spec.md §4.5). Handles are published via
// an atomic.Pointer so background rebuilds never hold a lock across a
// query read.
type Handle struct {
	SnapshotID string
	Facts      *FactIndex
	BySource   *RelationBySourceIndex
	Paths      *PathIndex
	Text       *TextIndex
	Warmup     *Warmup
}

// Build constructs a Handle synchronously (FactIndex, RelationBySourceIndex,
// TextIndex, and the Path index up to cfg.PathIndexDepth); deeper chains are
// left to the returned Handle's Warmup worker.
func Build(pdb *core.PathDB, snapshotID string, cfg Config) *Handle {
	cfg = cfg.WithDefaults()
	bySource := buildRelationBySourceIndex(pdb)
	paths := buildPathIndex(pdb, bySource, snapshotID, cfg)
	h := &Handle{
		SnapshotID: snapshotID,
		Facts:      buildFactIndex(pdb),
		BySource:   bySource,
		Paths:      paths,
		Text:       buildTextIndex(pdb),
	}
	h.Warmup = NewWarmup(paths, cfg.WarmupQueueSize)
	return h
}

// Store publishes Handle values produced by (re)builds without ever
// requiring a query reader to take a lock (spec.md §4.5/§5).
type Store struct {
	current atomic.Pointer[Handle]
}

// NewStore returns a Store with no published handle; Current returns nil
// until the first Publish.
func NewStore() *Store { return &Store{} }

// Current returns the most recently published Handle, or nil if none has
// been published yet.
func (s *Store) Current() *Handle { return s.current.Load() }

// Publish atomically swaps in a new Handle, making it visible to all
// subsequent Current() calls.
func (s *Store) Publish(h *Handle) { s.current.Store(h) }

// Rebuild builds a fresh Handle from pdb and publishes it, logging the
// transition the way the rest of the codebase logs state changes.
func (s *Store) Rebuild(pdb *core.PathDB, snapshotID string, cfg Config) *Handle {
	h := Build(pdb, snapshotID, cfg)
	s.Publish(h)
	logrus.WithFields(logrus.Fields{
		"snapshot_id": snapshotID,
		"entities":    len(pdb.Entities()),
		"relations":   len(pdb.Relations()),
	}).Info("index handle rebuilt")
	return h
}

// RunWarmup starts the published handle's warm-up worker; callers
// typically run this once per handle in its own goroutine.
func RunWarmup(ctx context.Context, h *Handle) {
	if h == nil || h.Warmup == nil {
		return
	}
	h.Warmup.Run(ctx)
}

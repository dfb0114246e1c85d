package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"axiograph/core"
)

// PathKey identifies one cached reachability set: the source entity, the
// dot-joined rel_type chain, and the snapshot the PathDB was built from
// (spec.md §4.5 — the Path LRU key).
type PathKey struct {
	From       uint64
	Chain      string
	SnapshotID string
}

func joinChain(chain []string) string { return strings.Join(chain, ".") }

// denseIDs maps the full 64-bit content-addressed entity ids (core.EntityID
// is an FNV-1a hash, not a small counter) onto a dense 0..n-1 range so
// bitset.BitSet — which allocates proportional to the largest index it has
// seen — stays bounded by the entity count instead of the hash space.
type denseIDs struct {
	toDense map[uint64]uint
	toID    []uint64
}

func newDenseIDs(pdb *core.PathDB) *denseIDs {
	entities := pdb.Entities()
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	d := &denseIDs{toDense: make(map[uint64]uint, len(entities)), toID: make([]uint64, len(entities))}
	for i, e := range entities {
		d.toDense[e.ID] = uint(i)
		d.toID[i] = e.ID
	}
	return d
}

func (d *denseIDs) dense(id uint64) (uint, bool) {
	i, ok := d.toDense[id]
	return i, ok
}

func (d *denseIDs) id(dense uint) uint64 { return d.toID[dense] }

func (d *denseIDs) setOf(ids []uint64) *bitset.BitSet {
	b := bitset.New(uint(len(d.toID)))
	for _, id := range ids {
		if i, ok := d.dense(id); ok {
			b.Set(i)
		}
	}
	return b
}

func (d *denseIDs) sorted(b *bitset.BitSet) []uint64 {
	out := make([]uint64, 0, b.Count())
	for i, present := b.NextSet(0); present; i, present = b.NextSet(i + 1) {
		out = append(out, d.id(i))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PathIndex holds the synchronously-built bounded-depth reachability table
// plus an LRU for chains beyond that depth, filled in lazily or
// asynchronously by a Warmup worker (spec.md §4.5).
type PathIndex struct {
	snapshotID string
	depth      int
	bySource   *RelationBySourceIndex
	ids        *denseIDs
	sync       map[PathKey][]uint64
	lru        *lru.Cache[PathKey, []uint64]
}

// buildPathIndex computes reachable-to sets for every (from, chain) with
// chain length up to cfg.PathIndexDepth, by breadth-first extension of
// RelationBySourceIndex. Chains are built only over rel_types that actually
// occur in the graph, so the table stays proportional to the data rather
// than the full cross product of relation names.
func buildPathIndex(pdb *core.PathDB, bySource *RelationBySourceIndex, snapshotID string, cfg Config) *PathIndex {
	cache, err := lru.New[PathKey, []uint64](cfg.PathLRUCapacity)
	if err != nil {
		// Only occurs for a non-positive capacity, which WithDefaults
		// already rules out.
		panic(fmt.Sprintf("index: path LRU: %v", err))
	}
	ids := newDenseIDs(pdb)
	pi := &PathIndex{
		snapshotID: snapshotID,
		depth:      cfg.PathIndexDepth,
		bySource:   bySource,
		ids:        ids,
		sync:       map[PathKey][]uint64{},
		lru:        cache,
	}

	type frontier struct {
		key     PathKey
		reached *bitset.BitSet
	}
	var level []frontier
	for _, e := range pdb.Entities() {
		for _, relType := range bySource.RelTypesFrom(e.ID) {
			reached := ids.setOf(bySource.Targets(e.ID, relType))
			key := PathKey{From: e.ID, Chain: joinChain([]string{relType}), SnapshotID: snapshotID}
			pi.sync[key] = ids.sorted(reached)
			level = append(level, frontier{key: key, reached: reached})
		}
	}

	for hop := 2; hop <= cfg.PathIndexDepth && len(level) > 0; hop++ {
		var next []frontier
		for _, fr := range level {
			chain := strings.Split(fr.key.Chain, ".")
			seenExt := map[string]*bitset.BitSet{}
			for dense, present := fr.reached.NextSet(0); present; dense, present = fr.reached.NextSet(dense + 1) {
				to := ids.id(dense)
				for _, relType := range bySource.RelTypesFrom(to) {
					ext, ok := seenExt[relType]
					if !ok {
						ext = bitset.New(uint(len(ids.toID)))
						seenExt[relType] = ext
					}
					for _, t2 := range bySource.Targets(to, relType) {
						if j, ok := ids.dense(t2); ok {
							ext.Set(j)
						}
					}
				}
			}
			for relType, ext := range seenExt {
				newChain := append(append([]string(nil), chain...), relType)
				key := PathKey{From: fr.key.From, Chain: joinChain(newChain), SnapshotID: snapshotID}
				pi.sync[key] = ids.sorted(ext)
				next = append(next, frontier{key: key, reached: ext})
			}
		}
		level = next
	}

	for k, v := range pi.sync {
		pi.lru.Add(k, v)
	}
	return pi
}

// Lookup returns the cached reachable-to set for (from, chain), checking
// the synchronous table first and falling back to the LRU (which may hold
// entries warmed asynchronously past cfg.PathIndexDepth).
func (pi *PathIndex) Lookup(from uint64, chain []string) ([]uint64, bool) {
	key := PathKey{From: from, Chain: joinChain(chain), SnapshotID: pi.snapshotID}
	if v, ok := pi.sync[key]; ok {
		return v, true
	}
	return pi.lru.Get(key)
}

// compute walks a chain longer than the synchronous depth by repeated
// single-hop extension through RelationBySourceIndex; used by the warm-up
// worker for on-demand deep chains.
func (pi *PathIndex) compute(key PathKey) []uint64 {
	chain := strings.Split(key.Chain, ".")
	frontier := bitset.New(uint(len(pi.ids.toID)))
	if d, ok := pi.ids.dense(key.From); ok {
		frontier.Set(d)
	}
	for _, relType := range chain {
		next := bitset.New(uint(len(pi.ids.toID)))
		for dense, present := frontier.NextSet(0); present; dense, present = frontier.NextSet(dense + 1) {
			from := pi.ids.id(dense)
			for _, to := range pi.bySource.Targets(from, relType) {
				if j, ok := pi.ids.dense(to); ok {
					next.Set(j)
				}
			}
		}
		frontier = next
	}
	return pi.ids.sorted(frontier)
}

// PathLRUWarmupDroppedTotal is the prometheus counter for Path LRU warm-up
// requests dropped because the bounded queue was full (spec.md §4.5).
var PathLRUWarmupDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "axiograph_path_lru_warmup_dropped_total",
	Help: "Path LRU warm-up requests dropped due to a full queue",
})

// Warmup asynchronously fills the Path LRU for chains deeper than the
// synchronously-built PathIndex depth. Requests past the bounded queue
// are dropped and counted rather than blocking the caller.
type Warmup struct {
	pi    *PathIndex
	queue chan PathKey
}

// NewWarmup creates a warm-up worker with a bounded request queue.
// Registering PathLRUWarmupDroppedTotal is the caller's responsibility
// (once per process) since a shared registry may already hold it.
func NewWarmup(pi *PathIndex, queueSize int) *Warmup {
	return &Warmup{pi: pi, queue: make(chan PathKey, queueSize)}
}

// Request enqueues a (from, chain) pair to be warmed into the LRU. It never
// blocks: a full queue drops the request and increments the dropped
// counter.
func (w *Warmup) Request(from uint64, chain []string) {
	key := PathKey{From: from, Chain: joinChain(chain), SnapshotID: w.pi.snapshotID}
	select {
	case w.queue <- key:
	default:
		PathLRUWarmupDroppedTotal.Inc()
	}
}

// Run drains the queue until ctx is canceled, computing each requested
// chain's reachable set and storing it in the Path LRU.
func (w *Warmup) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-w.queue:
			if _, ok := w.pi.lru.Get(key); ok {
				continue
			}
			w.pi.lru.Add(key, w.pi.compute(key))
		}
	}
}

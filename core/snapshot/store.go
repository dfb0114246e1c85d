package snapshot

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"axiograph/core"
)

// Store is the content-addressed snapshot store for one axiograph
// instance: two append-only logs (accepted, pathdb) plus a shared
// checkpoints directory, backed by an afero.Fs so tests run against an
// in-memory filesystem instead of real disk (grounded on the teacher's
// habit of pointing its ledger at a throwaway directory, generalized to a
// swappable backend).
type Store struct {
	fs      afero.Fs
	root    string
	lockDir string // real OS directory for gofrs/flock; "" disables locking (tests)
	log     *logrus.Logger
}

// Open creates (if missing) the layer subdirectories and returns a ready
// Store. lockDir, when non-empty, is a real filesystem directory used
// solely to host per-layer .lock files — it may differ from root when fs
// is an in-memory afero.Fs, since flock requires an actual inode.
func Open(fs afero.Fs, root, lockDir string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{fs: fs, root: root, lockDir: lockDir, log: log}
	for _, layer := range []Layer{LayerAccepted, LayerPathdb} {
		if err := fs.MkdirAll(s.objectsDir(layer), 0o755); err != nil {
			return nil, fmt.Errorf("snapshot: mkdir %s objects: %w", layer, err)
		}
	}
	if err := fs.MkdirAll(path.Join(root, "checkpoints"), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir checkpoints: %w", err)
	}
	if lockDir != "" {
		if err := os.MkdirAll(lockDir, 0o755); err != nil {
			return nil, fmt.Errorf("snapshot: mkdir lockdir: %w", err)
		}
	}
	return s, nil
}

func (s *Store) layerDir(layer Layer) string   { return path.Join(s.root, string(layer)) }
func (s *Store) objectsDir(layer Layer) string { return path.Join(s.layerDir(layer), "objects") }
func (s *Store) objectPath(layer Layer, id string) string {
	return path.Join(s.objectsDir(layer), id)
}
func (s *Store) headPath(layer Layer) string { return path.Join(s.layerDir(layer), "HEAD") }
func (s *Store) logPath(layer Layer) string  { return path.Join(s.layerDir(layer), "log") }
func (s *Store) checkpointPath(id string) string {
	return path.Join(s.root, "checkpoints", id+".axpd.zst")
}

// lock acquires the per-layer single-writer lock (spec.md §5: "single
// writer per layer, multiple readers"). When lockDir is unset (in-memory
// test stores) it is a no-op — correctness still holds for
// single-goroutine test usage.
func (s *Store) lock(layer Layer) (func(), error) {
	if s.lockDir == "" {
		return func() {}, nil
	}
	fl := flock.New(filepath.Join(s.lockDir, string(layer)+".lock"))
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("snapshot: lock %s: %w", layer, err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Head returns the current HEAD snapshot id for layer, or "" if the layer
// has no snapshots yet.
func (s *Store) Head(layer Layer) (string, error) {
	return s.head(layer)
}

func (s *Store) head(layer Layer) (string, error) {
	b, err := afero.ReadFile(s.fs, s.headPath(layer))
	if err != nil {
		if isNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// writeHead publishes a new HEAD atomically: write a temp file, then
// rename over the old one. afero.Rename is not guaranteed atomic on every
// backend, but on the OS filesystem it maps to os.Rename, which is.
func (s *Store) writeHead(layer Layer, id string) error {
	tmp := s.headPath(layer) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(id), 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.headPath(layer))
}

func (s *Store) appendLog(layer Layer, e LogEntry) error {
	f, err := s.fs.OpenFile(s.logPath(layer), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	line := fmt.Sprintf("%s\t%s\t%d\t%s\t%s\n", e.SnapshotID, e.ParentID, e.Timestamp, escapeTab(e.Message), e.OpSummary)
	_, err = f.Write([]byte(line))
	return err
}

func escapeTab(s string) string { return strings.ReplaceAll(s, "\t", " ") }

func idHex(n uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return hex.EncodeToString(buf[:])
}

// Promote implements spec.md §4.3 promote(module): parse + typecheck the
// given .axi source, append an immutable accepted snapshot, and return
// its id.
func (s *Store) Promote(src []byte, message string, profile core.QualityProfile) (string, error) {
	m, err := core.Parse(src)
	if err != nil {
		return "", fmt.Errorf("snapshot: promote parse: %w", err)
	}
	tm, _, err := core.Typecheck(m, profile)
	if err != nil {
		return "", fmt.Errorf("snapshot: promote typecheck: %w", err)
	}
	if _, err := core.CheckConstraints(tm); err != nil {
		return "", fmt.Errorf("snapshot: promote constraints: %w", err)
	}

	unlock, err := s.lock(LayerAccepted)
	if err != nil {
		return "", err
	}
	defer unlock()

	parent, err := s.head(LayerAccepted)
	if err != nil {
		return "", fmt.Errorf("snapshot: read accepted HEAD: %w", err)
	}
	canon, err := m.CanonicalBytes()
	if err != nil {
		return "", fmt.Errorf("snapshot: canonicalize: %w", err)
	}
	ts := uint64(time.Now().Unix())
	meta, err := rlp.EncodeToBytes(struct {
		Message   string
		Timestamp uint64
	}{message, ts})
	if err != nil {
		return "", err
	}
	id := idHex(core.Fnv1a64(append(append([]byte(parent), canon...), meta...)))

	rec := record{Parent: parent, Layer: string(LayerAccepted), Message: message, Timestamp: ts, ModuleSource: src}
	enc, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, s.objectPath(LayerAccepted, id), enc, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write object: %w", err)
	}
	if err := s.appendLog(LayerAccepted, LogEntry{SnapshotID: id, ParentID: parent, Timestamp: ts, Message: message, OpSummary: "promote module " + m.Name}); err != nil {
		return "", fmt.Errorf("snapshot: append log: %w", err)
	}
	if err := s.writeHead(LayerAccepted, id); err != nil {
		return "", fmt.Errorf("snapshot: write HEAD: %w", err)
	}
	s.log.WithFields(logrus.Fields{"layer": LayerAccepted, "id": id, "parent": parent}).Info("snapshot promoted")
	return id, nil
}

// PathdbCommit implements spec.md §4.3 pathdb_commit(accepted_snapshot_id,
// ops): validates the accepted snapshot exists, appends a WAL snapshot
// carrying ops, and returns its id.
func (s *Store) PathdbCommit(acceptedID string, ops []Op, message string) (string, error) {
	exists, err := afero.Exists(s.fs, s.objectPath(LayerAccepted, acceptedID))
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: accepted snapshot %s", core.ErrSnapshotNotFound, acceptedID)
	}

	unlock, err := s.lock(LayerPathdb)
	if err != nil {
		return "", err
	}
	defer unlock()

	parent, err := s.head(LayerPathdb)
	if err != nil {
		return "", fmt.Errorf("snapshot: read pathdb HEAD: %w", err)
	}
	opsBytes, err := rlp.EncodeToBytes(ops)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode ops: %w", err)
	}
	ts := uint64(time.Now().Unix())
	meta, err := rlp.EncodeToBytes(struct {
		Message   string
		Timestamp uint64
	}{message, ts})
	if err != nil {
		return "", err
	}
	id := idHex(core.Fnv1a64(append(append([]byte(parent), opsBytes...), meta...)))

	rec := record{Parent: parent, Layer: string(LayerPathdb), Message: message, Timestamp: ts, AcceptedID: acceptedID, Ops: ops}
	enc, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, s.objectPath(LayerPathdb, id), enc, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write object: %w", err)
	}
	if err := s.appendLog(LayerPathdb, LogEntry{SnapshotID: id, ParentID: parent, Timestamp: ts, Message: message, OpSummary: opSummary(ops)}); err != nil {
		return "", fmt.Errorf("snapshot: append log: %w", err)
	}
	if err := s.writeHead(LayerPathdb, id); err != nil {
		return "", fmt.Errorf("snapshot: write HEAD: %w", err)
	}
	s.log.WithFields(logrus.Fields{"layer": LayerPathdb, "id": id, "accepted": acceptedID}).Info("pathdb snapshot committed")
	return id, nil
}

func opSummary(ops []Op) string {
	counts := map[OpKind]int{}
	for _, op := range ops {
		counts[op.Kind]++
	}
	return fmt.Sprintf("chunks=%d proposals=%d embeddings=%d", counts[OpAddChunks], counts[OpAddProposals], counts[OpAddEmbeddings])
}

func (s *Store) readRecord(layer Layer, id string) (*record, error) {
	b, err := afero.ReadFile(s.fs, s.objectPath(layer, id))
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", core.ErrSnapshotNotFound, layer, id)
		}
		return nil, err
	}
	var rec record
	if err := rlp.DecodeBytes(b, &rec); err != nil {
		return nil, fmt.Errorf("snapshot: corrupt object %s/%s: %w", layer, id, err)
	}
	return &rec, nil
}

// BuildBase is the starting point PathdbBuild's slow path hands to a
// BuildFunc: either a decompressed ancestor checkpoint, or the accepted
// module set to rebuild from genesis.
type BuildBase struct {
	CheckpointBytes []byte
	Module          *core.Module
}

// BuildFunc materializes .axpd bytes given a base and the WAL ops to
// replay on top of it, oldest first. C4/C6 supply the concrete
// implementation; the store itself is agnostic to the PathDB binary
// format.
type BuildFunc func(base BuildBase, ops []Op) ([]byte, error)

// PathdbBuild implements spec.md §4.3 pathdb_build(snapshot_id): the fast
// path copies a cached checkpoint; the slow path replays WAL ops since
// the nearest ancestor checkpoint (or genesis) and writes a fresh
// checkpoint for next time.
func (s *Store) PathdbBuild(ctx context.Context, snapID string, build BuildFunc) ([]byte, error) {
	if cp, ok, err := s.readCheckpoint(snapID); err != nil {
		return nil, err
	} else if ok {
		return cp, nil
	}

	var chain []*record
	var chainIDs []string
	cur := snapID
	var base BuildBase
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rec, err := s.readRecord(LayerPathdb, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, rec)
		chainIDs = append(chainIDs, cur)
		if rec.Parent == "" {
			moduleBytes, err := s.acceptedModule(rec.AcceptedID)
			if err != nil {
				return nil, err
			}
			base.Module = moduleBytes
			break
		}
		if cp, ok, err := s.readCheckpoint(rec.Parent); err != nil {
			return nil, err
		} else if ok {
			base.CheckpointBytes = cp
			break
		}
		cur = rec.Parent
	}

	// chain is newest-first; replay oldest-first.
	var ops []Op
	for i := len(chain) - 1; i >= 0; i-- {
		ops = append(ops, chain[i].Ops...)
	}
	bytesOut, err := build(base, ops)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrReplayRejected, err)
	}
	if err := s.writeCheckpoint(snapID, bytesOut); err != nil {
		s.log.WithError(err).Warn("snapshot: failed to persist checkpoint")
	}
	return bytesOut, nil
}

func (s *Store) acceptedModule(acceptedID string) (*core.Module, error) {
	rec, err := s.readRecord(LayerAccepted, acceptedID)
	if err != nil {
		return nil, err
	}
	return core.Parse(rec.ModuleSource)
}

// AcceptedModule parses and returns the accepted-layer module stored
// under acceptedID, for callers (the CLI's query command) that need to
// typecheck it again outside the pathdb build path.
func (s *Store) AcceptedModule(acceptedID string) (*core.Module, error) {
	return s.acceptedModule(acceptedID)
}

// PathdbAcceptedID returns the accepted snapshot id a pathdb snapshot was
// committed against, for callers that have a pathdb HEAD and need the
// schema (via AcceptedModule) to elaborate a query against it.
func (s *Store) PathdbAcceptedID(snapID string) (string, error) {
	rec, err := s.readRecord(LayerPathdb, snapID)
	if err != nil {
		return "", err
	}
	return rec.AcceptedID, nil
}

func (s *Store) readCheckpoint(id string) ([]byte, bool, error) {
	exists, err := afero.Exists(s.fs, s.checkpointPath(id))
	if err != nil || !exists {
		return nil, false, err
	}
	comp, err := afero.ReadFile(s.fs, s.checkpointPath(id))
	if err != nil {
		return nil, false, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: checkpoint decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(comp, nil)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: corrupt checkpoint %s: %w", id, err)
	}
	return out, true, nil
}

func (s *Store) writeCheckpoint(id string, data []byte) error {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(data, nil)
	_ = enc.Close()
	return afero.WriteFile(s.fs, s.checkpointPath(id), compressed, 0o644)
}

// Sync implements spec.md §4.3 sync(from, to, layer): copy missing
// snapshot objects and log entries from src into dst, idempotently.
func Sync(ctx context.Context, src, dst *Store, layer Layer) error {
	srcIDs, err := afero.ReadDir(src.fs, src.objectsDir(layer))
	if err != nil {
		return fmt.Errorf("snapshot: list source objects: %w", err)
	}
	for _, fi := range srcIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		id := fi.Name()
		exists, err := afero.Exists(dst.fs, dst.objectPath(layer, id))
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		b, err := afero.ReadFile(src.fs, src.objectPath(layer, id))
		if err != nil {
			return fmt.Errorf("snapshot: read source object %s: %w", id, err)
		}
		if err := afero.WriteFile(dst.fs, dst.objectPath(layer, id), b, 0o644); err != nil {
			return fmt.Errorf("snapshot: write dest object %s: %w", id, err)
		}
	}

	srcEntries, err := readLog(src.fs, src.logPath(layer))
	if err != nil {
		return fmt.Errorf("snapshot: read source log: %w", err)
	}
	dstEntries, err := readLog(dst.fs, dst.logPath(layer))
	if err != nil {
		return fmt.Errorf("snapshot: read dest log: %w", err)
	}
	have := map[string]bool{}
	for _, e := range dstEntries {
		have[e.SnapshotID] = true
	}
	for _, e := range srcEntries {
		if have[e.SnapshotID] {
			continue
		}
		if err := dst.appendLog(layer, e); err != nil {
			return fmt.Errorf("snapshot: append dest log: %w", err)
		}
	}
	return nil
}

func readLog(fs afero.Fs, p string) ([]LogEntry, error) {
	exists, err := afero.Exists(fs, p)
	if err != nil || !exists {
		return nil, err
	}
	f, err := fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []LogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.SplitN(sc.Text(), "\t", 5)
		if len(parts) != 5 {
			continue
		}
		ts, _ := strconv.ParseUint(parts[2], 10, 64)
		out = append(out, LogEntry{SnapshotID: parts[0], ParentID: parts[1], Timestamp: ts, Message: parts[3], OpSummary: parts[4]})
	}
	return out, sc.Err()
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

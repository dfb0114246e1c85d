// Package certificate produces the nine JSON certificate kinds of
// spec.md §4.8, each a versioned witness a trusted checker can replay
// against an anchored snapshot or module without re-running the
// producing query or rewrite itself.
package certificate

import (
	"fmt"

	"axiograph/core"
)

// Version is the certificate envelope version every kind shares.
const Version = 2

// AnchorKind distinguishes a snapshot-addressed certificate (anchor
// references a PathDB snapshot's module digest, steps carry relation_id)
// from a module-addressed one (anchor references a Module's own digest,
// steps carry axi_fact_id) — spec.md §4.8: "when anchor is present, each
// step carries relation_id ... or an axi_fact_id for module-anchored
// variants."
type AnchorKind string

const (
	AnchorSnapshot AnchorKind = "snapshot"
	AnchorModule   AnchorKind = "module"
)

// Anchor pins a certificate to the exact digest it was produced against.
type Anchor struct {
	AxiDigestV1 string     `json:"axi_digest_v1"`
	Kind        AnchorKind `json:"-"`
}

// FormatDigest renders a module/snapshot digest in the
// "fnv1a64:<hex>" form every anchor field uses.
func FormatDigest(digest uint64) string {
	return fmt.Sprintf("fnv1a64:%x", digest)
}

// NewSnapshotAnchor anchors a certificate to a PathDB's module digest.
func NewSnapshotAnchor(moduleDigest uint64) *Anchor {
	return &Anchor{AxiDigestV1: FormatDigest(moduleDigest), Kind: AnchorSnapshot}
}

// NewModuleAnchor anchors a certificate to a Module's own digest.
func NewModuleAnchor(m *core.Module) (*Anchor, error) {
	d, err := m.Digest()
	if err != nil {
		return nil, err
	}
	return &Anchor{AxiDigestV1: FormatDigest(d), Kind: AnchorModule}, nil
}

// Certificate is the envelope every kind shares: `{version, kind, anchor?,
// proof}` (spec.md §6: "Certificate JSON").
type Certificate struct {
	Version int         `json:"version"`
	Kind    string      `json:"kind"`
	Anchor  *Anchor     `json:"anchor,omitempty"`
	Proof   interface{} `json:"proof"`
}

func newCertificate(kind string, anchor *Anchor, proof interface{}) *Certificate {
	return &Certificate{Version: Version, Kind: kind, Anchor: anchor, Proof: proof}
}

// relationID derives a deterministic id for a relation edge record within
// an anchored snapshot, used by reachability_v2 steps to point the
// checker at the exact edge replayed. There is no persisted relation-id
// table (C4's RelationEdge carries no id field of its own), so the
// certificate derives one the same way FactID derives axi_fact_id: a
// stable hash of the edge's own content.
func relationID(from uint64, relType string, to uint64) uint64 {
	return core.Fnv1a64([]byte(fmt.Sprintf("%d\x1f%s\x1f%d", from, relType, to)))
}

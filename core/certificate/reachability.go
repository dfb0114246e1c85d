package certificate

import (
	"strconv"

	"axiograph/core"
	"axiograph/core/query"

	"github.com/holiman/uint256"
)

// ReachStepProof is one JSON node of a reachability_v2 proof: either a
// reflexive endpoint (`{"reflexive": {"entity": ...}}`) or a hop
// (`{"step": {"from", "rel_type", "to", "rel_confidence_fp", "rest"}}`),
// per spec.md §4.8's literal wording.
type ReachStepProof struct {
	Reflexive *ReflexiveProof `json:"reflexive,omitempty"`
	Step      *StepProof      `json:"step,omitempty"`
}

// ReflexiveProof witnesses a zero-hop (identity) path.
type ReflexiveProof struct {
	Entity string `json:"entity"`
}

// StepProof witnesses one traversed edge. RelationID is populated for a
// snapshot anchor, AxiFactID for a module anchor (spec.md §4.8).
type StepProof struct {
	From            string          `json:"from"`
	RelType         string          `json:"rel_type"`
	To              string          `json:"to"`
	RelConfidenceFP uint32          `json:"rel_confidence_fp"`
	RelationID      *uint64         `json:"relation_id,omitempty"`
	AxiFactID       *uint64         `json:"axi_fact_id,omitempty"`
	Rest            *ReachStepProof `json:"rest,omitempty"`
}

// BuildReachabilityV2 renders the reachability witness the executor
// actually walked (a *query.ReachStep chain, or nil for a reflexive
// match at `from`) into a reachability_v2 certificate.
func BuildReachabilityV2(pdb *core.PathDB, anchor *Anchor, from uint64, chain *query.ReachStep) *Certificate {
	return newCertificate("reachability_v2", anchor, buildReachProof(pdb, anchor, from, chain))
}

func buildReachProof(pdb *core.PathDB, anchor *Anchor, from uint64, chain *query.ReachStep) *ReachStepProof {
	if chain == nil {
		return &ReachStepProof{Reflexive: &ReflexiveProof{Entity: entityRef(pdb, from)}}
	}
	sp := &StepProof{
		From:            entityRef(pdb, chain.From),
		RelType:         chain.RelType,
		To:              entityRef(pdb, chain.To),
		RelConfidenceFP: chain.ConfidenceFP,
	}
	if anchor != nil {
		switch anchor.Kind {
		case AnchorModule:
			for _, e := range pdb.RelationsFrom(chain.From, chain.RelType) {
				if hex, ok := e.Attrs["axi_fact_id"]; ok && e.To == chain.To {
					if id, err := strconv.ParseUint(hex, 16, 64); err == nil {
						sp.AxiFactID = &id
						break
					}
				}
			}
		default:
			id := relationID(chain.From, chain.RelType, chain.To)
			sp.RelationID = &id
		}
	}
	sp.Rest = chainRest(pdb, anchor, chain)
	return &ReachStepProof{Step: sp}
}

// chainRest renders the remainder of a reachability chain after the
// current hop, terminating in a reflexive node at the chain's final
// entity once Rest is exhausted (spec.md §4.8: a step's `rest` either
// chains to the next hop or grounds out).
func chainRest(pdb *core.PathDB, anchor *Anchor, chain *query.ReachStep) *ReachStepProof {
	if chain.Rest != nil {
		return buildReachProof(pdb, anchor, chain.To, chain.Rest)
	}
	return &ReachStepProof{Reflexive: &ReflexiveProof{Entity: entityRef(pdb, chain.To)}}
}

// ComposeChainConfidence computes the composed confidence of a
// reachability chain by the exact formula spec.md §8 demands:
// floor(∏ v_i / 10^6(k-1)), a single product-then-divide rather than
// per-hop rounding — core.ComposeConfidence's incremental floor (used by
// the executor for min_conf filtering mid-walk) can differ from this by
// rounding error over long chains, so the certificate recomputes it
// independently with overflow-safe 256-bit arithmetic (a chain of only 4
// hops already overflows a uint64 product: 10^6^4 = 10^24).
func ComposeChainConfidence(chain *query.ReachStep) uint32 {
	if chain == nil {
		return core.ConfidenceFull
	}
	product := uint256.NewInt(1)
	denom := uint256.NewInt(1)
	scale := uint256.NewInt(core.ConfidenceDenominator)
	for h := chain; h != nil; h = h.Rest {
		product.Mul(product, uint256.NewInt(uint64(h.ConfidenceFP)))
		denom.Mul(denom, scale)
	}
	// First hop's 10^6 stays in the numerator scale (v_1 is already in
	// fixed-point units); only the (k-1) joins between hops divide it back
	// down, so drop one factor of the denominator.
	denom.Div(denom, scale)
	product.Div(product, denom)
	return uint32(product.Uint64())
}

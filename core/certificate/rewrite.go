package certificate

import "axiograph/core"

// DerivationStepProof renders one core.DerivationStep for the wire: `pos`
// as given, and `rule`/`rule_ref` depending on which certificate kind
// carries it (normalize_path_v2 uses a bare rule name; rewrite_derivation
// uses the builtin:/axi: tagged rule_ref form).
type DerivationStepProof struct {
	Pos     []int  `json:"pos"`
	Rule    string `json:"rule,omitempty"`
	RuleRef string `json:"rule_ref,omitempty"`
}

// NormalizePathProof is the normalize_path_v2 payload: `{input,
// normalized, derivation?}` (spec.md §4.8).
type NormalizePathProof struct {
	Input      string                 `json:"input"`
	Normalized string                 `json:"normalized"`
	Derivation []*DerivationStepProof `json:"derivation,omitempty"`
}

func derivationProof(steps []core.DerivationStep) []*DerivationStepProof {
	if len(steps) == 0 {
		return nil
	}
	out := make([]*DerivationStepProof, len(steps))
	for i, s := range steps {
		pos := s.Pos
		if pos == nil {
			pos = []int{}
		}
		out[i] = &DerivationStepProof{Pos: pos, Rule: s.Rule}
	}
	return out
}

// BuildNormalizePathV2 normalizes expr and renders the result plus its
// derivation trail as a normalize_path_v2 certificate.
func BuildNormalizePathV2(anchor *Anchor, expr *core.PathExpr, custom []*core.RewriteRule) *Certificate {
	norm, derivation := core.NormalizeWithRules(expr, custom)
	return newCertificate("normalize_path_v2", anchor, NormalizePathProof{
		Input:      core.PathExprString(expr),
		Normalized: core.PathExprString(norm),
		Derivation: derivationProof(derivation),
	})
}

// RuleRef formats a derivation step's rule name into spec.md §4.8's
// rewrite_derivation convention: a builtin law stays `builtin:<tag>`; a
// schema-declared custom rule (tagged "custom:<Name>" by core.Normalize)
// becomes `axi:<module_digest>:<theory>:<rule>`.
func RuleRef(rule string, moduleDigest uint64, theory string) string {
	const customPrefix = "custom:"
	if len(rule) > len(customPrefix) && rule[:len(customPrefix)] == customPrefix {
		name := rule[len(customPrefix):]
		return "axi:" + FormatDigest(moduleDigest) + ":" + theory + ":" + name
	}
	return "builtin:" + rule
}

// RewriteDerivationProof is the rewrite_derivation_v2/v3 payload:
// `{input, output, derivation: [{pos, rule_ref}]}`.
type RewriteDerivationProof struct {
	Input      string                 `json:"input"`
	Output     string                 `json:"output"`
	Derivation []*DerivationStepProof `json:"derivation"`
}

// BuildRewriteDerivation renders a normalization trail with fully
// qualified rule_ref tags. kind selects "rewrite_derivation_v2" (snapshot
// anchor) or "rewrite_derivation_v3" (module anchor); theory names the
// schema's rewrite rule set custom rules were declared in, used only to
// qualify custom rule_refs.
func BuildRewriteDerivation(kind string, anchor *Anchor, moduleDigest uint64, theory string, expr *core.PathExpr, custom []*core.RewriteRule) *Certificate {
	norm, derivation := core.NormalizeWithRules(expr, custom)
	steps := make([]*DerivationStepProof, len(derivation))
	for i, s := range derivation {
		pos := s.Pos
		if pos == nil {
			pos = []int{}
		}
		steps[i] = &DerivationStepProof{Pos: pos, RuleRef: RuleRef(s.Rule, moduleDigest, theory)}
	}
	if steps == nil {
		steps = []*DerivationStepProof{}
	}
	return newCertificate(kind, anchor, RewriteDerivationProof{
		Input:      core.PathExprString(expr),
		Output:     core.PathExprString(norm),
		Derivation: steps,
	})
}

// PathEquivProof is the path_equiv_v2 payload: `{left, right, normalized,
// left_derivation?, right_derivation?}` — both sides normalize to the
// same shape.
type PathEquivProof struct {
	Left            string                 `json:"left"`
	Right           string                 `json:"right"`
	Normalized      string                 `json:"normalized"`
	LeftDerivation  []*DerivationStepProof `json:"left_derivation,omitempty"`
	RightDerivation []*DerivationStepProof `json:"right_derivation,omitempty"`
	Equivalent      bool                   `json:"equivalent"`
}

// BuildPathEquivV2 normalizes both sides independently and reports
// whether they converge to the same canonical form.
func BuildPathEquivV2(anchor *Anchor, left, right *core.PathExpr, custom []*core.RewriteRule) *Certificate {
	ln, lderiv := core.NormalizeWithRules(left, custom)
	rn, rderiv := core.NormalizeWithRules(right, custom)
	equiv := core.PathExprEqual(ln, rn)
	proof := PathEquivProof{
		Left:            core.PathExprString(left),
		Right:           core.PathExprString(right),
		Normalized:      core.PathExprString(ln),
		LeftDerivation:  derivationProof(lderiv),
		RightDerivation: derivationProof(rderiv),
		Equivalent:      equiv,
	}
	if !equiv {
		proof.Normalized = ""
	}
	return newCertificate("path_equiv_v2", anchor, proof)
}

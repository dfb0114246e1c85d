package query

import (
	"context"

	"axiograph/core"
)

// nfaState is one state of a Thompson-constructed NFA over relation
// labels: the RPQ alphabet is relation type strings, not characters, so
// this is a hand-rolled construction rather than Go's stdlib regexp
// (which matches strings, not labeled-graph paths).
type nfaState struct {
	id    int
	eps   []int
	trans map[string][]int // label -> destination states
}

type nfa struct {
	states []*nfaState
	start  int
	accept int
}

func newNFA() *nfa { return &nfa{} }

func (n *nfa) newState() int {
	s := &nfaState{id: len(n.states), trans: map[string][]int{}}
	n.states = append(n.states, s)
	return s.id
}

func (n *nfa) addEps(from, to int) {
	n.states[from].eps = append(n.states[from].eps, to)
}

func (n *nfa) addTrans(from int, label string, to int) {
	n.states[from].trans[label] = append(n.states[from].trans[label], to)
}

// buildNFA compiles an RPQExpr into a Thompson NFA fragment and returns
// the whole-expression automaton (start/accept pinned to the outermost
// fragment's boundary states).
func buildNFA(expr *RPQExpr) *nfa {
	n := newNFA()
	start, accept := compileInto(n, expr)
	n.start, n.accept = start, accept
	return n
}

func compileInto(n *nfa, expr *RPQExpr) (start, accept int) {
	switch expr.Kind {
	case RPQLabel:
		s, t := n.newState(), n.newState()
		n.addTrans(s, expr.Label, t)
		return s, t

	case RPQConcat:
		ls, la := compileInto(n, expr.Left)
		rs, ra := compileInto(n, expr.Right)
		n.addEps(la, rs)
		return ls, ra

	case RPQAlt:
		ls, la := compileInto(n, expr.Left)
		rs, ra := compileInto(n, expr.Right)
		s, t := n.newState(), n.newState()
		n.addEps(s, ls)
		n.addEps(s, rs)
		n.addEps(la, t)
		n.addEps(ra, t)
		return s, t

	case RPQStar:
		es, ea := compileInto(n, expr.Sub)
		s, t := n.newState(), n.newState()
		n.addEps(s, es)
		n.addEps(s, t)
		n.addEps(ea, es)
		n.addEps(ea, t)
		return s, t

	case RPQPlus:
		es, ea := compileInto(n, expr.Sub)
		t := n.newState()
		n.addEps(ea, es)
		n.addEps(ea, t)
		return es, t

	case RPQOpt:
		es, ea := compileInto(n, expr.Sub)
		s, t := n.newState(), n.newState()
		n.addEps(s, es)
		n.addEps(s, t)
		n.addEps(ea, t)
		return s, t
	}
	panic("query: unknown RPQExpr kind")
}

func (n *nfa) epsilonClosure(states []int) map[int]bool {
	seen := map[int]bool{}
	var stack []int
	for _, s := range states {
		if !seen[s] {
			seen[s] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range n.states[s].eps {
			if !seen[e] {
				seen[e] = true
				stack = append(stack, e)
			}
		}
	}
	return seen
}

// ReachStep is one hop of a reachability witness; Rest chains to the
// next hop, terminating in a step whose Rest is nil (spec.md §4.8's
// reachability_v2 `step{from,rel_type,to,rel_confidence_fp,rest}`).
type ReachStep struct {
	From, To     uint64
	RelType      string
	ConfidenceFP uint32
	Rest         *ReachStep
}

// rpqFrontierNode tracks one (nfa state, entity) pair discovered during
// BFS, with a predecessor pointer for witness reconstruction.
type rpqFrontierNode struct {
	state    int
	entity   uint64
	fromNode int // index into the visited slice, -1 for the start node
	viaRel   string
	viaConf  uint32
}

// runRPQ evaluates expr starting at `from` over pdb, honoring maxHops
// (0 = unbounded, capped at rpqSafetyCap) and minConf (0 = no floor).
// It returns every reachable entity together with the first (shortest)
// witness path discovered to it, in BFS order, and reports whether the
// deadline in ctx was hit before the walk exhausted its frontier (spec.md
// §5: "deadline checked ... at each RPQ expansion step").
func runRPQ(ctx context.Context, pdb *core.PathDB, expr *RPQExpr, from uint64, maxHops int, minConf uint32) (map[uint64]*ReachStep, bool) {
	n := buildNFA(expr)
	hopCap := maxHops
	if hopCap <= 0 || hopCap > rpqSafetyCap {
		hopCap = rpqSafetyCap
	}

	reached := map[uint64]*ReachStep{}
	type key struct {
		state  int
		entity uint64
	}
	visited := map[key]bool{}
	var nodes []rpqFrontierNode

	startStates := n.epsilonClosure([]int{n.start})
	var frontier []int // indices into nodes
	for s := range startStates {
		k := key{s, from}
		if visited[k] {
			continue
		}
		visited[k] = true
		nodes = append(nodes, rpqFrontierNode{state: s, entity: from, fromNode: -1})
		frontier = append(frontier, len(nodes)-1)
		if s == n.accept {
			reached[from] = nil // reflexive: reached with an empty witness
		}
	}

	truncated := false
	for hop := 0; hop < hopCap && len(frontier) > 0; hop++ {
		select {
		case <-ctx.Done():
			truncated = true
		default:
		}
		if truncated {
			break
		}
		var next []int
		for _, idx := range frontier {
			node := nodes[idx]
			st := n.states[node.state]
			for label, dests := range st.trans {
				for _, edge := range pdb.RelationsFrom(node.entity, label) {
					if minConf > 0 && edge.ConfidenceFP < minConf {
						continue
					}
					closure := n.epsilonClosure(dests)
					for ds := range closure {
						k := key{ds, edge.To}
						if visited[k] {
							continue
						}
						visited[k] = true
						nodes = append(nodes, rpqFrontierNode{
							state: ds, entity: edge.To, fromNode: idx,
							viaRel: label, viaConf: edge.ConfidenceFP,
						})
						ni := len(nodes) - 1
						next = append(next, ni)
						if ds == n.accept {
							if _, already := reached[edge.To]; !already {
								reached[edge.To] = reconstructWitness(nodes, ni)
							}
						}
					}
				}
			}
		}
		frontier = next
	}
	return reached, truncated
}

// rpqSafetyCap bounds RPQ traversal depth when an atom sets no explicit
// max_hops, preventing an unbounded Kleene-star walk over a large graph.
const rpqSafetyCap = 64

// reconstructWitness walks fromNode pointers from leaf back to the BFS
// root, then rebuilds the hop sequence root-to-leaf as a nested
// ReachStep chain.
func reconstructWitness(nodes []rpqFrontierNode, leaf int) *ReachStep {
	var hops []rpqFrontierNode
	for i := leaf; nodes[i].fromNode != -1; i = nodes[i].fromNode {
		hops = append(hops, nodes[i])
	}
	if len(hops) == 0 {
		return nil
	}
	var head *ReachStep
	var tail *ReachStep
	for i := len(hops) - 1; i >= 0; i-- {
		h := hops[i]
		step := &ReachStep{From: nodes[h.fromNode].entity, To: h.entity, RelType: h.viaRel, ConfidenceFP: h.viaConf}
		if head == nil {
			head = step
		} else {
			tail.Rest = step
		}
		tail = step
	}
	return head
}

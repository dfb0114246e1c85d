package index

import (
	"sort"
	"strings"
	"unicode"

	"axiograph/core"
)

// TextIndex is a per-attribute-key token inverted index (spec.md §4.5),
// used by the `fts` atom (AND semantics, case-insensitive) and the `fuzzy`
// atom (bounded Levenshtein on the full value). The AxQL `fts(?x, "terms")`
// atom takes no key argument: the executor always searches the
// `search_text` key.
type TextIndex struct {
	// postings[key][token] -> sorted, deduplicated entity ids.
	postings map[string]map[string][]uint64
	// values[key][entityID] -> the original (lowercased) attribute value,
	// scanned by Fuzzy.
	values map[string]map[uint64]string
}

func newTextIndex() *TextIndex {
	return &TextIndex{
		postings: map[string]map[string][]uint64{},
		values:   map[string]map[uint64]string{},
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (ti *TextIndex) index(key string, entityID uint64, value string) {
	lower := strings.ToLower(value)
	byToken, ok := ti.postings[key]
	if !ok {
		byToken = map[string][]uint64{}
		ti.postings[key] = byToken
	}
	seen := map[string]bool{}
	for _, tok := range tokenize(value) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		byToken[tok] = append(byToken[tok], entityID)
	}
	byEntity, ok := ti.values[key]
	if !ok {
		byEntity = map[uint64]string{}
		ti.values[key] = byEntity
	}
	byEntity[entityID] = lower
}

// Search returns entity ids whose attribute `key` contains every term in
// `terms` (AND semantics, case-insensitive), sorted ascending.
func (ti *TextIndex) Search(key string, terms []string) []uint64 {
	byToken := ti.postings[key]
	if byToken == nil || len(terms) == 0 {
		return nil
	}
	var out map[uint64]bool
	for _, term := range terms {
		ids := byToken[strings.ToLower(term)]
		if len(ids) == 0 {
			return nil
		}
		if out == nil {
			out = make(map[uint64]bool, len(ids))
			for _, id := range ids {
				out[id] = true
			}
			continue
		}
		next := map[uint64]bool{}
		for _, id := range ids {
			if out[id] {
				next[id] = true
			}
		}
		out = next
		if len(out) == 0 {
			return nil
		}
	}
	return sortedKeys(out)
}

// Fuzzy returns entity ids whose attribute `key` value is within
// maxDistance Levenshtein edits of `term` (case-insensitive, full value —
// not tokenized), sorted ascending.
func (ti *TextIndex) Fuzzy(key, term string, maxDistance int) []uint64 {
	byEntity := ti.values[key]
	if byEntity == nil {
		return nil
	}
	needle := strings.ToLower(term)
	var out []uint64
	for id, value := range byEntity {
		if boundedLevenshtein(needle, value, maxDistance) <= maxDistance {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys(m map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// boundedLevenshtein computes the edit distance between a and b, capped at
// max+1 once exceeded so long mismatched strings don't blow up full
// quadratic work; the caller only needs to know "<= max or not".
func boundedLevenshtein(a, b string, max int) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
			if m < rowMin {
				rowMin = m
			}
		}
		if rowMin > max {
			return rowMin
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func buildTextIndex(pdb *core.PathDB) *TextIndex {
	ti := newTextIndex()
	for _, e := range pdb.Entities() {
		for key, value := range e.Attrs {
			ti.index(key, e.ID, value)
		}
	}
	return ti
}

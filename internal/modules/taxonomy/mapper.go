package taxonomy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

type MatchKind string

const (
	KindExact   MatchKind = types.MatchExact
	KindSynonym MatchKind = types.MatchSynonym
	KindFuzzy   MatchKind = types.MatchFuzzy
)

func (k MatchKind) rank() int {
	switch k {
	case KindExact:
		return 0
	case KindSynonym:
		return 1
	default:
		return 2
	}
}

// Scores configures the relevance assigned to each kind of match. A fuzzy
// match scores FuzzyCeiling times the length ratio of the shorter phrase to
// the longer one, and is dropped below Min.
type Scores struct {
	Exact        float64
	Synonym      float64
	FuzzyCeiling float64
	Min          float64
	MinFuzzyLen  int
}

func DefaultScores() Scores {
	return Scores{
		Exact:        1.0,
		Synonym:      0.9,
		FuzzyCeiling: 0.8,
		Min:          0.3,
		MinFuzzyLen:  3,
	}
}

func (s Scores) Validate() error {
	for name, v := range map[string]float64{"exact": s.Exact, "synonym": s.Synonym, "fuzzy_ceiling": s.FuzzyCeiling, "min": s.Min} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("taxonomy score %s=%v outside [0,1]", name, v)
		}
	}
	if s.Synonym > s.Exact || s.FuzzyCeiling > s.Synonym {
		return fmt.Errorf("taxonomy scores must satisfy exact >= synonym >= fuzzy_ceiling")
	}
	if s.MinFuzzyLen < 1 {
		return fmt.Errorf("taxonomy min fuzzy length must be >= 1")
	}
	return nil
}

// Match is one candidate mapped onto a vocabulary node.
type Match struct {
	TermID          uuid.UUID
	Term            string
	PrimaryCategory string
	Subcategory     string
	Path            []string
	Score           float64
	Kind            MatchKind
	Candidate       string
	Depth           int

	node  int
	order int
}

// Mapper maps free-form keyword candidates onto a Tree.
type Mapper struct {
	tree   *Tree
	scores Scores
}

func NewMapper(tree *Tree, scores Scores) *Mapper {
	return &Mapper{tree: tree, scores: scores}
}

// Map scores every candidate against the vocabulary and returns at most one
// match per term, best first. Phrases of freeText that spell a term or one
// of its synonyms count as extra candidates (exact and synonym only).
//
// Output order is deterministic: score desc, exact before synonym before
// fuzzy, shallower terms first, earlier candidates first, then path.
func (m *Mapper) Map(candidates []string, freeText string) []Match {
	if m == nil || m.tree == nil || m.tree.Len() == 0 {
		return nil
	}
	best := make(map[int]Match)
	seen := make(map[string]struct{})
	order := 0

	consider := func(mt Match) {
		if mt.Score < m.scores.Min {
			return
		}
		if cur, ok := best[mt.node]; !ok || better(mt, cur) {
			best[mt.node] = mt
		}
	}

	for _, raw := range candidates {
		key := Normalize(raw)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		m.matchCandidate(key, strings.TrimSpace(raw), order, true, consider)
		order++
	}
	for _, phrase := range m.tree.scanPhrases(freeText) {
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		m.matchCandidate(phrase, phrase, order, false, consider)
		order++
	}

	out := make([]Match, 0, len(best))
	for _, mt := range best {
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

func (m *Mapper) matchCandidate(key, display string, order int, allowFuzzy bool, consider func(Match)) {
	exact, synonym := m.tree.lookupPhrase(key)
	direct := make(map[int]struct{}, len(exact)+len(synonym))
	for _, i := range exact {
		direct[i] = struct{}{}
		consider(m.newMatch(i, m.scores.Exact, KindExact, display, order))
	}
	for _, i := range synonym {
		if _, ok := direct[i]; ok {
			continue
		}
		direct[i] = struct{}{}
		consider(m.newMatch(i, m.scores.Synonym, KindSynonym, display, order))
	}
	if !allowFuzzy || runeLen(key) < m.scores.MinFuzzyLen {
		return
	}
	for i := range m.tree.nodes {
		if _, ok := direct[i]; ok {
			continue
		}
		n := &m.tree.nodes[i]
		score := m.fuzzyScore(key, n.key)
		for _, sk := range n.synKeys {
			if s := m.fuzzyScore(key, sk); s > score {
				score = s
			}
		}
		if score > 0 {
			consider(m.newMatch(i, score, KindFuzzy, display, order))
		}
	}
}

// fuzzyScore scores word-boundary containment in either direction. Both
// sides must be at least MinFuzzyLen runes long.
func (m *Mapper) fuzzyScore(a, b string) float64 {
	if a == "" || b == "" || a == b {
		return 0
	}
	la, lb := runeLen(a), runeLen(b)
	if la < m.scores.MinFuzzyLen || lb < m.scores.MinFuzzyLen {
		return 0
	}
	short, long := a, b
	ls, ll := la, lb
	if la > lb {
		short, long = b, a
		ls, ll = lb, la
	}
	if !containsPhrase(long, short) {
		return 0
	}
	return round4(m.scores.FuzzyCeiling * float64(ls) / float64(ll))
}

func (m *Mapper) newMatch(i int, score float64, kind MatchKind, candidate string, order int) Match {
	n := m.tree.nodes[i]
	return Match{
		TermID:          n.ID,
		Term:            n.Term,
		PrimaryCategory: n.PrimaryCategory,
		Subcategory:     n.Subcategory,
		Path:            m.tree.Path(i),
		Score:           score,
		Kind:            kind,
		Candidate:       candidate,
		Depth:           n.Depth,
		node:            i,
		order:           order,
	}
}

func better(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if ra, rb := a.Kind.rank(), b.Kind.rank(); ra != rb {
		return ra < rb
	}
	if a.Depth != b.Depth {
		return a.Depth < b.Depth
	}
	if a.order != b.order {
		return a.order < b.order
	}
	return a.node < b.node
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

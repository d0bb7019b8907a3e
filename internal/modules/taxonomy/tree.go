package taxonomy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

var (
	ErrDuplicatePath = errors.New("taxonomy: duplicate term path")
	ErrUnknownParent = errors.New("taxonomy: parent term not found")
	ErrCycle         = errors.New("taxonomy: parent chain forms a cycle")
)

// Node is one vocabulary entry. Parent and Children are arena indices;
// Parent is -1 for roots.
type Node struct {
	ID              uuid.UUID
	Term            string
	PrimaryCategory string
	Subcategory     string
	SpecificTerm    string
	Synonyms        []string
	Parent          int
	Children        []int
	Depth           int

	key     string
	synKeys []string
}

// Tree is an immutable arena of taxonomy nodes with lookup indexes. Node
// order is deterministic: sorted by path, then id.
type Tree struct {
	nodes     []Node
	byID      map[uuid.UUID]int
	byKey     map[string][]int
	bySynonym map[string][]int
	maxWords  int
}

// Build validates terms and synonyms and assembles the arena. Synonyms for
// unknown terms are ignored.
func Build(terms []*types.TaxonomyTerm, synonyms []*types.TermSynonym) (*Tree, error) {
	sorted := make([]*types.TaxonomyTerm, 0, len(terms))
	for _, t := range terms {
		if t != nil {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		pi := strings.ToLower(strings.Join(sorted[i].Path(), "\x1f"))
		pj := strings.ToLower(strings.Join(sorted[j].Path(), "\x1f"))
		if pi != pj {
			return pi < pj
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	tr := &Tree{
		nodes:     make([]Node, 0, len(sorted)),
		byID:      make(map[uuid.UUID]int, len(sorted)),
		byKey:     make(map[string][]int),
		bySynonym: make(map[string][]int),
	}
	paths := make(map[string]struct{}, len(sorted))
	for _, t := range sorted {
		pathKey := Normalize(t.PrimaryCategory) + "\x1f" + Normalize(t.Subcategory) + "\x1f" + Normalize(t.Term)
		if _, dup := paths[pathKey]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, strings.Join(t.Path(), " > "))
		}
		paths[pathKey] = struct{}{}
		if _, dup := tr.byID[t.ID]; dup {
			return nil, fmt.Errorf("%w: id %s", ErrDuplicatePath, t.ID)
		}
		n := Node{
			ID:              t.ID,
			Term:            strings.TrimSpace(t.Term),
			PrimaryCategory: strings.TrimSpace(t.PrimaryCategory),
			Subcategory:     strings.TrimSpace(t.Subcategory),
			Parent:          -1,
			key:             Normalize(t.Term),
		}
		if t.SpecificTerm != nil {
			n.SpecificTerm = strings.TrimSpace(*t.SpecificTerm)
		}
		tr.byID[t.ID] = len(tr.nodes)
		tr.nodes = append(tr.nodes, n)
	}

	for i, t := range sorted {
		if t.ParentID == nil || *t.ParentID == uuid.Nil {
			continue
		}
		p, ok := tr.byID[*t.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParent, t.ParentID)
		}
		tr.nodes[i].Parent = p
	}

	if err := tr.computeDepths(); err != nil {
		return nil, err
	}
	for i := range tr.nodes {
		if p := tr.nodes[i].Parent; p >= 0 {
			tr.nodes[p].Children = append(tr.nodes[p].Children, i)
		}
	}

	for _, s := range synonyms {
		if s == nil {
			continue
		}
		i, ok := tr.byID[s.TermID]
		if !ok {
			continue
		}
		key := Normalize(s.Synonym)
		if key == "" || key == tr.nodes[i].key || containsString(tr.nodes[i].synKeys, key) {
			continue
		}
		tr.nodes[i].Synonyms = append(tr.nodes[i].Synonyms, strings.TrimSpace(s.Synonym))
		tr.nodes[i].synKeys = append(tr.nodes[i].synKeys, key)
	}

	for i := range tr.nodes {
		n := &tr.nodes[i]
		if n.key != "" {
			tr.byKey[n.key] = append(tr.byKey[n.key], i)
			tr.trackWords(n.key)
		}
		for _, k := range n.synKeys {
			tr.bySynonym[k] = append(tr.bySynonym[k], i)
			tr.trackWords(k)
		}
	}
	return tr, nil
}

// computeDepths walks each parent chain once; revisiting a node on the
// current walk means a cycle.
func (t *Tree) computeDepths() error {
	const (
		unseen = iota
		walking
		done
	)
	state := make([]int, len(t.nodes))
	for i := range t.nodes {
		if state[i] == done {
			continue
		}
		var chain []int
		cur := i
		for cur >= 0 && state[cur] == unseen {
			state[cur] = walking
			chain = append(chain, cur)
			cur = t.nodes[cur].Parent
		}
		if cur >= 0 && state[cur] == walking {
			return fmt.Errorf("%w at %q", ErrCycle, t.nodes[cur].Term)
		}
		base := -1
		if cur >= 0 {
			base = t.nodes[cur].Depth
		}
		for k := len(chain) - 1; k >= 0; k-- {
			base++
			t.nodes[chain[k]].Depth = base
			state[chain[k]] = done
		}
	}
	return nil
}

func (t *Tree) trackWords(key string) {
	if n := strings.Count(key, " ") + 1; n > t.maxWords {
		t.maxWords = n
	}
}

func (t *Tree) Len() int { return len(t.nodes) }

// Node returns a copy of the node at index i.
func (t *Tree) Node(i int) Node { return t.nodes[i] }

func (t *Tree) Index(id uuid.UUID) (int, bool) {
	i, ok := t.byID[id]
	return i, ok
}

func (t *Tree) Roots() []int {
	var out []int
	for i := range t.nodes {
		if t.nodes[i].Parent < 0 {
			out = append(out, i)
		}
	}
	return out
}

// Path returns the display path of node i: primary > subcategory > term.
func (t *Tree) Path(i int) []string {
	n := t.nodes[i]
	tt := types.TaxonomyTerm{PrimaryCategory: n.PrimaryCategory, Subcategory: n.Subcategory, Term: n.Term}
	return tt.Path()
}

func (t *Tree) PathString(i int) string {
	return strings.Join(t.Path(i), " > ")
}

// lookupPhrase returns exact and synonym hits for an already normalized key.
func (t *Tree) lookupPhrase(key string) (exact, synonym []int) {
	return t.byKey[key], t.bySynonym[key]
}

// scanPhrases walks the normalized words of text and returns every known
// term or synonym phrase, longest match first, in text order.
func (t *Tree) scanPhrases(text string) []string {
	words := Words(text)
	if len(words) == 0 || t.maxWords == 0 {
		return nil
	}
	var out []string
	i := 0
	for i < len(words) {
		matched := 0
		maxLen := t.maxWords
		if rem := len(words) - i; maxLen > rem {
			maxLen = rem
		}
		for n := maxLen; n >= 1; n-- {
			phrase := strings.Join(words[i:i+n], " ")
			if _, ok := t.byKey[phrase]; ok {
				out = append(out, phrase)
				matched = n
				break
			}
			if _, ok := t.bySynonym[phrase]; ok {
				out = append(out, phrase)
				matched = n
				break
			}
		}
		if matched == 0 {
			matched = 1
		}
		i += matched
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

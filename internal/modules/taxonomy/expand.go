package taxonomy

import "strings"

// Expand returns related vocabulary for the terms that literally appear in
// query: synonyms, the canonical term when a synonym was used, and direct
// children. Phrases already in the query are skipped. At most limit
// phrases are returned; limit <= 0 disables expansion.
func (t *Tree) Expand(query string, limit int) []string {
	if t == nil || limit <= 0 {
		return nil
	}
	present := t.scanPhrases(query)
	if len(present) == 0 {
		return nil
	}
	normQuery := Normalize(query)
	seen := make(map[string]struct{})
	for _, p := range present {
		seen[p] = struct{}{}
	}
	var out []string
	add := func(phrase string) bool {
		key := Normalize(phrase)
		if key == "" || containsPhrase(normQuery, key) {
			return len(out) < limit
		}
		if _, ok := seen[key]; ok {
			return len(out) < limit
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(phrase))
		return len(out) < limit
	}

	visited := make(map[int]struct{})
	for _, p := range present {
		exact, synonym := t.lookupPhrase(p)
		for _, i := range append(append([]int{}, exact...), synonym...) {
			if _, ok := visited[i]; ok {
				continue
			}
			visited[i] = struct{}{}
			n := t.nodes[i]
			if !add(n.Term) {
				return out
			}
			for _, s := range n.Synonyms {
				if !add(s) {
					return out
				}
			}
			for _, c := range n.Children {
				if !add(t.nodes[c].Term) {
					return out
				}
			}
		}
	}
	return out
}

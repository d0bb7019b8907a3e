package search

import (
	"github.com/google/uuid"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

type Weights struct {
	Keyword float64
	Vector  float64
}

// scored carries both per-strategy signals after normalization to [0,1].
type scored struct {
	id      uuid.UUID
	keyword float64
	vector  float64
	score   float64
}

// fuse merges keyword and vector hits into one candidate list. Keyword
// scores are divided by the best keyword score of the request; vector
// scores are already cosine similarities and are only clamped, so one
// document's similarity never moves another document's score.
// The output keeps first-seen order, keyword hits first.
func fuse(keyword, vector []types.SearchHit, w Weights) []scored {
	maxKW := 0.0
	for _, h := range keyword {
		if h.Score > maxKW {
			maxKW = h.Score
		}
	}

	idx := make(map[uuid.UUID]int, len(keyword)+len(vector))
	out := make([]scored, 0, len(keyword)+len(vector))
	get := func(id uuid.UUID) *scored {
		if i, ok := idx[id]; ok {
			return &out[i]
		}
		idx[id] = len(out)
		out = append(out, scored{id: id})
		return &out[len(out)-1]
	}

	for _, h := range keyword {
		s := get(h.DocumentID)
		n := 0.0
		if maxKW > 0 {
			n = h.Score / maxKW
		}
		if n > s.keyword {
			s.keyword = clamp01(n)
		}
	}
	for _, h := range vector {
		s := get(h.DocumentID)
		if v := clamp01(h.Score); v > s.vector {
			s.vector = v
		}
	}
	for i := range out {
		out[i].score = w.Keyword*out[i].keyword + w.Vector*out[i].vector
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeWeights scales a non-negative pair to sum to 1. A zero pair
// falls back to an even split.
func normalizeWeights(w Weights) Weights {
	if w.Keyword < 0 {
		w.Keyword = 0
	}
	if w.Vector < 0 {
		w.Vector = 0
	}
	sum := w.Keyword + w.Vector
	if sum == 0 {
		return Weights{Keyword: 0.5, Vector: 0.5}
	}
	return Weights{Keyword: w.Keyword / sum, Vector: w.Vector / sum}
}

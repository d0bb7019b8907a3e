package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapExactSynonymFuzzy(t *testing.T) {
	tree := civicTree(t)
	m := NewMapper(tree, DefaultScores())

	got := m.Map([]string{"Town Hall", "city hall meeting", "budget"}, "")
	require.NotEmpty(t, got)

	byTerm := map[string]Match{}
	for _, mt := range got {
		byTerm[mt.Term] = mt
	}
	th := byTerm["town hall"]
	require.Equal(t, KindExact, th.Kind)
	require.Equal(t, 1.0, th.Score)
	require.Equal(t, "Town Hall", th.Candidate)

	bh, ok := byTerm["budget hearing"]
	require.True(t, ok)
	require.Equal(t, KindFuzzy, bh.Kind)
	// "budget" (6 runes) inside "budget hearing" (14 runes): 0.8 * 6/14.
	require.InDelta(t, 0.3429, bh.Score, 1e-4)

	require.Equal(t, "town hall", got[0].Term)
}

func TestMapSynonymOnly(t *testing.T) {
	tree := civicTree(t)
	got := NewMapper(tree, DefaultScores()).Map([]string{"City hall meeting."}, "")
	require.Len(t, got, 1)
	require.Equal(t, "town hall", got[0].Term)
	require.Equal(t, KindSynonym, got[0].Kind)
	require.Equal(t, 0.9, got[0].Score)
}

func TestMapDropsWeakAndShortFuzzy(t *testing.T) {
	tree := civicTree(t)
	m := NewMapper(tree, DefaultScores())
	// "hall" inside "city hall meeting" scores 0.8*4/17 < 0.3, and inside
	// "town hall" 0.8*4/9 = 0.3556 which survives.
	got := m.Map([]string{"hall"}, "")
	require.Len(t, got, 1)
	require.Equal(t, "town hall", got[0].Term)
	require.Equal(t, KindFuzzy, got[0].Kind)

	require.Empty(t, m.Map([]string{"ha"}, ""))
	require.Empty(t, m.Map([]string{"   ", ""}, ""))
}

func TestMapFreeTextPhrases(t *testing.T) {
	tree := civicTree(t)
	got := NewMapper(tree, DefaultScores()).Map(nil, "Vote for Smith, town hall Tuesday")
	require.Len(t, got, 2)
	require.Equal(t, KindExact, got[0].Kind)
	require.Equal(t, KindExact, got[1].Kind)
	// Equal scores: both depth 2, so candidate order decides.
	require.Equal(t, "Smith", got[0].Term)
	require.Equal(t, "town hall", got[1].Term)
	require.Equal(t, []string{"People", "Candidates", "Smith"}, got[0].Path)
}

func TestMapKeepsBestScorePerTerm(t *testing.T) {
	tree := civicTree(t)
	got := NewMapper(tree, DefaultScores()).Map([]string{"hall", "town hall"}, "")
	count := 0
	for _, mt := range got {
		if mt.Term == "town hall" {
			count++
			require.Equal(t, KindExact, mt.Kind)
			require.Equal(t, 1.0, mt.Score)
		}
	}
	require.Equal(t, 1, count)
}

func TestMapIsDeterministic(t *testing.T) {
	tree := civicTree(t)
	m := NewMapper(tree, DefaultScores())
	first := m.Map([]string{"hall", "smith", "budget"}, "town hall")
	for i := 0; i < 20; i++ {
		require.Equal(t, first, m.Map([]string{"hall", "smith", "budget"}, "town hall"))
	}
}

func TestScoresValidate(t *testing.T) {
	require.NoError(t, DefaultScores().Validate())
	bad := DefaultScores()
	bad.Synonym = 1.2
	require.Error(t, bad.Validate())
	bad = DefaultScores()
	bad.FuzzyCeiling = 0.95
	require.Error(t, bad.Validate())
}

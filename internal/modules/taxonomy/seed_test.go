package taxonomy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

const seedYAML = `
categories:
  - name: Events
    subcategories:
      - name: Civic
        terms:
          - name: town hall
            synonyms: [city hall meeting, town meeting]
            children:
              - name: budget hearing
  - name: People
    subcategories:
      - name: Candidates
        terms:
          - name: Smith
`

func TestSeedRows(t *testing.T) {
	seed, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	terms, syns, err := seed.Rows()
	require.NoError(t, err)
	require.Len(t, terms, 7)
	require.Len(t, syns, 2)

	tree, err := Build(terms, syns)
	require.NoError(t, err)
	i, ok := tree.Index(types.TermID("Events", "Civic", "budget hearing"))
	require.True(t, ok)
	require.Equal(t, 3, tree.Node(i).Depth)

	again, _, err := seed.Rows()
	require.NoError(t, err)
	for k := range terms {
		require.Equal(t, terms[k].ID, again[k].ID)
	}
}

func TestSeedRejectsUnknownFields(t *testing.T) {
	_, err := ParseSeed(strings.NewReader("categories:\n  - name: X\n    colour: red\n"))
	require.Error(t, err)
}

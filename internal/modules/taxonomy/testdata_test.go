package taxonomy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

// civicTree builds:
//
//	Events > Civic > town hall (synonym: city hall meeting)
//	                  └ budget hearing
//	People > Candidates > Smith
func civicTree(t *testing.T) *Tree {
	t.Helper()
	events := &types.TaxonomyTerm{ID: types.TermID("Events", "", "Events"), PrimaryCategory: "Events", Term: "Events"}
	civic := &types.TaxonomyTerm{ID: types.TermID("Events", "Civic", "Civic"), PrimaryCategory: "Events", Subcategory: "Civic", Term: "Civic", ParentID: ptr(events.ID)}
	townHall := &types.TaxonomyTerm{ID: types.TermID("Events", "Civic", "town hall"), PrimaryCategory: "Events", Subcategory: "Civic", Term: "town hall", ParentID: ptr(civic.ID)}
	hearing := &types.TaxonomyTerm{ID: types.TermID("Events", "Civic", "budget hearing"), PrimaryCategory: "Events", Subcategory: "Civic", Term: "budget hearing", ParentID: ptr(townHall.ID)}
	people := &types.TaxonomyTerm{ID: types.TermID("People", "", "People"), PrimaryCategory: "People", Term: "People"}
	cands := &types.TaxonomyTerm{ID: types.TermID("People", "Candidates", "Candidates"), PrimaryCategory: "People", Subcategory: "Candidates", Term: "Candidates", ParentID: ptr(people.ID)}
	smith := &types.TaxonomyTerm{ID: types.TermID("People", "Candidates", "Smith"), PrimaryCategory: "People", Subcategory: "Candidates", Term: "Smith", ParentID: ptr(cands.ID)}

	tree, err := Build(
		[]*types.TaxonomyTerm{smith, townHall, events, hearing, civic, people, cands},
		[]*types.TermSynonym{{TermID: townHall.ID, Synonym: "City Hall Meeting"}},
	)
	require.NoError(t, err)
	return tree
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

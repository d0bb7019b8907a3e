package taxonomy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

func TestBuildComputesDepthAndChildren(t *testing.T) {
	tree := civicTree(t)
	require.Equal(t, 7, tree.Len())

	i, ok := tree.Index(types.TermID("Events", "Civic", "town hall"))
	require.True(t, ok)
	n := tree.Node(i)
	require.Equal(t, 2, n.Depth)
	require.Equal(t, []string{"Events", "Civic", "town hall"}, tree.Path(i))
	require.Len(t, n.Children, 1)
	require.Equal(t, "budget hearing", tree.Node(n.Children[0]).Term)
	require.Equal(t, []string{"City Hall Meeting"}, n.Synonyms)
	require.Len(t, tree.Roots(), 2)
}

func TestBuildIsOrderIndependent(t *testing.T) {
	a := civicTree(t)
	b := civicTree(t)
	for i := 0; i < a.Len(); i++ {
		require.Equal(t, a.Node(i).ID, b.Node(i).ID)
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	_, err := Build([]*types.TaxonomyTerm{
		{ID: a, PrimaryCategory: "X", Term: "a", ParentID: &b},
		{ID: b, PrimaryCategory: "X", Term: "b", ParentID: &a},
	}, nil)
	require.ErrorIs(t, err, ErrCycle)
}

func TestBuildRejectsDuplicatePathAndUnknownParent(t *testing.T) {
	_, err := Build([]*types.TaxonomyTerm{
		{ID: uuid.New(), PrimaryCategory: "Events", Subcategory: "Civic", Term: "Town Hall"},
		{ID: uuid.New(), PrimaryCategory: "events", Subcategory: "civic", Term: "town hall"},
	}, nil)
	require.ErrorIs(t, err, ErrDuplicatePath)

	missing := uuid.New()
	_, err = Build([]*types.TaxonomyTerm{
		{ID: uuid.New(), PrimaryCategory: "Events", Term: "x", ParentID: &missing},
	}, nil)
	require.ErrorIs(t, err, ErrUnknownParent)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "town hall", Normalize("  Town   HALL!! "))
	require.Equal(t, "smith", Normalize("Smith,"))
	require.Equal(t, "e-mail u.s", Normalize("E-mail U.S."))
	require.Equal(t, "", Normalize(" ... "))
}

package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/coursemap/internal/indexer"
)

var _ indexer.Source = (*Fetcher)(nil)

func TestOrderLectures_Numbered(t *testing.T) {
	refs := OrderLectures([]string{
		"lectures/week10-graphs.pdf",
		"lectures/week2-lists.md",
		"lectures/README.txt",
		"lectures/week1-intro.md",
	})
	require.Len(t, refs, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{refs[0].SessionOrder, refs[1].SessionOrder, refs[2].SessionOrder})
	assert.Equal(t, "Week1 Intro", refs[0].Title)
}

func TestOrderLectures_Unnumbered(t *testing.T) {
	refs := OrderLectures([]string{"b/trees.md", "b/arrays.md"})
	require.Len(t, refs, 2)
	assert.Equal(t, "b/arrays.md", refs[0].Path)
	assert.Equal(t, 1, refs[0].SessionOrder)
	assert.Equal(t, 2, refs[1].SessionOrder)
}

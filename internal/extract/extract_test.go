package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdown_SectionsAtH1AndH2(t *testing.T) {
	input := `# Recursion

Base cases first.

## Call Stack

Frames pile up.

## Tail Calls

Some languages optimise these.
`
	doc, err := NewMarkdown().Extract([]byte(input))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 3)

	assert.Equal(t, 1, doc.Sections[0].Position)
	assert.True(t, strings.HasPrefix(doc.Sections[0].Text, "# Recursion\n\n"))
	assert.Contains(t, doc.Sections[0].Text, "Base cases first")
	assert.NotContains(t, doc.Sections[0].Text, "Frames pile up")

	assert.Equal(t, 2, doc.Sections[1].Position)
	assert.True(t, strings.HasPrefix(doc.Sections[1].Text, "# Recursion > ## Call Stack\n\n"))
	assert.Contains(t, doc.Sections[1].Text, "Frames pile up")

	assert.Equal(t, 3, doc.Sections[2].Position)
	assert.Contains(t, doc.Sections[2].Text, "optimise")
	assert.Equal(t, 3, doc.PageCount)
}

func TestMarkdown_H3StaysInsideSection(t *testing.T) {
	input := `# Trees

Overview.

## Traversal

` + "```go" + `
func Walk(n *Node) {}
` + "```" + `

### In-order

Left, root, right.
`
	doc, err := NewMarkdown().Extract([]byte(input))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 2)
	assert.Contains(t, doc.Sections[1].Text, "func Walk")
	assert.Contains(t, doc.Sections[1].Text, "### In-order")
	assert.Contains(t, doc.Sections[1].Text, "Left, root, right")
}

func TestMarkdown_MultipleH1s(t *testing.T) {
	input := `# First

One.

## First Sub

Two.

# Second

Three.

## Second Sub

Four.
`
	doc, err := NewMarkdown().Extract([]byte(input))
	require.NoError(t, err)
	want := []string{
		"# First\n\n",
		"# First > ## First Sub\n\n",
		"# Second\n\n",
		"# Second > ## Second Sub\n\n",
	}
	require.Len(t, doc.Sections, len(want))
	for i, prefix := range want {
		assert.True(t, strings.HasPrefix(doc.Sections[i].Text, prefix), "section %d: %q", i, doc.Sections[i].Text)
	}
}

func TestMarkdown_NoHeaders(t *testing.T) {
	doc, err := NewMarkdown().Extract([]byte("Plain notes.\n\nMore notes.\n"))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, 1, doc.Sections[0].Position)
	assert.Contains(t, doc.Sections[0].Text, "Plain notes")
}

func TestMarkdown_EmptySectionsSkipped(t *testing.T) {
	input := `# Title

## Empty

## Full

Some content here.
`
	doc, err := NewMarkdown().Extract([]byte(input))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Contains(t, doc.Sections[0].Text, "## Full")
	assert.Contains(t, doc.Sections[0].Text, "Some content here")
}

func TestMarkdown_Preamble(t *testing.T) {
	doc, err := NewMarkdown().Extract([]byte("Lecture 3 handout\n\n# Graphs\n\nEdges.\n"))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "Lecture 3 handout", doc.Sections[0].Text)
	assert.Contains(t, doc.Sections[1].Text, "Edges.")
}

func TestText_FormFeedPages(t *testing.T) {
	doc, err := Text{}.Extract([]byte("page one\fpage   two\f\fpage four"))
	require.NoError(t, err)
	assert.Equal(t, 4, doc.PageCount)
	require.Len(t, doc.Sections, 3)
	assert.Equal(t, Section{Position: 2, Text: "page two"}, doc.Sections[1])
	assert.Equal(t, 4, doc.Sections[2].Position)
}

func TestText_Paragraphs(t *testing.T) {
	doc, err := Text{}.Extract([]byte("first para\nstill first\n\nsecond\r\n\r\nthird"))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 3)
	assert.Equal(t, "first para\nstill first", doc.Sections[0].Text)
	assert.Equal(t, 3, doc.Sections[2].Position)
}

func TestForFile(t *testing.T) {
	for name, ok := range map[string]bool{
		"w1.md": true, "notes.MARKDOWN": true, "slides.pdf": true,
		"a.txt": true, "deck.pptx": false, "noext": false,
	} {
		_, err := ForFile(name)
		assert.Equal(t, ok, err == nil, name)
		assert.Equal(t, ok, Supported(name), name)
	}
}

func TestPDF_InvalidData(t *testing.T) {
	_, err := PDF{}.Extract([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 40)) // 199 chars
	pieces := Split([]Section{
		{Position: 1, Text: "short slide"},
		{Position: 2, Text: "   "},
		{Position: 3, Text: long},
	}, 100)

	// 40 words at 20 words per piece
	require.Len(t, pieces, 3)
	assert.Equal(t, Piece{Position: 1, Seq: 0, Text: "short slide"}, pieces[0])
	for i, p := range pieces[1:] {
		assert.Equal(t, 3, p.Position)
		assert.Equal(t, i+1, p.Seq)
		assert.Len(t, strings.Fields(p.Text), 20)
	}
}

func TestSplit_AtThresholdStaysWhole(t *testing.T) {
	text := strings.Repeat("a", 150)
	pieces := Split([]Section{{Position: 1, Text: text}}, 100)
	require.Len(t, pieces, 1)
	assert.Equal(t, text, pieces[0].Text)
}

func TestSplit_ThresholdCountsCharactersNotBytes(t *testing.T) {
	// 150 characters, 300 bytes
	text := strings.Repeat("é", 150)
	pieces := Split([]Section{{Position: 1, Text: text}}, 100)
	require.Len(t, pieces, 1)
	assert.Equal(t, text, pieces[0].Text)

	greek := strings.TrimSpace(strings.Repeat("λόγος ", 30)) // 179 characters
	pieces = Split([]Section{{Position: 2, Text: greek}}, 100)
	require.Len(t, pieces, 2)
	assert.Len(t, strings.Fields(pieces[0].Text), 20)
	assert.Len(t, strings.Fields(pieces[1].Text), 10)
}

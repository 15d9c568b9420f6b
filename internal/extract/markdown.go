package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Markdown splits lecture notes at H1 and H2 boundaries. Each section is
// one position and carries its header path for context. Text before the
// first heading becomes its own section.
type Markdown struct {
	parser goldmark.Markdown
}

func NewMarkdown() *Markdown {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Markdown{parser: md}
}

type heading struct {
	id   string
	path string
}

func (m *Markdown) Extract(source []byte) (*Document, error) {
	doc := m.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var headings []heading
	flatten(tree.Items, nil, &headings)

	var sections []Section
	add := func(body string) {
		if body = strings.TrimSpace(body); body != "" {
			sections = append(sections, Section{Position: len(sections) + 1, Text: body})
		}
	}

	if len(headings) == 0 {
		add(string(source))
		return &Document{Sections: sections, PageCount: len(sections)}, nil
	}

	nodes := make([]ast.Node, 0, len(headings))
	kept := make([]heading, 0, len(headings))
	for _, h := range headings {
		if n := findHeaderByID(doc, h.id); n != nil {
			nodes = append(nodes, n)
			kept = append(kept, h)
		}
	}
	if len(nodes) == 0 {
		add(string(source))
		return &Document{Sections: sections, PageCount: len(sections)}, nil
	}

	first := nodes[0].Lines().At(0)
	add(string(source[:lineStart(source, first.Start)]))

	for i, n := range nodes {
		start := n.Lines().At(0)
		end := len(source)
		if i+1 < len(nodes) {
			end = lineStart(source, nodes[i+1].Lines().At(0).Start)
		}
		body := extractContent(source, lineStart(source, start.Start), end)
		if body == "" {
			continue
		}
		add(fmt.Sprintf("%s\n\n%s", kept[i].path, body))
	}
	return &Document{Sections: sections, PageCount: len(sections)}, nil
}

// flatten walks TOC items in document order collecting header paths.
func flatten(items toc.Items, ancestors []string, out *[]heading) {
	for _, item := range items {
		current := append(append([]string(nil), ancestors...), string(item.Title))
		if len(item.ID) > 0 {
			*out = append(*out, heading{id: string(item.ID), path: formatHeaderPath(current)})
		}
		if len(item.Items) > 0 {
			flatten(item.Items, current, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Trees", "Traversal"] -> "# Trees > ## Traversal"
func formatHeaderPath(path []string) string {
	parts := make([]string, len(path))
	for i, segment := range path {
		parts[i] = fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment)
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart moves back to the start of the line so "# " markers are kept
// out of the previous section.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// extractContent returns the trimmed text in [start, end), dropping the
// heading line itself.
func extractContent(source []byte, start, end int) string {
	chunk := source[start:end]
	if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
		chunk = chunk[i+1:]
	} else {
		chunk = nil
	}
	return strings.TrimSpace(string(chunk))
}

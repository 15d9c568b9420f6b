package extract

import (
	"regexp"
	"strings"
)

var blankLines = regexp.MustCompile(`\n\s*\n`)

// Text treats form feeds as page breaks. Without any, each blank-line
// separated paragraph is a position.
type Text struct{}

func (Text) Extract(data []byte) (*Document, error) {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	var parts []string
	if strings.Contains(s, "\f") {
		parts = strings.Split(s, "\f")
	} else {
		parts = blankLines.Split(s, -1)
	}
	doc := &Document{PageCount: len(parts)}
	for i, p := range parts {
		if body := cleanText(p); body != "" {
			doc.Sections = append(doc.Sections, Section{Position: i + 1, Text: body})
		}
	}
	return doc, nil
}

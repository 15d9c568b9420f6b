package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDF extracts plain text page by page; page N is position N. Pages without
// text are counted but produce no section.
type PDF struct{}

func (PDF) Extract(data []byte) (*Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	pages := r.NumPage()
	doc := &Document{PageCount: pages}
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		if body := cleanText(content); body != "" {
			doc.Sections = append(doc.Sections, Section{Position: i, Text: body})
		}
	}
	return doc, nil
}
